package address

import (
	"errors"
	"strings"
)

var (
	ErrAddressNotFound = errors.New("address not found")
	ErrInvalidAddress  = errors.New("address id is required")
	ErrMissingFields   = errors.New("full name, phone, line 1 and city are required")
)

type Address struct {
	ID         string `json:"address_id"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	IsDefault  bool   `json:"is_default"`
}

// Fields is the input accepted by the gateway when creating an address.
type Fields struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
	MakeDefault bool   `json:"is_default"`
}

// Validate only checks presence; formatting rules belong to the form layer.
func (f Fields) Validate() error {
	for _, v := range []string{f.FullName, f.Phone, f.Line1, f.City} {
		if strings.TrimSpace(v) == "" {
			return ErrMissingFields
		}
	}
	return nil
}

// Find looks an address up by id.
func Find(list []Address, id string) (Address, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

// Single line used by order summaries and the CLI.
func (a Address) Single() string {
	parts := []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
