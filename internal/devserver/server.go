// Package devserver is an in-memory storefront backend speaking the same
// REST contract as production. It exists for local development and for
// end-to-end tests of the gateway client.
package devserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/example/storefront-sync/internal/auth"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type Server struct {
	store *Store
	jwt   *auth.JWTService
	log   logrus.FieldLogger
}

func NewServer(store *Store, jwtService *auth.JWTService, logger logrus.FieldLogger) *Server {
	return &Server{
		store: store,
		jwt:   jwtService,
		log:   logger.WithField("component", "devserver"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/auth/login", s.login)
	r.Get("/products", s.listProducts)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(s.jwt))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Delete("/", s.clearCart)
			r.Post("/items", s.addCartItem)
			r.Put("/items/{itemID}", s.updateCartItem)
			r.Delete("/items/{itemID}", s.removeCartItem)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", s.listAddresses)
			r.Post("/", s.addAddress)
			r.Get("/default", s.defaultAddress)
			r.Put("/{addressID}/default", s.setDefaultAddress)
			r.Delete("/{addressID}", s.removeAddress)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Post("/", s.placeOrder)
			r.Get("/{orderID}", s.getOrder)
		})

		r.Route("/shops/{shopID}/orders", func(r chi.Router) {
			r.Use(RequireShopOwner)
			r.Get("/", s.listShopOrders)
			r.Put("/{orderID}/status", s.updateOrderStatus)
		})
	})

	return r
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: false, Message: message})
}

// fail maps a domain error to an HTTP status and an envelope message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, address.ErrMissingFields),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrShopMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, address.ErrAddressNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrOutOfStock),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrTerminalStatus),
		errors.Is(err, order.ErrCannotCancel):
		status = http.StatusConflict
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("Request failed")
	}
	respondError(w, r, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// userID is only called behind Authenticate.
func userID(r *http.Request) string {
	claims, _ := UserFromContext(r.Context())
	return claims.UserID
}

// Auth

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	ShopID      string    `json:"shop_id,omitempty"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	account, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(account.ID, account.Email, account.Role, account.ShopID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.log.WithFields(logrus.Fields{"user_id": account.ID, "role": account.Role}).Info("User logged in")
	respond(w, r, http.StatusOK, loginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		UserID:      account.ID,
		Role:        account.Role,
		ShopID:      account.ShopID,
	})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.store.Products())
}

// Cart

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.store.Cart(userID(r)))
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}

	item, err := s.store.AddItem(userID(r), req.ProductID, req.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, item)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}

	c, err := s.store.UpdateItem(userID(r), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, c)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.RemoveItem(userID(r), chi.URLParam(r, "itemID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, c)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.store.ClearCart(userID(r))
	respond(w, r, http.StatusOK, nil)
}

// Addresses

func (s *Server) listAddresses(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.store.Addresses(userID(r)))
}

// defaultAddress answers with null data when the user has no default.
func (s *Server) defaultAddress(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.DefaultAddress(userID(r))
	if !ok {
		respond(w, r, http.StatusOK, nil)
		return
	}
	respond(w, r, http.StatusOK, a)
}

func (s *Server) addAddress(w http.ResponseWriter, r *http.Request) {
	var fields address.Fields
	if !decode(w, r, &fields) {
		return
	}

	a, err := s.store.AddAddress(userID(r), fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, a)
}

func (s *Server) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SetDefaultAddress(userID(r), chi.URLParam(r, "addressID")); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, nil)
}

func (s *Server) removeAddress(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveAddress(userID(r), chi.URLParam(r, "addressID")); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, nil)
}

// Orders

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShopID        string              `json:"shop_id"`
		PaymentMethod order.PaymentMethod `json:"payment_method"`
		AddressID     string              `json:"address_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	o, err := s.store.PlaceOrder(userID(r), req.ShopID, req.PaymentMethod, req.AddressID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "shop_id": o.ShopID}).Info("Order placed")
	respond(w, r, http.StatusCreated, o)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.store.Orders(userID(r)))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := UserFromContext(r.Context())
	d, err := s.store.OrderDetails(claims, chi.URLParam(r, "orderID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, d)
}

func (s *Server) listShopOrders(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.store.ShopOrders(chi.URLParam(r, "shopID")))
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	o, err := s.store.UpdateOrderStatus(chi.URLParam(r, "shopID"), chi.URLParam(r, "orderID"), to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "status": o.Status}).Info("Order status updated")
	respond(w, r, http.StatusOK, o)
}
