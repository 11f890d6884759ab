package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/session"
)

var errUsage = errors.New("wrong arguments, run with -h for usage")

// run executes one command against an initialized session.
func run(ctx context.Context, s *session.Session, out io.Writer, args []string) error {
	cmd, args := args[0], args[1:]
	need := func(n int) error {
		if len(args) < n {
			return errUsage
		}
		return nil
	}

	switch cmd {
	case "cart":
		printCart(out, s.Cart.Cart())

	case "add":
		if err := need(1); err != nil {
			return err
		}
		qty := 1
		if len(args) > 1 {
			n, err := atoi(args[1], "quantity")
			if err != nil {
				return err
			}
			qty = n
		}
		if err := s.Cart.AddItem(ctx, args[0], qty); err != nil {
			return err
		}
		printCart(out, s.Cart.Cart())

	case "update":
		if err := need(2); err != nil {
			return err
		}
		qty, err := atoi(args[1], "quantity")
		if err != nil {
			return err
		}
		if err := s.Cart.UpdateItem(ctx, args[0], qty); err != nil {
			return err
		}
		printCart(out, s.Cart.Cart())

	case "remove":
		if err := need(1); err != nil {
			return err
		}
		if err := s.Cart.RemoveItem(ctx, args[0]); err != nil {
			return err
		}
		printCart(out, s.Cart.Cart())

	case "clear":
		if err := s.Cart.Clear(ctx); err != nil {
			return err
		}
		printCart(out, s.Cart.Cart())

	case "addresses":
		printAddresses(out, s.Addresses.Addresses())

	case "default":
		if err := need(1); err != nil {
			return err
		}
		if err := s.Addresses.SetDefault(ctx, args[0]); err != nil {
			return err
		}
		printAddresses(out, s.Addresses.Addresses())

	case "place":
		if err := need(2); err != nil {
			return err
		}
		shopID := args[0]
		if shopID == "-" {
			shopID = ""
		}
		method, err := order.ParsePaymentMethod(args[1])
		if err != nil {
			return err
		}
		res, err := s.Orders.PlaceOrder(ctx, shopID, method)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Placed order %s for %s (%s)\n", res.Order.ID, res.Order.TotalAmount.StringFixed(2), res.Order.PaymentMethod)
		for _, w := range res.Warnings {
			fmt.Fprintln(out, "warning:", apperr.Message(w, "refresh failed"))
		}

	case "orders":
		printOrders(out, s.Orders.State().Orders, order.BuyerStatus)

	case "order":
		if err := need(1); err != nil {
			return err
		}
		d, err := s.Orders.FetchOrderDetails(ctx, args[0])
		if err != nil {
			return err
		}
		printDetails(out, d)

	case "shop-orders":
		if !s.Claims.IsSeller() {
			return errors.New("only sellers have shop orders")
		}
		printOrders(out, s.Orders.State().ShopOrders, order.SellerLabel)

	case "advance", "cancel":
		if err := need(1); err != nil {
			return err
		}
		if !s.Claims.IsSeller() {
			return errors.New("only sellers can change order status")
		}
		transition := s.Orders.Advance
		if cmd == "cancel" {
			transition = s.Orders.Cancel
		}
		o, err := transition(ctx, s.Claims.ShopID, args[0])
		if err != nil && apperr.KindOf(err) != apperr.KindRefresh {
			return err
		}
		fmt.Fprintf(out, "Order %s is now %s\n", o.ID, order.SellerLabel(o.Status))

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func printCart(out io.Writer, c cart.Cart) {
	if c.IsEmpty() {
		fmt.Fprintln(out, "Cart is empty")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tPRODUCT\tQTY\tPRICE\tLINE")
	for _, item := range c.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			item.ID, item.Product.Name, item.Quantity,
			item.Product.Price().StringFixed(2), item.LineTotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t%d\t\t%s\n", c.Summary.ItemCount, c.Summary.Total.StringFixed(2))
	tw.Flush()
}

func printAddresses(out io.Writer, list []address.Address) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No saved addresses")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, a := range list {
		marker := ""
		if a.IsDefault {
			marker = "(default)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.FullName, a.Single(), marker)
	}
	tw.Flush()
}

func printOrders(out io.Writer, orders []order.Order, label func(order.Status) string) {
	if len(orders) == 0 {
		fmt.Fprintln(out, "No orders")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSHOP\tSTATUS\tITEMS\tTOTAL\tPLACED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			o.ID, o.ShopID, label(o.Status), o.ItemCount,
			o.TotalAmount.StringFixed(2), o.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func printDetails(out io.Writer, d order.Details) {
	fmt.Fprintf(out, "Order %s  %s  %s\n", d.Order.ID, order.BuyerStatus(d.Order.Status), d.Order.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "Deliver to: %s, %s\n", d.Address.FullName, d.Address.Single())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, item := range d.Items {
		fmt.Fprintf(tw, "  %s\t%d\tx %s\t%s\n", item.Name, item.Quantity,
			item.PriceAtTime.StringFixed(2), item.LineTotal().StringFixed(2))
	}
	tw.Flush()
	fmt.Fprintf(out, "Total %s, paid by %s (%s)\n", d.Order.TotalAmount.StringFixed(2), d.Payment.Method, d.Payment.Status)

	actions := order.ActionsFor(d.Order.Status)
	if actions.CanAdvance {
		fmt.Fprintf(out, "Seller next step: %s\n", actions.AdvanceLabel)
	}
}
