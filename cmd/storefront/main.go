// storefront drives a signed-in session from the command line.
//
//	storefront [-token T] <command> [args]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/example/storefront-sync/internal/activity"
	"github.com/example/storefront-sync/internal/config"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/infrastructure/kafka"
	"github.com/example/storefront-sync/internal/logging"
	"github.com/example/storefront-sync/internal/session"
	"github.com/sirupsen/logrus"
)

const usage = `usage: storefront [-token T] <command> [args]

commands:
  cart                       show the cart
  add <product> [qty]        add a product (qty defaults to 1)
  update <item> <qty>        set a line's quantity
  remove <item>              remove a line
  clear                      empty the cart
  addresses                  list addresses
  default <address>          make an address the default
  place <shop|-> <method>    place an order (method: COD, CARD, UPI)
  orders                     list your orders
  order <id>                 show one order
  shop-orders                list your shop's orders (sellers)
  advance <order>            move a shop order to its next status
  cancel <order>             cancel a shop order
`

func main() {
	token := flag.String("token", "", "access token (overrides ACCESS_TOKEN)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logging.New(os.Getenv("LOG_LEVEL"))
	log.SetOutput(os.Stderr)
	cfg, err := config.LoadClient(log)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log = logging.New(cfg.LogLevel)
	log.SetOutput(os.Stderr)
	if *token != "" {
		cfg.AccessToken = *token
	}

	s, err := openSession(cfg, log)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer s.Close()

	if err := s.Initialize(ctx); err != nil {
		log.WithError(err).Warn("Some data could not be loaded")
	}

	if err := run(ctx, s, os.Stdout, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		s.Close()
		os.Exit(1)
	}
}

func openSession(cfg *config.Client, log *logrus.Logger) (*session.Session, error) {
	gw := gateway.NewHTTPGateway(cfg.GatewayBaseURL, cfg.AccessToken, cfg.GatewayTimeout, log)

	opts := []session.Option{session.WithLogger(log)}
	if cfg.SerializeMutations {
		opts = append(opts, session.WithSerializedMutations())
	}
	var publisher activity.Publisher = activity.Nop{}
	if cfg.ActivityEnabled() {
		publisher = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	opts = append(opts, session.WithPublisher(publisher))

	return session.New(gw, cfg.AccessToken, opts...)
}

func atoi(raw, what string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", what, raw)
	}
	return n, nil
}
