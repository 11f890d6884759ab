package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront-sync/internal/auth"
	"github.com/example/storefront-sync/internal/config"
	"github.com/example/storefront-sync/internal/devserver"
	"github.com/example/storefront-sync/internal/logging"
)

func main() {
	log := logging.New(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadDevServer(log)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log = logging.New(cfg.LogLevel)

	hasher, err := auth.NewHasher(cfg.PasswordHashCost)
	if err != nil {
		log.Fatalf("Invalid PASSWORD_HASH_COST: %v", err)
	}
	store := devserver.NewStore(devserver.WithHasher(hasher))
	if err := devserver.Seed(store); err != nil {
		log.Fatalf("Failed to seed store: %v", err)
	}
	log.WithField("products", len(store.Products())).Info("Seeded demo catalogue")

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenExpiry)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           devserver.NewServer(store, jwtService, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Dev backend listening on %s", cfg.Addr)
		log.Infof("Buyer login: %s / %s", devserver.BuyerEmail, devserver.BuyerPassword)
		log.Infof("Seller login: %s / %s (shop %s)", devserver.SellerEmail, devserver.SellerPassword, devserver.SellerShopID)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Shutdown did not complete cleanly")
	}
}
