package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/storefront/checkout/internal/config"
	httpDelivery "github.com/storefront/checkout/internal/delivery/http"
	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/messaging/kafka"
	"github.com/storefront/checkout/internal/payfast"
	"github.com/storefront/checkout/internal/pricing"
	"github.com/storefront/checkout/internal/repository/postgres"
	redisRepo "github.com/storefront/checkout/internal/repository/redis"
	"github.com/storefront/checkout/internal/service"
)

func main() {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	cfg := config.Load()

	// --- Database ---
	db, err := postgres.InitDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to init database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	catalog := postgres.NewCatalogStore(db)
	coupons := postgres.NewCouponStore(db)
	orders := postgres.NewOrderStore(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := catalog.Seed(ctx, seedProducts()); err != nil {
		slog.Error("Failed to seed products", "err", err)
		os.Exit(1)
	}
	if err := coupons.Seed(ctx, seedCoupons()); err != nil {
		slog.Error("Failed to seed coupons", "err", err)
		os.Exit(1)
	}

	// --- Redis (cart store) ---
	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	carts := redisRepo.NewCartStore(redisClient)

	// --- Kafka ---
	broker := kafka.NewKafkaBroker(cfg.KafkaBrokers)
	defer broker.Close()

	// --- Services ---
	pricer := pricing.New(cfg.Pricing)
	payments := payfast.NewBuilder(cfg.PayFast)
	checkoutSvc := service.NewCheckoutService(catalog, coupons, orders, carts, broker, pricer)
	reconcileSvc := service.NewReconcileService(orders, broker, cfg.PayFast.Passphrase, cfg.AmountTolerance)

	// --- HTTP API ---
	handler := httpDelivery.NewHandler(checkoutSvc, reconcileSvc, catalog, orders, payments)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpDelivery.EnableCORS(mux),
	}

	go func() {
		slog.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}
}

func seedProducts() []entity.Product {
	return []entity.Product{
		{ID: "prod-001", Name: "Wireless Noise-Cancelling Headphones", Description: "Premium over-ear headphones with active noise cancellation and 30-hour battery life.", Price: decimal.RequireFromString("349.99"), ImageURL: "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=400", Category: "Electronics", Stock: 50},
		{ID: "prod-002", Name: "Mechanical Keyboard RGB", Description: "Cherry MX switches with per-key RGB lighting and aluminum frame.", Price: decimal.RequireFromString("179.99"), ImageURL: "https://images.unsplash.com/photo-1618384887929-16ec33fab9ef?w=400", Category: "Electronics", Stock: 120},
		{ID: "prod-003", Name: "Ultrawide Curved Monitor 34\"", Description: "UWQHD 3440x1440 144Hz IPS panel with USB-C connectivity.", Price: decimal.RequireFromString("699.99"), ImageURL: "https://images.unsplash.com/photo-1527443224154-c4a3942d3acf?w=400", Category: "Electronics", Stock: 30},
		{ID: "prod-004", Name: "Ergonomic Office Chair", Description: "Adjustable lumbar support, breathable mesh, and 4D armrests.", Price: decimal.RequireFromString("549.99"), ImageURL: "https://images.unsplash.com/photo-1592078615290-033ee584e267?w=400", Category: "Furniture", Stock: 25},
		{ID: "prod-005", Name: "Smart LED Desk Lamp", Description: "Adjustable color temperature, brightness levels, and USB charging port.", Price: decimal.RequireFromString("89.99"), ImageURL: "https://images.unsplash.com/photo-1507473885765-e6ed057ab6fe?w=400", Category: "Home", Stock: 200},
		{ID: "prod-006", Name: "Premium Laptop Backpack", Description: "Water-resistant 17\" laptop compartment with anti-theft design.", Price: decimal.RequireFromString("129.99"), ImageURL: "https://images.unsplash.com/photo-1553062407-98eeb64c6a62?w=400", Category: "Accessories", Stock: 80},
	}
}

func seedCoupons() []entity.Coupon {
	hundredUses := 100
	return []entity.Coupon{
		{ID: uuid.New().String(), Code: "SAVE10", Kind: entity.CouponPercent, Value: decimal.NewFromInt(10), IsActive: true, MinSubtotal: decimal.Zero},
		{ID: uuid.New().String(), Code: "WELCOME50", Kind: entity.CouponFixed, Value: decimal.NewFromInt(50), IsActive: true, MinSubtotal: decimal.NewFromInt(200), UsageLimit: &hundredUses},
	}
}
