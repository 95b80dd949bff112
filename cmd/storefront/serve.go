package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/events"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/gateway"
	storefrontHttp "github.com/vasiliy-maslov/ecommerce-storefront/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/memstore"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pagecache"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		memory   bool
		seedPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if memory {
				cfg.App.Storage = config.StorageMemory
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, seedPath)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep all data in process memory instead of Postgres")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML catalog seed loaded at startup")
	return cmd
}

// storage is the persistence backend the services share.
type storage struct {
	tx      db.TxRunner
	catalog catalog.RepositoryFactory
	carts   cart.RepositoryFactory
	orders  order.RepositoryFactory
	prices  cart.PriceReaderFactory
	close   func()
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.App.Storage == config.StorageMemory {
		store := memstore.New()
		log.Warn().Msg("Using in-memory storage, data is lost on exit")
		return &storage{
			tx:      store,
			catalog: store.Catalog,
			carts:   store.Carts,
			orders:  store.Orders,
			prices:  store.Prices,
			close:   func() {},
		}, nil
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	return &storage{
		tx:      pg,
		catalog: catalog.NewRepository,
		carts:   cart.NewRepository,
		orders:  order.NewRepository,
		prices:  cart.CatalogPrices,
		close:   pg.Close,
	}, nil
}

func openPageCache(ctx context.Context, cfg config.RedisConfig) (pagecache.Cache, func(), error) {
	if cfg.Addr == "" {
		log.Info().Msg("REDIS_ADDR not set, page cache disabled")
		return pagecache.Noop{}, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info().Str("addr", cfg.Addr).Dur("ttl", cfg.PagesTTL).Msg("Connected to Redis page cache")

	return pagecache.NewRedisCache(client, cfg.PagesTTL), func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}, nil
}

func openPublisher(cfg config.KafkaConfig) events.Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info().Msg("KAFKA_BROKERS not set, order events disabled")
		return events.Noop{}
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Publishing order events to Kafka")
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

func serve(ctx context.Context, cfg *config.Config, seedPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("storage", cfg.App.Storage).Msg("Starting storefront...")

	router, cleanup, err := buildRouter(ctx, cfg, seedPath)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", cfg.App.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		log.Info().Msg("HTTP server stopped.")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Storefront stopped gracefully.")
	return nil
}

// buildRouter wires every service behind the HTTP routes. The returned func
// releases the connections it opened, in reverse order.
func buildRouter(ctx context.Context, cfg *config.Config, seedPath string) (_ http.Handler, _ func(), err error) {
	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	taxRate, err := cfg.Pricing.Rate()
	if err != nil {
		return nil, nil, err
	}
	policy := cart.Policy{
		TaxRate:  taxRate,
		Shipping: pricing.FlatRate{Amount: cfg.Pricing.ShippingFlat, FreeOver: cfg.Pricing.FreeShippingOver},
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, store.close)

	pages, closePages, err := openPageCache(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closePages)

	publisher := openPublisher(cfg.Kafka)
	closers = append(closers, func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	})

	gw := gateway.NewRazorpayClient(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.Timeout)
	signer := gateway.NewSigner(cfg.Payment.KeySecret, cfg.Payment.WebhookSecret)

	catalogSvc := catalog.NewService(store.tx, store.catalog, pages)
	if err := seedStore(ctx, catalogSvc, seedPath); err != nil {
		return nil, nil, err
	}
	cartSvc := cart.NewService(store.tx, store.carts, store.prices, policy)
	orderSvc := order.NewService(store.tx, store.orders, store.carts, store.prices, gw, order.Settings{
		Policy:   policy,
		Currency: cfg.Pricing.Currency,
		KeyID:    cfg.Payment.KeyID,
	})
	reconciler := payment.NewReconciler(store.tx, store.orders, store.carts, store.prices, policy, pages, publisher)
	paymentSvc := payment.NewService(signer, gw, reconciler)

	router := newRouter(cfg.App)
	storefrontHttp.NewCatalogHandler(catalogSvc, pages).RegisterRoutes(router)
	storefrontHttp.NewCartHandler(cartSvc).RegisterRoutes(router)
	storefrontHttp.NewOrderHandler(orderSvc).RegisterRoutes(router)
	storefrontHttp.NewPaymentHandler(paymentSvc, cfg.App.Debug).RegisterRoutes(router)

	return router, release, nil
}

func newRouter(cfg config.AppConfig) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(hlog.NewHandler(log.Logger))
	router.Use(requestIDLogger)
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if cfg.Debug {
		log.Debug().Msg("Debug mode: payment errors are returned to clients")
	}
	return router
}

// requestIDLogger adds chi's request id to the request logger.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
