package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/invoice"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/payment"
	"github.com/xenking/food-checkout/internal/domain/zone"
	"github.com/xenking/food-checkout/internal/handler"
	"github.com/xenking/food-checkout/internal/jobs"
	"github.com/xenking/food-checkout/internal/notify"
	"github.com/xenking/food-checkout/pkg/health"
	"github.com/xenking/food-checkout/pkg/httpmiddleware"
)

const (
	serviceName  = "food-checkout"
	checkTimeout = 5 * time.Second
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(2*time.Second),
		health.FailureThreshold(5))

	// Storage.
	store, err := openBackend(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer store.Close()

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Notifications.
	publisher, closePublisher := newPublisher(lg, cfg)
	defer closePublisher()

	// Domain services.
	orderService, err := order.NewService(order.Config{
		TaxRateBPS:           cfg.Checkout.TaxRateBPS,
		Currency:             cfg.Checkout.Currency,
		LoyaltyPointsPerUnit: cfg.Checkout.LoyaltyPointsPerUnit,
	}, order.Deps{
		Orders:    store.orders,
		Carts:     store.carts,
		Resolver:  cart.NewResolver(store.carts, store.menu),
		Discounts: discount.NewRepoValidator(store.discounts),
		Zones:     zone.NewLocator(store.zones),
		Accounts:  store.accounts,
		Payments:  payment.NewSimulated(),
		Invoices:  invoice.NewService(store.invoices, cfg.PublicBaseURL),
		Publisher: publisher,
		Meter:     m.MeterProvider().Meter(serviceName),
		Tracer:    m.TracerProvider().Tracer(serviceName),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	defer orderService.Wait()

	// Background jobs.
	if cfg.StockSweep.Interval > 0 {
		sched, err := jobs.Start(ctx, cfg.StockSweep.Interval, jobs.NewStockSweep(store.stock, publisher))
		if err != nil {
			return errors.Wrap(err, "start jobs")
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				lg.Warn("Scheduler shutdown error", zap.Error(err))
			}
		}()
	}

	// HTTP handlers.
	h := handler.NewHandler(
		orderService,
		cart.NewService(store.carts, store.menu),
		auth.NewTokens([]byte(cfg.JWTSecret)),
		handler.NewSecurityHandler(store.apikeys, []byte(cfg.APIKeyPepper)),
	)

	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests())
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Mount(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type",
					"Authorization",
					handler.HeaderAPIKey,
					handler.HeaderIdempotencyKey,
					handler.HeaderSessionID,
					httpmiddleware.HeaderRequestID,
					httpmiddleware.HeaderCorrelationID,
				},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.KeyByHeaders(
					handler.HeaderAPIKey,
					"Authorization",
					handler.HeaderSessionID,
				),
			}),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// publisher is what the order service and the stock sweep notify through.
type publisher interface {
	order.Publisher
	notify.StockAlerter
}

// newPublisher fans events out to the log and to whichever of Kafka and SMTP
// are configured. The returned func flushes and closes the Kafka writer.
func newPublisher(lg *zap.Logger, cfg *Config) (publisher, func()) {
	multi := notify.Multi{notify.Log{}}
	closeFn := func() {}

	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...))
		multi = append(multi, kp)
		closeFn = func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}
		lg.Info("Publishing order events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	if cfg.SMTP.Host != "" {
		dialer := notify.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
		multi = append(multi, notify.NewMailer(notify.MailConfig{
			From:    cfg.SMTP.From,
			BaseURL: cfg.PublicBaseURL,
		}, dialer))
		lg.Info("Sending customer emails", zap.String("smtp_host", cfg.SMTP.Host))
	}
	return multi, closeFn
}
