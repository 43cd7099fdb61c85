package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartqueue/token-service/internal/config"
	"smartqueue/token-service/internal/httpapi"
	"smartqueue/token-service/internal/notify"
	"smartqueue/token-service/internal/store/postgres"
	"smartqueue/token-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("token-service")

	loc := time.Local
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid TIMEZONE %q: %v", cfg.Timezone, err)
		}
		loc = parsed
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	tokenStore := postgres.NewStore(pool, postgres.Options{
		PhonePolicy: cfg.PhonePolicy,
		Location:    loc,
		SessionTTL:  cfg.SessionTTL,
	})
	if err := tokenStore.VerifyPhonePolicy(context.Background()); err != nil {
		log.Fatalf("phone policy check: %v", err)
	}
	handler := httpapi.NewHandler(tokenStore, httpapi.Options{
		Location: loc,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	routes := httpapi.AuthMiddleware(tokenStore, handler.Routes())
	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(routes)), "token-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("token-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	notifyCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	// Reads already sweep lazily; the ticker keeps expiry moving on idle
	// days so dashboards and events stay current without traffic.
	go func() {
		if cfg.SweepInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-notifyCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				count, err := tokenStore.ExpireTokens(ctx, time.Now().In(loc))
				cancel()
				if err != nil {
					log.Printf("expiry sweep error: %v", err)
					continue
				}
				if count > 0 {
					log.Printf("expiry sweep marked %d tokens", count)
				}
			}
		}
	}()

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer conn.Close()

		relay := notify.NewRelay(tokenStore, conn, notify.Config{
			SubjectPrefix: cfg.NATSSubjectPrefix,
			BatchSize:     cfg.NotifyBatchSize,
		})
		go notify.Start(notifyCtx, cfg.NotifyInterval, relay)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancelWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
