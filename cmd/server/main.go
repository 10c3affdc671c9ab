package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storage-backend/internal/auth"
	"storage-backend/internal/cache"
	"storage-backend/internal/config"
	"storage-backend/internal/database"
	"storage-backend/internal/db"
	h "storage-backend/internal/http"
	"storage-backend/internal/handlers"
	"storage-backend/internal/health"
	"storage-backend/internal/middleware"
	"storage-backend/internal/models"
	"storage-backend/internal/notify"
	"storage-backend/internal/repositories"
	"storage-backend/internal/services"
	"storage-backend/internal/sms"
	"storage-backend/internal/sqlitestore"
	"storage-backend/internal/store"
	"storage-backend/internal/timeutil"
	"storage-backend/internal/whatsapp"
	"storage-backend/migrations"

	"golang.org/x/sync/errgroup"
)

func main() {
	mode := flag.String("mode", "server", "server, worker, drain, migrate, seed or token")
	port := flag.Int("port", 0, "Server port (overrides config)")
	role := flag.String("role", auth.RoleAdmin, "token mode: role to issue")
	userID := flag.Int64("user", 1, "token mode: user id")
	customerID := flag.Int64("customer", 0, "token mode: customer id")
	flag.Parse()

	cfg := config.Load()
	if *port != 0 {
		cfg.Server.Port = *port
	}
	timeutil.SetZone(cfg.Timezone)

	if *mode == "token" {
		token, err := auth.NewJWTManager(cfg).GenerateToken(auth.Principal{UserID: *userID, Role: *role, CustomerID: *customerID})
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	switch *mode {
	case "migrate":
		log.Println("Migrations applied")
		return
	case "seed":
		if err := seed(ctx, st); err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
		return
	}

	dispatcher, closeDispatcher, err := buildDispatcher(cfg)
	if err != nil {
		log.Fatalf("Failed to configure notifications: %v", err)
	}
	defer closeDispatcher()

	n := cfg.Notifications
	worker := services.NewNotificationWorker(st, dispatcher, services.WorkerConfig{
		Concurrency:     n.Concurrency,
		DispatchTimeout: n.DispatchTimeout,
		Lease:           n.Lease,
		BackoffBase:     n.BackoffBase,
		BackoffMax:      n.BackoffMax,
	})

	switch *mode {
	case "drain":
		summary, err := worker.Drain(ctx, n.BatchSize, n.MaxAttempts)
		if err != nil {
			log.Fatalf("Drain failed: %v", err)
		}
		json.NewEncoder(os.Stdout).Encode(summary)
	case "worker":
		worker.Run(ctx, n.Interval, n.BatchSize, n.MaxAttempts)
	case "server":
		if err := runServer(ctx, cfg, st, worker); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	default:
		log.Fatalf("Unknown mode %q", *mode)
	}
}

// openStore connects to the configured backend and brings its schema up to date
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlitestore.New(ctx, conn)
	default:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.NewMigrator(pool, migrations.FS).RunMigrations(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return repositories.NewPostgresStore(pool), nil
	}
}

func buildDispatcher(cfg *config.Config) (notify.Dispatcher, func(), error) {
	noop := func() {}

	switch cfg.Notifications.Channel {
	case "kafka":
		d, err := notify.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, noop, err
		}
		return d, func() { d.Close() }, nil
	case "sms", "whatsapp":
		d := &notify.MessagingDispatcher{}
		if cfg.SMS.APIKey != "" {
			d.SMS = sms.NewFast2SMSService(cfg.SMS.APIKey, sms.Config{
				Route:    cfg.SMS.Route,
				SenderID: cfg.SMS.SenderID,
				BaseURL:  cfg.SMS.BaseURL,
			})
		} else {
			log.Println("[Notify] No SMS API key configured, using mock SMS")
			d.SMS = sms.NewMockSMSService()
		}
		if cfg.Notifications.Channel == "whatsapp" {
			wa, err := whatsapp.NewProvider(whatsapp.Config{
				Provider: cfg.WhatsApp.Provider,
				APIKey:   cfg.WhatsApp.APIKey,
				BaseURL:  cfg.WhatsApp.BaseURL,
			})
			if err != nil {
				return nil, noop, err
			}
			d.WhatsApp = wa
		}
		return d, noop, nil
	default:
		return notify.LogDispatcher{}, noop, nil
	}
}

func runServer(ctx context.Context, cfg *config.Config, st store.Store, worker *services.NotificationWorker) error {
	var cachePinger health.Pinger
	if cfg.Redis.Addr != "" {
		if err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.StateTTL); err != nil {
			log.Printf("[Cache] Redis unavailable, serving without cache: %v", err)
		} else {
			cachePinger = health.PingFunc(cache.Ping)
			defer cache.Close()
		}
	}

	n := cfg.Notifications
	router := h.NewRouter(h.Handlers{
		Transition:   handlers.NewTransitionHandler(services.NewTransitionService(st, cfg.Transition.Timeout, cfg.Transition.MinRejectionReason)),
		Workflow:     handlers.NewWorkflowHandler(services.NewWorkflowService(st)),
		Ledger:       handlers.NewLedgerHandler(services.NewLedgerService(st)),
		Notification: handlers.NewNotificationHandler(worker, n.BatchSize, n.MaxAttempts),
		Health:       handlers.NewHealthHandler(health.NewHealthChecker(st, cachePinger)),
	}, middleware.NewAuthMiddleware(auth.NewJWTManager(cfg)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           middleware.NewCORS(cfg)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Println("Shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})
	if n.WorkerEnabled {
		g.Go(func() error {
			worker.Run(gctx, n.Interval, n.BatchSize, n.MaxAttempts)
			return nil
		})
	}
	return g.Wait()
}

// seed loads demo data into an embedded database
func seed(ctx context.Context, st store.Store) error {
	s, ok := st.(*sqlitestore.Store)
	if !ok {
		return errors.New("seed mode needs database.driver=sqlite")
	}

	c := &models.Customer{Name: "Demo Customer", Phone: "9876543210", Email: "demo@example.com"}
	if err := s.InsertCustomer(ctx, c); err != nil {
		return err
	}
	for _, l := range []*models.Location{
		{Name: "Bay A", Capacity: 100, Occupied: 90},
		{Name: "Bay B", Capacity: 50},
		{Name: "Bay C", Capacity: 200},
	} {
		if err := s.InsertLocation(ctx, l); err != nil {
			return err
		}
	}
	for i, qty := range []int64{40, 75} {
		r := &models.StorageRequest{
			ReferenceCode:     fmt.Sprintf("SR-DEMO-%d", i+1),
			CustomerID:        c.ID,
			Status:            models.RequestStatusPending,
			RequestedQuantity: qty,
		}
		if err := s.InsertStorageRequest(ctx, r); err != nil {
			return err
		}
	}
	log.Println("Seeded 1 customer, 3 locations and 2 pending requests")
	return nil
}
