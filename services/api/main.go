package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/supportdesk/internal/auth"
	"github.com/supportdesk/internal/config"
	"github.com/supportdesk/internal/handler"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/presence"
	"github.com/supportdesk/internal/repository"
	"github.com/supportdesk/internal/repository/memory"
	"github.com/supportdesk/internal/service"
	"github.com/supportdesk/internal/startup"
	"github.com/supportdesk/internal/ws"
)

// userStore: всё, что разные слои требуют от хранилища пользователей.
type userStore interface {
	service.UserStore
	ws.PresenceStore
	startup.UserSeeder
	ClearSuspension(ctx context.Context, userID string) error
	ResetPresence(ctx context.Context) error
}

type stores struct {
	users         userStore
	conversations service.ConversationStore
	groups        service.GroupStore
	messages      service.MessageStore
	pins          service.PinStore
	notifications service.NotificationStore
	calls         service.CallStore
	orders        service.OrderStore
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		users:         repository.NewUserRepository(pool),
		conversations: repository.NewConversationRepository(pool),
		groups:        repository.NewGroupRepository(pool),
		messages:      repository.NewMessageRepository(pool),
		pins:          repository.NewPinnedRepository(pool),
		notifications: repository.NewNotificationRepository(pool),
		calls:         repository.NewCallRepository(pool),
		orders:        repository.NewOrderRepository(pool),
	}
}

func memoryStores() stores {
	messages := memory.NewMessageRepository()
	return stores{
		users:         memory.NewUserRepository(),
		conversations: memory.NewConversationRepository(),
		groups:        memory.NewGroupRepository(),
		messages:      messages,
		pins:          memory.NewPinRepository(messages),
		notifications: memory.NewNotificationRepository(),
		calls:         memory.NewCallRepository(),
		orders:        memory.NewOrderRepository(),
	}
}

func fatal(format string, args ...any) {
	logger.Errorf(format, args...)
	logger.Sync()
	os.Exit(1)
}

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	seed := flag.String("seed", "", "YAML file with users to create on start (see config/users.yaml)")
	flag.Parse()

	logger.Info("starting API service")
	cfg, err := config.Load()
	if err != nil {
		fatal("%v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()

	var st stores
	switch cfg.StorageDriver {
	case config.DriverMemory:
		if *migrate {
			logger.Info("memory storage driver: nothing to migrate")
			return
		}
		logger.Info("using in-memory storage (data is lost on restart)")
		st = memoryStores()
	default:
		if *dev {
			embeddedDB, err := startEmbeddedPostgres(cfg)
			if err != nil {
				fatal("embedded postgres: %v", err)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			fatal("parse db config: %v", err)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 4

		pool, err := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
		if err != nil {
			fatal("db connect: %v", err)
		}
		defer pool.Close()

		if err := startup.RunMigrations(context.Background(), pool); err != nil {
			fatal("migrations: %v", err)
		}
		if *migrate && !*dev {
			return
		}
		logger.Info("database connected, migrations applied")
		st = postgresStores(pool)
	}

	// Соединения прошлого запуска уже не существуют.
	resetCtx, resetCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.users.ResetPresence(resetCtx); err != nil {
		logger.Errorf("reset online status: %v", err)
	}
	resetCancel()

	kv, err := startup.ConnectStore(cfg.RedisURL, 60*time.Second)
	if err != nil {
		fatal("redis connect: %v", err)
	}
	defer kv.Close()

	gate := auth.NewGate(cfg.JWTSecret, st.users, kv)

	if *seed != "" {
		seedUsers(cfg, gate, st.users, *seed)
	}

	registry := presence.NewMemory()
	notifications := service.NewNotificationService(st.notifications, st.users, st.messages, st.calls, st.orders, registry)
	svc := ws.Services{
		Conversations: service.NewConversationService(st.conversations, st.messages, st.users, st.orders, notifications, registry),
		Groups:        service.NewGroupService(st.groups, st.messages, st.users, st.orders, notifications, registry),
		Messages:      service.NewMessageService(st.conversations, st.groups, st.messages, st.pins, registry),
		Notifications: notifications,
		Calls:         service.NewCallService(st.calls, st.groups, st.users, registry),
	}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(registry, st.users, svc, ws.Config{
		MaxConns:   cfg.WS.MaxConnections,
		EventRate:  rate.Limit(cfg.WS.EventsPerSecond),
		EventBurst: cfg.WS.EventBurst,
	})

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	router := handler.NewRouter(handler.Deps{
		Config:        cfg,
		Gate:          gate,
		Store:         kv,
		Hub:           hub,
		Conversations: svc.Conversations,
		Groups:        svc.Groups,
		Messages:      svc.Messages,
		Notifications: svc.Notifications,
		Calls:         svc.Calls,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// seedUsers создаёт пользователей из файла; вне production печатает для них токены на сутки.
func seedUsers(cfg *config.Config, gate *auth.Gate, users startup.UserSeeder, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ids, err := startup.SeedUsers(ctx, users, path)
	if err != nil {
		fatal("seed: %v", err)
	}
	if cfg.IsProduction() {
		return
	}
	for _, id := range ids {
		tok, err := gate.Issue(id, 24*time.Hour)
		if err != nil {
			logger.Errorf("seed: issue token for %s: %v", id, err)
			continue
		}
		u, _ := users.GetByID(ctx, id)
		role := model.Role("")
		if u != nil {
			role = u.Role
		}
		logger.Infof("seed: %s (%s) token: %s", id, role, tok)
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "support"
		password = "support_secret"
		database = "support"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
