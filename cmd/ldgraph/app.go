package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/c360studio/ldgraph/access"
	"github.com/c360studio/ldgraph/config"
	"github.com/c360studio/ldgraph/httpapi"
	"github.com/c360studio/ldgraph/service"
	"github.com/c360studio/ldgraph/storage"
	"github.com/c360studio/ldgraph/tracking"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mongoClient *mongo.Client
	natsConn    *nats.Conn
	server      *http.Server
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start connects to the backing services, wires the resource service,
// and begins serving HTTP.
func (a *App) Start(ctx context.Context) error {
	client, err := a.connectMongo(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = client
	db := client.Database(a.cfg.Mongo.Database)

	tracker, err := a.startTracking()
	if err != nil {
		return err
	}

	var decider access.Decider
	if a.cfg.Access.BaseURL != "" {
		policy := access.PolicyDeny
		if a.cfg.Access.UnreachablePolicy == "fail" {
			policy = access.PolicyFail
		}
		decider = access.NewClient(a.cfg.Access.BaseURL, policy, a.cfg.Access.Timeout, a.logger)
		a.logger.Info("Access control collaborator configured",
			"base_url", a.cfg.Access.BaseURL,
			"unreachable_policy", a.cfg.Access.UnreachablePolicy)
	}

	engine := storage.NewEngine(db, a.logger)
	svc := service.New(engine, service.Options{
		Access:      decider,
		Tracker:     tracker,
		CheckAccess: a.cfg.Server.CheckAccess,
		Logger:      a.logger,
	})

	handler := httpapi.NewHandler(svc, a.cfg.Server.Tenant, a.cfg.Server.PublicHost, a.logger)
	mux := http.NewServeMux()
	handler.RegisterHTTPHandlers(mux)

	a.server = &http.Server{
		Addr:    a.cfg.ListenAddr(),
		Handler: mux,
	}

	go func() {
		a.logger.Info("HTTP server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", "error", err)
		}
	}()

	return nil
}

func (a *App) connectMongo(ctx context.Context) (*mongo.Client, error) {
	a.logger.Info("Connecting to MongoDB", "uri", a.cfg.Mongo.URI)
	client, err := mongo.Connect(options.Client().ApplyURI(a.cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB unreachable at %s: %w", a.cfg.Mongo.URI, err)
	}
	return client, nil
}

func (a *App) startTracking() (tracking.Tracker, error) {
	if !a.cfg.Tracking.Enabled {
		return nil, nil
	}
	a.logger.Info("Connecting to NATS", "url", a.cfg.Tracking.URL)
	conn, err := nats.Connect(a.cfg.Tracking.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	a.natsConn = conn
	return tracking.NewPublisher(conn, a.cfg.Tracking.SubjectPrefix, a.logger), nil
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("HTTP server shutdown failed", "error", err)
		}
	}

	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.logger.Error("NATS drain failed", "error", err)
		}
		a.natsConn.Close()
	}

	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			a.logger.Error("MongoDB disconnect failed", "error", err)
		}
	}
}
