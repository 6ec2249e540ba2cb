package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"tezrelay/internal/outbox"
	"tezrelay/pkg/api/handlers"
	"tezrelay/pkg/auth"
	"tezrelay/pkg/config"
	"tezrelay/pkg/conversations"
	"tezrelay/pkg/federation"
	"tezrelay/pkg/identity"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/messaging"
	"tezrelay/pkg/state"
	"tezrelay/pkg/store"
)

// App encapsulates the relay components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	id     *identity.Identity
	client *federation.Client
	deps   handlers.Deps

	stopOutbox context.CancelFunc

	srv *http.Server
}

// New initializes resources that do not require a running context:
// config validation, logging, the store, the server identity and the
// service wiring. It does not start the pump or the HTTP server; call
// Run to start those and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	logger.Init(eff.Config.Logging.Level)
	if err := logger.AttachAuditFileSink(filepath.Join(eff.DataDir, "audit")); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	if err := state.EnsureStateDirs(eff.DataDir); err != nil {
		return nil, fmt.Errorf("failed to ensure state directories under %s: %w", eff.DataDir, err)
	}

	if err := store.Open(eff.DataDir); err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", eff.DataDir, err)
	}

	id, err := identity.LoadOrCreate(eff.DataDir, eff.Config.Server.RelayHost)
	if err != nil {
		return nil, fmt.Errorf("failed to load server identity: %w", err)
	}
	identity.SetCurrent(id)

	fed := eff.Config.Federation
	client := federation.NewClient(id, fed.ConnectTimeout.Duration(), fed.RequestTimeout.Duration())

	msg := &messaging.Service{Host: id.Host, Limits: eff.Config.Limits}
	deps := handlers.Deps{
		Cfg:       eff.Config,
		Identity:  id,
		Verifier:  auth.NewVerifier(eff.Config.Auth),
		Messaging: msg,
		Convs:     &conversations.Service{Messaging: msg},
		Inbox:     &federation.Inbox{Host: id.Host},
		Fed:       client,
	}
	handlers.Init(deps)

	return &App{eff: eff, version: version, commit: commit, buildDate: buildDate, id: id, client: client, deps: deps}, nil
}

// Run starts the outbound delivery pump and the HTTP server, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	stop, err := outbox.Start(ctx, a.client, a.eff.Config.Federation)
	if err != nil {
		return err
	}
	a.stopOutbox = stop

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			err = nil
		}
		a.shutdown()
		return err
	}
}

// shutdown drains the HTTP server, stops the pump and closes the store.
func (a *App) shutdown() {
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("http_shutdown_error", "error", err)
		}
	}
	if a.stopOutbox != nil {
		a.stopOutbox()
	}
	if err := store.Close(); err != nil {
		logger.Warn("store_close_error", "error", err)
	}
	logger.Info("relay_stopped", "host", a.id.Host)
}
