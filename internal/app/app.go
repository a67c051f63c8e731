package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/busfare/internal/authz"
	"github.com/aussiebroadwan/busfare/internal/payment"
	"github.com/aussiebroadwan/busfare/internal/scan"
	"github.com/aussiebroadwan/busfare/internal/session"
	"github.com/aussiebroadwan/busfare/internal/session/store/sqlite"
	"github.com/aussiebroadwan/busfare/pkg/cryptox"
	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/aussiebroadwan/busfare/pkg/poll"
	"github.com/aussiebroadwan/busfare/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the wired client: one session, one SDK client, and the
// components that sit on top of them.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store *sqlite.Store // nil in ephemeral mode

	Client   *faresdk.Client
	Session  *session.Service
	Authz    *authz.Authorizer
	Guard    *authz.Guard
	Payments *payment.Watcher
	Scanner  *scan.Bridge
}

// Options are the parts of New that callers other than main may swap out.
type Options struct {
	Logger *slog.Logger
	Camera scan.Camera
}

// New wires every component and restores the persisted session. It makes
// no network call.
func New(ctx context.Context, cfg Config, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slogx.New(slogx.Config{
			Service: "busfare",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	app := &Application{cfg: cfg, logger: logger}

	storage, err := app.initStorage()
	if err != nil {
		return nil, err
	}

	policy, err := authz.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		logger.Warn("page policy has problems", "error", err)
	}

	app.initClient()

	app.Session = session.NewService(app.Client, storage, logger)
	app.Session.LoginPath = policy.LoginPath
	app.Client.Tokens = app.Session
	app.Client.OnUnauthorized = app.Session.OnUnauthorized

	app.Authz = authz.New(policy)
	app.Guard = authz.NewGuard(app.Authz, app.Session)

	app.Payments = payment.NewWatcher(app.Client, payment.Config{
		Poll: poll.Config{
			Interval: cfg.PollInterval,
			Ceiling:  cfg.PollCeiling,
		},
		MinAmountCents: cfg.MinTopUpCents,
	}, logger)

	camera := opts.Camera
	if camera == nil {
		camera = scan.NewDirCamera(cfg.CameraDir)
	}
	app.Scanner = scan.NewBridge(camera, scan.QRDecoder{TryHarder: true}, logger)

	if err := app.Session.Restore(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	return app, nil
}

// Config returns the settings the application was built with.
func (app *Application) Config() Config { return app.cfg }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Close stops background work and closes the session store.
func (app *Application) Close() error {
	if app.Payments != nil {
		app.Payments.Stop()
	}
	if app.Scanner != nil {
		app.Scanner.Stop()
	}
	if app.store == nil {
		return nil
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}
	return nil
}

// initStorage opens the sealed SQLite session store and applies migrations,
// or returns an in-memory store in ephemeral mode.
func (app *Application) initStorage() (session.Storage, error) {
	if app.cfg.Ephemeral {
		app.logger.Debug("session kept in memory only")
		return session.NewMemoryStorage(), nil
	}

	if err := os.MkdirAll(filepath.Dir(app.cfg.StateFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	material, err := cryptox.LoadMasterKey(app.cfg.MasterKeyPath, MasterKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	sealer, err := cryptox.NewSealer(material)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sealer: %w", err)
	}

	st, err := sqlite.NewStore("file:"+app.cfg.StateFile, sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to apply session store migrations: %w", err)
	}
	app.store = st

	app.logger.Debug("session store ready", "path", app.cfg.StateFile)
	return st, nil
}

// initClient builds the SDK client with request logging.
func (app *Application) initClient() {
	app.Client = faresdk.NewClient(app.cfg.APIURL)
	app.Client.HTTPClient = &http.Client{
		Timeout:   app.cfg.HTTPTimeout,
		Transport: slogx.NewTransport(http.DefaultTransport, app.logger),
	}
}
