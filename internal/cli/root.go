// Package cli is the busfare terminal client. Each subcommand stands for a
// page of the fare system and is checked against the page policy before it
// runs.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aussiebroadwan/busfare/internal/app"
	"github.com/aussiebroadwan/busfare/pkg/slogx"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile    string
	apiURL     string
	stateFile  string
	ephemeral  bool
	policyFile string
	cameraDir  string
	logLevel   string
}

// CLI carries what the subcommands share: flags, I/O and the lazily built
// application.
type CLI struct {
	opts rootOptions

	in  io.Reader
	out io.Writer
	err io.Writer

	app *app.Application
	// appOptions is passed to app.New; tests inject cameras and loggers.
	appOptions app.Options
}

// Execute runs the command line in args against the process's standard
// streams.
func Execute(ctx context.Context, args []string) error {
	c := &CLI{in: os.Stdin, out: os.Stdout, err: os.Stderr}
	return c.execute(ctx, args...)
}

func (c *CLI) execute(ctx context.Context, args ...string) error {
	root := newRootCmd(c)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(c *CLI) *cobra.Command {
	root := &cobra.Command{
		Use:           "busfare",
		Short:         "Terminal client for the municipal bus-fare system",
		Version:       app.BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.err)

	f := root.PersistentFlags()
	f.StringVar(&c.opts.envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	f.StringVar(&c.opts.apiURL, "api-url", "", "Backend base URL (overrides BUSFARE_API_URL)")
	f.StringVar(&c.opts.stateFile, "state-file", "", "Session database (overrides BUSFARE_STATE_FILE)")
	f.BoolVar(&c.opts.ephemeral, "ephemeral", false, "Keep the session in memory for this run only")
	f.StringVar(&c.opts.policyFile, "policy", "", "Page policy YAML (overrides BUSFARE_POLICY_FILE)")
	f.StringVar(&c.opts.cameraDir, "camera-dir", "", "Frame directory used as camera (overrides BUSFARE_CAMERA_DIR)")
	f.StringVar(&c.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newOpenCmd(c),
		newTopUpCmd(c),
		newWalletCmd(c),
		newBoardCmd(c),
		newListCmd(c),
		newElderlyCmd(c),
		newReportCmd(c),
		newPolicyCmd(c),
	)
	return root
}

// config resolves environment, .env file and flags, flags winning.
func (c *CLI) config() (app.Config, error) {
	if c.opts.envFile != "" {
		if err := app.LoadDotEnv(c.opts.envFile); err != nil {
			return app.Config{}, err
		}
	}

	cfg := app.LoadConfig()
	if c.opts.apiURL != "" {
		cfg.APIURL = c.opts.apiURL
	}
	if c.opts.stateFile != "" {
		cfg.StateFile = c.opts.stateFile
		if os.Getenv("BUSFARE_MASTER_KEY_PATH") == "" {
			cfg.MasterKeyPath = c.opts.stateFile + ".key"
		}
	}
	if c.opts.ephemeral {
		cfg.Ephemeral = true
	}
	if c.opts.policyFile != "" {
		cfg.PolicyFile = c.opts.policyFile
	}
	if c.opts.cameraDir != "" {
		cfg.CameraDir = c.opts.cameraDir
	}
	if c.opts.logLevel != "" {
		cfg.LogLevel = c.opts.logLevel
	}
	return cfg, nil
}

// application builds the app on first use.
func (c *CLI) application(ctx context.Context) (*app.Application, error) {
	if c.app != nil {
		return c.app, nil
	}

	cfg, err := c.config()
	if err != nil {
		return nil, err
	}

	opts := c.appOptions
	if opts.Logger == nil {
		opts.Logger = slogx.New(slogx.Config{
			Service: "busfare",
			Version: app.BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  c.err,
		})
	}

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	a.Session.Navigate = func(_ context.Context, path string) {
		fmt.Fprintf(c.err, "Your session is no longer valid. Run `busfare login` to continue (%s).\n", path)
	}

	c.app = a
	return a, nil
}

// page builds the app and checks that the current session may open path.
func (c *CLI) page(ctx context.Context, path string) (*app.Application, error) {
	a, err := c.application(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.Guard.Require(ctx, path); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *CLI) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
