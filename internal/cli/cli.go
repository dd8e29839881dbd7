// Package cli implements the layoutlab command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-layout/pkg/config"
	"github.com/dd0wney/cluso-layout/pkg/kernel"
	"github.com/dd0wney/cluso-layout/pkg/layout"
	"github.com/dd0wney/cluso-layout/pkg/logging"
	"github.com/dd0wney/cluso-layout/pkg/metrics"
	"github.com/dd0wney/cluso-layout/pkg/worker"
)

// CLI holds state shared by every subcommand
type CLI struct {
	out    io.Writer
	errOut io.Writer

	verbose    bool
	configPath string

	Config  config.Config
	Logger  logging.Logger
	Metrics *metrics.Registry
	Devices *kernel.Registry
}

// New creates a CLI writing results to out and logs to errOut
func New(out, errOut io.Writer) *CLI {
	return &CLI{
		out:     out,
		errOut:  errOut,
		Config:  config.Default(),
		Logger:  logging.NewNopLogger(),
		Metrics: metrics.NewRegistry(),
		Devices: kernel.NewRegistry(),
	}
}

// RootCommand builds the command tree
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "layoutlab",
		Short: "Run and compare force-directed layouts on every backend",
		Long: `layoutlab drives the layout manager from the command line.

It runs a layout on a generated graph, benchmarks the synchronous, worker
and kernel backends against each other, or watches a live run and re-runs
it whenever the config file changes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.benchCommand())
	root.AddCommand(c.watchCommand())
	return root
}

func (c *CLI) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.Config = cfg

	level := logging.ParseLevel(cfg.LogLevel)
	if c.verbose {
		level = logging.DebugLevel
	}
	c.Logger = logging.NewJSONLogger(c.errOut, level)
	if c.configPath != "" {
		c.Logger.Debug("config loaded", logging.Path(c.configPath))
	}
	return nil
}

// newPool starts a worker pool from the pool section of the config
func (c *CLI) newPool() (*worker.Pool, error) {
	pool, err := worker.NewPool(c.Config.Pool,
		worker.WithLogger(c.Logger.With(logging.Component("pool"))),
		worker.WithMetrics(c.Metrics))
	if err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}
	return pool, nil
}

// newManager builds a manager. A non-empty backend forces that backend
// for force layouts of any size.
func (c *CLI) newManager(pool *worker.Pool, drags layout.DragReader, backend string) (*layout.Manager, error) {
	mc, err := c.Config.ManagerConfig()
	if err != nil {
		return nil, err
	}
	if backend != "" {
		b, err := layout.ParseBackend(backend)
		if err != nil {
			return nil, err
		}
		if b == layout.Synchronous {
			mc.Threshold = math.MaxInt
		} else {
			mc.Threshold = 1
			mc.Concurrent = b
		}
	}

	return layout.NewManager(mc, layout.Deps{
		Pool:       pool,
		OpenDevice: c.Devices.OpenerFor(c.Config.Kernel.Device),
		Drags:      drags,
		Logger:     c.Logger.With(logging.Component("layout")),
		Metrics:    c.Metrics,
	}), nil
}

// serveMetrics exposes the registry on addr until the returned stop
// function is called
func (c *CLI) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Error("metrics server stopped", logging.Error(err))
		}
	}()
	c.Logger.Info("serving metrics", logging.String("addr", ln.Addr().String()))

	return func() { _ = srv.Close() }, nil
}
