package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-layout/pkg/config"
	"github.com/dd0wney/cluso-layout/pkg/graphstate"
	"github.com/dd0wney/cluso-layout/pkg/layout"
	"github.com/dd0wney/cluso-layout/pkg/logging"
	"github.com/dd0wney/cluso-layout/pkg/worker"
)

const watchRefresh = 100 * time.Millisecond

var (
	watchTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	watchBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginLeft(2)

	watchErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	watchHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type watchOptions struct {
	nodes        int
	edgesPerNode int
	seed         uint64
}

type (
	batchMsg  layout.Batch
	reloadMsg struct {
		cfg config.Config
		err error
	}
	runDoneMsg struct {
		gen uint64
		res layout.Result
		err error
	}
	refreshMsg time.Time
)

// watchModel is the bubbletea model of the watch command
type watchModel struct {
	ctx     context.Context
	cfg     config.Config
	opts    watchOptions
	manager *layout.Manager
	pool    *worker.Pool
	store   *graphstate.Store
	batches <-chan layout.Batch
	reloads <-chan reloadMsg

	spinner  spinner.Model
	progress progress.Model

	calculating bool
	generation  uint64
	backend     layout.Backend
	iteration   int
	alpha       float64
	utilization float64
	lastRun     time.Duration
	reloadCount int
	pinned      bool
	err         error
}

func (c *CLI) watchCommand() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a live layout and re-run it when the config changes",
		Long: `Start a layout on a generated graph and show its progress live: a spinner
while the manager is calculating, the iteration against the configured cap
and the worker pool utilization.

When --config is set, saving the file re-runs the layout with the new
settings. Press p to pin the first node to the layout center, r to re-run
and q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.nodes, "nodes", "n", 300, "number of nodes")
	cmd.Flags().IntVarP(&opts.edgesPerNode, "edges-per-node", "k", 2, "average edges per node")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "graph generator seed")

	return cmd
}

func (c *CLI) runWatch(ctx context.Context, opts watchOptions) error {
	// The TUI owns the terminal, so logs are dropped below WARN
	if !c.verbose {
		c.Logger.SetLevel(logging.WarnLevel)
	}

	pool, err := c.newPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	store := graphstate.NewStore(graphstate.WithLogger(c.Logger))
	mgr, err := c.newManager(pool, store, "")
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := mgr.Subscribe(ctx)
	if err != nil {
		return err
	}

	reloads := make(chan reloadMsg, 1)
	if c.configPath != "" {
		go func() {
			err := config.Watch(ctx, c.configPath, func(cfg config.Config, err error) {
				select {
				case reloads <- reloadMsg{cfg: cfg, err: err}:
				case <-ctx.Done():
				}
			})
			if err != nil {
				c.Logger.Error("config watch stopped", logging.Path(c.configPath), logging.Error(err))
			}
		}()
	}

	m := newWatchModel(ctx, c.Config, opts, mgr, pool, store, sub.Channel(), reloads)
	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newWatchModel(ctx context.Context, cfg config.Config, opts watchOptions, mgr *layout.Manager, pool *worker.Pool, store *graphstate.Store, batches <-chan layout.Batch, reloads <-chan reloadMsg) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF"))

	return watchModel{
		ctx:      ctx,
		cfg:      cfg,
		opts:     opts,
		manager:  mgr,
		pool:     pool,
		store:    store,
		batches:  batches,
		reloads:  reloads,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startLayout(),
		waitBatch(m.batches),
		waitReload(m.reloads),
		refreshCmd(),
	)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.startLayout()
		case "p":
			m.togglePin()
			return m, m.startLayout()
		}

	case batchMsg:
		b := layout.Batch(msg)
		if m.store.ApplyBatch(b) {
			m.generation = b.Generation
			m.backend = b.Backend
			m.iteration = b.Iteration
			m.alpha = b.Alpha
		}
		return m, waitBatch(m.batches)

	case reloadMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, waitReload(m.reloads)
		}
		m.cfg = msg.cfg
		m.reloadCount++
		m.err = nil
		return m, tea.Batch(m.startLayout(), waitReload(m.reloads))

	case runDoneMsg:
		if msg.gen != m.manager.Generation() {
			return m, nil
		}
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		} else if msg.err == nil {
			m.lastRun = msg.res.Duration
			m.backend = msg.res.Backend
			m.iteration = msg.res.Iterations
		}
		return m, nil

	case refreshMsg:
		m.calculating = m.manager.IsCalculating()
		m.utilization = m.pool.Utilization()
		return m, refreshCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// togglePin drags the first node to the layout center or releases it
func (m *watchModel) togglePin() {
	const id = "n0"
	if m.pinned {
		m.store.Unpin(id)
	} else {
		m.store.PinAt(id, m.cfg.Force.Center)
	}
	m.pinned = !m.pinned
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("layoutlab watch"))
	b.WriteString("\n")

	var body strings.Builder
	status := "settled"
	if m.calculating {
		status = m.spinner.View() + " calculating"
	}
	fmt.Fprintf(&body, "%s\n\n", status)
	fmt.Fprintf(&body, "generation  %d\n", m.generation)
	fmt.Fprintf(&body, "type        %s\n", m.cfg.Layout.Type)
	fmt.Fprintf(&body, "backend     %s\n", m.backend)
	fmt.Fprintf(&body, "nodes       %d\n", m.opts.nodes)
	fmt.Fprintf(&body, "alpha       %.4f\n", m.alpha)
	fmt.Fprintf(&body, "iteration   %d / %d\n", m.iteration, m.cfg.Force.Iterations)
	body.WriteString(m.progress.ViewAs(iterationFraction(m.iteration, m.cfg.Force.Iterations)))
	body.WriteString("\n\n")
	fmt.Fprintf(&body, "pool        %.0f%% busy\n", m.utilization)
	if m.lastRun > 0 {
		fmt.Fprintf(&body, "last run    %s\n", m.lastRun.Round(time.Millisecond))
	}
	if m.reloadCount > 0 {
		fmt.Fprintf(&body, "reloads     %d\n", m.reloadCount)
	}
	if m.pinned {
		body.WriteString("n0 pinned to center\n")
	}
	if m.err != nil {
		body.WriteString(watchErrorStyle.Render(m.err.Error()))
		body.WriteString("\n")
	}

	b.WriteString(watchBoxStyle.Render(strings.TrimRight(body.String(), "\n")))
	b.WriteString("\n")
	b.WriteString(watchHelpStyle.Render("p pin n0 • r re-run • q quit"))
	b.WriteString("\n")
	return b.String()
}

// startLayout runs the current config on its own goroutine. The sync
// backend blocks inside Layout, so it cannot run on the update loop.
func (m watchModel) startLayout() tea.Cmd {
	mgr := m.manager
	ctx := m.ctx
	nodes, edges := randomGraph(m.opts.nodes, m.opts.edgesPerNode, m.opts.seed)
	req := layout.Request{
		Type:   m.cfg.Layout.Type,
		Nodes:  nodes,
		Edges:  edges,
		Config: m.cfg.Force,
	}
	return func() tea.Msg {
		run, err := mgr.Layout(ctx, req)
		if err != nil {
			return runDoneMsg{gen: mgr.Generation(), err: err}
		}
		res, err := run.Wait(ctx)
		return runDoneMsg{gen: run.Generation(), res: res, err: err}
	}
}

func waitBatch(ch <-chan layout.Batch) tea.Cmd {
	return func() tea.Msg {
		b, ok := <-ch
		if !ok {
			return nil
		}
		return batchMsg(b)
	}
}

func waitReload(ch <-chan reloadMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func refreshCmd() tea.Cmd {
	return tea.Tick(watchRefresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func iterationFraction(iteration, limit int) float64 {
	if limit <= 0 {
		return 1
	}
	return min(float64(iteration)/float64(limit), 1)
}
