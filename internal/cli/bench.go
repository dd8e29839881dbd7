package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/dd0wney/cluso-layout/pkg/layout"
	"github.com/dd0wney/cluso-layout/pkg/worker"
)

var (
	benchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF")).Padding(0, 1)
	benchCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	benchFastStyle   = benchCellStyle.Foreground(lipgloss.Color("#00FF00"))
	benchWarnStyle   = benchCellStyle.Foreground(lipgloss.Color("#FFFF00"))
)

var benchBackends = []layout.Backend{layout.Synchronous, layout.WorkerPool, layout.GpuKernel}

type benchOptions struct {
	sizes        []int
	repeat       int
	edgesPerNode int
	seed         uint64
}

// benchStats summarizes the wall-clock samples of one backend at one size
type benchStats struct {
	Nodes     int
	Requested layout.Backend
	Ran       layout.Backend
	Mean      time.Duration
	StdDev    time.Duration
	P95       time.Duration
	Speedup   float64
}

func (c *CLI) benchCommand() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare the synchronous, worker and kernel backends",
		Long: `Run the same generated graphs through every backend and report the mean,
standard deviation and 95th percentile of the layout time, plus the speedup
over the synchronous backend.

A backend that cannot start falls back; the "ran" column shows where the
layout actually executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.runBench(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, renderBench(rows))
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&opts.sizes, "nodes", []int{50, 200, 1000}, "graph sizes to benchmark")
	cmd.Flags().IntVarP(&opts.repeat, "repeat", "r", 5, "runs per backend and size")
	cmd.Flags().IntVarP(&opts.edgesPerNode, "edges-per-node", "k", 2, "average edges per node")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "graph generator seed")

	return cmd
}

func (c *CLI) runBench(ctx context.Context, opts benchOptions) ([]benchStats, error) {
	if opts.repeat < 1 {
		return nil, fmt.Errorf("--repeat must be at least 1")
	}

	pool, err := c.newPool()
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	var rows []benchStats
	for _, size := range opts.sizes {
		nodes, edges := randomGraph(size, opts.edgesPerNode, opts.seed)
		req := layout.Request{
			Type:   layout.TypeForceDirected2D,
			Nodes:  nodes,
			Edges:  edges,
			Config: c.Config.Force,
		}

		var baseline time.Duration
		for _, backend := range benchBackends {
			samples, ran, err := c.benchBackend(ctx, pool, backend, req, opts.repeat)
			if err != nil {
				return nil, fmt.Errorf("%s at %d nodes: %w", backend, size, err)
			}
			s := summarize(samples)
			s.Nodes = size
			s.Requested = backend
			s.Ran = ran
			if backend == layout.Synchronous {
				baseline = s.Mean
			}
			if s.Mean > 0 {
				s.Speedup = float64(baseline) / float64(s.Mean)
			}
			rows = append(rows, s)
		}
	}
	return rows, nil
}

func (c *CLI) benchBackend(ctx context.Context, pool *worker.Pool, backend layout.Backend, req layout.Request, repeat int) ([]float64, layout.Backend, error) {
	mgr, err := c.newManager(pool, nil, backend.String())
	if err != nil {
		return nil, backend, err
	}
	defer mgr.Close()

	samples := make([]float64, 0, repeat)
	ran := backend
	for range repeat {
		run, err := mgr.Layout(ctx, req)
		if err != nil {
			return nil, backend, err
		}
		res, err := run.Wait(ctx)
		if err != nil {
			return nil, backend, err
		}
		samples = append(samples, res.Duration.Seconds())
		ran = res.Backend
	}
	return samples, ran, nil
}

// summarize computes mean, standard deviation and p95 of samples in
// seconds
func summarize(samples []float64) benchStats {
	if len(samples) == 0 {
		return benchStats{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sd float64
	if len(sorted) > 1 {
		sd = stat.StdDev(sorted, nil)
	}
	return benchStats{
		Mean:   seconds(stat.Mean(sorted, nil)),
		StdDev: seconds(sd),
		P95:    seconds(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func renderBench(rows []benchStats) string {
	data := make([][]string, len(rows))
	for i, r := range rows {
		ran := r.Ran.String()
		if r.Ran != r.Requested {
			ran += " (fallback)"
		}
		data[i] = []string{
			strconv.Itoa(r.Nodes),
			r.Requested.String(),
			ran,
			r.Mean.Round(time.Microsecond).String(),
			r.StdDev.Round(time.Microsecond).String(),
			r.P95.Round(time.Microsecond).String(),
			fmt.Sprintf("%.2fx", r.Speedup),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("nodes", "backend", "ran", "mean", "stddev", "p95", "speedup").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return benchHeaderStyle
			}
			if col == 2 && rows[row].Ran != rows[row].Requested {
				return benchWarnStyle
			}
			if col == 6 && rows[row].Speedup > 1 {
				return benchFastStyle
			}
			return benchCellStyle
		})
	return t.String()
}
