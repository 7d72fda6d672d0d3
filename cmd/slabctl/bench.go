package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/slabkit/cmd/slabctl/logger"
	"github.com/joshuapare/slabkit/slab/alloc"
	"github.com/joshuapare/slabkit/slab/config"
	"github.com/joshuapare/slabkit/slab/page"
)

var (
	benchSize    config.Size = 64
	benchOps     int         = 100000
	benchWorkers int         = 1
	benchBatch   int         = 64
)

func init() {
	cmd := newBenchCmd()
	cmd.Flags().Var(&benchSize, "size", "Allocation size (e.g. 64, 1KiB)")
	cmd.Flags().IntVar(&benchOps, "ops", benchOps, "Allocations per worker")
	cmd.Flags().IntVar(&benchWorkers, "workers", benchWorkers, "Concurrent workers, one cache each")
	cmd.Flags().IntVar(&benchBatch, "batch", benchBatch, "Chunks held before freeing them all")
	addAllocatorFlags(cmd)
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure allocate/free latency",
		Long: `The bench command runs allocate/free cycles on one or more workers,
each with its own cache over a shared allocator, and reports latency
percentiles for both operations.

Example:
  slabctl bench
  slabctl bench --size 24 --ops 1000000 --workers 8
  slabctl bench --magazine 256 --batch 1024 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadConfig()
			if err != nil {
				return err
			}
			if err := applyOverrides(cmd, f); err != nil {
				return err
			}
			res, err := runBench(cmd.Context(), f, benchOptions{
				Size:    benchSize.Int(),
				Ops:     benchOps,
				Workers: benchWorkers,
				Batch:   benchBatch,
			})
			if err != nil {
				return err
			}
			return printBench(res)
		},
	}
	return cmd
}

type benchOptions struct {
	Size    int `json:"size"`
	Ops     int `json:"ops"`
	Workers int `json:"workers"`
	Batch   int `json:"batch"`
}

// latencySummary holds nanosecond latency statistics for one operation.
type latencySummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_ns"`
	P50   float64 `json:"p50_ns"`
	P90   float64 `json:"p90_ns"`
	P99   float64 `json:"p99_ns"`
	P999  float64 `json:"p999_ns"`
	Max   float64 `json:"max_ns"`
}

type benchResult struct {
	Options   benchOptions   `json:"options"`
	Class     int            `json:"class"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
	OpsPerSec float64        `json:"ops_per_sec"`
	Alloc     latencySummary `json:"alloc"`
	Free      latencySummary `json:"free"`
	Pages     int            `json:"pages"`
	Bytes     int64          `json:"bytes"`
	HitRate   float64        `json:"hit_rate"`
}

func (o benchOptions) validate() error {
	switch {
	case o.Size <= 0:
		return fmt.Errorf("size must be positive")
	case o.Ops <= 0:
		return fmt.Errorf("ops must be positive")
	case o.Workers <= 0:
		return fmt.Errorf("workers must be positive")
	case o.Batch <= 0:
		return fmt.Errorf("batch must be positive")
	}
	return nil
}

func runBench(ctx context.Context, f *config.File, opts benchOptions) (*benchResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := f.NewAllocator()
	if err != nil {
		return nil, fmt.Errorf("failed to create allocator: %w", err)
	}
	defer a.Close()

	class, err := a.SizeClass(opts.Size)
	if err != nil {
		return nil, err
	}

	allocLat := make([][]float64, opts.Workers)
	freeLat := make([][]float64, opts.Workers)
	hits := make([]alloc.Stats, opts.Workers)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := range opts.Workers {
		c := a.NewCache()
		g.Go(func() error {
			defer c.Flush()
			al := make([]float64, 0, opts.Ops)
			fl := make([]float64, 0, opts.Ops)
			held := make([]page.Addr, 0, opts.Batch)

			release := func() error {
				for _, addr := range held {
					t0 := time.Now()
					err := c.Free(addr, opts.Size)
					fl = append(fl, float64(time.Since(t0)))
					if err != nil {
						return err
					}
				}
				held = held[:0]
				return nil
			}

			for i := range opts.Ops {
				if i%1024 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				t0 := time.Now()
				addr, err := c.Alloc(opts.Size)
				al = append(al, float64(time.Since(t0)))
				if err != nil {
					return fmt.Errorf("worker %d: %w", w, err)
				}
				held = append(held, addr)
				if len(held) == opts.Batch {
					if err := release(); err != nil {
						return fmt.Errorf("worker %d: %w", w, err)
					}
				}
			}
			if err := release(); err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}

			allocLat[w] = al
			freeLat[w] = fl
			hits[w] = c.Stats()
			logger.Debug("worker done", "worker", w, "ops", opts.Ops, "hit_rate", hits[w].HitRate())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res := &benchResult{
		Options:   opts,
		Class:     class,
		Elapsed:   elapsed,
		OpsPerSec: float64(opts.Ops*opts.Workers) / elapsed.Seconds(),
	}
	if res.Alloc, err = summarize(allocLat); err != nil {
		return nil, err
	}
	if res.Free, err = summarize(freeLat); err != nil {
		return nil, err
	}

	var fast, served int
	for _, s := range hits {
		fast += s.AllocFastPath
		served += s.AllocFastPath + s.AllocSlowPath
	}
	if served > 0 {
		res.HitRate = float64(fast) / float64(served)
	}
	st := a.Stats()
	res.Pages = st.Pool.Pages
	res.Bytes = st.Pool.Bytes
	return res, nil
}

func summarize(perWorker [][]float64) (latencySummary, error) {
	var data stats.Float64Data
	for _, lat := range perWorker {
		data = append(data, lat...)
	}
	if len(data) == 0 {
		return latencySummary{}, nil
	}

	var s latencySummary
	var err error
	s.Count = len(data)
	if s.Mean, err = stats.Mean(data); err != nil {
		return s, fmt.Errorf("error calculating mean: %w", err)
	}
	for _, pc := range []struct {
		dst *float64
		p   float64
	}{
		{&s.P50, 50},
		{&s.P90, 90},
		{&s.P99, 99},
		{&s.P999, 99.9},
	} {
		if *pc.dst, err = stats.Percentile(data, pc.p); err != nil {
			return s, fmt.Errorf("error calculating percentile %v: %w", pc.p, err)
		}
	}
	if s.Max, err = stats.Max(data); err != nil {
		return s, fmt.Errorf("error calculating max: %w", err)
	}
	return s, nil
}

func printBench(res *benchResult) error {
	if jsonOut {
		return printJSON(res)
	}

	printInfo("\nAllocator Benchmark\n")
	printInfo("%s\n\n", strings.Repeat("=", 40))
	printInfo("Workload:\n")
	printInfo("  Size: %d bytes (class %d)\n", res.Options.Size, res.Class)
	printInfo("  Operations: %s x %d workers (batch %d)\n",
		formatNumber(int64(res.Options.Ops)), res.Options.Workers, res.Options.Batch)
	printInfo("  Elapsed: %s (%s allocs/sec)\n\n",
		res.Elapsed.Round(time.Microsecond), formatNumber(int64(res.OpsPerSec)))

	for _, op := range []struct {
		name string
		s    latencySummary
	}{
		{"Alloc", res.Alloc},
		{"Free", res.Free},
	} {
		printInfo("%s Latency:\n", op.name)
		printInfo("  Mean: %s\n", formatLatency(op.s.Mean))
		printInfo("  50%%: %s  90%%: %s  99%%: %s  99.9%%: %s\n",
			formatLatency(op.s.P50), formatLatency(op.s.P90), formatLatency(op.s.P99), formatLatency(op.s.P999))
		printInfo("  Max: %s\n\n", formatLatency(op.s.Max))
	}

	printInfo("Memory:\n")
	printInfo("  Pages: %s (%s)\n", formatNumber(int64(res.Pages)), formatBytes(res.Bytes))
	printInfo("  Magazine Hit Rate: %.1f%%\n", res.HitRate*100)
	return nil
}
