package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/slabkit/cmd/slabctl/logger"
	"github.com/joshuapare/slabkit/slab/alloc"
	"github.com/joshuapare/slabkit/slab/config"
	"github.com/joshuapare/slabkit/slab/probe"
)

var (
	probePages     int
	probeSample    int
	probeGroup     config.Size
	probeSizes     []int
	probeMaxTrials int
	probeCache     bool

	allocPageSize  config.Size
	allocAlignment int
	allocMagazine  int
	allocMaxPages  int
	allocChecked   bool
	sourceKind     string
	sourcePath     string
)

func init() {
	cmd := newProbeCmd()
	registerProbeFlags(cmd)
	rootCmd.AddCommand(cmd)
}

// registerProbeFlags registers the probe flags together with the allocator flags.
func registerProbeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&probePages, "pages", 0, "Number of distinct pages to sample")
	cmd.Flags().IntVar(&probeSample, "sample", 0, "Sample allocation size in bytes")
	cmd.Flags().Var(&probeGroup, "group", "Page size used to group addresses (e.g. 128, 4KiB)")
	cmd.Flags().IntSliceVar(&probeSizes, "probes", nil, "Magazine probe sizes (e.g. 97,265,347)")
	cmd.Flags().IntVar(&probeMaxTrials, "max-trials", 0, "Allocations allowed before a freed probe must return")
	cmd.Flags().BoolVar(&probeCache, "cache", false, "Run through a per-goroutine cache instead of the allocator")
	addAllocatorFlags(cmd)
}

// addAllocatorFlags registers the flags that override the allocator and
// source sections of the config.
func addAllocatorFlags(cmd *cobra.Command) {
	cmd.Flags().Var(&allocPageSize, "page-size", "Allocator page size (e.g. 4KiB)")
	cmd.Flags().IntVar(&allocAlignment, "alignment", 0, "Size class granularity in bytes")
	cmd.Flags().IntVar(&allocMagazine, "magazine", 0, "Magazine capacity (0 = unbounded)")
	cmd.Flags().IntVar(&allocMaxPages, "max-pages", 0, "Page budget (0 = unlimited)")
	cmd.Flags().BoolVar(&allocChecked, "checked", false, "Detect foreign, mismatched and double frees")
	cmd.Flags().StringVar(&sourceKind, "source", "", "Backing memory: heap, mmap or file")
	cmd.Flags().StringVar(&sourcePath, "file", "", "Backing file for --source file")
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run the known-pages probe",
		Long: `The probe command fills a number of pages with small samples, frees the
extras and checks that a new sample lands on a known page. It then frees one
chunk of a few otherwise unused sizes and checks that each is handed back
within a bounded number of allocations, twice.

Example:
  slabctl probe
  slabctl probe --page-size 128 --probes 40,72,120
  slabctl probe --source file --file /tmp/pages.slab --checked
  slabctl probe --magazine 1024 --max-trials 1025 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadConfig()
			if err != nil {
				return err
			}
			if err := applyOverrides(cmd, f); err != nil {
				return err
			}
			return runProbe(f)
		},
	}
	return cmd
}

// applyOverrides copies the flags set on cmd into f and validates the result.
func applyOverrides(cmd *cobra.Command, f *config.File) error {
	set := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}

	if set("page-size") {
		f.Allocator.PageSize = allocPageSize
	}
	if set("alignment") {
		f.Allocator.Alignment = allocAlignment
	}
	if set("magazine") {
		f.Allocator.MagazineCapacity = allocMagazine
	}
	if set("max-pages") {
		f.Allocator.MaxPages = allocMaxPages
	}
	if set("checked") {
		f.Allocator.Checked = allocChecked
	}
	if set("source") {
		f.Source.Kind = sourceKind
	}
	if set("file") {
		f.Source.Path = sourcePath
	}

	if set("pages") {
		f.Probe.Pages = probePages
	}
	if set("sample") {
		f.Probe.SampleSize = probeSample
	}
	if set("group") {
		f.Probe.GroupSize = probeGroup
	}
	if set("probes") {
		f.Probe.ProbeSizes = append([]int(nil), probeSizes...)
	}
	if set("max-trials") {
		f.Probe.MaxProbeTrials = probeMaxTrials
	}
	return f.Validate()
}

type probeOutput struct {
	Passed bool          `json:"passed"`
	Error  string        `json:"error,omitempty"`
	Source string        `json:"source"`
	Config alloc.Config  `json:"allocator"`
	Report *probe.Report `json:"report"`
	Stats  alloc.Stats   `json:"stats"`
}

func runProbe(f *config.File) error {
	printVerbose("Opening %s source\n", f.Source.Kind)
	a, err := f.NewAllocator()
	if err != nil {
		return fmt.Errorf("failed to create allocator: %w", err)
	}
	defer a.Close()

	var target alloc.Interface = a
	if probeCache {
		target = a.NewCache()
	}

	params := f.ProbeParams()
	if mc := f.Allocator.MagazineCapacity; mc > 0 && params.MaxProbeTrials <= mc {
		logger.Warn("max trials do not exceed magazine capacity; retention may fail",
			"max_trials", params.MaxProbeTrials, "magazine", mc)
	}

	rep, runErr := probe.Run(target, params, logger.L)
	stats := a.Stats()
	if c, ok := target.(*alloc.Cache); ok {
		stats = c.Stats()
	}

	if jsonOut {
		out := probeOutput{
			Passed: runErr == nil && rep.Passed(),
			Source: f.Source.Kind,
			Config: f.AllocConfig(),
			Report: rep,
			Stats:  stats,
		}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		if err := printJSON(out); err != nil {
			return err
		}
		if runErr != nil {
			return fmt.Errorf("probe failed: %w", runErr)
		}
		return nil
	}

	if rep != nil {
		printProbeReport(f, rep, stats)
	}
	if runErr != nil {
		printInfo("\nResult: FAIL\n")
		return fmt.Errorf("probe failed: %w", runErr)
	}
	printInfo("\nResult: PASS\n")
	return nil
}

func printProbeReport(f *config.File, rep *probe.Report, stats alloc.Stats) {
	cfg := f.AllocConfig()
	p := rep.Params

	magazine := "unbounded"
	if cfg.MagazineCapacity > 0 {
		magazine = formatNumber(int64(cfg.MagazineCapacity))
	}

	printInfo("\nKnown-Pages Probe\n")
	printInfo("%s\n\n", strings.Repeat("=", 40))

	printInfo("Allocator:\n")
	printInfo("  Page Size: %s\n", formatBytes(int64(cfg.PageSize)))
	printInfo("  Alignment: %d\n", cfg.Alignment)
	printInfo("  Magazine: %s\n", magazine)
	printInfo("  Checked: %t\n", cfg.Checked)
	printInfo("  Source: %s\n\n", f.Source.Kind)

	printInfo("Pages:\n")
	printInfo("  Sampled: %d pages of %s (sample %d bytes)\n",
		len(rep.KnownPages), formatBytes(int64(p.GroupSize)), p.SampleSize)
	printInfo("  Fill Allocations: %s (%s released)\n",
		formatNumber(int64(rep.FillAllocations)), formatNumber(int64(rep.TrashReleased)))
	printInfo("  Known Page Reached: after %d and %d allocations (bound %s)\n\n",
		rep.KnownPageTrials[0], rep.KnownPageTrials[1], formatNumber(int64(p.KnownPageTrials())))

	if len(p.ProbeSizes) > 0 {
		printInfo("Magazine Retention (bound %s):\n", formatNumber(int64(p.MaxProbeTrials)))
		for i, size := range p.ProbeSizes {
			printInfo("  Size %d:", size)
			for round, trials := range rep.Retention {
				if i < len(trials) {
					printInfo(" round %d: %d", round+1, trials[i])
				}
			}
			printInfo("\n")
		}
		printInfo("\n")
	}

	printInfo("Allocator Stats:\n")
	printInfo("  Pages: %s (%s)\n", formatNumber(int64(stats.Pool.Pages)), formatBytes(stats.Pool.Bytes))
	printInfo("  Size Classes: %d\n", stats.Pool.Classes)
	printInfo("  Allocations: %s (%.1f%% from magazines)\n",
		formatNumber(int64(stats.AllocCalls)), stats.HitRate()*100)
	printInfo("  Frees: %s\n", formatNumber(int64(stats.FreeCalls)))
	printVerbose("  Evicted: %s\n", formatNumber(int64(stats.Evicted)))
	printVerbose("  Cached: %s\n", formatNumber(int64(stats.Cached)))
	printVerbose("  Elapsed: %s\n", rep.Elapsed)
}
