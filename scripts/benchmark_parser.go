package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// BenchmarkResult represents a parsed benchmark result.
type BenchmarkResult struct {
	Name        string
	Operation   string
	Size        string
	Impl        string // "slab" or "make"
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

// ComparisonResult represents a comparison between the slab allocator and
// Go heap allocation for one operation and size.
type ComparisonResult struct {
	Operation  string
	Size       string
	SlabNs     float64
	MakeNs     float64
	Speedup    float64
	SlabMem    int64
	MakeMem    int64
	SlabAllocs int64
	MakeAllocs int64
	SlabOnly   bool
}

var (
	inputFile = flag.String(
		"input",
		"",
		"Input file with benchmark output (stdin if not specified)",
	)
	outputFile = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet      = flag.Bool("quiet", false, "Suppress progress output")
)

// Usage:
//
//	go test -run x -bench . -benchmem ./slab/alloc | go run ./scripts -output bench.md
func main() {
	flag.Parse()

	var in io.Reader = os.Stdin
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	results := parseBenchmarks(bufio.NewScanner(in))
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(results))
	}

	comparisons := generateComparisons(results)
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Generated %d comparisons\n", len(comparisons))
	}

	report := generateMarkdownReport(comparisons, time.Now())

	if *outputFile == "" {
		fmt.Fprint(os.Stdout, report)
		return
	}
	if err := os.WriteFile(*outputFile, []byte(report), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
		os.Exit(1)
	}
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
	}
}

// BenchmarkAllocFree/slab/64-8    10000000    12.4 ns/op    0 B/op    0 allocs/op
var benchmarkRegex = regexp.MustCompile(
	`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+B/op)?(?:\s+([\d.]+)\s+allocs/op)?`,
)

func parseBenchmarks(scanner *bufio.Scanner) []BenchmarkResult {
	var results []BenchmarkResult

	for scanner.Scan() {
		line := scanner.Text()

		// Try to parse as JSON (from -json flag)
		var testEvent map[string]any
		if err := json.Unmarshal([]byte(line), &testEvent); err == nil {
			if output, ok := testEvent["Output"].(string); ok {
				line = output
			}
		}

		matches := benchmarkRegex.FindStringSubmatch(strings.TrimSpace(line))
		if matches == nil {
			continue
		}

		r := BenchmarkResult{Name: matches[1]}
		r.Iterations, _ = strconv.Atoi(matches[2])
		r.NsPerOp, _ = strconv.ParseFloat(matches[3], 64)
		if matches[4] != "" {
			r.BytesPerOp, _ = strconv.ParseInt(matches[4], 10, 64)
		}
		if matches[5] != "" {
			r.AllocsPerOp, _ = strconv.ParseInt(matches[5], 10, 64)
		}

		// Format: Benchmark<Operation>/<impl>/<size>-<procs>
		// Benchmarks without an impl level are slab-only: Benchmark<Operation>-<procs>
		parts := strings.Split(stripProcs(r.Name), "/")
		r.Operation = strings.TrimPrefix(parts[0], "Benchmark")
		switch len(parts) {
		case 1:
			r.Impl = "slab"
		case 2:
			r.Impl = parts[1]
		default:
			r.Impl = parts[1]
			r.Size = parts[len(parts)-1]
		}
		results = append(results, r)
	}

	return results
}

// stripProcs removes the -GOMAXPROCS suffix go test appends to names.
func stripProcs(name string) string {
	idx := strings.LastIndex(name, "-")
	if idx <= 0 {
		return name
	}
	if _, err := strconv.Atoi(name[idx+1:]); err != nil {
		return name
	}
	return name[:idx]
}

func generateComparisons(results []BenchmarkResult) []ComparisonResult {
	type key struct {
		operation string
		size      string
	}

	grouped := make(map[key]map[string]BenchmarkResult)
	for _, result := range results {
		k := key{result.Operation, result.Size}
		if grouped[k] == nil {
			grouped[k] = make(map[string]BenchmarkResult)
		}
		grouped[k][result.Impl] = result
	}

	var comparisons []ComparisonResult
	for k, impls := range grouped {
		slab, hasSlab := impls["slab"]
		heap, hasMake := impls["make"]
		if !hasSlab {
			continue
		}

		c := ComparisonResult{
			Operation:  k.operation,
			Size:       k.size,
			SlabNs:     slab.NsPerOp,
			SlabMem:    slab.BytesPerOp,
			SlabAllocs: slab.AllocsPerOp,
			SlabOnly:   !hasMake,
		}
		if hasMake {
			c.MakeNs = heap.NsPerOp
			c.MakeMem = heap.BytesPerOp
			c.MakeAllocs = heap.AllocsPerOp
			if slab.NsPerOp > 0 {
				c.Speedup = heap.NsPerOp / slab.NsPerOp
			}
		}
		comparisons = append(comparisons, c)
	}

	// Sort by operation then numeric size
	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].Operation != comparisons[j].Operation {
			return comparisons[i].Operation < comparisons[j].Operation
		}
		si, _ := strconv.Atoi(comparisons[i].Size)
		sj, _ := strconv.Atoi(comparisons[j].Size)
		return si < sj
	})

	return comparisons
}

func generateMarkdownReport(comparisons []ComparisonResult, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Allocator Benchmark Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", now.Format("2006-01-02 15:04:05"))

	slabFaster, makeFaster, slabOnly := 0, 0, 0
	totalSpeedup := 0.0
	for _, comp := range comparisons {
		if comp.SlabOnly {
			slabOnly++
			continue
		}
		if comp.Speedup > 1.0 {
			slabFaster++
		} else if comp.Speedup < 1.0 {
			makeFaster++
		}
		totalSpeedup += comp.Speedup
	}
	comparableCount := len(comparisons) - slabOnly

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- **Total benchmarks**: %d\n", len(comparisons))
	fmt.Fprintf(&sb, "- **Comparable** (slab and make): %d\n", comparableCount)
	if comparableCount > 0 {
		fmt.Fprintf(&sb, "  - slab faster: %d (%.1f%%)\n", slabFaster, percent(slabFaster, comparableCount))
		fmt.Fprintf(&sb, "  - make faster: %d (%.1f%%)\n", makeFaster, percent(makeFaster, comparableCount))
		fmt.Fprintf(&sb, "  - Average speedup: **%.2fx**\n", totalSpeedup/float64(comparableCount))
	}
	fmt.Fprintf(&sb, "- **slab-only benchmarks**: %d\n\n", slabOnly)

	sb.WriteString("## Detailed Results\n\n")
	sb.WriteString("| Operation | Size | slab (ns/op) | make (ns/op) | Speedup | Memory (B/op) | Allocs |\n")
	sb.WriteString("|-----------|------|--------------|--------------|---------|---------------|--------|\n")

	for _, comp := range comparisons {
		if comp.SlabOnly {
			fmt.Fprintf(&sb, "| %s | %s | %s | *N/A* | *slab only* | %s | %s |\n",
				comp.Operation,
				comp.Size,
				formatNumber(comp.SlabNs),
				formatBytes(comp.SlabMem),
				formatNumber(float64(comp.SlabAllocs)),
			)
			continue
		}

		indicator, style := "✓", "**"
		if comp.Speedup < 1.0 {
			indicator, style = "✗", ""
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s%.2fx%s %s | %s vs %s%s | %s vs %s%s |\n",
			comp.Operation,
			comp.Size,
			formatNumber(comp.SlabNs),
			formatNumber(comp.MakeNs),
			style, comp.Speedup, style, indicator,
			formatBytes(comp.SlabMem),
			formatBytes(comp.MakeMem),
			lowerIsBetter(comp.SlabMem, comp.MakeMem),
			formatNumber(float64(comp.SlabAllocs)),
			formatNumber(float64(comp.MakeAllocs)),
			lowerIsBetter(comp.SlabAllocs, comp.MakeAllocs),
		)
	}

	sb.WriteString("\n## Notes\n\n")
	sb.WriteString("- **Speedup > 1.0**: the slab allocator is faster ✓\n")
	sb.WriteString("- **Speedup < 1.0**: Go heap allocation is faster ✗\n")
	sb.WriteString("- **Memory** and **Allocs** count Go heap usage; slab chunks live in pages acquired up front\n")

	return sb.String()
}

func lowerIsBetter(slab, heap int64) string {
	switch {
	case slab < heap:
		return " ✓"
	case slab > heap:
		return " ✗"
	default:
		return ""
	}
}

func percent(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

func formatNumber(n float64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.2fM", n/1000000)
	} else if n >= 1000 {
		return fmt.Sprintf("%.1fK", n/1000)
	}
	if n != float64(int64(n)) && n < 100 {
		return fmt.Sprintf("%.2f", n)
	}
	return fmt.Sprintf("%.0f", n)
}

func formatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}
