package main

import (
	"context"
	"errors"
	"testing"

	"github.com/joshuapare/slabkit/slab/alloc"
)

func TestRunBench(t *testing.T) {
	tests := []struct {
		name     string
		opts     benchOptions
		magazine int
	}{
		{"single worker", benchOptions{Size: 24, Ops: 5000, Workers: 1, Batch: 64}, 0},
		{"many workers", benchOptions{Size: 64, Ops: 2000, Workers: 4, Batch: 100}, 0},
		{"bounded magazines", benchOptions{Size: 100, Ops: 3000, Workers: 2, Batch: 500}, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			f := testConfig(t)
			f.Allocator.MagazineCapacity = tt.magazine

			res, err := runBench(context.Background(), f, tt.opts)
			if err != nil {
				t.Fatalf("runBench() error = %v", err)
			}

			total := tt.opts.Ops * tt.opts.Workers
			if res.Alloc.Count != total || res.Free.Count != total {
				t.Errorf("counts = %d/%d, want %d", res.Alloc.Count, res.Free.Count, total)
			}
			if res.Alloc.P50 > res.Alloc.P99 || res.Alloc.P99 > res.Alloc.Max {
				t.Errorf("alloc percentiles out of order: %+v", res.Alloc)
			}
			if res.Pages == 0 || res.HitRate <= 0 || res.HitRate > 1 {
				t.Errorf("unexpected pages %d / hit rate %v", res.Pages, res.HitRate)
			}
			if res.Class%8 != 0 || res.Class < tt.opts.Size {
				t.Errorf("class = %d for size %d", res.Class, tt.opts.Size)
			}
		})
	}
}

func TestRunBench_Errors(t *testing.T) {
	resetFlags()
	f := testConfig(t)

	if _, err := runBench(context.Background(), f, benchOptions{Size: 0, Ops: 1, Workers: 1, Batch: 1}); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := runBench(context.Background(), f, benchOptions{Size: 8192, Ops: 1, Workers: 1, Batch: 1}); !errors.Is(err, alloc.ErrTooLarge) {
		t.Errorf("runBench() error = %v, want ErrTooLarge", err)
	}

	f.Allocator.MaxPages = 1
	_, err := runBench(context.Background(), f, benchOptions{Size: 4096, Ops: 4, Workers: 1, Batch: 4})
	if !errors.Is(err, alloc.ErrOutOfMemory) {
		t.Errorf("runBench() error = %v, want ErrOutOfMemory", err)
	}
}

func TestPrintBench(t *testing.T) {
	resetFlags()
	res, err := runBench(context.Background(), testConfig(t), benchOptions{Size: 32, Ops: 1000, Workers: 2, Batch: 10})
	if err != nil {
		t.Fatal(err)
	}

	output, err := captureOutput(t, func() error { return printBench(res) })
	if err != nil {
		t.Fatal(err)
	}
	assertContains(t, output, []string{"Allocator Benchmark", "Size: 32 bytes (class 32)", "1,000 x 2 workers", "Alloc Latency:", "Free Latency:", "Magazine Hit Rate"})

	jsonOut = true
	output, err = captureOutput(t, func() error { return printBench(res) })
	if err != nil {
		t.Fatal(err)
	}
	var decoded benchResult
	assertJSON(t, output, &decoded)
	if decoded.Alloc.Count != 2000 {
		t.Errorf("decoded alloc count = %d", decoded.Alloc.Count)
	}
}

func TestFormat(t *testing.T) {
	if got := formatNumber(1234567); got != "1,234,567" {
		t.Errorf("formatNumber() = %q", got)
	}
	if got := formatNumber(12); got != "12" {
		t.Errorf("formatNumber() = %q", got)
	}
	if got := formatBytes(4096); got != "4.0 KiB" {
		t.Errorf("formatBytes() = %q", got)
	}
	if got := formatLatency(1500); got != "1.5µs" {
		t.Errorf("formatLatency() = %q", got)
	}
}
