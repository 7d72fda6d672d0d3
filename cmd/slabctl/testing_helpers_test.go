package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/joshuapare/slabkit/slab/config"
)

// testConfig returns the default configuration on a heap source, so tests do
// not depend on mmap being available.
func testConfig(t *testing.T) *config.File {
	t.Helper()
	f := config.Default()
	f.Source.Kind = config.SourceHeap
	return f
}

// resetFlags restores every command-line variable to its default.
func resetFlags() {
	verbose = false
	quiet = false
	jsonOut = false
	configPath = ""
	probeCache = false
	benchSize = 64
	benchOps = 100000
	benchWorkers = 1
	benchBatch = 64
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	// Save original stdout
	origStdout := os.Stdout

	// Create a pipe to capture output
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	// Redirect stdout to pipe
	os.Stdout = w

	// Drain the pipe while fn runs so large outputs do not block
	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	// Run function
	fnErr := fn()

	// Close write end and restore stdout
	w.Close()
	os.Stdout = origStdout

	return string(<-done), fnErr
}

// assertJSON checks that output is valid JSON and decodes it into v when non-nil
func assertJSON(t *testing.T, output string, v interface{}) {
	t.Helper()
	if v == nil {
		var result interface{}
		v = &result
	}
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
