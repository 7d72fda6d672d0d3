package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var numbers = message.NewPrinter(language.English)

func formatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// formatNumber groups digits: 1234567 -> "1,234,567".
func formatNumber(n int64) string {
	return numbers.Sprintf("%d", n)
}

// formatLatency prints a latency given in nanoseconds.
func formatLatency(ns float64) string {
	return time.Duration(ns).Round(time.Nanosecond).String()
}
