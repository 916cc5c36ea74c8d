package main

import (
	"fmt"
	"io"
	"time"

	"github.com/pevans/harvest/discovery"
)

func printSummary(w io.Writer, s *discovery.Summary) {
	fmt.Fprintln(w)
	if s.DryRun {
		fmt.Fprintln(w, "Harvest completed (dry run, nothing written):")
	} else {
		fmt.Fprintln(w, "Harvest completed:")
	}
	fmt.Fprintf(w, "  Run: %s\n", s.RunID)
	fmt.Fprintf(w, "  Duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  URLs found: %d\n", s.Found)
	fmt.Fprintf(w, "  New: %d\n", s.New)
	fmt.Fprintf(w, "  Skipped: %d\n", s.Skipped)
	fmt.Fprintf(w, "  Total seen: %d\n", s.TotalSeen)
	fmt.Fprintf(w, "  ✓ Stored: %d\n", s.Success)
	fmt.Fprintf(w, "  Duplicates: %d\n", s.Duplicate)
	fmt.Fprintf(w, "  Failed: %d\n", s.Failed)

	switch {
	case s.TimedOut:
		fmt.Fprintln(w, "  Stopped early: run timeout reached")
	case s.Interrupted:
		fmt.Fprintln(w, "  Stopped early: interrupted")
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  - [%s] %s: %v\n", e.Stage, e.URL, e.Err)
		}
	}
}
