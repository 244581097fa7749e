// Command rostercheck validates a participant roster export standalone
// and prints a short summary: how many device identifiers mapped and
// how many rows were rejected. Useful before kicking off a full
// standardization run.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"sensorstd/internal/roster"
)

func main() {
	rosterFile := flag.String("roster", "", "path to roster export (xlsx or csv)")
	flag.Parse()

	if *rosterFile == "" {
		fmt.Fprintln(os.Stderr, "usage: rostercheck -roster <file>")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	r, err := roster.Load(*rosterFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roster check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("roster ok: %d device identifiers mapped, %d rows skipped\n", r.Len(), r.Skipped())
	if r.Skipped() > 0 {
		os.Exit(1)
	}
}
