package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/inspect"
	"github.com/mattjoyce/obskey/internal/journal"
	"github.com/mattjoyce/obskey/internal/storage"
)

var inspectFlagValues = map[string]bool{
	"-config": true, "--config": true,
	"-depth": true, "--depth": true,
}

func runInspect(args []string) int {
	flags, positionals := splitFlagsAndPositionals(args, inspectFlagValues)

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	depth := fs.Int("depth", inspect.DefaultDepth, "Executions to include in the chain")
	jsonOut := fs.Bool("json", false, "Output report in JSON")
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: obskey inspect <execution-id> [--config PATH] [--depth N] [--json]")
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.Journal.Path == "" || cfg.Journal.Path == config.MemoryJournal {
		fmt.Fprintln(os.Stderr, "The journal is kept in memory; set journal.path to inspect executions from the CLI.")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer db.Close()

	store := journal.New(db)
	var report string
	if *jsonOut {
		report, err = inspect.BuildJSONReport(ctx, store, positionals[0], *depth)
	} else {
		report, err = inspect.BuildReport(ctx, store, positionals[0], *depth)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	fmt.Print(report)
	if *jsonOut {
		fmt.Println()
	}
	return 0
}
