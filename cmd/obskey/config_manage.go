package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/doctor"
	"github.com/mattjoyce/obskey/internal/lock"
	"github.com/mattjoyce/obskey/internal/plugin"
)

func runCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfig(configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg, plugin.Builtins()).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

type statusReport struct {
	Config         string `json:"config"`
	ConfigOK       bool   `json:"config_ok"`
	ConfigError    string `json:"config_error,omitempty"`
	ChecksumLocked bool   `json:"checksum_locked"`
	Plugins        int    `json:"plugins"`
	LockPath       string `json:"lock_path"`
	Running        bool   `json:"running"`
	PID            int    `json:"pid,omitempty"`
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := statusReport{Config: *configPath}
	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		report.ConfigError = err.Error()
	} else {
		report.ConfigOK = true
		report.Config = cfg.SourceFile
		report.Plugins = len(cfg.Plugins)
		if _, err := config.LoadChecksums(filepath.Dir(cfg.SourceFile)); err == nil {
			report.ChecksumLocked = true
		}
	}

	lockPath, err := lock.DefaultPath()
	if cfg != nil {
		lockPath, err = getPIDLockPath(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve PID lock path: %v\n", err)
		return 1
	}
	report.LockPath = lockPath
	report.Running, report.PID, err = instanceLockHeld(lockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check PID lock: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render status JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		printStatus(report)
	}

	if !report.ConfigOK {
		return 1
	}
	return 0
}

// instanceLockHeld reports whether another process holds the instance lock.
func instanceLockHeld(path string) (bool, int, error) {
	l, err := lock.AcquirePIDLock(path)
	if errors.Is(err, lock.ErrLocked) {
		pid, _ := lock.ReadPID(path)
		return true, pid, nil
	}
	if err != nil {
		return false, 0, err
	}
	return false, 0, l.Release()
}

func printStatus(r statusReport) {
	if r.ConfigOK {
		fmt.Printf("config:    %s %s\n", okStyle.Render("✓"), r.Config)
		locked := "not locked (run: obskey lock)"
		if r.ChecksumLocked {
			locked = "locked (" + config.ChecksumFilename + ")"
		}
		fmt.Printf("checksums: %s\n", locked)
		fmt.Printf("plugins:   %d configured\n", r.Plugins)
	} else {
		fmt.Printf("config:    %s %s\n", failStyle.Render("✗"), r.ConfigError)
	}

	if r.Running {
		pid := "unknown pid"
		if r.PID > 0 {
			pid = fmt.Sprintf("pid %d", r.PID)
		}
		fmt.Printf("instance:  %s running (%s, lock %s)\n", okStyle.Render("●"), pid, r.LockPath)
	} else {
		fmt.Printf("instance:  %s not running (lock %s)\n", dimStyle.Render("○"), r.LockPath)
	}
}

func runLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	target := *configPath
	if target == "" {
		discovered, err := config.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		target = discovered
	}

	manifest, err := config.Lock(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	for _, name := range slices.Sorted(maps.Keys(manifest.Hashes)) {
		fmt.Printf("HASH %s: %s\n", name, manifest.Hashes[name])
	}
	fmt.Printf("Successfully locked configuration: %s\n", target)
	return 0
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, commandHelp["config"])
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "get":
		return runConfigGet(actionArgs)
	case "set":
		return runConfigSet(actionArgs)
	case "help":
		fmt.Print(commandHelp["config"])
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

var configFlagValues = map[string]bool{"-config": true, "--config": true}

func runConfigGet(args []string) int {
	flags, positionals := splitFlagsAndPositionals(args, configFlagValues)

	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: obskey config get <path> [--config PATH] [--json]")
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(positionals[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch {
	case *jsonOut:
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	case isScalar(val):
		fmt.Printf("%v\n", val)
	default:
		data, err := yaml.Marshal(val)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	}
	return 0
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int64, uint64, float64:
		return true
	}
	return false
}

func runConfigSet(args []string) int {
	flags, positionals := splitFlagsAndPositionals(args, configFlagValues)

	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	var path, value string
	ok := len(positionals) == 1
	if ok {
		path, value, ok = strings.Cut(positionals[0], "=")
	}
	if !ok || path == "" {
		fmt.Fprintln(os.Stderr, "Usage: obskey config set <path>=<value> [--config PATH]")
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if err := cfg.SetPath(path, value); err != nil {
		fmt.Fprintf(os.Stderr, "Apply failed: %v\n", err)
		return 1
	}
	fmt.Printf("Successfully set %q to %q\n", path, value)

	// A locked config would refuse to load after the edit.
	if _, err := config.LoadChecksums(filepath.Dir(cfg.SourceFile)); err == nil {
		if _, err := config.Lock(cfg.SourceFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to refresh checksums: %v\n", err)
			return 1
		}
		fmt.Println("Refreshed " + config.ChecksumFilename)
	}

	updated, err := config.Load(cfg.SourceFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed to run: %v\n", err)
		return 1
	}
	result := doctor.New(updated, plugin.Builtins()).Validate()
	printValidationSummary(result)
	if !result.Valid {
		return 1
	}
	return 0
}

func printValidationSummary(result *doctor.Result) {
	if result == nil {
		return
	}
	printIssues := func(label string, issues []doctor.Issue) {
		for _, issue := range issues {
			if issue.Field != "" {
				fmt.Printf("  %s [%s] %s: %s\n", label, issue.Category, issue.Field, issue.Message)
			} else {
				fmt.Printf("  %s [%s] %s\n", label, issue.Category, issue.Message)
			}
		}
	}

	if !result.Valid {
		fmt.Printf("Validation: failed (%d error(s), %d warning(s))\n", len(result.Errors), len(result.Warnings))
		printIssues("ERROR", result.Errors)
		printIssues("WARN ", result.Warnings)
		return
	}
	if len(result.Warnings) == 0 {
		fmt.Println("Validation: ✓ All checks passed")
		return
	}
	fmt.Printf("Validation: ✓ passed with %d warning(s)\n", len(result.Warnings))
	printIssues("WARN ", result.Warnings)
}

type pluginRow struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Hotkey string `json:"hotkey,omitempty"`
	Note   string `json:"note,omitempty"`
}

// describePlugins builds every configured plugin without a session, the way
// startup would, and reports how each one would run.
func describePlugins(cfg *config.Config, registry *plugin.Registry) []pluginRow {
	rows := make([]pluginRow, 0, len(cfg.Plugins))
	for _, name := range slices.Sorted(maps.Keys(cfg.Plugins)) {
		table := cfg.Plugins[name]
		row := pluginRow{Name: name, Type: table.Type(name)}

		p, err := registry.Construct(name, table, nil)
		switch {
		case errors.Is(err, plugin.ErrPluginNotFound):
			row.Kind = "skipped"
			row.Note = "type not registered"
		case err != nil:
			row.Kind = "invalid"
			row.Note = err.Error()
		default:
			if d, ok := p.Hotkey(); ok {
				row.Kind = "hotkey"
				row.Hotkey = d.String()
			} else {
				row.Kind = "background"
				row.Note = "runs once at startup"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func runPlugins(args []string) int {
	fs := flag.NewFlagSet("plugins", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	rows := describePlugins(cfg, plugin.Builtins())

	if *jsonOut {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render plugins JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(rows) == 0 {
		fmt.Println("No plugins configured.")
		return 0
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		kind := r.Kind
		switch r.Kind {
		case "hotkey":
			kind = okStyle.Render(kind)
		case "invalid", "skipped":
			kind = failStyle.Render(kind)
		}
		cells = append(cells, []string{r.Name, r.Type, kind, r.Hotkey, r.Note})
	}
	fmt.Print(renderTable([]string{"NAME", "TYPE", "KIND", "HOTKEY", "NOTE"}, cells))
	return 0
}

func splitFlagsAndPositionals(args []string, takesValue map[string]bool) ([]string, []string) {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positionals = append(positionals, arg)
			continue
		}

		flags = append(flags, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		if takesValue[arg] && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}

	return flags, positionals
}
