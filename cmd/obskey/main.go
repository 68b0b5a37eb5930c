package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/obskey/internal/api"
	"github.com/mattjoyce/obskey/internal/client"
	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/hotkey"
	"github.com/mattjoyce/obskey/internal/hotkey/system"
	"github.com/mattjoyce/obskey/internal/journal"
	"github.com/mattjoyce/obskey/internal/lock"
	"github.com/mattjoyce/obskey/internal/log"
	"github.com/mattjoyce/obskey/internal/plugin"
	"github.com/mattjoyce/obskey/internal/storage"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	// Global hotkeys need the main OS thread for the platform event loop, so
	// the whole CLI runs on another goroutine.
	code := 0
	system.Run(func() { code = runCLI(os.Args[1:]) })
	os.Exit(code)
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	if hasHelpFlag(args) {
		if help, ok := commandHelp[cmd]; ok {
			fmt.Print(help)
			return 0
		}
	}

	switch cmd {
	case "start":
		return runStart(args)
	case "check", "doctor":
		return runCheck(args)
	case "status":
		return runStatus(args)
	case "lock":
		return runLock(args)
	case "config":
		return runConfigNoun(args)
	case "plugins":
		return runPlugins(args)
	case "history":
		return runHistory(args)
	case "inspect":
		return runInspect(args)
	case "trigger":
		return runTrigger(args)
	case "watch":
		return runWatch(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: obskey version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("obskey %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`obskey - global hotkeys for OBS Studio

Usage:
  obskey <command> [flags]

Service:
  start             Connect to OBS, bind hotkeys and run in the foreground
  status            Show config, checksum and instance lock state

Configuration:
  check             Validate config and plugins offline (alias: doctor)
  lock              Record the config checksum in .checksums
  config get        Read a value from the resolved configuration
  config set        Change a value in the config file
  plugins           List configured plugins and their hotkeys
  inspect <id>      Report one journaled execution and its toggle chain

Control API (requires api.enabled):
  trigger <name>    Run a hotkey plugin as if its hotkey was pressed
  history           Show recent executions
  watch             Live dashboard of plugins and events

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'obskey <command> --help' for command flags.
`)
}

var commandHelp = map[string]string{
	"start": `Usage: obskey start [--config PATH] [--headless]
Connect to OBS, bind every plugin hotkey and run until interrupted.

Flags:
  --config PATH   Config file or directory (default: discovered)
  --headless      Do not bind OS hotkeys; hotkey plugins run only via the API

OS hotkeys need a build with cgo. On Linux they also need -tags x11 and an
X11 display; other Linux builds must run with --headless.
`,
	"check": `Usage: obskey check [--config PATH] [--json] [--strict]
Validate the configuration and build every plugin without connecting to OBS.

Exit codes:
  0  Valid
  1  Errors found
  2  Warnings found (--strict only)
`,
	"status": `Usage: obskey status [--config PATH] [--json]
Show whether the config loads, whether it is checksum-locked and whether
another obskey holds the instance lock.
`,
	"lock": `Usage: obskey lock [--config PATH]
Hash the config file with BLAKE3 and write .checksums beside it. A locked
config refuses to load after any edit until it is locked again.
`,
	"config": `Usage: obskey config <get|set> [flags]

  obskey config get <path> [--config PATH] [--json]
      path: dotted key (server.port), plugin:<name> or plugin:*
  obskey config set <path>=<value> [--config PATH]
      Edits the config file in place; the result must validate.
`,
	"plugins": `Usage: obskey plugins [--config PATH] [--json]
List configured plugins, their type and hotkey, without connecting to OBS.
`,
	"inspect": `Usage: obskey inspect <execution-id> [--config PATH] [--depth N] [--json]
Read the journal database named by journal.path and report one execution
with the earlier executions of the same plugin, oldest first.
`,
	"trigger": `Usage: obskey trigger <name> [--addr HOST:PORT] [--token TOKEN] [--config PATH] [--json]
Run a hotkey plugin through the control API of a running obskey.
The token is read from --token, $OBSKEY_TOKEN or api.token in the config.
`,
	"history": `Usage: obskey history [--limit N] [--addr HOST:PORT] [--token TOKEN] [--config PATH] [--json]
Show the most recent plugin executions of a running obskey.
`,
	"watch": `Usage: obskey watch [--addr HOST:PORT] [--token TOKEN] [--config PATH]
Live dashboard: health, plugins with their last status, and the event stream.

Keybindings:
  q, Ctrl+C        Quit
  ↑/↓, k/j         Select plugin
  enter, t         Trigger selected plugin
  r                Refresh
`,
	"version": `Usage: obskey version [--json]
`,
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	headless := fs.Bool("headless", false, "Use the in-memory hotkey backend")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("obskey starting", "version", version, "config", cfg.SourceFile)

	pidLockPath, err := getPIDLockPath(cfg)
	if err != nil {
		logger.Error("failed to resolve PID lock path", "error", err)
		return 1
	}
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, *headless, logger); err != nil {
		logger.Error("obskey stopped", "error", err)
		return 1
	}

	logger.Info("obskey stopped")
	return 0
}

// serve assembles the client and runs the dispatcher, plus the API when
// enabled, until ctx is cancelled or a component fails.
func serve(ctx context.Context, cfg *config.Config, headless bool, logger *slog.Logger) error {
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", cfg.Journal.Path, err)
	}
	defer db.Close()
	history := journal.New(db)
	hub := events.NewHub(256)

	backend, err := hotkeyBackend(headless)
	if err != nil {
		return err
	}
	if headless && !cfg.API.Enabled {
		logger.Warn("headless without the API: hotkey plugins cannot be triggered")
	}
	hotkeys := hotkey.NewManager(backend)
	defer func() { _ = hotkeys.Close() }()

	c, err := client.New(ctx, cfg, client.Deps{
		Registry: plugin.Builtins(),
		Hotkeys:  hotkeys,
		Logger:   log.WithComponent("client"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	disp := dispatch.New(dispatch.Assembly{
		Session:    c.Session(),
		Background: c.Background(),
		Hotkeys:    c.HotkeyTable(),
		Events:     hotkeys.Events(),
	}, dispatch.Options{
		Timeout: cfg.Service.ExecuteTimeout,
		Policy:  cfg.Service.OnFailure,
		Journal: history,
		Hub:     hub,
		Logger:  log.WithComponent("dispatch"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := disp.Run(gctx); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	})

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen:         cfg.API.Listen,
			Token:          cfg.API.Token.Expose(),
			TriggerTimeout: triggerTimeout(cfg.Service.ExecuteTimeout),
		}, disp, history, hub, log.WithComponent("api"))
		g.Go(func() error {
			if err := apiServer.Start(gctx); err != nil {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("obskey running (press Ctrl+C to stop)",
		"hotkey_backend", backend.Name(),
		"hotkey_plugins", len(c.HotkeyTable()),
		"background_plugins", len(c.Background()),
	)
	return g.Wait()
}

// hotkeyBackend picks the in-memory backend for headless runs and the OS
// backend otherwise.
func hotkeyBackend(headless bool) (hotkey.Backend, error) {
	if headless {
		return hotkey.NewMemoryBackend(), nil
	}
	if !system.Supported {
		return nil, fmt.Errorf("%w; run with --headless to use the API only", system.ErrUnsupported)
	}
	return system.NewBackend(), nil
}

// triggerTimeout leaves room for a queued trigger on top of the execution
// bound. Zero lets the API pick its default.
func triggerTimeout(execute time.Duration) time.Duration {
	if execute <= 0 {
		return 0
	}
	return execute + 30*time.Second
}

func getPIDLockPath(cfg *config.Config) (string, error) {
	if cfg.Service.LockPath != "" {
		return cfg.Service.LockPath, nil
	}
	return lock.DefaultPath()
}

// loadConfig loads configPath, or the discovered config when it is empty.
func loadConfig(configPath string, announce bool) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		configPath = discovered
		if announce {
			fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", configPath)
		}
	}
	return config.Load(configPath)
}
