package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/obskey/internal/api"
	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/journal"
	"github.com/mattjoyce/obskey/internal/tui/watch"
)

// EnvToken supplies the API token to client commands.
const EnvToken = "OBSKEY_TOKEN"

var apiFlagValues = map[string]bool{
	"-addr": true, "--addr": true,
	"-token": true, "--token": true,
	"-config": true, "--config": true,
	"-limit": true, "--limit": true,
}

// apiFlags locate a running obskey. Anything not given on the command line
// comes from the environment or the config.
type apiFlags struct {
	addr   string
	token  string
	config string
}

func (a *apiFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.addr, "addr", "", "API address (default: api.listen from config)")
	fs.StringVar(&a.token, "token", "", "API bearer token (or "+EnvToken+")")
	fs.StringVar(&a.config, "config", "", "Path to configuration file or directory")
}

func (a apiFlags) client() (*api.Client, error) {
	addr, token := a.addr, a.token
	if token == "" {
		token = os.Getenv(EnvToken)
	}
	if addr == "" || token == "" {
		cfg, err := loadConfig(a.config, false)
		switch {
		case err == nil:
			if addr == "" {
				addr = cfg.API.Listen
			}
			if token == "" {
				token = cfg.API.Token.Expose()
			}
		case a.config != "":
			return nil, err
		}
	}
	if addr == "" {
		addr = config.Defaults().API.Listen
	}
	return api.NewClient(addr, token), nil
}

func runTrigger(args []string) int {
	flags, positionals := splitFlagsAndPositionals(args, apiFlagValues)

	var target apiFlags
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	target.register(fs)
	jsonOut := fs.Bool("json", false, "Output the execution as JSON")
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: obskey trigger <name> [--addr HOST:PORT] [--token TOKEN] [--config PATH] [--json]")
		return 1
	}
	name := positionals[0]

	c, err := target.client()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, err := c.Trigger(ctx, name)
	if err != nil && exec.ID == "" {
		fmt.Fprintf(os.Stderr, "Trigger failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, mErr := json.MarshalIndent(exec, "", "  ")
		if mErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to render execution JSON: %v\n", mErr)
			return 1
		}
		fmt.Println(string(data))
	} else if err != nil {
		fmt.Printf("%s %s %s: %s (%s)\n", failStyle.Render("✗"), name, exec.Status, exec.Error, formatElapsed(exec.Duration()))
	} else {
		fmt.Printf("%s %s: %s (%s)\n", okStyle.Render("✓"), name, exec.Output, formatElapsed(exec.Duration()))
	}

	if err != nil {
		return 1
	}
	return 0
}

func runHistory(args []string) int {
	flags, positionals := splitFlagsAndPositionals(args, apiFlagValues)

	var target apiFlags
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	target.register(fs)
	limit := fs.Int("limit", 20, "Number of executions to show")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) > 0 {
		fmt.Fprintln(os.Stderr, "Usage: obskey history [--limit N] [--addr HOST:PORT] [--token TOKEN] [--config PATH] [--json]")
		return 1
	}

	c, err := target.client()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	execs, err := c.Executions(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch history: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(execs, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render history JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(execs) == 0 {
		fmt.Println("No executions recorded yet.")
		return 0
	}
	fmt.Print(renderTable([]string{"STARTED", "PLUGIN", "SOURCE", "STATUS", "TOOK", "RESULT"}, historyRows(execs)))
	return 0
}

func historyRows(execs []journal.Execution) [][]string {
	rows := make([][]string, 0, len(execs))
	for _, e := range execs {
		status := string(e.Status)
		result := e.Output
		if e.Status == journal.StatusSucceeded {
			status = okStyle.Render(status)
		} else {
			status = failStyle.Render(status)
			result = e.Error
		}
		rows = append(rows, []string{
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Plugin,
			string(e.Source),
			status,
			formatElapsed(e.Duration()),
			truncate(result, 60),
		})
	}
	return rows
}

func runWatch(args []string) int {
	var target apiFlags
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	target.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	c, err := target.client()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(watch.New(ctx, c, c.URL()))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
