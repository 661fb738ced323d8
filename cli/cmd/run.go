package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/foundry/adapter"
	"github.com/pithecene-io/foundry/adapter/redis"
	"github.com/pithecene-io/foundry/adapter/webhook"
	"github.com/pithecene-io/foundry/cli/config"
	"github.com/pithecene-io/foundry/iox"
	"github.com/pithecene-io/foundry/log"
	"github.com/pithecene-io/foundry/session"
)

// RunCommand returns the run command.
// This is the only command that executes work per CONTRACT_CLI.md.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute a session from a directive stream (the only execution entrypoint)",
		Flags: []cli.Flag{
			// Input flags
			&cli.StringFlag{
				Name:  "stream",
				Usage: "Directive stream source: file path or - for stdin",
				Value: "-",
			},
			&cli.StringFlag{
				Name:  "turn-id",
				Usage: "Conversation turn ID for the streamed input",
				Value: "turn-1",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to foundry.yaml config file",
			},
			// Session flags
			&cli.StringFlag{
				Name:  "session-id",
				Usage: "Session ID (generated when omitted)",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "Project root directory (temp dir when omitted)",
			},
			&cli.StringFlag{
				Name:  "package-manager",
				Usage: "Install/start tool: npm, pnpm, yarn or bun",
			},
			&cli.StringFlag{
				Name:  "policy",
				Usage: "File flush policy: strict, buffered or noop",
			},
			&cli.StringFlag{
				Name:  "events",
				Usage: "Record the session event stream to this file",
			},
			&cli.BoolFlag{
				Name:  "no-bootstrap",
				Usage: "Disable the dev-server supervisor",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Preferred preview port",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Notification adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel (redis adapter only)",
			},
			// Output flags
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the summary output",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadRunConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), 1)
	}

	notifier, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), 1)
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	input, closeInput, err := openStream(c.String("stream"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open stream: %v", err), 1)
	}
	defer closeInput()

	logger := log.NewLogger(cfg.SessionID)

	sess, err := session.New(session.Config{
		SessionID:      cfg.SessionID,
		Workdir:        cfg.Workdir,
		PackageManager: cfg.PackageManager,
		Policy:         cfg.Policy.Name,
		QuietWindow:    cfg.Policy.QuietWindow.Duration,
		NoBootstrap:    cfg.NoBootstrap,
		EventsPath:     cfg.Events,
		Notifier:       notifier,
		Terminal:       os.Stderr,
		Logger:         logger,
		PreviewPort:    cfg.Preview.Port,
		StaticPort:     cfg.Preview.StaticPort,
		InstallTimeout: cfg.Bootstrap.InstallTimeout.Duration,
		ReadyTimeout:   cfg.Bootstrap.ReadyTimeout.Duration,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot start session: %v", err), 2)
	}

	start := time.Now()
	feedStream(sess, c.String("turn-id"), input)

	sess.Wait()
	if err := sess.Close(); err != nil {
		logger.Warn("session close", map[string]any{"error": err.Error()})
	}

	summary := sess.Summary()
	if !c.Bool("quiet") {
		printSummary(summary, time.Since(start))
	}

	return cli.Exit("", summary.ExitCode())
}

// loadRunConfig merges the optional config file with CLI flags.
// Flags always win over file values. Without --config, a foundry.yaml in
// the working directory is picked up when present.
func loadRunConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(config.DefaultFilename); err == nil {
			path = config.DefaultFilename
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := c.String("session-id"); v != "" {
		cfg.SessionID = v
	}
	if v := c.String("workdir"); v != "" {
		cfg.Workdir = v
	}
	if v := c.String("package-manager"); v != "" {
		cfg.PackageManager = v
	}
	if v := c.String("policy"); v != "" {
		cfg.Policy.Name = v
	}
	if v := c.String("events"); v != "" {
		cfg.Events = v
	}
	if c.Bool("no-bootstrap") {
		cfg.NoBootstrap = true
	}
	if v := c.Int("port"); v != 0 {
		cfg.Preview.Port = v
	}
	if v := c.String("adapter"); v != "" {
		cfg.Adapter.Type = v
	}
	if v := c.String("adapter-url"); v != "" {
		cfg.Adapter.URL = v
	}
	if v := c.String("adapter-channel"); v != "" {
		cfg.Adapter.Channel = v
	}

	return cfg, nil
}

// buildAdapter constructs the notification adapter named by the config.
// An empty type means no adapter.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", cfg.Type)
	}
}

// openStream opens the directive input: "-" means stdin.
func openStream(src string) (io.Reader, func(), error) {
	if src == "-" || src == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// feedStream reads the input incrementally and feeds the growing cumulative
// text to the session, so actions execute as their close tags stream in.
// SIGINT/SIGTERM stops reading; settled work still flushes on close.
func feedStream(sess *session.Session, turnID string, input io.Reader) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	chunks := make(chan string)
	go func() {
		defer close(chunks)
		r := bufio.NewReader(input)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunks <- string(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	var cumulative string
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			cumulative += chunk
			sess.Feed(turnID, cumulative)
		case <-sigCh:
			return
		}
	}
}

func printSummary(sum session.Summary, elapsed time.Duration) {
	fmt.Printf("\nsession_id=%s, outcome=%s, duration=%s\n",
		sum.SessionID,
		sum.Outcome,
		elapsed.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Session Result ===\n")
	fmt.Printf("Session ID:   %s\n", sum.SessionID)
	fmt.Printf("Outcome:      %s\n", sum.Outcome)
	fmt.Printf("Artifacts:    %d\n", sum.Artifacts)
	fmt.Printf("Actions:      %d (%d complete, %d failed, %d aborted)\n",
		sum.Actions, sum.Completed, sum.Failed, sum.Aborted)
	if sum.PreviewReady {
		kind := "dev server"
		if sum.StaticFallback {
			kind = "static fallback"
		}
		fmt.Printf("Preview:      ready (%s)\n", kind)
	}
	if sum.SandboxDegraded {
		fmt.Printf("Sandbox:      in-memory fallback\n")
	}

	fmt.Printf("\n=== Write Stats ===\n")
	fmt.Printf("Writes Total:     %d\n", sum.Metrics.WritesTotal)
	fmt.Printf("Writes Persisted: %d\n", sum.Metrics.WritesPersisted)
	fmt.Printf("Writes Coalesced: %d\n", sum.Metrics.WritesCoalesced)
	fmt.Printf("Bytes Written:    %d\n", sum.Metrics.BytesWritten)

	if sum.Metrics.InstallsAttempted > 0 || sum.Metrics.RemediationsApplied > 0 {
		fmt.Printf("\n=== Bootstrap Stats ===\n")
		fmt.Printf("Installs:         %d (%d failed)\n",
			sum.Metrics.InstallsAttempted, sum.Metrics.InstallsFailed)
		fmt.Printf("Remediations:     %d\n", sum.Metrics.RemediationsApplied)
	}
}
