// Command achievements-sync inspects and drives an achievement storage chain:
// a synchronous cache over a durable offline queue over the remote API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	trifleachievements "github.com/trifle-io/trifle_achievements_go"
)

type cliConfig struct {
	Remote   trifleachievements.RemoteConfig
	QueueDB  string
	Health   string
	Offline  bool
	Strategy string
}

func main() {
	log.SetPrefix("[ACHIEVEMENTS] ")
	log.SetFlags(0)

	cfg, args, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if len(args) == 0 {
		log.Fatalf("usage: achievements-sync [flags] status|get|set|unlock|sync|clear|export|import")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, args, os.Stdout); err != nil {
		if classified, ok := trifleachievements.AsError(err); ok && classified.Remedy != "" {
			log.Fatalf("%s: %v (%s)", classified.Code, classified, classified.Remedy)
		}
		log.Fatalf("%v", err)
	}
}

func parseConfig(fs *flag.FlagSet, args []string) (cliConfig, []string, error) {
	remote, err := trifleachievements.LoadRemoteConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	cfg := cliConfig{Remote: remote, QueueDB: "achievements.db", Strategy: string(trifleachievements.MergeReplace)}
	if path := os.Getenv("ACHIEVEMENTS_QUEUE_DB"); path != "" {
		cfg.QueueDB = path
	}

	fs.StringVar(&cfg.Remote.BaseURL, "url", cfg.Remote.BaseURL, "Base URL of the achievements API")
	fs.StringVar(&cfg.Remote.UserID, "user", cfg.Remote.UserID, "User id whose achievements are managed")
	fs.DurationVar(&cfg.Remote.Timeout, "timeout", cfg.Remote.Timeout, "Per-request timeout")
	fs.StringVar(&cfg.QueueDB, "db", cfg.QueueDB, "SQLite file holding the offline queue")
	fs.StringVar(&cfg.Health, "health", "", "Health URL polled to detect connectivity")
	fs.BoolVar(&cfg.Offline, "offline", false, "Start offline; writes are only queued")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "Import merge strategy: replace, merge or preserve")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, fs.Args(), nil
}

func run(ctx context.Context, cfg cliConfig, args []string, out io.Writer) error {
	blobs, err := trifleachievements.OpenSQLiteBlobStore(cfg.QueueDB)
	if err != nil {
		return err
	}
	defer blobs.DB.Close()

	var conn trifleachievements.Connectivity = trifleachievements.NewManualConnectivity(!cfg.Offline)
	if cfg.Health != "" && !cfg.Offline {
		probe := trifleachievements.NewProbeConnectivity(cfg.Health, trifleachievements.ProbeOptions{})
		defer probe.Close()
		conn = probe
	}

	var (
		failuresMu sync.Mutex
		failures   []*trifleachievements.Error
	)
	chain := trifleachievements.DefaultConfig()
	chain.Remote = cfg.Remote
	chain.QueueBlobs = blobs
	chain.Connectivity = conn
	chain.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	chain.OnError = func(err *trifleachievements.Error) {
		failuresMu.Lock()
		failures = append(failures, err)
		failuresMu.Unlock()
		log.Printf("%s: %v", err.Code, err)
	}

	store, err := chain.Store()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = chain.Shutdown(shutdownCtx)
	}()
	if err := store.WaitLoaded(ctx); err != nil {
		return err
	}
	// Load failures were logged; only write failures decide the exit status.
	failuresMu.Lock()
	failures = nil
	failuresMu.Unlock()

	queue := chain.Queue()
	switch args[0] {
	case "status":
		status := queue.Status()
		return writeJSON(out, map[string]any{
			"online":     conn.Online(),
			"pending":    status.Pending,
			"operations": status.Operations,
		})
	case "get":
		return writeJSON(out, map[string]any{
			"metrics":              store.GetMetrics(),
			"unlockedAchievements": store.GetUnlockedAchievements(),
		})
	case "set":
		if len(args) != 3 {
			return errors.New("usage: set <metric> <value>")
		}
		metrics := store.GetMetrics()
		metrics[args[1]] = append(metrics[args[1]], parseValue(args[2]))
		store.SetMetrics(metrics)
	case "unlock":
		if len(args) != 2 {
			return errors.New("usage: unlock <achievement-id>")
		}
		ids := store.GetUnlockedAchievements()
		for _, id := range ids {
			if id == args[1] {
				return nil
			}
		}
		store.SetUnlockedAchievements(append(ids, args[1]))
	case "sync":
		if err := store.Drain(ctx); err != nil {
			return err
		}
		if err := queue.Sync(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "pending: %d\n", queue.Status().Pending)
	case "clear":
		store.Clear()
	case "export":
		data, err := trifleachievements.Export(store)
		if err != nil {
			return err
		}
		_, err = out.Write(append(data, '\n'))
		return err
	case "import":
		if len(args) != 2 {
			return errors.New("usage: import <file>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		result, err := trifleachievements.Import(store, data, trifleachievements.ImportOptions{
			Strategy: trifleachievements.MergeStrategy(cfg.Strategy),
		})
		if err != nil {
			return err
		}
		if err := writeJSON(out, result); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	if err := store.Drain(ctx); err != nil {
		return err
	}
	failuresMu.Lock()
	defer failuresMu.Unlock()
	if len(failures) > 0 {
		return failures[0]
	}
	return nil
}

func parseValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at
	}
	return raw
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
