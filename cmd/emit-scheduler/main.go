package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/emit-scheduler/pkg/config"
	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/output"
	"github.com/ritzau/emit-scheduler/pkg/pubsub"
	"github.com/ritzau/emit-scheduler/pkg/server"
	"github.com/ritzau/emit-scheduler/pkg/session"
	"github.com/ritzau/emit-scheduler/pkg/watcher"
	"github.com/ritzau/emit-scheduler/pkg/workspace"
)

const usage = `Usage: emit-scheduler [flags] <command> [files...]

Commands:
  affected <file>   list the files a shape change to <file> reaches
  dependents <file> list the files that reference <file> directly
  emit <file>...    emit files unconditionally
  graph             print the dependency graph as JSON
  cycles            list reference cycles
  watch             emit affected files as the workspace changes
  serve             watch and serve the HTTP API

Flags:
`

func main() {
	flags := pflag.NewFlagSet("emit-scheduler", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.StringP("workspace", "w", ".", "Path to the workspace root")
	flags.String("manifest", "", "Project manifest (default <workspace>/"+workspace.ManifestName+")")
	flags.Int("port", 8080, "Port for the HTTP API (serve)")
	flags.Bool("write", true, "Write emitted files to disk")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	flags.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	flags.Bool("json-logs", false, "Log as JSON")
	flags.Bool("debug-checks", false, "Verify dependency graph invariants after each refresh")
	flags.Int("emit-cache-size", workspace.DefaultCacheSize, "Declaration emit cache entries")
	flags.Int("quiet-period-ms", 150, "Watch: wait for changes to settle this long")
	flags.Int("max-wait-ms", 1000, "Watch: never delay a batch longer than this")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	level := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
	if cfg.JSONLogs {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, args[0], args[1:]); err != nil {
		logging.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	ws, err := workspace.Load(ctx, cfg.Workspace, workspace.Options{
		Manifest:  cfg.Manifest,
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		return err
	}

	var hub *pubsub.Hub
	opts := session.Options{Write: cfg.Write, DebugChecks: cfg.DebugChecks}
	if command == "serve" {
		hub = pubsub.NewHub()
		hub.ConfigureTopic(pubsub.TopicStatus, pubsub.TopicConfig{BufferSize: 1})
		hub.ConfigureTopic(pubsub.TopicEmits, pubsub.TopicConfig{BufferSize: 20, ReplayAll: true})
		defer hub.Close()
		opts.Publisher = hub
	}
	s := session.New(ws, opts)

	// Captured before any goroutine starts: once the server runs, only the
	// session may touch the workspace.
	paths := watchPaths{root: ws.Root(), manifest: ws.ManifestPath(), outDir: ws.Manifest().CompilerOptions.OutDir}

	switch command {
	case "affected":
		if len(args) != 1 {
			return fmt.Errorf("affected takes exactly one file")
		}
		// Without recorded shapes every file counts as changed, so the
		// result is everything a shape change could reach.
		s.Reset()
		affected, err := s.Affected(args[0])
		if err != nil {
			return err
		}
		output.PrintAffected(os.Stdout, args[0], affected)

	case "dependents":
		if len(args) != 1 {
			return fmt.Errorf("dependents takes exactly one file")
		}
		deps, err := s.Dependents(args[0])
		if err != nil {
			return err
		}
		output.PrintDependents(os.Stdout, args[0], deps)

	case "emit":
		if len(args) == 0 {
			return fmt.Errorf("emit takes at least one file")
		}
		for _, name := range args {
			report, err := s.Emit(ctx, name)
			if err != nil {
				return err
			}
			output.PrintReport(os.Stdout, report)
		}

	case "graph":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s.Graph())

	case "cycles":
		output.PrintCycles(os.Stdout, s.Cycles())

	case "watch":
		return watch(ctx, cfg, s, paths)

	case "serve":
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return watch(ctx, cfg, s, paths) })
		g.Go(func() error { return server.New(s, hub).Start(ctx, cfg.Port) })
		return g.Wait()

	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// watchPaths locates what the file watcher observes.
type watchPaths struct {
	root     string
	manifest string
	outDir   string
}

// watch applies debounced file system changes until ctx is done.
func watch(ctx context.Context, cfg *config.Config, s *session.Session, paths watchPaths) error {
	fw, err := watcher.NewFileWatcher(paths.root, paths.manifest, paths.outDir)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), cfg.QuietPeriod(), cfg.MaxWait())
	debouncer.Start(ctx)

	logging.Info("watching for changes", "workspace", paths.root, "files", s.Status().Files)
	for batch := range debouncer.Output() {
		report, err := s.ApplyChanges(ctx, watcher.PlanChanges(batch))
		if err != nil {
			// A broken manifest or unreadable file must not end the watch.
			logging.Error("failed to apply changes", "error", err)
			continue
		}
		output.PrintBatch(os.Stdout, report)
	}
	return nil
}
