// Command promptmcp is the process entry point: it wires the Configuration
// surface, SourceManager, ReloadEngine, ToolRegistry, Control Surface and
// health resource together, performs the initial load, optionally starts
// watchers, and serves the MCP protocol surface until a termination signal
// arrives.
//
// Grounded on cmd/agently/cli.go's flag-parsing shape and
// cmd/agently/scheduler_run.go's graceful-shutdown-via-os/signal ordering
// (stop watchers, then exit), extended to a server process per spec.md §1's
// "long-running server" framing.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	app, err := newApp(ctx)
	if err != nil {
		return fmt.Errorf("promptmcp: startup: %w", err)
	}
	defer app.Shutdown()

	log.Printf("promptmcp: loaded %d prompt(s) from %s", app.initialLoad.Loaded, app.sources.TargetDir())
	if len(app.initialLoad.Errors) > 0 {
		log.Printf("promptmcp: %d document(s) failed to load during startup", len(app.initialLoad.Errors))
	}

	if app.cfg.WatchMode {
		if err := app.StartWatch(ctx); err != nil {
			log.Printf("promptmcp: watch mode failed to start: %v", err)
		}
	}

	return app.Serve(ctx)
}
