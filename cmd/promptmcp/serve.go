package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/viant/jsonrpc/transport"
	mcpclientproto "github.com/viant/mcp-protocol/client"
	mcplogger "github.com/viant/mcp-protocol/logger"
	mcpserverproto "github.com/viant/mcp-protocol/server"
	mcpserver "github.com/viant/mcp/server"
)

const shutdownGrace = 5 * time.Second

// Serve exposes the app's ToolRegistry over the configured transport until
// ctx is cancelled by a termination signal. The MCP protocol transport
// itself is outside the core's scope (spec.md §1); this wiring mirrors
// internal/mcp/expose/http_server.go's mcpserver.New/WithNewHandler/HTTP
// call shape for the HTTP case, extended by analogy to stdio/SSE per
// spec.md §9's framing of transport as an external collaborator.
func (a *app) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := mcpserver.New(
		mcpserver.WithNewHandler(func(_ context.Context, _ transport.Notifier, _ mcplogger.Logger, _ mcpclientproto.Operations) (mcpserverproto.Handler, error) {
			return a.reg, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("serve: build server: %w", err)
	}

	switch a.cfg.TransportType {
	case "stdio":
		return srv.Stdio(ctx)
	case "sse":
		srv.UseStreamableHTTP(false)
	case "http":
		srv.UseStreamableHTTP(true)
	default:
		return fmt.Errorf("serve: unsupported transport %q", a.cfg.TransportType)
	}

	httpSrv := srv.HTTP(ctx, a.cfg.HTTPAddr())

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
