package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const DefaultShutdownTimeout = 10 * time.Second

// Serve runs srv on ln until ctx ends, then shuts it down within timeout.
// onShutdown funcs run as soon as shutdown starts; long-lived handlers such as
// event streams rely on them to return, since Shutdown waits for every handler.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logger *zap.Logger, onShutdown ...func()) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	serveErr := make(chan error, 1)
	logger.Info("listening", zap.String("addr", ln.Addr().String()))
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
