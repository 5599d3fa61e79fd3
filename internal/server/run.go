// Package server запускает HTTP-сервер сервиса вместе с фоновыми процессами и останавливает их по сигналу.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Run обслуживает handler на addr, пока не отменён ctx. Фоновые процессы background
// получают общий контекст и должны завершиться после его отмены.
func Run(ctx context.Context, logger *zap.Logger, addr string, handler http.Handler, background ...func(ctx context.Context)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, logger, ln, handler, background...)
}

// Serve работает как Run, но принимает уже открытый listener.
func Serve(ctx context.Context, logger *zap.Logger, ln net.Listener, handler http.Handler, background ...func(ctx context.Context)) error {
	sugar := logger.Sugar()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, fn := range background {
		g.Go(func() error {
			fn(ctx)
			return nil
		})
	}

	g.Go(func() error {
		sugar.Infow("starting server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Останавливаем сервер при отмене контекста: по сигналу или из-за ошибки в другой горутине
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
