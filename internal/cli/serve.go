package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	transport "study-companion/internal/transport/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the study session to a local websocket client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServer(ctx context.Context, opts *rootOptions, addrFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, opts, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := addrFlag
	if addr == "" {
		addr = rt.cfg.Server.Addr
	}

	ws := transport.NewWSHandler(rt.session, transport.Options{
		MaxMessageBytes: rt.cfg.Ingest.MaxFileBytes*4/3 + 4096,
		Logger:          rt.log,
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           transport.NewMux(ws),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("starting study companion", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		rt.log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
