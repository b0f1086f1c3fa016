package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-restyle/internal/artifact"
	"github.com/cwbudde/algo-restyle/internal/server"
	"github.com/cwbudde/algo-restyle/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve the session API:

  POST /v1/sessions               start a session (JSON or multipart upload)
  GET  /v1/sessions               list known sessions
  GET  /v1/sessions/:id           session status and result
  GET  /v1/sessions/:id/attempts  attempt records
  GET  /healthz

Example:
  restyle serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	sess, err := newSession(cfg, logger, sinkOf(store), nil)
	if err != nil {
		return err
	}

	opts := server.Options{
		Runner:    sess,
		UploadDir: filepath.Join(cfg.Session.OutputDir, "uploads"),
		Logger:    logger,
	}
	if store != nil {
		opts.Records = store
	}
	if publisher != nil {
		opts.OnDone = func(ctx context.Context, res *session.Result) {
			if _, err := artifact.Publish(ctx, publisher, res); err != nil {
				logger.Warn("publish failed", "session", res.ID, "err", err)
			}
		}
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
