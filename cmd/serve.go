package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ticketsync/internal/webhook"
)

var (
	serveAddr     string
	serveInsecure bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive Linear webhooks and reconcile them onto GitHub",
	Long: `Start the webhook server.

Linear should be configured to deliver Issue, Comment and Cycle webhooks to
http://<host><addr>/webhooks/linear. Every delivery is verified against the
webhook secret, deduplicated by its Linear-Delivery id, and reconciled before
the response is written: 200 when the event was handled (including events no
sync link covers), 4xx for unusable requests, 5xx when Linear should retry.

GET /health answers 200 while the server runs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr, :8080)")
	serveCmd.Flags().BoolVar(&serveInsecure, "insecure-no-signature", false, "Accept unsigned webhooks (local testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, logger, closer, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	var secret []byte
	if !serveInsecure {
		s, err := GetWebhookSecret()
		if err != nil {
			return err
		}
		secret = []byte(s)
	} else {
		logger.Warn("webhook signature verification disabled")
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.GetString(keyServerAddr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := webhook.NewHandler(secret, engine, logger)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           webhook.NewMux(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Reconciliation runs inside the request; leave room for a few
		// outbound calls.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("webhook server listening", "address", listener.Addr().String())
	if !IsJSONOutput() {
		fmt.Printf("Listening on %s (POST /webhooks/linear)\n", listener.Addr())
	}

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		logger.Info("webhook server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetDuration(keyServerShutdownPeriod))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook server shutdown: %w", err)
	}
	logger.Info("webhook server stopped")
	return nil
}
