package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"earshot/internal/bootstrap"
	"earshot/internal/domain"
	"earshot/internal/usecase"
)

type listenOptions struct {
	latency     string
	gate        float64
	talkback    bool
	metricsAddr string
	notes       bool
}

func newListenCmd() *cobra.Command {
	var opts listenOptions

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream the microphone to a live session until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.latency, "latency", "", "latency preference: interactive, balanced or playback")
	flags.Float64Var(&opts.gate, "gate", 0, "noise gate threshold in [0, 0.05]")
	flags.BoolVar(&opts.talkback, "talkback", false, "play reply audio")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.BoolVar(&opts.notes, "notes", false, "organize the transcript into a note on exit")
	return cmd
}

func runListen(cmd *cobra.Command, opts listenOptions) error {
	out := cmd.OutOrStdout()
	services, err := bootstrap.Build(newTerminalSink(out), nil)
	if err != nil {
		return err
	}
	logger := services.Logger

	session := sessionFromFlags(cmd, services.Config.Session.Domain(), opts)

	addr := services.Config.Metrics.Addr
	if cmd.Flags().Changed("metrics-addr") {
		addr = opts.metricsAddr
	}
	if addr != "" {
		srv := newMetricsServer(addr, services.Registry)
		go func() {
			logger.Info("serving metrics", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := services.Controller
	if err := controller.Connect(ctx, services.Config.Gemini.APIKey, session); err != nil && !errors.Is(err, usecase.ErrConnectAborted) {
		return err
	}

	<-ctx.Done()
	controller.Disconnect()
	services.Speaker.Close()

	if !opts.notes {
		return nil
	}
	return noteFromSegments(context.Background(), out, services.Notes, services.Controller.Segments(), services.Config.Gemini.APIKey)
}

// noteFromSegments organizes the whole session transcript, both speakers
// and any segment still partial at disconnect, and prints the note.
func noteFromSegments(ctx context.Context, out io.Writer, notes *usecase.NoteTaker, segments []domain.Segment, credential string) error {
	result, err := notes.Take(ctx, usecase.TranscriptText(segments), credential)
	if errors.Is(err, usecase.ErrNoTranscript) {
		fmt.Fprintln(out, "no transcript captured")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, result.Markdown)
	return nil
}

func sessionFromFlags(cmd *cobra.Command, session domain.SessionConfig, opts listenOptions) domain.SessionConfig {
	flags := cmd.Flags()
	if flags.Changed("latency") {
		session.LatencyPreference = domain.LatencyPreference(strings.ToLower(opts.latency))
	}
	if flags.Changed("gate") {
		session.NoiseGateThreshold = opts.gate
	}
	if flags.Changed("talkback") {
		session.Talkback = opts.talkback
	}
	return session.Normalize()
}

func newMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
