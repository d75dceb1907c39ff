// Package runtime wires the daemon together: configuration, telemetry,
// the recording session, delivery, and the HTTP control API.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/audio"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/bus"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/config"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/natsserver"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/session"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/sink"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/stt"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/transcript"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	session *session.Session
	sink    *sink.Sink
	store   *transcript.Store
	busCli  *bus.Client

	// inputDevice is swapped out by tests to avoid touching real hardware.
	inputDevice func() (string, bool)
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:         cfg,
		logger:      logger,
		inputDevice: audio.DefaultInputDevice,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.busCli, err = bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
	}

	r.store, err = transcript.Open(ctx, r.cfg.Transcripts, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}

	factory := stt.NewFactory(r.cfg.STT, r.cfg.Audio.TargetSampleRate, r.logger)
	queue := session.NewQueue(r.cfg.Events.QueueCapacity)

	captureCfg := audio.CaptureConfig{
		SampleRate: r.cfg.Audio.DeviceSampleRate,
		BlockSize:  r.cfg.Audio.BlockSize,
	}
	sources := func() (audio.Source, error) {
		return audio.NewCaptureSource(captureCfg)
	}

	r.session = session.New(session.Config{
		TargetSampleRate: r.cfg.Audio.TargetSampleRate,
		Conditioner:      conditionerParams(r.cfg.Conditioner),
	}, sources, factory, queue, r.logger)

	var publisher sink.Publisher
	if r.busCli != nil {
		publisher = r.busCli
	}
	r.sink = sink.New(ctx, r.cfg.Events, queue, r.store, publisher, r.logger)
	r.sink.Start(r.session.Notify())

	if err := registerMetrics(r.session, queue, r.sink); err != nil {
		r.logger.Warn("failed to register metrics", slog.String("error", err.Error()))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	r.registerAPI(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("daemon started",
		slog.String("addr", addr),
		slog.String("backend", r.cfg.STT.Backend))

	<-ctx.Done()
	r.logger.Info("daemon stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if err := r.session.Stop(); err != nil {
		r.logger.Error("session stop error", slog.String("error", err.Error()))
	}
	r.sink.Close()
	factory.Close()

	r.busCli.Close()
	embedded.Shutdown()

	if err := r.store.Close(); err != nil {
		r.logger.Error("transcript store close error", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func conditionerParams(cfg config.ConditionerConfig) audio.ConditionerParams {
	return audio.ConditionerParams{
		Enabled:       cfg.Enabled,
		NoiseGateRMS:  cfg.NoiseGateRMS,
		SoftGateRMS:   cfg.SoftGateRMS,
		HighPassCoeff: cfg.HighPassCoeff,
		GainTarget:    cfg.GainTarget,
		MaxGain:       cfg.MaxGain,
		MinBoost:      cfg.MinBoost,
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
