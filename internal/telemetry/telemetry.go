// Package telemetry implements the TelemetryAssembler and SharedState
// collaborators: turning a types.PreAssembledSpan into a structured log line
// plus Prometheus counters, and serving a minimal /healthz and /metrics HTTP
// surface for the process lifetime.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"rainsolver/pkg/types"
)

// SharedState is the process-wide lifetime object created at startup and
// torn down at shutdown: RPC metrics, the round counter, and the HTTP
// surface that exposes both.
type SharedState struct {
	rpcMetrics *types.RpcMetrics

	roundsTotal     prometheus.Counter
	settlementTotal *prometheus.CounterVec
	profitWei       prometheus.Counter

	server *http.Server
	logger *slog.Logger
}

// Config is the telemetry-relevant slice of solver configuration.
type Config struct {
	ListenAddr string // empty disables the HTTP surface
}

// NewSharedState builds the process-wide telemetry state. Its collectors
// register against a registry private to this instance rather than
// prometheus.DefaultRegisterer, so constructing more than one SharedState
// (as the test suite does) never collides on metric names.
func NewSharedState(cfg Config, logger *slog.Logger) *SharedState {
	logger = logger.With("component", "telemetry")

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	s := &SharedState{
		rpcMetrics: types.NewRpcMetrics(),
		roundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rainsolver_rounds_total",
			Help: "Number of scheduling rounds completed.",
		}),
		settlementTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rainsolver_settlements_total",
			Help: "Settlement outcomes by reason.",
		}, []string{"reason", "severity"}),
		profitWei: factory.NewCounter(prometheus.CounterOpts{
			Name: "rainsolver_realized_profit_wei_total",
			Help: "Cumulative realized profit in wei, as reported by FoundOpportunity settlements.",
		}),
		logger: logger,
	}

	if cfg.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", s.handleHealth)
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		s.server = &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}

	return s
}

// RpcMetrics exposes the shared RPC counters for Client/Signer
// implementations to record against.
func (s *SharedState) RpcMetrics() *types.RpcMetrics { return s.rpcMetrics }

// Start runs the HTTP surface, if configured. It blocks until the server
// stops; callers run it in its own goroutine.
func (s *SharedState) Start() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("telemetry server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("telemetry server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP surface down, if running.
func (s *SharedState) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *SharedState) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// RecordRound increments the round counter.
func (s *SharedState) RecordRound() { s.roundsTotal.Inc() }

// Assembler is the TelemetryAssembler: the only place a types.PreAssembledSpan
// is turned into both a log line and Prometheus observations.
type Assembler struct {
	state  *SharedState
	logger *slog.Logger
}

// NewAssembler builds an Assembler bound to state's counters.
func NewAssembler(state *SharedState, logger *slog.Logger) *Assembler {
	return &Assembler{state: state, logger: logger.With("component", "telemetry-assembler")}
}

// ExportPreAssembledSpan implements external.Logger. u256 attrs are rendered
// through AttrsWithU256 first so large integers never lose precision going
// through the logging pipeline, and profit wei is additionally formatted as
// a human-readable decimal.Decimal for the log line.
func (a *Assembler) ExportPreAssembledSpan(ctx context.Context, span types.PreAssembledSpan) error {
	a.state.settlementTotal.WithLabelValues(string(span.Reason), string(span.Severity)).Inc()

	attrs := types.AttrsWithU256(span.Attrs)
	args := []any{
		"reason", span.Reason,
		"severity", span.Severity,
		"duration", span.EndTime.Sub(span.StartTime),
	}
	for k, v := range attrs {
		args = append(args, k, v)
	}

	if span.Reason == types.ReasonFoundOpportunity {
		if raw, ok := span.Attrs["gasCostWei"].(types.U256JSON); ok && raw.Int != nil {
			wei := decimal.NewFromBigInt(raw.Int.ToBig(), 0)
			args = append(args, "gasCostWeiDecimal", wei.String())
		}
		if raw, ok := span.Attrs["estimatedProfitWei"].(types.U256JSON); ok && raw.Int != nil {
			profit := decimal.NewFromBigInt(raw.Int.ToBig(), 0)
			args = append(args, "estimatedProfitWeiDecimal", profit.String())
			a.state.profitWei.Add(profit.InexactFloat64())
		}
	}

	level := slog.LevelInfo
	switch span.Severity {
	case types.SeverityHigh:
		level = slog.LevelError
	case types.SeverityMedium:
		level = slog.LevelWarn
	}
	a.logger.Log(ctx, level, span.Name, args...)

	for _, evt := range span.Events {
		a.logger.Debug(evt.Name, "span", span.Name, "at", evt.Timestamp)
	}

	return nil
}
