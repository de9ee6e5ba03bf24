package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mmeshcher/palmastro/internal/apiclient"
	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/orchestrator"
	"github.com/mmeshcher/palmastro/internal/storage"
	"github.com/mmeshcher/palmastro/internal/store"
)

// app связывает компоненты клиента на время выполнения одной команды.
type app struct {
	cfg      *config.ClientConfig
	logger   *zap.Logger
	creds    *credentials.Session
	api      *apiclient.Fallback
	readings *store.Readings
	auth     *store.Auth
	orch     *orchestrator.Orchestrator
	out      io.Writer
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

func newApp(cfg *config.ClientConfig, st storage.Store, logger *zap.Logger, out io.Writer) (*app, error) {
	creds := credentials.NewSession(st)

	sim := apiclient.NewSimulated(creds, apiclient.WithDelay(cfg.MockDelayMin, cfg.MockDelayMax))

	var live apiclient.API
	if !cfg.UseMockAPI {
		l, err := apiclient.NewLive(cfg.BaseURL, creds, logger,
			apiclient.WithHTTPTimeout(cfg.HTTPTimeout),
			apiclient.WithRetry(cfg.RetryAttempts, 0),
			apiclient.WithDebugLogging(cfg.Debug),
		)
		if err != nil {
			return nil, fmt.Errorf("create api client: %w", err)
		}
		live = l
	}

	api := apiclient.NewFallback(live, sim, cfg.UseMockAPI, logger)
	readings := store.NewReadings(api, logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		creds:    creds,
		api:      api,
		readings: readings,
		auth:     store.NewAuth(api, creds, logger),
		orch:     orchestrator.New(api, readings, orchestrator.ConfigFrom(cfg), logger),
		out:      out,
	}

	if u, ok, err := a.auth.Restore(); err != nil {
		logger.Warn("failed to restore user", zap.Error(err))
	} else if ok {
		logger.Debug("user restored", zap.String("user_id", u.ID))
	}

	return a, nil
}

// logMetrics пишет в отладочный лог счётчики API-клиента.
func (a *app) logMetrics() {
	if a.logger.Core().Enabled(zapcore.DebugLevel) {
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			a.logger.Debug("gather metrics failed", zap.Error(err))
			return
		}
		for _, mf := range families {
			if !strings.HasPrefix(mf.GetName(), "palmastro_client_") {
				continue
			}
			for _, m := range mf.GetMetric() {
				fields := []zap.Field{zap.String("metric", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue())}
				for _, lp := range m.GetLabel() {
					fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
				}
				a.logger.Debug("client metric", fields...)
			}
		}
	}
}

func (a *app) close() {
	a.logMetrics()
	_ = a.logger.Sync()
}
