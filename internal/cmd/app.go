package cmd

import (
	"fmt"

	"github.com/agentrelay/agentrelay/internal/agent"
	"github.com/agentrelay/agentrelay/internal/bridge"
	"github.com/agentrelay/agentrelay/internal/config"
	"github.com/agentrelay/agentrelay/internal/confirm"
	"github.com/agentrelay/agentrelay/internal/executor"
	"github.com/agentrelay/agentrelay/internal/handler"
	"github.com/agentrelay/agentrelay/internal/janitor"
	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/metrics"
	"github.com/agentrelay/agentrelay/internal/risk"
	"github.com/agentrelay/agentrelay/internal/session"
	"github.com/agentrelay/agentrelay/internal/transport"
)

// app holds the wired relay components for a command's lifetime.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	metrics    *metrics.Metrics
	store      *session.Store
	confirms   *confirm.Manager
	classifier *risk.Classifier
	bridge     *bridge.Bridge
	janitor    *janitor.Janitor
}

// buildApp loads configuration and wires everything except the handler,
// which needs a Sender the command supplies.
func buildApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	m := metrics.New()
	store := session.NewStore(cfg.Session.MaxPerUser, cfg.Session.TTL, cfg.Access.AllowedUsers, m, logger)
	confirms := confirm.NewManager(cfg.Confirm.Timeout, cfg.Confirm.MaxPending, cfg.Confirm.StrictPhrase, m, logger)

	classifier := risk.NewClassifier(logger)
	if cfg.Risk.RulesFile != "" {
		classifier, err = risk.NewClassifierFromFile(cfg.Risk.RulesFile, logger)
		if err != nil {
			logger.Close()
			return nil, err
		}
		if err := classifier.WatchFile(cfg.Risk.RulesFile); err != nil {
			logger.Warn("risk rules watcher unavailable", "error", err)
		}
	}

	backend, err := agent.New(cfg.Agent.Backend, cfg.Agent.Command)
	if err != nil {
		logger.Close()
		return nil, err
	}

	br := bridge.New(store, backend, executor.New(logger),
		bridge.WithLogger(logger),
		bridge.WithMetrics(m),
		bridge.WithInvokeTimeout(cfg.Agent.InvokeTimeout),
		bridge.WithHealthTimeout(cfg.Agent.HealthTimeout),
		bridge.WithMaxInputBytes(cfg.Agent.MaxInputBytes),
		bridge.WithDefaultModel(cfg.Agent.DefaultModel),
		bridge.WithWorkspaceDir(cfg.Agent.WorkspaceDir),
		bridge.WithSystemPrompt(cfg.Agent.SystemPrompt),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		store:      store,
		confirms:   confirms,
		classifier: classifier,
		bridge:     br,
	}, nil
}

// buildHandler completes the wiring for an interactive command and
// starts the janitor.
func (a *app) buildHandler(sender transport.Sender, verbose bool) (*handler.Handler, error) {
	filter, err := transport.NewFileFilter(a.cfg.Transport.AllowedFileGlobs)
	if err != nil {
		return nil, err
	}

	h := handler.New(a.bridge, a.store, a.confirms, a.classifier, sender, filter, a.logger, handler.Options{
		Debounce:          a.cfg.Batch.DebounceDelay,
		MaxBatchMessages:  a.cfg.Batch.MaxMessages,
		MaxBatchFiles:     a.cfg.Batch.MaxFiles,
		BatchStaleAfter:   a.cfg.Batch.StaleAfter,
		ChunkSize:         a.cfg.Transport.ChunkSize,
		KeepaliveInterval: a.cfg.Transport.KeepaliveInterval,
		StreamBatchSize:   a.cfg.Transport.StreamBatchSize,
		StreamInterval:    a.cfg.Transport.StreamFlushInterval,
		Verbose:           verbose,
	})

	j, err := janitor.New(a.cfg.Janitor.SweepInterval, a.store, h.Batches(), a.confirms, a.logger)
	if err != nil {
		return nil, err
	}
	j.Start()
	a.janitor = j

	return h, nil
}

// close releases everything buildApp and buildHandler acquired.
func (a *app) close() {
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if a.classifier != nil {
		a.classifier.Close()
	}
	if a.logger != nil {
		a.logger.Close()
	}
}
