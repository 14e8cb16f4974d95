package bridge

import (
	"time"

	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/metrics"
)

// Option configures a Bridge.
type Option func(*config)

type config struct {
	logger        *logging.Logger
	metrics       *metrics.Metrics
	invokeTimeout time.Duration
	healthTimeout time.Duration
	maxInputBytes int
	defaultModel  string
	workspaceDir  string
	systemPrompt  string
}

// WithLogger sets the logger used by the bridge.
func WithLogger(l *logging.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithInvokeTimeout sets the hard per-invocation deadline.
func WithInvokeTimeout(d time.Duration) Option {
	return func(c *config) { c.invokeTimeout = d }
}

// WithHealthTimeout bounds the version probe.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *config) { c.healthTimeout = d }
}

// WithMaxInputBytes caps the sanitized payload size.
func WithMaxInputBytes(n int) Option {
	return func(c *config) { c.maxInputBytes = n }
}

// WithDefaultModel sets the model used when a session has none.
func WithDefaultModel(model string) Option {
	return func(c *config) { c.defaultModel = model }
}

// WithWorkspaceDir sets the directory the agent is granted access to.
func WithWorkspaceDir(dir string) Option {
	return func(c *config) { c.workspaceDir = dir }
}

// WithSystemPrompt sets an optional prompt appended to every invocation.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) { c.systemPrompt = prompt }
}
