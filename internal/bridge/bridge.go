package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentrelay/agentrelay/internal/agent"
	"github.com/agentrelay/agentrelay/internal/errors"
	"github.com/agentrelay/agentrelay/internal/executor"
	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/metrics"
	"github.com/agentrelay/agentrelay/internal/parser"
	"github.com/agentrelay/agentrelay/internal/session"
	"github.com/agentrelay/agentrelay/internal/util"
)

const (
	defaultInvokeTimeout = 5 * time.Minute
	defaultHealthTimeout = 10 * time.Second
	defaultMaxInputBytes = 100000
)

// tokenPattern bounds the shape of resume tokens the agent may hand
// back. Anything else is discarded rather than persisted, so a
// malformed token can never reach a later argv.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9-]{8,128}$`)

// Bridge turns a user message into a correctly-parameterized agent
// invocation and an InvocationResult. It composes the session store,
// the backend argv builder, the executor, and the parser.
type Bridge struct {
	store   *session.Store
	backend agent.Backend
	runner  Runner
	logger  *logging.Logger
	metrics *metrics.Metrics

	invokeTimeout time.Duration
	healthTimeout time.Duration
	maxInputBytes int
	defaultModel  string
	workspaceDir  string
	systemPrompt  string
}

// New creates a Bridge. The store, backend, and runner must be non-nil;
// passing nil panics early to surface wiring bugs immediately.
func New(store *session.Store, backend agent.Backend, runner Runner, opts ...Option) *Bridge {
	if store == nil {
		panic("bridge: session store must not be nil")
	}
	if backend == nil {
		panic("bridge: agent backend must not be nil")
	}
	if runner == nil {
		panic("bridge: runner must not be nil")
	}

	cfg := &config{
		logger:        logging.NopLogger(),
		invokeTimeout: defaultInvokeTimeout,
		healthTimeout: defaultHealthTimeout,
		maxInputBytes: defaultMaxInputBytes,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = metrics.New()
	}
	if cfg.invokeTimeout <= 0 {
		cfg.invokeTimeout = defaultInvokeTimeout
	}
	if cfg.healthTimeout <= 0 {
		cfg.healthTimeout = defaultHealthTimeout
	}
	if cfg.maxInputBytes <= 0 {
		cfg.maxInputBytes = defaultMaxInputBytes
	}

	return &Bridge{
		store:         store,
		backend:       backend,
		runner:        runner,
		logger:        cfg.logger,
		metrics:       cfg.metrics,
		invokeTimeout: cfg.invokeTimeout,
		healthTimeout: cfg.healthTimeout,
		maxInputBytes: cfg.maxInputBytes,
		defaultModel:  cfg.defaultModel,
		workspaceDir:  cfg.workspaceDir,
		systemPrompt:  cfg.systemPrompt,
	}
}

// Send relays text to the agent on behalf of a user and returns the
// invocation result. Failures are carried in the result's Err field and
// never raised past this boundary.
func (b *Bridge) Send(ctx context.Context, userID int64, text string, opts SendOptions) *InvocationResult {
	if !b.store.Authorized(userID) {
		return &InvocationResult{Err: errors.ErrUnauthorized}
	}

	text = strings.TrimSpace(util.StripControl(text))
	if text == "" {
		return &InvocationResult{Err: errors.ErrEmptyInput}
	}
	if capped, dropped := util.TruncateBytes(text, b.maxInputBytes); dropped > 0 {
		// Source behavior: overflow is silently truncated, not
		// rejected. Logged so the data loss is at least visible.
		b.logger.Warn("input truncated", "user_id", userID, "dropped_bytes", dropped)
		text = capped
	}

	// Opportunistic sweep before every dispatch.
	b.store.ExpireIdle()

	sess, err := b.store.Resolve(userID, opts.Session)
	if err != nil {
		return &InvocationResult{Err: err}
	}
	if opts.ForceNew && sess.AgentSessionID != "" {
		b.store.ClearToken(userID, sess.Name)
		sess.AgentSessionID = ""
	}

	model := sess.Model
	if model == "" {
		model = b.defaultModel
	}
	argv := b.backend.BuildArgs(agent.InvokeSpec{
		Model:        model,
		WorkspaceDir: b.workspaceDir,
		SystemPrompt: b.systemPrompt,
		ResumeToken:  sess.AgentSessionID,
	})

	invocationID := ulid.Make().String()
	log := b.logger.WithUser(userID).WithSession(sess.Name).WithInvocation(invocationID)
	log.Info("invoking agent", "backend", b.backend.Name(), "resume", sess.AgentSessionID != "", "bytes", len(text))

	started := time.Now()
	res, runErr := b.runner.Run(ctx, executor.Request{
		Argv:     argv,
		Stdin:    text,
		Timeout:  b.invokeTimeout,
		Observer: opts.Observer,
	})

	if runErr != nil {
		if res != nil && res.TimedOut {
			// Favor showing whatever the agent produced before the
			// deadline killed it.
			partial := strings.TrimSpace(string(res.Stdout))
			log.Warn("invocation timed out", "elapsed", time.Since(started), "partial_bytes", len(partial))
			b.metrics.Invocations.WithLabelValues(metrics.OutcomeTimeout).Inc()
			return &InvocationResult{
				Content:     partial,
				Err:         runErr,
				SessionName: sess.Name,
				TimedOut:    true,
			}
		}
		log.Error("invocation failed", "error", runErr)
		b.metrics.Invocations.WithLabelValues(metrics.OutcomeError).Inc()
		return &InvocationResult{Err: runErr, SessionName: sess.Name}
	}

	reply := parser.Parse(res.Stdout)
	if !reply.Success {
		log.Error("agent returned an error", "agent_error", reply.Error)
		b.metrics.Invocations.WithLabelValues(metrics.OutcomeError).Inc()
		wrapped := fmt.Errorf("%w: %s", errors.ErrToolFailed, reply.Error)
		if reply.Error == parser.FailureMessage {
			wrapped = errors.ErrParse
		}
		return &InvocationResult{Err: wrapped, SessionName: sess.Name}
	}

	token := reply.SessionID
	if token != "" && !tokenPattern.MatchString(token) {
		log.Warn("discarding malformed resume token", "token_len", len(token))
		token = ""
	}
	b.store.SaveToken(userID, sess.Name, token)

	log.Info("invocation complete", "elapsed", time.Since(started), "content_bytes", len(reply.Content))
	b.metrics.Invocations.WithLabelValues(metrics.OutcomeSuccess).Inc()

	return &InvocationResult{
		Success:        true,
		Content:        reply.Content,
		AgentSessionID: token,
		SessionName:    sess.Name,
	}
}

// HealthCheck probes the agent binary with its version flag under a
// short timeout. It is used for status reporting only and never blocks
// normal dispatch.
func (b *Bridge) HealthCheck(ctx context.Context) (string, error) {
	res, err := b.runner.Run(ctx, executor.Request{
		Argv:    b.backend.HealthArgs(),
		Timeout: b.healthTimeout,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}
