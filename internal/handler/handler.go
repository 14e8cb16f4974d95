// Package handler orchestrates the inbound path: confirmation
// resolution, slash commands, risk gating, and accumulation. It owns
// the per-user serialization and is the only caller of the bridge.
package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentrelay/agentrelay/internal/batch"
	"github.com/agentrelay/agentrelay/internal/bridge"
	"github.com/agentrelay/agentrelay/internal/confirm"
	"github.com/agentrelay/agentrelay/internal/errors"
	"github.com/agentrelay/agentrelay/internal/keepalive"
	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/risk"
	"github.com/agentrelay/agentrelay/internal/session"
	"github.com/agentrelay/agentrelay/internal/transport"
)

// Bridger is the slice of the bridge the handler needs; narrowed for
// testing with a fake.
type Bridger interface {
	Send(ctx context.Context, userID int64, text string, opts bridge.SendOptions) *bridge.InvocationResult
	HealthCheck(ctx context.Context) (string, error)
}

// Options carries the tunables the handler reads from configuration.
type Options struct {
	Debounce          time.Duration
	MaxBatchMessages  int
	MaxBatchFiles     int
	BatchStaleAfter   time.Duration
	ChunkSize         int
	KeepaliveInterval time.Duration
	StreamBatchSize   int
	StreamInterval    time.Duration
	Verbose           bool
}

// Handler wires the relay's inbound surface together.
type Handler struct {
	bridge     Bridger
	store      *session.Store
	confirms   *confirm.Manager
	classifier *risk.Classifier
	sender     transport.Sender
	fileFilter *transport.FileFilter
	logger     *logging.Logger
	locks      *userLocks
	batches    *batch.Accumulator

	opts Options
}

// New creates a Handler and its accumulator. All collaborators must be
// non-nil except fileFilter, which defaults to permit-all.
func New(b Bridger, store *session.Store, confirms *confirm.Manager, classifier *risk.Classifier, sender transport.Sender, fileFilter *transport.FileFilter, logger *logging.Logger, opts Options) *Handler {
	if b == nil {
		panic("handler: bridge must not be nil")
	}
	if store == nil {
		panic("handler: session store must not be nil")
	}
	if confirms == nil {
		panic("handler: confirmation manager must not be nil")
	}
	if classifier == nil {
		panic("handler: risk classifier must not be nil")
	}
	if sender == nil {
		panic("handler: sender must not be nil")
	}
	if fileFilter == nil {
		fileFilter = mustPermitAll()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	h := &Handler{
		bridge:     b,
		store:      store,
		confirms:   confirms,
		classifier: classifier,
		sender:     sender,
		fileFilter: fileFilter,
		logger:     logger,
		locks:      newUserLocks(),
		opts:       opts,
	}
	h.batches = batch.New(opts.Debounce, opts.MaxBatchMessages, opts.MaxBatchFiles, opts.BatchStaleAfter, h.dispatchBatch, nil, logger)
	return h
}

func mustPermitAll() *transport.FileFilter {
	f, err := transport.NewFileFilter(nil)
	if err != nil {
		panic(err)
	}
	return f
}

// Batches exposes the accumulator for the janitor's staleness sweep.
func (h *Handler) Batches() *batch.Accumulator { return h.batches }

// HandleMessage processes one inbound text message and returns the
// immediate reply. Agent responses arrive later through the Sender.
// Unauthorized users get an empty reply and no further processing.
func (h *Handler) HandleMessage(ctx context.Context, userID int64, text string) (string, error) {
	if !h.store.Authorized(userID) {
		h.logger.Warn("unauthorized message dropped", "user_id", userID)
		return "", errors.ErrUnauthorized
	}

	unlock := h.locks.acquire(userID)
	defer unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return errors.UserMessage(errors.ErrEmptyInput), nil
	}

	// Commands stay usable while a confirmation is pending; /cancel is
	// the escape hatch and /status shows what is being held.
	if strings.HasPrefix(text, "/") {
		return h.handleCommand(ctx, userID, text)
	}

	if h.confirms.Contains(userID) {
		return h.resolveConfirmation(userID, text), nil
	}

	if v := h.classifier.Classify(text); v.Risky {
		h.confirms.Add(userID, text, v.Tier)
		return h.confirmPrompt(text, v), nil
	}

	return h.accumulateMessage(userID, text), nil
}

// HandleFile processes one inbound file: name filtering, then
// accumulation under the same batching rules as messages.
func (h *Handler) HandleFile(ctx context.Context, userID int64, name, content string) (string, error) {
	if !h.store.Authorized(userID) {
		h.logger.Warn("unauthorized file dropped", "user_id", userID)
		return "", errors.ErrUnauthorized
	}

	unlock := h.locks.acquire(userID)
	defer unlock()

	if !h.fileFilter.Allowed(name) {
		return fmt.Sprintf("Files named like %q are not accepted.", name), nil
	}

	if err := h.batches.AddFile(userID, name, content); err != nil {
		return errors.UserMessage(err), nil
	}
	if _, files, explicit := h.batches.Size(userID); explicit {
		return fmt.Sprintf("Added %s to the batch (%d files). /accept to send.", name, files), nil
	}
	return fmt.Sprintf("Got %s.", name), nil
}

// resolveConfirmation interprets text as the answer to the user's
// pending risky command. Holds the user's lock.
func (h *Handler) resolveConfirmation(userID int64, text string) string {
	p, outcome := h.confirms.Resolve(userID, text)
	switch outcome {
	case confirm.OutcomeConfirmed:
		h.logger.Info("risky command confirmed", "user_id", userID, "tier", p.Tier.String())
		go h.deliver(userID, p.Command)
		return "Confirmed, running it."
	case confirm.OutcomeCancelled:
		return "Cancelled."
	default:
		if p.Tier == confirm.TierDanger {
			return fmt.Sprintf("Still waiting: reply exactly %q to run it, or \"cancel\".", h.confirms.StrictPhrase())
		}
		return "Still waiting: reply \"yes\" to run it, or \"cancel\"."
	}
}

// confirmPrompt is the message shown when a risky command is gated.
func (h *Handler) confirmPrompt(text string, v risk.Verdict) string {
	if v.Tier == confirm.TierDanger {
		return fmt.Sprintf("This looks dangerous (%s):\n\n%s\n\nReply exactly %q to run it, or \"cancel\".",
			v.Description, text, h.confirms.StrictPhrase())
	}
	return fmt.Sprintf("This needs confirmation (%s):\n\n%s\n\nReply \"yes\" to run it, or \"cancel\".",
		v.Description, text)
}

// accumulateMessage adds text to the user's batch and produces the
// mode-appropriate acknowledgement.
func (h *Handler) accumulateMessage(userID int64, text string) string {
	if err := h.batches.AddMessage(userID, text); err != nil {
		return errors.UserMessage(err)
	}
	if msgs, _, explicit := h.batches.Size(userID); explicit {
		return fmt.Sprintf("Added to the batch (%d messages). /accept to send.", msgs)
	}
	return ""
}

// dispatchBatch is the accumulator's callback: it fires on the debounce
// timer's goroutine, outside any lock.
func (h *Handler) dispatchBatch(userID int64, payload string) {
	h.deliver(userID, payload)
}

// deliver runs one bridge invocation and pushes the outcome through the
// sender. Keepalive signals and throttled verbose lines run for the
// duration of the call.
func (h *Handler) deliver(userID int64, payload string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go keepalive.Run(ctx, h.opts.KeepaliveInterval, func(ctx context.Context) error {
		return h.sender.Typing(ctx, userID)
	}, h.logger)

	opts := bridge.SendOptions{}
	var throttler *keepalive.Throttler
	if h.opts.Verbose {
		throttler = keepalive.NewThrottler(h.opts.StreamBatchSize, h.opts.StreamInterval, func(block string) {
			h.send(ctx, userID, block)
		}, h.logger)
		opts.Observer = throttler.Observe
	}

	res := h.bridge.Send(ctx, userID, payload, opts)
	cancel()
	if throttler != nil {
		throttler.Flush()
	}

	h.send(context.Background(), userID, h.renderResult(res))
}

// renderResult maps an invocation result to the user-visible reply.
func (h *Handler) renderResult(res *bridge.InvocationResult) string {
	if res.Success {
		return res.Content
	}
	if res.TimedOut && res.Content != "" {
		return "The request timed out. Partial output:\n\n" + res.Content
	}
	return errors.UserMessage(res.Err)
}

// send delivers text in chunks, logging delivery failures. An empty
// reply (silent failures) is not sent at all.
func (h *Handler) send(ctx context.Context, userID int64, text string) {
	if text == "" {
		return
	}
	if err := transport.SendChunked(ctx, h.sender, userID, text, h.opts.ChunkSize); err != nil {
		h.logger.Error("reply delivery failed", "user_id", userID, "error", err)
	}
}
