package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentrelay/agentrelay/internal/errors"
)

const helpText = `Commands:
/new [name]      start a fresh session (optionally named)
/sessions        list your sessions
/switch <name>   make a session active
/delete <name>   delete a session
/model <name>    set the active session's model (blank to clear)
/batch           start collecting messages and files explicitly
/accept          send the collected batch
/cancel          discard the collected batch or a pending confirmation
/restart         drop the active session's conversation history
/status          agent health and session overview
/help            this message`

// handleCommand routes a slash command. Holds the user's lock.
func (h *Handler) handleCommand(ctx context.Context, userID int64, text string) (string, error) {
	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help", "/start":
		return helpText, nil
	case "/new":
		return h.cmdNew(userID, arg), nil
	case "/sessions":
		return h.cmdSessions(userID), nil
	case "/switch":
		return h.cmdSwitch(userID, arg), nil
	case "/delete":
		return h.cmdDelete(userID, arg), nil
	case "/model":
		return h.cmdModel(userID, arg), nil
	case "/batch":
		return h.cmdBatch(userID), nil
	case "/accept":
		return h.cmdAccept(userID), nil
	case "/cancel":
		return h.cmdCancel(userID), nil
	case "/restart":
		return h.cmdRestart(userID), nil
	case "/status":
		return h.cmdStatus(ctx, userID), nil
	default:
		return fmt.Sprintf("Unknown command %s. Try /help.", cmd), nil
	}
}

func (h *Handler) cmdNew(userID int64, name string) string {
	info, err := h.store.Create(userID, name, true)
	if err != nil {
		return errors.UserMessage(err)
	}
	return fmt.Sprintf("Started session %s.", info.Name)
}

func (h *Handler) cmdSessions(userID int64) string {
	infos, err := h.store.List(userID)
	if err != nil || len(infos) == 0 {
		return "No sessions yet. /new starts one."
	}

	var b strings.Builder
	b.WriteString("Sessions:\n")
	for _, info := range infos {
		marker := "  "
		if info.Active {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%s (last used %s)", marker, info.Name, info.LastUsed.Format(time.RFC822))
		if info.Model != "" {
			fmt.Fprintf(&b, " [%s]", info.Model)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) cmdSwitch(userID int64, name string) string {
	if name == "" {
		return "Usage: /switch <name>"
	}
	if err := h.store.Switch(userID, name); err != nil {
		return errors.UserMessage(err)
	}
	return fmt.Sprintf("Switched to session %s.", name)
}

func (h *Handler) cmdDelete(userID int64, name string) string {
	if name == "" {
		return "Usage: /delete <name>"
	}
	if err := h.store.Delete(userID, name); err != nil {
		return errors.UserMessage(err)
	}
	return fmt.Sprintf("Deleted session %s.", name)
}

func (h *Handler) cmdModel(userID int64, model string) string {
	name := h.store.Active(userID)
	if name == "" {
		return "No active session. /new starts one."
	}
	if err := h.store.SetModel(userID, name, model); err != nil {
		return errors.UserMessage(err)
	}
	if model == "" {
		return fmt.Sprintf("Session %s now uses the default model.", name)
	}
	return fmt.Sprintf("Session %s now uses model %s.", name, model)
}

func (h *Handler) cmdBatch(userID int64) string {
	h.batches.StartExplicit(userID)
	return "Collecting. Send messages and files, then /accept to send everything at once."
}

func (h *Handler) cmdAccept(userID int64) string {
	payload, ok := h.batches.Accept(userID)
	if !ok {
		return "Nothing collected yet."
	}
	go h.deliver(userID, payload)
	return "Sending the batch."
}

func (h *Handler) cmdCancel(userID int64) string {
	if h.confirms.Cancel(userID) {
		return "Cancelled."
	}
	if h.batches.Cancel(userID) {
		return "Batch discarded."
	}
	return "Nothing to cancel."
}

// cmdRestart clears the active session's resume token so the next
// message starts a fresh agent conversation under the same name.
func (h *Handler) cmdRestart(userID int64) string {
	name := h.store.Active(userID)
	if name == "" {
		return "No active session. /new starts one."
	}
	h.store.ClearToken(userID, name)
	return fmt.Sprintf("Session %s will start a fresh conversation.", name)
}

func (h *Handler) cmdStatus(ctx context.Context, userID int64) string {
	var b strings.Builder

	version, err := h.bridge.HealthCheck(ctx)
	if err != nil {
		b.WriteString("Agent: unavailable\n")
	} else {
		fmt.Fprintf(&b, "Agent: %s\n", version)
	}

	if active := h.store.Active(userID); active != "" {
		fmt.Fprintf(&b, "Active session: %s\n", active)
	} else {
		b.WriteString("Active session: none\n")
	}

	msgs, files, explicit := h.batches.Size(userID)
	if explicit {
		fmt.Fprintf(&b, "Batch: collecting (%d messages, %d files)\n", msgs, files)
	} else if msgs+files > 0 {
		fmt.Fprintf(&b, "Batch: %d messages, %d files pending\n", msgs, files)
	}

	if p, ok := h.confirms.Get(userID); ok {
		fmt.Fprintf(&b, "Pending confirmation (%s): %s\n", p.Tier, p.Command)
	}

	return strings.TrimRight(b.String(), "\n")
}