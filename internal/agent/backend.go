// Package agent provides backend-specific argv construction for the
// supported coding-agent CLIs. The bridge composes these argument lists
// with the executor; the payload itself always travels via stdin, never
// as a bare argument.
package agent

import (
	"fmt"
	"strings"
)

// BackendName identifies a supported agent CLI.
type BackendName string

const (
	BackendClaude BackendName = "claude"
	BackendCodex  BackendName = "codex"
)

// InvokeSpec carries the per-invocation parameters a backend turns into
// argument lists.
type InvokeSpec struct {
	// Model overrides the CLI's default model when non-empty.
	Model string
	// WorkspaceDir is the directory the agent is granted access to.
	WorkspaceDir string
	// SystemPrompt is appended to the agent's system prompt when non-empty.
	SystemPrompt string
	// ResumeToken resumes an existing conversation when non-empty.
	ResumeToken string
}

// Backend provides backend-specific behavior for one-shot invocations.
type Backend interface {
	Name() BackendName
	DisplayName() string
	// BuildArgs returns the full argument list (command included) for a
	// single non-interactive invocation reading its prompt from stdin.
	BuildArgs(spec InvokeSpec) []string
	// HealthArgs returns the argument list for a cheap version probe.
	HealthArgs() []string
	// SupportsResume reports whether the CLI can resume conversations.
	SupportsResume() bool
}

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown agent backend")

// New builds a Backend by name. An empty command uses the backend's
// conventional binary name.
func New(name, command string) (Backend, error) {
	switch strings.ToLower(name) {
	case string(BackendClaude), "":
		return NewClaudeBackend(command), nil
	case string(BackendCodex):
		return NewCodexBackend(command), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// ClaudeBackend implements Backend for the Claude Code CLI.
type ClaudeBackend struct {
	command string
}

// NewClaudeBackend creates a Claude backend.
func NewClaudeBackend(command string) *ClaudeBackend {
	if command == "" {
		command = "claude"
	}
	return &ClaudeBackend{command: command}
}

func (c *ClaudeBackend) Name() BackendName { return BackendClaude }

func (c *ClaudeBackend) DisplayName() string { return "Claude" }

func (c *ClaudeBackend) BuildArgs(spec InvokeSpec) []string {
	args := []string{c.command, "--print", "--output-format", "json"}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	if spec.WorkspaceDir != "" {
		args = append(args, "--add-dir", spec.WorkspaceDir)
	}
	if spec.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", spec.SystemPrompt)
	}
	if spec.ResumeToken != "" {
		args = append(args, "--resume", spec.ResumeToken)
	}
	return args
}

func (c *ClaudeBackend) HealthArgs() []string {
	return []string{c.command, "--version"}
}

func (c *ClaudeBackend) SupportsResume() bool { return true }

// CodexBackend implements Backend for the Codex CLI.
type CodexBackend struct {
	command string
}

// NewCodexBackend creates a Codex backend.
func NewCodexBackend(command string) *CodexBackend {
	if command == "" {
		command = "codex"
	}
	return &CodexBackend{command: command}
}

func (c *CodexBackend) Name() BackendName { return BackendCodex }

func (c *CodexBackend) DisplayName() string { return "Codex" }

func (c *CodexBackend) BuildArgs(spec InvokeSpec) []string {
	args := []string{c.command, "exec", "--json", "--skip-git-repo-check"}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	if spec.WorkspaceDir != "" {
		args = append(args, "--cd", spec.WorkspaceDir)
	}
	if spec.ResumeToken != "" {
		args = append(args, "resume", spec.ResumeToken)
	}
	return args
}

func (c *CodexBackend) HealthArgs() []string {
	return []string{c.command, "--version"}
}

func (c *CodexBackend) SupportsResume() bool { return true }
