// Package risk classifies outbound text against a rule set of known
// destructive command patterns. The classifier only decides the tier;
// holding and releasing the command is the confirmation gate's job.
package risk

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/agentrelay/agentrelay/internal/confirm"
	"github.com/agentrelay/agentrelay/internal/logging"
)

// Verdict is the classification of one piece of text.
type Verdict struct {
	Risky       bool
	Tier        confirm.Tier
	Description string
}

// rule is one compiled pattern with its tier and display description.
type rule struct {
	pattern     *regexp.Regexp
	tier        confirm.Tier
	description string
}

// fileRule is the YAML shape of a rule.
type fileRule struct {
	Pattern     string `yaml:"pattern"`
	Tier        string `yaml:"tier"`
	Description string `yaml:"description"`
}

type rulesFile struct {
	Rules []fileRule `yaml:"rules"`
}

// Classifier matches text against its current rule set. Safe for
// concurrent use; WatchFile swaps the rule set atomically on reload.
type Classifier struct {
	mu     sync.RWMutex
	rules  []rule
	logger *logging.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewClassifier builds a classifier with the built-in default rules.
func NewClassifier(logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Classifier{rules: defaultRules(), logger: logger}
}

// NewClassifierFromFile builds a classifier from a YAML rules file.
func NewClassifierFromFile(path string, logger *logging.Logger) (*Classifier, error) {
	c := NewClassifier(logger)
	if err := c.LoadFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Classify returns the verdict of the first matching rule. Rules are
// checked in order, so more severe patterns should come first in a
// custom rules file.
func (c *Classifier) Classify(text string) Verdict {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.rules {
		if r.pattern.MatchString(text) {
			return Verdict{Risky: true, Tier: r.tier, Description: r.description}
		}
	}
	return Verdict{}
}

// LoadFile replaces the rule set with the contents of a YAML rules
// file. On any error the previous rule set stays in effect.
func (c *Classifier) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rules file: %w", err)
	}

	var parsed rulesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	if len(parsed.Rules) == 0 {
		return fmt.Errorf("rules file %s contains no rules", path)
	}

	compiled := make([]rule, 0, len(parsed.Rules))
	for i, fr := range parsed.Rules {
		re, err := regexp.Compile(fr.Pattern)
		if err != nil {
			return fmt.Errorf("rule %d pattern %q: %w", i, fr.Pattern, err)
		}
		tier := confirm.TierCaution
		switch fr.Tier {
		case "danger":
			tier = confirm.TierDanger
		case "caution", "":
		default:
			return fmt.Errorf("rule %d has unknown tier %q", i, fr.Tier)
		}
		desc := fr.Description
		if desc == "" {
			desc = fr.Pattern
		}
		compiled = append(compiled, rule{pattern: re, tier: tier, description: desc})
	}

	c.mu.Lock()
	c.rules = compiled
	c.mu.Unlock()
	c.logger.Info("risk rules loaded", "path", path, "rules", len(compiled))
	return nil
}

// WatchFile reloads the rules file whenever it changes. Editors often
// replace files rather than write in place, so the parent directory is
// watched and events are filtered by name. Stop with Close.
func (c *Classifier) WatchFile(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating rules watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("watching rules dir: %w", err)
	}

	c.watcher = w
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := c.LoadFile(path); err != nil {
					c.logger.Warn("risk rules reload failed", "error", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.logger.Warn("risk rules watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if one was started.
func (c *Classifier) Close() error {
	if c.watcher == nil {
		return nil
	}
	err := c.watcher.Close()
	<-c.done
	c.watcher = nil
	return err
}

// defaultRules covers the common destructive shell commands. Danger
// tier is reserved for commands that irreversibly destroy data or
// rewrite shared history.
func defaultRules() []rule {
	mk := func(pattern string, tier confirm.Tier, description string) rule {
		return rule{
			pattern:     regexp.MustCompile(pattern),
			tier:        tier,
			description: description,
		}
	}
	return []rule{
		mk(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s+)+`, confirm.TierDanger, "recursive or forced file deletion"),
		mk(`(?i)\bmkfs(\.[a-z0-9]+)?\b`, confirm.TierDanger, "filesystem format"),
		mk(`(?i)\bdd\s+.*\bof=/dev/`, confirm.TierDanger, "raw write to a block device"),
		mk(`(?i)\bgit\s+push\s+.*--force\b`, confirm.TierDanger, "force push rewriting remote history"),
		mk(`(?i)\bgit\s+push\s+.*-f\b`, confirm.TierDanger, "force push rewriting remote history"),
		mk(`(?i)\bdrop\s+(table|database)\b`, confirm.TierDanger, "destructive database statement"),
		mk(`(?i)\btruncate\s+table\b`, confirm.TierDanger, "destructive database statement"),
		mk(`(?i)\bshutdown\b|\breboot\b`, confirm.TierDanger, "host shutdown or reboot"),
		mk(`(?i)\bsudo\b`, confirm.TierCaution, "privileged command"),
		mk(`(?i)\bgit\s+reset\s+--hard\b`, confirm.TierCaution, "discards uncommitted changes"),
		mk(`(?i)\bgit\s+clean\s+-[a-z]*f`, confirm.TierCaution, "deletes untracked files"),
		mk(`(?i)\bchmod\s+(-[a-z]+\s+)*777\b`, confirm.TierCaution, "world-writable permissions"),
		mk(`(?i)\bkill\s+-9\b|\bpkill\b`, confirm.TierCaution, "force-kills processes"),
		mk(`(?i)curl\s+[^|]*\|\s*(ba)?sh\b`, confirm.TierCaution, "pipes a download into a shell"),
	}
}
