package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrelay/agentrelay/internal/confirm"
)

func TestDefaultRulesTiers(t *testing.T) {
	c := NewClassifier(nil)

	cases := []struct {
		text  string
		risky bool
		tier  confirm.Tier
	}{
		{"please run rm -rf /tmp/build", true, confirm.TierDanger},
		{"rm -r ./cache", true, confirm.TierDanger},
		{"dd if=image.iso of=/dev/sdb bs=4M", true, confirm.TierDanger},
		{"git push origin main --force", true, confirm.TierDanger},
		{"DROP TABLE users;", true, confirm.TierDanger},
		{"sudo systemctl restart nginx", true, confirm.TierCaution},
		{"git reset --hard HEAD~3", true, confirm.TierCaution},
		{"curl https://example.com/install.sh | sh", true, confirm.TierCaution},
		{"chmod 777 upload/", true, confirm.TierCaution},
		{"explain what this function does", false, confirm.TierCaution},
		{"add a --force flag to the CLI parser", false, confirm.TierCaution},
		{"the word sudoku is not a command", false, confirm.TierCaution},
	}

	for _, tc := range cases {
		v := c.Classify(tc.text)
		assert.Equal(t, tc.risky, v.Risky, "text: %q", tc.text)
		if tc.risky {
			assert.Equal(t, tc.tier, v.Tier, "text: %q", tc.text)
			assert.NotEmpty(t, v.Description, "text: %q", tc.text)
		}
	}
}

func TestLoadFileReplacesRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - pattern: '\bdeploy\b'
    tier: danger
    description: production deploy
  - pattern: '\brestart\b'
    tier: caution
`), 0o644))

	c, err := NewClassifierFromFile(path, nil)
	require.NoError(t, err)

	v := c.Classify("deploy the new build")
	assert.True(t, v.Risky)
	assert.Equal(t, confirm.TierDanger, v.Tier)
	assert.Equal(t, "production deploy", v.Description)

	v = c.Classify("restart the worker")
	assert.True(t, v.Risky)
	assert.Equal(t, confirm.TierCaution, v.Tier)
	// Description falls back to the pattern when the file omits it.
	assert.Equal(t, `\brestart\b`, v.Description)

	// Built-in rules no longer apply once a file is loaded.
	assert.False(t, c.Classify("rm -rf /").Risky)
}

func TestLoadFileRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	c := NewClassifier(nil)

	cases := map[string]string{
		"empty.yaml":   "rules: []",
		"badre.yaml":   "rules:\n  - pattern: '[unclosed'\n",
		"badtier.yaml": "rules:\n  - pattern: 'x'\n    tier: extreme\n",
		"notyaml.yaml": "{{{",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		assert.Error(t, c.LoadFile(path), "file: %s", name)
	}

	// A failed load leaves the built-in rules intact.
	assert.True(t, c.Classify("rm -rf /").Risky)
}

func TestWatchFileReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - pattern: '\\balpha\\b'\n"), 0o644))

	c, err := NewClassifierFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, c.WatchFile(path))
	defer c.Close()

	require.True(t, c.Classify("alpha").Risky)

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - pattern: '\\bbeta\\b'\n"), 0o644))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.Classify("beta").Risky && !c.Classify("alpha").Risky {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("rules were not reloaded after write")
}
