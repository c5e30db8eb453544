package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/germanamz/crewtrace/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	metas := List()
	require.Len(t, metas, 2)

	names := make(map[string]bool, len(metas))
	for _, m := range metas {
		assert.NotEmpty(t, m.Description)
		names[m.Name] = true
	}

	assert.True(t, names["blog"])
	assert.True(t, names["research"])
}

func TestGet(t *testing.T) {
	t.Run("default blog crew", func(t *testing.T) {
		tmpl, err := Get(Default)
		require.NoError(t, err)

		cfg := tmpl.Config
		require.NoError(t, cfg.Validate())
		require.Len(t, cfg.Agents, 3)
		assert.Equal(t, "Content Planner", cfg.Agents[0].Role)
		require.Len(t, cfg.Tasks, 3)
		assert.Equal(t, []string{"plan", "write", "edit"}, []string{cfg.Tasks[0].Name, cfg.Tasks[1].Name, cfg.Tasks[2].Name})
		assert.Equal(t, "post.md", cfg.Tasks[2].OutputFile)
		assert.Contains(t, cfg.Tasks[0].Description, "{topic}")
		assert.Equal(t, engine.ProcessSequential, cfg.ProcessName())
		assert.True(t, cfg.Verbose)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := Get("nonexistent")
		assert.ErrorContains(t, err, "not found")
	})
}

func TestApply(t *testing.T) {
	tmpl, err := Get("research")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "crews", "research.yaml")
	require.NoError(t, Apply(tmpl, path, false))

	cfg, err := engine.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Config, cfg)

	err = Apply(tmpl, path, false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))
	require.NoError(t, Apply(tmpl, path, true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(data))
}
