package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("GRAPHQUERY_API_KEY", "")
	t.Setenv("GRAPHRAG_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultQuery, cfg.Query.Text)
	assert.Equal(t, []string{"basic", "local", "global"}, cfg.Query.Modes)
	assert.Equal(t, 2, cfg.Query.CommunityLevel)
	assert.Equal(t, "Multiple Paragraphs", cfg.Query.ResponseType)
	assert.False(t, cfg.Query.DynamicCommunitySelection)
	assert.Equal(t, 1, cfg.Query.Concurrency)
	assert.Equal(t, filepath.Join(".", "output"), cfg.Project.InputPath())
	assert.Equal(t, filepath.Join(".", "queries"), cfg.Project.QueriesPath())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := t.TempDir()
	t.Setenv("GRAPHQUERY_ROOT", root)
	t.Setenv("GRAPHQUERY_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GRAPHRAG_API_KEY", "sk-graphrag-123456")
	t.Setenv("GRAPHQUERY_MODEL", "gpt-4o")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Project.Root)
	assert.Equal(t, "sk-graphrag-123456", cfg.NLP.APIKey)
	assert.Equal(t, "gpt-4o", cfg.NLP.Model)
	assert.Equal(t, filepath.Join(root, "queries"), cfg.Project.QueriesPath())
	assert.Equal(t, filepath.Join(root, "cache"), cfg.CachePath())
}

func TestLoadDotEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("GRAPHQUERY_TEST_DOTENV=from-file\n"), 0644))
	viper.Set("project.root", root)
	t.Cleanup(func() { os.Unsetenv("GRAPHQUERY_TEST_DOTENV") })

	_, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv("GRAPHQUERY_TEST_DOTENV"))
}

func TestAbsoluteDirsAreKept(t *testing.T) {
	abs := t.TempDir()
	p := ProjectConfig{Root: "/project", OutputDir: abs, QueriesDir: "q"}
	assert.Equal(t, abs, p.InputPath())
	assert.Equal(t, filepath.Join("/project", "q"), p.QueriesPath())
}

func TestRedacted(t *testing.T) {
	cfg := Config{}
	cfg.NLP.APIKey = "sk-abcdefghijklmnop"
	cfg.Alert.Password = "short"

	red := cfg.Redacted()
	assert.Equal(t, "sk-a****mnop", red.NLP.APIKey)
	assert.Equal(t, "****", red.Alert.Password)
	assert.Equal(t, "sk-abcdefghijklmnop", cfg.NLP.APIKey)
}
