package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"atsexpert/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configFile = ""
	})
	err := Execute(t.Context())
	return out.String(), err
}

func TestVersionSkipsConfig(t *testing.T) {
	out, err := executeRoot(t, "version", "--config", "/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "atsexpert version "+Version)
}

func TestConfigCommandAppliesFlagsAndMasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ai:
  apiKey: "AIzaSyExampleKey123456"
  model: "gemini-1.5-pro"
server:
  apiKeys: ["client-key-0001-abcdef"]
`), 0o600))

	out, err := executeRoot(t, "config", "--config", path, "--model", "gemini-2.0-flash")
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "gemini-2.0-flash", got.AI.Model)
	assert.Equal(t, "AIza****3456", got.AI.APIKey)
	assert.Equal(t, []string{"clie****cdef"}, got.Server.APIKeys)
	assert.Equal(t, config.DefaultMaxUploadSize, got.App.MaxUploadSize)
}

func TestConfigCommandRejectsMissingFile(t *testing.T) {
	_, err := executeRoot(t, "config", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "Failed to load configuration")
}

func TestRedactedConfigLeavesOriginalUntouched(t *testing.T) {
	cfg := &config.Config{}
	cfg.AI.APIKey = "AIzaSyExampleKey123456"
	cfg.Server.APIKeys = []string{"short"}

	redacted := redactedConfig(cfg)
	assert.Equal(t, "****", redacted.Server.APIKeys[0])
	assert.Equal(t, "short", cfg.Server.APIKeys[0])
	assert.Equal(t, "AIzaSyExampleKey123456", cfg.AI.APIKey)
}

func TestSubmissionCommandsRequireDocument(t *testing.T) {
	_, err := executeRoot(t, "ats-score")
	assert.ErrorContains(t, err, "accepts 1 arg(s)")
}
