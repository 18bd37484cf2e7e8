package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/baldhumanity/neuroevo-go/population/store"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	content := fmt.Sprintf(`
[Population]
pop_size = 5
seed     = 11
workers  = 2

[Network]
input  = 3
hidden = 4
output = 2

[Mutation]
weight_mutation_rate = 0.5
bias_mutation_rate   = 0.2
mutation_scale       = 0.4

[Store]
backend  = sqlite
path     = %s
save_dir = %s
`, filepath.Join(dir, "runs.db"), filepath.Join(dir, "model"))
	path := filepath.Join(dir, "genome.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestGenomectlWorkflow(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	checkpoint := filepath.Join(dir, "run.ckpt")

	runID := strings.TrimSpace(execute(t, "init", "--config", cfg, "--checkpoint", checkpoint))
	require.NotEmpty(t, runID)
	assert.FileExists(t, checkpoint)

	listing := execute(t, "inspect", runID, "--config", cfg)
	assert.Contains(t, listing, "5 genomes")
	assert.Contains(t, listing, "Genome 1 (fresh)")
	assert.Contains(t, listing, "params=26")

	exported := strings.TrimSpace(execute(t, "export", runID, "2", "--config", cfg))
	assert.Equal(t, filepath.Join(dir, "model"), exported)
	assert.True(t, store.HasLayers(exported))

	mutantDir := filepath.Join(dir, "mutant")
	summary := execute(t, "mutate", exported, "--config", cfg, "--out", mutantDir, "--seed", "3", "--id", "42")
	assert.Contains(t, summary, "Genome 42 (loaded)")
	assert.True(t, store.HasLayers(mutantDir))

	before, _, err := store.LoadLayers(exported)
	require.NoError(t, err)
	after, _, err := store.LoadLayers(mutantDir)
	require.NoError(t, err)
	assert.False(t, before[0].Equal(after[0]))
}

func TestGenomectlRejectsUnknownRun(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"inspect", "no-such-run", "--config", cfg})
	require.Error(t, rootCmd.Execute())
}

type failingCloser struct {
	store.Store
}

func (failingCloser) Close() error {
	return assert.AnError
}

func TestCloseStoreLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	previous := logger
	logger = zap.New(core)
	t.Cleanup(func() { logger = previous })

	closeStore(failingCloser{Store: store.NewMemoryStore()})
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "failed to close store", entry.Message)
	assert.Equal(t, assert.AnError.Error(), entry.ContextMap()["error"])

	closeStore(store.NewMemoryStore())
	assert.Equal(t, 1, logs.Len())
}
