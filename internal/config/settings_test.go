package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSettings_Defaults(t *testing.T) {
	s, err := ReadSettings(NewViper(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, "data", s.DataDir)
	assert.Equal(t, "info", s.LogLevel)
	assert.False(t, s.LogJSON)
	assert.True(t, s.Progress)
}

func TestReadSettings_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := "data_dir: /tmp/runs\nlog_level: debug\nparallel_depth: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "railsim.yaml"), []byte(content), 0644))
	t.Setenv("RAILSIM_LOG_LEVEL", "warn")
	t.Setenv("RAILSIM_LOG_JSON", "true")

	s, err := ReadSettings(NewViper(dir))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/runs", s.DataDir)
	assert.Equal(t, "warn", s.LogLevel)
	assert.True(t, s.LogJSON)
	assert.Equal(t, 2, s.ParallelDepth)
}

func TestReadSettings_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "railsim.yaml"), []byte("parallel_depth: -1\n"), 0644))

	_, err := ReadSettings(NewViper(dir))
	assert.Error(t, err)
}
