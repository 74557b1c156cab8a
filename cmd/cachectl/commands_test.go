package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "store:\n  type: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "cache.db") + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return nil, err
	}

	var v map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	return v, nil
}

func TestCommands_SaveLookupGetStats(t *testing.T) {
	cfg := writeConfig(t)

	miss, err := run(t, "lookup", "--config", cfg, "--key", `{"model":"m","n":1}`)
	require.NoError(t, err)
	assert.Equal(t, false, miss["cached"])

	saved, err := run(t, "save", "--config", cfg, "--key", `{"model":"m","n":1}`, "--response", `{"Score":0.9,"text":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, true, saved["stored"])
	id, _ := saved["id"].(string)
	require.NotEmpty(t, id)

	// 每次调用都是新进程语义，数据来自 sqlite 文件
	hit, err := run(t, "lookup", "--config", cfg, "--key", `{"model":"m"}`)
	require.NoError(t, err)
	assert.Equal(t, true, hit["cached"])
	result := hit["result"].(map[string]any)
	assert.Equal(t, id, result["id"])
	assert.Equal(t, 1.0, result["hitCount"])

	entry, err := run(t, "get", "--config", cfg, id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, entry["hitCount"])

	stats, err := run(t, "stats", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats["entries"])
	assert.Equal(t, "sqlite", stats["store"])
}

func TestCommands_KeyFromFile(t *testing.T) {
	cfg := writeConfig(t)
	keyFile := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(keyFile, []byte(`{"model":"f"}`), 0o644))

	_, err := run(t, "save", "--config", cfg, "--key", "@"+keyFile, "--response", `{"Score":1}`)
	require.NoError(t, err)

	hit, err := run(t, "lookup", "--config", cfg, "--key", "@"+keyFile)
	require.NoError(t, err)
	assert.Equal(t, true, hit["cached"])
}

func TestCommands_Errors(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "lookup", "--config", cfg, "--key", `[1,2]`)
	assert.Error(t, err)

	_, err = run(t, "lookup", "--config", cfg, "--key", `null`)
	assert.Error(t, err)

	_, err = run(t, "save", "--config", cfg, "--key", `{"a":1}`, "--response", `{"text":"no score"}`)
	assert.Error(t, err)

	_, err = run(t, "get", "--config", cfg, "no-such-id")
	assert.Error(t, err)

	_, err = run(t, "lookup", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--key", `{}`)
	assert.Error(t, err)
}
