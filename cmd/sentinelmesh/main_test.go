package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinelmesh/internal/detection"
	"sentinelmesh/internal/events"
)

func TestLoadRules(t *testing.T) {
	rules, err := loadRules("")
	require.NoError(t, err)
	assert.Equal(t, detection.DefaultRules(), rules)

	empty := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rules: []\n"), 0o600))
	rules, err = loadRules(empty)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	_, err = loadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEmitCommand(t *testing.T) {
	var got events.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(events.IngestResult{Stored: true})
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"emit", "--url", srv.URL, "--event", "login_failed", "--ip", "203.0.113.7", "--path", "/login"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "stored")
	assert.Equal(t, events.TypeLoginFailed, got.Type)
	assert.Equal(t, "203.0.113.7", got.SourceIP)
	assert.Equal(t, "cli", got.Service)
}
