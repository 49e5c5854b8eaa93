package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/config"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:            "0",
		DataDir:         dir,
		LogLevel:        "debug",
		DefaultEngine:   "gpt-5-mini",
		Temperature:     0.9,
		ProviderTimeout: time.Second,
		ProviderRetries: 0,
		StoreDriver:     config.StoreSQLite,
		SQLitePath:      dir + "/manthan.db",
		Autosave:        true,
		AutosaveQueue:   8,
	}
}

func testOptions() Options {
	return Options{Version: "test", Logger: utils.NewLogger(io.Discard, utils.DEBUG)}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DefaultEngine = "llama-9000"
	_, err := New(context.Background(), cfg, testOptions())
	assert.ErrorContains(t, err, "DEFAULT_ENGINE")

	cfg = testConfig(t)
	cfg.AuthSecret = "short"
	_, err = New(context.Background(), cfg, testOptions())
	assert.ErrorContains(t, err, "AUTH_SECRET")

	cfg = testConfig(t)
	cfg.StagesFile = cfg.DataDir + "/missing.yaml"
	_, err = New(context.Background(), cfg, testOptions())
	assert.Error(t, err)
}

func TestServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.FrontendOrigin = "https://studio.example"

	a, err := New(context.Background(), cfg, testOptions())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["use_model"])
	assert.Equal(t, true, body["autosave"])
	assert.Equal(t, "sqlite", body["store"])
	assert.Equal(t, "https://studio.example", body["frontend_origin"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	// second close is a no-op
	assert.NoError(t, a.Close(context.Background()))
}
