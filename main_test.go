package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ethfolio/pkg/alchemy"
	"ethfolio/pkg/config"
	"ethfolio/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainServer answers eth_chainId for every network except the ones listed in down.
func chainServer(t *testing.T, down ...models.Network) *httptest.Server {
	t.Helper()
	ids := map[models.Network]string{
		models.EthMainnet: "0x1",
		models.EthGoerli:  "0x5",
		models.EthSepolia: "0xaa36a7",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		network := models.Network(strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0])
		for _, d := range down {
			if d == network {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  ids[network],
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(endpoint string) config.Config {
	cfg := config.Default()
	cfg.Env = config.Env{AlchemyAPIKey: "test-key", AlchemyEndpoint: endpoint}
	return cfg
}

func TestSelfTest(t *testing.T) {
	server := chainServer(t)
	cfg := testConfig(server.URL + "/%s")
	dialer := alchemy.NewDialer(alchemy.Options{APIKey: "test-key", Endpoint: cfg.Env.AlchemyEndpoint}, nil)

	report := selfTest(dialer, cfg, "/tmp/ethfolio.json", true)

	assert.False(t, report.Failed)
	assert.True(t, report.APIKeyPresent)
	assert.Equal(t, "/tmp/ethfolio.json", report.ConfigPath)
	require.Len(t, report.Networks, len(models.Networks()))
	for _, r := range report.Networks {
		assert.Equal(t, "ok", r.Status, r.Network)
		assert.Empty(t, r.Error)
	}
	assert.Equal(t, int64(1), report.Networks[0].ChainID)
	assert.Equal(t, int64(11155111), report.Networks[2].ChainID)
}

func TestSelfTest_NetworkDown(t *testing.T) {
	server := chainServer(t, models.EthGoerli)
	cfg := testConfig(server.URL + "/%s")
	dialer := alchemy.NewDialer(alchemy.Options{APIKey: "test-key", Endpoint: cfg.Env.AlchemyEndpoint}, nil)

	report := selfTest(dialer, cfg, "", true)

	assert.True(t, report.Failed)
	assert.Equal(t, "ok", report.Networks[0].Status)
	assert.Equal(t, "error", report.Networks[1].Status)
	assert.Contains(t, report.Networks[1].Error, "ChainID")
}

func TestSelfTest_MissingKey(t *testing.T) {
	cfg := testConfig(alchemy.DefaultEndpoint)
	cfg.Env.AlchemyAPIKey = ""

	report := selfTest(alchemy.NewDialer(alchemy.Options{}, nil), cfg, "", true)

	assert.True(t, report.Failed)
	assert.False(t, report.APIKeyPresent)
	assert.Empty(t, report.Networks)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Env.LogLevel = "debug"

	logger, closeLog, err := newLogger(cfg, false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1), "no log file means no logging")
	closeLog()

	cfg.LogFile = filepath.Join(t.TempDir(), "ethfolio.log")
	logger, closeLog, err = newLogger(cfg, false)
	require.NoError(t, err)
	logger.Debug("hello")
	closeLog()

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "debug", line["level"])
}
