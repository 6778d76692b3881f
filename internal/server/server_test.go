package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/agent/internal/channel/environment"
	"github.com/GriffinCanCode/AgentOS/agent/internal/channel/files"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/agent/internal/rpc"
	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
	"github.com/GriffinCanCode/AgentOS/agent/internal/telemetry"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *rpc.ErrorBody  `json:"error"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	cfg.Paths.AppRoot = filepath.Join(root, "app")
	cfg.Paths.UserHome = filepath.Join(root, "home")
	cfg.Paths.UserDataPath = filepath.Join(root, "data")
	cfg.Paths.ExtensionsPath = filepath.Join(root, "extensions")
	cfg.Paths.BuiltinExtensionsPath = filepath.Join(root, "app", "extensions")
	cfg.Paths.LogsPath = filepath.Join(root, "data", "logs")
	cfg.ConnectionToken = "token"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := NewServer(cfg, nil, Options{Telemetry: &telemetry.Flag{}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.files.Dispose()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream?authority=box"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(t *testing.T, conn *websocket.Conn, id int64, channel, name string, args ...interface{}) frame {
	t.Helper()
	req := map[string]interface{}{"id": id, "type": rpc.TypeCall, "channel": channel, "name": name, "args": args}
	require.NoError(t, conn.WriteJSON(req))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, sonic.Unmarshal(data, &f))
	require.Equal(t, id, f.ID)
	return f
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	_, err := NewServer(nil, nil, Options{})
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Server.Port = ""
	_, err = NewServer(cfg, nil, Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body HealthResponse
	require.NoError(t, sonic.Unmarshal(raw, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []string{environment.ChannelName, files.ChannelName}, body.Channels)
	assert.Equal(t, 0, body.WatchSessions)
	assert.True(t, body.Telemetry)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "agent_uptime_seconds")
	assert.Contains(t, string(raw), `agent_http_requests_total{method="GET",path="/health",status="200"}`)
}

func TestFileChannelOverWebSocket(t *testing.T) {
	cfg := testConfig(t)
	_, ts := newTestServer(t, cfg)

	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	conn := dial(t, ts)
	resource := uri.URI{Scheme: uri.SchemeRemote, Authority: "box", Path: filepath.ToSlash(file)}

	f := call(t, conn, 1, files.ChannelName, "stat", resource)
	require.Nil(t, f.Error)
	assert.Equal(t, rpc.TypeResult, f.Type)
	var stat struct {
		Type int   `json:"type"`
		Size int64 `json:"size"`
	}
	require.NoError(t, sonic.Unmarshal(f.Data, &stat))
	assert.Equal(t, 1, stat.Type)
	assert.Equal(t, int64(5), stat.Size)

	f = call(t, conn, 2, files.ChannelName, "stat", uri.URI{Scheme: uri.SchemeRemote, Authority: "box", Path: filepath.ToSlash(filepath.Join(dir, "missing"))})
	require.NotNil(t, f.Error)
	assert.Equal(t, "FileNotFound", f.Error.Code)

	f = call(t, conn, 3, "nope", "stat")
	require.NotNil(t, f.Error)
	assert.Equal(t, "InvalidCommand", f.Error.Code)
}

func TestEnvironmentChannelOverWebSocket(t *testing.T) {
	cfg := testConfig(t)
	ext := filepath.Join(cfg.Paths.ExtensionsPath, "acme.lint")
	require.NoError(t, os.MkdirAll(ext, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ext, "package.json"),
		[]byte(`{"name": "lint", "publisher": "acme", "version": "2.0.0"}`), 0o644))

	srv, ts := newTestServer(t, cfg)
	conn := dial(t, ts)

	f := call(t, conn, 1, environment.ChannelName, "getEnvironmentData", "en")
	require.Nil(t, f.Error)
	var data struct {
		ConnectionToken string  `json:"connectionToken"`
		AppRoot         uri.URI `json:"appRoot"`
		Extensions      []struct {
			Location uri.URI `json:"extensionLocation"`
			Version  string  `json:"version"`
		} `json:"extensions"`
	}
	require.NoError(t, sonic.Unmarshal(f.Data, &data))
	assert.Equal(t, "token", data.ConnectionToken)
	assert.Equal(t, uri.SchemeRemote, data.AppRoot.Scheme)
	assert.Equal(t, "box", data.AppRoot.Authority)
	require.Len(t, data.Extensions, 1)
	assert.Equal(t, "2.0.0", data.Extensions[0].Version)
	assert.Equal(t, filepath.ToSlash(ext), data.Extensions[0].Location.Path)

	f = call(t, conn, 2, environment.ChannelName, "disableTelemetry")
	require.Nil(t, f.Error)
	assert.False(t, srv.env.TelemetryEnabled())

	f = call(t, conn, 3, environment.ChannelName, "getDiagnosticInfo")
	require.NotNil(t, f.Error)
	assert.Equal(t, "Unimplemented", f.Error.Code)
}
