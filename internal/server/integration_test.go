//go:build integration

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"

	"github.com/jakvbs/claude-mcp-go/internal/claude"
	"github.com/jakvbs/claude-mcp-go/internal/config"
	"github.com/jakvbs/claude-mcp-go/internal/testutil"
)

func startIntegrationServer(t *testing.T, script string) (*httpexpect.Expect, *Server) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv(claude.EnvClaudeBin, path)

	port := testutil.AllocateTestPort(t)
	cfg := config.Default()
	cfg.Port = port
	cfg.LogLevel = "debug"
	cfg.HistoryDir = t.TempDir()

	s, err := New(cfg, "test-version")
	require.NoError(t, err)

	url := fmt.Sprintf("http://localhost:%d", port)
	go s.Start()
	testutil.WaitForHealthy(t, url+"/status", 10*time.Second)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	return httpexpect.Default(t, url), s
}

func TestIntegrationRunFlow(t *testing.T) {
	script := testutil.MockClaudeScript(testutil.SuccessStream("sess-int", "integration says hi")...)
	e, _ := startIntegrationServer(t, script)

	e.GET("/status").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("version", "test-version").
		HasValue("type", "claude-mcp").
		ContainsKey("uptime_seconds")

	resp := e.POST("/run").
		WithJSON(map[string]interface{}{
			"prompt": "Hello, please respond",
		}).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.HasValue("success", true).
		HasValue("session_id", "sess-int").
		HasValue("message", "integration says hi")

	runID := resp.Value("run_id").String().Raw()

	// History reflects the run
	e.GET("/history/{id}", runID).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("run_id", runID).
		HasValue("success", true).
		HasValue("has_debug_log", true)

	e.GET("/history").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("total", 1)

	// Logs captured the run lifecycle
	e.GET("/logs").
		WithQuery("run_id", runID).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("entries").Array().NotEmpty()
}

func TestIntegrationRunFailure(t *testing.T) {
	script := testutil.MockClaudeScript(testutil.ErrorStream("sess-int", "error_max_turns")...)
	e, _ := startIntegrationServer(t, script)

	e.POST("/run").
		WithJSON(map[string]interface{}{
			"prompt": "doomed run",
		}).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("success", false).
		Value("error").Object().
		HasValue("type", "error_max_turns")
}

func TestIntegrationConcurrentRuns(t *testing.T) {
	// Two slow runs must execute side by side rather than queueing
	script := `#!/bin/sh
sleep 1
echo '{"type":"system","subtype":"init","session_id":"sess-conc"}'
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}'
echo '{"type":"result","subtype":"success"}'
`
	e, _ := startIntegrationServer(t, script)

	start := time.Now()
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			e.POST("/run").
				WithJSON(map[string]interface{}{"prompt": "slow run"}).
				Expect().
				Status(http.StatusOK).
				JSON().Object().
				HasValue("success", true)
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(15 * time.Second):
			t.Fatal("runs did not finish in time")
		}
	}

	// Serial execution would take over two seconds
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestIntegrationShutdownEndpoint(t *testing.T) {
	script := testutil.MockClaudeScript(testutil.SuccessStream("sess-int", "hi")...)
	e, s := startIntegrationServer(t, script)

	e.POST("/shutdown").
		WithJSON(map[string]interface{}{}).
		Expect().
		Status(http.StatusAccepted)

	select {
	case <-s.ShutdownRequested():
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown was not initiated")
	}
}
