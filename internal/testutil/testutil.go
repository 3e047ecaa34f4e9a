// Package testutil provides helpers shared by integration tests.
package testutil

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"testing"
	"time"
)

// AllocateTestPort returns a deterministic port based on test name
func AllocateTestPort(t *testing.T) int {
	t.Helper()
	return AllocateTestPortN(t, 0)
}

// AllocateTestPortN returns a deterministic port based on test name and index.
// Use different index values to get multiple unique ports within the same test.
func AllocateTestPortN(t *testing.T, n int) int {
	t.Helper()
	h := fnv.New32a()
	h.Write([]byte(t.Name()))
	h.Write([]byte{byte(n)})
	return 10000 + int(h.Sum32()%10000)
}

// WaitForHealthy waits for a URL to return 200 OK
func WaitForHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("Service at %s did not become healthy within %v", url, timeout)
}

// Eventually retries a condition until it returns true or timeout expires
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Condition did not become true within timeout")
}

// MockClaudeScript returns a shell script that emits the given stream-json
// lines on stdout, one per line.
func MockClaudeScript(lines ...string) string {
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	for _, line := range lines {
		sb.WriteString("echo '" + line + "'\n")
	}
	return sb.String()
}

// SuccessStream returns the stream-json lines of a clean run.
func SuccessStream(sessionID, text string) []string {
	return []string{
		fmt.Sprintf(`{"type":"system","subtype":"init","session_id":%q}`, sessionID),
		fmt.Sprintf(`{"type":"assistant","message":{"content":[{"type":"text","text":%q}]}}`, text),
		`{"type":"result","subtype":"success","is_error":false}`,
	}
}

// ErrorStream returns the stream-json lines of a run the CLI classified
// as failed.
func ErrorStream(sessionID, errorClass string) []string {
	return []string{
		fmt.Sprintf(`{"type":"system","subtype":"init","session_id":%q}`, sessionID),
		fmt.Sprintf(`{"type":"result","subtype":%q,"is_error":true}`, errorClass),
	}
}
