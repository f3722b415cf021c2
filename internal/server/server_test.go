package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/internal/run"
	"github.com/covflow/covflow/internal/workflow"
)

const testWorkflows = `
workflow "coverage" {
	on {
		push {
			branches = ["main"]
		}
		pull_request {
			ignore_title_prefixes = ["build(deps): "]
		}
	}

	step "noop" "only" {}
}
`

const pushPayload = `{
	"ref": "refs/heads/main",
	"after": "deadbeef",
	"repository": {"full_name": "acme/widgets"}
}`

type testEnv struct {
	server   *Server
	executed *atomic.Int32
}

func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf.hcl"), []byte(testWorkflows), 0o644))
	set, err := workflow.Load(context.Background(), dir)
	require.NoError(t, err)

	var executed atomic.Int32
	r := registry.New()
	r.RegisterRunner("noop", &registry.RegisteredRunner{
		Fn: func(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
			executed.Add(1)
			return cty.NilVal, nil
		},
	})

	if cfg == nil {
		cfg = &Config{Listen: ":0", ShutdownGrace: 5 * time.Second, MaxConcurrentRuns: 2}
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	orchestrator := run.NewOrchestrator(r, nil, 2)

	return &testEnv{
		server:   New(cfg, logger, set, orchestrator),
		executed: &executed,
	}
}

func postEvent(t *testing.T, env *testEnv, kind, payload string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(payload))
	if kind != "" {
		req.Header.Set("X-Event-Type", kind)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeRuns(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Runs []string `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Runs
}

func waitForRuns(t *testing.T, env *testEnv, want int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for env.executed.Load() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d runs, got %d", want, env.executed.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleEvent_MatchingPushStartsRun(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postEvent(t, env, "push", pushPayload, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, decodeRuns(t, rec), 1)

	waitForRuns(t, env, 1)
}

func TestHandleEvent_NonMatchingBranchIgnored(t *testing.T) {
	env := newTestEnv(t, nil)

	payload := `{"ref": "refs/heads/feature", "after": "deadbeef", "repository": {"full_name": "acme/widgets"}}`
	rec := postEvent(t, env, "push", payload, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, decodeRuns(t, rec))
	require.Equal(t, int32(0), env.executed.Load())
}

func TestHandleEvent_DependencyPRTitleIgnored(t *testing.T) {
	env := newTestEnv(t, nil)

	payload := `{
		"action": "opened",
		"pull_request": {"number": 7, "title": "build(deps): bump serde", "head": {"ref": "dep", "sha": "beef"}},
		"repository": {"full_name": "acme/widgets"}
	}`
	rec := postEvent(t, env, "pull_request", payload, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, decodeRuns(t, rec))
}

func TestHandleEvent_MissingEventTypeHeader(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postEvent(t, env, "", pushPayload, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvent_OversizedPayloadRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	payload := bytes.Repeat([]byte("a"), maxEventBody+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(payload))
	req.Header.Set("X-Event-Type", "push")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleEvent_UnknownEventKind(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postEvent(t, env, "issue_comment", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvent_SignatureRequired(t *testing.T) {
	cfg := &Config{Listen: ":0", WebhookSecret: "s3cret", ShutdownGrace: time.Second, MaxConcurrentRuns: 1}
	env := newTestEnv(t, cfg)

	// No signature at all.
	rec := postEvent(t, env, "push", pushPayload, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Wrong signature.
	rec = postEvent(t, env, "push", pushPayload, map[string]string{
		"X-Hub-Signature-256": "sha256=" + hex.EncodeToString(make([]byte, 32)),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Valid signature.
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(pushPayload))
	rec = postEvent(t, env, "push", pushPayload, map[string]string{
		"X-Hub-Signature-256": "sha256=" + hex.EncodeToString(mac.Sum(nil)),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, decodeRuns(t, rec), 1)

	waitForRuns(t, env, 1)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_LatchesWithServerState(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.server.ready.Store(true)
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"COVFLOW_LISTEN", "COVFLOW_SHUTDOWN_GRACE", "COVFLOW_MAX_CONCURRENT_RUNS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, 30*time.Second, cfg.ShutdownGrace)
	require.Equal(t, 4, cfg.MaxConcurrentRuns)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("COVFLOW_LISTEN", "127.0.0.1:9999")
	t.Setenv("COVFLOW_WEBHOOK_SECRET", "hush")
	t.Setenv("COVFLOW_SHUTDOWN_GRACE", "5s")
	t.Setenv("COVFLOW_MAX_CONCURRENT_RUNS", "8")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Listen)
	require.Equal(t, "hush", cfg.WebhookSecret)
	require.Equal(t, 5*time.Second, cfg.ShutdownGrace)
	require.Equal(t, 8, cfg.MaxConcurrentRuns)
}
