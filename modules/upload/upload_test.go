package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covflow/covflow/internal/registry"
)

func workspaceWithFile(t *testing.T, name, content string) *registry.StepContext {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, name), []byte(content), 0o644))
	return &registry.StepContext{Workspace: ws}
}

func TestOnRunUpload_PutsFileContents(t *testing.T) {
	var gotMethod, gotContentType, gotAuth string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sc := workspaceWithFile(t, "cobertura.xml", "<coverage/>")
	in := &Input{SourcePath: "cobertura.xml", URL: srv.URL, Token: "tok"}

	out, err := OnRunUpload(context.Background(), sc, in)
	require.NoError(t, err)

	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "<coverage/>", string(gotBody))
	require.Contains(t, gotContentType, "xml")
	require.Equal(t, "Bearer tok", gotAuth)

	status, _ := out.GetAttr("status_code").AsBigFloat().Int64()
	require.Equal(t, int64(200), status)
	require.Equal(t, `"abc123"`, out.GetAttr("etag").AsString())
}

func TestOnRunUpload_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sc := workspaceWithFile(t, "report.bin", "data")
	_, err := OnRunUpload(context.Background(), sc, &Input{SourcePath: "report.bin", URL: srv.URL})
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestOnRunUpload_MissingFile(t *testing.T) {
	sc := &registry.StepContext{Workspace: t.TempDir()}
	_, err := OnRunUpload(context.Background(), sc, &Input{SourcePath: "nope.xml", URL: "http://127.0.0.1:1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open source file")
}
