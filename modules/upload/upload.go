// Package upload ships a file from the workspace to an HTTP endpoint,
// typically a pre-signed object storage URL for the coverage report.
package upload

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// httpClient is shared across upload executions to reuse TCP connections.
var httpClient = &http.Client{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	// SourcePath is the file to upload, relative to the workspace.
	SourcePath string `hcl:"source_path"`
	// URL is the destination. Pre-signed URLs carry their own auth.
	URL string `hcl:"url"`
	// Token, when set, is sent as a bearer Authorization header.
	Token string `hcl:"token,optional"`
}

// OnRunUpload is the handler for the 'upload' runner.
func OnRunUpload(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx).With("runner", "upload")

	source := in.SourcePath
	if !filepath.IsAbs(source) {
		source = filepath.Join(sc.Workspace, source)
	}

	file, err := os.Open(source)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to open source file '%s': %w", in.SourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to get file stats for '%s': %w", in.SourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, in.URL, file)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to create upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(in.SourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()
	if in.Token != "" {
		req.Header.Set("Authorization", "Bearer "+in.Token)
	}

	logger.Info("Uploading file", "source", in.SourcePath, "size", stat.Size(), "contentType", contentType)

	resp, err := httpClient.Do(req)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cty.NilVal, fmt.Errorf("upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded file", "status", resp.Status)

	return cty.ObjectVal(map[string]cty.Value{
		"status_code": cty.NumberIntVal(int64(resp.StatusCode)),
		"etag":        cty.StringVal(resp.Header.Get("ETag")),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("upload", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunUpload,
	})
}
