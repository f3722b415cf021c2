// Package notify pushes run updates to a socket.io endpoint, so dashboards
// watching a repository see step progress live.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the notify runner.
type Input struct {
	URL                string            `hcl:"url"`
	Namespace          string            `hcl:"namespace,optional"`
	EmitEvent          string            `hcl:"emit_event"`
	Data               map[string]string `hcl:"data,optional"`
	Timeout            string            `hcl:"timeout,optional"`
	InsecureSkipVerify bool              `hcl:"insecure_skip_verify,optional"`
}

// OnRunNotify is the handler for the 'notify' runner. It connects, emits a
// single event and disconnects.
func OnRunNotify(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx).With("runner", "notify", "url", in.URL, "emitEvent", in.EmitEvent)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	timeout := 10 * time.Second
	if in.Timeout != "" {
		parsed, err := time.ParseDuration(in.Timeout)
		if err != nil {
			logger.Warn("Failed to parse timeout, using default 10s", "inputTimeout", in.Timeout, "error", err)
		} else {
			timeout = parsed
		}
	}

	parsedURL, err := url.Parse(in.URL)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to parse URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	data := map[string]any{
		"run_id":   sc.RunID,
		"workflow": sc.Workflow,
	}
	for k, v := range in.Data {
		data[k] = v
	}

	done := make(chan error, 1)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "namespace", in.Namespace, "sid", io.Id())
		io.Emit(in.EmitEvent, data)
		done <- nil
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				done <- err
				return
			}
		}
		done <- fmt.Errorf("connection failed")
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		return cty.NilVal, fmt.Errorf("timed out while waiting for initial connection")
	case err := <-done:
		if err != nil {
			return cty.NilVal, fmt.Errorf("notify failed: %w", err)
		}
	}

	return cty.ObjectVal(map[string]cty.Value{
		"delivered": cty.BoolVal(true),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("notify", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunNotify,
	})
}
