// Package coverage reads the Cobertura XML report a test step produced and
// turns it into step output, optionally gating the run on a minimum line
// rate.
package coverage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/cobertura"
	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	// Path is the report location, relative to the workspace.
	Path string `hcl:"path"`
	// MinLineRate fails the step when the total line rate falls below it.
	MinLineRate *float64 `hcl:"min_line_rate,optional"`
}

// resolveReportPath joins the report path onto the workspace and rejects
// anything that escapes it.
func resolveReportPath(workspace, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("report path %q must be relative to the workspace", path)
	}
	full := filepath.Join(workspace, path)
	rel, err := filepath.Rel(workspace, full)
	if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("report path %q escapes the workspace", path)
	}
	return full, nil
}

// OnRunCoverageReport is the handler for the 'coverage_report' runner.
func OnRunCoverageReport(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx).With("runner", "coverage_report")

	full, err := resolveReportPath(sc.Workspace, in.Path)
	if err != nil {
		return cty.NilVal, err
	}

	f, err := os.Open(full)
	if err != nil {
		return cty.NilVal, fmt.Errorf("opening coverage report: %w", err)
	}
	defer f.Close()

	report, err := cobertura.Parse(f)
	if err != nil {
		return cty.NilVal, err
	}

	rate := report.TotalLineRate()
	logger.Info("📊 Coverage report parsed",
		"path", in.Path,
		"line_rate", fmt.Sprintf("%.2f%%", rate*100),
		"lines_covered", report.LinesCovered,
		"lines_valid", report.LinesValid)

	if in.MinLineRate != nil && rate < *in.MinLineRate {
		return cty.NilVal, fmt.Errorf("coverage %.2f%% is below the required %.2f%%", rate*100, *in.MinLineRate*100)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"path":          cty.StringVal(full),
		"line_rate":     cty.NumberFloatVal(rate),
		"branch_rate":   cty.NumberFloatVal(report.BranchRate),
		"lines_covered": cty.NumberIntVal(report.LinesCovered),
		"lines_valid":   cty.NumberIntVal(report.LinesValid),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("coverage_report", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunCoverageReport,
	})
}
