package coverage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covflow/covflow/internal/registry"
)

const report = `<?xml version="1.0"?>
<coverage line-rate="0.75" branch-rate="0.5" lines-covered="15" lines-valid="20" timestamp="1724668800">
  <packages/>
</coverage>`

func workspaceWithReport(t *testing.T) *registry.StepContext {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "cobertura.xml"), []byte(report), 0o644))
	return &registry.StepContext{Workspace: ws}
}

func TestOnRunCoverageReport_ParsesReport(t *testing.T) {
	sc := workspaceWithReport(t)

	out, err := OnRunCoverageReport(context.Background(), sc, &Input{Path: "cobertura.xml"})
	require.NoError(t, err)

	rate, _ := out.GetAttr("line_rate").AsBigFloat().Float64()
	require.InDelta(t, 0.75, rate, 1e-9)

	branchRate, _ := out.GetAttr("branch_rate").AsBigFloat().Float64()
	require.InDelta(t, 0.5, branchRate, 1e-9)

	covered, _ := out.GetAttr("lines_covered").AsBigFloat().Int64()
	require.Equal(t, int64(15), covered)
}

func TestOnRunCoverageReport_ThresholdGate(t *testing.T) {
	sc := workspaceWithReport(t)

	min := 0.8
	_, err := OnRunCoverageReport(context.Background(), sc, &Input{Path: "cobertura.xml", MinLineRate: &min})
	require.Error(t, err)
	require.Contains(t, err.Error(), "below the required")

	min = 0.5
	_, err = OnRunCoverageReport(context.Background(), sc, &Input{Path: "cobertura.xml", MinLineRate: &min})
	require.NoError(t, err)
}

func TestOnRunCoverageReport_MissingReport(t *testing.T) {
	sc := &registry.StepContext{Workspace: t.TempDir()}
	_, err := OnRunCoverageReport(context.Background(), sc, &Input{Path: "cobertura.xml"})
	require.Error(t, err)
}

func TestResolveReportPath_RejectsEscapes(t *testing.T) {
	ws := t.TempDir()

	_, err := resolveReportPath(ws, "../outside.xml")
	require.Error(t, err)

	_, err = resolveReportPath(ws, "/etc/passwd")
	require.Error(t, err)

	full, err := resolveReportPath(ws, "target/cobertura.xml")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws, "target", "cobertura.xml"), full)
}
