package report_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropvendor/unrepair/pkg/elf"
	"github.com/dropvendor/unrepair/pkg/report"
	"github.com/dropvendor/unrepair/pkg/workflow"
)

func TestWriteCheckTextCompatible(t *testing.T) {
	t.Parallel()
	result := elf.AbiCheckResult{Verdict: elf.Compatible}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCheck(&buf, result, report.CheckOptions{Format: report.FormatText}))
	assert.Contains(t, buf.String(), "Verdict: Compatible")
}

func TestWriteCheckTextHidesInfoUnlessVerbose(t *testing.T) {
	t.Parallel()
	result := elf.AbiCheckResult{
		Verdict: elf.Compatible,
		Diagnostics: []elf.Diagnostic{
			{Severity: elf.Info, Layer: "Elf", Message: "only visible when verbose"},
		},
	}

	var quiet bytes.Buffer
	require.NoError(t, report.WriteCheck(&quiet, result, report.CheckOptions{Format: report.FormatText}))
	assert.NotContains(t, quiet.String(), "only visible when verbose")

	var verbose bytes.Buffer
	require.NoError(t, report.WriteCheck(&verbose, result, report.CheckOptions{Format: report.FormatText, Verbose: true}))
	assert.Contains(t, verbose.String(), "only visible when verbose")
}

func TestWriteCheckJSON(t *testing.T) {
	t.Parallel()
	result := elf.AbiCheckResult{
		Verdict: elf.Incompatible,
		Diagnostics: []elf.Diagnostic{
			{Severity: elf.Error, Layer: "Elf", Symbol: "frobnicate", Message: "missing"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCheck(&buf, result, report.CheckOptions{Format: report.FormatJSON}))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Incompatible", decoded["verdict"])
}

func TestWriteWheelTextComplete(t *testing.T) {
	t.Parallel()
	result := &workflow.Result{
		InputWheel:   "foo-1.0.whl",
		OutputWheel:  "foo-1.0.unrepaired.whl",
		Strict:       true,
		MatchedPairs: 2,
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteWheel(&buf, result, report.WheelOptions{Format: report.FormatText}))
	assert.Contains(t, buf.String(), "Result: COMPLETE")
}

func TestWriteWheelTextIncompleteOnStrictFailure(t *testing.T) {
	t.Parallel()
	result := &workflow.Result{
		InputWheel:  "foo-1.0.whl",
		OutputWheel: "foo-1.0.unrepaired.whl",
		Strict:      true,
		Failures:    []string{"extension X: incompatible with system library Y"},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteWheel(&buf, result, report.WheelOptions{Format: report.FormatText}))
	assert.Contains(t, buf.String(), "Result: INCOMPLETE")
}

func TestWriteWheelNonStrictIgnoresFailures(t *testing.T) {
	t.Parallel()
	result := &workflow.Result{
		InputWheel:  "foo-1.0.whl",
		OutputWheel: "foo-1.0.unrepaired.whl",
		Strict:      false,
		Failures:    []string{"extension X: incompatible"},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteWheel(&buf, result, report.WheelOptions{Format: report.FormatText}))
	assert.Contains(t, buf.String(), "Result: COMPLETE")
}
