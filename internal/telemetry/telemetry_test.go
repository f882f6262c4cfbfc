package telemetry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/powerstatd/internal/aggregator"
	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, telemetry.Config{}.Validate())
	assert.NoError(t, telemetry.Config{Path: "/tmp/x.prom", Enabled: true}.Validate())

	err := telemetry.Config{Path: "/tmp/x.txt", Enabled: true}.Validate()
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidPath))
}

func TestExportWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector", "powerstatd.prom")
	exp, err := telemetry.NewExporter(telemetry.Config{Path: path, Enabled: true})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, exp.Export(ctx, &aggregator.Report{
		Timestamp: time.Unix(1700000000, 0),
		Elapsed:   10,
		Values: map[string]float64{
			"percent_rc6_RC6_time": 62.5,
			"wavg_gpufreq":         465,
		},
		Fields: map[string]string{},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `powerstatd_report_value{key="percent_rc6_RC6_time"} 62.5`)
	assert.Contains(t, text, `powerstatd_report_value{key="wavg_gpufreq"} 465`)
	assert.Contains(t, text, `powerstatd_report_elapsed_seconds 10`)
	assert.Contains(t, text, `powerstatd_report_timestamp_seconds 1.7e+09`)

	// Keys missing from the next report disappear.
	require.NoError(t, exp.Export(ctx, &aggregator.Report{
		Timestamp: time.Unix(1700000010, 0),
		Elapsed:   10,
		Values:    map[string]float64{"wavg_gpufreq": 300},
		Fields:    map[string]string{aggregator.DiskErrorField: "disk_ata_error"},
	}))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	text = string(data)
	assert.NotContains(t, text, "percent_rc6_RC6_time")
	assert.Contains(t, text, `powerstatd_report_field{key="disk_logging_error",value="disk_ata_error"} 1`)

	require.NoError(t, exp.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestExportNilReport(t *testing.T) {
	exp, err := telemetry.NewExporter(telemetry.Config{Path: filepath.Join(t.TempDir(), "p.prom"), Enabled: true})
	require.NoError(t, err)

	err = exp.Export(context.Background(), nil)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidReport))
}

func TestDisabledExporterIsNoop(t *testing.T) {
	exp, err := telemetry.NewExporter(telemetry.Config{})
	require.NoError(t, err)
	assert.NoError(t, exp.Export(context.Background(), nil))
	assert.NoError(t, exp.Close())
}
