package metrics_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/powerstatd/internal/aggregator"
	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"codeberg.org/mutker/powerstatd/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) metrics.Config {
	dir := t.TempDir()
	return metrics.Config{
		DBPath:    filepath.Join(dir, "reports.db"),
		BackupDir: filepath.Join(dir, "backups"),
		BatchSize: 2,
		Enabled:   true,
	}
}

func report(ts int64, values map[string]float64, fields map[string]string) *aggregator.Report {
	return &aggregator.Report{
		Timestamp: time.UnixMilli(ts),
		Elapsed:   10,
		Values:    values,
		Fields:    fields,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, metrics.DefaultConfig().Validate())

	err := metrics.Config{Enabled: true}.Validate()
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))

	err = metrics.Config{DBPath: "x.db", BatchSize: -1}.Validate()
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidConfig))
}

func TestDisabledServiceIsNoop(t *testing.T) {
	svc, err := metrics.NewService(metrics.Config{})
	require.NoError(t, err)

	assert.Empty(t, svc.Session())
	assert.NoError(t, svc.Record(context.Background(), nil))
	assert.NoError(t, svc.Close())
}

func TestRecordPersistsReports(t *testing.T) {
	cfg := testConfig(t)
	svc, err := metrics.NewService(cfg)
	require.NoError(t, err)
	session := svc.Session()
	require.NotEmpty(t, session)

	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, report(1000, map[string]float64{
		"percent_rc6_RC6_time": 60, "percent_rc6_RC0_time": 40,
	}, nil)))
	require.NoError(t, svc.Record(ctx, report(2000, map[string]float64{
		"percent_rc6_RC6_time": 55,
	}, map[string]string{aggregator.DiskErrorField: "disk_bad_sense_key: key=0x5"})))
	// Third report stays buffered until Close.
	require.NoError(t, svc.Record(ctx, report(3000, map[string]float64{"wavg_cpufreq": 1.2e6}, nil)))
	require.NoError(t, svc.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reports WHERE session_id = ?`, session).Scan(&n))
	assert.Equal(t, 3, n)

	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM report_values`).Scan(&n))
	assert.Equal(t, 4, n)

	var v float64
	require.NoError(t, db.QueryRow(`
        SELECT v.value FROM report_values v JOIN reports r ON r.id = v.report_id
        WHERE r.timestamp = 3000 AND v.key = 'wavg_cpufreq'`).Scan(&v))
	assert.InDelta(t, 1.2e6, v, 1e-6)

	var field string
	require.NoError(t, db.QueryRow(`SELECT value FROM report_fields WHERE key = ?`, aggregator.DiskErrorField).Scan(&field))
	assert.Contains(t, field, "disk_bad_sense_key")

	var version int
	require.NoError(t, db.QueryRow(`SELECT MAX(version) FROM schema_versions`).Scan(&version))
	assert.Equal(t, metrics.SchemaVersion, version)
}

func TestRecordRejectsNilAndCancelled(t *testing.T) {
	svc, err := metrics.NewService(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()

	err = svc.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidReport))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.Record(ctx, report(1, map[string]float64{}, nil))
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
        CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
        INSERT INTO schema_versions VALUES (99, datetime('now'));
        CREATE TABLE reports (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := metrics.NewRepository(cfg, "session-1", logger.New("metrics"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := filepath.Glob(filepath.Join(cfg.BackupDir, "reports_v99_*.db"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	info, err := os.Stat(backups[0])
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)

	exists, err := metrics.TableExists(db, "report_values")
	require.NoError(t, err)
	assert.True(t, exists)
}
