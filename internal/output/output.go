// Package output writes the run's result artifacts: the experiment CSV of
// invocation records, the cluster usage NDJSON of telemetry snapshots, the
// optional per-job audit log, and the overload sentinel file.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vhive-serverless/loadgen/internal/driver"
	"github.com/vhive-serverless/loadgen/internal/telemetry"
)

// Paths resolves the artifact filenames for a run, following the
// `<artifact>_<tag>_<scenario>.csv` naming in §6, placed inside the
// PathPrefix directory.
type Paths struct {
	PathPrefix string
	Tag        string
	Scenario   string
}

func (p Paths) resolve(name string) string {
	filename := fmt.Sprintf("%s_%s_%s.csv", name, p.Tag, p.Scenario)
	return filepath.Join(p.PathPrefix, filename)
}

func (p Paths) Experiment() string   { return p.resolve("experiment") }
func (p Paths) ClusterUsage() string { return p.resolve("cluster_usage") }
func (p Paths) JobLogs() string      { return p.resolve("joblogs") }
func (p Paths) OverloadFlag() string { return filepath.Join(p.PathPrefix, "overload.flag") }

var experimentHeader = []string{
	"function_id", "planned_start_ns", "actual_start_ns", "end_ns",
	"requested_duration_ms", "observed_duration_us", "response_time_us", "status",
}

// ExperimentWriter serializes driver.InvocationRecord rows to the
// experiment CSV.
type ExperimentWriter struct {
	f *os.File
	w *csv.Writer
}

// NewExperimentWriter creates (or truncates) the experiment CSV at path
// and writes its header row.
func NewExperimentWriter(path string) (*ExperimentWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create experiment csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(experimentHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write experiment header: %w", err)
	}
	return &ExperimentWriter{f: f, w: w}, nil
}

// Write appends one invocation record.
func (ew *ExperimentWriter) Write(r driver.InvocationRecord) error {
	row := []string{
		r.FunctionName,
		fmt.Sprintf("%d", r.PlannedStartNs),
		fmt.Sprintf("%d", r.ActualStartNs),
		fmt.Sprintf("%d", r.EndNs),
		fmt.Sprintf("%g", r.RequestedDurationMs),
		fmt.Sprintf("%d", r.ObservedDurationUs),
		fmt.Sprintf("%d", r.ResponseTimeUs),
		string(r.Status),
	}
	return ew.w.Write(row)
}

// Close flushes and closes the underlying file.
func (ew *ExperimentWriter) Close() error {
	ew.w.Flush()
	if err := ew.w.Error(); err != nil {
		ew.f.Close()
		return err
	}
	return ew.f.Close()
}

// ClusterUsageWriter serializes telemetry.ClusterSnapshot rows as
// newline-delimited JSON, matching §6's "cluster_usage_*.csv (newline-
// delimited JSON)" artifact.
type ClusterUsageWriter struct {
	f *os.File
	e *json.Encoder
}

// NewClusterUsageWriter creates (or truncates) the cluster usage file.
func NewClusterUsageWriter(path string) (*ClusterUsageWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cluster usage file: %w", err)
	}
	return &ClusterUsageWriter{f: f, e: json.NewEncoder(f)}, nil
}

// Write appends one cluster snapshot as a JSON line.
func (cw *ClusterUsageWriter) Write(s telemetry.ClusterSnapshot) error {
	return cw.e.Encode(s)
}

// Close closes the underlying file.
func (cw *ClusterUsageWriter) Close() error {
	return cw.f.Close()
}

// JobLogRow is one per-job scheduling-round audit entry (§4.7 step 4).
type JobLogRow struct {
	Round               int
	Name                string
	PrevReplica         int64
	NewReplica          int64
	DeadlineMs          int64
	IterationsRemaining int64
}

var jobLogHeader = []string{
	"round", "name", "prev_replica", "new_replica", "deadline_ms", "iterations_remaining",
}

// JobLogWriter serializes JobLogRow entries to the per-job audit CSV.
type JobLogWriter struct {
	f *os.File
	w *csv.Writer
}

// NewJobLogWriter creates (or truncates) the job log CSV and writes its
// header row.
func NewJobLogWriter(path string) (*JobLogWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create job log csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(jobLogHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write job log header: %w", err)
	}
	return &JobLogWriter{f: f, w: w}, nil
}

// Write appends one audit row.
func (jw *JobLogWriter) Write(r JobLogRow) error {
	row := []string{
		fmt.Sprintf("%d", r.Round),
		r.Name,
		fmt.Sprintf("%d", r.PrevReplica),
		fmt.Sprintf("%d", r.NewReplica),
		fmt.Sprintf("%d", r.DeadlineMs),
		fmt.Sprintf("%d", r.IterationsRemaining),
	}
	return jw.w.Write(row)
}

// Close flushes and closes the underlying file.
func (jw *JobLogWriter) Close() error {
	jw.w.Flush()
	if err := jw.w.Error(); err != nil {
		jw.f.Close()
		return err
	}
	return jw.f.Close()
}

// WriteOverloadFlag drops the overload.flag sentinel at teardown (§4.4
// step 4), used by any driver's overload signal during the run.
func WriteOverloadFlag(p Paths) error {
	return os.WriteFile(p.OverloadFlag(), []byte("overload\n"), 0o644)
}
