package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report is the result of an operation. It contains the input and other
// metadata that was used to execute the operation.
type Report[IN, OUT any] struct {
	ID        string       `json:"id"`
	Def       Definition   `json:"definition"`
	Output    OUT          `json:"output"`
	Input     IN           `json:"input"`
	Timestamp *time.Time   `json:"timestamp"`
	Err       *ReportError `json:"error"`
}

// ToGenericReport converts the Report to a generic Report.
func (r Report[IN, OUT]) ToGenericReport() Report[any, any] {
	return genericReport(r)
}

// NewReport creates a new report.
func NewReport[IN, OUT any](def Definition, input IN, output OUT, err error) Report[IN, OUT] {
	now := time.Now()
	r := Report[IN, OUT]{
		ID:        uuid.New().String(),
		Def:       def,
		Output:    output,
		Input:     input,
		Timestamp: &now,
	}
	if err != nil {
		r.Err = &ReportError{Message: err.Error()}
	}

	return r
}

// ReportError represents an error in the Report. Its purpose is to have an
// exported Message field for marshalling, as a native error can't be
// marshaled to JSON.
type ReportError struct {
	Message string `json:"message"`
}

// Error implements the error interface.
func (o ReportError) Error() string {
	return o.Message
}

var ErrReportNotFound = errors.New("report not found")

// Reporter manages reports. It can store them in memory, on the FS, etc.
type Reporter interface {
	GetReport(id string) (Report[any, any], error)
	GetReports() ([]Report[any, any], error)
	AddReport(report Report[any, any]) error
}

// MemoryReporter stores reports in memory. It is safe for concurrent use.
type MemoryReporter struct {
	reports []Report[any, any]
	mu      sync.RWMutex
}

// NewMemoryReporter creates a new MemoryReporter.
func NewMemoryReporter() *MemoryReporter {
	return &MemoryReporter{}
}

// AddReport adds a report to the memory reporter.
func (e *MemoryReporter) AddReport(report Report[any, any]) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reports = append(e.reports, report)

	return nil
}

// GetReports returns all reports.
func (e *MemoryReporter) GetReports() ([]Report[any, any], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// Copy to avoid data races after returning.
	reports := make([]Report[any, any], len(e.reports))
	copy(reports, e.reports)

	return reports, nil
}

// GetReport returns a report by ID.
// Returns ErrReportNotFound if the report is not found.
func (e *MemoryReporter) GetReport(id string) (Report[any, any], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, report := range e.reports {
		if report.ID == id {
			return report, nil
		}
	}

	return Report[any, any]{}, fmt.Errorf("report_id %s: %w", id, ErrReportNotFound)
}

// FileReporter persists each report as a JSON file named <report-id>.json
// under a directory, so a run's decision path (skips, recoveries, warehouse
// overrides) survives the process. It is safe for concurrent use.
type FileReporter struct {
	dir string
	mu  sync.Mutex
}

// NewFileReporter creates the report directory if needed and returns a
// FileReporter writing into it.
func NewFileReporter(dir string) (*FileReporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}

	return &FileReporter{dir: dir}, nil
}

// Dir returns the directory reports are written to.
func (e *FileReporter) Dir() string {
	return e.dir
}

// AddReport writes the report to disk.
func (e *FileReporter) AddReport(report Report[any, any]) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report %s: %w", report.ID, err)
	}

	return os.WriteFile(e.path(report.ID), data, 0o644)
}

// GetReport reads a single report by ID.
// Returns ErrReportNotFound if the report is not found.
func (e *FileReporter) GetReport(id string) (Report[any, any], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := os.ReadFile(e.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return Report[any, any]{}, fmt.Errorf("report_id %s: %w", id, ErrReportNotFound)
	}
	if err != nil {
		return Report[any, any]{}, err
	}

	var report Report[any, any]
	if err := json.Unmarshal(data, &report); err != nil {
		return Report[any, any]{}, fmt.Errorf("unmarshaling report %s: %w", id, err)
	}

	return report, nil
}

// GetReports reads all reports in the directory, ordered by timestamp.
func (e *FileReporter) GetReports() ([]Report[any, any], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, err
	}

	var reports []Report[any, any]
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(e.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var report Report[any, any]
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", entry.Name(), err)
		}
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		a, b := reports[i].Timestamp, reports[j].Timestamp
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})

	return reports, nil
}

func (e *FileReporter) path(id string) string {
	return filepath.Join(e.dir, id+".json")
}

func genericReport[IN, OUT any](r Report[IN, OUT]) Report[any, any] {
	return Report[any, any]{
		ID:        r.ID,
		Def:       r.Def,
		Output:    r.Output,
		Input:     r.Input,
		Timestamp: r.Timestamp,
		Err:       r.Err,
	}
}
