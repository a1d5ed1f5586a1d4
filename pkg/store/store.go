// Package store provides in-memory storage for worksheets and their runs.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
)

// ErrNotFound and ErrAlreadyExists classify store failures for the API layer.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// RunState represents the state of a worksheet run.
type RunState string

const (
	RunActive    RunState = "ACTIVE"
	RunSucceeded RunState = "SUCCEEDED" // every step succeeded
	RunFailed    RunState = "FAILED"    // at least one step failed or mismatched
	RunCancelled RunState = "CANCELLED"
)

// Worksheet represents a stored worksheet definition.
type Worksheet struct {
	Name        string    `json:"name"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	RevisionID  string    `json:"revisionId"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
	SourceCode  string    `json:"sourceContents"`
	StepCount   int       `json:"stepCount"`
}

// ID returns the last path segment of the worksheet name.
func (w *Worksheet) ID() string {
	return w.Name[strings.LastIndex(w.Name, "/")+1:]
}

// Run represents a stored worksheet run.
type Run struct {
	Name                string                `json:"name"`
	State               RunState              `json:"state"`
	StartTime           time.Time             `json:"startTime"`
	EndTime             time.Time             `json:"endTime,omitempty"`
	WorksheetRevisionID string                `json:"worksheetRevisionId"`
	Steps               []*runtime.StepReport `json:"-"`
	Succeeded           int                   `json:"succeeded"`
	Failed              int                   `json:"failed"`
	Error               string                `json:"error,omitempty"`

	seq int64
}

// ID returns the last path segment of the run name.
func (r *Run) ID() string {
	return r.Name[strings.LastIndex(r.Name, "/")+1:]
}

// Store is a thread-safe in-memory storage for worksheets and runs.
type Store struct {
	mu         sync.RWMutex
	worksheets map[string]*Worksheet
	runs       map[string]*Run

	// Counters for generating unique IDs
	runCounter int64
	revCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		worksheets: make(map[string]*Worksheet),
		runs:       make(map[string]*Run),
	}
}

// WorksheetName builds the resource name for a worksheet ID.
func WorksheetName(id string) string {
	return "worksheets/" + id
}

// CreateWorksheet stores a new worksheet definition.
func (s *Store) CreateWorksheet(id, sourceCode, title, description string, steps int) (*Worksheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := WorksheetName(id)
	if _, exists := s.worksheets[name]; exists {
		return nil, fmt.Errorf("worksheet '%s' %w", name, ErrAlreadyExists)
	}

	s.revCounter++
	now := time.Now()
	ws := &Worksheet{
		Name:        name,
		Title:       title,
		Description: description,
		RevisionID:  fmt.Sprintf("%06d-000", s.revCounter),
		CreateTime:  now,
		UpdateTime:  now,
		SourceCode:  sourceCode,
		StepCount:   steps,
	}
	s.worksheets[name] = ws
	cp := *ws
	return &cp, nil
}

// GetWorksheet retrieves a snapshot of a worksheet by its full name.
func (s *Store) GetWorksheet(name string) (*Worksheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.worksheets[name]
	if !ok {
		return nil, fmt.Errorf("worksheet '%s' %w", name, ErrNotFound)
	}
	cp := *ws
	return &cp, nil
}

// ListWorksheets returns all worksheets ordered by name.
func (s *Store) ListWorksheets() []*Worksheet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Worksheet, 0, len(s.worksheets))
	for _, ws := range s.worksheets {
		cp := *ws
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// UpdateWorksheet replaces a worksheet's source and bumps its revision.
func (s *Store) UpdateWorksheet(name, sourceCode, title, description string, steps int) (*Worksheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.worksheets[name]
	if !ok {
		return nil, fmt.Errorf("worksheet '%s' %w", name, ErrNotFound)
	}

	s.revCounter++
	ws.SourceCode = sourceCode
	ws.StepCount = steps
	if title != "" {
		ws.Title = title
	}
	if description != "" {
		ws.Description = description
	}
	ws.RevisionID = fmt.Sprintf("%06d-000", s.revCounter)
	ws.UpdateTime = time.Now()

	cp := *ws
	return &cp, nil
}

// DeleteWorksheet removes a worksheet together with its runs.
func (s *Store) DeleteWorksheet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.worksheets[name]; !ok {
		return fmt.Errorf("worksheet '%s' %w", name, ErrNotFound)
	}
	delete(s.worksheets, name)

	prefix := name + "/runs/"
	for runName := range s.runs {
		if strings.HasPrefix(runName, prefix) {
			delete(s.runs, runName)
		}
	}
	return nil
}

// CreateRun creates a new active run record for a worksheet.
func (s *Store) CreateRun(worksheetName string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.worksheets[worksheetName]
	if !ok {
		return nil, fmt.Errorf("worksheet '%s' %w", worksheetName, ErrNotFound)
	}

	s.runCounter++
	run := &Run{
		Name:                fmt.Sprintf("%s/runs/run-%d", worksheetName, s.runCounter),
		State:               RunActive,
		StartTime:           time.Now(),
		WorksheetRevisionID: ws.RevisionID,
		seq:                 s.runCounter,
	}
	s.runs[run.Name] = run
	cp := *run
	return &cp, nil
}

// GetRun retrieves a snapshot of a run by name.
func (s *Store) GetRun(name string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[name]
	if !ok {
		return nil, fmt.Errorf("run '%s' %w", name, ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

// ListRuns returns all runs for a worksheet, newest first.
func (s *Store) ListRuns(worksheetName string) []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Run
	prefix := worksheetName + "/runs/"
	for name, run := range s.runs {
		if strings.HasPrefix(name, prefix) {
			cp := *run
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq > result[j].seq })
	return result
}

// CompleteRun records the report of a finished run.
func (s *Store) CompleteRun(name string, report *runtime.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[name]
	if !ok {
		return fmt.Errorf("run '%s' %w", name, ErrNotFound)
	}
	if run.State != RunActive {
		return fmt.Errorf("run '%s' is not active (state: %s)", name, run.State)
	}

	run.Steps = report.Steps
	run.Succeeded = report.Count(runtime.StepSucceeded)
	run.Failed = len(report.Steps) - run.Succeeded
	run.EndTime = time.Now()
	if report.OK() {
		run.State = RunSucceeded
	} else {
		run.State = RunFailed
	}
	return nil
}

// FailRun marks a run as failed with an error that prevented it from
// completing.
func (s *Store) FailRun(name string, report *runtime.Report, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[name]
	if !ok {
		return fmt.Errorf("run '%s' %w", name, ErrNotFound)
	}

	if report != nil {
		run.Steps = report.Steps
		run.Succeeded = report.Count(runtime.StepSucceeded)
		run.Failed = len(report.Steps) - run.Succeeded
	}
	run.State = RunFailed
	run.EndTime = time.Now()
	run.Error = err.Error()
	return nil
}

// CancelRun marks a run as cancelled.
func (s *Store) CancelRun(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[name]
	if !ok {
		return fmt.Errorf("run '%s' %w", name, ErrNotFound)
	}

	if run.State != RunActive {
		return fmt.Errorf("run '%s' is not active (state: %s)", name, run.State)
	}

	run.State = RunCancelled
	run.EndTime = time.Now()
	return nil
}
