package pipeline

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Entry is the outcome of one unit of work: a device file, a pass-through
// link or a session transcript.
type Entry struct {
	Task    string `yaml:"task"`
	Session string `yaml:"session"`
	Device  string `yaml:"device,omitempty"`
	File    string `yaml:"file,omitempty"`
	Status  Status `yaml:"status"`
	Message string `yaml:"message,omitempty"`
}

// Report collects entries from concurrently corrected devices.
type Report struct {
	RunID   string
	Started time.Time

	mu      sync.Mutex
	entries []Entry
}

func NewReport(runID string) *Report {
	return &Report{RunID: runID, Started: time.Now()}
}

func (r *Report) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns the entries sorted by task, session, device and file.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	entries := append([]Entry(nil), r.entries...)
	r.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Task != b.Task {
			return a.Task < b.Task
		}
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		return a.File < b.File
	})
	return entries
}

// Count returns the number of entries with the given status.
func (r *Report) Count(status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

type reportFile struct {
	RunID    string         `yaml:"run_id"`
	Started  time.Time      `yaml:"started"`
	Finished time.Time      `yaml:"finished"`
	Summary  map[Status]int `yaml:"summary"`
	Entries  []Entry        `yaml:"entries"`
}

// WriteFile writes the report as YAML.
func (r *Report) WriteFile(path string) error {
	doc := reportFile{
		RunID:    r.RunID,
		Started:  r.Started,
		Finished: time.Now(),
		Summary: map[Status]int{
			StatusOK:      r.Count(StatusOK),
			StatusSkipped: r.Count(StatusSkipped),
			StatusFailed:  r.Count(StatusFailed),
		},
		Entries: r.Entries(),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
