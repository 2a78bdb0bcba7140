package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record is the audit document kept for every filed ticket.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	IssueKey  string    `json:"issueKey"`
	IssueURL  string    `json:"issueUrl"`
	Summary   string    `json:"summary"`
	Severity  string    `json:"severity"`
	Namespace string    `json:"namespace,omitempty"`
	Workload  string    `json:"workload,omitempty"`
	Pod       string    `json:"pod,omitempty"`
	Container string    `json:"container,omitempty"`
	Node      string    `json:"node,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	LastLogs  string    `json:"lastLogs,omitempty"`
	Events    []string  `json:"events,omitempty"`
}

type Sink interface {
	Save(ctx context.Context, key string, rec *Record) (string, error) // returns URL or path
}

// NewFS writes records below base, one indented JSON file per key.
func NewFS(base string) Sink {
	if base == "" {
		base = "/var/log/incident-jira"
	}
	return &fsSink{base: base}
}

type fsSink struct{ base string }

func (s *fsSink) Save(ctx context.Context, key string, rec *Record) (string, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	p := filepath.Join(s.base, filepath.FromSlash(key)+".json")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// BuildKey lays records out as <source>/<yyyy-mm-dd>/<issueKey>.
func BuildKey(source, issueKey string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s", sanitize(source), t.UTC().Format("2006-01-02"), sanitize(issueKey))
}

func sanitize(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
