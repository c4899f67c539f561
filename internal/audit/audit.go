// Package audit keeps an append-only JSONL trail of every decision the
// pipeline makes, independent of the slog stream.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/logger"
	"github.com/harunnryd/autosend/internal/pathutil"
)

const (
	OperationDecide  = "decide"
	OperationExecute = "execute"
)

type Entry struct {
	Timestamp   time.Time       `json:"timestamp"`
	TraceID     string          `json:"trace_id,omitempty"`
	Operation   string          `json:"operation"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	LeadID      string          `json:"lead_id,omitempty"`
	DraftID     string          `json:"draft_id,omitempty"`
	JobID       string          `json:"job_id,omitempty"`
	Action      autosend.Action `json:"action"`
	Reason      string          `json:"reason,omitempty"`
	Message     string          `json:"message,omitempty"`
	Confidence  *float64        `json:"confidence,omitempty"`
	Threshold   *float64        `json:"threshold,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

type Filter struct {
	LeadID string
	Action autosend.Action
	Since  time.Time
	Limit  int
}

type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter *Filter) ([]*Entry, error)
}

type FileLogger struct {
	mu             sync.RWMutex
	logPath        string
	redactPatterns []*regexp.Regexp
	literals       []string
}

// NewFileLogger appends to path. Redact patterns that are not valid regular
// expressions are matched literally.
func NewFileLogger(path string, redactPatterns []string) (*FileLogger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if err := pathutil.EnsureParentDir(path); err != nil {
		return nil, err
	}

	l := &FileLogger{logPath: path}
	for _, pattern := range redactPatterns {
		if pattern == "" {
			continue
		}
		if re, err := regexp.Compile(pattern); err == nil {
			l.redactPatterns = append(l.redactPatterns, re)
		} else {
			l.literals = append(l.literals, pattern)
		}
	}
	return l, nil
}

func (l *FileLogger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.TraceID == "" {
		entry.TraceID = logger.GetTraceID(ctx)
	}

	redacted := *entry
	redacted.Reason = l.redact(redacted.Reason)
	redacted.Message = l.redact(redacted.Message)

	line, err := json.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first.
func (l *FileLogger) Query(ctx context.Context, filter *Filter) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	file, err := os.Open(l.logPath)
	if os.IsNotExist(err) {
		return []*Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			slog.Warn("Skipping unreadable audit entry", "error", err)
			continue
		}
		if filter != nil && !matches(&entry, filter) {
			continue
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if filter != nil && filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (l *FileLogger) redact(s string) string {
	if s == "" {
		return s
	}
	for _, re := range l.redactPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	for _, lit := range l.literals {
		s = strings.ReplaceAll(s, lit, "[REDACTED]")
	}
	return s
}

func matches(entry *Entry, filter *Filter) bool {
	if filter.LeadID != "" && entry.LeadID != filter.LeadID {
		return false
	}
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
		return false
	}
	return true
}
