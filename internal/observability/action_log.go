package observability

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// ActionEntry is one append-only record of something the workflow did,
// grounded on orchestrator/utils/action_log.py's log line shape.
type ActionEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"` // node name or agent kind
	Action    string         `json:"action"`
	TaskID    string         `json:"task_id,omitempty"`
	Phase     int            `json:"phase"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// ActionLog appends ActionEntry records as newline-delimited JSON to a
// single file, the same durable-audit-trail shape the original keeps
// alongside the structured event stream (events are for live observers;
// the action log is for after-the-fact review).
type ActionLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenActionLog opens (creating if needed) the append-only log file at
// path.
func OpenActionLog(path string) (*ActionLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &ActionLog{path: path, f: f}, nil
}

// Append writes one entry, stamping Timestamp if the caller left it zero.
func (l *ActionLog) Append(entry ActionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = l.f.Write(line)
	return err
}

// Close flushes and closes the underlying file.
func (l *ActionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
