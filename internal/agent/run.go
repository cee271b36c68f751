// File: internal/agent/run.go
package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// dataURIPrefix is prepended to every screenshot payload in the trail.
// Downstream consumers persist or render the records directly, so the format
// is fixed; changing it requires a version bump.
const dataURIPrefix = "data:image/png;base64,"

// Allows for mocking in tests.
var uuidNewString = uuid.NewString

// LogEntry is one timestamped line of the execution log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Screenshot is one record of the screenshot trail.
type Screenshot struct {
	Label     string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

// Result is the terminal outcome of a run.
type Result struct {
	Success    bool
	Iterations int
	Duration   time.Duration
	Err        error
}

// Run is the record of one instruction execution: identity, configuration,
// the accumulated log and screenshot trail, and the terminal result. It is
// owned exclusively by the loop invocation that created it.
type Run struct {
	ID          string
	Instruction string

	TargetURL          string
	MaxIterations      int
	Timeout            time.Duration
	CaptureScreenshots bool

	Log         []LogEntry
	Screenshots []Screenshot
	Result      Result

	startedAt time.Time
}

// NewRun creates a run record with a fresh identifier.
func NewRun(instruction, targetURL string, maxIterations int, timeout time.Duration, capture bool) *Run {
	return &Run{
		ID:                 uuidNewString(),
		Instruction:        instruction,
		TargetURL:          targetURL,
		MaxIterations:      maxIterations,
		Timeout:            timeout,
		CaptureScreenshots: capture,
	}
}

// Logf appends a formatted line to the execution log.
func (r *Run) Logf(format string, args ...interface{}) {
	r.Log = append(r.Log, LogEntry{
		Timestamp: time.Now().UTC(),
		Text:      fmt.Sprintf(format, args...),
	})
}

// AddScreenshot appends a labeled screenshot to the trail. The payload is raw
// base64; the data-URI prefix is applied here so every trail record carries
// it exactly once.
func (r *Run) AddScreenshot(label, b64 string) {
	if !r.CaptureScreenshots {
		return
	}
	r.Screenshots = append(r.Screenshots, Screenshot{
		Label:     label,
		Timestamp: time.Now().UTC(),
		Data:      dataURIPrefix + b64,
	})
}

// LogText renders the accumulated log as newline-joined text with RFC 3339
// timestamps.
func (r *Run) LogText() string {
	var out string
	for _, entry := range r.Log {
		out += fmt.Sprintf("[%s] %s\n", entry.Timestamp.Format(time.RFC3339), entry.Text)
	}
	return out
}
