// Package recorder keeps JSONL traces of tool calls made against loaded
// snapshots, rotating old trace files away.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	MaxRotatedFiles = 3
	TraceDir        = "traces"
)

// Event types written by the server.
const (
	EventToolCall    = "tool_call"
	EventSessionOpen = "session_open"
	EventSessionDrop = "session_evict"
)

// Event is a single line of a trace.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// ToolCall describes one tool invocation.
type ToolCall struct {
	Tool       string                 `json:"tool"`
	Args       map[string]interface{} `json:"args,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
	Results    int                    `json:"results"`
	Error      string                 `json:"error,omitempty"`
}

// Recorder writes events to the current trace file. A nil *Recorder is a
// valid no-op recorder.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	now      func() time.Time
}

// NewRecorder creates a recorder rooted at basePath, creating the
// directory if needed.
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{
		basePath: basePath,
		now:      time.Now,
	}, nil
}

// Start opens a fresh trace file named after label, first pruning older
// traces so at most MaxRotatedFiles remain.
func (r *Recorder) Start(label string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.encoder = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	filename := fmt.Sprintf("trace_%s_%d.jsonl", label, r.now().UnixMilli())
	f, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Path returns the current trace file, or "" when not recording.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

// Log writes an event. Events are dropped when no trace is open.
func (r *Recorder) Log(eventType, sessionID string, data interface{}) {
	if r == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{
		Timestamp: r.now(),
		Type:      eventType,
		SessionID: sessionID,
		Data:      raw,
	})
}

// LogToolCall records a tool invocation.
func (r *Recorder) LogToolCall(sessionID string, call ToolCall) {
	r.Log(EventToolCall, sessionID, call)
}

// rotate keeps only the newest MaxRotatedFiles-1 traces, leaving room for
// the one about to be created.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	type trace struct {
		name string
		mod  time.Time
	}
	var traces []trace
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, trace{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		if !traces[i].mod.Equal(traces[j].mod) {
			return traces[i].mod.After(traces[j].mod)
		}
		return traces[i].name > traces[j].name
	})

	keep := MaxRotatedFiles - 1
	for i := keep; i < len(traces); i++ {
		_ = os.Remove(filepath.Join(r.basePath, traces[i].name))
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}

// ReadTrace loads every event of a trace file.
func ReadTrace(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			return events, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, evt)
	}
	return events, sc.Err()
}
