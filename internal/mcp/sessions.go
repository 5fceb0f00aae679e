package mcp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"snapshot-query/internal/query"
	"snapshot-query/internal/recorder"
	"snapshot-query/internal/snapshot"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Session describes one loaded snapshot.
type Session struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Hash       string    `json:"hash,omitempty"`
	Elements   int       `json:"elements"`
	Captured   bool      `json:"captured,omitempty"`
	LoadedAt   time.Time `json:"loaded_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta   Session
	engine *query.Engine
}

// SessionCache keeps one query engine per snapshot file so the ranking
// index survives across tool calls. A file is re-parsed only when its
// content hash changes. The least recently used session is evicted once
// the cache holds max sessions.
type SessionCache struct {
	mu       sync.Mutex
	max      int
	opts     []query.Option
	sessions map[string]*sessionRecord
	byPath   map[string]string
	recorder *recorder.Recorder
	now      func() time.Time
}

// NewSessionCache returns an empty cache. Engines are built with opts.
func NewSessionCache(max int, rec *recorder.Recorder, opts ...query.Option) *SessionCache {
	if max <= 0 {
		max = 1
	}
	return &SessionCache{
		max:      max,
		opts:     opts,
		sessions: make(map[string]*sessionRecord),
		byPath:   make(map[string]string),
		recorder: rec,
		now:      time.Now,
	}
}

func contentHash(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Open returns the engine for the snapshot at path, loading or reloading
// it as needed.
func (c *SessionCache) Open(path string) (*query.Engine, Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Session{}, &snapshot.LoadError{Path: path, Err: snapshot.ErrNotFound}
		}
		return nil, Session{}, &snapshot.LoadError{Path: path, Err: err}
	}
	hash := contentHash(data)

	c.mu.Lock()
	if id, ok := c.byPath[abs]; ok {
		rec := c.sessions[id]
		if rec.meta.Hash == hash {
			rec.meta.LastActive = c.now()
			meta := rec.meta
			c.mu.Unlock()
			return rec.engine, meta, nil
		}
	}
	c.mu.Unlock()

	tree, err := snapshot.Parse(data)
	if err != nil {
		var le *snapshot.LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, Session{}, le
		}
		return nil, Session{}, &snapshot.LoadError{Path: path, Err: err}
	}
	opts := append(append([]query.Option(nil), c.opts...), query.WithSource(abs))
	engine := query.New(tree, opts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	id, reload := c.byPath[abs]
	if !reload {
		id = uuid.NewString()
		c.evictLocked()
	}
	meta := Session{
		ID:         id,
		Source:     abs,
		Hash:       hash,
		Elements:   tree.Len(),
		LoadedAt:   now,
		LastActive: now,
	}
	c.sessions[id] = &sessionRecord{meta: meta, engine: engine}
	c.byPath[abs] = id
	c.recorder.Log(recorder.EventSessionOpen, id, meta)
	return engine, meta, nil
}

// Add registers an in-memory tree, such as a live capture, under a new
// session id.
func (c *SessionCache) Add(source string, tree *snapshot.Tree) (*query.Engine, Session) {
	engine := query.New(tree, c.opts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()
	now := c.now()
	meta := Session{
		ID:         uuid.NewString(),
		Source:     source,
		Elements:   tree.Len(),
		Captured:   true,
		LoadedAt:   now,
		LastActive: now,
	}
	c.sessions[meta.ID] = &sessionRecord{meta: meta, engine: engine}
	c.recorder.Log(recorder.EventSessionOpen, meta.ID, meta)
	return engine, meta
}

// Get returns the session with id.
func (c *SessionCache) Get(id string) (*query.Engine, Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.sessions[id]
	if !ok {
		return nil, Session{}, false
	}
	rec.meta.LastActive = c.now()
	return rec.engine, rec.meta, true
}

// Drop forgets a session.
func (c *SessionCache) Drop(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked(id)
}

func (c *SessionCache) dropLocked(id string) bool {
	rec, ok := c.sessions[id]
	if !ok {
		return false
	}
	delete(c.sessions, id)
	if !rec.meta.Captured {
		delete(c.byPath, rec.meta.Source)
	}
	c.recorder.Log(recorder.EventSessionDrop, id, rec.meta)
	return true
}

// evictLocked makes room for one more session.
func (c *SessionCache) evictLocked() {
	for len(c.sessions) >= c.max {
		var oldest *sessionRecord
		for _, rec := range c.sessions {
			if oldest == nil || rec.meta.LastActive.Before(oldest.meta.LastActive) {
				oldest = rec
			}
		}
		c.dropLocked(oldest.meta.ID)
	}
}

// List returns sessions ordered by load time.
func (c *SessionCache) List() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Session, 0, len(c.sessions))
	for _, rec := range c.sessions {
		out = append(out, rec.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].LoadedAt.Before(out[j].LoadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of cached sessions.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Resolve picks the session named by a tool's arguments: session_id when
// given, otherwise file_path.
func (c *SessionCache) Resolve(args map[string]interface{}) (*query.Engine, Session, error) {
	if id := getStringArg(args, "session_id"); id != "" {
		engine, meta, ok := c.Get(id)
		if !ok {
			return nil, Session{}, fmt.Errorf("unknown session_id %q", id)
		}
		return engine, meta, nil
	}
	path := getStringArg(args, "file_path")
	if path == "" {
		return nil, Session{}, fmt.Errorf("file_path is required")
	}
	return c.Open(path)
}
