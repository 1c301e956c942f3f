package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teslashibe/go-proctor/pkg/activity"
)

// Entry is one line of a JSONL session file.
type Entry struct {
	Kind     string             `json:"kind"` // "begin", "activity" or "end"
	Session  *Session           `json:"session,omitempty"`
	Seq      int                `json:"seq,omitempty"`
	Activity *activity.Activity `json:"activity,omitempty"`
}

// FileStore writes each session to <dir>/<session id>.jsonl.
type FileStore struct {
	dir  string
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file a session is written to.
func (f *FileStore) Path(sessionID string) string {
	return filepath.Join(f.dir, sessionID+".jsonl")
}

// Begin creates the session file and writes the header line.
func (f *FileStore) Begin(ctx context.Context, s Session) error {
	if f.file != nil {
		return fmt.Errorf("session %s already open", s.ID)
	}
	file, err := os.OpenFile(f.Path(s.ID), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	f.file = file
	f.buf = bufio.NewWriter(file)
	f.enc = json.NewEncoder(f.buf)
	return f.put(Entry{Kind: "begin", Session: &s})
}

// Append writes one activity line and flushes it.
func (f *FileStore) Append(ctx context.Context, sessionID string, seq int, a activity.Activity) error {
	if f.file == nil {
		return ErrClosed
	}
	return f.put(Entry{Kind: "activity", Seq: seq, Activity: &a})
}

// End writes the trailer line.
func (f *FileStore) End(ctx context.Context, s Session) error {
	if f.file == nil {
		return ErrClosed
	}
	return f.put(Entry{Kind: "end", Session: &s})
}

// Close syncs and closes the file.
func (f *FileStore) Close(ctx context.Context) error {
	if f.file == nil {
		return nil
	}
	err := f.buf.Flush()
	if serr := f.file.Sync(); err == nil {
		err = serr
	}
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	f.file = nil
	return err
}

func (f *FileStore) put(e Entry) error {
	if err := f.enc.Encode(e); err != nil {
		return err
	}
	return f.buf.Flush()
}

// ReadFile loads a session file written by FileStore. Activities are returned
// in the order they were appended.
func ReadFile(path string) (Session, []activity.Activity, error) {
	file, err := os.Open(path)
	if err != nil {
		return Session{}, nil, err
	}
	defer file.Close()

	var (
		s    Session
		acts []activity.Activity
	)
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return s, acts, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		switch e.Kind {
		case "begin", "end":
			if e.Session != nil {
				s = *e.Session
			}
		case "activity":
			if e.Activity != nil {
				acts = append(acts, *e.Activity)
			}
		}
	}
	return s, acts, sc.Err()
}
