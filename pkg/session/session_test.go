package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/activity"
)

func TestWriter_FileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	s := New()
	w, err := NewWriter(context.Background(), store, s, Config{}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	types := []activity.Type{activity.TabSwitch, activity.MultipleFaces, activity.AudioDetected, activity.LookingAway}
	for _, typ := range types {
		if err := w.Write(activity.New(typ, activity.High, "test", string(typ))); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Write(activity.New(activity.CopyPaste, activity.Medium, "", "")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}

	got, acts, err := ReadFile(store.Path(s.ID))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.ID != s.ID || got.Count != len(types) || got.EndedAt.IsZero() {
		t.Errorf("session = %+v", got)
	}
	if len(acts) != len(types) {
		t.Fatalf("read %d activities, want %d", len(acts), len(types))
	}
	for i, typ := range types {
		if acts[i].Type != typ {
			t.Errorf("acts[%d].Type = %s, want %s", i, acts[i].Type, typ)
		}
	}
	if written, failed := w.Stats(); written != len(types) || failed != 0 {
		t.Errorf("Stats = %d, %d", written, failed)
	}
}

func TestFileStore_RefusesExistingSession(t *testing.T) {
	dir := t.TempDir()
	s := New()
	if err := os.WriteFile(dir+"/"+s.ID+".jsonl", []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, _ := NewFileStore(dir)
	if _, err := NewWriter(context.Background(), store, s, Config{}, nil); err == nil {
		t.Fatal("expected error for an existing session file")
	}
}

func TestReadFile_BadLine(t *testing.T) {
	path := t.TempDir() + "/bad.jsonl"
	os.WriteFile(path, []byte(`{"kind":"begin","session":{"id":"x"}}`+"\nnot json\n"), 0o644)
	if _, _, err := ReadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

// memStore records calls; append blocks while gate is held.
type memStore struct {
	mu       sync.Mutex
	began    []Session
	appended []int
	ended    []Session
	closed   int

	beginErr  error
	appendErr func(seq int) error
	gate      chan struct{}
}

func (m *memStore) Begin(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.began = append(m.began, s)
	return m.beginErr
}

func (m *memStore) Append(ctx context.Context, id string, seq int, a activity.Activity) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, seq)
	if m.appendErr != nil {
		return m.appendErr(seq)
	}
	return nil
}

func (m *memStore) End(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, s)
	return nil
}

func (m *memStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func TestWriter_BeginError(t *testing.T) {
	store := &memStore{beginErr: errors.New("db down")}
	if _, err := NewWriter(context.Background(), store, Session{}, Config{}, nil); err == nil {
		t.Fatal("expected Begin error")
	}
	if len(store.began) != 1 || store.began[0].ID == "" {
		t.Errorf("Begin called with %+v", store.began)
	}
}

func TestWriter_BufferFull(t *testing.T) {
	store := &memStore{gate: make(chan struct{})}
	w, err := NewWriter(context.Background(), store, New(), Config{Buffer: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// One activity may already be held by the drain goroutine.
	var full bool
	for i := 0; i < 4; i++ {
		if err := w.Write(activity.New(activity.WindowBlur, activity.Medium, "", "")); errors.Is(err, ErrBufferFull) {
			full = true
		}
	}
	if !full {
		t.Error("expected ErrBufferFull once the buffer filled")
	}

	close(store.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if store.closed != 1 || len(store.ended) != 1 {
		t.Errorf("closed=%d ended=%d", store.closed, len(store.ended))
	}
	if store.ended[0].Count != len(store.appended) {
		t.Errorf("count %d != appended %d", store.ended[0].Count, len(store.appended))
	}
}

func TestWriter_AppendFailuresAreCounted(t *testing.T) {
	store := &memStore{appendErr: func(seq int) error {
		if seq%2 == 0 {
			return fmt.Errorf("seq %d rejected", seq)
		}
		return nil
	}}
	w, err := NewWriter(context.Background(), store, New(), Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		w.Write(activity.New(activity.RightClick, activity.Low, "", ""))
	}
	w.Close(context.Background())

	written, failed := w.Stats()
	if written != 3 || failed != 2 {
		t.Errorf("Stats = %d written, %d failed", written, failed)
	}
	for i, seq := range store.appended {
		if seq != i+1 {
			t.Fatalf("appended out of order: %v", store.appended)
		}
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PROCTOR_TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("PROCTOR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	s := New()
	w, err := NewWriter(ctx, store, s, Config{}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Write(activity.New(activity.TabSwitch, activity.High, "lockdown", "hidden"))
	w.Write(activity.New(activity.CopyPaste, activity.Medium, "lockdown", "Ctrl+C"))

	// Read back before Close, which closes the connection.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if written, _ := w.Stats(); written == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	acts, err := store.Activities(ctx, s.ID)
	if err != nil {
		t.Fatalf("Activities: %v", err)
	}
	if len(acts) != 2 || acts[0].Type != activity.TabSwitch || acts[1].Type != activity.CopyPaste {
		t.Errorf("Activities = %+v", acts)
	}
	if err := w.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
}
