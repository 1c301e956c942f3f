package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/engine"
	"github.com/teslashibe/go-proctor/pkg/health"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/lockdown"
	"github.com/teslashibe/go-proctor/pkg/recorder"
)

// fakeEngine routes lockdown events through a real guard and recorder.
type fakeEngine struct {
	rec   *recorder.Recorder
	guard *lockdown.Guard

	mu     sync.Mutex
	speech bool
}

func newFakeEngine() *fakeEngine {
	rec := recorder.New(nil)
	return &fakeEngine{rec: rec, guard: lockdown.New(rec)}
}

func (f *fakeEngine) State() engine.State {
	return engine.State{IsMonitoring: true, VisualActive: true, ViolationCount: f.rec.Count()}
}

func (f *fakeEngine) Activities() []activity.Activity { return f.rec.Activities() }

func (f *fakeEngine) SetSpeechRecognitionActive(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speech = active
}

func (f *fakeEngine) HandleLockdownEvent(e lockdown.Event) bool { return f.guard.Handle(e) }

func newTestServer(t *testing.T) (*Server, *fakeEngine, *health.Monitor) {
	t.Helper()
	eng := newFakeEngine()
	mon := health.NewMonitor(nil)
	h := hub.New("activities", nil)
	eng.rec.AddSink("hub", h)
	return NewServer(DefaultConfig(), eng, mon, h, nil), eng, mon
}

func doJSON(t *testing.T, s *Server, method, path, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, data)
		}
	}
	return resp.StatusCode
}

func TestCameraEndpoint(t *testing.T) {
	eng := newFakeEngine()
	mgr := camera.NewManager(camera.DefaultConfig())
	changed := 0
	mgr.OnChange(func(camera.Config) { changed++ })
	s := NewServer(DefaultConfig(), eng, health.NewMonitor(nil), hub.New("activities", nil), nil, WithCamera(mgr))

	var got CameraResponse
	if code := doJSON(t, s, http.MethodGet, "/api/camera", "", &got); code != http.StatusOK {
		t.Fatalf("GET status = %d", code)
	}
	if got.Config.Width != 640 || len(got.Presets) == 0 {
		t.Errorf("GET = %+v", got)
	}

	if code := doJSON(t, s, http.MethodPut, "/api/camera", `{"preset":"low","mirror":true}`, &got); code != http.StatusOK {
		t.Fatalf("PUT status = %d", code)
	}
	if got.Config.Width != 320 || !got.Config.Mirror || changed != 1 {
		t.Errorf("PUT = %+v, changes = %d", got.Config, changed)
	}

	if code := doJSON(t, s, http.MethodPut, "/api/camera", `{"width":10}`, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("invalid width status = %d", code)
	}
	if code := doJSON(t, s, http.MethodPut, "/api/camera", `{"preset":"nope"}`, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("unknown preset status = %d", code)
	}
	if code := doJSON(t, s, http.MethodPut, "/api/camera", `{`, nil); code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", code)
	}
	if mgr.Config().Width != 320 {
		t.Error("rejected updates changed the camera config")
	}
}

func TestCameraEndpoint_Disabled(t *testing.T) {
	s, _, _ := newTestServer(t)
	if code := doJSON(t, s, http.MethodGet, "/api/camera", "", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a camera manager", code)
	}
}

func TestLockdownEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantPrevent bool
	}{
		{"copy", `{"kind":"keydown","key":"c","ctrl":true}`, http.StatusOK, true},
		{"context menu", `{"kind":"contextmenu"}`, http.StatusOK, true},
		{"plain key", `{"kind":"keydown","key":"a"}`, http.StatusOK, false},
		{"tab hidden", `{"kind":"visibilitychange","hidden":true}`, http.StatusOK, false},
		{"missing kind", `{}`, http.StatusBadRequest, false},
		{"bad json", `{`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestServer(t)
			var resp LockdownResponse
			if code := doJSON(t, s, http.MethodPost, "/api/lockdown", tt.body, &resp); code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", code, tt.wantStatus)
			}
			if resp.Prevent != tt.wantPrevent {
				t.Errorf("prevent = %v, want %v", resp.Prevent, tt.wantPrevent)
			}
		})
	}
}

func TestStateAndActivities(t *testing.T) {
	s, _, _ := newTestServer(t)

	var acts []activity.Activity
	doJSON(t, s, http.MethodGet, "/api/activities", "", &acts)
	if acts == nil || len(acts) != 0 {
		t.Errorf("empty log should encode as [], got %v", acts)
	}

	doJSON(t, s, http.MethodPost, "/api/lockdown", `{"kind":"blur"}`, nil)
	doJSON(t, s, http.MethodPost, "/api/lockdown", `{"kind":"visibilitychange","hidden":true}`, nil)

	var st engine.State
	if code := doJSON(t, s, http.MethodGet, "/api/state", "", &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !st.IsMonitoring || st.ViolationCount != 2 {
		t.Errorf("state = %+v", st)
	}

	doJSON(t, s, http.MethodGet, "/api/activities", "", &acts)
	if len(acts) != 2 || acts[0].Type != activity.WindowBlur || acts[1].Type != activity.TabSwitch {
		t.Errorf("activities = %+v", acts)
	}
}

func TestSpeechEndpoint(t *testing.T) {
	s, eng, _ := newTestServer(t)
	if code := doJSON(t, s, http.MethodPost, "/api/speech", `{"active":true}`, nil); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !eng.speech {
		t.Error("speech state not forwarded")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _, mon := newTestServer(t)
	mon.Update(health.Visual, health.Healthy, "")
	mon.Update(health.Audio, health.Degraded, "permission denied")

	var sum health.Summary
	doJSON(t, s, http.MethodGet, "/api/health", "", &sum)
	if sum.Status != health.Degraded || sum.Components[health.Audio] != health.Degraded {
		t.Errorf("summary = %+v", sum)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s, _, _ := newTestServer(t)
	if code := doJSON(t, s, http.MethodGet, "/ws/activities", "", nil); code != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", code)
	}
}

func TestActivitiesWebsocket(t *testing.T) {
	s, _, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)
	go s.App().Listener(ln)
	defer s.Shutdown()

	// One activity before connecting shows up in the snapshot.
	doJSON(t, s, http.MethodPost, "/api/lockdown", `{"kind":"contextmenu"}`, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/activities", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var env hub.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	var snap Snapshot
	json.Unmarshal(env.Data, &snap)
	if env.Type != hub.KindHello || len(snap.Activities) != 1 || snap.State.ViolationCount != 1 {
		t.Fatalf("hello = %s %+v", env.Type, snap)
	}

	deadline := time.Now().Add(time.Second)
	for s.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	doJSON(t, s, http.MethodPost, "/api/lockdown", `{"kind":"keydown","key":"v","meta":true}`, nil)
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read activity: %v", err)
	}
	var a activity.Activity
	json.Unmarshal(env.Data, &a)
	if env.Type != hub.KindActivity || a.Type != activity.CopyPaste {
		t.Errorf("frame = %s %+v", env.Type, a)
	}

	s.PublishState()
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read state: %v", err)
	}
	var st engine.State
	json.Unmarshal(env.Data, &st)
	if env.Type != hub.KindState || st.ViolationCount != 2 {
		t.Errorf("state frame = %s %+v", env.Type, st)
	}
}
