package inference

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 120, B: 90, A: 255})
		}
	}
	return img
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	client, err := NewClient(append([]Option{WithBaseURL(server.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("NewClient() error = %v, want ErrNoBaseURL", err)
	}
}

func TestClientHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"healthy", 200, `{"status":"healthy","service":"Python AI Proctoring"}`, nil},
		{"degraded", 200, `{"status":"degraded"}`, ErrUnhealthy},
		{"garbage", 200, `not json`, ErrBadResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" || r.Method != http.MethodGet {
					t.Errorf("got %s %s, want GET /health", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := client.Health(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Health() = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Health() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientHealth_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"success":false,"error":"warming up"}`))
	})

	err := client.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Health() = %T %v, want *APIError", err, err)
	}
	if apiErr.StatusCode != 503 || apiErr.Message != "warming up" || !apiErr.IsServerError() {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClientAnalyzeFrame(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze-face" || r.Method != http.MethodPost {
			t.Errorf("got %s %s, want POST /analyze-face", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
			return
		}
		img := r.PostForm.Get("image")
		if !strings.HasPrefix(img, "data:image/jpeg;base64,") {
			t.Errorf("image field prefix = %.30q", img)
		}
		decoded, err := DecodeDataURL(img)
		if err != nil {
			t.Errorf("DecodeDataURL: %v", err)
			return
		}
		if b := decoded.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
			t.Errorf("uploaded frame = %v", b)
		}
		if r.PostForm.Get("timestamp") == "" {
			t.Error("timestamp missing")
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"analysis": map[string]interface{}{
				"facesDetected":  2,
				"multipleFaces":  true,
				"facePosition":   map[string]int{"x": 30, "y": 20},
				"lookingAway":    true,
				"personLeftSeat": false,
				"confidence":     0.8,
			},
		})
	}, WithAPIKey("secret"))

	got, err := client.AnalyzeFrame(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if got.FacesDetected != 2 || !got.MultipleFaces || !got.LookingAway || got.PersonLeftSeat {
		t.Errorf("analysis = %+v", got)
	}
	if got.FacePosition == nil || got.FacePosition.X != 30 || got.FacePosition.Y != 20 {
		t.Errorf("face position = %+v", got.FacePosition)
	}
}

func TestClientAnalyzeFrame_NoFace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"analysis":{"facesDetected":0,"multipleFaces":false,"facePosition":null,"lookingAway":false,"personLeftSeat":false,"confidence":0.0}}`))
	})

	got, err := client.AnalyzeFrame(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if got.FacesDetected != 0 || got.FacePosition != nil {
		t.Errorf("analysis = %+v", got)
	}
}

func TestClientAnalyzeFrame_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantAPI bool
	}{
		{"bad image", 400, `{"success":false,"error":"Invalid image data"}`, true},
		{"success false", 200, `{"success":false,"error":"boom"}`, false},
		{"truncated", 200, `{"success":tr`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.AnalyzeFrame(context.Background(), testFrame())
			if err == nil {
				t.Fatal("expected error")
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) != tt.wantAPI {
				t.Errorf("error %T %v, want APIError = %v", err, err, tt.wantAPI)
			}
			if !tt.wantAPI && !errors.Is(err, ErrBadResponse) {
				t.Errorf("error = %v, want ErrBadResponse", err)
			}
		})
	}
}

func TestClientAnalyzeFrame_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := client.AnalyzeFrame(context.Background(), testFrame())
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Op != "analyze" {
		t.Fatalf("error = %v, want RemoteError(analyze)", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not enforced")
	}
}

func TestClientAnalyzeFrame_Retry(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"analysis":{"facesDetected":1}}`))
	}, WithRetry(1, time.Millisecond))

	if _, err := client.AnalyzeFrame(context.Background(), testFrame()); err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestClientClosed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	client.Close()
	if err := client.Health(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Health after close = %v", err)
	}
	if _, err := client.AnalyzeFrame(context.Background(), testFrame()); !errors.Is(err, ErrClosed) {
		t.Errorf("AnalyzeFrame after close = %v", err)
	}
}

func TestMock(t *testing.T) {
	m := NewMock()
	got, err := m.AnalyzeFrame(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if got.FacePosition.X != 32 || got.FacePosition.Y != 24 {
		t.Errorf("mock position = %+v", got.FacePosition)
	}
	m.Health(context.Background())
	if m.CallCount("AnalyzeFrame") != 1 || m.CallCount("Health") != 1 {
		t.Errorf("calls = %+v", m.Calls())
	}
	m.Reset()
	if len(m.Calls()) != 0 {
		t.Error("Reset did not clear calls")
	}
}

func TestDecodeDataURL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	url, err := EncodeDataURL(img, 0)
	if err != nil {
		t.Fatalf("EncodeDataURL: %v", err)
	}

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"data url", url, false},
		{"bare base64", strings.TrimPrefix(url, dataURLPrefix), false},
		{"not base64", "data:image/jpeg;base64,@@@", true},
		{"not an image", "aGVsbG8=", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadImage) {
					t.Errorf("error = %v, want ErrBadImage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDataURL: %v", err)
			}
			if b := got.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
				t.Errorf("bounds = %v", b)
			}
		})
	}
}
