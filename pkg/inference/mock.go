package inference

import (
	"context"
	"image"
	"sync"
	"time"
)

// Mock implements Analyzer for testing.
type Mock struct {
	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// AnalyzeFunc is called when AnalyzeFrame is invoked.
	AnalyzeFunc func(ctx context.Context, img image.Image) (*FrameAnalysis, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a healthy mock that reports one centered face.
func NewMock() *Mock {
	return &Mock{
		HealthFunc: func(ctx context.Context) error { return nil },
		AnalyzeFunc: func(ctx context.Context, img image.Image) (*FrameAnalysis, error) {
			b := img.Bounds()
			return &FrameAnalysis{
				FacesDetected: 1,
				FacePosition:  &Position{X: b.Dx() / 2, Y: b.Dy() / 2},
				Confidence:    0.8,
			}, nil
		},
	}
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// AnalyzeFrame calls AnalyzeFunc and records the call.
func (m *Mock) AnalyzeFrame(ctx context.Context, img image.Image) (*FrameAnalysis, error) {
	m.record("AnalyzeFrame")
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, img)
	}
	return nil, WrapError(opAnalyze, ErrBadResponse)
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a specific method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Analyzer = (*Mock)(nil)
