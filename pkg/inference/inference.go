// Package inference is the client for the optional remote face-analysis
// service. The service accepts a single JPEG frame and answers with face
// count, face position and gaze flags.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:8001"),
//	    inference.WithTimeout(3*time.Second),
//	)
//	defer client.Close()
//
//	if err := client.Health(ctx); err != nil {
//	    // remote tier unavailable, fall back to local estimators
//	}
//	analysis, err := client.AnalyzeFrame(ctx, frame)
package inference

import (
	"context"
	"image"
	"time"
)

// Analyzer is implemented by the remote client and its mock.
type Analyzer interface {
	// Health checks that the service is reachable and reports healthy.
	Health(ctx context.Context) error

	// AnalyzeFrame uploads one frame and returns the service's verdict.
	AnalyzeFrame(ctx context.Context, img image.Image) (*FrameAnalysis, error)

	// Close releases any resources held by the client.
	Close() error
}

// Position is a pixel coordinate in the submitted frame.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// FrameAnalysis is the "analysis" object of an analyze-face response.
type FrameAnalysis struct {
	FacesDetected  int       `json:"facesDetected"`
	MultipleFaces  bool      `json:"multipleFaces"`
	FacePosition   *Position `json:"facePosition"`
	LookingAway    bool      `json:"lookingAway"`
	PersonLeftSeat bool      `json:"personLeftSeat"`
	Confidence     float64   `json:"confidence"`

	// Latency is the round-trip time, filled in by the client.
	Latency time.Duration `json:"-"`
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type analyzeResponse struct {
	Success  bool           `json:"success"`
	Analysis *FrameAnalysis `json:"analysis"`
	Error    string         `json:"error"`
}
