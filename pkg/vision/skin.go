package vision

import (
	"context"
	"image"
)

// SkinConfig tunes the skin-tone heuristic.
type SkinConfig struct {
	// Stride samples every Nth pixel in both directions.
	Stride int `yaml:"stride" mapstructure:"stride"`

	// Threshold is the fraction of sampled pixels that must be skin-toned
	// for a face to be reported.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// DefaultSkinConfig returns the heuristic defaults.
func DefaultSkinConfig() SkinConfig {
	return SkinConfig{
		Stride:    4,
		Threshold: 0.08,
	}
}

// SkinHeuristic reports one face when enough pixels fall into an RGB skin
// band. It cannot see multiple faces or gaze.
type SkinHeuristic struct {
	cfg SkinConfig
}

// NewSkinHeuristic creates the heuristic estimator.
func NewSkinHeuristic(cfg SkinConfig) *SkinHeuristic {
	if cfg.Stride < 1 {
		cfg.Stride = 1
	}
	return &SkinHeuristic{cfg: cfg}
}

// Name returns "skin".
func (s *SkinHeuristic) Name() string { return "skin" }

// IsSkin applies the uniform-daylight RGB skin rule.
func IsSkin(r, g, b uint8) bool {
	if r <= 95 || g <= 40 || b <= 20 {
		return false
	}
	if r <= g || r <= b {
		return false
	}
	mx, mn := max(r, g, b), min(r, g, b)
	if int(mx)-int(mn) <= 15 {
		return false
	}
	d := int(r) - int(g)
	if d < 0 {
		d = -d
	}
	return d > 15
}

// Estimate samples the frame and returns the heuristic estimate.
func (s *SkinHeuristic) Estimate(ctx context.Context, frame *image.RGBA) (*Estimate, error) {
	w, h, err := frameSize(frame)
	if err != nil {
		return nil, err
	}

	b := frame.Bounds()
	var sampled, skin int
	var sumX, sumY float64
	for y := b.Min.Y; y < b.Max.Y; y += s.cfg.Stride {
		row := frame.Pix[(y-b.Min.Y)*frame.Stride:]
		for x := b.Min.X; x < b.Max.X; x += s.cfg.Stride {
			i := (x - b.Min.X) * 4
			sampled++
			if IsSkin(row[i], row[i+1], row[i+2]) {
				skin++
				sumX += float64(x - b.Min.X)
				sumY += float64(y - b.Min.Y)
			}
		}
	}

	est := &Estimate{FrameWidth: w, FrameHeight: h, Source: s.Name()}
	if sampled == 0 {
		return est, nil
	}
	fraction := float64(skin) / float64(sampled)
	if fraction > s.cfg.Threshold {
		est.Faces = 1
		est.Center = &Point{X: sumX / float64(skin), Y: sumY / float64(skin)}
		est.Confidence = min(1, fraction/(2*s.cfg.Threshold))
	}
	return est, nil
}

var _ Estimator = (*SkinHeuristic)(nil)
