package voice

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-proctor/pkg/capture"
)

// Sample is the feature vector of one spectrum snapshot.
type Sample struct {
	Loudness    float64   `json:"loudness"`    // Mean byte magnitude
	Centroid    float64   `json:"centroid"`    // Spectral centroid in Hz
	DominantBin int       `json:"dominantBin"` // Loudest bin
	At          time.Time `json:"at"`
}

// Analyze extracts loudness, centroid and dominant bin from s.
func Analyze(s capture.Spectrum) Sample {
	out := Sample{At: s.At}
	if len(s.Magnitudes) == 0 {
		return out
	}
	out.Loudness = stat.Mean(s.Magnitudes, nil)
	out.DominantBin = floats.MaxIdx(s.Magnitudes)

	total := floats.Sum(s.Magnitudes)
	if total > 0 {
		var weighted float64
		for i, m := range s.Magnitudes {
			weighted += s.BinHz(i) * m
		}
		out.Centroid = weighted / total
	}
	return out
}

// Profile is the learned owner-voice signature.
type Profile struct {
	Ready            bool    `json:"ready"` // Baseline window complete
	Samples          int     `json:"samples"`
	QuietSamples     int     `json:"quietSamples"` // Folded into the baseline
	BaselineLoudness float64 `json:"baselineLoudness"`
	AvgCentroid      float64 `json:"avgCentroid"`
	AvgDominantBin   float64 `json:"avgDominantBin"`
	Min              float64 `json:"min"` // Learned centroid range, Hz
	Max              float64 `json:"max"`
}

// Outside returns how far hz lies outside [Min, Max], or 0 when inside.
func (p Profile) Outside(hz float64) float64 {
	switch {
	case hz < p.Min:
		return p.Min - hz
	case hz > p.Max:
		return hz - p.Max
	}
	return 0
}

// baseline accumulates the quiet samples of the initial window.
type baseline struct {
	centroids []float64
	dominants []float64
	loudness  []float64
	all       []float64
	last      Sample
}

func (b *baseline) add(s Sample, quiet float64) {
	b.last = s
	b.all = append(b.all, s.Loudness)
	if s.Loudness < quiet {
		b.centroids = append(b.centroids, s.Centroid)
		b.dominants = append(b.dominants, float64(s.DominantBin))
		b.loudness = append(b.loudness, s.Loudness)
	}
}

// profile derives the initial profile. Without quiet samples it is seeded
// from the last sample.
func (b *baseline) profile(margin float64) Profile {
	p := Profile{Ready: true, Samples: len(b.all), QuietSamples: len(b.centroids)}
	if len(b.centroids) == 0 {
		c := b.last.Centroid
		p.AvgCentroid = c
		p.AvgDominantBin = float64(b.last.DominantBin)
		p.BaselineLoudness = stat.Mean(b.all, nil)
		p.Min, p.Max = c*(1-margin), c*(1+margin)
		return p
	}
	p.AvgCentroid = stat.Mean(b.centroids, nil)
	p.AvgDominantBin = stat.Mean(b.dominants, nil)
	p.BaselineLoudness = stat.Mean(b.loudness, nil)
	p.Min = floats.Min(b.centroids) * (1 - margin)
	p.Max = floats.Max(b.centroids) * (1 + margin)
	return p
}

// adapt blends s into the profile and widens the range to include it.
func (p *Profile) adapt(s Sample, rate, margin float64) {
	p.BaselineLoudness += rate * (s.Loudness - p.BaselineLoudness)
	p.AvgCentroid += rate * (s.Centroid - p.AvgCentroid)
	p.AvgDominantBin += rate * (float64(s.DominantBin) - p.AvgDominantBin)
	if s.Centroid < p.Min {
		p.Min = s.Centroid * (1 - margin)
	}
	if s.Centroid > p.Max {
		p.Max = s.Centroid * (1 + margin)
	}
}
