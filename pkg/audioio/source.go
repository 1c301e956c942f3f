package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is one buffer of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// ParsePCM builds a chunk from s16le bytes. A trailing odd byte is dropped.
func ParsePCM(data []byte, sampleRate, channels int) AudioChunk {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return AudioChunk{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

// Frames returns the number of sample frames (samples per channel).
func (c AudioChunk) Frames() int {
	if c.Channels <= 1 {
		return len(c.Samples)
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Mono appends the chunk to dst as mono samples in [-1, 1), averaging the
// channels of each frame.
func (c AudioChunk) Mono(dst []float64) []float64 {
	ch := max(c.Channels, 1)
	for i := 0; i+ch <= len(c.Samples); i += ch {
		var sum int32
		for j := 0; j < ch; j++ {
			sum += int32(c.Samples[i+j])
		}
		dst = append(dst, float64(sum)/float64(ch)/32768.0)
	}
	return dst
}

// Source captures audio from a microphone or a synthetic generator.
type Source interface {
	// Start begins capture. Chunks are then available from Read.
	Start(ctx context.Context) error

	// Stop halts capture and is safe to call more than once.
	Stop() error

	// Read blocks for the next chunk and returns io.EOF once the source has
	// stopped.
	Read(ctx context.Context) (AudioChunk, error)

	Config() Config

	// Name returns the backend name, e.g. "command" or "mock".
	Name() string

	Stats() SourceStats

	// Close releases all resources. A closed source cannot be restarted.
	io.Closer
}

// SourceStats are capture counters for the health report.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"` // Chunks dropped because nobody read them
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}
