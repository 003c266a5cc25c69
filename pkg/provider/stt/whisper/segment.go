package whisper

import (
	"encoding/binary"
	"math"
)

// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM audio
// that whisper.cpp expects.
const bitsPerSample = 16

// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
// units) below which audio is considered silent. The maximum possible value
// for 16-bit audio is 32 767; 300 corresponds to near-silence.
const defaultRMSThreshold = 300.0

// segmenter turns a continuous PCM stream into utterance-sized buffers using
// an energy-based silence detector. It is used by both the HTTP and native
// sessions; all state is owned by the session's processLoop goroutine, so no
// locking is needed.
type segmenter struct {
	sampleRate         int
	channels           int
	silenceThresholdMs int
	maxBufferBytes     int

	buffer    []byte // accumulated PCM for the current utterance
	hadSpeech bool   // true once any high-energy chunk has been buffered
	silenceMs int    // consecutive silence accumulated after speech (ms)
}

func newSegmenter(sampleRate, channels, silenceThresholdMs, maxBufferDurationMs int) *segmenter {
	bytesPerMs := sampleRate * channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32 // safe fallback (16 kHz, mono, 16-bit → 32 B/ms)
	}
	return &segmenter{
		sampleRate:         sampleRate,
		channels:           channels,
		silenceThresholdMs: silenceThresholdMs,
		maxBufferBytes:     maxBufferDurationMs * bytesPerMs,
	}
}

// feed accepts one PCM chunk. It returns a non-nil utterance buffer when the
// chunk completed an utterance (silence threshold reached after speech, or
// the buffer size limit was hit), otherwise nil.
func (g *segmenter) feed(chunk []byte) []byte {
	rms := computeRMS(chunk)
	chunkMs := chunkDurationMs(chunk, g.sampleRate, g.channels)

	if rms < defaultRMSThreshold {
		// Silent chunk: only relevant once speech has started. Leading
		// silence before any speech is discarded.
		if !g.hadSpeech {
			return nil
		}
		g.silenceMs += chunkMs
		g.buffer = append(g.buffer, chunk...)
		if g.silenceMs >= g.silenceThresholdMs {
			return g.flush()
		}
		return nil
	}

	g.hadSpeech = true
	g.silenceMs = 0
	g.buffer = append(g.buffer, chunk...)
	if g.maxBufferBytes > 0 && len(g.buffer) >= g.maxBufferBytes {
		return g.flush()
	}
	return nil
}

// flush returns the pending utterance buffer and resets the segmenter.
// Returns nil when nothing speech-bearing is buffered.
func (g *segmenter) flush() []byte {
	pcm := g.buffer
	had := g.hadSpeech
	g.buffer = nil
	g.hadSpeech = false
	g.silenceMs = 0
	if len(pcm) == 0 || !had {
		return nil
	}
	return pcm
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
// The result is expressed in the same units as PCM sample values (0–32 767).
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2 // number of 16-bit samples
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// chunkDurationMs returns the duration of a PCM audio chunk in milliseconds,
// based on the sample rate and channel count. Returns 0 for invalid inputs.
func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return len(chunk) * 1000 / bytesPerSec
}
