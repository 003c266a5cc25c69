package audio

import (
	"encoding/binary"
	"time"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header produced by
// [EncodeWAV]. A zero-sample encode yields exactly this many bytes.
const WAVHeaderSize = 44

// MIMEWAV is the media type reported for finalized capture blobs.
const MIMEWAV = "audio/wav"

// Blob is an immutable finalized audio artifact. It is produced once at
// recording stop by concatenating the accumulated PCM chunks and is never
// mutated afterwards.
type Blob struct {
	// Data is the complete encoded file content, header included.
	Data []byte

	// MIME is the media type of Data.
	MIME string

	// SampleRate and Channels describe the encoded PCM stream.
	SampleRate int
	Channels   int

	// Duration is the audible length of the blob. Zero for an empty capture.
	Duration time.Duration
}

// Empty reports whether the blob contains no audible samples. An empty blob
// is still a valid artifact (header only) and still counts as message
// content for submission purposes.
func (b Blob) Empty() bool {
	return len(b.Data) <= WAVHeaderSize
}

// EncodeWAV wraps raw little-endian signed 16-bit PCM in a RIFF/WAVE
// container. pcm may be empty, in which case the result is a valid
// header-only file.
func EncodeWAV(pcm []byte, sampleRate, channels int) Blob {
	const bitsPerSample = 16

	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, WAVHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[WAVHeaderSize:], pcm)

	var dur time.Duration
	if byteRate > 0 {
		dur = time.Duration(len(pcm)) * time.Second / time.Duration(byteRate)
	}

	return Blob{
		Data:       buf,
		MIME:       MIMEWAV,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   dur,
	}
}
