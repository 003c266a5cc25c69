package whisper

import "encoding/binary"

// floatSamples converts s16le PCM into the normalised float32 stream the
// model expects, averaging the channels of each frame down to mono. A
// trailing partial frame is dropped.
func floatSamples(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	scale := 1 / (32768.0 * float32(channels))
	for f := range out {
		var sum float32
		for c := range channels {
			off := (f*channels + c) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		out[f] = sum * scale
	}
	return out
}
