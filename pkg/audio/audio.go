// Package audio provides the capture-device abstraction for the murmur
// dictation pipeline.
//
// A [Context] enumerates the available capture devices and opens a
// [CaptureDevice] that delivers raw PCM chunks to a callback at a fixed
// short interval. The chunk callback is invoked from the device's own
// capture goroutine; consumers must not block inside it.
//
// The malgo-backed implementation ([NewContext]) talks to the real
// platform audio stack. Tests use the mock subpackage.
package audio

import (
	"errors"
	"time"
)

// DataFunc receives one captured PCM chunk. The slice is only valid for
// the duration of the call; implementations that retain data must copy it.
type DataFunc func(chunk []byte)

// CaptureConfig describes the PCM format requested from a capture device.
type CaptureConfig struct {
	// SampleRate in Hz. The pipeline records at 16000 (STT-optimised mono).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// ChunkInterval is the target period between chunk callbacks. A short
	// interval bounds data loss on abrupt device failure.
	ChunkInterval time.Duration
}

// DeviceInfo identifies a capture device on the local platform.
type DeviceInfo struct {
	// ID is an opaque platform-specific identifier.
	ID string

	// Name is the human-readable device name.
	Name string
}

// Context is the entry point to the platform audio stack.
//
// Implementations must be safe for concurrent use.
type Context interface {
	// Devices enumerates the available capture devices.
	Devices() ([]DeviceInfo, error)

	// OpenCapture opens a capture device with the given format. A nil device
	// selects the platform default. cb receives PCM chunks once Start is
	// called on the returned device.
	//
	// Returns [ErrNoDevice], [ErrPermissionDenied], or [ErrUnsupported] when
	// the failure can be classified; other errors are wrapped verbatim.
	OpenCapture(device *DeviceInfo, cfg CaptureConfig, cb DataFunc) (CaptureDevice, error)

	// Close releases the platform context. Open devices must be closed first.
	Close() error
}

// CaptureDevice is an open capture stream.
//
// All methods must be safe for concurrent use.
type CaptureDevice interface {
	// Start begins chunk delivery to the callback passed to OpenCapture.
	Start() error

	// Stop halts chunk delivery. The device may be restarted.
	Stop() error

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}

// Capability errors. These classify why a capture device could not be
// acquired so callers can present an actionable message instead of a raw
// platform error. Terminal for the current attempt; no automatic retry.
var (
	// ErrNoDevice indicates no capture device is present on the platform.
	ErrNoDevice = errors.New("audio: no capture device available")

	// ErrPermissionDenied indicates the platform denied microphone access.
	ErrPermissionDenied = errors.New("audio: capture permission denied")

	// ErrUnsupported indicates the platform audio stack cannot satisfy the
	// requested capture configuration.
	ErrUnsupported = errors.New("audio: capture configuration unsupported")
)
