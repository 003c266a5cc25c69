// Package mock provides scripted in-memory implementations of the audio
// capture interfaces for tests.
package mock

import (
	"sync"

	"github.com/feldspar-health/murmur/pkg/audio"
)

// Context implements [audio.Context]. Configure Chunks with the PCM chunks
// each opened device should emit, or OpenErr to simulate a capability
// failure.
type Context struct {
	// Chunks are delivered to the capture callback, in order, on Start.
	Chunks [][]byte

	// DeviceList is returned by Devices.
	DeviceList []audio.DeviceInfo

	// OpenErr, when non-nil, is returned by OpenCapture.
	OpenErr error

	// StartErr, when non-nil, is returned by the device's Start.
	StartErr error

	mu     sync.Mutex
	opened []*Device
}

func (c *Context) Devices() ([]audio.DeviceInfo, error) {
	return c.DeviceList, nil
}

func (c *Context) OpenCapture(_ *audio.DeviceInfo, _ audio.CaptureConfig, cb audio.DataFunc) (audio.CaptureDevice, error) {
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	d := &Device{chunks: c.Chunks, cb: cb, startErr: c.StartErr}
	c.mu.Lock()
	c.opened = append(c.opened, d)
	c.mu.Unlock()
	return d, nil
}

func (c *Context) Close() error { return nil }

// Opened returns all devices handed out so far.
func (c *Context) Opened() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Device(nil), c.opened...)
}

// Device implements [audio.CaptureDevice]. Start delivers the scripted
// chunks synchronously before returning, so tests need no sleeps.
type Device struct {
	chunks   [][]byte
	cb       audio.DataFunc
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
	closed  bool
}

func (d *Device) Start() error {
	if d.startErr != nil {
		return d.startErr
	}
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	for _, c := range d.chunks {
		d.cb(c)
	}
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Stopped reports whether Stop has been called.
func (d *Device) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
