package audio

import (
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
)

// malgoContext implements [Context] on top of the miniaudio bindings.
type malgoContext struct {
	ctx *malgo.AllocatedContext
}

// NewContext initialises the platform audio stack.
func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) OpenCapture(device *DeviceInfo, cfg CaptureConfig, cb DataFunc) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	if cfg.ChunkInterval > 0 {
		deviceConfig.PeriodSizeInMilliseconds = uint32(cfg.ChunkInterval.Milliseconds())
	}

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("audio: invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			cb(data)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: open capture: %w", classifyMalgo(err))
	}
	return &malgoCapture{device: dev}, nil
}

func (m *malgoContext) Close() error {
	if err := m.ctx.Uninit(); err != nil {
		m.ctx.Free()
		return fmt.Errorf("audio: uninit context: %w", err)
	}
	m.ctx.Free()
	return nil
}

// classifyMalgo maps miniaudio failures onto the capability errors.
func classifyMalgo(err error) error {
	switch err {
	case malgo.ErrNoDevice:
		return ErrNoDevice
	case malgo.ErrAccessDenied:
		return ErrPermissionDenied
	case malgo.ErrFormatNotSupported, malgo.ErrDeviceTypeNotSupported, malgo.ErrShareModeNotSupported:
		return ErrUnsupported
	}
	return err
}

// malgoCapture implements [CaptureDevice].
type malgoCapture struct {
	device *malgo.Device
}

func (c *malgoCapture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("audio: start capture: %w", err)
	}
	return nil
}

func (c *malgoCapture) Stop() error {
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("audio: stop capture: %w", err)
	}
	return nil
}

func (c *malgoCapture) Close() error {
	c.device.Uninit()
	return nil
}
