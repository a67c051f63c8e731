// Package scan turns a camera feed into a single decoded QR payload.
package scan

import (
	"context"
	"errors"
	"image"
	"strings"
)

var (
	// ErrNoCamera means no video input device is available.
	ErrNoCamera = errors.New("scan: no camera available")
	// ErrPermissionDenied means the device exists but may not be opened.
	ErrPermissionDenied = errors.New("scan: camera permission denied")
	// ErrNoCode is returned by a Decoder for a frame without a readable code.
	ErrNoCode = errors.New("scan: no code in frame")
)

// Device is a video input the Camera can open.
type Device struct {
	ID    string
	Label string
}

// Camera enumerates and opens video inputs.
type Camera interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, id string) (Stream, error)
}

// Stream is an open video input. Next blocks until a frame is available or
// ctx ends. Close releases the device; it may be called concurrently with
// Next and more than once.
type Stream interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder extracts a QR payload from a frame. It returns ErrNoCode when the
// frame holds nothing readable.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

var backFacingHints = []string{"back", "rear", "traseira", "environment"}

// PickDevice chooses the input to scan with: with several devices the first
// one whose label suggests a back-facing camera, otherwise the first device.
// ok is false for an empty list.
func PickDevice(devices []Device) (Device, bool) {
	if len(devices) == 0 {
		return Device{}, false
	}
	if len(devices) > 1 {
		for _, d := range devices {
			label := strings.ToLower(d.Label)
			for _, hint := range backFacingHints {
				if strings.Contains(label, hint) {
					return d, true
				}
			}
		}
	}
	return devices[0], true
}
