package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/busfare/pkg/idx"
)

// Bridge connects a Camera to a Decoder and hands out exactly one decoded
// value per scan. Only one scan runs at a time.
type Bridge struct {
	camera  Camera
	decoder Decoder
	logger  *slog.Logger

	// Preview, when set, receives every captured frame before decoding. It
	// runs on the scan goroutine and must not block.
	Preview func(image.Image)

	mu     sync.Mutex
	active *Scan
}

func NewBridge(camera Camera, decoder Decoder, logger *slog.Logger) *Bridge {
	if decoder == nil {
		decoder = QRDecoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{camera: camera, decoder: decoder, logger: logger}
}

const (
	scanRunning int32 = iota
	scanDelivering
	scanStopped
)

// Scan is one camera session.
type Scan struct {
	ID idx.ID

	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}

	mu      sync.Mutex
	release func()
	device  Device
}

// Stop ends the scan and releases the camera. No callback starts after Stop
// returns. Safe to call more than once and from inside a callback.
func (s *Scan) Stop() {
	s.state.CompareAndSwap(scanRunning, scanStopped)
	s.cancel()
	s.releaseCamera()
}

// Done is closed once the scan goroutine has exited.
func (s *Scan) Done() <-chan struct{} { return s.done }

// Device is the input the scan opened. It is zero until the camera is open.
func (s *Scan) Device() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *Scan) setStream(d Device, st Stream, logger *slog.Logger) bool {
	release := sync.OnceFunc(func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to release camera", "error", err)
		}
		logger.Debug("camera released")
	})

	s.mu.Lock()
	s.device = d
	s.release = release
	s.mu.Unlock()

	// Stop may have run between Open and here.
	if s.state.Load() == scanStopped {
		release()
		return false
	}
	return true
}

func (s *Scan) releaseCamera() {
	s.mu.Lock()
	release := s.release
	s.mu.Unlock()
	if release != nil {
		release()
	}
}

func (s *Scan) fire(fn func()) {
	if !s.state.CompareAndSwap(scanRunning, scanDelivering) {
		return
	}
	defer s.state.Store(scanStopped)
	fn()
}

// Start opens the preferred camera and decodes frames until one yields a
// code. The camera is released before onDecoded runs, so a caller that
// wants to scan again calls Start again. Frames without a code are
// ignored. Setup and capture failures go to onError and end the scan.
//
// Cancelling ctx ends the scan and releases the camera without calling
// either callback. Starting a scan stops the previous one.
func (b *Bridge) Start(ctx context.Context, onDecoded func(string), onError func(error)) *Scan {
	scanCtx, cancel := context.WithCancel(ctx)
	s := &Scan{ID: idx.New(), cancel: cancel, done: make(chan struct{})}

	b.mu.Lock()
	prev := b.active
	b.active = s
	b.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	logger := b.logger.With("scan", s.ID.Short())
	go b.run(scanCtx, s, onDecoded, onError, logger)
	return s
}

// Stop ends the active scan, if any.
func (b *Bridge) Stop() {
	b.mu.Lock()
	s := b.active
	b.active = nil
	b.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (b *Bridge) run(ctx context.Context, s *Scan, onDecoded func(string), onError func(error), logger *slog.Logger) {
	defer close(s.done)
	defer s.cancel()
	defer s.releaseCamera()
	defer b.release(s)

	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("scan failed", "error", err)
		s.releaseCamera()
		if onError != nil {
			s.fire(func() { onError(err) })
		}
	}

	devices, err := b.camera.Devices(ctx)
	if err != nil {
		fail(fmt.Errorf("failed to list cameras: %w", err))
		return
	}
	device, ok := PickDevice(devices)
	if !ok {
		fail(ErrNoCamera)
		return
	}

	stream, err := b.camera.Open(ctx, device.ID)
	if err != nil {
		fail(fmt.Errorf("failed to open camera %q: %w", device.Label, err))
		return
	}
	if !s.setStream(device, stream, logger) {
		return
	}
	logger.Debug("camera opened", "device", device.Label)

	frames := 0
	for {
		img, err := stream.Next(ctx)
		if err != nil {
			fail(fmt.Errorf("camera capture failed: %w", err))
			return
		}
		frames++

		if b.Preview != nil {
			b.Preview(img)
		}

		text, err := b.decoder.Decode(img)
		if err != nil {
			if !errors.Is(err, ErrNoCode) {
				logger.Debug("frame decode failed", "error", err)
			}
			continue
		}

		s.releaseCamera()
		logger.Info("code decoded", "frames", frames, "length", len(text))
		if onDecoded != nil {
			s.fire(func() { onDecoded(text) })
		}
		return
	}
}

func (b *Bridge) release(s *Scan) {
	b.mu.Lock()
	if b.active == s {
		b.active = nil
	}
	b.mu.Unlock()
}
