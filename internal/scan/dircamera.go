package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultFrameInterval is how often a DirCamera stream looks for new frames.
const DefaultFrameInterval = 250 * time.Millisecond

// DirCamera exposes directories of PNG/JPEG frames as video devices. Root
// itself is a device when it holds frames, and so is each subdirectory that
// does; the subdirectory name is the label. A stream yields frames in name
// order, then keeps watching for files dropped in later. Like a live camera,
// a frame is delivered once per device: a later stream starts after the
// frames earlier streams already read.
type DirCamera struct {
	Root          string
	FrameInterval time.Duration

	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func NewDirCamera(root string) *DirCamera {
	return &DirCamera{Root: root}
}

func (c *DirCamera) Devices(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		return nil, mapFSError(err)
	}

	var devices []Device
	if hasFrames(entries) {
		devices = append(devices, Device{ID: c.Root, Label: filepath.Base(c.Root)})
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.Root, e.Name())
		sub, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		if hasFrames(sub) {
			devices = append(devices, Device{ID: dir, Label: e.Name()})
		}
	}
	return devices, nil
}

func (c *DirCamera) Open(_ context.Context, id string) (Stream, error) {
	info, err := os.Stat(id)
	if err != nil {
		return nil, mapFSError(err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoCamera, id)
	}

	interval := c.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &dirStream{
		dir:      id,
		interval: interval,
		camera:   c,
		closed:   make(chan struct{}),
	}, nil
}

// markSeen records name as delivered on device dir. It reports false when
// the frame was delivered before.
func (c *DirCamera) markSeen(dir, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen == nil {
		c.seen = make(map[string]map[string]struct{})
	}
	frames, ok := c.seen[dir]
	if !ok {
		frames = make(map[string]struct{})
		c.seen[dir] = frames
	}
	if _, dup := frames[name]; dup {
		return false
	}
	frames[name] = struct{}{}
	return true
}

type dirStream struct {
	dir      string
	interval time.Duration
	camera   *DirCamera

	closeOnce sync.Once
	closed    chan struct{}
}

var errStreamClosed = errors.New("scan: stream closed")

func (s *dirStream) Next(ctx context.Context) (image.Image, error) {
	for {
		select {
		case <-s.closed:
			return nil, errStreamClosed
		default:
		}

		name, err := s.nextFrame()
		if err != nil {
			return nil, err
		}
		if name != "" {
			img, err := readFrame(filepath.Join(s.dir, name))
			if err != nil {
				// Half-written or foreign files are skipped like blank frames.
				continue
			}
			return img, nil
		}

		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-s.closed:
			t.Stop()
			return nil, errStreamClosed
		case <-t.C:
		}
	}
}

func (s *dirStream) nextFrame() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", mapFSError(err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isFrame(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, n := range names {
		if s.camera.markSeen(s.dir, n) {
			return n, nil
		}
	}
	return "", nil
}

func (s *dirStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func readFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

func hasFrames(entries []fs.DirEntry) bool {
	for _, e := range entries {
		if !e.IsDir() && isFrame(e.Name()) {
			return true
		}
	}
	return false
}

func isFrame(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

func mapFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNoCamera, err)
	}
	return err
}
