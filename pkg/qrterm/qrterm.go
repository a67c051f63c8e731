// Package qrterm renders QR codes for terminals and image files.
package qrterm

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultQuietZone is the blank border, in modules, readers expect around a
// code.
const DefaultQuietZone = 2

type Options struct {
	QuietZone int
	// Invert swaps dark and light, for light-on-dark terminals.
	Invert bool
}

// Render writes content as a QR code using half-block characters, two
// module rows per line.
func Render(w io.Writer, content string, opts Options) error {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return fmt.Errorf("failed to encode qr: %w", err)
	}
	if opts.QuietZone <= 0 {
		opts.QuietZone = DefaultQuietZone
	}

	n := code.Bounds().Dx()
	dark := func(x, y int) bool {
		in := x >= 0 && y >= 0 && x < n && y < n && isDark(code.At(x, y))
		return in != opts.Invert
	}

	bw := bufio.NewWriter(w)
	q := opts.QuietZone
	for y := -q; y < n+q; y += 2 {
		for x := -q; x < n+q; x++ {
			top, bottom := dark(x, y), dark(x, y+1)
			switch {
			case top && bottom:
				bw.WriteRune('█')
			case top:
				bw.WriteRune('▀')
			case bottom:
				bw.WriteRune('▄')
			default:
				bw.WriteByte(' ')
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Image returns content as a size x size QR image including a quiet zone.
func Image(content string, size int) (image.Image, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr: %w", err)
	}

	margin := size / 8
	scaled, err := barcode.Scale(code, size-2*margin, size-2*margin)
	if err != nil {
		return nil, fmt.Errorf("failed to scale qr: %w", err)
	}

	canvas := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, scaled.Bounds().Add(image.Pt(margin, margin)), scaled, scaled.Bounds().Min, draw.Src)
	return canvas, nil
}

// WritePNG encodes content as a PNG QR image.
func WritePNG(w io.Writer, content string, size int) error {
	img, err := Image(content, size)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func isDark(c color.Color) bool {
	g := color.GrayModel.Convert(c).(color.Gray)
	return g.Y < 128
}
