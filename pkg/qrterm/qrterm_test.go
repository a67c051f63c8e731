package qrterm

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "00020126580014br.gov.bcb.pix", Options{}))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.NotEmpty(t, lines)

	width := len([]rune(lines[0]))
	for _, l := range lines {
		require.Equal(t, width, len([]rune(l)))
	}
	// Quiet zone: the first line is blank, the code starts below it.
	require.Equal(t, strings.Repeat(" ", width), lines[0])
	require.Contains(t, buf.String(), "█")
}

func TestRenderInvert(t *testing.T) {
	t.Parallel()

	var plain, inverted bytes.Buffer
	require.NoError(t, Render(&plain, "abc", Options{}))
	require.NoError(t, Render(&inverted, "abc", Options{Invert: true}))
	require.NotEqual(t, plain.String(), inverted.String())

	first := strings.SplitN(inverted.String(), "\n", 2)[0]
	require.Equal(t, strings.Repeat("█", len([]rune(first))), first)
}

func TestWritePNG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, "embarque:123", 256))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 256, img.Bounds().Dx())

	// Corner lies in the quiet zone.
	r, g, b, _ := img.At(1, 1).RGBA()
	require.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})
}
