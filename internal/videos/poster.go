package videos

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	posterWidth    = 1280
	posterHeight   = 720
	posterFontSize = 56
	posterLineGap  = 72
	posterMargin   = 80
	posterMaxLines = 3
	posterLineLen  = 34
)

var (
	posterFontOnce sync.Once
	posterFont     *truetype.Font
	posterFontErr  error

	posterBackground = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
)

// RenderPoster writes a PNG placeholder showing the video title. It is served
// for videos saved without a thumbnail.
func RenderPoster(w io.Writer, title string) error {
	posterFontOnce.Do(func() {
		posterFont, posterFontErr = freetype.ParseFont(goregular.TTF)
	})
	if posterFontErr != nil {
		return fmt.Errorf("parse poster font: %w", posterFontErr)
	}

	img := image.NewRGBA(image.Rect(0, 0, posterWidth, posterHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: posterBackground}, image.Point{}, draw.Src)

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(posterFont)
	c.SetFontSize(posterFontSize)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.White)
	c.SetHinting(font.HintingFull)

	lines := wrapTitle(title, posterLineLen, posterMaxLines)
	y := (posterHeight-len(lines)*posterLineGap)/2 + posterFontSize
	for _, line := range lines {
		if _, err := c.DrawString(line, freetype.Pt(posterMargin, y)); err != nil {
			return fmt.Errorf("draw poster text: %w", err)
		}
		y += posterLineGap
	}
	return png.Encode(w, img)
}

// wrapTitle breaks title on word boundaries; overflow is ellipsized.
func wrapTitle(title string, width, maxLines int) []string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return []string{"Untitled"}
	}
	var lines []string
	var cur string
	for _, word := range words {
		if len([]rune(word)) > width {
			word = string([]rune(word)[:width-1]) + "…"
		}
		switch {
		case cur == "":
			cur = word
		case len([]rune(cur))+1+len([]rune(word)) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	lines = append(lines, cur)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		last := []rune(lines[maxLines-1])
		if len(last) >= width {
			last = last[:width-1]
		}
		lines[maxLines-1] = string(last) + "…"
	}
	return lines
}
