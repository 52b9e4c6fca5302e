package runner

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const overlayMargin = 11

var (
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	recColor   = color.RGBA{R: 255, A: 255}
)

func drawText(img *image.RGBA, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// drawZoomLabel paints the level centred horizontally above the middle of the frame.
func drawZoomLabel(img *image.RGBA, level float64) {
	text := fmt.Sprintf("%.2fx", level)
	width := font.MeasureString(basicfont.Face7x13, text).Ceil()
	b := img.Bounds()
	x := b.Min.X + (b.Dx()-width)/2
	y := max(b.Min.Y+b.Dy()/2-150, b.Min.Y+basicfont.Face7x13.Ascent)
	drawText(img, text, x, y, labelColor)
}

// drawRecIndicator paints "REC m:ss" in the bottom-left corner.
func drawRecIndicator(img *image.RGBA, elapsed time.Duration) {
	b := img.Bounds()
	drawText(img, "REC "+formatDuration(elapsed), b.Min.X+overlayMargin, b.Max.Y-overlayMargin, recColor)
}

func formatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
