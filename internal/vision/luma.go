// Package vision has the software tracker and stabilizer used by the frame loop.
package vision

import "image"

// luma is an 8-bit grayscale plane.
type luma struct {
	w, h int
	pix  []uint8
}

func (l *luma) at(x, y int) uint8 {
	return l.pix[y*l.w+x]
}

// toLuma converts an RGBA frame, keeping every step-th pixel on both axes.
func toLuma(img *image.RGBA, step int) *luma {
	b := img.Bounds()
	w, h := b.Dx()/step, b.Dy()/step
	out := &luma{w: w, h: h, pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		row := img.Pix[(y*step)*img.Stride:]
		for x := 0; x < w; x++ {
			i := x * step * 4
			r, g, bl := int(row[i]), int(row[i+1]), int(row[i+2])
			out.pix[y*w+x] = uint8((299*r + 587*g + 114*bl) / 1000)
		}
	}
	return out
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
