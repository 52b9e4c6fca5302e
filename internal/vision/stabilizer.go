package vision

import (
	"image"
	"math"
)

const (
	downsample = 4
	maxShift   = 8 // in downsampled pixels
	smoothing  = 0.9
)

// ShiftStabilizer removes high-frequency global translation. It estimates the
// frame-to-frame shift, keeps a smoothed trajectory and moves each frame onto it.
type ShiftStabilizer struct {
	prev       *luma
	trajectory [2]float64
	smooth     [2]float64
}

func NewShiftStabilizer() *ShiftStabilizer {
	return &ShiftStabilizer{}
}

func (s *ShiftStabilizer) Reset() {
	*s = ShiftStabilizer{}
}

func (s *ShiftStabilizer) Apply(frame *image.RGBA) *image.RGBA {
	cur := toLuma(frame, downsample)
	if s.prev == nil || s.prev.w != cur.w || s.prev.h != cur.h {
		s.Reset()
		s.prev = cur
		return frame
	}

	d := estimateShift(s.prev, cur, maxShift)
	s.prev = cur

	s.trajectory[0] += float64(d.X * downsample)
	s.trajectory[1] += float64(d.Y * downsample)
	for i := range s.smooth {
		s.smooth[i] = smoothing*s.smooth[i] + (1-smoothing)*s.trajectory[i]
	}

	correction := image.Pt(
		int(math.Round(s.smooth[0]-s.trajectory[0])),
		int(math.Round(s.smooth[1]-s.trajectory[1])),
	)
	if correction == (image.Point{}) {
		return frame
	}
	return translate(frame, correction)
}

// estimateShift finds the displacement of cur relative to prev.
func estimateShift(prev, cur *luma, limit int) image.Point {
	best := image.Point{}
	bestScore := math.MaxFloat64
	for dy := -limit; dy <= limit; dy++ {
		for dx := -limit; dx <= limit; dx++ {
			sum, n := 0, 0
			for y := max(0, dy); y < min(cur.h, prev.h+dy); y++ {
				for x := max(0, dx); x < min(cur.w, prev.w+dx); x++ {
					sum += absDiff(cur.at(x, y), prev.at(x-dx, y-dy))
					n++
				}
			}
			if n == 0 {
				continue
			}
			score := float64(sum) / float64(n)
			if score < bestScore || (score == bestScore && dx*dx+dy*dy < best.X*best.X+best.Y*best.Y) {
				best, bestScore = image.Pt(dx, dy), score
			}
		}
	}
	return best
}

// translate moves the frame content by d, replicating edge pixels into the gap.
func translate(frame *image.RGBA, d image.Point) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(b)
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		sy := min(max(y-d.Y, 0), h-1)
		srcRow := frame.Pix[sy*frame.Stride:]
		dstRow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			sx := min(max(x-d.X, 0), w-1)
			copy(dstRow[x*4:x*4+4], srcRow[sx*4:sx*4+4])
		}
	}
	return out
}
