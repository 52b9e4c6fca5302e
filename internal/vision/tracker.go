package vision

import (
	"image"
	"image/color"
	"math"
)

const (
	defaultTemplate = 48
	defaultSearch   = 24
	// mean absolute luma difference above which the target counts as lost
	defaultLostThreshold = 40.0
)

var boxColor = color.RGBA{G: 255, A: 255}

// TemplateTracker follows a point of interest by matching a luma template
// in a window around its last position.
type TemplateTracker struct {
	Size          int
	Search        int
	LostThreshold float64

	template *luma
	pos      image.Point // top-left of the template in the frame
}

func NewTemplateTracker() *TemplateTracker {
	return &TemplateTracker{Size: defaultTemplate, Search: defaultSearch, LostThreshold: defaultLostThreshold}
}

// Init captures the template centred on p. It fails when p is outside the frame.
func (t *TemplateTracker) Init(frame *image.RGBA, p image.Point) bool {
	b := frame.Bounds()
	if !p.In(b) || b.Dx() < t.Size || b.Dy() < t.Size {
		return false
	}

	half := t.Size / 2
	x := min(max(p.X-half, 0), b.Dx()-t.Size)
	y := min(max(p.Y-half, 0), b.Dy()-t.Size)
	t.pos = image.Pt(x, y)
	t.template = t.extract(toLuma(frame, 1), t.pos)
	return true
}

func (t *TemplateTracker) extract(l *luma, at image.Point) *luma {
	out := &luma{w: t.Size, h: t.Size, pix: make([]uint8, t.Size*t.Size)}
	for y := 0; y < t.Size; y++ {
		copy(out.pix[y*t.Size:(y+1)*t.Size], l.pix[(at.Y+y)*l.w+at.X:])
	}
	return out
}

// Update searches for the template and draws its box on the frame.
// It reports false when the target is lost.
func (t *TemplateTracker) Update(frame *image.RGBA) (bool, *image.RGBA) {
	if t.template == nil {
		return false, frame
	}

	l := toLuma(frame, 1)
	best, bestScore := t.pos, math.MaxFloat64
	for dy := -t.Search; dy <= t.Search; dy += 2 {
		for dx := -t.Search; dx <= t.Search; dx += 2 {
			at := t.pos.Add(image.Pt(dx, dy))
			if at.X < 0 || at.Y < 0 || at.X+t.Size > l.w || at.Y+t.Size > l.h {
				continue
			}
			if score := t.score(l, at, bestScore); score < bestScore {
				best, bestScore = at, score
			}
		}
	}

	if bestScore > t.LostThreshold {
		t.template = nil
		return false, frame
	}

	t.pos = best
	drawBox(frame, image.Rect(best.X, best.Y, best.X+t.Size, best.Y+t.Size), boxColor)
	return true, frame
}

// score is the mean absolute difference; it bails out once worse than limit.
func (t *TemplateTracker) score(l *luma, at image.Point, limit float64) float64 {
	n := float64(t.Size * t.Size)
	sum := 0
	for y := 0; y < t.Size; y++ {
		row := l.pix[(at.Y+y)*l.w+at.X:]
		tpl := t.template.pix[y*t.Size:]
		for x := 0; x < t.Size; x++ {
			sum += absDiff(row[x], tpl[x])
		}
		if float64(sum)/n > limit {
			return math.MaxFloat64
		}
	}
	return float64(sum) / n
}

func drawBox(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for x := r.Min.X; x < r.Max.X; x++ {
		for _, y := range []int{r.Min.Y, r.Min.Y + 1, r.Max.Y - 2, r.Max.Y - 1} {
			img.SetRGBA(x, y, c)
		}
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for _, x := range []int{r.Min.X, r.Min.X + 1, r.Max.X - 2, r.Max.X - 1} {
			img.SetRGBA(x, y, c)
		}
	}
}
