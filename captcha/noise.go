// File: noise.go
package captcha

import (
	"image"
	"image/color"
	"math/rand"
)

// noisePoint is one pre-drawn noise stamp. All randomness is pulled from the
// rng up front so that applying the points is a pure function of parameters;
// a fixed seed therefore reproduces the sprite exactly.
type noisePoint struct {
	x, y int
	c    color.RGBA
}

func drawNoisePoints(rng *rand.Rand, o NoiseOptions, w, h int) []noisePoint {
	pts := make([]noisePoint, o.Count)
	span := int(o.ColorMax-o.ColorMin) + 1
	for i := range pts {
		var r, g, b uint8
		if o.Red {
			r = o.ColorMin + uint8(rng.Intn(span))
		}
		if o.Green {
			g = o.ColorMin + uint8(rng.Intn(span))
		}
		if o.Blue {
			b = o.ColorMin + uint8(rng.Intn(span))
		}
		pts[i] = noisePoint{
			x: rng.Intn(w),
			y: rng.Intn(h),
			c: color.RGBA{R: r, G: g, B: b, A: o.Alpha},
		}
	}
	return pts
}

// applyNoise stamps the pre-drawn points onto the sprite with source-over
// blending at the configured alpha.
func applyNoise(img *image.RGBA, pts []noisePoint, o NoiseOptions) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for _, p := range pts {
		switch o.Pattern {
		case NoiseDots:
			blendPixel(img, p.x, p.y, p.c)
		case NoiseLines:
			for i := 0; i < o.Size; i++ {
				if p.x+i < w {
					blendPixel(img, p.x+i, p.y, p.c)
				}
			}
		case NoiseGrid:
			for dx := 0; dx < o.Size; dx++ {
				for dy := 0; dy < o.Size; dy++ {
					if p.x+dx < w && p.y+dy < h {
						blendPixel(img, p.x+dx, p.y+dy, p.c)
					}
				}
			}
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, c color.RGBA) {
	d := img.RGBAAt(x, y)
	a := uint32(c.A)
	ia := 255 - a
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((uint32(c.R)*a + uint32(d.R)*ia) / 255),
		G: uint8((uint32(c.G)*a + uint32(d.G)*ia) / 255),
		B: uint8((uint32(c.B)*a + uint32(d.B)*ia) / 255),
		A: 255,
	})
}

// boxBlur runs a separable box blur approximating a gaussian of the given
// sigma. Good enough to smear stamp edges against template matching.
func boxBlur(img *image.RGBA, sigma float64) {
	radius := int(sigma*1.5 + 0.5)
	if radius < 1 {
		radius = 1
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := image.NewRGBA(b)

	// horizontal pass img -> tmp
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sr, sg, sb, n uint32
			for dx := -radius; dx <= radius; dx++ {
				xx := x + dx
				if xx < 0 || xx >= w {
					continue
				}
				p := img.RGBAAt(xx, y)
				sr += uint32(p.R)
				sg += uint32(p.G)
				sb += uint32(p.B)
				n++
			}
			tmp.SetRGBA(x, y, color.RGBA{uint8(sr / n), uint8(sg / n), uint8(sb / n), 255})
		}
	}
	// vertical pass tmp -> img
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sr, sg, sb, n uint32
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				p := tmp.RGBAAt(x, yy)
				sr += uint32(p.R)
				sg += uint32(p.G)
				sb += uint32(p.B)
				n++
			}
			img.SetRGBA(x, y, color.RGBA{uint8(sr / n), uint8(sg / n), uint8(sb / n), 255})
		}
	}
}
