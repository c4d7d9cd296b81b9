// File: sprite.go
package captcha

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	gridCols    = 3
	gridRows    = 3
	gridCells   = gridCols * gridRows
	cellSpacing = 4

	// decoded caller-supplied base images beyond this edge length are refused
	maxBaseDimension = 4096
)

// distractorAngles is the rotation pool for the eight incorrect tiles. Every
// value is far enough from 0° (and from its neighbours) to stay clearly
// non-canonical under human inspection.
var distractorAngles = [...]float64{38, 88, 114, 138, 176, 200, 229, 255, 278, 314, 320}

var (
	fontOnce  sync.Once
	labelFont *truetype.Font
)

func loadLabelFont() *truetype.Font {
	fontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic("captcha: embedded font should be valid: " + err.Error())
		}
		labelFont = f
	})
	return labelFont
}

// tileParams holds every random decision for one cell. Parameters are drawn
// up front from a single rng stream; rendering consumes them read-only, so
// parallel and sequential rendering produce identical pixels.
type tileParams struct {
	angle      float64 // 0 for the canonical tile
	scale      float64 // shrink factor within the cell
	flip       bool    // horizontal mirror, distractors only
	jitterX    int     // offset inside the free margin of the cell
	jitterY    int
	labelScale float64
	labelColor color.RGBA
	labelDX    int
	labelDY    int
}

// spriteSpec is the fully decided puzzle before any pixel is rendered.
type spriteSpec struct {
	cells    [gridCells]tileParams
	correct  int
	cellSize int
}

// newSpriteSpec picks the correct cell uniformly and assigns eight pairwise
// distinct distractor angles to the rest.
func newSpriteSpec(rng *rand.Rand, cellSize int) spriteSpec {
	spec := spriteSpec{correct: rng.Intn(gridCells), cellSize: cellSize}
	perm := rng.Perm(len(distractorAngles))

	k := 0
	for i := 0; i < gridCells; i++ {
		p := tileParams{}
		if i == spec.correct {
			p.angle = 0
		} else {
			p.angle = distractorAngles[perm[k]]
			k++
		}
		p.scale = 0.5 + rng.Float64()*0.3
		p.flip = rng.Intn(2) == 1 && i != spec.correct
		margin := (cellSize - int(float64(cellSize)*p.scale)) / 2
		if margin > 0 {
			p.jitterX = rng.Intn(2*margin+1) - margin
			p.jitterY = rng.Intn(2*margin+1) - margin
		}
		p.labelScale = 0.13 + rng.Float64()*0.04
		p.labelColor = color.RGBA{
			R: uint8(rng.Intn(100)),
			G: uint8(rng.Intn(100)),
			B: uint8(rng.Intn(100)),
			A: 255,
		}
		p.labelDX = rng.Intn(4)
		p.labelDY = rng.Intn(4)
		spec.cells[i] = p
	}
	return spec
}

// baseTile produces the cell-sized source image every tile is derived from:
// either the caller-supplied encoded image, or a procedurally drawn
// asymmetric figure whose orientation is obvious to a human.
func baseTile(rng *rand.Rand, opts GenerationOptions) (image.Image, error) {
	if opts.BaseImage != nil {
		src, _, err := image.Decode(bytes.NewReader(opts.BaseImage))
		if err != nil {
			return nil, errors.Wrap(ErrCodecFailure, "decode base image: "+err.Error())
		}
		b := src.Bounds()
		if b.Dx() > maxBaseDimension || b.Dy() > maxBaseDimension {
			return nil, errors.Wrapf(ErrCodecFailure, "base image %dx%d exceeds %dpx limit", b.Dx(), b.Dy(), maxBaseDimension)
		}
		dst := image.NewRGBA(image.Rect(0, 0, opts.CellSize, opts.CellSize))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
		return dst, nil
	}
	return renderDefaultTile(rng, opts.CellSize), nil
}

// renderDefaultTile draws an upward arrow with an off-center dot and arc so
// that both rotation and mirroring are human-readable.
func renderDefaultTile(rng *rand.Rand, cell int) image.Image {
	dc := gg.NewContext(cell, cell)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	s := float64(cell)
	// 主色随机取暗色，增加样本差异
	r := 0.1 + rng.Float64()*0.4
	g := 0.1 + rng.Float64()*0.4
	b := 0.1 + rng.Float64()*0.4

	dc.SetRGB(r, g, b)
	dc.SetLineWidth(s / 18)

	// arrow shaft
	dc.DrawLine(s*0.5, s*0.82, s*0.5, s*0.3)
	dc.Stroke()
	// arrowhead
	dc.MoveTo(s*0.5, s*0.12)
	dc.LineTo(s*0.34, s*0.36)
	dc.LineTo(s*0.66, s*0.36)
	dc.ClosePath()
	dc.Fill()
	// off-center accent dot, breaks mirror symmetry
	dc.SetRGB(b, r, g)
	dc.DrawCircle(s*0.22, s*0.22, s*0.07)
	dc.Fill()
	// lower-right arc
	dc.SetRGB(r, g, b)
	dc.DrawArc(s*0.72, s*0.74, s*0.14, 0, gg.Radians(230))
	dc.Stroke()

	return dc.Image()
}

// tileRect returns the jittered placement of tile i inside its cell.
func tileRect(spec spriteSpec, i int) (x, y, side int) {
	p := spec.cells[i]
	cell := spec.cellSize
	side = int(float64(cell) * p.scale)
	col := i % gridCols
	row := i / gridCols
	off := (cell - side) / 2
	x = col*(cell+cellSpacing) + off + p.jitterX
	y = row*(cell+cellSpacing) + off + p.jitterY
	return
}

func rotateTile(base image.Image, angle float64, cell int) image.Image {
	if angle == 0 {
		return base
	}
	dc := gg.NewContext(cell, cell)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.RotateAbout(gg.Radians(angle), float64(cell)/2, float64(cell)/2)
	dc.DrawImage(base, 0, 0)
	return dc.Image()
}

// renderTile writes tile i into its own disjoint region of the canvas, so
// tiles can be rendered concurrently without synchronization.
func renderTile(canvas *image.RGBA, base image.Image, spec spriteSpec, i int) {
	p := spec.cells[i]
	rotated := rotateTile(base, p.angle, spec.cellSize)

	x, y, side := tileRect(spec, i)
	tile := image.NewRGBA(image.Rect(0, 0, side, side))
	xdraw.CatmullRom.Scale(tile, tile.Bounds(), rotated, rotated.Bounds(), xdraw.Src, nil)
	if p.flip {
		tile = flipHorizontal(tile)
	}
	draw.Draw(canvas, image.Rect(x, y, x+side, y+side), tile, image.Point{}, draw.Src)
}

// renderSprite composites all nine tiles onto a white canvas with spacing.
func renderSprite(spec spriteSpec, base image.Image, parallel bool) *image.RGBA {
	w := gridCols*spec.cellSize + (gridCols-1)*cellSpacing
	h := gridRows*spec.cellSize + (gridRows-1)*cellSpacing
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	if parallel {
		var wg sync.WaitGroup
		wg.Add(gridCells)
		for i := 0; i < gridCells; i++ {
			go func(i int) {
				defer wg.Done()
				renderTile(canvas, base, spec, i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := 0; i < gridCells; i++ {
			renderTile(canvas, base, spec, i)
		}
	}
	return canvas
}

// drawLabels writes the 1..9 cell numbers near each tile's lower-right
// corner at the pre-drawn random offset, scale and color.
func drawLabels(canvas *image.RGBA, spec spriteSpec) {
	dc := gg.NewContextForRGBA(canvas)
	font := loadLabelFont()
	for i := 0; i < gridCells; i++ {
		p := spec.cells[i]
		x, y, side := tileRect(spec, i)

		face := truetype.NewFace(font, &truetype.Options{Size: float64(spec.cellSize) * p.labelScale})
		dc.SetFontFace(face)
		dc.SetColor(p.labelColor)

		lx := float64(x + side - 16 + p.labelDX)
		ly := float64(y + side - 16 + p.labelDY)
		dc.DrawStringAnchored(string(rune('1'+i)), lx, ly, 0.5, 0.5)
	}
}

// composeSprite runs the pixel pipeline up to (but not including) noise and
// encoding, returning the canvas plus the ground-truth cell index.
func composeSprite(rng *rand.Rand, opts GenerationOptions) (*image.RGBA, int, error) {
	base, err := baseTile(rng, opts)
	if err != nil {
		return nil, 0, err
	}
	spec := newSpriteSpec(rng, opts.CellSize)
	canvas := renderSprite(spec, base, opts.Parallel)
	drawLabels(canvas, spec)
	return canvas, spec.correct, nil
}

// encodeSprite serializes the composed canvas in the configured format.
// Composition never changes with the codec; two formats of the same canvas
// decode back to identical dimensions.
func encodeSprite(img image.Image, opts GenerationOptions) ([]byte, string, error) {
	var buf bytes.Buffer
	switch opts.Format {
	case SpritePNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", errors.Wrap(ErrCodecFailure, "png encode: "+err.Error())
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
			return nil, "", errors.Wrap(ErrCodecFailure, "jpeg encode: "+err.Error())
		}
	}
	return buf.Bytes(), opts.Format.MIME(), nil
}
