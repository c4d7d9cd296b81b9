// File: types.go
package captcha

import (
	"encoding/base64"

	"github.com/pkg/errors"
)

// SpriteFormat selects the output codec for the composed sprite.
type SpriteFormat int

const (
	SpriteJPEG SpriteFormat = iota
	SpritePNG
)

// MIME returns the media type for the format.
func (f SpriteFormat) MIME() string {
	if f == SpritePNG {
		return "image/png"
	}
	return "image/jpeg"
}

// GenerationOptions configures sprite composition and encoding.
// Construction-time only, not mutated afterwards.
type GenerationOptions struct {
	CellSize int          // 单元格边长（像素）
	Format   SpriteFormat // output codec
	Quality  int          // JPEG quality 1..100, ignored for PNG

	// BaseImage optionally supplies an encoded JPEG/PNG tile source.
	// When nil a procedurally drawn tile is used.
	BaseImage []byte

	// MaxCellSize bounds the requested cell size.
	MaxCellSize int

	// Parallel renders the nine tiles on separate goroutines. Purely a
	// latency optimization: output is identical to sequential rendering.
	Parallel bool
}

// DefaultGenerationOptions mirrors the documented defaults.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		CellSize:    150,
		Format:      SpriteJPEG,
		Quality:     70,
		MaxCellSize: 512,
		Parallel:    true,
	}
}

func (o GenerationOptions) Validate() error {
	if o.CellSize < 16 {
		return errors.Wrap(ErrConfigurationInvalid, "cell size below 16px")
	}
	max := o.MaxCellSize
	if max <= 0 {
		max = 512
	}
	if o.CellSize > max {
		return errors.Wrapf(ErrConfigurationInvalid, "cell size %d exceeds limit %d", o.CellSize, max)
	}
	if o.Format != SpriteJPEG && o.Format != SpritePNG {
		return errors.Wrap(ErrConfigurationInvalid, "unknown sprite format")
	}
	if o.Format == SpriteJPEG && (o.Quality < 1 || o.Quality > 100) {
		return errors.Wrapf(ErrConfigurationInvalid, "jpeg quality %d outside 1..100", o.Quality)
	}
	return nil
}

// NoisePattern is the shape stamped for each noise point.
type NoisePattern int

const (
	NoiseDots NoisePattern = iota
	NoiseLines
	NoiseGrid
)

// NoiseOptions are the anti-OCR distortion knobs. The right intensity is an
// empirical trade-off between human solvability and solver resistance, so
// everything here is configuration rather than a constant.
type NoiseOptions struct {
	Count     int   // number of noise points over the whole sprite
	Size      int   // stamp size in pixels for lines/grid patterns
	Alpha     uint8 // blend strength of each stamp
	ColorMin  uint8 // per-channel random color range
	ColorMax  uint8
	Pattern   NoisePattern
	Red       bool // channel enables; disabled channels stay 0
	Green     bool
	Blue      bool
	BlurSigma float64 // 0 disables the final blur pass
}

// DefaultNoiseOptions matches the tuning shipped with the library:
// 300 points per cell, 2px grid stamps, light blur.
func DefaultNoiseOptions() NoiseOptions {
	return NoiseOptions{
		Count:     300 * gridCells,
		Size:      2,
		Alpha:     100,
		ColorMin:  0,
		ColorMax:  255,
		Pattern:   NoiseGrid,
		Red:       true,
		Green:     true,
		Blue:      true,
		BlurSigma: 0.7,
	}
}

func (o NoiseOptions) Validate() error {
	if o.Count < 0 {
		return errors.Wrap(ErrConfigurationInvalid, "negative noise count")
	}
	if o.Size < 1 {
		return errors.Wrap(ErrConfigurationInvalid, "noise size below 1")
	}
	if o.ColorMin > o.ColorMax {
		return errors.Wrap(ErrConfigurationInvalid, "noise color range inverted")
	}
	if o.Pattern != NoiseDots && o.Pattern != NoiseLines && o.Pattern != NoiseGrid {
		return errors.Wrap(ErrConfigurationInvalid, "unknown noise pattern")
	}
	if o.BlurSigma < 0 {
		return errors.Wrap(ErrConfigurationInvalid, "negative blur sigma")
	}
	return nil
}

// Challenge is one issued puzzle: the encoded sprite plus the stateless
// signed id the solver must echo back. The ground-truth index lives only
// inside the MAC'd id, never in clear.
type Challenge struct {
	ID       string
	Sprite   []byte
	MIME     string
	IssuedAt int64

	correctIndex int // retained for in-package tests
}

// DataURI renders the sprite as a data: URI for direct embedding in markup.
func (c *Challenge) DataURI() string {
	return "data:" + c.MIME + ";base64," + base64.StdEncoding.EncodeToString(c.Sprite)
}
