// File: utils.go
package captcha

import (
	crand "crypto/rand"
	"encoding/binary"
	"image"
	"math/rand"
	"time"
)

func flipHorizontal(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	w := b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(b.Min.X+w-1-(x-b.Min.X), y, src.RGBAAt(x, y))
		}
	}
	return dst
}

// newSeededRand builds a distortion rng seeded from crypto/rand, so no
// parameter is derivable by the verifying client.
func newSeededRand() *rand.Rand {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

func nowUnix() int64 {
	return time.Now().Unix()
}
