// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package imagestore

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/probechain/photomesh/internal/pcommon"
)

// Info is what the store needs to know about a decoded image in order to
// dedup it: its perceptual hash key, and the tie-break inputs (pixel count,
// distinct colors).
type Info struct {
	Hash   pcommon.Hash
	Pixels int64
	Colors int
}

// Inspector computes perceptual-hash equality keys and duplicate tie-break
// metadata for an image file. Perceptual hashing and image decoding are, per
// spec.md §1, external collaborators to the control plane — this interface
// is the seam, satisfied by defaultInspector below for a self-contained
// build and replaceable with a more sophisticated perceptual hash library
// without touching store.go.
type Inspector interface {
	Inspect(path string) (Info, error)
}

// defaultInspector implements a plain average-hash (the same family the
// source collaborator uses) over the standard library's image decoders.
type defaultInspector struct{}

// NewDefaultInspector returns the built-in average-hash inspector.
func NewDefaultInspector() Inspector { return defaultInspector{} }

const hashGridSize = 8 // 8x8 average hash, one bit per cell => 64-bit hash

func (defaultInspector) Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Info{}, err
	}
	bounds := img.Bounds()
	pixels := int64(bounds.Dx()) * int64(bounds.Dy())

	grid := make([]float64, 0, hashGridSize*hashGridSize)
	colors := make(map[uint32]struct{})
	var sum float64
	for gy := 0; gy < hashGridSize; gy++ {
		for gx := 0; gx < hashGridSize; gx++ {
			x := bounds.Min.X + gx*bounds.Dx()/hashGridSize
			y := bounds.Min.Y + gy*bounds.Dy()/hashGridSize
			r, g, b, _ := img.At(x, y).RGBA()
			gray := float64(r>>8)*0.299 + float64(g>>8)*0.587 + float64(b>>8)*0.114
			grid = append(grid, gray)
			sum += gray
		}
	}
	avg := sum / float64(len(grid))

	bits := make([]byte, 0, hashGridSize*hashGridSize/4)
	var cur byte
	var nbits int
	for _, v := range grid {
		cur <<= 1
		if v >= avg {
			cur |= 1
		}
		nbits++
		if nbits == 4 {
			bits = append(bits, hexDigit(cur))
			cur, nbits = 0, 0
		}
	}
	if nbits > 0 {
		cur <<= uint(4 - nbits)
		bits = append(bits, hexDigit(cur))
	}

	// Distinct-color sampling over the full image is the tie-break input;
	// sampling every pixel is fine at photo-library scale.
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			key := uint32(r>>8)<<24 | uint32(g>>8)<<16 | uint32(b>>8)<<8 | uint32(a>>8)
			colors[key] = struct{}{}
		}
	}

	return Info{Hash: pcommon.Hash(bits), Pixels: pixels, Colors: len(colors)}, nil
}

func hexDigit(b byte) byte {
	const digits = "0123456789abcdef"
	return digits[b&0xF]
}
