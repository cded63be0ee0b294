// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
)

// TextureFormat identifies the pixel encoding of a texture.
type TextureFormat uint32

// Supported texture formats.
const (
	TextureFormatB8G8R8A8 TextureFormat = 0x1450
	TextureFormatBC1      TextureFormat = 0x3420
	TextureFormatBC3      TextureFormat = 0x3431
	TextureFormatBC5      TextureFormat = 0x6230
)

// texHeader is the fixed header opening a texture file.
type texHeader struct {
	Attribute uint32
	Format    TextureFormat

	Width     uint16
	Height    uint16
	Depth     uint16
	MipLevels uint16

	LodOffsets      [3]uint32
	OffsetToSurface [13]uint32
}

// texHeaderSize is the stored size of texHeader.
const texHeaderSize = 4 + 4 + 2*4 + 3*4 + 13*4

// Texture is a decoded texture. Block-compressed inputs yield the first
// mip level as RGBA pixels; BGRA8 inputs keep their raw body.
type Texture struct {
	// Width of the texture in pixels.
	Width uint32

	// Height of the texture in pixels.
	Height uint32

	// RGBA pixel data, Width*Height*4 bytes for block-compressed inputs.
	// For BGRA8 inputs it is the whole body after the header, every mip
	// included, in the stored BGRA byte order.
	RGBA []byte
}

// ParseTexture decodes a texture file. BGRA8 bodies pass through
// untouched; BC1, BC3 and BC5 bodies are decompressed to RGBA. Formats
// outside that set return ErrUnsupportedTextureFormat.
func ParseTexture(data []byte) (*Texture, error) {
	r := bytes.NewReader(data)

	var header texHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, corrupt("tex", "truncated header")
	}

	body := data[texHeaderSize:]

	var rgba []byte
	switch header.Format {
	case TextureFormatB8G8R8A8:
		rgba = append([]byte(nil), body...)
	case TextureFormatBC1:
		decoded, err := decompressBC1(body, int(header.Width), int(header.Height))
		if err != nil {
			return nil, err
		}
		rgba = decoded
	case TextureFormatBC3:
		decoded, err := decompressBC3(body, int(header.Width), int(header.Height))
		if err != nil {
			return nil, err
		}
		rgba = decoded
	case TextureFormatBC5:
		decoded, err := decompressBC5(body, int(header.Width), int(header.Height))
		if err != nil {
			return nil, err
		}
		rgba = decoded
	default:
		return nil, ErrUnsupportedTextureFormat
	}

	return &Texture{
		Width:  uint32(header.Width),
		Height: uint32(header.Height),
		RGBA:   rgba,
	}, nil
}
