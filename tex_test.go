// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"
)

// buildTex serializes a texture file with the given format and body.
func buildTex(t *testing.T, format TextureFormat, width, height uint16, body []byte) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, texHeader{
		Format:    format,
		Width:     width,
		Height:    height,
		Depth:     1,
		MipLevels: 1,
	})
	buf.Write(body)
	return buf.Bytes()
}

func TestParseTextureBGRA8(t *testing.T) {

	body := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	tex, err := ParseTexture(buildTex(t, TextureFormatB8G8R8A8, 2, 1, body))
	if err != nil {
		t.Fatalf("ParseTexture failed, reason: %v", err)
	}

	if tex.Width != 2 || tex.Height != 1 {
		t.Errorf("dimensions got %dx%d, want 2x1", tex.Width, tex.Height)
	}
	if !bytes.Equal(tex.RGBA, body) {
		t.Errorf("BGRA8 body not passed through: got % x", tex.RGBA)
	}
}

func TestParseTextureBC1(t *testing.T) {

	// One block: color0 pure red, color1 pure blue, every texel index 0.
	block := make([]byte, 8)
	binary.LittleEndian.PutUint16(block, 0xF800)
	binary.LittleEndian.PutUint16(block[2:], 0x001F)

	tex, err := ParseTexture(buildTex(t, TextureFormatBC1, 4, 4, block))
	if err != nil {
		t.Fatalf("ParseTexture failed, reason: %v", err)
	}

	if len(tex.RGBA) != 4*4*4 {
		t.Fatalf("output size got %d, want %d", len(tex.RGBA), 4*4*4)
	}
	for i := 0; i < len(tex.RGBA); i += 4 {
		r, g, b, a := tex.RGBA[i], tex.RGBA[i+1], tex.RGBA[i+2], tex.RGBA[i+3]
		if r != 255 || g != 0 || b != 0 || a != 255 {
			t.Fatalf("pixel %d got (%d,%d,%d,%d), want opaque red",
				i/4, r, g, b, a)
		}
	}
}

func TestParseTextureBC3(t *testing.T) {

	// One block: constant alpha 0x80, all color indices on color0.
	block := make([]byte, 16)
	block[0] = 0x80
	block[1] = 0x80
	binary.LittleEndian.PutUint16(block[8:], 0x07E0) // green
	binary.LittleEndian.PutUint16(block[10:], 0x0000)

	tex, err := ParseTexture(buildTex(t, TextureFormatBC3, 4, 4, block))
	if err != nil {
		t.Fatalf("ParseTexture failed, reason: %v", err)
	}

	if len(tex.RGBA) != 4*4*4 {
		t.Fatalf("output size got %d, want %d", len(tex.RGBA), 4*4*4)
	}
	r, g, b, a := tex.RGBA[0], tex.RGBA[1], tex.RGBA[2], tex.RGBA[3]
	if r != 0 || g != 255 || b != 0 || a != 0x80 {
		t.Errorf("pixel 0 got (%d,%d,%d,%d), want (0,255,0,128)", r, g, b, a)
	}
}

func TestParseTextureBC5(t *testing.T) {

	// Two scalar blocks: red channel all 0x40, green channel all 0xC0.
	block := make([]byte, 16)
	block[0] = 0x40
	block[1] = 0x40
	block[8] = 0xC0
	block[9] = 0xC0

	tex, err := ParseTexture(buildTex(t, TextureFormatBC5, 4, 4, block))
	if err != nil {
		t.Fatalf("ParseTexture failed, reason: %v", err)
	}

	r, g, b, a := tex.RGBA[0], tex.RGBA[1], tex.RGBA[2], tex.RGBA[3]
	if r != 0x40 || g != 0xC0 || b != 0 || a != 255 {
		t.Errorf("pixel 0 got (%d,%d,%d,%d), want (64,192,0,255)", r, g, b, a)
	}
}

func TestParseTextureOutputSize(t *testing.T) {

	// Non-multiple-of-4 dimensions still produce exactly w*h*4 bytes.
	tests := []struct {
		width  uint16
		height uint16
	}{
		{4, 4},
		{6, 6},
		{5, 3},
		{16, 8},
	}

	for _, tt := range tests {
		bw := (int(tt.width) + 3) / 4
		bh := (int(tt.height) + 3) / 4
		body := make([]byte, bw*bh*8)

		tex, err := ParseTexture(buildTex(t, TextureFormatBC1,
			tt.width, tt.height, body))
		if err != nil {
			t.Fatalf("ParseTexture(%dx%d) failed, reason: %v",
				tt.width, tt.height, err)
		}
		if want := int(tt.width) * int(tt.height) * 4; len(tex.RGBA) != want {
			t.Errorf("%dx%d output got %d bytes, want %d",
				tt.width, tt.height, len(tex.RGBA), want)
		}
	}
}

func TestParseTextureUnsupportedFormat(t *testing.T) {

	data := buildTex(t, TextureFormat(0x9999), 4, 4, make([]byte, 64))
	if _, err := ParseTexture(data); !errors.Is(err, ErrUnsupportedTextureFormat) {
		t.Errorf("ParseTexture got %v, want ErrUnsupportedTextureFormat", err)
	}
}

func TestParseTextureRandomBytes(t *testing.T) {

	// Feeding it garbage must never panic.
	rng := rand.New(rand.NewSource(0x5eed))
	for i := 0; i < 64; i++ {
		data := make([]byte, rng.Intn(4096))
		rng.Read(data)
		if _, err := ParseTexture(data); err == nil {
			// A random format word very occasionally lands on a valid one
			// with a large enough body; that is still a non-panic outcome.
			continue
		}
	}
}

func TestParseTextureTruncatedBody(t *testing.T) {

	data := buildTex(t, TextureFormatBC1, 16, 16, make([]byte, 8))
	var corruptErr *CorruptError
	if _, err := ParseTexture(data); !errors.As(err, &corruptErr) {
		t.Errorf("ParseTexture got %v, want CorruptError", err)
	}
}
