// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/x448/float16"
)

// VertexType encodes the wire format of one vertex attribute.
type VertexType uint8

// Vertex attribute wire formats.
const (
	VertexTypeSingle3    VertexType = 2
	VertexTypeSingle4    VertexType = 3
	VertexTypeUInt       VertexType = 5
	VertexTypeByteFloat4 VertexType = 8
	VertexTypeHalf2      VertexType = 13
	VertexTypeHalf4      VertexType = 14
)

// VertexUsage encodes what a vertex attribute means.
type VertexUsage uint8

// Vertex attribute usages.
const (
	VertexUsagePosition     VertexUsage = 0
	VertexUsageBlendWeights VertexUsage = 1
	VertexUsageBlendIndices VertexUsage = 2
	VertexUsageNormal       VertexUsage = 3
	VertexUsageUV           VertexUsage = 4
	VertexUsageTangent      VertexUsage = 5
	VertexUsageBiTangent    VertexUsage = 6
	VertexUsageColor        VertexUsage = 7
)

// VertexElement describes where one attribute of one mesh lives: its
// stream, its byte offset within the stream's stride, and its format.
type VertexElement struct {
	Stream     uint8       `json:"stream"`
	Offset     uint8       `json:"offset"`
	Type       VertexType  `json:"type"`
	Usage      VertexUsage `json:"usage"`
	UsageIndex uint8       `json:"usage_index"`
}

// VertexDeclaration is the attribute schema of one mesh.
type VertexDeclaration struct {
	Elements []VertexElement `json:"elements"`
}

const (
	// vertexElementSize is the stored size of one element entry.
	vertexElementSize = 8

	// vertexDeclarationSize is the stored size of one declaration slot:
	// room for 17 element entries including the end marker.
	vertexDeclarationSize = 136

	// vertexStreamEnd marks the end of a declaration's element list.
	vertexStreamEnd = 255
)

// readVertexDeclarations parses count fixed-size declaration slots. Each
// slot holds element entries terminated by a stream byte of 255, with the
// slot's remainder unused.
func readVertexDeclarations(r io.ReadSeeker, count uint16) ([]VertexDeclaration, error) {
	declarations := make([]VertexDeclaration, 0, count)

	for i := uint16(0); i < count; i++ {
		var decl VertexDeclaration
		read := 0
		for {
			var entry [vertexElementSize]byte
			if _, err := io.ReadFull(r, entry[:]); err != nil {
				return nil, corrupt("vertex declaration", "truncated at slot %d", i)
			}
			read += vertexElementSize
			if entry[0] == vertexStreamEnd {
				break
			}
			decl.Elements = append(decl.Elements, VertexElement{
				Stream:     entry[0],
				Offset:     entry[1],
				Type:       VertexType(entry[2]),
				Usage:      VertexUsage(entry[3]),
				UsageIndex: entry[4],
			})
		}

		if read > vertexDeclarationSize {
			return nil, corrupt("vertex declaration",
				"slot %d overflows its %d bytes", i, vertexDeclarationSize)
		}
		if _, err := r.Seek(int64(vertexDeclarationSize-read), io.SeekCurrent); err != nil {
			return nil, corrupt("vertex declaration", "seek past slot %d", i)
		}
		declarations = append(declarations, decl)
	}

	return declarations, nil
}

// writeVertexDeclarations emits the declarations in their fixed-size slot
// form, end marker and zero fill included.
func writeVertexDeclarations(w io.Writer, declarations []VertexDeclaration) error {
	for _, decl := range declarations {
		written := 0
		for _, element := range decl.Elements {
			entry := [vertexElementSize]byte{
				element.Stream,
				element.Offset,
				uint8(element.Type),
				uint8(element.Usage),
				element.UsageIndex,
			}
			if _, err := w.Write(entry[:]); err != nil {
				return err
			}
			written += vertexElementSize
		}

		end := [vertexElementSize]byte{vertexStreamEnd}
		if _, err := w.Write(end[:]); err != nil {
			return err
		}
		written += vertexElementSize

		if _, err := w.Write(make([]byte, vertexDeclarationSize-written)); err != nil {
			return err
		}
	}
	return nil
}

// Attribute value codecs. All are little-endian.

func readSingle3(r io.Reader) ([3]float32, error) {
	var v [3]float32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeSingle3(w io.Writer, v [3]float32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readSingle4(r io.Reader) ([4]float32, error) {
	var v [4]float32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeSingle4(w io.Writer, v [4]float32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readHalf4(r io.Reader) ([4]float32, error) {
	var bits [4]uint16
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return [4]float32{}, err
	}
	var v [4]float32
	for i, b := range bits {
		v[i] = float16.Frombits(b).Float32()
	}
	return v, nil
}

func writeHalf4(w io.Writer, v [4]float32) error {
	var bits [4]uint16
	for i, f := range v {
		bits[i] = float16.Fromfloat32(f).Bits()
	}
	return binary.Write(w, binary.LittleEndian, bits)
}

// readByteFloat4 maps 0..255 bytes to 0..1 floats.
func readByteFloat4(r io.Reader) ([4]float32, error) {
	var bytes [4]uint8
	if err := binary.Read(r, binary.LittleEndian, &bytes); err != nil {
		return [4]float32{}, err
	}
	var v [4]float32
	for i, b := range bytes {
		v[i] = float32(b) / 255.0
	}
	return v, nil
}

func writeByteFloat4(w io.Writer, v [4]float32) error {
	var bytes [4]uint8
	for i, f := range v {
		bytes[i] = uint8(math.RoundToEven(float64(f) * 255.0))
	}
	return binary.Write(w, binary.LittleEndian, bytes)
}

// readTangent maps 0..255 bytes to -1..+1 floats per lane.
func readTangent(r io.Reader) ([4]float32, error) {
	var bytes [4]uint8
	if err := binary.Read(r, binary.LittleEndian, &bytes); err != nil {
		return [4]float32{}, err
	}
	var v [4]float32
	for i, b := range bytes {
		v[i] = float32(b)/255.0*2.0 - 1.0
	}
	return v, nil
}

func writeTangent(w io.Writer, v [4]float32) error {
	var bytes [4]uint8
	for i, f := range v {
		bytes[i] = uint8(math.RoundToEven((float64(f) + 1.0) / 2.0 * 255.0))
	}
	return binary.Write(w, binary.LittleEndian, bytes)
}

// readUInt reads 4 raw bytes, used for blend indices.
func readUInt(r io.Reader) ([4]uint8, error) {
	var v [4]uint8
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeUInt(w io.Writer, v [4]uint8) error {
	return binary.Write(w, binary.LittleEndian, v)
}
