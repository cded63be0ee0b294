// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/orcaman/writerseeker"
)

// mdlFileHeaderSize is the stored size of the fixed model file header,
// before the vertex declaration slots.
const mdlFileHeaderSize = 68

// ModelFileHeader is the fixed file header of a model, followed on disk by
// its vertex declaration slots (the "stack" region).
type ModelFileHeader struct {
	Version uint32 `json:"version"`

	// StackSize is the size of the vertex declaration region.
	StackSize uint32 `json:"stack_size"`

	// RuntimeSize is the size of the model data region.
	RuntimeSize uint32 `json:"runtime_size"`

	VertexDeclarationCount uint16 `json:"vertex_declaration_count"`
	MaterialCount          uint16 `json:"material_count"`

	// Per-LOD absolute offsets and sizes of the vertex and index regions.
	VertexOffsets    [3]uint32 `json:"vertex_offsets"`
	IndexOffsets     [3]uint32 `json:"index_offsets"`
	VertexBufferSize [3]uint32 `json:"vertex_buffer_size"`
	IndexBufferSize  [3]uint32 `json:"index_buffer_size"`

	LodCount                    uint8 `json:"lod_count"`
	IndexBufferStreamingEnabled bool  `json:"index_buffer_streaming_enabled"`
	HasEdgeGeometry             bool  `json:"has_edge_geometry"`

	VertexDeclarations []VertexDeclaration `json:"vertex_declarations"`
}

// mdlFileHeaderFixed mirrors the stored layout of the fixed header part.
type mdlFileHeaderFixed struct {
	Version                     uint32
	StackSize                   uint32
	RuntimeSize                 uint32
	VertexDeclarationCount      uint16
	MaterialCount               uint16
	VertexOffsets               [3]uint32
	IndexOffsets                [3]uint32
	VertexBufferSize            [3]uint32
	IndexBufferSize             [3]uint32
	LodCount                    uint8
	IndexBufferStreamingEnabled uint8
	HasEdgeGeometry             uint8
	Padding                     uint8
}

func (h *ModelFileHeader) read(r io.ReadSeeker) error {
	var fixed mdlFileHeaderFixed
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return corrupt("mdl header", "truncated file header")
	}

	h.Version = fixed.Version
	h.StackSize = fixed.StackSize
	h.RuntimeSize = fixed.RuntimeSize
	h.VertexDeclarationCount = fixed.VertexDeclarationCount
	h.MaterialCount = fixed.MaterialCount
	h.VertexOffsets = fixed.VertexOffsets
	h.IndexOffsets = fixed.IndexOffsets
	h.VertexBufferSize = fixed.VertexBufferSize
	h.IndexBufferSize = fixed.IndexBufferSize
	h.LodCount = fixed.LodCount
	h.IndexBufferStreamingEnabled = fixed.IndexBufferStreamingEnabled != 0
	h.HasEdgeGeometry = fixed.HasEdgeGeometry != 0

	declarations, err := readVertexDeclarations(r, h.VertexDeclarationCount)
	if err != nil {
		return err
	}
	h.VertexDeclarations = declarations
	return nil
}

// write emits the fixed header part only; the declaration slots follow via
// writeVertexDeclarations.
func (h *ModelFileHeader) write(w io.Writer) {
	fixed := mdlFileHeaderFixed{
		Version:                h.Version,
		StackSize:              h.StackSize,
		RuntimeSize:            h.RuntimeSize,
		VertexDeclarationCount: h.VertexDeclarationCount,
		MaterialCount:          h.MaterialCount,
		VertexOffsets:          h.VertexOffsets,
		IndexOffsets:           h.IndexOffsets,
		VertexBufferSize:       h.VertexBufferSize,
		IndexBufferSize:        h.IndexBufferSize,
		LodCount:               h.LodCount,
	}
	if h.IndexBufferStreamingEnabled {
		fixed.IndexBufferStreamingEnabled = 1
	}
	if h.HasEdgeGeometry {
		fixed.HasEdgeGeometry = 1
	}
	_ = binary.Write(w, binary.LittleEndian, fixed)
}

// CalculateStackSize computes the size of the vertex declaration region.
func (h *ModelFileHeader) CalculateStackSize() uint32 {
	return uint32(h.VertexDeclarationCount) * vertexDeclarationSize
}

// ModelHeader opens the model data region: the string pool and the counts
// sizing every following array.
type ModelHeader struct {
	StringCount uint16 `json:"string_count"`
	StringSize  uint32 `json:"string_size"`
	Strings     []byte `json:"-"`

	Radius float32 `json:"radius"`

	MeshCount       uint16 `json:"mesh_count"`
	AttributeCount  uint16 `json:"attribute_count"`
	SubmeshCount    uint16 `json:"submesh_count"`
	MaterialCount   uint16 `json:"material_count"`
	BoneCount       uint16 `json:"bone_count"`
	BoneTableCount  uint16 `json:"bone_table_count"`
	ShapeCount      uint16 `json:"shape_count"`
	ShapeMeshCount  uint16 `json:"shape_mesh_count"`
	ShapeValueCount uint16 `json:"shape_value_count"`

	LodCount uint8 `json:"lod_count"`
	Flags1   uint8 `json:"flags1"`

	ElementIDCount         uint16 `json:"element_id_count"`
	TerrainShadowMeshCount uint8  `json:"terrain_shadow_mesh_count"`
	Flags2                 uint8  `json:"flags2"`

	ModelClipOutOfDistance  float32 `json:"model_clip_out_of_distance"`
	ShadowClipOutOfDistance float32 `json:"shadow_clip_out_of_distance"`

	TerrainShadowSubmeshCount uint16 `json:"terrain_shadow_submesh_count"`

	BGChangeMaterialIndex      uint8 `json:"bg_change_material_index"`
	BGCrestChangeMaterialIndex uint8 `json:"bg_crest_change_material_index"`
}

// modelHeaderFixed mirrors the stored layout after the string pool.
type modelHeaderFixed struct {
	Radius                     float32
	MeshCount                  uint16
	AttributeCount             uint16
	SubmeshCount               uint16
	MaterialCount              uint16
	BoneCount                  uint16
	BoneTableCount             uint16
	ShapeCount                 uint16
	ShapeMeshCount             uint16
	ShapeValueCount            uint16
	LodCount                   uint8
	Flags1                     uint8
	ElementIDCount             uint16
	TerrainShadowMeshCount     uint8
	Flags2                     uint8
	ModelClipOutOfDistance     float32
	ShadowClipOutOfDistance    float32
	Padding1                   uint16
	TerrainShadowSubmeshCount  uint16
	Padding2                   uint16
	BGChangeMaterialIndex      uint8
	BGCrestChangeMaterialIndex uint8
	Padding3                   [12]byte
}

// MeshLod describes one level of detail: its mesh range and the location
// of its vertex and index regions.
type MeshLod struct {
	MeshIndex uint16 `json:"mesh_index"`
	MeshCount uint16 `json:"mesh_count"`

	ModelLodRange   float32 `json:"model_lod_range"`
	TextureLodRange float32 `json:"texture_lod_range"`

	WaterMeshIndex  uint16 `json:"water_mesh_index"`
	WaterMeshCount  uint16 `json:"water_mesh_count"`
	ShadowMeshIndex uint16 `json:"shadow_mesh_index"`
	ShadowMeshCount uint16 `json:"shadow_mesh_count"`

	TerrainShadowMeshCount uint16 `json:"terrain_shadow_mesh_count"`
	TerrainShadowMeshIndex uint16 `json:"terrain_shadow_mesh_index"`

	VerticalFogMeshIndex uint16 `json:"vertical_fog_mesh_index"`
	VerticalFogMeshCount uint16 `json:"vertical_fog_mesh_count"`

	// Unused on the PC platform.
	EdgeGeometrySize       uint32 `json:"edge_geometry_size"`
	EdgeGeometryDataOffset uint32 `json:"edge_geometry_data_offset"`

	PolygonCount uint32 `json:"polygon_count"`
	Padding      uint32 `json:"-"`

	VertexBufferSize uint32 `json:"vertex_buffer_size"`
	IndexBufferSize  uint32 `json:"index_buffer_size"`
	VertexDataOffset uint32 `json:"vertex_data_offset"`
	IndexDataOffset  uint32 `json:"index_data_offset"`
}

// Mesh describes one mesh: its vertex and index counts and where its
// vertex streams live within the LOD's vertex region.
type Mesh struct {
	VertexCount uint16 `json:"vertex_count"`
	Padding     uint16 `json:"-"`
	IndexCount  uint32 `json:"index_count"`

	MaterialIndex uint16 `json:"material_index"`
	SubmeshIndex  uint16 `json:"submesh_index"`
	SubmeshCount  uint16 `json:"submesh_count"`

	BoneTableIndex uint16 `json:"bone_table_index"`
	StartIndex     uint32 `json:"start_index"`

	VertexBufferOffsets [3]uint32 `json:"vertex_buffer_offsets"`
	VertexBufferStrides [3]uint8  `json:"vertex_buffer_strides"`

	VertexStreamCount uint8 `json:"vertex_stream_count"`
}

// Submesh is one index sub-range of a mesh.
type Submesh struct {
	IndexOffset uint32 `json:"index_offset"`
	IndexCount  uint32 `json:"index_count"`

	AttributeIndexMask uint32 `json:"attribute_index_mask"`

	BoneStartIndex uint16 `json:"bone_start_index"`
	BoneCount      uint16 `json:"bone_count"`
}

// BoneTable maps a mesh's local bone slots to skeleton bones.
type BoneTable struct {
	BoneIndices [64]uint16 `json:"bone_indices"`
	BoneCount   uint8      `json:"bone_count"`
	Padding     [3]uint8   `json:"-"`
}

// BoundingBox is a min/max pair in homogeneous coordinates.
type BoundingBox struct {
	Min [4]float32 `json:"min"`
	Max [4]float32 `json:"max"`
}

// ElementID attaches an element to a parent bone with a transform.
type ElementID struct {
	ElementID      uint32     `json:"element_id"`
	ParentBoneName uint32     `json:"parent_bone_name"`
	Translate      [3]float32 `json:"translate"`
	Rotate         [3]float32 `json:"rotate"`
}

// ModelData is the model data region: header, per-LOD descriptors, meshes,
// name offset tables, bone tables and bounding boxes.
type ModelData struct {
	Header ModelHeader `json:"header"`

	ElementIDs []ElementID `json:"element_ids"`
	Lods       [3]MeshLod  `json:"lods"`
	Meshes     []Mesh      `json:"meshes"`

	AttributeNameOffsets []uint32  `json:"attribute_name_offsets"`
	Submeshes            []Submesh `json:"submeshes"`
	MaterialNameOffsets  []uint32  `json:"material_name_offsets"`
	BoneNameOffsets      []uint32  `json:"bone_name_offsets"`

	BoneTables []BoneTable `json:"bone_tables"`

	SubmeshBoneMap []uint16 `json:"submesh_bone_map"`

	PaddingAmount uint8 `json:"-"`

	BoundingBox            BoundingBox `json:"bounding_box"`
	ModelBoundingBox       BoundingBox `json:"model_bounding_box"`
	WaterBoundingBox       BoundingBox `json:"water_bounding_box"`
	VerticalFogBoundingBox BoundingBox `json:"vertical_fog_bounding_box"`

	BoneBoundingBoxes []BoundingBox `json:"bone_bounding_boxes"`
}

func (m *ModelData) read(r io.ReadSeeker) error {
	header := &m.Header
	var pre struct {
		StringCount uint16
		Padding     uint16
		StringSize  uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &pre); err != nil {
		return corrupt("mdl data", "truncated header")
	}
	header.StringCount = pre.StringCount
	header.StringSize = pre.StringSize

	header.Strings = make([]byte, header.StringSize)
	if _, err := io.ReadFull(r, header.Strings); err != nil {
		return corrupt("mdl data", "truncated string pool")
	}

	var fixed modelHeaderFixed
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return corrupt("mdl data", "truncated header")
	}
	header.Radius = fixed.Radius
	header.MeshCount = fixed.MeshCount
	header.AttributeCount = fixed.AttributeCount
	header.SubmeshCount = fixed.SubmeshCount
	header.MaterialCount = fixed.MaterialCount
	header.BoneCount = fixed.BoneCount
	header.BoneTableCount = fixed.BoneTableCount
	header.ShapeCount = fixed.ShapeCount
	header.ShapeMeshCount = fixed.ShapeMeshCount
	header.ShapeValueCount = fixed.ShapeValueCount
	header.LodCount = fixed.LodCount
	header.Flags1 = fixed.Flags1
	header.ElementIDCount = fixed.ElementIDCount
	header.TerrainShadowMeshCount = fixed.TerrainShadowMeshCount
	header.Flags2 = fixed.Flags2
	header.ModelClipOutOfDistance = fixed.ModelClipOutOfDistance
	header.ShadowClipOutOfDistance = fixed.ShadowClipOutOfDistance
	header.TerrainShadowSubmeshCount = fixed.TerrainShadowSubmeshCount
	header.BGChangeMaterialIndex = fixed.BGChangeMaterialIndex
	header.BGCrestChangeMaterialIndex = fixed.BGCrestChangeMaterialIndex

	m.ElementIDs = make([]ElementID, header.ElementIDCount)
	if err := binary.Read(r, binary.LittleEndian, &m.ElementIDs); err != nil {
		return corrupt("mdl data", "truncated element ids")
	}
	if err := binary.Read(r, binary.LittleEndian, &m.Lods); err != nil {
		return corrupt("mdl data", "truncated lod table")
	}
	m.Meshes = make([]Mesh, header.MeshCount)
	if err := binary.Read(r, binary.LittleEndian, &m.Meshes); err != nil {
		return corrupt("mdl data", "truncated mesh table")
	}
	m.AttributeNameOffsets = make([]uint32, header.AttributeCount)
	if err := binary.Read(r, binary.LittleEndian, &m.AttributeNameOffsets); err != nil {
		return corrupt("mdl data", "truncated attribute names")
	}
	m.Submeshes = make([]Submesh, header.SubmeshCount)
	if err := binary.Read(r, binary.LittleEndian, &m.Submeshes); err != nil {
		return corrupt("mdl data", "truncated submesh table")
	}
	m.MaterialNameOffsets = make([]uint32, header.MaterialCount)
	if err := binary.Read(r, binary.LittleEndian, &m.MaterialNameOffsets); err != nil {
		return corrupt("mdl data", "truncated material names")
	}
	m.BoneNameOffsets = make([]uint32, header.BoneCount)
	if err := binary.Read(r, binary.LittleEndian, &m.BoneNameOffsets); err != nil {
		return corrupt("mdl data", "truncated bone names")
	}
	m.BoneTables = make([]BoneTable, header.BoneTableCount)
	if err := binary.Read(r, binary.LittleEndian, &m.BoneTables); err != nil {
		return corrupt("mdl data", "truncated bone tables")
	}

	var submeshBoneMapSize uint32
	if err := binary.Read(r, binary.LittleEndian, &submeshBoneMapSize); err != nil {
		return corrupt("mdl data", "truncated submesh bone map")
	}
	m.SubmeshBoneMap = make([]uint16, submeshBoneMapSize/2)
	if err := binary.Read(r, binary.LittleEndian, &m.SubmeshBoneMap); err != nil {
		return corrupt("mdl data", "truncated submesh bone map")
	}

	if err := binary.Read(r, binary.LittleEndian, &m.PaddingAmount); err != nil {
		return corrupt("mdl data", "truncated padding")
	}
	if _, err := r.Seek(int64(m.PaddingAmount), io.SeekCurrent); err != nil {
		return corrupt("mdl data", "truncated padding")
	}

	boxes := []*BoundingBox{&m.BoundingBox, &m.ModelBoundingBox,
		&m.WaterBoundingBox, &m.VerticalFogBoundingBox}
	for _, box := range boxes {
		if err := binary.Read(r, binary.LittleEndian, box); err != nil {
			return corrupt("mdl data", "truncated bounding boxes")
		}
	}
	m.BoneBoundingBoxes = make([]BoundingBox, header.BoneCount)
	if err := binary.Read(r, binary.LittleEndian, &m.BoneBoundingBoxes); err != nil {
		return corrupt("mdl data", "truncated bone bounding boxes")
	}

	return nil
}

func (m *ModelData) write(w io.Writer) error {
	header := &m.Header
	pre := struct {
		StringCount uint16
		Padding     uint16
		StringSize  uint32
	}{
		StringCount: header.StringCount,
		StringSize:  header.StringSize,
	}
	if err := binary.Write(w, binary.LittleEndian, pre); err != nil {
		return err
	}
	if _, err := w.Write(header.Strings); err != nil {
		return err
	}

	fixed := modelHeaderFixed{
		Radius:                     header.Radius,
		MeshCount:                  header.MeshCount,
		AttributeCount:             header.AttributeCount,
		SubmeshCount:               header.SubmeshCount,
		MaterialCount:              header.MaterialCount,
		BoneCount:                  header.BoneCount,
		BoneTableCount:             header.BoneTableCount,
		ShapeCount:                 header.ShapeCount,
		ShapeMeshCount:             header.ShapeMeshCount,
		ShapeValueCount:            header.ShapeValueCount,
		LodCount:                   header.LodCount,
		Flags1:                     header.Flags1,
		ElementIDCount:             header.ElementIDCount,
		TerrainShadowMeshCount:     header.TerrainShadowMeshCount,
		Flags2:                     header.Flags2,
		ModelClipOutOfDistance:     header.ModelClipOutOfDistance,
		ShadowClipOutOfDistance:    header.ShadowClipOutOfDistance,
		TerrainShadowSubmeshCount:  header.TerrainShadowSubmeshCount,
		BGChangeMaterialIndex:      header.BGChangeMaterialIndex,
		BGCrestChangeMaterialIndex: header.BGCrestChangeMaterialIndex,
	}
	if err := binary.Write(w, binary.LittleEndian, fixed); err != nil {
		return err
	}

	for _, v := range []interface{}{
		m.ElementIDs, m.Lods, m.Meshes, m.AttributeNameOffsets,
		m.Submeshes, m.MaterialNameOffsets, m.BoneNameOffsets, m.BoneTables,
		uint32(len(m.SubmeshBoneMap) * 2), m.SubmeshBoneMap,
		m.PaddingAmount, make([]byte, m.PaddingAmount),
		m.BoundingBox, m.ModelBoundingBox, m.WaterBoundingBox,
		m.VerticalFogBoundingBox, m.BoneBoundingBoxes,
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// CalculateRuntimeSize computes the stored size of the model data region
// from its counts.
func (m *ModelData) CalculateRuntimeSize() uint32 {
	return 2 + // StringCount
		2 + // padding
		4 + // StringSize
		m.Header.StringSize +
		56 + // fixed model header
		uint32(len(m.ElementIDs))*32 +
		3*60 + // LOD table
		uint32(len(m.Meshes))*36 +
		uint32(len(m.AttributeNameOffsets))*4 +
		uint32(m.Header.TerrainShadowMeshCount)*20 +
		uint32(m.Header.SubmeshCount)*16 +
		uint32(m.Header.TerrainShadowSubmeshCount)*10 +
		uint32(len(m.MaterialNameOffsets))*4 +
		uint32(len(m.BoneNameOffsets))*4 +
		uint32(len(m.BoneTables))*132 +
		uint32(m.Header.ShapeCount)*16 +
		uint32(m.Header.ShapeMeshCount)*12 +
		uint32(m.Header.ShapeValueCount)*4 +
		4 + // SubmeshBoneMapSize
		uint32(len(m.SubmeshBoneMap))*2 +
		8 + // PaddingAmount and padding
		4*32 + // bounding boxes
		uint32(m.Header.BoneCount)*32
}

// Vertex is one fully decoded vertex with every attribute the documented
// element matrix can carry.
type Vertex struct {
	Position   [3]float32 `json:"position"`
	UV0        [2]float32 `json:"uv0"`
	UV1        [2]float32 `json:"uv1"`
	Normal     [3]float32 `json:"normal"`
	BiTangent  [4]float32 `json:"bitangent"`
	Color      [4]float32 `json:"color"`
	BoneWeight [4]float32 `json:"bone_weight"`
	BoneID     [4]uint8   `json:"bone_id"`
}

// SubMesh is the decoded view of one submesh range.
type SubMesh struct {
	SubmeshIndex int    `json:"submesh_index"`
	IndexCount   uint32 `json:"index_count"`
	IndexOffset  uint32 `json:"index_offset"`
}

// Part is the decoded geometry of one mesh within one LOD.
type Part struct {
	MeshIndex     uint16    `json:"mesh_index"`
	Vertices      []Vertex  `json:"vertices"`
	Indices       []uint16  `json:"indices"`
	MaterialIndex uint16    `json:"material_index"`
	Submeshes     []SubMesh `json:"submeshes"`
}

// Lod is the decoded geometry of one level of detail.
type Lod struct {
	Parts []Part `json:"parts"`
}

// MDL is a fully parsed model. Mutations through ReplaceVertices keep the
// header offsets consistent so WriteBuffer re-emits a valid file.
type MDL struct {
	FileHeader ModelFileHeader `json:"file_header"`
	ModelData  ModelData       `json:"model_data"`

	Lods              []Lod    `json:"lods"`
	AffectedBoneNames []string `json:"affected_bone_names"`
	MaterialNames     []string `json:"material_names"`
}

// readPoolString reads the NUL-terminated string at offset within the
// string pool.
func readPoolString(pool []byte, offset uint32) (string, error) {
	if offset >= uint32(len(pool)) {
		return "", corrupt("mdl data", "string offset 0x%x beyond pool", offset)
	}
	end := bytes.IndexByte(pool[offset:], 0)
	if end < 0 {
		return "", corrupt("mdl data", "unterminated string at 0x%x", offset)
	}
	return string(pool[offset : int(offset)+end]), nil
}

// ParseMDL parses a model file from a memory buffer, usually one returned
// by GameData.Extract.
func ParseMDL(data []byte) (*MDL, error) {
	r := bytes.NewReader(data)

	mdl := MDL{}
	if err := mdl.FileHeader.read(r); err != nil {
		return nil, err
	}
	if err := mdl.ModelData.read(r); err != nil {
		return nil, err
	}

	for _, offset := range mdl.ModelData.BoneNameOffsets {
		name, err := readPoolString(mdl.ModelData.Header.Strings, offset)
		if err != nil {
			return nil, err
		}
		mdl.AffectedBoneNames = append(mdl.AffectedBoneNames, name)
	}
	for _, offset := range mdl.ModelData.MaterialNameOffsets {
		name, err := readPoolString(mdl.ModelData.Header.Strings, offset)
		if err != nil {
			return nil, err
		}
		mdl.MaterialNames = append(mdl.MaterialNames, name)
	}

	for i := uint8(0); i < mdl.ModelData.Header.LodCount; i++ {
		lod := &mdl.ModelData.Lods[i]
		parts := make([]Part, 0, lod.MeshCount)

		for j := lod.MeshIndex; j < lod.MeshIndex+lod.MeshCount; j++ {
			if int(j) >= len(mdl.FileHeader.VertexDeclarations) {
				return nil, corrupt("mdl data",
					"mesh %d has no vertex declaration", j)
			}
			declaration := &mdl.FileHeader.VertexDeclarations[j]
			mesh := &mdl.ModelData.Meshes[j]

			vertices := make([]Vertex, mesh.VertexCount)
			for k := uint16(0); k < mesh.VertexCount; k++ {
				for _, element := range declaration.Elements {
					at := int64(lod.VertexDataOffset) +
						int64(mesh.VertexBufferOffsets[element.Stream]) +
						int64(element.Offset) +
						int64(mesh.VertexBufferStrides[element.Stream])*int64(k)
					if _, err := r.Seek(at, io.SeekStart); err != nil {
						return nil, corrupt("mdl vertex",
							"seek 0x%x beyond buffer", at)
					}
					if err := readVertexElement(r, element, &vertices[k]); err != nil {
						return nil, err
					}
				}
			}

			indexAt := int64(mdl.FileHeader.IndexOffsets[i]) +
				int64(mesh.StartIndex)*2
			if _, err := r.Seek(indexAt, io.SeekStart); err != nil {
				return nil, corrupt("mdl index", "seek 0x%x beyond buffer", indexAt)
			}
			indices := make([]uint16, mesh.IndexCount)
			if err := binary.Read(r, binary.LittleEndian, &indices); err != nil {
				return nil, corrupt("mdl index", "truncated index buffer")
			}

			submeshes := make([]SubMesh, 0, mesh.SubmeshCount)
			for s := uint16(0); s < mesh.SubmeshCount; s++ {
				index := int(mesh.SubmeshIndex) + int(s)
				if index >= len(mdl.ModelData.Submeshes) {
					return nil, corrupt("mdl data",
						"submesh %d beyond submesh table", index)
				}
				submeshes = append(submeshes, SubMesh{
					SubmeshIndex: index,
					IndexCount:   mdl.ModelData.Submeshes[index].IndexCount,
					IndexOffset:  mdl.ModelData.Submeshes[index].IndexOffset,
				})
			}

			parts = append(parts, Part{
				MeshIndex:     j,
				Vertices:      vertices,
				Indices:       indices,
				MaterialIndex: mesh.MaterialIndex,
				Submeshes:     submeshes,
			})
		}

		mdl.Lods = append(mdl.Lods, Lod{Parts: parts})
	}

	return &mdl, nil
}

// readVertexElement decodes one attribute into the vertex according to the
// element's (usage, type) pair.
func readVertexElement(r io.Reader, element VertexElement, vertex *Vertex) error {
	switch element.Usage {
	case VertexUsagePosition:
		switch element.Type {
		case VertexTypeHalf4:
			v, err := readHalf4(r)
			if err != nil {
				return err
			}
			copy(vertex.Position[:], v[:3])
		case VertexTypeSingle3:
			v, err := readSingle3(r)
			if err != nil {
				return err
			}
			vertex.Position = v
		default:
			return unsupportedElement(element)
		}
	case VertexUsageBlendWeights:
		if element.Type != VertexTypeByteFloat4 {
			return unsupportedElement(element)
		}
		v, err := readByteFloat4(r)
		if err != nil {
			return err
		}
		vertex.BoneWeight = v
	case VertexUsageBlendIndices:
		if element.Type != VertexTypeUInt {
			return unsupportedElement(element)
		}
		v, err := readUInt(r)
		if err != nil {
			return err
		}
		vertex.BoneID = v
	case VertexUsageNormal:
		switch element.Type {
		case VertexTypeHalf4:
			v, err := readHalf4(r)
			if err != nil {
				return err
			}
			copy(vertex.Normal[:], v[:3])
		case VertexTypeSingle3:
			v, err := readSingle3(r)
			if err != nil {
				return err
			}
			vertex.Normal = v
		default:
			return unsupportedElement(element)
		}
	case VertexUsageUV:
		switch element.Type {
		case VertexTypeHalf4:
			v, err := readHalf4(r)
			if err != nil {
				return err
			}
			vertex.UV0 = [2]float32{v[0], v[1]}
			vertex.UV1 = [2]float32{v[2], v[3]}
		case VertexTypeSingle4:
			v, err := readSingle4(r)
			if err != nil {
				return err
			}
			vertex.UV0 = [2]float32{v[0], v[1]}
			vertex.UV1 = [2]float32{v[2], v[3]}
		default:
			return unsupportedElement(element)
		}
	case VertexUsageBiTangent:
		if element.Type != VertexTypeByteFloat4 {
			return unsupportedElement(element)
		}
		v, err := readTangent(r)
		if err != nil {
			return err
		}
		vertex.BiTangent = v
	case VertexUsageTangent:
		// No type is documented for the Tangent usage.
		return unsupportedElement(element)
	case VertexUsageColor:
		if element.Type != VertexTypeByteFloat4 {
			return unsupportedElement(element)
		}
		v, err := readByteFloat4(r)
		if err != nil {
			return err
		}
		vertex.Color = v
	default:
		return unsupportedElement(element)
	}
	return nil
}

// writeVertexElement is the encoding inverse of readVertexElement.
func writeVertexElement(w io.Writer, element VertexElement, vertex *Vertex) error {
	switch element.Usage {
	case VertexUsagePosition:
		switch element.Type {
		case VertexTypeHalf4:
			return writeHalf4(w, padSlice3(vertex.Position, 1.0))
		case VertexTypeSingle3:
			return writeSingle3(w, vertex.Position)
		}
	case VertexUsageBlendWeights:
		if element.Type == VertexTypeByteFloat4 {
			return writeByteFloat4(w, vertex.BoneWeight)
		}
	case VertexUsageBlendIndices:
		if element.Type == VertexTypeUInt {
			return writeUInt(w, vertex.BoneID)
		}
	case VertexUsageNormal:
		switch element.Type {
		case VertexTypeHalf4:
			return writeHalf4(w, padSlice3(vertex.Normal, 1.0))
		case VertexTypeSingle3:
			return writeSingle3(w, vertex.Normal)
		}
	case VertexUsageUV:
		combined := [4]float32{vertex.UV0[0], vertex.UV0[1],
			vertex.UV1[0], vertex.UV1[1]}
		switch element.Type {
		case VertexTypeHalf4:
			return writeHalf4(w, combined)
		case VertexTypeSingle4:
			return writeSingle4(w, combined)
		}
	case VertexUsageBiTangent:
		if element.Type == VertexTypeByteFloat4 {
			return writeTangent(w, vertex.BiTangent)
		}
	case VertexUsageColor:
		if element.Type == VertexTypeByteFloat4 {
			return writeByteFloat4(w, vertex.Color)
		}
	}
	return unsupportedElement(element)
}

func unsupportedElement(element VertexElement) error {
	return fmt.Errorf("%w: usage %d type %d", ErrUnsupportedVertexElement,
		element.Usage, element.Type)
}

func padSlice3(v [3]float32, fill float32) [4]float32 {
	return [4]float32{v[0], v[1], v[2], fill}
}

// ReplaceVertices swaps in new geometry for one part and recomputes every
// offset, stride sum, buffer size and header size so the model
// re-serializes consistently.
func (m *MDL) ReplaceVertices(lodIndex, partIndex int, vertices []Vertex,
	indices []uint16, submeshes []SubMesh) {

	part := &m.Lods[lodIndex].Parts[partIndex]
	part.Vertices = append([]Vertex(nil), vertices...)
	part.Indices = append([]uint16(nil), indices...)

	for i, submesh := range part.Submeshes {
		if i < len(submeshes) {
			m.ModelData.Submeshes[submesh.SubmeshIndex].IndexOffset =
				submeshes[i].IndexOffset
			m.ModelData.Submeshes[submesh.SubmeshIndex].IndexCount =
				submeshes[i].IndexCount
		}
	}

	mesh := &m.ModelData.Meshes[part.MeshIndex]
	mesh.VertexCount = uint16(len(part.Vertices))
	mesh.IndexCount = uint32(len(part.Indices))

	// Relayout every mesh's stream offsets and start index within its LOD.
	for i := uint8(0); i < m.FileHeader.LodCount; i++ {
		lod := &m.ModelData.Lods[i]
		var vertexOffset, indexCount uint32

		for j := lod.MeshIndex; j < lod.MeshIndex+lod.MeshCount; j++ {
			mesh := &m.ModelData.Meshes[j]

			mesh.StartIndex = indexCount
			indexCount += mesh.IndexCount

			for s := uint8(0); s < mesh.VertexStreamCount; s++ {
				mesh.VertexBufferOffsets[s] = vertexOffset
				vertexOffset += uint32(mesh.VertexCount) *
					uint32(mesh.VertexBufferStrides[s])
			}
		}
	}

	// Recompute each LOD's buffer sizes; the index region is padded to a
	// 16-byte boundary.
	for i := range m.ModelData.Lods {
		lod := &m.ModelData.Lods[i]
		var vertexBufferSize, indexBufferSize uint32

		for j := lod.MeshIndex; j < lod.MeshIndex+lod.MeshCount; j++ {
			mesh := &m.ModelData.Meshes[j]

			var strideSum uint32
			for s := uint8(0); s < mesh.VertexStreamCount; s++ {
				strideSum += uint32(mesh.VertexBufferStrides[s])
			}

			vertexBufferSize += uint32(mesh.VertexCount) * strideSum
			indexBufferSize += mesh.IndexCount * 2
		}

		indexPadding := 16 - indexBufferSize%16
		if indexPadding == 16 {
			indexPadding = 0
		}

		lod.VertexBufferSize = vertexBufferSize
		lod.IndexBufferSize = indexBufferSize + indexPadding
	}

	m.FileHeader.StackSize = m.FileHeader.CalculateStackSize()
	m.FileHeader.RuntimeSize = m.ModelData.CalculateRuntimeSize()

	// Chain the region offsets: stack and runtime first, then alternating
	// vertex and index regions per LOD.
	offset := mdlFileHeaderSize + m.FileHeader.StackSize + m.FileHeader.RuntimeSize
	for i := range m.ModelData.Lods {
		lod := &m.ModelData.Lods[i]

		lod.VertexDataOffset = offset
		offset += lod.VertexBufferSize

		lod.IndexDataOffset = offset
		lod.EdgeGeometryDataOffset = offset
		offset += lod.IndexBufferSize
	}

	for i := 0; i < len(m.Lods) && i < 3; i++ {
		m.FileHeader.VertexOffsets[i] = m.ModelData.Lods[i].VertexDataOffset
		m.FileHeader.IndexOffsets[i] = m.ModelData.Lods[i].IndexDataOffset
		m.FileHeader.VertexBufferSize[i] = m.ModelData.Lods[i].VertexBufferSize
		m.FileHeader.IndexBufferSize[i] = m.ModelData.Lods[i].IndexBufferSize
	}
}

// WriteBuffer re-serializes the model. For a model that was parsed and not
// mutated, the output is byte-equal to the input, padding regions zeroed.
func (m *MDL) WriteBuffer() ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}

	m.FileHeader.write(ws)
	if err := writeVertexDeclarations(ws, m.FileHeader.VertexDeclarations); err != nil {
		return nil, err
	}
	if err := m.ModelData.write(ws); err != nil {
		return nil, err
	}

	for l, lod := range m.Lods {
		meshLod := &m.ModelData.Lods[l]

		for _, part := range lod.Parts {
			declaration := &m.FileHeader.VertexDeclarations[part.MeshIndex]
			mesh := &m.ModelData.Meshes[part.MeshIndex]

			for k := range part.Vertices {
				for _, element := range declaration.Elements {
					at := int64(meshLod.VertexDataOffset) +
						int64(mesh.VertexBufferOffsets[element.Stream]) +
						int64(element.Offset) +
						int64(mesh.VertexBufferStrides[element.Stream])*int64(k)
					if _, err := ws.Seek(at, io.SeekStart); err != nil {
						return nil, err
					}
					if err := writeVertexElement(ws, element,
						&part.Vertices[k]); err != nil {
						return nil, err
					}
				}
			}

			indexAt := int64(m.FileHeader.IndexOffsets[l]) +
				int64(mesh.StartIndex)*2
			if _, err := ws.Seek(indexAt, io.SeekStart); err != nil {
				return nil, err
			}
			if err := binary.Write(ws, binary.LittleEndian, part.Indices); err != nil {
				return nil, err
			}
		}
	}

	// Zero-extend through the final LOD's index padding so the buffer
	// covers every declared region.
	if m.FileHeader.LodCount > 0 {
		last := m.FileHeader.LodCount - 1
		end := int64(m.FileHeader.IndexOffsets[last]) +
			int64(m.FileHeader.IndexBufferSize[last])
		if end > ws.BytesReader().Size() {
			if _, err := ws.Seek(end-1, io.SeekStart); err != nil {
				return nil, err
			}
			if _, err := ws.Write([]byte{0}); err != nil {
				return nil, err
			}
		}
	}

	return io.ReadAll(ws.BytesReader())
}
