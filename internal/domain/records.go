package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt decodes either a JSON number or a numeric string. Records produced
// by older exporters carry chunk_index and page_number as strings.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}

	quoted := len(b) > 0 && b[0] == '"'
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" {
		*f = 0
		return nil
	}

	if n, err := strconv.Atoi(s); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexInt(int(v))
		return nil
	}
	if quoted {
		// free text such as "n/a" means unknown
		*f = 0
		return nil
	}
	return fmt.Errorf("invalid integer value %s", b)
}

// ChunkRecord is the JSON form of a Chunk used by record files, the HTTP API
// and the local store.
type ChunkRecord struct {
	DocumentID  string    `json:"document_id"`
	DiseaseType string    `json:"disease_type"`
	DiseaseName string    `json:"disease_name"`
	DiseaseID   string    `json:"disease_id"`
	ChunkID     string    `json:"chunk_id"`
	ChunkIndex  FlexInt   `json:"chunk_index"`
	SectionType string    `json:"section_type"`
	PageNumber  FlexInt   `json:"page_number"`
	SectionText string    `json:"section_text"`
	Vector      []float32 `json:"dense_vector,omitempty"`
}

func (r ChunkRecord) Chunk() Chunk {
	return Chunk{
		DocumentID:  r.DocumentID,
		DiseaseType: r.DiseaseType,
		DiseaseName: r.DiseaseName,
		DiseaseID:   r.DiseaseID,
		ChunkID:     r.ChunkID,
		ChunkIndex:  int(r.ChunkIndex),
		SectionType: r.SectionType,
		PageNumber:  int(r.PageNumber),
		SectionText: r.SectionText,
		Vector:      r.Vector,
	}
}

func RecordFromChunk(c Chunk) ChunkRecord {
	return ChunkRecord{
		DocumentID:  c.DocumentID,
		DiseaseType: c.DiseaseType,
		DiseaseName: c.DiseaseName,
		DiseaseID:   c.DiseaseID,
		ChunkID:     c.ChunkID,
		ChunkIndex:  FlexInt(c.ChunkIndex),
		SectionType: c.SectionType,
		PageNumber:  FlexInt(c.PageNumber),
		SectionText: c.SectionText,
		Vector:      c.Vector,
	}
}

// ToChunks converts records in order.
func ToChunks(records []ChunkRecord) []Chunk {
	chunks := make([]Chunk, len(records))
	for i, r := range records {
		chunks[i] = r.Chunk()
	}
	return chunks
}
