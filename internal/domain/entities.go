package domain

// Chunk is one stored disease-reference passage together with its embedding.
// Values are treated as immutable once built; a chunk is replaced only by
// inserting another one with the same ChunkID.
type Chunk struct {
	DocumentID  string
	DiseaseType string
	DiseaseName string
	DiseaseID   string
	ChunkID     string
	ChunkIndex  int
	SectionType string
	PageNumber  int // 0 when unknown
	SectionText string
	Vector      []float32
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Source is a citation returned alongside an answer.
type Source struct {
	DiseaseName    string `json:"disease_name"`
	SectionType    string `json:"section_type"`
	PageNumber     int    `json:"page_number"`
	ContentPreview string `json:"content_preview"`
}

type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Message is a single chat turn sent to a completion model.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Defaults applied when an optional chunk field is missing at answer time.
const (
	DefaultDiseaseName = "Unidentified disease"
	DefaultSectionType = "section"
)

// DisplayName returns the disease name or its documented default.
func (c Chunk) DisplayName() string {
	if c.DiseaseName == "" {
		return DefaultDiseaseName
	}
	return c.DiseaseName
}

// DisplaySection returns the section type or its documented default.
func (c Chunk) DisplaySection() string {
	if c.SectionType == "" {
		return DefaultSectionType
	}
	return c.SectionType
}

// CollectionSchema describes the field layout a collection is created with.
type CollectionSchema struct {
	Name      string
	Dimension int
	Metric    string
	Version   int
}

// MetricInnerProduct is the only similarity metric collections are built with.
const MetricInnerProduct = "IP"

// ChunkFields is the scalar field layout of a collection, in storage order.
var ChunkFields = []string{
	"chunk_id",
	"document_id",
	"disease_type",
	"disease_name",
	"disease_id",
	"chunk_index",
	"section_type",
	"page_number",
	"section_text",
	"dense_vector",
}

// MaxSectionTextLen bounds section_text the same way the remote schema does.
const MaxSectionTextLen = 65535
