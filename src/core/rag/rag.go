package rag

// Chunk is a retrieved span of corpus text together with the payload the
// vector store keeps alongside its embedding.
type Chunk struct {
	RecordID   string   `json:"record_id"`
	DocumentID string   `json:"document_id"`
	Content    string   `json:"content"`
	Source     string   `json:"source"` // human-readable citation label, e.g. "Điều 2 văn bản 59/2020/QH14"
	Categories []string `json:"categories,omitempty"`
	Score      float64  `json:"score"`   // similarity collapsed to [0,1] by the store
	Ordinal    int      `json:"ordinal"` // position of the chunk within its document
	Collection string   `json:"collection,omitempty"`
}

// ResultSet is the ranked output of one retrieval pass.
type ResultSet struct {
	Chunks       []Chunk  `json:"chunks"`
	Keywords     []string `json:"keywords,omitempty"`
	Insufficient bool     `json:"insufficient"`
}

// Contains reports whether the set holds a chunk with the given record ID.
func (rs ResultSet) Contains(recordID string) bool {
	for _, c := range rs.Chunks {
		if c.RecordID == recordID {
			return true
		}
	}
	return false
}

// Answer is a finalized, grounded response. Sources only ever name record IDs
// present in the ResultSet the generator was given.
type Answer struct {
	Text         string   `json:"text"`
	Sources      []string `json:"sources"`
	Insufficient bool     `json:"insufficient"`
}
