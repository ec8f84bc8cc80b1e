// ABOUTME: Chunk is a fragment of an ingested document stored for retrieval
// ABOUTME: Chunks belong to a domain (one per label plus a shared pool)
package models

import "fmt"

// ChunkType represents the granularity a chunk was split at
type ChunkType string

const (
	ChunkTypeDocument  ChunkType = "DOCUMENT"
	ChunkTypeParagraph ChunkType = "PARAGRAPH"
	ChunkTypeSentence  ChunkType = "SENTENCE"
)

// IsValid reports whether the chunk type is known
func (t ChunkType) IsValid() bool {
	return t == ChunkTypeDocument || t == ChunkTypeParagraph || t == ChunkTypeSentence
}

// Domain is a retrieval partition. Every label is a domain, plus DomainShared.
type Domain string

// DomainShared holds documents visible to no single handler in particular
const DomainShared Domain = "shared"

// Domains lists every retrieval domain
func Domains() []Domain {
	domains := make([]Domain, 0, len(Labels)+1)
	for _, l := range Labels {
		domains = append(domains, Domain(l))
	}
	return append(domains, DomainShared)
}

// ParseDomain validates a domain name
func ParseDomain(name string) (Domain, error) {
	for _, d := range Domains() {
		if string(d) == name {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", name)
}

// Chunk represents a piece of a document with its source metadata
type Chunk struct {
	ChunkID   string    `json:"chunk_id"`
	ChunkType ChunkType `json:"chunk_type"`
	Domain    Domain    `json:"domain"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
}
