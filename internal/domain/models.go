// Path: internal/domain/models.go
package domain

// Record represents the metadata for a single harvested arXiv paper.
// Header fields come from the OAI-PMH record header; the remaining fields
// are the Dublin Core metadata block. Multi-valued fields preserve the
// order they appear in on the wire.
type Record struct {
	Identifier string   // globally unique within the repository
	Datestamp  string   // YYYY-MM-DD, last modification at the source
	SetSpecs   []string // set memberships, duplicates kept as received

	Creators    []string
	Dates       []string
	Description string
	Identifiers []string // metadata-level identifiers (URLs, DOIs)
	Subjects    []string
	Titles      []string
	Type        string
}

// Valid reports whether the record can be ingested. A record without an
// identifier has no upsert key and is dropped before reaching storage.
func (r Record) Valid() bool {
	return r.Identifier != ""
}
