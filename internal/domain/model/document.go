package model

import "time"

type DocumentType string

const (
	DocLabReport  DocumentType = "lab_report"
	DocDischarge  DocumentType = "discharge_summary"
	DocImaging    DocumentType = "imaging_report"
	DocPrescript  DocumentType = "prescription"
	DocReferral   DocumentType = "referral"
	DocOtherNotes DocumentType = "other"
)

// Document is the stored metadata for an uploaded patient document.
// ContentText holds extracted plain text for search; it may be empty until
// the extraction worker has processed the upload.
type Document struct {
	ID          string
	PatientID   string
	Type        DocumentType
	Title       string
	FileName    string
	StoragePath string
	SizeBytes   int64
	ContentText string
	UploadedAt  time.Time
	IndexedAt   time.Time
}

// SearchResult pairs a document with its relevance score in [0,1].
type SearchResult struct {
	Document *Document
	Score    float64
}

// SearchQuery carries a free-text query plus optional filters.
type SearchQuery struct {
	Text      string
	PatientID string
	Type      DocumentType
	Limit     int
}
