package models

import (
	"encoding/json"
	"time"
)

// Extraction status. Only ExtractionPresent counts as a processed manifest.
const (
	ExtractionAbsent     = "absent"
	ExtractionPresent    = "present"
	ExtractionUnreadable = "unreadable"
)

// ManifestSchemaV1 is the only extraction schema version this service understands
const ManifestSchemaV1 = 1

// Document is a file attached to a load, e.g. a delivery manifest.
type Document struct {
	ID         int64      `json:"id" db:"id"`
	LoadID     int64      `json:"load_id" db:"load_id"`
	FileName   string     `json:"file_name" db:"file_name"`
	Extraction Extraction `json:"extraction" db:"-"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Extraction is the structured payload produced by the (external) document extractor.
type Extraction struct {
	Status        string      `json:"status"`
	SchemaVersion int         `json:"schema_version,omitempty"`
	Manifest      *ManifestV1 `json:"manifest,omitempty"`
}

type ManifestV1 struct {
	Supplier      string         `json:"supplier"`
	Lines         []ManifestLine `json:"lines"`
	TotalQuantity int64          `json:"total_quantity"`
}

type ManifestLine struct {
	SKU         string `json:"sku"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
}

// Processed reports whether the document carries a usable extraction.
func (e Extraction) Processed() bool {
	return e.Status == ExtractionPresent && e.Manifest != nil
}

// ParseExtraction maps a stored (version, raw JSON) pair onto the closed Extraction type.
// A nil payload is absent; anything that is not a valid known version is unreadable.
func ParseExtraction(version *int, raw []byte) Extraction {
	if len(raw) == 0 || string(raw) == "null" {
		return Extraction{Status: ExtractionAbsent}
	}
	if version == nil || *version != ManifestSchemaV1 {
		v := 0
		if version != nil {
			v = *version
		}
		return Extraction{Status: ExtractionUnreadable, SchemaVersion: v}
	}

	var m ManifestV1
	if err := json.Unmarshal(raw, &m); err != nil {
		return Extraction{Status: ExtractionUnreadable, SchemaVersion: *version}
	}
	return Extraction{Status: ExtractionPresent, SchemaVersion: ManifestSchemaV1, Manifest: &m}
}
