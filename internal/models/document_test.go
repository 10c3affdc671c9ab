package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExtraction(t *testing.T) {
	v1 := ManifestSchemaV1
	v9 := 9

	tests := []struct {
		name      string
		version   *int
		raw       string
		status    string
		processed bool
	}{
		{"no payload", nil, "", ExtractionAbsent, false},
		{"json null", &v1, "null", ExtractionAbsent, false},
		{"v1 manifest", &v1, `{"supplier":"Acme","lines":[{"sku":"X","quantity":4}],"total_quantity":4}`, ExtractionPresent, true},
		{"unknown version", &v9, `{"supplier":"Acme"}`, ExtractionUnreadable, false},
		{"missing version", nil, `{"supplier":"Acme"}`, ExtractionUnreadable, false},
		{"broken json", &v1, `{"supplier":`, ExtractionUnreadable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ParseExtraction(tt.version, []byte(tt.raw))
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.processed, e.Processed())
		})
	}
}

func TestLocationHeadroom(t *testing.T) {
	assert.Equal(t, int64(60), Location{Capacity: 60}.Headroom())
	assert.Equal(t, int64(10), Location{Capacity: 60, Occupied: 50}.Headroom())
	assert.Equal(t, int64(0), Location{Capacity: 60, Occupied: 70}.Headroom())
}
