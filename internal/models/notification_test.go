package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotificationApproved(t *testing.T) {
	in := RequestApprovedPayload{
		RequestID:     7,
		ReferenceCode: "SR-0007",
		Recipient:     Recipient{Name: "Asha", Phone: "9876543210"},
		Quantity:      100,
		Allocations: []AllocationLine{
			{LocationID: 1, LocationName: "A-01", Quantity: 60},
			{LocationID: 2, LocationName: "A-02", Quantity: 40},
		},
	}

	raw, err := EncodeNotification(in)
	require.NoError(t, err)

	out, err := DecodeNotification(raw)
	require.NoError(t, err)

	got, ok := out.(RequestApprovedPayload)
	require.True(t, ok, "expected RequestApprovedPayload, got %T", out)
	assert.Equal(t, in, got)
	assert.Equal(t, []string{"A-01", "A-02"}, got.LocationNames())
}

func TestDecodeNotificationRejectsUnknownShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"type":"request_archived","version":1,"data":{}}`},
		{"future version", `{"type":"request_approved","version":2,"data":{}}`},
		{"missing version", `{"type":"request_rejected","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNotification([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrUnknownNotification)
		})
	}
}

func TestDecodeNotificationMalformed(t *testing.T) {
	_, err := DecodeNotification([]byte(`{"type":`))
	assert.Error(t, err)
}
