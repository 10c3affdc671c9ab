package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Notification types
const (
	NotificationRequestApproved = "request_approved"
	NotificationRequestRejected = "request_rejected"
)

// NotificationPayloadVersion is the envelope version written by this service
const NotificationPayloadVersion = 1

var ErrUnknownNotification = errors.New("unknown notification payload")

// NotificationPayload is implemented only by the payload types in this file.
type NotificationPayload interface {
	NotificationType() string
	notificationPayload()
}

// Recipient is the delivery address captured when the notification was enqueued
type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type AllocationLine struct {
	LocationID   int64  `json:"location_id"`
	LocationName string `json:"location_name"`
	Quantity     int64  `json:"quantity"`
}

type RequestApprovedPayload struct {
	RequestID     int64            `json:"request_id"`
	ReferenceCode string           `json:"reference_code"`
	Recipient     Recipient        `json:"recipient"`
	Quantity      int64            `json:"quantity"`
	Allocations   []AllocationLine `json:"allocations"`
}

func (RequestApprovedPayload) NotificationType() string { return NotificationRequestApproved }
func (RequestApprovedPayload) notificationPayload()     {}

// LocationNames returns the allocated location names in allocation order.
func (p RequestApprovedPayload) LocationNames() []string {
	names := make([]string, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		names = append(names, a.LocationName)
	}
	return names
}

type RequestRejectedPayload struct {
	RequestID     int64     `json:"request_id"`
	ReferenceCode string    `json:"reference_code"`
	Recipient     Recipient `json:"recipient"`
	Reason        string    `json:"reason"`
}

func (RequestRejectedPayload) NotificationType() string { return NotificationRequestRejected }
func (RequestRejectedPayload) notificationPayload()     {}

type notificationEnvelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// EncodeNotification wraps a payload in the versioned envelope stored in the outbox.
func EncodeNotification(p NotificationPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(notificationEnvelope{
		Type:    p.NotificationType(),
		Version: NotificationPayloadVersion,
		Data:    data,
	})
}

// DecodeNotification is the inverse of EncodeNotification. It rejects
// unknown types and versions instead of guessing at their shape.
func DecodeNotification(raw []byte) (NotificationPayload, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode notification envelope: %w", err)
	}
	if env.Version != NotificationPayloadVersion {
		return nil, fmt.Errorf("%w: %s version %d", ErrUnknownNotification, env.Type, env.Version)
	}

	switch env.Type {
	case NotificationRequestApproved:
		var p RequestApprovedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return p, nil
	case NotificationRequestRejected:
		var p RequestRejectedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownNotification, env.Type)
	}
}
