// Package notify delivers outbox entries to customers or downstream consumers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"storage-backend/internal/models"
	"storage-backend/internal/sms"
	"storage-backend/internal/whatsapp"
)

// ErrNoRecipient is returned when a payload carries no usable phone number
var ErrNoRecipient = errors.New("notification has no phone number")

// Dispatcher delivers one outbox entry. Implementations must honour ctx and
// must tolerate the same entry being dispatched more than once.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry models.OutboxEntry) error
}

// Message is a rendered notification
type Message struct {
	Phone    string
	Text     string
	Template string
	Params   []string
}

// Render turns a payload into customer-facing text plus WhatsApp template params.
func Render(p models.NotificationPayload) Message {
	switch p := p.(type) {
	case models.RequestApprovedPayload:
		locations := strings.Join(p.LocationNames(), ", ")
		return Message{
			Phone: p.Recipient.Phone,
			Text: fmt.Sprintf("Hi %s, your storage request %s for %d units has been approved. Location: %s.",
				p.Recipient.Name, p.ReferenceCode, p.Quantity, locations),
			Template: models.NotificationRequestApproved,
			Params:   []string{p.Recipient.Name, p.ReferenceCode, strconv.FormatInt(p.Quantity, 10), locations},
		}
	case models.RequestRejectedPayload:
		return Message{
			Phone: p.Recipient.Phone,
			Text: fmt.Sprintf("Hi %s, your storage request %s was not approved. Reason: %s",
				p.Recipient.Name, p.ReferenceCode, p.Reason),
			Template: models.NotificationRequestRejected,
			Params:   []string{p.Recipient.Name, p.ReferenceCode, p.Reason},
		}
	}
	return Message{}
}

// MessagingDispatcher sends via WhatsApp first and falls back to SMS.
// Either channel may be nil.
type MessagingDispatcher struct {
	WhatsApp whatsapp.Provider
	SMS      sms.Provider
}

func (d *MessagingDispatcher) Dispatch(ctx context.Context, entry models.OutboxEntry) error {
	p, err := models.DecodeNotification(entry.Payload)
	if err != nil {
		return err
	}
	msg := Render(p)
	if msg.Phone == "" {
		return fmt.Errorf("%w: outbox entry %d", ErrNoRecipient, entry.ID)
	}

	if d.WhatsApp != nil {
		err := d.WhatsApp.SendTemplateMessage(ctx, msg.Phone, msg.Template, msg.Params)
		if err == nil {
			return nil
		}
		if d.SMS == nil || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", d.WhatsApp.GetName(), err)
		}
		log.Printf("[Notify] WhatsApp failed for entry %d, falling back to SMS: %v", entry.ID, err)
	}

	if d.SMS == nil {
		return errors.New("no messaging channel configured")
	}
	if err := d.SMS.SendSMS(ctx, msg.Phone, msg.Text); err != nil {
		return fmt.Errorf("%s: %w", d.SMS.GetName(), err)
	}
	return nil
}

// LogDispatcher only logs. Used in development and when no channel is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, entry models.OutboxEntry) error {
	p, err := models.DecodeNotification(entry.Payload)
	if err != nil {
		return err
	}
	msg := Render(p)
	log.Printf("[Notify] %s (entry %d, key %s) to %q: %s", entry.Type, entry.ID, entry.DedupeKey, msg.Phone, msg.Text)
	return ctx.Err()
}
