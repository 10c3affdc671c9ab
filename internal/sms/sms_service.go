package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://www.fast2sms.com/dev/bulkV2"

// Provider sends a single text message
type Provider interface {
	SendSMS(ctx context.Context, phone, message string) error
	GetName() string
}

// Config holds SMS configuration
type Config struct {
	Route    string // "q" (quick), "dlt" (registered templates), "v3" (promotional)
	SenderID string
	BaseURL  string
}

// Fast2SMSService implements Provider for Fast2SMS (India)
type Fast2SMSService struct {
	APIKey string
	Config Config
	client *http.Client
}

// NewFast2SMSService creates a new Fast2SMS service
func NewFast2SMSService(apiKey string, cfg Config) *Fast2SMSService {
	if cfg.Route == "" {
		cfg.Route = "q"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Fast2SMSService{
		APIKey: apiKey,
		Config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Fast2SMSService) GetName() string {
	return "Fast2SMS"
}

// SendSMS sends a single SMS message. The context bounds the HTTP call.
func (s *Fast2SMSService) SendSMS(ctx context.Context, phone, message string) error {
	q := url.Values{}
	q.Set("authorization", s.APIKey)
	q.Set("route", s.Config.Route)
	q.Set("message", message)
	q.Set("numbers", phone)
	switch s.Config.Route {
	case "dlt", "v3":
		q.Set("sender_id", s.Config.SenderID)
	}
	if s.Config.Route != "dlt" {
		q.Set("language", "english")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Config.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp struct {
		Return    bool   `json:"return"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("SMS API returned unreadable body: %w", err)
	}
	if !apiResp.Return {
		return fmt.Errorf("SMS API error: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// Message is one SMS captured by MockSMSService
type Message struct {
	Phone string
	Text  string
}

// MockSMSService logs messages instead of sending them and keeps a copy for tests.
type MockSMSService struct {
	// Err, when set, is returned by every send
	Err error

	mu   sync.Mutex
	sent []Message
}

func NewMockSMSService() *MockSMSService {
	return &MockSMSService{}
}

func (s *MockSMSService) GetName() string {
	return "Mock"
}

func (s *MockSMSService) SendSMS(ctx context.Context, phone, message string) error {
	if s.Err != nil {
		return s.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("[MockSMS] To: %s | %s", phone, message)

	s.mu.Lock()
	s.sent = append(s.sent, Message{Phone: phone, Text: message})
	s.mu.Unlock()
	return nil
}

// Sent returns the messages sent so far
func (s *MockSMSService) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
