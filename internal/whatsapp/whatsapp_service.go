package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider defines the interface for WhatsApp API providers. Business API
// providers only accept pre-registered templates.
type Provider interface {
	SendTemplateMessage(ctx context.Context, phone, templateName string, params []string) error
	GetName() string
}

// Config holds configuration for WhatsApp providers
type Config struct {
	Provider string // "aisensy" or "interakt"
	APIKey   string
	BaseURL  string
}

// NewProvider builds the configured provider
func NewProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("whatsapp: api key is required")
	}
	switch strings.ToLower(cfg.Provider) {
	case "aisensy", "":
		return NewAiSensyService(cfg.APIKey, cfg.BaseURL), nil
	case "interakt":
		return NewInteraktService(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("whatsapp: unsupported provider %q", cfg.Provider)
	}
}

// AiSensyService implements WhatsApp via AiSensy
type AiSensyService struct {
	config Config
	client *http.Client
}

func NewAiSensyService(apiKey, baseURL string) *AiSensyService {
	if baseURL == "" {
		baseURL = "https://backend.aisensy.com/campaign/t1/api/v2"
	}
	return &AiSensyService{
		config: Config{Provider: "aisensy", APIKey: apiKey, BaseURL: baseURL},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendTemplateMessage sends a campaign template message via AiSensy
func (s *AiSensyService) SendTemplateMessage(ctx context.Context, phone, templateName string, params []string) error {
	payload := map[string]interface{}{
		"apiKey":         s.config.APIKey,
		"campaignName":   templateName,
		"destination":    formatPhoneNumber(phone),
		"userName":       "Customer",
		"templateParams": params,
	}
	return post(ctx, s.client, s.config.BaseURL, payload, nil, "AiSensy")
}

func (s *AiSensyService) GetName() string {
	return "AiSensy"
}

// InteraktService implements WhatsApp via Interakt
type InteraktService struct {
	config Config
	client *http.Client
}

func NewInteraktService(apiKey, baseURL string) *InteraktService {
	if baseURL == "" {
		baseURL = "https://api.interakt.ai/v1/public"
	}
	return &InteraktService{
		config: Config{Provider: "interakt", APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/")},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendTemplateMessage sends a template message via Interakt
func (s *InteraktService) SendTemplateMessage(ctx context.Context, phone, templateName string, params []string) error {
	payload := map[string]interface{}{
		"countryCode":  "+91",
		"phoneNumber":  formatPhoneNumber(phone),
		"callbackData": "storage_request",
		"type":         "Template",
		"template": map[string]interface{}{
			"name":         templateName,
			"languageCode": "en",
			"bodyValues":   params,
		},
	}
	headers := map[string]string{"Authorization": "Basic " + s.config.APIKey}
	return post(ctx, s.client, s.config.BaseURL+"/message/", payload, headers, "Interakt")
}

func (s *InteraktService) GetName() string {
	return "Interakt"
}

func post(ctx context.Context, client *http.Client, url string, payload interface{}, headers map[string]string, provider string) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// formatPhoneNumber strips everything but digits; bare 10-digit numbers get the 91 prefix.
func formatPhoneNumber(phone string) string {
	var b strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	cleaned := b.String()
	if len(cleaned) == 10 {
		return "91" + cleaned
	}
	return cleaned
}
