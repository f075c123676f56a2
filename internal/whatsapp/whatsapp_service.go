package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Provider sends one text to one already-normalized phone number.
type Provider interface {
	Send(ctx context.Context, phone, message string) error
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider      string // "generic", "aisensy", "interakt", "gupshup", "mock"
	APIKey        string
	PhoneNumberID string // WhatsApp Phone Number ID (generic) or source number (gupshup)
	Template      string // approved template; the bill text is its only parameter
	BaseURL       string // override for BSP proxies and tests
	SourceName    string // gupshup app name
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// New builds the provider named in cfg. Unknown names fall back to the Cloud
// API when credentials are present.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "aisensy":
		return NewAiSensyService(cfg), nil
	case "interakt":
		return NewInteraktService(cfg), nil
	case "gupshup":
		return NewGupshupService(cfg), nil
	case "generic", "meta", "cloud":
		return NewGenericWhatsAppService(cfg), nil
	case "mock", "":
		return NewMockService(), nil
	default:
		if cfg.APIKey != "" && cfg.PhoneNumberID != "" {
			return NewGenericWhatsAppService(cfg), nil
		}
		return nil, fmt.Errorf("unknown whatsapp provider %q", cfg.Provider)
	}
}

func postJSON(ctx context.Context, endpoint string, payload any, header http.Header) (*http.Response, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	return do(req)
}

func do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return resp, body, nil
}

func ok(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted
}

// GenericWhatsAppService talks to the Meta Cloud API (works with any BSP)
type GenericWhatsAppService struct {
	cfg Config
}

func NewGenericWhatsAppService(cfg Config) *GenericWhatsAppService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v18.0"
	}
	return &GenericWhatsAppService{cfg: cfg}
}

// Send uses a template when one is configured, otherwise a session text
// message (only delivered inside the 24h window).
func (s *GenericWhatsAppService) Send(ctx context.Context, phone, message string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                phone,
	}
	if s.cfg.Template != "" {
		payload["type"] = "template"
		payload["template"] = map[string]any{
			"name":     s.cfg.Template,
			"language": map[string]string{"code": "en"},
			"components": []map[string]any{{
				"type":       "body",
				"parameters": []map[string]string{{"type": "text", "text": message}},
			}},
		}
	} else {
		payload["type"] = "text"
		payload["text"] = map[string]any{"preview_url": false, "body": message}
	}

	endpoint := fmt.Sprintf("%s/%s/messages", s.cfg.BaseURL, s.cfg.PhoneNumberID)
	resp, body, err := postJSON(ctx, endpoint, payload, http.Header{"Authorization": {"Bearer " + s.cfg.APIKey}})
	if err != nil {
		return err
	}
	if !ok(resp.StatusCode) {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("WhatsApp API error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("WhatsApp API error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (s *GenericWhatsAppService) Name() string { return "Generic (Meta Cloud API)" }

// AiSensyService sends campaign (template) messages through AiSensy
type AiSensyService struct {
	cfg Config
}

func NewAiSensyService(cfg Config) *AiSensyService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://backend.aisensy.com/campaign/t1/api/v2"
	}
	return &AiSensyService{cfg: cfg}
}

func (s *AiSensyService) Send(ctx context.Context, phone, message string) error {
	payload := map[string]any{
		"apiKey":         s.cfg.APIKey,
		"campaignName":   s.cfg.Template,
		"destination":    phone,
		"userName":       "Customer",
		"templateParams": []string{message},
	}
	resp, body, err := postJSON(ctx, s.cfg.BaseURL, payload, nil)
	if err != nil {
		return err
	}
	if !ok(resp.StatusCode) {
		return fmt.Errorf("AiSensy API error: %s", string(body))
	}
	return nil
}

func (s *AiSensyService) Name() string { return "AiSensy" }

// InteraktService sends template messages through Interakt
type InteraktService struct {
	cfg Config
}

func NewInteraktService(cfg Config) *InteraktService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.interakt.ai/v1/public"
	}
	return &InteraktService{cfg: cfg}
}

func (s *InteraktService) Send(ctx context.Context, phone, message string) error {
	// Interakt wants the national number and the country code separately
	payload := map[string]any{
		"countryCode":  "+91",
		"phoneNumber":  strings.TrimPrefix(phone, "91"),
		"callbackData": "monthly_bill",
		"type":         "Template",
		"template": map[string]any{
			"name":         s.cfg.Template,
			"languageCode": "en",
			"bodyValues":   []string{message},
		},
	}
	resp, body, err := postJSON(ctx, s.cfg.BaseURL+"/message/", payload,
		http.Header{"Authorization": {"Basic " + s.cfg.APIKey}})
	if err != nil {
		return err
	}
	if !ok(resp.StatusCode) {
		return fmt.Errorf("Interakt API error: %s", string(body))
	}
	return nil
}

func (s *InteraktService) Name() string { return "Interakt" }

// GupshupService sends session or template messages through Gupshup
type GupshupService struct {
	cfg Config
}

func NewGupshupService(cfg Config) *GupshupService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.gupshup.io/sm/api/v1"
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "DairyBilling"
	}
	return &GupshupService{cfg: cfg}
}

func (s *GupshupService) Send(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", s.cfg.PhoneNumberID)
	form.Set("destination", phone)
	form.Set("src.name", s.cfg.SourceName)

	path := "/msg"
	if s.cfg.Template != "" {
		tmpl, _ := json.Marshal(map[string]any{"id": s.cfg.Template, "params": []string{message}})
		form.Set("template", string(tmpl))
		path = "/template/msg"
	} else {
		form.Set("message", message)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", s.cfg.APIKey)

	resp, body, err := do(req)
	if err != nil {
		return err
	}
	if !ok(resp.StatusCode) {
		return fmt.Errorf("Gupshup API error: %s", string(body))
	}
	return nil
}

func (s *GupshupService) Name() string { return "Gupshup" }

// SentMessage is what MockService recorded.
type SentMessage struct {
	Phone   string
	Message string
}

// MockService records messages instead of sending them. FailFor makes
// specific phones fail with the given reason.
type MockService struct {
	mu      sync.Mutex
	Sent    []SentMessage
	FailFor map[string]string
}

func NewMockService() *MockService {
	return &MockService{FailFor: map[string]string{}}
}

func (s *MockService) Send(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason, bad := s.FailFor[phone]; bad {
		return fmt.Errorf("%s", reason)
	}
	s.Sent = append(s.Sent, SentMessage{Phone: phone, Message: message})
	return nil
}

func (s *MockService) Name() string { return "Mock" }

// Messages returns a copy of what was recorded.
func (s *MockService) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.Sent...)
}
