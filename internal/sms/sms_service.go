package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dairy-billing/internal/logging"

	"go.uber.org/zap"
)

// Config holds Fast2SMS route settings
type Config struct {
	Route    string // "q" (quick), "dlt" (registered template), "v3" (promotional)
	SenderID string // For DLT route (e.g., "DAIRYB")
	BaseURL  string
}

// Fast2SMSService sends SMS through Fast2SMS (India)
type Fast2SMSService struct {
	APIKey string
	Config Config
	client *http.Client
	log    *zap.Logger
}

func NewFast2SMSService(apiKey string, logger *zap.Logger) *Fast2SMSService {
	return &Fast2SMSService{
		APIKey: apiKey,
		Config: Config{Route: "q", BaseURL: "https://www.fast2sms.com/dev/bulkV2"},
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logging.OrNop(logger).Named("sms"),
	}
}

type fast2smsResponse struct {
	Return    bool   `json:"return"`
	RequestID string `json:"request_id"`
	Message   any    `json:"message"`
}

// SendSMS sends one message. phone may carry the 91 prefix; Fast2SMS wants the 10-digit number.
func (s *Fast2SMSService) SendSMS(ctx context.Context, phone, message string) error {
	if len(phone) == 12 && strings.HasPrefix(phone, "91") {
		phone = phone[2:]
	}

	q := url.Values{}
	q.Set("authorization", s.APIKey)
	q.Set("route", s.Config.Route)
	q.Set("message", message)
	q.Set("numbers", phone)
	q.Set("flash", "0")
	if s.Config.Route == "dlt" || s.Config.Route == "v3" {
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
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp fast2smsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil || !apiResp.Return {
		return fmt.Errorf("SMS API error: %s", string(body))
	}

	s.log.Debug("sms sent", zap.String("request_id", apiResp.RequestID))
	return nil
}

// MockSMSService records messages instead of sending them.
type MockSMSService struct {
	mu   sync.Mutex
	Sent []string
	log  *zap.Logger
}

func NewMockSMSService(logger *zap.Logger) *MockSMSService {
	return &MockSMSService{log: logging.OrNop(logger).Named("sms_mock")}
}

func (s *MockSMSService) SendSMS(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.Sent = append(s.Sent, phone)
	s.mu.Unlock()
	s.log.Info("mock sms", zap.String("to", phone), zap.Int("chars", len(message)))
	return nil
}
