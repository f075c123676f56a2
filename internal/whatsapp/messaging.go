package whatsapp

import (
	"context"
	"errors"

	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"

	"go.uber.org/zap"
)

// SMSSender is the fallback channel.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// MessagingService delivers over WhatsApp first and falls back to SMS when
// a fallback sender is configured.
type MessagingService struct {
	whatsapp Provider
	sms      SMSSender
	log      *zap.Logger
}

func NewMessagingService(provider Provider, fallback SMSSender, logger *zap.Logger) *MessagingService {
	return &MessagingService{whatsapp: provider, sms: fallback, log: logging.OrNop(logger).Named("delivery")}
}

// Deliver normalizes phone and sends message. It reports the channel that
// succeeded. An unusable phone returns ErrInvalidNumber before anything is sent.
func (s *MessagingService) Deliver(ctx context.Context, phone, message string) (string, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	if s.whatsapp == nil {
		if s.sms == nil {
			return "", errors.New("no delivery channel configured")
		}
		return s.sendSMS(ctx, normalized, message)
	}

	waErr := s.whatsapp.Send(ctx, normalized, message)
	if waErr == nil {
		return models.ChannelWhatsApp, nil
	}
	if s.sms == nil || ctx.Err() != nil {
		return "", waErr
	}

	s.log.Warn("whatsapp failed, falling back to sms",
		zap.String("provider", s.whatsapp.Name()), zap.Error(waErr))
	return s.sendSMS(ctx, normalized, message)
}

func (s *MessagingService) sendSMS(ctx context.Context, phone, message string) (string, error) {
	if err := s.sms.SendSMS(ctx, phone, message); err != nil {
		return "", err
	}
	return models.ChannelSMS, nil
}

// ProviderName is shown on the health and settings screens.
func (s *MessagingService) ProviderName() string {
	if s.whatsapp == nil {
		return "sms"
	}
	return s.whatsapp.Name()
}
