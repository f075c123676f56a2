package services

import (
	"context"
	"strings"
	"unicode"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"
	"dairy-billing/internal/repositories"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ProfileService validates and stores the business details printed on every bill.
type ProfileService struct {
	Repo     *repositories.ProfileRepository
	validate *validator.Validate
	log      *zap.Logger
}

func NewProfileService(repo *repositories.ProfileRepository, logger *zap.Logger) *ProfileService {
	return &ProfileService{Repo: repo, validate: validator.New(), log: logging.OrNop(logger).Named("profile")}
}

func (s *ProfileService) Get(ctx context.Context) (*models.BusinessProfile, error) {
	return s.Repo.Get(ctx)
}

// Update cleans and validates p, then saves it. On a validation error nothing is written.
func (s *ProfileService) Update(ctx context.Context, p models.BusinessProfile) (*models.BusinessProfile, error) {
	p.UserName = strings.TrimSpace(p.UserName)
	p.BusinessName = strings.TrimSpace(p.BusinessName)
	p.PaymentInfo = strings.TrimSpace(p.PaymentInfo)
	p.ContactNumber = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, p.ContactNumber)

	if err := s.validate.Struct(p); err != nil {
		return nil, apperr.FromValidator(err)
	}
	if err := s.Repo.Save(ctx, &p); err != nil {
		return nil, err
	}
	s.log.Info("business profile updated", zap.String("business", p.BusinessName))
	return &p, nil
}

// Complete loads the profile and fails with a ValidationError when it cannot
// be used on a bill yet.
func (s *ProfileService) Complete(ctx context.Context) (*models.BusinessProfile, error) {
	p, err := s.Repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(p); err != nil {
		ve := apperr.FromValidator(err)
		return nil, apperr.Validation("profile", "business profile incomplete (%v)", ve)
	}
	return p, nil
}

// Preview renders a sample bill with the saved profile.
func (s *ProfileService) Preview(ctx context.Context, p models.Period) (string, error) {
	profile, err := s.Repo.Get(ctx)
	if err != nil {
		return "", err
	}
	sample := models.Customer{ID: "C_1", Name: "Sample Customer", Phone: "9876543210"}
	return ComposeBill(sample, p, models.Totals{Quantity: 30, Amount: 1500}, *profile), nil
}
