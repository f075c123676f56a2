package repositories

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/models"

	"github.com/spf13/viper"
)

// ProfileRepository stores the business profile as a small yaml file.
type ProfileRepository struct {
	Path string
}

func NewProfileRepository(path string) *ProfileRepository {
	return &ProfileRepository{Path: path}
}

// Get returns the saved profile, or an empty one when nothing was saved yet.
func (r *ProfileRepository) Get(ctx context.Context) (*models.BusinessProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.Path); errors.Is(err, fs.ErrNotExist) {
		return &models.BusinessProfile{}, nil
	}

	v := viper.New()
	v.SetConfigFile(r.Path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, apperr.IO("read", r.Path, err)
	}

	var p models.BusinessProfile
	if err := v.Unmarshal(&p); err != nil {
		return nil, apperr.IO("decode", r.Path, err)
	}
	return &p, nil
}

func (r *ProfileRepository) Save(ctx context.Context, p *models.BusinessProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return apperr.IO("mkdir", filepath.Dir(r.Path), err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("user_name", p.UserName)
	v.Set("business_name", p.BusinessName)
	v.Set("contact_number", p.ContactNumber)
	v.Set("payment_info", p.PaymentInfo)
	if err := v.WriteConfigAs(r.Path); err != nil {
		return apperr.IO("save", r.Path, err)
	}
	return nil
}
