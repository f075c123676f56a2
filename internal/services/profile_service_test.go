package services

import (
	"context"
	"testing"
	"time"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileUpdateCleansContact(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.saveProfile(t)

	p, err := e.profile.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", p.ContactNumber)
	assert.Equal(t, "Gokul Dairy", p.BusinessName)

	complete, err := e.profile.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, *p, *complete)
}

func TestProfileRejectsBadInputWithoutWriting(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.saveProfile(t)

	_, err := e.profile.Update(ctx, models.BusinessProfile{UserName: "R", BusinessName: "X", ContactNumber: "123", PaymentInfo: "cash"})
	assert.True(t, apperr.IsValidation(err))

	p, err := e.profile.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Gokul Dairy", p.BusinessName)
}

func TestIncompleteProfileBlocksBilling(t *testing.T) {
	e := newEnv(t, fixedClock(2024, time.March, 5))
	_, err := e.profile.Complete(context.Background())
	assert.True(t, apperr.IsValidation(err))
}

func TestProfilePreview(t *testing.T) {
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.saveProfile(t)

	text, err := e.profile.Preview(context.Background(), mar2024)
	require.NoError(t, err)
	assert.Contains(t, text, "Gokul Dairy")
	assert.Contains(t, text, "Dear Sample Customer,")
	assert.Contains(t, text, "₹1500.00")
}
