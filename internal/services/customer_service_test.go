package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCustomerAssignsSequentialIDs(t *testing.T) {
	e := newEnv(t, fixedClock(2024, time.March, 5))

	a := e.addCustomer(t, "Asha", "9876543210")
	b := e.addCustomer(t, "Ravi", "9123456780")

	assert.Equal(t, "C_1", a.ID)
	assert.Equal(t, "C_2", b.ID)
	assert.Equal(t, models.DefaultCluster, b.Cluster)
	assert.Equal(t, models.CustomerActive, b.Status)
}

func TestCreateCustomerRejectsDuplicatePhone(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")

	_, err := e.customers.CreateCustomer(ctx, models.CustomerInput{Name: "Other", Phone: "9876543210", Address: "x"})
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "phone", ve.Field)

	active, err := e.customers.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateCustomerValidatesInput(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))

	cases := []models.CustomerInput{
		{Name: "", Phone: "9876543210", Address: "x"},
		{Name: "A", Phone: "98765", Address: "x"},
		{Name: "A", Phone: "98765abcde", Address: "x"},
		{Name: "A", Phone: "9876543210", Address: "   "},
	}
	for i, in := range cases {
		_, err := e.customers.CreateCustomer(ctx, in)
		assert.Error(t, err, "case %d", i)
		assert.Equal(t, 400, apperr.HTTPStatus(err), "case %d", i)
	}
}

func TestDeletedIDsAreNeverReused(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	e.addCustomer(t, "Ravi", "9123456780")

	_, err := e.customers.DeleteCustomers(ctx, []string{"C_2"})
	require.NoError(t, err)

	next, err := e.customers.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C_3", next)

	// a fresh service over the same files still remembers the counter
	again := NewCustomerService(e.roster, 10, nil)
	c, err := again.CreateCustomer(ctx, models.CustomerInput{Name: "Meena", Phone: "9000000001", Address: "y"})
	require.NoError(t, err)
	assert.Equal(t, "C_3", c.ID)
}

func TestDeleteThenUndoRestoresRoster(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	e.addCustomer(t, "Ravi", "9123456780")
	e.addCustomer(t, "Meena", "9000000001")

	before, err := e.customers.ListCustomers(ctx)
	require.NoError(t, err)

	removed, err := e.customers.DeleteCustomers(ctx, []string{"C_1", "C_3"})
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	deleted, err := e.customers.ListDeleted(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	assert.Equal(t, models.CustomerDeleted, deleted[0].Status)

	ev, err := e.customers.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "undo", ev.Kind)
	assert.ElementsMatch(t, []string{"C_1", "C_3"}, ev.IDs)

	after, err := e.customers.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	deleted, err = e.customers.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	_, err = e.customers.Undo(ctx)
	assert.ErrorIs(t, err, apperr.ErrNothingToUndo)
}

func TestUndoEditRestoresPreviousValues(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")

	_, err := e.customers.UpdateCustomer(ctx, "C_1", models.CustomerInput{Name: "Asha K", Phone: "9876500000", Address: "New lane"})
	require.NoError(t, err)

	_, err = e.customers.Undo(ctx)
	require.NoError(t, err)

	c, err := e.customers.GetCustomer(ctx, "C_1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", c.Name)
	assert.Equal(t, "9876543210", c.Phone)
}

func TestUndoRefusesPhoneNowTaken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")

	_, err := e.customers.DeleteCustomers(ctx, []string{"C_1"})
	require.NoError(t, err)
	e.addCustomer(t, "Newcomer", "9876543210")

	_, err = e.customers.Undo(ctx)
	var ve *apperr.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, 1, e.customers.UndoDepth())
}

func TestUndoHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")

	for i := 0; i < 12; i++ {
		_, err := e.customers.UpdateCustomer(ctx, "C_1", models.CustomerInput{
			Name: fmt.Sprintf("Asha %d", i), Phone: "9876543210", Address: "Lane",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 10, e.customers.UndoDepth())

	for i := 0; i < 10; i++ {
		_, err := e.customers.Undo(ctx)
		require.NoError(t, err)
	}
	_, err := e.customers.Undo(ctx)
	assert.ErrorIs(t, err, apperr.ErrNothingToUndo)

	c, err := e.customers.GetCustomer(ctx, "C_1")
	require.NoError(t, err)
	assert.Equal(t, "Asha 1", c.Name)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	e.addCustomer(t, "Ravi", "9123456780")

	got, err := e.customers.Search(ctx, "ravi")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "C_2", got[0].ID)

	got, err = e.customers.Search(ctx, "43210")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "C_1", got[0].ID)

	got, err = e.customers.Search(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetCustomerFindsDeleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	_, err := e.customers.DeleteCustomers(ctx, []string{"C_1"})
	require.NoError(t, err)

	c, err := e.customers.GetCustomer(ctx, "C_1")
	require.NoError(t, err)
	assert.Equal(t, models.CustomerDeleted, c.Status)

	_, err = e.customers.GetCustomer(ctx, "C_9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
