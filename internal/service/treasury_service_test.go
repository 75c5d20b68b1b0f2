package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/service"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

func TestTreasuryServiceWithdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 10, 100)
	h.enroll(t, 1, alice, 100)
	h.enroll(t, 1, bob, 120)

	treasury, err := h.treasury.Withdraw(ctx, admin, models.WithdrawRequest{Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, uint64(20), treasury.Balance)

	payouts := h.payouts.Payouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, admin, payouts[0].Recipient)
	assert.Equal(t, uint64(200), payouts[0].Amount)

	_, err = h.treasury.Withdraw(ctx, admin, models.WithdrawRequest{Amount: 21})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInsufficientFunds)
	details := appErrors.FromError(err).Details
	assert.Equal(t, uint64(21), details["requested"])
	assert.Equal(t, uint64(20), details["balance"])

	treasury, err = h.treasury.Withdraw(ctx, admin, models.WithdrawRequest{Amount: 20})
	require.NoError(t, err)
	assert.Zero(t, treasury.Balance)
}

func TestTreasuryServiceWithdrawGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 10, 100)
	h.enroll(t, 1, alice, 100)

	_, err := h.treasury.Withdraw(ctx, alice, models.WithdrawRequest{Amount: 1})
	assert.ErrorIs(t, err, appErrors.ErrRoleRequired)
	_, err = h.treasury.Withdraw(ctx, admin, models.WithdrawRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	balance, err := h.treasury.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance.Balance)
	assert.Empty(t, h.payouts.Payouts())
}

func TestTreasuryServiceFailedPayoutRestoresBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedCourse(t, 1, 10, 100)
	h.enroll(t, 1, alice, 100)

	treasury := service.NewTreasuryService(h.store, failingPayout{err: errors.New("transfer rejected")}, nil, nil, h.events)
	before := h.store.Snapshot()
	eventsBefore := len(h.events.types())

	_, err := treasury.Withdraw(ctx, admin, models.WithdrawRequest{Amount: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrWithdrawalFailed)
	assert.Contains(t, err.Error(), "transfer rejected")
	assert.Equal(t, before, h.store.Snapshot())
	assert.Len(t, h.events.types(), eventsBefore)
}
