package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

// PayoutSender moves withdrawn funds to a recipient outside the service. A store may
// replay a transaction, so implementations must treat a repeated payoutID as already
// sent.
type PayoutSender interface {
	Send(ctx context.Context, payoutID, to string, amount uint64) error
}

// TreasuryService custodies collected fees and pays them out to admins.
type TreasuryService struct {
	store     Store
	payouts   PayoutSender
	validator *validator.Validate
	logger    *zap.Logger
	events    EventPublisher
	now       func() time.Time
}

// NewTreasuryService constructs a TreasuryService.
func NewTreasuryService(store Store, payouts PayoutSender, validate *validator.Validate, logger *zap.Logger, events EventPublisher) *TreasuryService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &TreasuryService{store: store, payouts: payouts, validator: validate, logger: logger, events: events, now: time.Now}
}

// Withdraw debits the treasury and pays the amount out to the caller. The payout runs
// inside the transaction so a failed transfer restores the balance.
func (s *TreasuryService) Withdraw(ctx context.Context, caller string, req models.WithdrawRequest) (*models.Treasury, error) {
	if err := checkAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid withdrawal payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}

	var (
		remaining uint64
		events    []models.Event
		payoutID  = uuid.NewString()
	)
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		balance, err := tx.Treasury().Balance(ctx)
		if err != nil {
			return internalError(err, "failed to load treasury")
		}
		if req.Amount > balance {
			return appErrors.Clone(appErrors.ErrInsufficientFunds, "").WithDetails("requested", req.Amount, "balance", balance)
		}
		if err := tx.Treasury().Debit(ctx, req.Amount); err != nil {
			return internalError(err, "failed to debit treasury")
		}
		if s.payouts != nil {
			if err := s.payouts.Send(ctx, payoutID, callerAddr, req.Amount); err != nil {
				return appErrors.Wrap(err, appErrors.ErrWithdrawalFailed.Code, appErrors.ErrWithdrawalFailed.Status, appErrors.ErrWithdrawalFailed.Message).
					WithDetails("recipient", callerAddr, "amount", req.Amount, "payout_id", payoutID)
			}
		}
		remaining = balance - req.Amount
		events = append(events, newEvent(models.EventTreasuryWithdrawn, callerAddr, nil, map[string]interface{}{
			"recipient": callerAddr,
			"amount":    req.Amount,
			"payout_id": payoutID,
		}, s.now()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("treasury withdrawn",
		zap.String("recipient", callerAddr),
		zap.String("payout_id", payoutID),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("remaining", remaining),
	)
	return &models.Treasury{Balance: remaining}, nil
}

// Balance returns the custodied balance.
func (s *TreasuryService) Balance(ctx context.Context) (*models.Treasury, error) {
	var balance uint64
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		balance, err = tx.Treasury().Balance(ctx)
		if err != nil {
			return internalError(err, "failed to load treasury")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.Treasury{Balance: balance}, nil
}
