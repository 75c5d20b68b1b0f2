package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
)

// PayoutLog is the reference payout adapter: it records each withdrawal transfer in
// memory and logs it. Deployments that custody real funds replace it.
type PayoutLog struct {
	mu      sync.Mutex
	payouts []models.Payout
	sent    map[string]struct{}
	logger  *zap.Logger
	now     func() time.Time
}

// NewPayoutLog constructs a PayoutLog.
func NewPayoutLog(logger *zap.Logger) *PayoutLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayoutLog{sent: make(map[string]struct{}), logger: logger, now: time.Now}
}

// Send records a payout once per payoutID. A repeated id is acknowledged without
// paying again.
func (p *PayoutLog) Send(ctx context.Context, payoutID, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if payoutID == "" {
		return errors.New("payout id is required")
	}
	payout := models.Payout{ID: payoutID, Recipient: to, Amount: amount, SentAt: p.now().UTC()}
	p.mu.Lock()
	if _, dup := p.sent[payoutID]; dup {
		p.mu.Unlock()
		p.logger.Debug("payout already sent", zap.String("payout_id", payoutID))
		return nil
	}
	p.sent[payoutID] = struct{}{}
	p.payouts = append(p.payouts, payout)
	p.mu.Unlock()
	p.logger.Info("payout sent", zap.String("payout_id", payout.ID), zap.String("recipient", to), zap.Uint64("amount", amount))
	return nil
}

// Payouts returns the recorded payouts, oldest first.
func (p *PayoutLog) Payouts() []models.Payout {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Payout, len(p.payouts))
	copy(out, p.payouts)
	return out
}
