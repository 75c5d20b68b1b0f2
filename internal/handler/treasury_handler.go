package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type treasuryService interface {
	Withdraw(ctx context.Context, caller string, req models.WithdrawRequest) (*models.Treasury, error)
	Balance(ctx context.Context) (*models.Treasury, error)
}

// TreasuryHandler exposes the custodied fee balance.
type TreasuryHandler struct {
	treasury treasuryService
}

// NewTreasuryHandler constructs TreasuryHandler.
func NewTreasuryHandler(treasury treasuryService) *TreasuryHandler {
	return &TreasuryHandler{treasury: treasury}
}

// Balance godoc
// @Summary Treasury balance
// @Tags Treasury
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /treasury [get]
func (h *TreasuryHandler) Balance(c *gin.Context) {
	treasury, err := h.treasury.Balance(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, treasury)
}

// Withdraw godoc
// @Summary Withdraw collected fees to the caller
// @Tags Treasury
// @Accept json
// @Produce json
// @Param payload body models.WithdrawRequest true "Amount"
// @Success 200 {object} response.Envelope
// @Router /treasury/withdrawals [post]
func (h *TreasuryHandler) Withdraw(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req models.WithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	treasury, err := h.treasury.Withdraw(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, treasury)
}
