package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

type fakeEnrollmentSrv struct {
	buyErr      error
	lastBuy     models.EnrollmentRequest
	transferErr error
	approvals   map[string]bool
	balances    map[string]uint64
}

func (f *fakeEnrollmentSrv) BuyPlace(_ context.Context, caller string, courseID uint64, req models.EnrollmentRequest) (*models.Enrollment, error) {
	f.lastBuy = req
	if f.buyErr != nil {
		return nil, f.buyErr
	}
	return &models.Enrollment{CourseID: courseID, Student: caller, Paid: req.Value}, nil
}

func (f *fakeEnrollmentSrv) TransferPlace(_ context.Context, _ string, _ uint64, req models.TransferRequest) error {
	if f.transferErr != nil {
		return f.transferErr
	}
	if f.balances == nil {
		f.balances = map[string]uint64{}
	}
	f.balances[req.Student]++
	return nil
}

func (f *fakeEnrollmentSrv) SetApprovalForAll(_ context.Context, caller string, req models.ApprovalRequest) error {
	if f.approvals == nil {
		f.approvals = map[string]bool{}
	}
	f.approvals[caller+"/"+req.Operator] = req.Approved
	return nil
}

func (f *fakeEnrollmentSrv) IsApprovedForAll(_ context.Context, owner, operator string) (bool, error) {
	return f.approvals[owner+"/"+operator], nil
}

func (f *fakeEnrollmentSrv) CoursesOf(context.Context, string) ([]uint64, error) {
	return []uint64{1, 4}, nil
}

func (f *fakeEnrollmentSrv) BalanceOf(_ context.Context, account string, courseID uint64) (*models.Balance, error) {
	return &models.Balance{Owner: account, CourseID: courseID, Quantity: f.balances[account]}, nil
}

func TestEnrollmentHandlerBuyPlace(t *testing.T) {
	srv := &fakeEnrollmentSrv{}
	handler := NewEnrollmentHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/courses/2/enrollments", `{"value":150}`, testStudent)
	c.Params = gin.Params{{Key: "id", Value: "2"}}

	handler.BuyPlace(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	var enrollment models.Enrollment
	decodeData(t, rec, &enrollment)
	assert.Equal(t, models.Enrollment{CourseID: 2, Student: testStudent, Paid: 150}, enrollment)
}

func TestEnrollmentHandlerBuyPlaceInsufficientFee(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{
		buyErr: appErrors.Clone(appErrors.ErrInsufficientFee, "paid amount below course fee").WithDetails("paid", uint64(40), "fee", uint64(100)),
	})
	c, rec := newTestContext(http.MethodPost, "/courses/2/enrollments", `{"value":40}`, testStudent)
	c.Params = gin.Params{{Key: "id", Value: "2"}}

	handler.BuyPlace(c)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, appErrors.ErrInsufficientFee.Code, envelope.Error["code"])
	assert.Equal(t, map[string]interface{}{"paid": float64(40), "fee": float64(100)}, envelope.Error["details"])
}

func TestEnrollmentHandlerTransferPlaceReturnsBalance(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{})
	c, rec := newTestContext(http.MethodPost, "/courses/2/transfers", `{"student":"`+testStudent+`"}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "2"}}

	handler.TransferPlace(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var balance models.Balance
	decodeData(t, rec, &balance)
	assert.Equal(t, uint64(1), balance.Quantity)
}

func TestEnrollmentHandlerTransferPlaceNotEnrolled(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{transferErr: appErrors.ErrCourseNotRegisteredForUser})
	c, rec := newTestContext(http.MethodPost, "/courses/2/transfers", `{"student":"`+testStudent+`"}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "2"}}

	handler.TransferPlace(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnrollmentHandlerApprovals(t *testing.T) {
	srv := &fakeEnrollmentSrv{}
	handler := NewEnrollmentHandler(srv)

	c, rec := newTestContext(http.MethodPut, "/approvals", `{"operator":"`+testAdmin+`","approved":true}`, testStudent)
	handler.SetApproval(c)
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/accounts/"+testStudent+"/approvals/"+testAdmin, "", "")
	c.Params = gin.Params{{Key: "address", Value: testStudent}, {Key: "operator", Value: testAdmin}}
	handler.IsApproved(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decodeData(t, rec, &body)
	assert.Equal(t, true, body["approved"])
}

func TestEnrollmentHandlerBalanceOfInvalidCourse(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{})
	c, rec := newTestContext(http.MethodGet, "/accounts/"+testStudent+"/balances/-1", "", "")
	c.Params = gin.Params{{Key: "address", Value: testStudent}, {Key: "courseId", Value: "-1"}}

	handler.BalanceOf(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollmentHandlerCoursesOf(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{})
	c, rec := newTestContext(http.MethodGet, "/accounts/"+testStudent+"/courses", "", "")
	c.Params = gin.Params{{Key: "address", Value: testStudent}}

	handler.CoursesOf(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var courses []uint64
	decodeData(t, rec, &courses)
	assert.Equal(t, []uint64{1, 4}, courses)
}

type fakeTreasurySrv struct {
	balance uint64
}

func (f *fakeTreasurySrv) Withdraw(_ context.Context, _ string, req models.WithdrawRequest) (*models.Treasury, error) {
	if req.Amount > f.balance {
		return nil, appErrors.Clone(appErrors.ErrInsufficientFunds, "insufficient custodied funds").
			WithDetails("requested", req.Amount, "balance", f.balance)
	}
	f.balance -= req.Amount
	return &models.Treasury{Balance: f.balance}, nil
}

func (f *fakeTreasurySrv) Balance(context.Context) (*models.Treasury, error) {
	return &models.Treasury{Balance: f.balance}, nil
}

func TestTreasuryHandlerWithdraw(t *testing.T) {
	srv := &fakeTreasurySrv{balance: 220}
	handler := NewTreasuryHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/treasury/withdrawals", `{"amount":200}`, testAdmin)
	handler.Withdraw(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var treasury models.Treasury
	decodeData(t, rec, &treasury)
	assert.Equal(t, uint64(20), treasury.Balance)

	c, rec = newTestContext(http.MethodPost, "/treasury/withdrawals", `{"amount":21}`, testAdmin)
	handler.Withdraw(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrInsufficientFunds.Code, decodeEnvelope(t, rec).Error["code"])
}

func TestTreasuryHandlerWithdrawRequiresAuth(t *testing.T) {
	handler := NewTreasuryHandler(&fakeTreasurySrv{balance: 10})
	c, rec := newTestContext(http.MethodPost, "/treasury/withdrawals", `{"amount":1}`, "")

	handler.Withdraw(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeRoleSrv struct {
	members map[models.Role]map[string]bool
	err     error
}

func (f *fakeRoleSrv) Grant(_ context.Context, _ string, role models.Role, account string) error {
	if f.err != nil {
		return f.err
	}
	if f.members == nil {
		f.members = map[models.Role]map[string]bool{}
	}
	if f.members[role] == nil {
		f.members[role] = map[string]bool{}
	}
	f.members[role][account] = true
	return nil
}

func (f *fakeRoleSrv) Revoke(_ context.Context, _ string, role models.Role, account string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.members[role], account)
	return nil
}

func (f *fakeRoleSrv) HasRole(_ context.Context, role models.Role, account string) (*models.RoleMembership, error) {
	return &models.RoleMembership{Role: role, Account: account, Member: f.members[role][account]}, nil
}

func TestRoleHandlerGrant(t *testing.T) {
	handler := NewRoleHandler(&fakeRoleSrv{})
	c, rec := newTestContext(http.MethodPost, "/roles/evaluator/members", `{"address":"`+testStudent+`"}`, testAdmin)
	c.Params = gin.Params{{Key: "role", Value: "evaluator"}}

	handler.Grant(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var membership models.RoleMembership
	decodeData(t, rec, &membership)
	assert.Equal(t, models.RoleMembership{Role: models.RoleEvaluator, Account: testStudent, Member: true}, membership)
}

func TestRoleHandlerUnknownRole(t *testing.T) {
	handler := NewRoleHandler(&fakeRoleSrv{})
	c, rec := newTestContext(http.MethodGet, "/roles/owner/members/"+testStudent, "", "")
	c.Params = gin.Params{{Key: "role", Value: "owner"}, {Key: "address", Value: testStudent}}

	handler.HasRole(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleHandlerRevokeForbidden(t *testing.T) {
	handler := NewRoleHandler(&fakeRoleSrv{err: appErrors.ErrRoleRequired})
	c, rec := newTestContext(http.MethodDelete, "/roles/admin/members/"+testAdmin, "", testStudent)
	c.Params = gin.Params{{Key: "role", Value: "admin"}, {Key: "address", Value: testAdmin}}

	handler.Revoke(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoleHandlerInternalError(t *testing.T) {
	handler := NewRoleHandler(&fakeRoleSrv{err: errors.New("connection reset")})
	c, rec := newTestContext(http.MethodPost, "/roles/admin/members", `{"address":"`+testStudent+`"}`, testAdmin)
	c.Params = gin.Params{{Key: "role", Value: "admin"}}

	handler.Grant(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
