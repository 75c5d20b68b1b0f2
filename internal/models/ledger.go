package models

import "time"

// EnrollmentRequest buys a place with the attached value.
type EnrollmentRequest struct {
	Value uint64 `json:"value"`
}

// Enrollment is the outcome of a successful place purchase.
type Enrollment struct {
	CourseID uint64 `json:"course_id"`
	Student  string `json:"student"`
	Paid     uint64 `json:"paid"`
}

// TransferRequest delivers one unit of a course to an enrolled student.
type TransferRequest struct {
	Student string `json:"student" validate:"required,address"`
}

// ApprovalRequest toggles an operator approval for the caller.
type ApprovalRequest struct {
	Operator string `json:"operator" validate:"required,address"`
	Approved bool   `json:"approved"`
}

// Balance is a ledger balance for one owner and course.
type Balance struct {
	Owner    string `db:"owner" json:"owner"`
	CourseID uint64 `db:"course_id" json:"course_id"`
	Quantity uint64 `db:"quantity" json:"quantity"`
}

// Treasury is the custodied fee balance.
type Treasury struct {
	Balance uint64 `db:"balance" json:"balance"`
}

// WithdrawRequest moves custodied funds to the caller.
type WithdrawRequest struct {
	Amount uint64 `json:"amount" validate:"required"`
}

// Payout records a completed withdrawal transfer.
type Payout struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Amount    uint64    `json:"amount"`
	SentAt    time.Time `json:"sent_at"`
}
