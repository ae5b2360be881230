// internal/domain/models/case.go
package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Case is a client's visa or passport application, from draft through
// completion. Number is issued on submit.
type Case struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BrandID         primitive.ObjectID  `bson:"brand_id" json:"-"`
	Number          string              `bson:"number,omitempty" json:"number,omitempty"`
	ClientID        primitive.ObjectID  `bson:"client_id" json:"client_id"`
	ClientNameCI    string              `bson:"client_name_ci" json:"-"`
	PairID          primitive.ObjectID  `bson:"pair_id" json:"pair_id"`
	FromCode        string              `bson:"from_code" json:"from_code"`
	ToCode          string              `bson:"to_code" json:"to_code"`
	ServiceTypeID   primitive.ObjectID  `bson:"service_type_id" json:"service_type_id"`
	ServiceLevelID  primitive.ObjectID  `bson:"service_level_id" json:"service_level_id"`
	Applicant       Applicant           `bson:"applicant" json:"applicant"`
	ApplicantNameCI string              `bson:"applicant_name_ci" json:"-"`
	FormData        map[string]any      `bson:"form_data,omitempty" json:"form_data,omitempty"`
	Quote           *Quote              `bson:"quote,omitempty" json:"quote,omitempty"`
	Payment         Payment             `bson:"payment" json:"payment"`
	Status          string              `bson:"status" json:"status"`
	StatusHistory   []StatusChange      `bson:"status_history" json:"status_history"`
	AssignedTo      *primitive.ObjectID `bson:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	Documents       []CaseDocument      `bson:"documents" json:"documents"`
	IsArchived      bool                `bson:"is_archived" json:"is_archived"`
	IsDeleted       bool                `bson:"is_deleted" json:"is_deleted"`

	ClientLastReadAt *time.Time `bson:"client_last_read_at,omitempty" json:"-"`
	StaffLastReadAt  *time.Time `bson:"staff_last_read_at,omitempty" json:"-"`
	LastMessageAt    *time.Time `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`

	SubmittedAt *time.Time `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	ClosedAt    *time.Time `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
}

// Applicant is the traveler the application is for.
type Applicant struct {
	FullName       string `bson:"full_name" json:"full_name"`
	DateOfBirth    string `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Nationality    string `bson:"nationality,omitempty" json:"nationality,omitempty"`     // ISO2
	PassportNumber string `bson:"passport_number,omitempty" json:"passport_number,omitempty"`
	PassportExpiry string `bson:"passport_expiry,omitempty" json:"passport_expiry,omitempty"` // YYYY-MM-DD
}

// ApplicantPatch is a partial Applicant sent by the wizard autosave.
// Nil fields keep their stored value.
type ApplicantPatch struct {
	FullName       *string `json:"full_name"`
	DateOfBirth    *string `json:"date_of_birth"`
	Nationality    *string `json:"nationality"`
	PassportNumber *string `json:"passport_number"`
	PassportExpiry *string `json:"passport_expiry"`
}

// Apply returns a with the present fields replaced.
func (p ApplicantPatch) Apply(a Applicant) Applicant {
	if p.FullName != nil {
		a.FullName = *p.FullName
	}
	if p.DateOfBirth != nil {
		a.DateOfBirth = *p.DateOfBirth
	}
	if p.Nationality != nil {
		a.Nationality = *p.Nationality
	}
	if p.PassportNumber != nil {
		a.PassportNumber = *p.PassportNumber
	}
	if p.PassportExpiry != nil {
		a.PassportExpiry = *p.PassportExpiry
	}
	return a
}

// Payment tracks the checkout state of a case.
type Payment struct {
	Status    string     `bson:"status" json:"status"` // unpaid, paid, refunded
	Reference string     `bson:"reference,omitempty" json:"reference,omitempty"`
	PaidAt    *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}

// Payment statuses
const (
	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// IsValidPaymentStatus checks a payment status.
func IsValidPaymentStatus(s string) bool {
	return s == PaymentUnpaid || s == PaymentPaid || s == PaymentRefunded
}

// StatusChange is one entry of a case's status history.
type StatusChange struct {
	From string             `bson:"from" json:"from"`
	To   string             `bson:"to" json:"to"`
	By   primitive.ObjectID `bson:"by" json:"by"`
	Note string             `bson:"note,omitempty" json:"note,omitempty"`
	At   time.Time          `bson:"at" json:"at"`
}

// CaseDocument is a file the client (or staff) attached to a case.
type CaseDocument struct {
	ID          primitive.ObjectID `bson:"id" json:"id"`
	Kind        string             `bson:"kind" json:"kind"` // passport_scan, photo, itinerary, other...
	Name        string             `bson:"name" json:"name"`
	StoragePath string             `bson:"storage_path" json:"-"`
	ContentType string             `bson:"content_type" json:"content_type"`
	Size        int64              `bson:"size" json:"size"`
	UploadedBy  primitive.ObjectID `bson:"uploaded_by" json:"uploaded_by"`
	UploadedAt  time.Time          `bson:"uploaded_at" json:"uploaded_at"`
}

// Case statuses
const (
	CaseDraft             = "draft"
	CaseSubmitted         = "submitted"
	CaseInReview          = "in_review"
	CaseDocumentsRequired = "documents_required"
	CaseProcessing        = "processing"
	CaseApproved          = "approved"
	CaseRejected          = "rejected"
	CaseCompleted         = "completed"
	CaseCancelled         = "cancelled"
)

// CaseStatuses lists every status in lifecycle order.
var CaseStatuses = []string{
	CaseDraft, CaseSubmitted, CaseInReview, CaseDocumentsRequired,
	CaseProcessing, CaseApproved, CaseRejected, CaseCompleted, CaseCancelled,
}

// staffTransitions are the edges staff may take. Cancellation is handled
// separately because it is allowed from every open state.
var staffTransitions = map[string][]string{
	CaseSubmitted:         {CaseInReview},
	CaseInReview:          {CaseDocumentsRequired, CaseProcessing, CaseRejected},
	CaseDocumentsRequired: {CaseInReview},
	CaseProcessing:        {CaseApproved},
	CaseApproved:          {CaseCompleted},
}

var (
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("status change not allowed")
	// ErrUnknownStatus is returned for a status outside CaseStatuses.
	ErrUnknownStatus = errors.New("unknown case status")
)

// IsValidCaseStatus checks a case status.
func IsValidCaseStatus(s string) bool {
	for _, v := range CaseStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a case in this status is closed.
func IsTerminalStatus(s string) bool {
	return s == CaseCompleted || s == CaseRejected || s == CaseCancelled
}

// CanTransition checks a status change. byStaff selects the staff edge
// set; clients may only submit drafts and cancel before processing.
func CanTransition(from, to string, byStaff bool) error {
	if !IsValidCaseStatus(from) || !IsValidCaseStatus(to) {
		return ErrUnknownStatus
	}
	if from == to || IsTerminalStatus(from) {
		return ErrInvalidTransition
	}

	if to == CaseCancelled {
		if byStaff {
			return nil
		}
		switch from {
		case CaseDraft, CaseSubmitted, CaseInReview, CaseDocumentsRequired:
			return nil
		}
		return ErrInvalidTransition
	}

	if !byStaff {
		if from == CaseDraft && to == CaseSubmitted {
			return nil
		}
		return ErrInvalidTransition
	}

	for _, next := range staffTransitions[from] {
		if next == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// NextStatuses returns the statuses staff may move a case to from its
// current status.
func NextStatuses(from string) []string {
	if IsTerminalStatus(from) || from == CaseDraft {
		return nil
	}
	out := append([]string(nil), staffTransitions[from]...)
	return append(out, CaseCancelled)
}

// IsOpen reports whether the case is neither closed nor deleted.
func (c Case) IsOpen() bool {
	return !c.IsDeleted && !IsTerminalStatus(c.Status)
}

// FindDocument returns a document attached to the case.
func (c Case) FindDocument(id primitive.ObjectID) (CaseDocument, bool) {
	for _, d := range c.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return CaseDocument{}, false
}

// Document kinds accepted on upload.
var DocumentKinds = []string{"passport_scan", "photo", "itinerary", "invitation_letter", "bank_statement", "other"}

// IsValidDocumentKind checks a document kind.
func IsValidDocumentKind(k string) bool {
	for _, v := range DocumentKinds {
		if v == k {
			return true
		}
	}
	return false
}
