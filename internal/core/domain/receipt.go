package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Receipt
// =============================================================================

type ReceiptStatus string

const (
	ReceiptAccepted ReceiptStatus = "accepted"
	ReceiptRejected ReceiptStatus = "rejected"
)

// ReceiptKind tells which kind of operation a receipt answers.
type ReceiptKind string

const (
	ReceiptKindCharge     ReceiptKind = "charge"
	ReceiptKindChargeLink ReceiptKind = "charge_link"
)

// ReceiptError is one rejection reason. Parameters are the values Text was
// rendered from, so a consumer can render the message in another language.
type ReceiptError struct {
	RuleIdentifier string            `json:"rule_identifier"`
	ReasonCode     string            `json:"reason_code"`
	Text           string            `json:"text"`
	Parameters     map[string]string `json:"parameters,omitempty"`
}

// MarketParticipant identifies a sender or recipient of a receipt.
type MarketParticipant struct {
	ID   string                `json:"id"`
	Role MarketParticipantRole `json:"role"`
}

// Receipt is the accept or reject answer to one operation.
type Receipt struct {
	ID                  string            `json:"id"`
	Kind                ReceiptKind       `json:"kind"`
	Status              ReceiptStatus     `json:"status"`
	OriginalOperationID string            `json:"original_operation_id"`
	DocumentID          string            `json:"document_id"`
	OperationOrder      int               `json:"operation_order"`
	BusinessReasonCode  string            `json:"business_reason_code,omitempty"`
	Sender              MarketParticipant `json:"sender"`
	Recipient           MarketParticipant `json:"recipient"`
	Errors              []ReceiptError    `json:"errors,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// ReceiptHeader carries the fields shared by every receipt of one document.
type ReceiptHeader struct {
	Kind               ReceiptKind
	DocumentID         string
	BusinessReasonCode string
	Sender             MarketParticipant
	Recipient          MarketParticipant
}

// NewAcceptReceipt creates an accept receipt with a fresh ID.
func NewAcceptReceipt(h ReceiptHeader, operationID string, order int, at time.Time) Receipt {
	return newReceipt(h, ReceiptAccepted, operationID, order, nil, at)
}

// NewRejectReceipt creates a reject receipt. A rejection without reasons is
// refused.
func NewRejectReceipt(h ReceiptHeader, operationID string, order int, errs []ReceiptError, at time.Time) (Receipt, error) {
	if len(errs) == 0 {
		return Receipt{}, ErrEmptyRejection
	}
	out := make([]ReceiptError, len(errs))
	copy(out, errs)
	return newReceipt(h, ReceiptRejected, operationID, order, out, at), nil
}

func newReceipt(h ReceiptHeader, status ReceiptStatus, operationID string, order int, errs []ReceiptError, at time.Time) Receipt {
	return Receipt{
		ID:                  uuid.New().String(),
		Kind:                h.Kind,
		Status:              status,
		OriginalOperationID: operationID,
		DocumentID:          h.DocumentID,
		OperationOrder:      order,
		BusinessReasonCode:  h.BusinessReasonCode,
		Sender:              h.Sender,
		Recipient:           h.Recipient,
		Errors:              errs,
		CreatedAt:           at.UTC(),
	}
}
