package domain

// =============================================================================
// Operation Type
// =============================================================================

type OperationType string

const (
	OperationCreate     OperationType = "create"
	OperationUpdate     OperationType = "update"
	OperationStop       OperationType = "stop"
	OperationCancelStop OperationType = "cancel_stop"
)

// Classify decides what an operation does to the current charge state.
//
//   - no existing charge: Create
//   - zero-length window (start == end): Stop
//   - start equals the end of the latest period: CancelStop
//   - anything else: Update
//
// Classify is pure and never fails. Impossible combinations fall through to
// Update and are left to the business rules.
func Classify(op ChargeOperation, existing *Charge) OperationType {
	if existing == nil {
		return OperationCreate
	}
	if op.StartDateTime.Equal(op.EffectiveEnd()) {
		return OperationStop
	}
	if op.StartDateTime.Equal(existing.LatestPeriod().EndDateTime) {
		return OperationCancelStop
	}
	return OperationUpdate
}
