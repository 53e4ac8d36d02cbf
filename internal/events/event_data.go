package events

import (
	"github.com/aristath/autoinvest/internal/domain"
)

// EventData is implemented by typed event payloads
type EventData interface {
	EventType() EventType
}

// OperationData describes an operation accepted by the remote service
type OperationData struct {
	Kind   domain.OperationKind `json:"kind"`
	ItemID int64                `json:"item_id"`
	LoanID int64                `json:"loan_id"`
	Rating domain.Rating        `json:"rating"`
	Amount domain.Money         `json:"amount"`
	DryRun bool                 `json:"dry_run,omitempty"`
}

// EventType maps the operation kind to its event
func (d *OperationData) EventType() EventType {
	switch d.Kind {
	case domain.OperationPurchase:
		return ParticipationPurchased
	case domain.OperationSell:
		return ParticipationSold
	default:
		return InvestmentMade
	}
}

// Operation converts the payload back to a domain operation
func (d *OperationData) Operation() domain.Operation {
	return domain.Operation{Kind: d.Kind, ItemID: d.ItemID, LoanID: d.LoanID, Rating: d.Rating, Amount: d.Amount}
}

// NewOperationData builds the payload for a submitted operation
func NewOperationData(op domain.Operation, dryRun bool) *OperationData {
	return &OperationData{
		Kind:   op.Kind,
		ItemID: op.ItemID,
		LoanID: op.LoanID,
		Rating: op.Rating,
		Amount: op.Amount,
		DryRun: dryRun,
	}
}

// ExecutionData summarizes one decision loop run
type ExecutionData struct {
	Strategy   string `json:"strategy,omitempty"`
	Items      int    `json:"items"`
	Operations int    `json:"operations"`
	Balance    string `json:"balance,omitempty"`
}

func (d *ExecutionData) EventType() EventType {
	return ExecutionCompleted
}

// FailureData carries an error message
type FailureData struct {
	Task  string `json:"task,omitempty"`
	Error string `json:"error"`
}

func (d *FailureData) EventType() EventType {
	return ExecutionFailed
}

// TenantData announces a tenant lifecycle change
type TenantData struct {
	Name   string `json:"name"`
	DryRun bool   `json:"dry_run"`
}

func (d *TenantData) EventType() EventType {
	return TenantStarted
}
