package domain

import "time"

// ReturnState — производное состояние заявки на возврат.
type ReturnState string

const (
	ReturnStateRequested ReturnState = "REQUESTED"
	ReturnStateApproved  ReturnState = "APPROVED"
	ReturnStateRejected  ReturnState = "REJECTED"
)

// ReturnRequest описывает заявку покупателя на возврат доставленной позиции.
type ReturnRequest struct {
	ID             string
	OrderID        string
	OrderItemID    string
	UserID         string
	Reason         string
	RequestedAt    time.Time
	Processed      bool
	Approved       bool
	Rejected       bool
	ProcessedAt    *time.Time
	ProcessorNotes string
}

// State вычисляет состояние заявки по флагам.
func (r ReturnRequest) State() ReturnState {
	switch {
	case r.Processed && r.Approved:
		return ReturnStateApproved
	case r.Processed:
		return ReturnStateRejected
	default:
		return ReturnStateRequested
	}
}

// Approve фиксирует одобрение заявки.
func (r *ReturnRequest) Approve(notes string, at time.Time) {
	processedAt := at
	r.Processed = true
	r.Approved = true
	r.Rejected = false
	r.ProcessedAt = &processedAt
	r.ProcessorNotes = notes
}

// Reject фиксирует отказ по заявке.
func (r *ReturnRequest) Reject(notes string, at time.Time) {
	processedAt := at
	r.Processed = true
	r.Approved = false
	r.Rejected = true
	r.ProcessedAt = &processedAt
	r.ProcessorNotes = notes
}
