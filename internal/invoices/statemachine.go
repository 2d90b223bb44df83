package invoices

import (
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
)

// Event drives the payment verification state machine.
type Event string

const (
	EventUploadProof Event = "upload_proof"
	EventConfirm     Event = "confirm"
	EventReject      Event = "reject"
)

type transitionKey struct {
	from  enums.InvoiceStatus
	event Event
}

var transitions = map[transitionKey]enums.InvoiceStatus{
	{enums.InvoiceStatusAwaitingPayment, EventUploadProof}:  enums.InvoiceStatusAwaitingVerification,
	{enums.InvoiceStatusAwaitingVerification, EventConfirm}: enums.InvoiceStatusSettled,
	{enums.InvoiceStatusAwaitingVerification, EventReject}:  enums.InvoiceStatusAwaitingPayment,
	{enums.InvoiceStatusSettled, EventConfirm}:              enums.InvoiceStatusSettled,
}

// Transition returns the status reached by applying event to from. noop is
// true when the event is accepted without changing anything (confirming a
// settled invoice).
func Transition(from enums.InvoiceStatus, event Event) (to enums.InvoiceStatus, noop bool, err error) {
	to, ok := transitions[transitionKey{from: from, event: event}]
	if !ok {
		return from, false, invalidTransition(from, event)
	}
	return to, to == from, nil
}

func invalidTransition(from enums.InvoiceStatus, event Event) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid invoice transition").
		WithDetails(map[string]any{"status": from, "event": event})
}
