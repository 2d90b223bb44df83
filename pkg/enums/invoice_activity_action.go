package enums

// InvoiceActivityAction tags an entry in the invoice activity log.
type InvoiceActivityAction string

const (
	InvoiceActivityCreated       InvoiceActivityAction = "created"
	InvoiceActivityProofUploaded InvoiceActivityAction = "proof_uploaded"
	InvoiceActivityProofRejected InvoiceActivityAction = "proof_rejected"
	InvoiceActivitySettled       InvoiceActivityAction = "settled"
)

var invoiceActivityActions = []InvoiceActivityAction{
	InvoiceActivityCreated,
	InvoiceActivityProofUploaded,
	InvoiceActivityProofRejected,
	InvoiceActivitySettled,
}

func (a InvoiceActivityAction) IsValid() bool { return known(a, invoiceActivityActions) }

func ParseInvoiceActivityAction(value string) (InvoiceActivityAction, error) {
	return parse(value, invoiceActivityActions, "invoice activity action")
}
