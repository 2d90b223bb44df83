package enums

// InvoiceStatus maps to the invoice_status enum in Postgres.
type InvoiceStatus string

const (
	InvoiceStatusAwaitingPayment      InvoiceStatus = "awaiting_payment"
	InvoiceStatusAwaitingVerification InvoiceStatus = "awaiting_verification"
	InvoiceStatusSettled              InvoiceStatus = "settled"
)

var invoiceStatuses = []InvoiceStatus{
	InvoiceStatusAwaitingPayment,
	InvoiceStatusAwaitingVerification,
	InvoiceStatusSettled,
}

func (s InvoiceStatus) String() string { return string(s) }

func (s InvoiceStatus) IsValid() bool { return known(s, invoiceStatuses) }

// IsTerminal reports whether no further transition is permitted.
func (s InvoiceStatus) IsTerminal() bool { return s == InvoiceStatusSettled }

func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	return parse(value, invoiceStatuses, "invoice status")
}
