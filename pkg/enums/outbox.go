package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateInvoice     OutboxAggregateType = "invoice"
	AggregateStorePeriod OutboxAggregateType = "store_period"
)

var aggregateTypes = []OutboxAggregateType{AggregateInvoice, AggregateStorePeriod}

func (a OutboxAggregateType) IsValid() bool { return known(a, aggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, aggregateTypes, "aggregate type")
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventInvoiceCreated       OutboxEventType = "invoice_created"
	EventInvoiceProofUploaded OutboxEventType = "invoice_proof_uploaded"
	EventInvoiceProofRejected OutboxEventType = "invoice_proof_rejected"
	EventInvoiceSettled       OutboxEventType = "invoice_settled"
	EventStorePeriodReopened  OutboxEventType = "store_period_reopened"
)

var eventTypes = []OutboxEventType{
	EventInvoiceCreated,
	EventInvoiceProofUploaded,
	EventInvoiceProofRejected,
	EventInvoiceSettled,
	EventStorePeriodReopened,
}

func (e OutboxEventType) IsValid() bool { return known(e, eventTypes) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, eventTypes, "event type")
}
