package enums

// OutboxDLQErrorReason records why the relay gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return known(r, dlqReasons) }
