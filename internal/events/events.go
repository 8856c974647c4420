package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	KindFamilyRegistered  = "family.registered"
	KindMemberAdded       = "member.added"
	KindAccountCreated    = "account.created"
	KindAccountClosed     = "account.closed"
	KindBalanceUpdated    = "balance.updated"
	KindTransferRequested = "transfer.requested"
	KindTransferCompleted = "transfer.completed"
	KindTransferRejected  = "transfer.rejected"
	KindTransferCancelled = "transfer.cancelled"
	KindLoanRequested     = "loan.requested"
	KindLoanApproved      = "loan.approved"
	KindLoanCancelled     = "loan.cancelled"
	KindLoanPaymentMade   = "loan.payment.made"
	KindListingCreated    = "listing.created"
	KindPurchaseRequested = "purchase.requested"
	KindPurchaseCompleted = "purchase.completed"
	KindPurchaseCancelled = "purchase.cancelled"
)

// Event describes a state change that already happened.
type Event struct {
	Kind       string
	FamilyID   string
	EntityID   string
	OccurredAt time.Time
	Fields     map[string]any
}

// Sink receives fire-and-forget notifications after successful state
// changes. Delivery failure never rolls back the mutation that produced the
// event; implementations swallow their own errors.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// LoggerSink writes events to the structured logger. It is the production
// default until a real broker is wired in.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink constructs a logging event sink.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Publish writes the event to the structured logger.
func (s *LoggerSink) Publish(_ context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info("event",
		"kind", event.Kind,
		"family_id", event.FamilyID,
		"entity_id", event.EntityID,
		"fields", event.Fields,
	)
}
