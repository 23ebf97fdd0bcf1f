package log

import "context"

// Audit records security-relevant events on a logger whose component is
// "audit", so they can be filtered out of the general stream.
type Audit struct {
	logger *Logger
}

func NewAudit(base *Logger) *Audit {
	if base == nil {
		base = Discard()
	}
	return &Audit{logger: base.WithComponent(ComponentAudit)}
}

func (a *Audit) Record(ctx context.Context, event string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	a.logger.InfoContext(ctx, event, append([]any{FieldEvent, event}, fields.ToSlice()...)...)
}

func (a *Audit) Denied(ctx context.Context, externalID int64, action string) {
	a.logger.WarnContext(ctx, EventAuthDenied,
		FieldEvent, EventAuthDenied,
		FieldExternalID, externalID,
		FieldOperation, action)
}
