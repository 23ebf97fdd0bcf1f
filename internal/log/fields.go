package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldOperation  = "operation"
	FieldEvent      = "event"
	FieldUserID     = "user_id"
	FieldExternalID = "external_id"
	FieldActorID    = "actor_id"
	FieldRole       = "role"
	FieldOpID       = "op_id"
	FieldOpType     = "op_type"
	FieldAmount     = "amount"
	FieldCategoryID = "category_id"
	FieldCategory   = "category"
	FieldSheetRef   = "sheet_ref"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldReason     = "reason"
	FieldError      = "error"
)

const (
	ComponentApp     = "app"
	ComponentAudit   = "audit"
	ComponentLedger  = "ledger"
	ComponentAuth    = "auth"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Audit event names.
const (
	EventAuthDenied          = "auth.denied"
	EventOperationPosted     = "operation.posted"
	EventOperationRejected   = "operation.rejected"
	EventUserCreated         = "user.created"
	EventUserReactivated     = "user.reactivated"
	EventUserDeactivated     = "user.deactivated"
	EventCategoryCreated     = "category.created"
	EventCategoryRenamed     = "category.renamed"
	EventCategoryDeactivated = "category.deactivated"
)

// LogFields is a small builder for slog key/value pairs.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithActor records who performed an action.
func (f LogFields) WithActor(userID, externalID int64, role string) LogFields {
	f[FieldActorID] = userID
	f[FieldExternalID] = externalID
	f[FieldRole] = role
	return f
}

func (f LogFields) WithLedgerOperation(id int64, opType string, amount int64) LogFields {
	if id != 0 {
		f[FieldOpID] = id
	}
	f[FieldOpType] = opType
	f[FieldAmount] = amount
	return f
}

func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice flattens the fields for slog. Order is unspecified.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
