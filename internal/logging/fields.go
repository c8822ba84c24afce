package logging

const (
	// FieldComponent names the subsystem that emitted a line.
	FieldComponent = "component"
	// FieldActionID identifies a queued action.
	FieldActionID = "action_id"
	// FieldActionKind is the application-level category of a queued action.
	FieldActionKind = "action_kind"
	FieldEndpoint   = "endpoint"
	FieldMethod     = "method"
	FieldAttempts   = "attempts"
	FieldTransport  = "transport"
	// FieldTrigger records why a sync pass was requested (reconnect, login, startup, manual).
	FieldTrigger = "trigger"
	// FieldEventType classifies WARN/ERROR lines for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)
