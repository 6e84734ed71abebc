package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one invocation of the engine.
	FieldRunID = "run_id"
	// FieldPass names the reconciliation pass (email_first, phone_first, backfill).
	FieldPass = "pass"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType is the key for decision logs.
	FieldDecisionType = "decision_type"
)
