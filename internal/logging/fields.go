package logging

// Standardized attribute keys shared across components. Keeping these in one
// place makes log output greppable and keeps the console handler's component
// promotion working.
const (
	FieldComponent  = "component"
	FieldEventType  = "event_type"
	FieldIdentifier = "identifier"
	FieldScope      = "scope"
	FieldKind       = "kind"
)
