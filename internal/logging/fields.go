package logging

// Standardized attribute keys shared across components.
const (
	// FieldComponent identifies the subsystem emitting the record
	// (tunnel, server, client, index).
	FieldComponent = "component"

	// FieldEventType is a stable machine-readable event name.
	FieldEventType = "event_type"

	// FieldConnID correlates all records belonging to one accepted
	// connection.
	FieldConnID = "conn_id"

	// FieldErrorHint suggests the operator's next step after a warning
	// or error.
	FieldErrorHint = "error_hint"
)
