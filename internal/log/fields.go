package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldSyncID    = "sync_id"
	FieldComponent = "component"
	FieldEvent     = "event"

	// Domain fields
	FieldMetric = "metric"
	FieldDay    = "day"
	FieldDays   = "days"
	FieldGrade  = "grade"
	FieldScore  = "score"

	// Upstream fields
	FieldEndpoint = "endpoint"
	FieldStatus   = "status"
	FieldDomain   = "domain"

	// Path fields
	FieldPath    = "path"
	FieldDataDir = "data_dir"
)
