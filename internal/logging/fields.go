package logging

// Standardized attribute keys shared by all components so log output stays
// greppable across the daemon, workers, and CLI.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldItemPath  = "item_path"
	FieldGallery   = "gallery"
	FieldHost      = "host"
	FieldRequestID = "request_id"
	FieldTier      = "tier"
	FieldWorkerID  = "worker_id"
)
