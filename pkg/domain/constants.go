package domain

// Form and query field names shared by the page instrumentation and the server.
const (
	FieldClientID  = "captureClientID"
	FieldServerURL = "captureServerURL"
	FieldModule    = "module"
	FieldImage     = "image"
	FieldFilter    = "filter"
)

// ImageExt is the extension given to every persisted artifact.
const ImageExt = ".png"

// DefaultGroup is used when a submission does not name its logical group.
const DefaultGroup = "screenshot"
