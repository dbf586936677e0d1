package entities

// ValidationResult is the outcome of validating a candidate image without
// processing it.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// UploadResult is what the upload operation reports to callers. Error is
// advisory whenever Representation is usable.
type UploadResult struct {
	Representation Representation
	IsDegraded     bool
	ErrorKind      UploadErrorKind
	Error          string
}
