package iedb

import "fmt"

// ServiceError reports an application-level problem in a transport-level
// successful response, such as an unrecognized allele or malformed input.
// Service errors are never retried; they affect every peptide in the request.
type ServiceError struct {
	Status  int // HTTP status, 200 when the error was reported in the body
	Message string
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("service error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("service error: %s", e.Message)
}

// retryableStatus reports whether an HTTP status indicates a transient
// condition worth retrying.
func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}
