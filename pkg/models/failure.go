package models

// Failure classes persisted on a failed job. The orchestrator translates
// stage errors into exactly one of these; they are what API clients see.
const (
	FailureValidation            = "validation_error"
	FailureDependency            = "dependency_error"
	FailureGenerationUnavailable = "generation_unavailable"
	FailureGenerationParse       = "generation_parse_error"
	FailurePersistence           = "persistence_error"
	FailureNotify                = "notify_error"
	FailureCancelled             = "cancelled"
)

// RetriableFailure reports whether a failure class is worth retrying with
// backoff. Validation and parse failures are deterministic; retrying the
// identical request cannot help.
func RetriableFailure(class string) bool {
	return class == FailureDependency || class == FailureGenerationUnavailable
}
