// Package errors provides structured error handling for knowbase.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Source adapter errors
//   - 3XX: Extraction and processing errors
//   - 4XX: Query validation errors
//   - 5XX: Store and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategorySource indicates source adapter errors.
	CategorySource Category = "SOURCE"
	// CategoryProcessing indicates extraction/processing errors.
	CategoryProcessing Category = "PROCESSING"
	// CategoryQuery indicates query validation errors.
	CategoryQuery Category = "QUERY"
	// CategoryStore indicates store-level and internal errors.
	CategoryStore Category = "STORE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownRepo    = "ERR_103_UNKNOWN_REPOSITORY"

	// Source errors (200-299)
	ErrCodeSourceUnavailable = "ERR_201_SOURCE_UNAVAILABLE"
	ErrCodeSourceTimeout     = "ERR_202_SOURCE_TIMEOUT"
	ErrCodeFileNotFound      = "ERR_203_FILE_NOT_FOUND"

	// Extraction/processing errors (300-399)
	ErrCodeSkippedContent  = "ERR_301_SKIPPED_CONTENT"
	ErrCodeProcessingError = "ERR_302_PROCESSING_ERROR"

	// Query errors (400-499)
	ErrCodeInvalidQuery       = "ERR_401_INVALID_QUERY"
	ErrCodeQueryLimitExceeded = "ERR_402_QUERY_LIMIT_EXCEEDED"
	ErrCodeInvalidMode        = "ERR_403_INVALID_SEARCH_MODE"
	ErrCodeEntityNotFound     = "ERR_404_ENTITY_NOT_FOUND"

	// Store/internal errors (500-599)
	ErrCodeStoreConflict    = "ERR_501_STORE_CONFLICT"
	ErrCodeStoreCorrupt     = "ERR_502_STORE_CORRUPT"
	ErrCodeIndexFailed      = "ERR_503_INDEX_FAILED"
	ErrCodeEmbedUnavailable = "ERR_504_EMBEDDER_UNAVAILABLE"
	ErrCodeInternal         = "ERR_505_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryStore
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategorySource
	case '3':
		return CategoryProcessing
	case '4':
		return CategoryQuery
	default:
		return CategoryStore
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt:
		return SeverityFatal
	case ErrCodeSkippedContent, ErrCodeProcessingError, ErrCodeEmbedUnavailable:
		// Recovered locally with skip-and-continue counters.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSourceUnavailable, ErrCodeSourceTimeout, ErrCodeStoreConflict:
		return true
	default:
		return false
	}
}
