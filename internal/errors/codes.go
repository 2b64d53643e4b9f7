// Package errors provides structured error handling for onechelp.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Archive parse errors
//   - 3XX: Document store errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Lookup (not found) results
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryParse indicates archive decoding errors.
	CategoryParse Category = "PARSE"
	// CategoryStore indicates document store errors.
	CategoryStore Category = "STORE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryNotFound indicates a legitimate zero-result lookup.
	CategoryNotFound Category = "NOT_FOUND"
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

	// Parse errors (200-299)
	ErrCodeArchiveNotFound   = "ERR_201_ARCHIVE_NOT_FOUND"
	ErrCodeUnsupportedFormat = "ERR_202_UNSUPPORTED_FORMAT"
	ErrCodeArchiveTooLarge   = "ERR_203_ARCHIVE_TOO_LARGE"
	ErrCodeEntryMalformed    = "ERR_204_ENTRY_MALFORMED"
	ErrCodeOwnerUnresolved   = "ERR_205_OWNER_UNRESOLVED"
	ErrCodeMappingInvalid    = "ERR_206_MAPPING_INVALID"

	// Store errors (300-399)
	ErrCodeStoreUnavailable = "ERR_301_STORE_UNAVAILABLE"
	ErrCodeStoreTimeout     = "ERR_302_STORE_TIMEOUT"
	ErrCodeBulkWriteFailed  = "ERR_303_BULK_WRITE_FAILED"
	ErrCodeAliasSwapFailed  = "ERR_304_ALIAS_SWAP_FAILED"
	ErrCodeStoreSchema      = "ERR_305_STORE_SCHEMA"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeLimitInvalid = "ERR_403_LIMIT_INVALID"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeRebuildBusy  = "ERR_503_REBUILD_IN_PROGRESS"
	ErrCodeIndexFailed  = "ERR_504_INDEX_FAILED"

	// Lookup results (600-699)
	ErrCodeNotFound = "ERR_601_NOT_FOUND"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryParse
	case '3':
		return CategoryStore
	case '4':
		return CategoryValidation
	case '6':
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeUnsupportedFormat, ErrCodeArchiveNotFound, ErrCodeStoreSchema:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a transient,
// retryable store failure. Retrying belongs to the orchestrator's
// write path only.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeStoreTimeout, ErrCodeBulkWriteFailed:
		return true
	}
	return false
}
