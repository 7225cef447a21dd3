package history

import "codeberg.org/mutker/ventctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("history_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitHistory
	ErrStorageClose = errors.ErrShutdownFailed

	// Sample Errors
	ErrInvalidSample  = errors.ErrRecordSample
	ErrRateOutOfRange = errors.ErrorCode("history_rate_out_of_range")

	// Aggregation Errors
	ErrAggregation = errors.ErrAggregation

	// Import Errors
	ErrImportPayload = errors.ErrImportPayload
)
