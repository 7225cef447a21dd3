package errors

// Common error codes
const (
	// System errors
	ErrInternal ErrorCode = "internal_error"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrMissingSetpoint ErrorCode = "missing_setpoint"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Interlock errors
	ErrCircuitOpen  ErrorCode = "circuit_open"
	ErrCounterStuck ErrorCode = "request_counter_stuck"

	// Device errors
	ErrDeviceUnreachable ErrorCode = "device_unreachable"
	ErrDeviceMissing     ErrorCode = "device_missing"
	ErrDispatchFailed    ErrorCode = "dispatch_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"

	// History errors
	ErrInitHistory   ErrorCode = "init_history_failed"
	ErrRecordSample  ErrorCode = "record_sample_failed"
	ErrAggregation   ErrorCode = "aggregation_failed"
	ErrImportPayload ErrorCode = "import_payload_invalid"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidConfig:     "Invalid configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read configuration",
	ErrInvalidInterval:   "Invalid interval value",
	ErrMissingSetpoint:   "No setpoint configured for mode",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrShutdownFailed:    "Shutdown failed",
	ErrAlreadyRunning:    "Process is already running",
	ErrCircuitOpen:       "Circuit breaker is open",
	ErrCounterStuck:      "Request counter exceeded its bound",
	ErrDeviceUnreachable: "Device is unreachable",
	ErrDeviceMissing:     "Device disappeared during cycle",
	ErrDispatchFailed:    "Failed to dispatch vent command",
	ErrOperationFailed:   "Operation failed",
	ErrInitHistory:       "Failed to initialize rate history",
	ErrRecordSample:      "Failed to record rate sample",
	ErrAggregation:       "Failed to aggregate daily rates",
	ErrImportPayload:     "Invalid efficiency import payload",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
