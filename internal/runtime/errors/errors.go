package errors

import sterrors "errors"

var (
	ErrConfigRequired      = sterrors.New("reqflow: runtime config is required")
	ErrLoggerRequired      = sterrors.New("reqflow: logger is required")
	ErrHandlerRequired     = sterrors.New("reqflow: handler function is required")
	ErrHandlerNameRequired = sterrors.New("reqflow: handler name is required")
	ErrPatternRequired     = sterrors.New("reqflow: route pattern is required")
	ErrMethodRequired      = sterrors.New("reqflow: route method is required")
	ErrRuntimeStarted      = sterrors.New("reqflow: runtime already serving traffic")
	ErrTelemetryClosed     = sterrors.New("reqflow: telemetry already shut down")
)
