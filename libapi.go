package reqflow

import (
	runtimepkg "github.com/drblury/reqflow/internal/runtime"
	configpkg "github.com/drblury/reqflow/internal/runtime/config"
	errspkg "github.com/drblury/reqflow/internal/runtime/errors"
	idspkg "github.com/drblury/reqflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/reqflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

type (
	Config          = configpkg.Config
	RateLimitConfig = configpkg.RateLimitConfig

	Runtime      = runtimepkg.Runtime
	Dependencies = runtimepkg.Dependencies
	Handler      = runtimepkg.Handler
	Context      = runtimepkg.Context
	RequestClass = runtimepkg.RequestClass

	RequestEnvelope = runtimepkg.RequestEnvelope
	Response        = runtimepkg.Response
	RouteMatch      = runtimepkg.RouteMatch

	Next                   = runtimepkg.Next
	Middleware             = runtimepkg.Middleware
	MiddlewareFunc         = runtimepkg.MiddlewareFunc
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Request lifecycle hooks
	HookContext  = runtimepkg.HookContext
	RequestHooks = runtimepkg.RequestHooks

	// Lifecycle and shutdown
	RuntimeState        = runtimepkg.RuntimeState
	StateTransition     = runtimepkg.StateTransition
	ShutdownCoordinator = runtimepkg.ShutdownCoordinator
	ShutdownOptions     = runtimepkg.ShutdownOptions
	DrainResult         = runtimepkg.DrainResult

	// Telemetry
	TelemetrySnapshot = runtimepkg.TelemetrySnapshot
	RequestTiming     = runtimepkg.RequestTiming
	RequestEvent      = runtimepkg.RequestEvent

	// Rate limiting
	KeyFunc = runtimepkg.KeyFunc

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

var (
	NewRuntime             = runtimepkg.NewRuntime
	NewShutdownCoordinator = runtimepkg.NewShutdownCoordinator

	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	RequestIDMiddleware   = runtimepkg.RequestIDMiddleware
	LogRequestsMiddleware = runtimepkg.LogRequestsMiddleware
	RateLimitMiddleware   = runtimepkg.RateLimitMiddleware
	MetricsMiddleware     = runtimepkg.MetricsMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware

	// Request lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	// Response constructors
	TextResponse  = runtimepkg.TextResponse
	JSONResponse  = runtimepkg.JSONResponse
	ErrorResponse = runtimepkg.ErrorResponse

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrHandlerNameRequired = errspkg.ErrHandlerNameRequired
	ErrPatternRequired     = errspkg.ErrPatternRequired
	ErrMethodRequired      = errspkg.ErrMethodRequired
	ErrRuntimeStarted      = errspkg.ErrRuntimeStarted

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopLogger              = loggingpkg.NewNopLogger

	NewRequestID = idspkg.NewRequestID
)

// Lifecycle states.
const (
	StateStarting = runtimepkg.StateStarting
	StateReady    = runtimepkg.StateReady
	StateDegraded = runtimepkg.StateDegraded
	StateDraining = runtimepkg.StateDraining
	StateStopping = runtimepkg.StateStopping
)

// Request classes assigned before the pipeline runs.
const (
	ClassHealth = runtimepkg.ClassHealth
	ClassStatus = runtimepkg.ClassStatus
	ClassPage   = runtimepkg.ClassPage
)

// Status codes used by the runtime's error responses.
const (
	StatusOK              = runtimepkg.StatusOK
	StatusBadRequest      = runtimepkg.StatusBadRequest
	StatusNotFound        = runtimepkg.StatusNotFound
	StatusPayloadTooLarge = runtimepkg.StatusPayloadTooLarge
	StatusTooManyRequests = runtimepkg.StatusTooManyRequests
	StatusInternalError   = runtimepkg.StatusInternalError
	StatusUnavailable     = runtimepkg.StatusUnavailable
	StatusGatewayTimeout  = runtimepkg.StatusGatewayTimeout
)

// Event bus topics for lifecycle subscribers.
const (
	TopicStateTransitions = runtimepkg.TopicStateTransitions
	TopicRequests         = runtimepkg.TopicRequests
)
