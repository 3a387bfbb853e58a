package errors

// Error codes for the bus contracts. Keep stable; used across adapters, endpoints and the bus.
const (
	ErrCodeHandlerExists            = "servicebus.handler_exists"
	ErrCodeHandlerNotFound          = "servicebus.handler_not_found"
	ErrCodeHandlerTypeMismatch      = "servicebus.handler_type_mismatch"
	ErrCodeCorrelationNotConfigured = "servicebus.correlation_not_configured"
	ErrCodeClientNotConfigured      = "servicebus.client_not_configured"
	ErrCodeInvalidConfig            = "servicebus.invalid_config"
	ErrCodeInvalidMessage           = "servicebus.invalid_message"
	ErrCodeBusClosed                = "servicebus.closed"
	ErrCodePublishFailed            = "servicebus.publish_failed"
	ErrCodeReplyFailed              = "servicebus.reply_failed"
	ErrCodeSendFailed               = "servicebus.send_failed"
	ErrCodeSubscribeFailed          = "servicebus.subscribe_failed"
	ErrCodeEndpointPanic            = "servicebus.endpoint_panic"
	ErrCodeHandlerPanic             = "servicebus.handler_panic"
	ErrCodeEndpointStream           = "servicebus.endpoint_stream_failed"
	ErrCodeDisposeFailed            = "servicebus.dispose_failed"
	ErrCodeSerializationFailed      = "servicebus.serialization_failed"
	ErrCodeUnknownMessageType       = "servicebus.unknown_message_type"
	ErrCodeRoleMismatch             = "servicebus.role_mismatch"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrHandlerExists            = Code(ErrCodeHandlerExists)
	ErrHandlerNotFound          = Code(ErrCodeHandlerNotFound)
	ErrHandlerTypeMismatch      = Code(ErrCodeHandlerTypeMismatch)
	ErrCorrelationNotConfigured = Code(ErrCodeCorrelationNotConfigured)
	ErrClientNotConfigured      = Code(ErrCodeClientNotConfigured)
	ErrInvalidConfig            = Code(ErrCodeInvalidConfig)
	ErrInvalidMessage           = Code(ErrCodeInvalidMessage)
	ErrBusClosed                = Code(ErrCodeBusClosed)
	ErrPublishFailed            = Code(ErrCodePublishFailed)
	ErrReplyFailed              = Code(ErrCodeReplyFailed)
	ErrSendFailed               = Code(ErrCodeSendFailed)
	ErrSubscribeFailed          = Code(ErrCodeSubscribeFailed)
	ErrEndpointPanic            = Code(ErrCodeEndpointPanic)
	ErrHandlerPanic             = Code(ErrCodeHandlerPanic)
	ErrEndpointStream           = Code(ErrCodeEndpointStream)
	ErrDisposeFailed            = Code(ErrCodeDisposeFailed)
	ErrSerializationFailed      = Code(ErrCodeSerializationFailed)
	ErrUnknownMessageType       = Code(ErrCodeUnknownMessageType)
	ErrRoleMismatch             = Code(ErrCodeRoleMismatch)
)
