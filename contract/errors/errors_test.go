package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := berr.Code(berr.ErrCodePublishFailed)
	require.Equal(t, berr.ErrCodePublishFailed, e.Error())

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{berr.ErrHandlerExists, berr.ErrCodeHandlerExists},
		{berr.ErrHandlerNotFound, berr.ErrCodeHandlerNotFound},
		{berr.ErrHandlerPanic, berr.ErrCodeHandlerPanic},
		{berr.ErrHandlerTypeMismatch, berr.ErrCodeHandlerTypeMismatch},
		{berr.ErrCorrelationNotConfigured, berr.ErrCodeCorrelationNotConfigured},
		{berr.ErrClientNotConfigured, berr.ErrCodeClientNotConfigured},
		{berr.ErrInvalidConfig, berr.ErrCodeInvalidConfig},
		{berr.ErrInvalidMessage, berr.ErrCodeInvalidMessage},
		{berr.ErrBusClosed, berr.ErrCodeBusClosed},
		{berr.ErrPublishFailed, berr.ErrCodePublishFailed},
		{berr.ErrReplyFailed, berr.ErrCodeReplyFailed},
		{berr.ErrSendFailed, berr.ErrCodeSendFailed},
		{berr.ErrSubscribeFailed, berr.ErrCodeSubscribeFailed},
		{berr.ErrEndpointPanic, berr.ErrCodeEndpointPanic},
		{berr.ErrEndpointStream, berr.ErrCodeEndpointStream},
		{berr.ErrDisposeFailed, berr.ErrCodeDisposeFailed},
		{berr.ErrSerializationFailed, berr.ErrCodeSerializationFailed},
		{berr.ErrUnknownMessageType, berr.ErrCodeUnknownMessageType},
		{berr.ErrRoleMismatch, berr.ErrCodeRoleMismatch},
	}

	for _, tc := range tests {
		require.ErrorIs(t, tc.err, berr.Code(tc.code))
	}
}

type evt struct{}

func TestCompoundError_UnwrapsCodeAndFailures(t *testing.T) {
	boomA := errors.New("a down")
	boomC := errors.New("c down")

	err := error(&berr.CompoundError{
		Code:      berr.ErrPublishFailed,
		Op:        "publish",
		Message:   evt{},
		Attempted: []string{"a", "b", "c"},
		Failures: []*berr.EndpointError{
			{Endpoint: "a", Err: boomA},
			{Endpoint: "c", Err: boomC},
		},
	})

	require.ErrorIs(t, err, berr.ErrPublishFailed)
	require.ErrorIs(t, err, boomA)
	require.ErrorIs(t, err, boomC)
	require.NotErrorIs(t, err, berr.ErrReplyFailed)

	var ce *berr.CompoundError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, []string{"a", "c"}, ce.Endpoints())
	require.Contains(t, err.Error(), "2 of 3 endpoints failed")
	require.Contains(t, err.Error(), "endpoint a: a down")
}

func TestStreamError_IsEndpointStream(t *testing.T) {
	cause := errors.New("decode")
	err := error(&berr.StreamError{Endpoint: "nats", Role: "command", Err: cause})

	require.ErrorIs(t, err, berr.ErrEndpointStream)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "endpoint nats command stream: decode", err.Error())
}
