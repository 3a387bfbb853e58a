package nats_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-endpoint-bus/adapters/nats"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

func TestNewWithNATS_EmptyURL(t *testing.T) {
	_, _, err := nats.NewWithNATS(nats.Config{})
	require.ErrorIs(t, err, berr.ErrInvalidConfig)
}
