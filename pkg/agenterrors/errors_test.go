package agenterrors_test

import (
	"errors"
	"testing"

	"github.com/odvcencio/cadence/pkg/agenterrors"
	"github.com/stretchr/testify/require"
)

func TestNewAndWithContext(t *testing.T) {
	err := agenterrors.New(agenterrors.Config, "plan change denied").
		WithContext("reason", "acceptance locked").
		WithRemediation("ask the user to unlock acceptance criteria")

	require.Equal(t, agenterrors.Config, err.Kind)
	require.Contains(t, err.Error(), "plan change denied")
	require.Contains(t, err.Error(), "acceptance locked")
	require.True(t, agenterrors.IsKind(err, agenterrors.Config))
}

func TestWrapPreservesUnderlyingForUnwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := agenterrors.Wrap(cause, agenterrors.Unknown, "tool failed")

	require.ErrorIs(t, err, cause)
	require.Equal(t, agenterrors.Unknown, agenterrors.GetKind(err))
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.Nil(t, agenterrors.Wrap(nil, agenterrors.Unknown, "no-op"))
}

func TestGetKindOnPlainErrorIsUnknown(t *testing.T) {
	plain := errors.New("plain")
	require.Equal(t, agenterrors.Unknown, agenterrors.GetKind(plain))
}
