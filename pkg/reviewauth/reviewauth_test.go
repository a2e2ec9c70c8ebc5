package reviewauth_test

import (
	"testing"
	"time"

	"github.com/odvcencio/cadence/pkg/reviewauth"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrips(t *testing.T) {
	s := reviewauth.NewSigner("test-secret")

	token, err := s.Sign("reviewer-1", "run-1", "turn-3", reviewauth.DecisionApprove, "looks safe", time.Hour)
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "run-1", claims.RunID)
	require.Equal(t, "turn-3", claims.TurnID)
	require.Equal(t, reviewauth.DecisionApprove, claims.Decision)
	require.Equal(t, "reviewer-1", claims.Subject)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := reviewauth.NewSigner("test-secret")
	token, err := s.Sign("reviewer-1", "run-1", "turn-1", reviewauth.DecisionDeny, "", -time.Minute)
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.ErrorIs(t, err, reviewauth.ErrExpiredToken)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	s := reviewauth.NewSigner("test-secret")
	token, err := s.Sign("reviewer-1", "run-1", "turn-1", reviewauth.DecisionApprove, "", time.Hour)
	require.NoError(t, err)

	_, err = s.Verify(token + "x")
	require.ErrorIs(t, err, reviewauth.ErrInvalidToken)
}

func TestRevokeInvalidatesToken(t *testing.T) {
	s := reviewauth.NewSigner("test-secret")
	token, err := s.Sign("reviewer-1", "run-1", "turn-1", reviewauth.DecisionApprove, "", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(token))

	_, err = s.Verify(token)
	require.ErrorIs(t, err, reviewauth.ErrRevokedToken)
}

func TestDifferentSecretsRejectCrossSignedTokens(t *testing.T) {
	a := reviewauth.NewSigner("secret-a")
	b := reviewauth.NewSigner("secret-b")

	token, err := a.Sign("reviewer-1", "run-1", "turn-1", reviewauth.DecisionApprove, "", time.Hour)
	require.NoError(t, err)

	_, err = b.Verify(token)
	require.ErrorIs(t, err, reviewauth.ErrInvalidToken)
}
