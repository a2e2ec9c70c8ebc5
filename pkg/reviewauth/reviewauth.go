// Package reviewauth signs and verifies human review decisions for
// plan changes and patches gated into needs_user_review (§4.2), so a
// decision recorded in plan_history can be traced back to an
// authenticated reviewer. Grounded on the teacher's
// pkg/coordination/security TokenManager, narrowed from general agent
// authentication to single-purpose review-decision tokens and with the
// gRPC interceptor surface dropped (this runtime has no gRPC server).
package reviewauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid review token")
	ErrExpiredToken = errors.New("review token has expired")
	ErrRevokedToken = errors.New("review token has been revoked")
)

// Decision is a reviewer's verdict on a gated plan change or patch.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// ReviewClaims identifies who decided what, for which run/turn, and
// why.
type ReviewClaims struct {
	RunID    string   `json:"run_id"`
	TurnID   string   `json:"turn_id"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies review-decision tokens signed with a
// shared secret key.
type Signer struct {
	secretKey     []byte
	mu            sync.RWMutex
	revokedTokens map[string]time.Time
}

// NewSigner creates a Signer bound to secretKey.
func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: []byte(secretKey), revokedTokens: make(map[string]time.Time)}
}

// Sign issues a signed token recording a reviewer's decision on a given
// run/turn, valid for duration.
func (s *Signer) Sign(reviewerID, runID, turnID string, decision Decision, reason string, duration time.Duration) (string, error) {
	tokenID, err := randomID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := time.Now()
	claims := &ReviewClaims{
		RunID:    runID,
		TurnID:   turnID,
		Decision: decision,
		Reason:   reason,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   reviewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign review token: %w", err)
	}
	return signed, nil
}

// Verify validates a review token and returns the decision it carries.
func (s *Signer) Verify(tokenString string) (*ReviewClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ReviewClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ReviewClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	s.mu.RLock()
	_, revoked := s.revokedTokens[claims.ID]
	s.mu.RUnlock()
	if revoked {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// Revoke invalidates a previously issued token, e.g. when a reviewer
// retracts a decision before it is applied.
func (s *Signer) Revoke(tokenString string) error {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &ReviewClaims{})
	if err != nil {
		return fmt.Errorf("parse review token: %w", err)
	}
	claims, ok := token.Claims.(*ReviewClaims)
	if !ok {
		return ErrInvalidToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedTokens[claims.ID] = time.Now()
	return nil
}

func randomID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
