// Package auth validates and mints candidate invite tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"interviewroom/pkg/interfaces"
)

// Errors returned by the issuer
var (
	ErrMissingSecret = errors.New("invite secret is required")
	ErrInvalidTTL    = errors.New("invite ttl must be positive")
)

// DefaultIssuer is stamped into minted invites and required on validation
const DefaultIssuer = "interviewroom"

// InviteClaims binds a token to one interview and one candidate
type InviteClaims struct {
	InterviewID string `json:"interview_id"`
	CandidateID string `json:"candidate_id"`
	jwt.RegisteredClaims
}

// Invites mints and validates HS256 invite tokens
type Invites struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ interfaces.TokenValidator = (*Invites)(nil)

// NewInvites creates an invite issuer; an empty issuer selects DefaultIssuer
func NewInvites(secret, issuer string) (*Invites, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Invites{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Mint signs an invite for candidateID to interviewID valid for ttl
func (a *Invites) Mint(interviewID, candidateID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	now := a.now()
	claims := InviteClaims{
		InterviewID: interviewID,
		CandidateID: candidateID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   candidateID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateInvite checks signature, issuer, expiry and that the token names
// exactly this interview and candidate
// FUNCTIONAL DISCOVERY: Every failure collapses to ErrInvalidToken so a client
// cannot tell an expired invite from one for another interview
func (a *Invites) ValidateInvite(token, interviewID, candidateID string) error {
	claims := &InviteClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidToken, err)
	}
	if claims.InterviewID != interviewID || claims.CandidateID != candidateID {
		return fmt.Errorf("%w: token issued for another interview or candidate", interfaces.ErrInvalidToken)
	}
	return nil
}
