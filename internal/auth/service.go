package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "kind" claim.
const (
	KindService  = "service"
	KindCallback = "callback"
)

// DevSecret is used when no JWT secret is configured.
const DevSecret = "supersecretmvp"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongKind    = errors.New("token kind mismatch")
)

// TokenService mints and validates the HMAC tokens used between the platform
// and its callers: long-lived service tokens and per-job callback tokens.
type TokenService interface {
	IssueServiceToken(subject string) (string, error)
	ValidateServiceToken(token string) (string, error)
	IssueCallbackToken(jobID string) (string, error)
	ValidateCallbackToken(token string) (string, error)
}

type service struct {
	secret      []byte
	serviceTTL  time.Duration
	callbackTTL time.Duration
	now         func() time.Time
}

// NewService returns a TokenService signing with secret. An empty secret
// falls back to DevSecret.
func NewService(secret string, serviceTTL, callbackTTL time.Duration) *service {
	if secret == "" {
		secret = DevSecret
	}
	if serviceTTL <= 0 {
		serviceTTL = 24 * time.Hour
	}
	if callbackTTL <= 0 {
		callbackTTL = 24 * time.Hour
	}
	return &service{secret: []byte(secret), serviceTTL: serviceTTL, callbackTTL: callbackTTL, now: time.Now}
}

// Ensure service implements TokenService at compile time.
var _ TokenService = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Kind  string `json:"kind"`
	JobID string `json:"job_id,omitempty"`
}

func (s *service) IssueServiceToken(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	return s.sign(claims{
		RegisteredClaims: s.registered(subject, s.serviceTTL),
		Kind:             KindService,
	})
}

// ValidateServiceToken returns the token subject.
func (s *service) ValidateServiceToken(token string) (string, error) {
	c, err := s.parse(token, KindService)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

func (s *service) IssueCallbackToken(jobID string) (string, error) {
	if jobID == "" {
		return "", errors.New("job id is required")
	}
	return s.sign(claims{
		RegisteredClaims: s.registered("worker", s.callbackTTL),
		Kind:             KindCallback,
		JobID:            jobID,
	})
}

// ValidateCallbackToken returns the job id the token was issued for.
func (s *service) ValidateCallbackToken(token string) (string, error) {
	c, err := s.parse(token, KindCallback)
	if err != nil {
		return "", err
	}
	if c.JobID == "" {
		return "", ErrInvalidToken
	}
	return c.JobID, nil
}

func (s *service) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func (s *service) sign(c claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) parse(token, kind string) (*claims, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if c.Kind != kind {
		return nil, ErrWrongKind
	}
	return c, nil
}
