package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceToken_RoundTrip(t *testing.T) {
	s := NewService("test-secret", time.Hour, time.Hour)

	tok, err := s.IssueServiceToken("billing")
	require.NoError(t, err)

	sub, err := s.ValidateServiceToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "billing", sub)
}

func TestCallbackToken_BindsJobID(t *testing.T) {
	s := NewService("test-secret", time.Hour, time.Hour)

	tok, err := s.IssueCallbackToken("job-42")
	require.NoError(t, err)

	jobID, err := s.ValidateCallbackToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	s := NewService("test-secret", time.Hour, time.Hour)

	cb, err := s.IssueCallbackToken("job-42")
	require.NoError(t, err)
	_, err = s.ValidateServiceToken(cb)
	assert.ErrorIs(t, err, ErrWrongKind)

	svc, err := s.IssueServiceToken("billing")
	require.NoError(t, err)
	_, err = s.ValidateCallbackToken(svc)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestValidate_WrongSecret(t *testing.T) {
	tok, err := NewService("one", time.Hour, time.Hour).IssueServiceToken("billing")
	require.NoError(t, err)

	_, err = NewService("two", time.Hour, time.Hour).ValidateServiceToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	s := NewService("test-secret", time.Minute, time.Minute)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := s.IssueCallbackToken("job-1")
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.ValidateCallbackToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	s := NewService("", 0, 0)
	_, err := s.ValidateServiceToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssue_RequiresIdentity(t *testing.T) {
	s := NewService("x", 0, 0)
	_, err := s.IssueServiceToken("")
	assert.Error(t, err)
	_, err = s.IssueCallbackToken("")
	assert.Error(t, err)
}
