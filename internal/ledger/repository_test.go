package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverrides(t *testing.T) {
	id := uuid.New()
	out, err := parseOverrides(map[string]bool{id.String(): true})
	require.NoError(t, err)
	assert.Equal(t, true, out[id])

	out, err = parseOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = parseOverrides(map[string]bool{"not-a-uuid": false})
	assert.Error(t, err)
}
