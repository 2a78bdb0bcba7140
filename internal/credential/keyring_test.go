package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	require.NoError(t, s.Set(JiraTokenKey, "tok"))
	got, err := s.Get(JiraTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestStore_Missing(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	_, err := s.Get(JiraTokenKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, keyring.ErrKeyNotFound))
	assert.Contains(t, err.Error(), `"jira-api-token"`)
}
