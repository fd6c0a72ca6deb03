package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilCancelToken(t *testing.T) {
	var token *CancelToken
	assert.False(t, token.Requested())
	assert.False(t, token.Escalated())
	assert.NoError(t, token.Context().Err())
}

func TestCancelTokenStates(t *testing.T) {
	token := NewCancelToken()
	assert.Equal(t, CancelNone, token.State())
	assert.NoError(t, token.Context().Err())

	assert.Equal(t, CancelRequested, token.Cancel())
	assert.True(t, token.Requested())
	assert.False(t, token.Escalated())
	assert.Error(t, token.Context().Err())

	assert.Equal(t, CancelEscalated, token.Cancel())
	assert.True(t, token.Requested())
	assert.True(t, token.Escalated())

	// stays escalated
	assert.Equal(t, CancelEscalated, token.Cancel())
}

func TestContentHash(t *testing.T) {
	first := ContentHash([]byte("Hi there :)"))
	assert.Len(t, first, 64)
	assert.Equal(t, first, ContentHash([]byte("Hi there :)")))
	assert.NotEqual(t, first, ContentHash([]byte("Hi there :(")))
}
