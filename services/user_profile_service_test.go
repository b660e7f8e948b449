package services

import (
	"context"
	"testing"

	"familyhub_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCurrentUser(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	profile, err := env.profiles.GetCurrentUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)

	_, err = env.profiles.GetCurrentUser(ctx, "")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	_, err = env.profiles.GetCurrentUser(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestGetDisplayNamesDeduplicates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	names, err := env.profiles.GetDisplayNames(ctx, []string{"alice", "bob", "alice", "", "nobody"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"alice": "Alice", "bob": "Bob"}, names)
}

func TestGetDisplayNamesEmpty(t *testing.T) {
	env := newTestEnv()

	names, err := env.profiles.GetDisplayNames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}
