package tokenstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/identity/tokenstore"
)

func TestInMemoryRepo(t *testing.T) {
	r := tokenstore.NewInMemoryRepo()

	require.Error(t, r.Upsert("", "client", tokenstore.Tokens{}))
	require.Error(t, r.Upsert("realm", "", tokenstore.Tokens{}))

	require.NoError(t, r.Upsert("realm", "client", tokenstore.Tokens{AccessToken: "a", RefreshToken: "r"}))
	got, err := r.Get("realm", "client")
	require.NoError(t, err)
	require.Equal(t, "a", got.AccessToken)

	_, err = r.Get("realm", "other")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, r.Delete("realm", "client"))
	require.NoError(t, r.Delete("realm", "client"))
	_, err = r.Get("realm", "client")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
