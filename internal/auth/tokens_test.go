package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
)

func newTestStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, "0123456789abcdef-secret", 15*time.Minute, 7*24*time.Hour), mr
}

func TestIssueAndLookup(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	issued, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	require.NotEqual(t, issued.Access, issued.Refresh)

	claims, err := store.Lookup(ctx, issued.Access)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, issued.FamilyID, claims.FamilyID)

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, issued.Access, "raw token must not be used as key")
	}

	mr.FastForward(16 * time.Minute)
	_, err = store.Lookup(ctx, issued.Access)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestRotateKeepsFamilyAndInvalidatesOldToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Issue(ctx, 7)
	require.NoError(t, err)

	second, err := store.Rotate(ctx, first.Refresh)
	require.NoError(t, err)
	assert.Equal(t, first.FamilyID, second.FamilyID)
	assert.NotEqual(t, first.Refresh, second.Refresh)

	_, err = store.Lookup(ctx, second.Access)
	require.NoError(t, err)
}

func TestRotateReuseRevokesFamily(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Issue(ctx, 7)
	require.NoError(t, err)
	second, err := store.Rotate(ctx, first.Refresh)
	require.NoError(t, err)

	_, err = store.Rotate(ctx, first.Refresh)
	require.ErrorIs(t, err, shared.ErrTokenReused)

	_, err = store.Lookup(ctx, second.Access)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = store.Rotate(ctx, second.Refresh)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestRotateLeavesConsumedMarkerInFamily(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	first, err := store.Issue(ctx, 7)
	require.NoError(t, err)
	_, err = store.Rotate(ctx, first.Refresh)
	require.NoError(t, err)

	h := store.hash(first.Refresh)
	assert.False(t, mr.Exists(refreshKey(h)))
	fid, err := mr.Get(consumedKey(h))
	require.NoError(t, err)
	assert.Equal(t, first.FamilyID, fid)
	assert.Greater(t, mr.TTL(consumedKey(h)), 6*24*time.Hour)
	members, err := mr.Members(familyKey(first.FamilyID))
	require.NoError(t, err)
	assert.Contains(t, members, consumedKey(h))
}

func TestRotateConcurrentReplayDetected(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Issue(ctx, 7)
	require.NoError(t, err)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Rotate(ctx, first.Refresh)
		}(i)
	}
	wg.Wait()

	// The first replay revokes the family, consumed markers included, so
	// later replays may only see an unknown token.
	var ok, reused, unknown int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shared.ErrTokenReused):
			reused++
		case errors.Is(err, shared.ErrUnauthorized):
			unknown++
		default:
			t.Errorf("unexpected rotate error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.GreaterOrEqual(t, reused, 1)
	assert.Equal(t, callers-1, reused+unknown)
}

func TestRotateUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Rotate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = store.Rotate(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestRevokeUserKeepsCurrentFamily(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	phone, err := store.Issue(ctx, 3)
	require.NoError(t, err)
	laptop, err := store.Issue(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, store.RevokeUser(ctx, 3, laptop.FamilyID))

	_, err = store.Lookup(ctx, phone.Access)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = store.Lookup(ctx, laptop.Access)
	assert.NoError(t, err)

	fid, err := store.FamilyOf(ctx, laptop.Refresh)
	require.NoError(t, err)
	assert.Equal(t, laptop.FamilyID, fid)
}
