package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"whatsapp:+5215512345678":   "+5215512345678",
		" WhatsApp: +5215512345678": "+5215512345678",
		"+5215512345678":            "+5215512345678",
		"sms:+1555":                 "sms:+1555",
		"   ":                       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), "NormalizePhone(%q)", in)
	}
}

func TestUserService_ProvisionAndLookup(t *testing.T) {
	ctx := context.Background()
	svc := &UserService{DB: newServiceDB(t)}

	_, err := svc.Lookup(ctx, "+5215511111111")
	require.True(t, errors.Is(err, ErrUserNotFound), "got %v", err)

	u1, err := svc.Provision(ctx, "whatsapp:+5215511111111")
	require.NoError(t, err)
	assert.Equal(t, "+5215511111111", u1.Phone)

	u2, err := svc.Provision(ctx, "+5215511111111")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, u2.ID, "same phone must map to one user")

	got, err := svc.Lookup(ctx, "whatsapp:+5215511111111")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, got.ID)

	_, err = svc.Provision(ctx, "whatsapp:")
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestReplyStore_RememberAndReplay(t *testing.T) {
	ctx := context.Background()
	db := newServiceDB(t)
	u := seedUser(t, db, "+5215522222222")
	store := &ReplyStore{DB: db, TTL: time.Hour}

	hit, err := store.Exists(ctx, u.ID, "SM1", time.Now())
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, store.Remember(ctx, u.ID, "SM1", "Listo.", 200))
	// A second writer for the same key is absorbed.
	require.NoError(t, store.Remember(ctx, u.ID, "SM1", "otra", 200))
	// Empty keys are never stored.
	require.NoError(t, store.Remember(ctx, u.ID, "", "x", 200))

	reply, done, err := store.Claim(ctx, u.ID, "SM1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "Listo.", reply)

	now := time.Now()
	hit, err = store.Exists(ctx, u.ID, "SM1", now)
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = store.Exists(ctx, u.ID, "SM1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, hit, "expired replies are not replayed")

	other := seedUser(t, db, "+5215533333333")
	hit, err = store.Exists(ctx, other.ID, "SM1", now)
	require.NoError(t, err)
	assert.False(t, hit, "keys are scoped per user")
}

func TestReplyStore_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newServiceDB(t)
	u := seedUser(t, db, "+5215544444444")
	store := &ReplyStore{DB: db, TTL: time.Hour, PendingTTL: time.Minute}

	// Empty keys are never claimed.
	_, done, err := store.Claim(ctx, u.ID, "")
	require.NoError(t, err)
	assert.False(t, done)

	_, done, err = store.Claim(ctx, u.ID, "SM1")
	require.NoError(t, err)
	assert.False(t, done)

	_, _, err = store.Claim(ctx, u.ID, "SM1")
	assert.ErrorIs(t, err, ErrReplyInFlight)
	hit, err := store.Exists(ctx, u.ID, "SM1", time.Now())
	require.NoError(t, err)
	assert.False(t, hit, "a pending claim is not a stored reply")

	// A failed turn gives the key back.
	require.NoError(t, store.Release(ctx, u.ID, "SM1"))
	_, done, err = store.Claim(ctx, u.ID, "SM1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.Remember(ctx, u.ID, "SM1", "Listo.", 200))
	reply, done, err := store.Claim(ctx, u.ID, "SM1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "Listo.", reply)
}
