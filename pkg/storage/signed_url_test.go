package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPhotoURLSignerRoundTrip(t *testing.T) {
	signer := NewPhotoURLSigner("test_secret", time.Minute)

	token, expiresAt, err := signer.Generate("photos/2026/08/abc123.jpg")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	key, _, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "photos/2026/08/abc123.jpg", key)
}

func TestPhotoURLSignerRejectsTampering(t *testing.T) {
	signer := NewPhotoURLSigner("test_secret", time.Minute)

	token, _, err := signer.Generate("photos/original.jpg")
	require.NoError(t, err)

	_, _, err = signer.Parse(token + "x")
	require.Error(t, err)

	other := NewPhotoURLSigner("different_secret", time.Minute)
	_, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestPhotoURLSignerExpiry(t *testing.T) {
	signer := NewPhotoURLSigner("test_secret", time.Minute)

	token, expiresAt, err := signer.Generate("photos/old.jpg")
	require.NoError(t, err)

	// Still valid just inside the window, rejected once the clock passes it.
	signer.now = func() time.Time { return expiresAt.Add(-time.Second) }
	_, _, err = signer.Parse(token)
	require.NoError(t, err)

	signer.now = func() time.Time { return expiresAt.Add(time.Second) }
	_, _, err = signer.Parse(token)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expired")
}

func TestPhotoURLSignerClampsNonPositiveTTL(t *testing.T) {
	signer := NewPhotoURLSigner("test_secret", -time.Minute)

	_, expiresAt, err := signer.Generate("photos/new.jpg")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))
}

func TestPhotoURLSignerRequiresKeyAndSecret(t *testing.T) {
	signer := NewPhotoURLSigner("secret", time.Minute)
	_, _, err := signer.Generate("")
	require.Error(t, err)

	empty := NewPhotoURLSigner("", time.Minute)
	_, _, err = empty.Generate("photos/x.jpg")
	require.Error(t, err)
}
