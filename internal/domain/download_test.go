package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDownloadToken_RedeemError(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	live := DownloadToken{MaxDownloads: 3, DownloadCount: 2, ExpiresAt: now.Add(time.Hour)}
	assert.NoError(t, live.RedeemError(now))
	assert.True(t, live.Live(now))

	exhausted := DownloadToken{MaxDownloads: 1, DownloadCount: 1, ExpiresAt: now.Add(time.Hour)}
	assert.ErrorIs(t, exhausted.RedeemError(now), ErrLimitExceeded)

	expiredWithRemaining := DownloadToken{MaxDownloads: 5, DownloadCount: 0, ExpiresAt: now.Add(-time.Second)}
	assert.ErrorIs(t, expiredWithRemaining.RedeemError(now), ErrExpired)

	expiredAndExhausted := DownloadToken{MaxDownloads: 1, DownloadCount: 1, ExpiresAt: now.Add(-time.Second)}
	assert.ErrorIs(t, expiredAndExhausted.RedeemError(now), ErrExpired)

	atExpiry := DownloadToken{MaxDownloads: 1, ExpiresAt: now}
	assert.NoError(t, atExpiry.RedeemError(now))
}

func TestCart_DigitalProductIDs(t *testing.T) {
	cart := Cart{Lines: []CartLine{
		{ProductID: "a", Digital: true},
		{ProductID: "b"},
		{ProductID: "a", Digital: true},
		{ProductID: "c", Digital: true},
	}}
	assert.Equal(t, []string{"a", "c"}, cart.DigitalProductIDs())
}
