package domain

import "time"

// ProductFile describes a purchasable digital asset stored in blob storage.
type ProductFile struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	FileName      string    `json:"fileName"`
	ContentType   string    `json:"contentType"`
	SizeBytes     int64     `json:"sizeBytes"`
	StorageKey    string    `json:"-"`
	DownloadCount int64     `json:"downloadCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DownloadToken grants a bounded number of downloads of one file until it expires.
type DownloadToken struct {
	Token         string    `json:"token"`
	OrderID       string    `json:"orderId"`
	FileID        string    `json:"fileId"`
	MaxDownloads  int       `json:"maxDownloads"`
	DownloadCount int       `json:"downloadCount"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Remaining is the number of downloads left, never negative.
func (t DownloadToken) Remaining() int {
	if n := t.MaxDownloads - t.DownloadCount; n > 0 {
		return n
	}
	return 0
}

func (t DownloadToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Live reports whether the token can still be redeemed at now.
func (t DownloadToken) Live(now time.Time) bool {
	return !t.Expired(now) && t.Remaining() > 0
}

// RedeemError classifies why a token could not be redeemed. Expiry wins over
// an exhausted count.
func (t DownloadToken) RedeemError(now time.Time) error {
	switch {
	case t.Expired(now):
		return ErrExpired
	case t.Remaining() == 0:
		return ErrLimitExceeded
	}
	return nil
}
