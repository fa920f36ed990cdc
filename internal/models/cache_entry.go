package models

import "time"

// CacheEntry is a persisted result bundle keyed by request fingerprint.
// Entries are replaced wholesale, never updated in place.
type CacheEntry struct {
	Fingerprint string    `bson:"_id" json:"fingerprint"`
	Payload     []byte    `bson:"payload" json:"payload"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
