package redis

import "github.com/redis/rueidis"

// NewStoreForTest creates a Store from an existing rueidis.Client (for mock testing).
func NewStoreForTest(client rueidis.Client) *Store {
	return &Store{client: client}
}
