package authcore

import (
	"hash/fnv"
	"sync"
)

const lockStripeCount = 64

// stripedLocks serializes 2FA state mutations per user without holding a
// lock object per user. Two users may share a stripe; that only costs a
// little contention, never correctness.
type stripedLocks struct {
	stripes [lockStripeCount]sync.Mutex
}

func newStripedLocks() *stripedLocks {
	return &stripedLocks{}
}

func (s *stripedLocks) forUser(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.stripes[h.Sum32()%lockStripeCount]
}
