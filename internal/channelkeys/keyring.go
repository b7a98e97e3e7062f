package channelkeys

import (
	"sync"
)

// Keyring caches unwrapped channel keys per channel and epoch for the
// lifetime of an unlocked session.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]map[int64]ChannelKey
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]map[int64]ChannelKey)}
}

// Put stores key for (channelID, epoch), wiping any key it replaces.
func (r *Keyring) Put(channelID string, epoch int64, key ChannelKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	epochs, ok := r.keys[channelID]
	if !ok {
		epochs = make(map[int64]ChannelKey)
		r.keys[channelID] = epochs
	}
	if old, ok := epochs[epoch]; ok {
		old.Wipe()
	}
	epochs[epoch] = key
}

// Get returns the key for (channelID, epoch).
func (r *Keyring) Get(channelID string, epoch int64) (ChannelKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[channelID][epoch]
	return k, ok
}

// Latest returns the highest-epoch key known for channelID.
func (r *Keyring) Latest(channelID string) (ChannelKey, int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best  ChannelKey
		epoch int64
	)
	for e, k := range r.keys[channelID] {
		if e > epoch {
			best, epoch = k, e
		}
	}
	return best, epoch, epoch > 0
}

// Snapshot returns the epoch -> key map for channelID. The keys are shared
// with the ring and must not be modified.
func (r *Keyring) Snapshot(channelID string) map[int64]ChannelKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]ChannelKey, len(r.keys[channelID]))
	for e, k := range r.keys[channelID] {
		out[e] = k
	}
	return out
}

// Wipe zeroes and forgets every cached key.
func (r *Keyring) Wipe() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, epochs := range r.keys {
		for _, k := range epochs {
			k.Wipe()
		}
	}
	r.keys = make(map[string]map[int64]ChannelKey)
}
