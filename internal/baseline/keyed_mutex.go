// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package baseline

import "sync"

// KeyedMutex is a per-key FIFO lock. Callers for the same key acquire it in
// the order they called Lock; different keys never contend beyond the short
// bookkeeping section. Idle keys are removed from the map.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*fifoLock
}

type fifoLock struct {
	waiters []chan struct{}
}

// NewKeyedMutex creates an empty lock set.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*fifoLock)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, held := k.locks[key]
	if !held {
		k.locks[key] = &fifoLock{}
		k.mu.Unlock()
		return func() { k.release(key) }
	}

	turn := make(chan struct{})
	l.waiters = append(l.waiters, turn)
	k.mu.Unlock()

	<-turn
	return func() { k.release(key) }
}

// release hands the lock to the oldest waiter, or frees the key.
func (k *KeyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l := k.locks[key]
	if len(l.waiters) == 0 {
		delete(k.locks, key)
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	close(next)
}

func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
