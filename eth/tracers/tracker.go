// Copyright 2022 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package tracers

import "sync"

// stateTracker bounds the number of in-flight parent-state references held
// by a chain-range trace (debug_traceChain's internal worker pool) and
// releases them strictly in block-number order, even though individual
// workers may finish out of order. limit is how many call-backs can be
// buffered waiting for their predecessor to release first.
type stateTracker struct {
	limit   int
	buffer  map[uint64]func()
	head    uint64
	lock    sync.RWMutex
}

func newStateTracker(limit int, head uint64) *stateTracker {
	return &stateTracker{
		limit:  limit,
		buffer: make(map[uint64]func()),
		head:   head,
	}
}

// releaseState records number's release callback and fires every
// contiguous callback starting at the current head, in order.
func (t *stateTracker) releaseState(number uint64, release func()) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if number != t.head {
		t.buffer[number] = release
		return
	}
	release()
	t.head++
	for {
		next, ok := t.buffer[t.head]
		if !ok {
			break
		}
		delete(t.buffer, t.head)
		next()
		t.head++
	}
}

// pending returns how many release callbacks are currently held
// back waiting on an earlier block to free up.
func (t *stateTracker) pending() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.buffer)
}

// full reports whether the tracker has buffered limit call-backs, at which
// point the caller should stop spawning new workers until head advances.
func (t *stateTracker) full() bool {
	return t.pending() >= t.limit
}
