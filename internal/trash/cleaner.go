// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package trash implements a deferred-disposal background worker for
// dropping large structures off the caller's critical path, mirroring
// original_source's single-threaded executor for the same purpose.
// vmkm.Backend holds a Cleaner (Options.Trash) but submits no jobs to it;
// its truncate, pop, rebase and prune operations dispose of data inline.
package trash

import "sync"

// Cleaner drains a queue of disposal closures on a single background
// goroutine, in submission order.
type Cleaner struct {
	jobs   chan func()
	done   chan struct{}
	once   sync.Once
}

// New starts a Cleaner with a fixed queue depth of 256. Submit blocks once the
// queue is full, applying backpressure rather than growing unbounded.
func New() *Cleaner {
	c := &Cleaner{
		jobs: make(chan func(), 256),
		done: make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Cleaner) run() {
	defer close(c.done)
	for job := range c.jobs {
		job()
	}
}

// Submit enqueues a disposal closure. Safe to call concurrently.
func (c *Cleaner) Submit(job func()) {
	c.jobs <- job
}

// Close stops accepting new jobs and waits for the queue to drain.
func (c *Cleaner) Close() {
	c.once.Do(func() {
		close(c.jobs)
	})
	<-c.done
}
