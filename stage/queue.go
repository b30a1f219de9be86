// PDRADAR - A software-defined pulse-Doppler radar processor.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package stage

import (
	"sync"

	"github.com/bemasher/pdradar/radar"
)

// queue is a bounded FIFO. When full, Push rejects the incoming message and
// keeps what is already queued.
type queue struct {
	mu    sync.Mutex
	items []radar.Message
	depth int
}

func newQueue(depth int) *queue {
	if depth < 1 {
		depth = 1
	}
	return &queue{depth: depth, items: make([]radar.Message, 0, depth)}
}

func (q *queue) push(msg radar.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.depth {
		return false
	}
	q.items = append(q.items, msg)
	return true
}

func (q *queue) pop() (radar.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	msg := q.items[0]
	n := copy(q.items, q.items[1:])
	q.items[n] = nil
	q.items = q.items[:n]

	return msg, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
