package client

import "github.com/luma/netsoul/protocol"

// RosterResult is the answer to a who query.
type RosterResult struct {
	Logins protocol.LoginList
	Rows   []protocol.RosterRow
}

type rosterQuery struct {
	logins protocol.LoginList
	future *Future[RosterResult]
}

// fifo is a plain first in first out queue.
type fifo[T any] struct {
	items []T
}

func (q *fifo[T]) push(item T) {
	q.items = append(q.items, item)
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// dropLast removes the most recent item, used when its line could not be sent.
func (q *fifo[T]) dropLast() {
	if len(q.items) == 0 {
		return
	}

	var zero T
	q.items[len(q.items)-1] = zero
	q.items = q.items[:len(q.items)-1]
}

// drain empties the queue, returning everything that was in it.
func (q *fifo[T]) drain() []T {
	items := q.items
	q.items = nil
	return items
}

func (q *fifo[T]) len() int {
	return len(q.items)
}
