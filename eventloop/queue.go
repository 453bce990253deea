// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
)

// chunkSize is the number of tasks per node in a taskQueue.
const chunkSize = 128

// taskQueue is a chunked linked-list FIFO of tasks.
//
// Thread Safety: NOT thread-safe, the Loop guards every queue with its mutex.
type taskQueue struct {
	head   *chunk
	tail   *chunk
	length int
}

var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node, read at readPos and written at pos.
type chunk struct {
	tasks   [chunkSize]func()
	next    *chunk
	readPos int
	pos     int
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk clears retained closures and recycles c.
func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.tasks[i] = nil
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

func (q *taskQueue) Push(task func()) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.tasks) {
		next := newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.tasks[q.tail.pos] = task
	q.tail.pos++
	q.length++
}

// Pop removes and returns the oldest task, or false if the queue is empty.
func (q *taskQueue) Pop() (func(), bool) {
	if q.length == 0 {
		return nil, false
	}
	if q.head.readPos >= q.head.pos {
		old := q.head
		q.head = old.next
		returnChunk(old)
	}
	task := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = nil
	q.head.readPos++
	q.length--
	if q.length == 0 {
		// single chunk left, rewind it
		q.head.pos = 0
		q.head.readPos = 0
	}
	return task, true
}

func (q *taskQueue) Len() int {
	return q.length
}
