// Package protocol implements the device's wire protocol: ASCII command
// encoding on the way out, the binary frame parser and FIFO overflow
// queue on the way in.
package protocol

import "github.com/dschultz-j2534/op2534/internal/ptmsg"

type node struct {
	msg  ptmsg.PASSTHRU_MSG
	next *node
}

// Queue is a singly-linked FIFO of PASSTHRU_MSG values. It exists to
// hold messages the parser decoded but the caller's array couldn't
// accommodate; the parser is the sole producer and the facade is the
// sole consumer, both running on the same goroutine, so no locking is
// needed.
type Queue struct {
	head, tail *node
	len        int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue { return &Queue{} }

// Enqueue appends msg to the tail of the queue.
func (q *Queue) Enqueue(msg ptmsg.PASSTHRU_MSG) {
	n := &node{msg: msg}
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.len++
}

// Dequeue removes and returns the message at the head of the queue.
func (q *Queue) Dequeue() (ptmsg.PASSTHRU_MSG, bool) {
	if q.head == nil {
		return ptmsg.PASSTHRU_MSG{}, false
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.len--
	return n.msg, true
}

// Len reports the number of queued messages.
func (q *Queue) Len() int { return q.len }

// Flush discards all queued messages.
func (q *Queue) Flush() {
	q.head, q.tail, q.len = nil, nil, 0
}
