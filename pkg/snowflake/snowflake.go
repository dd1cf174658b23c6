// Package snowflake generates 63-bit time-ordered IDs for messages. The
// timestamp occupies the high bits, so numeric order is creation order and
// the schema can cluster messages by ID alone.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

// ID is a generated snowflake. It marshals as a plain JSON number.
type ID = int64

type Node struct {
	mu   sync.Mutex
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("node number must be between 0 and 1023")
	}
	return &Node{node: node}, nil
}

func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()

	if now < n.time {
		// Clock moved backwards, refuse to generate out-of-order ids
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}

	n.time = now

	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// Time extracts the creation timestamp embedded in an ID. Message created_at
// fields derive from this rather than a separate stored column.
func Time(id ID) time.Time {
	ms := (id >> timeShift) + epoch
	return time.UnixMilli(ms).UTC()
}
