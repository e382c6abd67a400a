// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue_FirstArrivalReportsTrap(t *testing.T) {
	var e Entry
	res := e.enqueue("pkt1", ProtoTCP, 0)
	assert.Equal(t, EnqueueFirst, res)
	assert.Equal(t, 1, e.HoldLen())
}

func TestEnqueue_FillsToMaxQueueThenDropsWithoutEnqueuing(t *testing.T) {
	var e Entry
	require.Equal(t, EnqueueFirst, e.enqueue("pkt1", ProtoTCP, 0))
	require.Equal(t, EnqueueOK, e.enqueue("pkt2", ProtoTCP, 0))
	require.Equal(t, EnqueueOK, e.enqueue("pkt3", ProtoTCP, 0))
	assert.Equal(t, MaxQueue, e.HoldLen())

	// Once full, the arrival is dropped without being enqueued, and the
	// existing queue is left untouched.
	res := e.enqueue("pkt4", ProtoTCP, 0)
	assert.Equal(t, EnqueueDropped, res)
	assert.Equal(t, MaxQueue, e.HoldLen())

	nodes := e.drain()
	require.Len(t, nodes, MaxQueue)
	assert.Equal(t, HeldPacket("pkt1"), nodes[0].packet)
	assert.Equal(t, HeldPacket("pkt2"), nodes[1].packet)
	assert.Equal(t, HeldPacket("pkt3"), nodes[2].packet)
}

func TestDrain_EmptiesQueueAndAllowsReuse(t *testing.T) {
	var e Entry
	e.enqueue("pkt1", ProtoTCP, 0)
	e.enqueue("pkt2", ProtoTCP, 0)

	nodes := e.drain()
	assert.Len(t, nodes, 2)
	assert.Equal(t, 0, e.HoldLen())

	// A fresh hold cycle should report EnqueueFirst again.
	assert.Equal(t, EnqueueFirst, e.enqueue("pkt3", ProtoTCP, 0))
}
