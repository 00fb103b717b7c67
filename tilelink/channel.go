package tilelink

import "math/rand"

// Sendable is the interface every per-channel message type (AMessage,
// BMessage, ...) satisfies: a channel-agnostic sender only needs to know
// how to pull beats out of whatever sits in its queue.
type Sendable[B any] interface {
	NextBeat() B
	Finished() bool
	InProgress() bool
	Unsend()
}

// ChannelSender is the generic half of the "channel-end contract (sender)"
// from the testbench spec: flow control, optional randomized
// retraction/reshuffling, and driving the next beat of the head message.
type ChannelSender[B any, M Sendable[B]] struct {
	pending []M
	fifo    bool

	outstanding    bool
	outstandingMsg M
}

// NewChannelSender creates a sender. fifo endpoints never reorder pending
// messages; non-fifo endpoints may rotate the queue when randomising.
func NewChannelSender[B any, M Sendable[B]](fifo bool) *ChannelSender[B, M] {
	return &ChannelSender[B, M]{fifo: fifo}
}

// Enqueue adds a fully-formed message to the back of the send queue.
func (c *ChannelSender[B, M]) Enqueue(m M) {
	c.pending = append(c.pending, m)
}

func (c *ChannelSender[B, M]) Len() int { return len(c.pending) }

// SetFlowControl drops the outstanding-beat marker once the receiver has
// accepted it, matching the base port's set_flow_control half-cycle.
func (c *ChannelSender[B, M]) SetFlowControl(accepted bool) {
	if accepted {
		c.outstanding = false
	}
}

// SetOutputs implements the sender contract's steps: optional beat
// retraction, holding a not-yet-accepted beat valid, dropping a finished
// head message, optional non-fifo reshuffling, and driving the next beat.
// rng is nil to disable every randomized behaviour (directed-test mode).
func (c *ChannelSender[B, M]) SetOutputs(rng *rand.Rand, retractProb, shuffleProb float64) (beat B, valid bool) {
	if rng != nil && c.outstanding && rng.Float64() < retractProb {
		c.outstandingMsg.Unsend()
		c.outstanding = false
	}

	if c.outstanding {
		// Not accepted yet: drive the same beat again.
		c.outstandingMsg.Unsend()
		return c.outstandingMsg.NextBeat(), true
	}

	if len(c.pending) > 0 && c.pending[0].Finished() {
		c.pending = c.pending[1:]
	}

	if rng != nil && !c.fifo && len(c.pending) > 1 && !c.pending[0].InProgress() && rng.Float64() < shuffleProb {
		c.rotate()
	}

	if len(c.pending) == 0 || c.outstanding {
		var zero B
		return zero, false
	}

	head := c.pending[0]
	beat = head.NextBeat()
	c.outstanding = true
	c.outstandingMsg = head
	return beat, true
}

func (c *ChannelSender[B, M]) rotate() {
	if len(c.pending) < 2 {
		return
	}
	head := c.pending[0]
	c.pending = append(c.pending[1:], head)
}

// ChannelReceiver is the generic half of the "channel-end contract
// (receiver)": always-ready flow control and per-cycle beat sampling,
// with a callback invoked on every accepted beat.
type ChannelReceiver[B any] struct {
	ready bool
}

// NewChannelReceiver creates a receiver. Readiness is controlled
// externally via SetReady, since backpressure policy belongs to the
// endpoint, not the channel primitive.
func NewChannelReceiver[B any]() *ChannelReceiver[B] {
	return &ChannelReceiver[B]{ready: true}
}

func (c *ChannelReceiver[B]) SetReady(ready bool) { c.ready = ready }
func (c *ChannelReceiver[B]) Ready() bool         { return c.ready }

// GetInputs samples a beat if the sender asserted valid and this end is
// ready, invoking handle for the accepted beat.
func (c *ChannelReceiver[B]) GetInputs(valid bool, beat B, handle func(B)) (accepted bool) {
	if !valid || !c.ready {
		return false
	}
	handle(beat)
	return true
}
