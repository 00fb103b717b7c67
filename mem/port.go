package mem

// response is one entry in a port's response FIFO: either a successful
// payload of type T, or an exception cause plus the faulting address.
// Exactly one response is presented to the DUT per cycle once its
// DeliverCycle has been reached, mirroring the single in-flight-per-cycle
// contract of the hardware ports this model drives.
type response[T any] struct {
	DeliverCycle uint64
	Payload      T
	Exception    bool
	Cause        Cause
	FaultAddress Address
}

// Port is the latency-pipelined base shared by the instruction- and
// data-cache ports. It owns nothing about request semantics — that is
// entirely up to the embedding port — only the queueing and timing of
// responses, which is identical between the two.
type Port[T any] struct {
	Latency uint64

	queue []response[T]
}

// NewPort creates a port whose responses are delivered on cycle
// accept + latency - 1 (see deliverCycle); latency must be at least 1, and
// a latency of 1 delivers the response in the cycle the request was
// accepted.
func NewPort[T any](latency uint64) *Port[T] {
	if latency < 1 {
		panic("mem: port latency must be at least 1 cycle")
	}
	return &Port[T]{Latency: latency}
}

// deliverCycle computes the cycle a response accepted in `cycle` is
// presented on, matching the original model's current_cycle + latency - 1:
// a one-cycle latency is back-to-back (no idle cycle between request and
// response), not a one-cycle bubble.
func (p *Port[T]) deliverCycle(cycle uint64) uint64 {
	return cycle + p.Latency - 1
}

// QueueResponse schedules a successful response for the request accepted
// in the given cycle.
func (p *Port[T]) QueueResponse(cycle uint64, payload T) {
	p.queue = append(p.queue, response[T]{
		DeliverCycle: p.deliverCycle(cycle),
		Payload:      payload,
	})
}

// QueueException schedules an exception response for the request accepted
// in the given cycle. addr is the faulting address, packed onto the
// exception wire the same way the payload would have been.
func (p *Port[T]) QueueException(cycle uint64, cause Cause, addr Address) {
	p.queue = append(p.queue, response[T]{
		DeliverCycle: p.deliverCycle(cycle),
		Exception:    true,
		Cause:        cause,
		FaultAddress: addr,
	})
}

// Due reports the head-of-queue response if it is ready to be presented in
// the given cycle.
func (p *Port[T]) Due(cycle uint64) (response[T], bool) {
	if len(p.queue) == 0 {
		return response[T]{}, false
	}

	head := p.queue[0]
	if head.DeliverCycle > cycle {
		return response[T]{}, false
	}

	return head, true
}

// Consume removes the head-of-queue response once the DUT has accepted it.
func (p *Port[T]) Consume() {
	if len(p.queue) == 0 {
		return
	}
	p.queue = p.queue[1:]
}

// Pending reports how many responses are queued but not yet delivered.
func (p *Port[T]) Pending() int {
	return len(p.queue)
}
