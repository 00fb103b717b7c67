package tilelink

import "github.com/pkg/errors"

// ErrNoAvailableID is returned when every ID in a pool's range is already
// reserved. It is a transient, internally-caught condition, never surfaced
// to the caller of the testbench: the offending request is simply retried
// on a later cycle.
var ErrNoAvailableID = errors.New("tilelink: no available ID")

// idPool tracks which IDs in [first, last] are currently reserved by an
// in-flight transaction. Channel-B probes reserve no ID here: a device
// enqueues them without tracking any probe ID.
type idPool struct {
	first, last int
	inUse       map[int]bool
}

func newIDPool(first, last int) *idPool {
	return &idPool{first: first, last: last, inUse: make(map[int]bool)}
}

// Reserve finds and reserves the lowest free ID in range.
func (p *idPool) Reserve() (int, error) {
	for id := p.first; id <= p.last; id++ {
		if !p.inUse[id] {
			p.inUse[id] = true
			return id, nil
		}
	}
	return 0, ErrNoAvailableID
}

// Release frees id so it may be reserved again.
func (p *idPool) Release(id int) {
	delete(p.inUse, id)
}

// InUse reports whether id is currently reserved.
func (p *idPool) InUse(id int) bool {
	return p.inUse[id]
}
