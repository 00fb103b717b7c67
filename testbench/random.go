package testbench

import (
	"math/rand"

	"github.com/lowRISC/muntjac-sim/tilelink"
)

// TileLinkRandomDriver runs a TileLink link in random-traffic mode: each
// cycle, with small probability, it injects a new Get or PutFullData
// request from the host, then steps the link's channel ends (which
// themselves apply their own randomized stall/retract/shuffle behaviour
// when given a non-nil rng).
type TileLinkRandomDriver struct {
	Link *tilelink.Link
	Rng  *rand.Rand

	// AddressSpace bounds the addresses synthesized requests target.
	AddressSpace uint64

	requestProbability float64
	cycles             uint64
}

// NewTileLinkRandomDriver seeds a driver with the given random source and
// per-cycle request-injection probability. It wraps link.OnD so that a
// source ID is released back to the host's pool as soon as its response
// arrives, chaining any OnD callback already set on link.
func NewTileLinkRandomDriver(link *tilelink.Link, rng *rand.Rand, addressSpace uint64, requestProbability float64) *TileLinkRandomDriver {
	link.Host.SetRandomSource(rng)
	link.Device.SetRandomSource(rng)

	d := &TileLinkRandomDriver{
		Link:               link,
		Rng:                rng,
		AddressSpace:       addressSpace,
		requestProbability: requestProbability,
	}

	previous := link.OnD
	link.OnD = func(b tilelink.DBeat) {
		link.Host.ReleaseID(b.Source)
		if previous != nil {
			previous(b)
		}
	}

	return d
}

// Step injects at most one new request, then advances the link by one
// cycle.
func (d *TileLinkRandomDriver) Step() error {
	if d.Rng.Float64() < d.requestProbability {
		d.injectRequest()
	}

	d.cycles++
	return d.Link.Step()
}

// Run steps cycles times, stopping early if the link returns an error
// (e.g. the device endpoint has no backend configured).
func (d *TileLinkRandomDriver) Run(cycles uint64) error {
	for i := uint64(0); i < cycles; i++ {
		if err := d.Step(); err != nil {
			return err
		}
	}
	return nil
}

// CurrentCycle and Finished let a TileLinkRandomDriver register with the
// status monitor as a monitoring.Engine; random-traffic runs have no
// completion condition of their own, so Finished always reports false.
func (d *TileLinkRandomDriver) CurrentCycle() uint64 { return d.cycles }
func (d *TileLinkRandomDriver) Finished() bool       { return false }

func (d *TileLinkRandomDriver) injectRequest() {
	id, err := d.Link.Host.ReserveID()
	if err != nil {
		// Transient: no ID free this cycle, try again next cycle.
		return
	}

	address := d.Rng.Uint64() % d.AddressSpace
	address -= address % 8

	if d.Rng.Float64() < 0.5 {
		d.Link.Host.SendA(tilelink.ABeat{
			Opcode: tilelink.Get, Size: 3, Mask: 0xFF, Address: address, Source: id,
		})
	} else {
		d.Link.Host.SendA(tilelink.ABeat{
			Opcode: tilelink.PutFullData, Size: 3, Mask: 0xFF,
			Address: address, Data: d.Rng.Uint64(), Source: id,
		})
	}
}
