package testbench

import (
	"math/rand"

	"github.com/lowRISC/muntjac-sim/tilelink"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type randomTestBackend struct {
	mem map[uint64]uint64
}

func (b *randomTestBackend) Read(address uint64, size int) (uint64, error) {
	return b.mem[address], nil
}

func (b *randomTestBackend) Write(address uint64, size int, mask uint64, data uint64) error {
	b.mem[address] = data
	return nil
}

var _ = Describe("TileLinkRandomDriver", func() {
	It("runs many cycles of randomized traffic without deadlocking", func() {
		cfg := tilelink.EndpointConfig{Protocol: tilelink.ProtocolTLUH, DataWidth: 64, FirstID: 0, LastID: 7, Fifo: true}
		host := tilelink.NewEndpoint("host", tilelink.RoleHost, cfg)
		device := tilelink.NewEndpoint("device", tilelink.RoleDevice, cfg)
		device.Backend = &randomTestBackend{mem: make(map[uint64]uint64)}

		link := tilelink.NewLink(host, device)
		rng := rand.New(rand.NewSource(1))
		driver := NewTileLinkRandomDriver(link, rng, 0x1000, 0.3)

		Expect(driver.Run(200)).To(Succeed())
	})
})
