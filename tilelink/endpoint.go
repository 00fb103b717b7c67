package tilelink

import "math/rand"

// Role distinguishes which half of a link an Endpoint drives: a host
// issues channel A/C/E traffic and answers channel B probes; a device
// answers A/C/E and may issue B probes of its own.
type Role int

const (
	RoleHost Role = iota
	RoleDevice
)

// Backend is the memory or register file behind a device endpoint. A is
// answered against it directly; Get/Put/Arithmetic/Logical/Acquire all
// reduce to a Read and/or Write call, while Intent is answered without
// touching the backend.
type Backend interface {
	Read(address uint64, size int) (uint64, error)
	Write(address uint64, size int, mask uint64, data uint64) error
}

// Endpoint is one host or device port of a TileLink link: the per-channel
// senders/receivers the generic ChannelSender/ChannelReceiver pair
// provides, wired together by the dispatch rules in dispatch.go.
type Endpoint struct {
	Name   string
	Role   Role
	Config EndpointConfig
	ids    *idPool

	Backend Backend

	aSend *ChannelSender[ABeat, *AMessage]
	aRecv *ChannelReceiver[ABeat]
	bSend *ChannelSender[BBeat, *BMessage]
	bRecv *ChannelReceiver[BBeat]
	cSend *ChannelSender[CBeat, *CMessage]
	cRecv *ChannelReceiver[CBeat]
	dSend *ChannelSender[DBeat, *DMessage]
	dRecv *ChannelReceiver[DBeat]
	eSend *ChannelSender[EBeat, *EMessage]
	eRecv *ChannelReceiver[EBeat]

	// aInProgress accumulates the beats of an inbound multi-beat A burst
	// (PutFullData/PutPartialData) by source ID, since a device must see
	// every beat before it can answer.
	aInProgress map[int][]ABeat

	// cInProgress accumulates the beats of an inbound channel-C burst.
	// Unlike A, a device only ever has one release in flight per link in
	// this implementation, so it is not keyed by source.
	cInProgress []CBeat

	// owners records, per address, the source ID last granted a block by
	// AcquireBlock/AcquirePerm. A device consults it to decide whether an
	// incoming Acquire needs to probe a prior owner before granting the
	// new one; Release/ReleaseData clears the entry.
	owners map[uint64]int

	rng *rand.Rand
}

func channelWidthBytes(ep EndpointConfig) int { return ep.DataWidth / 8 }

// NewEndpoint builds an Endpoint for role over config. Channel ends are
// always constructed in both directions; which ones actually carry
// traffic depends on role (a host never receives on A, a device never
// sends on A) but the unused half simply stays idle.
func NewEndpoint(name string, role Role, config EndpointConfig) *Endpoint {
	return &Endpoint{
		Name:   name,
		Role:   role,
		Config: config,
		ids:    newIDPool(config.FirstID, config.LastID),

		aSend: NewChannelSender[ABeat, *AMessage](config.Fifo),
		aRecv: NewChannelReceiver[ABeat](),
		bSend: NewChannelSender[BBeat, *BMessage](config.Fifo),
		bRecv: NewChannelReceiver[BBeat](),
		cSend: NewChannelSender[CBeat, *CMessage](config.Fifo),
		cRecv: NewChannelReceiver[CBeat](),
		dSend: NewChannelSender[DBeat, *DMessage](config.Fifo),
		dRecv: NewChannelReceiver[DBeat](),
		eSend: NewChannelSender[EBeat, *EMessage](config.Fifo),
		eRecv: NewChannelReceiver[EBeat](),

		aInProgress: make(map[int][]ABeat),
		owners:      make(map[uint64]int),
	}
}

// SetRandomSource enables randomized retraction/reshuffling on every
// sender; pass nil to run purely directed (deterministic) traffic.
func (e *Endpoint) SetRandomSource(rng *rand.Rand) { e.rng = rng }

// ReserveID reserves a fresh transaction ID from this endpoint's pool.
// Per the testbench contract, ErrNoAvailableID is transient: callers
// retry on a later cycle rather than treating it as fatal.
func (e *Endpoint) ReserveID() (int, error) { return e.ids.Reserve() }

func (e *Endpoint) ReleaseID(id int) { e.ids.Release(id) }

// SendA enqueues a host-issued request. Only meaningful for a host
// endpoint.
func (e *Endpoint) SendA(header ABeat) {
	e.aSend.Enqueue(NewAMessage(header, channelWidthBytes(e.Config)))
}

// SendC enqueues a host-issued release/probe-ack.
func (e *Endpoint) SendC(header CBeat) {
	e.cSend.Enqueue(NewCMessage(header, channelWidthBytes(e.Config)))
}

// SendE enqueues a host-issued grant acknowledgement.
func (e *Endpoint) SendE(header EBeat) {
	e.eSend.Enqueue(NewEMessage(header))
}

// SendB enqueues a device-issued probe.
func (e *Endpoint) SendB(header BBeat) {
	e.bSend.Enqueue(NewBMessage(header))
}

// SendD enqueues a device-issued response directly, bypassing dispatch;
// used by a custom backend that wants to drive D itself.
func (e *Endpoint) SendD(msg *DMessage) {
	e.dSend.Enqueue(msg)
}
