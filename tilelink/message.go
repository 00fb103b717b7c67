package tilelink

// ABeat is one beat of a channel A (host-to-device request) message.
type ABeat struct {
	Opcode  AOpcode
	Param   int
	Size    int // log2 of the total transaction size in bytes
	Source  int
	Address uint64
	Mask    uint64
	Corrupt bool
	Data    uint64
}

// BBeat is one beat of a channel B (device-to-host probe) message. Probes
// are always single-beat: A requests are never forwarded onto B.
type BBeat struct {
	Opcode  BOpcode
	Param   int
	Size    int
	Source  int
	Address uint64
}

// CBeat is one beat of a channel C (host-to-device response/release)
// message.
type CBeat struct {
	Opcode  COpcode
	Param   int
	Size    int
	Source  int
	Address uint64
	Corrupt bool
	Data    uint64
}

// DBeat is one beat of a channel D (device-to-host response) message.
type DBeat struct {
	Opcode  DOpcode
	Param   int
	Size    int
	Source  int
	Sink    int
	Denied  bool
	Corrupt bool
	Data    uint64
}

// EBeat is the single beat of a channel E (host-to-device grant-ack)
// message.
type EBeat struct {
	Sink int
}

// numBeats applies the burst-length formula from the TileLink wire spec:
// an opcode that carries a payload in its own beats spans
// max(1, 2^size / channelWidthBytes) beats; anything else is one beat.
func numBeats(carriesPayload bool, size int, channelWidthBytes int) int {
	if !carriesPayload {
		return 1
	}
	n := (1 << size) / channelWidthBytes
	if n < 1 {
		n = 1
	}
	return n
}

func aCarriesPayload(op AOpcode) bool {
	switch op {
	case PutFullData, PutPartialData, ArithmeticData, LogicalData:
		return true
	default:
		return false
	}
}

func cCarriesPayload(op COpcode) bool {
	switch op {
	case ProbeAckData, ReleaseData:
		return true
	default:
		return false
	}
}

func dCarriesPayload(op DOpcode) bool {
	switch op {
	case AccessAckData, GrantData:
		return true
	default:
		return false
	}
}

// message is the shared beat-accounting state every channel's message type
// embeds: how many beats the transaction spans, and how many have been
// generated (emitted by a sender's next_beat, or consumed by a receiver)
// so far. beatsGenerated <= totalBeats always; finished iff they're equal.
type message struct {
	channelWidth   int
	totalBeats     int
	beatsGenerated int
}

func (m *message) InProgress() bool { return m.beatsGenerated > 0 && !m.Finished() }
func (m *message) Finished() bool   { return m.beatsGenerated >= m.totalBeats }

// Unsend rolls back the last generated beat, e.g. when a sender randomly
// retracts a beat it has not yet had accepted.
func (m *message) Unsend() {
	if m.beatsGenerated > 0 {
		m.beatsGenerated--
	}
}

// AMessage is a full channel-A request: a header beat plus however many
// burst beats its opcode and size imply.
type AMessage struct {
	message
	Header ABeat
}

// NewAMessage wraps header as the first beat of a message sized according
// to header.Opcode/Size and the channel's byte width.
func NewAMessage(header ABeat, channelWidthBytes int) *AMessage {
	return &AMessage{
		message: message{
			channelWidth: channelWidthBytes,
			totalBeats:   numBeats(aCarriesPayload(header.Opcode), header.Size, channelWidthBytes),
		},
		Header: header,
	}
}

// NextBeat produces the next beat to drive onto the wire: the header
// itself for beat 0, or the header's control fields with address and data
// advanced for later beats of a burst.
func (m *AMessage) NextBeat() ABeat {
	i := m.beatsGenerated
	m.beatsGenerated++

	beat := m.Header
	beat.Address = m.Header.Address + uint64(i)*uint64(m.channelWidth)
	beat.Data = m.Header.Data + uint64(i)
	return beat
}

// BMessage is a single-beat channel-B probe.
type BMessage struct {
	message
	Header BBeat
}

func NewBMessage(header BBeat) *BMessage {
	return &BMessage{message: message{channelWidth: 0, totalBeats: 1}, Header: header}
}

func (m *BMessage) NextBeat() BBeat {
	m.beatsGenerated++
	return m.Header
}

// CMessage is a channel-C response or release, single- or multi-beat
// depending on whether its opcode carries a data payload.
type CMessage struct {
	message
	Header CBeat
}

func NewCMessage(header CBeat, channelWidthBytes int) *CMessage {
	return &CMessage{
		message: message{
			channelWidth: channelWidthBytes,
			totalBeats:   numBeats(cCarriesPayload(header.Opcode), header.Size, channelWidthBytes),
		},
		Header: header,
	}
}

func (m *CMessage) NextBeat() CBeat {
	i := m.beatsGenerated
	m.beatsGenerated++

	beat := m.Header
	beat.Address = m.Header.Address + uint64(i)*uint64(m.channelWidth)
	beat.Data = m.Header.Data + uint64(i)
	return beat
}

// DMessage is a channel-D response, single- or multi-beat. When it answers
// an ArithmeticData/LogicalData A-message, its beat count is fixed by the
// caller to follow the request rather than the usual payload formula,
// since those opcodes' response carries one beat per request beat.
type DMessage struct {
	message
	Header DBeat
}

// NewDMessage sizes the response by the ordinary payload formula.
func NewDMessage(header DBeat, channelWidthBytes int) *DMessage {
	return &DMessage{
		message: message{
			channelWidth: channelWidthBytes,
			totalBeats:   numBeats(dCarriesPayload(header.Opcode), header.Size, channelWidthBytes),
		},
		Header: header,
	}
}

// NewDMessageWithBeats sizes the response explicitly, for the
// ArithmeticData/LogicalData response-follows-request case.
func NewDMessageWithBeats(header DBeat, channelWidthBytes int, beats int) *DMessage {
	return &DMessage{
		message: message{channelWidth: channelWidthBytes, totalBeats: beats},
		Header:  header,
	}
}

func (m *DMessage) NextBeat() DBeat {
	i := m.beatsGenerated
	m.beatsGenerated++

	beat := m.Header
	beat.Data = m.Header.Data + uint64(i)
	return beat
}

// EMessage is the single-beat grant acknowledgement.
type EMessage struct {
	message
	Header EBeat
}

func NewEMessage(header EBeat) *EMessage {
	return &EMessage{message: message{channelWidth: 0, totalBeats: 1}, Header: header}
}

func (m *EMessage) NextBeat() EBeat {
	m.beatsGenerated++
	return m.Header
}
