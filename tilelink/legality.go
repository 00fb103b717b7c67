package tilelink

import (
	"math/bits"

	"github.com/pkg/errors"
)

// ValidateARequest checks the per-beat legality rules that apply to
// channel A (a runs over the 1+ beats of a burst in address order).
func ValidateARequest(beats []ABeat) error {
	if len(beats) == 0 {
		return nil
	}
	first := beats[0]

	if !aOpcodeValid(first.Opcode) {
		return errors.Errorf("tilelink: invalid A opcode %d", first.Opcode)
	}

	if minSize := log2Ceil(popcount(first.Mask)); first.Size < minSize {
		return errors.Errorf("tilelink: A size %d too small for mask popcount %d", first.Size, popcount(first.Mask))
	}

	if first.Opcode == PutFullData {
		width := 1 << first.Size
		if !maskFullyCovers(first.Mask, first.Address, width) {
			return errors.New("tilelink: PutFullData mask does not fully cover the request size")
		}
	}

	for i := 1; i < len(beats); i++ {
		if err := validateBurstBeat(aBurstView(first), aBurstView(beats[i]), i, len(beats)); err != nil {
			return err
		}
	}

	return nil
}

// ValidateAMask additionally checks that every non-header beat of a burst
// presents an all-ones mask for the given channel width, a rule that
// needs the channel width ValidateARequest's caller already has.
func ValidateAMask(beats []ABeat, channelWidthBytes int) error {
	full := allOnesMask(channelWidthBytes)
	for i := 1; i < len(beats); i++ {
		if beats[i].Mask != full {
			return errors.Errorf("tilelink: burst beat %d mask %#x is not all-ones", i, beats[i].Mask)
		}
	}
	return nil
}

type burstView struct {
	Opcode  int
	Param   int
	Size    int
	Source  int
	Address uint64
}

func aBurstView(b ABeat) burstView {
	return burstView{int(b.Opcode), b.Param, b.Size, b.Source, b.Address}
}

func cBurstView(b CBeat) burstView {
	return burstView{int(b.Opcode), b.Param, b.Size, b.Source, b.Address}
}

func dBurstView(b DBeat) burstView {
	return burstView{int(b.Opcode), b.Param, b.Size, b.Source, 0}
}

// validateBurstBeat checks the shared multi-beat rule that the control
// fields (opcode, param, size, source) stay constant. It does not check
// addresses: ValidateCRequest checks C burst address contiguity itself,
// and A burst addresses are not checked.
func validateBurstBeat(first, cur burstView, beatIndex, _ int) error {
	if first.Opcode != cur.Opcode || first.Param != cur.Param ||
		first.Size != cur.Size || first.Source != cur.Source {
		return errors.Errorf("tilelink: burst beat %d changed a control field", beatIndex)
	}
	return nil
}

// ValidateCRequest mirrors ValidateARequest for channel C bursts.
func ValidateCRequest(beats []CBeat, channelWidthBytes int) error {
	if len(beats) == 0 {
		return nil
	}
	first := beats[0]

	if !cOpcodeValid(first.Opcode) {
		return errors.Errorf("tilelink: invalid C opcode %d", first.Opcode)
	}
	if first.Corrupt && !cCarriesPayload(first.Opcode) {
		return errors.New("tilelink: corrupt set on a C beat with no payload")
	}

	for i := 1; i < len(beats); i++ {
		if err := validateBurstBeat(cBurstView(first), cBurstView(beats[i]), i, len(beats)); err != nil {
			return err
		}
		if uint64(beats[i].Address) != first.Address+uint64(i)*uint64(channelWidthBytes) {
			return errors.Errorf("tilelink: C burst beat %d address not contiguous", i)
		}
	}

	return nil
}

// ValidateDResponse checks a D burst against the A request it answers:
// same size, and denied only paired with corrupt when data is present.
func ValidateDResponse(beats []DBeat, requestSize int) error {
	if len(beats) == 0 {
		return nil
	}
	first := beats[0]

	if !dOpcodeValid(first.Opcode) {
		return errors.Errorf("tilelink: invalid D opcode %d", first.Opcode)
	}
	if first.Size != requestSize {
		return errors.Errorf("tilelink: D size %d does not match A size %d", first.Size, requestSize)
	}

	for i, b := range beats {
		if b.Denied && dCarriesPayload(b.Opcode) && !b.Corrupt {
			return errors.Errorf("tilelink: D beat %d denied but not corrupt", i)
		}
		if b.Corrupt && !dCarriesPayload(b.Opcode) {
			return errors.Errorf("tilelink: D beat %d corrupt set with no payload", i)
		}
	}

	for i := 1; i < len(beats); i++ {
		if err := validateBurstBeat(dBurstView(first), dBurstView(beats[i]), i, len(beats)); err != nil {
			return err
		}
	}

	return nil
}

func aOpcodeValid(op AOpcode) bool {
	return op >= PutFullData && op <= AcquirePerm
}

func cOpcodeValid(op COpcode) bool {
	switch op {
	case ProbeAck, ProbeAckData, Release, ReleaseData:
		return true
	default:
		return false
	}
}

func dOpcodeValid(op DOpcode) bool {
	switch op {
	case AccessAck, AccessAckData, HintAck, Grant, GrantData, ReleaseAck:
		return true
	default:
		return false
	}
}

func popcount(mask uint64) int {
	return bits.OnesCount64(mask)
}

func log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func allOnesMask(channelWidthBytes int) uint64 {
	if channelWidthBytes >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << channelWidthBytes) - 1
}

// maskFullyCovers reports whether mask, aligned to address, covers every
// byte of a `width`-byte access: PutFullData must touch every byte it
// addresses.
func maskFullyCovers(mask uint64, address uint64, width int) bool {
	aligned := address%uint64(width) == 0
	full := allOnesMask(width)
	return aligned && mask&full == full
}
