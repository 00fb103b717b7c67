package tilelink

import "github.com/pkg/errors"

// Link wires a host Endpoint and a device Endpoint together and drives
// the per-cycle channel-end contract across all five channels: sample
// each sender's SetOutputs, offer the beat to the opposite receiver's
// GetInputs, and report the accepted/not-accepted result back through
// SetFlowControl. A device answers completed A/C bursts against its
// Backend automatically; a host observes inbound B/D traffic through
// the OnB/OnD callbacks it sets before calling Step.
type Link struct {
	Host   *Endpoint
	Device *Endpoint

	// OnD is invoked on the host side for every accepted D beat.
	OnD func(DBeat)
	// OnB is invoked on the host side for every accepted B beat.
	OnB func(BBeat)
}

func NewLink(host, device *Endpoint) *Link {
	return &Link{Host: host, Device: device}
}

// Step advances the link by one cycle, in the same two-phase shape every
// memory port in this module uses: first move bytes (GetInputs/accept),
// then resolve backpressure (SetFlowControl) based on what was accepted.
func (l *Link) Step() error {
	if err := l.stepA(); err != nil {
		return err
	}
	l.stepB()
	if err := l.stepC(); err != nil {
		return err
	}
	l.stepD()
	l.stepE()
	return nil
}

func (l *Link) stepA() error {
	beat, valid := l.Host.aSend.SetOutputs(l.Host.rng, retractProbability, shuffleProbability)
	accepted := l.Device.aRecv.GetInputs(valid, beat, func(b ABeat) {
		l.Device.handleABeat(b)
	})
	l.Host.aSend.SetFlowControl(accepted)
	if valid && accepted {
		return l.Device.drainCompletedA()
	}
	return nil
}

func (l *Link) stepB() {
	beat, valid := l.Device.bSend.SetOutputs(l.Device.rng, retractProbability, shuffleProbability)
	accepted := l.Host.bRecv.GetInputs(valid, beat, func(b BBeat) {
		if l.OnB != nil {
			l.OnB(b)
		}
	})
	l.Device.bSend.SetFlowControl(accepted)
}

func (l *Link) stepC() error {
	beat, valid := l.Host.cSend.SetOutputs(l.Host.rng, retractProbability, shuffleProbability)
	accepted := l.Device.cRecv.GetInputs(valid, beat, func(b CBeat) {
		l.Device.handleCBeat(b)
	})
	l.Host.cSend.SetFlowControl(accepted)
	if valid && accepted {
		return l.Device.drainCompletedC()
	}
	return nil
}

func (l *Link) stepD() {
	beat, valid := l.Device.dSend.SetOutputs(l.Device.rng, retractProbability, shuffleProbability)
	accepted := l.Host.dRecv.GetInputs(valid, beat, func(b DBeat) {
		if l.OnD != nil {
			l.OnD(b)
		}
	})
	l.Device.dSend.SetFlowControl(accepted)
}

func (l *Link) stepE() {
	beat, valid := l.Host.eSend.SetOutputs(l.Host.rng, retractProbability, shuffleProbability)
	accepted := l.Device.eRecv.GetInputs(valid, beat, func(b EBeat) {
		l.Device.handleEBeat(b)
	})
	l.Host.eSend.SetFlowControl(accepted)
}

const (
	retractProbability = 0.1
	shuffleProbability = 0.2
)

// handleABeat accumulates the beats of an inbound burst by source ID.
// Get/Intent/AcquireBlock/AcquirePerm are always single-beat and
// complete immediately; PutFullData/PutPartialData/ArithmeticData/
// LogicalData accumulate until their declared beat count is reached.
func (e *Endpoint) handleABeat(beat ABeat) {
	e.aInProgress[beat.Source] = append(e.aInProgress[beat.Source], beat)
}

func (e *Endpoint) drainCompletedA() error {
	for source, beats := range e.aInProgress {
		want := numBeats(aCarriesPayload(beats[0].Opcode), beats[0].Size, channelWidthBytes(e.Config))
		if len(beats) < want {
			continue
		}
		delete(e.aInProgress, source)
		if err := e.answerA(beats); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) answerA(beats []ABeat) error {
	if e.Backend == nil {
		return errors.New("tilelink: device endpoint has no backend to answer channel A")
	}
	header := beats[0]
	width := 1 << header.Size

	switch header.Opcode {
	case Get:
		data, err := e.Backend.Read(header.Address, width)
		if err != nil {
			return err
		}
		e.dSend.Enqueue(NewDMessage(DBeat{
			Opcode: AccessAckData, Size: header.Size, Source: header.Source, Data: data,
		}, channelWidthBytes(e.Config)))

	case PutFullData, PutPartialData:
		for _, b := range beats {
			if err := e.Backend.Write(b.Address, width, b.Mask, b.Data); err != nil {
				return err
			}
		}
		e.dSend.Enqueue(NewDMessage(DBeat{
			Opcode: AccessAck, Size: header.Size, Source: header.Source,
		}, channelWidthBytes(e.Config)))

	case ArithmeticData, LogicalData:
		current, err := e.Backend.Read(header.Address, width)
		if err != nil {
			return err
		}
		if err := e.Backend.Write(header.Address, width, allOnesMask(width), combine(header.Opcode, header.Param, current, header.Data)); err != nil {
			return err
		}
		e.dSend.Enqueue(NewDMessageWithBeats(DBeat{
			Opcode: AccessAckData, Size: header.Size, Source: header.Source, Data: current,
		}, channelWidthBytes(e.Config), len(beats)))

	case Intent:
		e.dSend.Enqueue(NewDMessage(DBeat{
			Opcode: HintAck, Size: header.Size, Source: header.Source,
		}, channelWidthBytes(e.Config)))

	case AcquireBlock, AcquirePerm:
		if owner, held := e.owners[header.Address]; held && owner != header.Source {
			e.bSend.Enqueue(NewBMessage(BBeat{
				Opcode: probeOpcodeFor(header.Opcode), Param: int(CapToN),
				Size: header.Size, Source: owner, Address: header.Address,
			}))
		}
		e.owners[header.Address] = header.Source

		data, err := e.Backend.Read(header.Address, width)
		if err != nil {
			return err
		}
		e.dSend.Enqueue(NewDMessage(DBeat{
			Opcode: GrantData, Param: int(CapToT), Size: header.Size, Source: header.Source, Data: data,
		}, channelWidthBytes(e.Config)))

	default:
		return errors.Errorf("tilelink: unhandled A opcode %d", header.Opcode)
	}

	return nil
}

// probeOpcodeFor picks the channel-B probe matching an Acquire opcode:
// AcquireBlock wants the data back too, AcquirePerm only the permission.
func probeOpcodeFor(op AOpcode) BOpcode {
	if op == AcquireBlock {
		return ProbeBlock
	}
	return ProbePerm
}

// combine applies the channel-A arithmetic/logical opcode to a beat's
// worth of data, mirroring the atomic-update semantics described for
// the memory-mapped AMO path.
func combine(op AOpcode, param int, current, operand uint64) uint64 {
	if op == LogicalData {
		switch LogicalParam(param) {
		case LogicalXor:
			return current ^ operand
		case LogicalOr:
			return current | operand
		case LogicalAnd:
			return current & operand
		case LogicalSwap:
			return operand
		}
	}
	switch ArithmeticParam(param) {
	case ArithmeticAdd:
		return current + operand
	case ArithmeticMin:
		if int64(current) <= int64(operand) {
			return current
		}
		return operand
	case ArithmeticMax:
		if int64(current) >= int64(operand) {
			return current
		}
		return operand
	case ArithmeticMinU:
		if current <= operand {
			return current
		}
		return operand
	case ArithmeticMaxU:
		if current >= operand {
			return current
		}
		return operand
	}
	return operand
}

// handleCBeat accumulates a C burst (ReleaseData arrives over multiple
// beats); drainCompletedC answers it once complete, acknowledging a
// release. A probe acknowledgement gets no reply and its data is not
// written to the backend.
func (e *Endpoint) handleCBeat(beat CBeat) {
	e.cInProgress = append(e.cInProgress, beat)
}

func (e *Endpoint) drainCompletedC() error {
	if len(e.cInProgress) == 0 {
		return nil
	}
	header := e.cInProgress[0]
	want := numBeats(cCarriesPayload(header.Opcode), header.Size, channelWidthBytes(e.Config))
	if len(e.cInProgress) < want {
		return nil
	}
	beats := e.cInProgress
	e.cInProgress = nil

	switch header.Opcode {
	case Release, ReleaseData:
		if owner, held := e.owners[header.Address]; held && owner == header.Source {
			delete(e.owners, header.Address)
		}
		if header.Opcode == ReleaseData && e.Backend != nil {
			width := 1 << header.Size
			for _, b := range beats {
				if err := e.Backend.Write(b.Address, width, allOnesMask(width), b.Data); err != nil {
					return err
				}
			}
		}
		e.dSend.Enqueue(NewDMessage(DBeat{
			Opcode: ReleaseAck, Size: header.Size, Source: header.Source,
		}, channelWidthBytes(e.Config)))
	case ProbeAck, ProbeAckData:
		// No per-probe B transaction state is kept, so a probe
		// acknowledgement changes nothing and has no reply on this link.
	}
	return nil
}

// handleEBeat observes the host's GrantAck. Grant/GrantData is answered
// eagerly in answerA with no pending state of its own, so there is nothing
// left to close out here; the beat only needs to be accepted off channel E.
func (e *Endpoint) handleEBeat(beat EBeat) {
}
