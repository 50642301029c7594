package app

import (
	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/primitives"
)

// Procedure result codes carried in the first byte of an ST_008 read.
const (
	ProcedureComplete        byte = 0
	ProcedureAcceptedPending byte = 1
)

// nextSequenceNumber hands out the 1-byte rolling sequence counter that
// prefixes every ST_007 procedure invocation.
func (p *Protocol) nextSequenceNumber() byte {
	p.procedureSequence++
	return p.procedureSequence
}

// Execute runs a procedure via the ST_007/ST_008 handshake: write the function
// call to ST_007 (with a transiently widened link-retry budget so that
// effectiveRetries × AcknowledgementTimeout ≥ ProcedureInitiateTimeout),
// then poll ST_008 until it reports completion.
func (p *Protocol) Execute(functionID uint16, params []byte) ([]byte, error) {
	b := primitives.NewBuilder(3 + len(params))
	b.AppendUint16BE(functionID)
	b.AppendByte(p.nextSequenceNumber())
	b.AppendBytes(params...)

	minRetries := p.procedureLinkRetries()
	if err := p.writeFullRaw(TableST007, b.Bytes(), minRetries); err != nil {
		return nil, err
	}

	retries := p.Config.ApplicationLayerProcedureRetries
	for {
		resp, err := p.ReadFull(TableST008)
		if err != nil {
			return nil, err
		}
		if len(resp) == 0 {
			return nil, c12err.Newf(c12err.KindMeter, "app: empty ST_008 response")
		}
		code := resp[0]
		switch code {
		case ProcedureComplete:
			return resp[1:], nil
		case ProcedureAcceptedPending:
			if retries <= 0 {
				return nil, c12err.Newf(c12err.KindMeter, "app: procedure did not complete after %d retries", p.Config.ApplicationLayerProcedureRetries)
			}
			retries--
			if err := p.Engine.Channel.Sleep(p.Config.ApplicationLayerProcedureSleepBetweenRetries); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, c12err.Newf(c12err.KindMeter, "app: procedure failed with code 0x%02x", code)
		}
	}
}

// procedureLinkRetries computes the minimum link-retry count so that
// retries × AcknowledgementTimeout ≥ ProcedureInitiateTimeout.
func (p *Protocol) procedureLinkRetries() int {
	ack := p.Engine.Timing.AcknowledgementTimeout
	if ack <= 0 {
		return p.Config.LinkLayerRetries
	}
	need := int((p.Config.ProcedureInitiateTimeout + ack - 1) / ack)
	if need < p.Config.LinkLayerRetries {
		need = p.Config.LinkLayerRetries
	}
	return need
}
