package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/primitives"
)

func TestExecuteProcedureWithPendingRetries(t *testing.T) {
	p, meter, _ := newProtocol(t, DialectC1218)

	var st7Writes [][]byte
	st8Reads := 0
	meter.Serve(func(req []byte) (byte, []byte) {
		switch req[0] {
		case CmdFullWrite:
			c := primitives.NewCursor(req[1:])
			table, _ := c.ReadUint16BE()
			if table == TableST007 {
				st7Writes = append(st7Writes, append([]byte(nil), req...))
			}
			return byte(StatusOK), nil
		case CmdFullRead:
			st8Reads++
			if st8Reads <= 3 {
				return byte(StatusOK), []byte{ProcedureAcceptedPending}
			}
			return byte(StatusOK), []byte{ProcedureComplete, 0xDE, 0xAD}
		}
		return byte(StatusONP), nil
	})

	result, err := p.Execute(0x0015, []byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD}, result)
	require.Equal(t, 4, st8Reads, "three pending reads plus the final complete one")
	require.Len(t, st7Writes, 1)

	// ST_007 body: table(2) | size(2) | function(2) | seq(1) | params | cksum.
	body := st7Writes[0][1:]
	require.Equal(t, []byte{0x00, 0x07}, body[:2])
	require.Equal(t, []byte{0x00, 0x15}, body[4:6])
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, body[7:11])
}

func TestExecuteProcedurePendingExhausted(t *testing.T) {
	p, meter, _ := newProtocol(t, DialectC1218)
	p.Config.ApplicationLayerProcedureRetries = 2

	meter.Serve(func(req []byte) (byte, []byte) {
		if req[0] == CmdFullRead {
			return byte(StatusOK), []byte{ProcedureAcceptedPending}
		}
		return byte(StatusOK), nil
	})

	_, err := p.Execute(1, nil)
	require.True(t, c12err.Is(err, c12err.KindMeter), "got %v", err)
}

func TestProcedureSequenceCounterAdvances(t *testing.T) {
	p, meter, _ := newProtocol(t, DialectC1218)

	var seqs []byte
	meter.Serve(func(req []byte) (byte, []byte) {
		if req[0] == CmdFullWrite {
			// seq byte sits after cmd | table(2) | size(2) | function(2).
			seqs = append(seqs, req[7])
			return byte(StatusOK), nil
		}
		return byte(StatusOK), []byte{ProcedureComplete}
	})

	_, err := p.Execute(1, nil)
	require.NoError(t, err)
	_, err = p.Execute(1, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, seqs)
}

func TestProcedureLinkRetriesInflated(t *testing.T) {
	p, _, _ := newProtocol(t, DialectC1218)
	p.Engine.Timing.AcknowledgementTimeout = 3 * time.Second
	p.Config.ProcedureInitiateTimeout = 20 * time.Second
	p.Config.LinkLayerRetries = 3

	got := p.procedureLinkRetries()
	require.GreaterOrEqual(t, time.Duration(got)*p.Engine.Timing.AcknowledgementTimeout, p.Config.ProcedureInitiateTimeout,
		"effectiveRetries x AcknowledgementTimeout must cover ProcedureInitiateTimeout")
	require.Equal(t, 7, got)
}

func TestProcedureLinkRetriesNeverBelowConfigured(t *testing.T) {
	p, _, _ := newProtocol(t, DialectC1218)
	p.Engine.Timing.AcknowledgementTimeout = 30 * time.Second
	p.Config.ProcedureInitiateTimeout = 20 * time.Second
	p.Config.LinkLayerRetries = 5

	require.Equal(t, 5, p.procedureLinkRetries())
}
