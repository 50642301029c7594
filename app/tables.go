package app

import (
	"github.com/c12stack/c12/primitives"
)

// checksum8 is the one-byte additive checksum ANSI C12 full/partial writes
// append after the data: the two's-complement of the sum of the preceding
// bytes, so that the sum of the whole body plus checksum is zero mod 256.
func checksum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return byte(-int8(sum))
}

// ReadFull issues the full-read service for tableNo
// and returns the table data.
func (p *Protocol) ReadFull(tableNo uint16) ([]byte, error) {
	b := primitives.NewBuilder(2)
	b.AppendUint16BE(tableNo)
	return p.simpleRequest(CmdFullRead, b.Bytes())
}

// ReadPartial issues the partial-read service for
// tableNo at the given byte offset and length.
func (p *Protocol) ReadPartial(tableNo uint16, offset uint32, length uint16) ([]byte, error) {
	b := primitives.NewBuilder(7)
	b.AppendUint16BE(tableNo)
	b.AppendUint24BE(offset)
	b.AppendUint16BE(length)
	return p.simpleRequest(CmdPartialRead, b.Bytes())
}

// WriteFull issues the full-write service for
// tableNo with data, appending the mandatory checksum byte.
func (p *Protocol) WriteFull(tableNo uint16, data []byte) error {
	b := primitives.NewBuilder(5 + len(data))
	b.AppendUint16BE(tableNo)
	b.AppendUint16BE(uint16(len(data)))
	b.AppendBytes(data...)
	b.AppendByte(checksum8(b.Bytes()))
	_, err := p.simpleRequest(CmdFullWrite, b.Bytes())
	return err
}

// WritePartial issues the partial-write service for
// tableNo at the given byte offset, appending the mandatory checksum byte.
func (p *Protocol) WritePartial(tableNo uint16, offset uint32, data []byte) error {
	b := primitives.NewBuilder(8 + len(data))
	b.AppendUint16BE(tableNo)
	b.AppendUint24BE(offset)
	b.AppendUint16BE(uint16(len(data)))
	b.AppendBytes(data...)
	b.AppendByte(checksum8(b.Bytes()))
	_, err := p.simpleRequest(CmdPartialWrite, b.Bytes())
	return err
}

// writeFullRaw performs a full-write without the default app-layer retry
// inflation, used by procedure execution to transiently widen the link
// retry budget around the ST_007 write.
func (p *Protocol) writeFullRaw(tableNo uint16, data []byte, minLinkRetries int) error {
	b := primitives.NewBuilder(5 + len(data))
	b.AppendUint16BE(tableNo)
	b.AppendUint16BE(uint16(len(data)))
	b.AppendBytes(data...)
	b.AppendByte(checksum8(b.Bytes()))

	_, err := p.DoApplicationLayerRequest(CmdFullWrite, b.Bytes(), requestOptions{minLinkRetries: minLinkRetries})
	return err
}
