// Package app implements the C12.18/C12.21 application layer: the service
// codec, response-code taxonomy, retry policy, authentication and the
// C1218/C1221 dialect split.
package app

// Status is the one-byte application response code carried in the first
// byte of a response message.
type Status byte

// Response codes carried in the STATUS byte of every response. RNO takes
// the first value above the standard codes.
const (
	StatusOK  Status = 0
	StatusBSY Status = 1
	StatusDNR Status = 2
	StatusERR Status = 5
	StatusSNS Status = 6
	StatusISC Status = 7
	StatusONP Status = 8
	StatusIAR Status = 9
	StatusRNO Status = 10
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBSY:
		return "BSY"
	case StatusDNR:
		return "DNR"
	case StatusERR:
		return "ERR"
	case StatusSNS:
		return "SNS"
	case StatusISC:
		return "ISC"
	case StatusONP:
		return "ONP"
	case StatusIAR:
		return "IAR"
	case StatusRNO:
		return "RNO"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether the app layer should retry the whole service
// call.
func (s Status) Retryable() bool { return s == StatusBSY || s == StatusDNR }

// Service command bytes.
const (
	CmdIdentify            byte = 0x20
	CmdNegotiate           byte = 0x60
	CmdNegotiateWithBaud   byte = 0x61
	CmdAuthenticate        byte = 0x53
	CmdTimingSetup         byte = 0x71
	CmdFullRead            byte = 0x30
	CmdPartialRead         byte = 0x3F
	CmdFullWrite           byte = 0x40
	CmdPartialWrite        byte = 0x4F
	CmdTerminate           byte = 0x21
	CmdLogoff              byte = 0x22
)

// Standard table numbers used for procedure execution.
const (
	TableST007 = 0x0007
	TableST008 = 0x0008
)

// baudTable maps the negotiation baud index to the actual baud rate. Index 0 is unused; valid indices are 0x01..0x0E.
var baudTable = [...]int{
	0: 0,
	1: 300, 2: 600, 3: 1200, 4: 2400, 5: 4800, 6: 9600, 7: 14400,
	8: 19200, 9: 28800, 10: 57600, 11: 38400, 12: 115200, 13: 128000, 14: 256000,
}

// BaudToIndex returns the negotiation index for baud, and false if baud is
// not in the table.
func BaudToIndex(baud int) (byte, bool) {
	for i, b := range baudTable {
		if i != 0 && b == baud {
			return byte(i), true
		}
	}
	return 0, false
}

// IndexToBaud returns the baud rate for a negotiation index, and false if
// the index is outside 0x01..0x0E.
func IndexToBaud(index byte) (int, bool) {
	if int(index) <= 0 || int(index) >= len(baudTable) {
		return 0, false
	}
	return baudTable[index], true
}

// Algorithm is the authentication algorithm code reported by Identify.
type Algorithm byte

const (
	AlgorithmDES Algorithm = 0
	AlgorithmAES Algorithm = 255
)
