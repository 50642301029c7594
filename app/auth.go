package app

import (
	"crypto/des"
	"errors"

	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/primitives"
)

var (
	errEAXShort = errors.New("app: eax ciphertext too short")
	errEAXAuth  = errors.New("app: eax authentication failed")
)

// Authentication request/response length-prefix bytes: DES frames are tagged 0x09, AES frames 0x11.
const (
	authTagDES byte = 0x09
	authTagAES byte = 0x11
)

// Authenticate runs the device-certification handshake using the algorithm
// and ticket Identify reported. If the
// device did not advertise authentication support while the client is
// configured to require it, startup fails with a Security error
// (MeterDoesNotSupportAuthentication).
func (p *Protocol) Authenticate() error {
	return p.AuthenticateWithKey(p.Config.AuthenticationKey, p.Config.AuthenticationKeyID)
}

// AuthenticateWithKey performs one Authenticate attempt with a specific
// key/keyID candidate, used directly by the session layer's key-list
// iteration.
func (p *Protocol) AuthenticateWithKey(key *primitives.SecureBytes, keyID byte) error {
	if !p.Identified.AuthSupported {
		return c12err.Newf(c12err.KindSecurity, "app: MeterDoesNotSupportAuthentication")
	}
	ticket := p.Identified.AuthTicket

	var reqCipher []byte
	var tag byte
	var err error
	switch p.Identified.AuthAlgorithm {
	case AlgorithmDES:
		tag = authTagDES
		reqCipher, err = desECBEncrypt(key.Bytes(), ticket)
	case AlgorithmAES:
		tag = authTagAES
		reqCipher, err = eaxEncrypt(key.Bytes(), ticket, nil, ticket)
	default:
		return c12err.Newf(c12err.KindMeter, "app: unsupported authentication algorithm 0x%02x", byte(p.Identified.AuthAlgorithm))
	}
	if err != nil {
		return c12err.New(c12err.KindSecurity, err)
	}

	body := primitives.NewBuilder(2 + len(reqCipher))
	body.AppendByte(tag)
	body.AppendByte(keyID)
	body.AppendBytes(reqCipher...)

	resp, err := p.simpleRequest(CmdAuthenticate, body.Bytes())
	if err != nil {
		if code, extra, ok := c12err.AsNokResponse(err); ok && Status(code) == StatusERR {
			// Some devices miscompute their toggle after an authentication
			// failure; clear it before surfacing.
			p.Engine.ClearInboundToggle()
			return &c12err.Error{Kind: c12err.KindSecurity, Code: code, Extra: extra}
		}
		return err
	}

	c := primitives.NewCursor(resp)
	gotTag, err1 := c.ReadByte()
	_, err2 := c.ReadByte() // echoed keyId, not otherwise checked
	respCipher := c.Remaining()
	if err1 != nil || err2 != nil || gotTag != tag {
		return c12err.Newf(c12err.KindSecurity, "app: malformed Authenticate response")
	}

	// The device is expected to decrypt the request ciphertext with its own
	// copy of the key and re-encrypt the recovered ticket, echoing back an
	// identical ciphertext (ECB/EAX are both deterministic for a fixed
	// nonce). Certification compares the plaintext recovered by decrypting
	// the response against the original ticket.
	var certified bool
	switch p.Identified.AuthAlgorithm {
	case AlgorithmDES:
		decrypted, derr := desECBDecrypt(key.Bytes(), respCipher)
		certified = derr == nil && constantTimeEqual(decrypted, ticket)
	case AlgorithmAES:
		decrypted, derr := eaxDecrypt(key.Bytes(), ticket, nil, respCipher)
		certified = derr == nil && constantTimeEqual(decrypted, ticket)
	}
	if !certified {
		return c12err.Newf(c12err.KindSecurity, "app: DataNotValidated")
	}
	return nil
}

// desECBEncrypt/desECBDecrypt apply single-DES in ECB mode block-by-block,
// the legacy algorithm older meters still require, using crypto/des
// directly.
func desECBEncrypt(key, data []byte) ([]byte, error) {
	return desECB(key, data, true)
}

func desECBDecrypt(key, data []byte) ([]byte, error) {
	return desECB(key, data, false)
}

func desECB(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := des.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%des.BlockSize != 0 {
		return nil, c12err.Newf(c12err.KindSecurity, "app: DES ticket length %d not a multiple of %d", len(data), des.BlockSize)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += des.BlockSize {
		if encrypt {
			block.Encrypt(out[i:i+des.BlockSize], data[i:i+des.BlockSize])
		} else {
			block.Decrypt(out[i:i+des.BlockSize], data[i:i+des.BlockSize])
		}
	}
	return out, nil
}
