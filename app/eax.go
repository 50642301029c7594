package app

import (
	"crypto/aes"
	"crypto/cipher"
)

// This file implements AES-EAX (Bellare/Rogaway/Wagner) over the standard
// library's AES block cipher. CMAC (NIST SP 800-38B / RFC 4493) and the EAX
// construction on top of it are small enough to build on crypto/aes and
// crypto/cipher directly rather than vendor a third-party AEAD.

const blockSize = 16

// cmacSubkeys derives the two CMAC subkeys K1, K2 from the zero-block
// encryption L = E(K, 0^16) by doubling in GF(2^128) with the standard
// reduction polynomial 0x87 (NIST SP 800-38B).
func cmacSubkeys(block cipher.Block) (k1, k2 [blockSize]byte) {
	var zero, l [blockSize]byte
	block.Encrypt(l[:], zero[:])
	k1 = gfDouble(l)
	k2 = gfDouble(k1)
	return
}

func gfDouble(in [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	carry := byte(0)
	for i := blockSize - 1; i >= 0; i-- {
		v := in[i]
		out[i] = (v << 1) | carry
		carry = v >> 7
	}
	if in[0]&0x80 != 0 {
		out[blockSize-1] ^= 0x87
	}
	return out
}

func xorBlock(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// cmac computes the CMAC (OMAC1) of msg under block per RFC 4493.
func cmac(block cipher.Block, msg []byte) [blockSize]byte {
	k1, k2 := cmacSubkeys(block)

	n := len(msg)
	var lastBlock [blockSize]byte
	complete := n > 0 && n%blockSize == 0

	numBlocks := n / blockSize
	if !complete {
		numBlocks++
	}
	if numBlocks == 0 {
		numBlocks = 1
	}

	var mac [blockSize]byte
	for i := 0; i < numBlocks-1; i++ {
		chunk := msg[i*blockSize : (i+1)*blockSize]
		xorBlock(mac[:], mac[:], chunk)
		block.Encrypt(mac[:], mac[:])
	}

	if complete {
		copy(lastBlock[:], msg[(numBlocks-1)*blockSize:])
		xorBlock(lastBlock[:], lastBlock[:], k1[:])
	} else {
		copy(lastBlock[:], msg[(numBlocks-1)*blockSize:])
		lastBlock[n-(numBlocks-1)*blockSize] = 0x80
		xorBlock(lastBlock[:], lastBlock[:], k2[:])
	}
	xorBlock(mac[:], mac[:], lastBlock[:])
	block.Encrypt(mac[:], mac[:])
	return mac
}

// omac computes OMAC_t(msg) = CMAC( [0]*15 ++ [t] ++ msg ), the tweaked
// CMAC variant EAX uses to domain-separate the nonce/header/ciphertext MACs
// (t = 0 for the nonce, 1 for the header, 2 for the ciphertext).
func omac(block cipher.Block, t byte, msg []byte) [blockSize]byte {
	buf := make([]byte, blockSize+len(msg))
	buf[blockSize-1] = t
	copy(buf[blockSize:], msg)
	return cmac(block, buf)
}

// eaxEncrypt encrypts plaintext under key with nonce and associated header,
// returning ciphertext||tag (tag is always 16 bytes here).
func eaxEncrypt(key, nonce, header, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	n := omac(block, 0, nonce)
	h := omac(block, 1, header)

	ciphertext := make([]byte, len(plaintext))
	ctr := cipher.NewCTR(block, n[:])
	ctr.XORKeyStream(ciphertext, plaintext)

	c := omac(block, 2, ciphertext)

	var tag [blockSize]byte
	xorBlock(tag[:], n[:], h[:])
	xorBlock(tag[:], tag[:], c[:])

	out := make([]byte, 0, len(ciphertext)+blockSize)
	out = append(out, ciphertext...)
	out = append(out, tag[:]...)
	return out, nil
}

// eaxDecrypt reverses eaxEncrypt and verifies the tag in constant time,
// returning the plaintext only if authentication succeeds.
func eaxDecrypt(key, nonce, header, ciphertextAndTag []byte) ([]byte, error) {
	if len(ciphertextAndTag) < blockSize {
		return nil, errEAXShort
	}
	ciphertext := ciphertextAndTag[:len(ciphertextAndTag)-blockSize]
	gotTag := ciphertextAndTag[len(ciphertextAndTag)-blockSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	n := omac(block, 0, nonce)
	h := omac(block, 1, header)
	c := omac(block, 2, ciphertext)

	var wantTag [blockSize]byte
	xorBlock(wantTag[:], n[:], h[:])
	xorBlock(wantTag[:], wantTag[:], c[:])

	if !constantTimeEqual(wantTag[:], gotTag) {
		return nil, errEAXAuth
	}

	plaintext := make([]byte, len(ciphertext))
	ctr := cipher.NewCTR(block, n[:])
	ctr.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
