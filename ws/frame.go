// File: ws/frame.go
// Package ws
// Author: momentics <momentics@gmail.com>
//
// RFC 6455 frame representation and codec, grounded on the teacher's
// protocol/frame.go and protocol/frame_codec.go — but fixing a real
// defect found there: EncodeFrame used a fixed mask key
// ({0x12,0x34,0x56,0x78} / {0xDE,0xAD,0xBE,0xEF}) instead of a
// cryptographically random 32-bit key per frame, which defeats the
// purpose of masking entirely. This implementation draws a fresh random
// key with crypto/rand on every masked frame.
package ws

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/momentics/netreactor/api"
)

// Opcode identifies a WebSocket frame's payload interpretation (RFC 6455 §5.2).
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (op Opcode) isControl() bool { return op >= OpClose }

// MaxControlFramePayload is RFC 6455's hard limit on control frame size.
const MaxControlFramePayload = 125

// Frame is a single decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// EncodeFrame serializes a frame to dst (grown as needed), masking with a
// fresh random key when mask is true (mandatory for client-to-server
// frames, forbidden for server-to-client per RFC 6455 §5.1).
func EncodeFrame(dst []byte, opcode Opcode, payload []byte, fin, mask bool) ([]byte, error) {
	if opcode.isControl() && len(payload) > MaxControlFramePayload {
		return nil, api.NewError(api.ErrCodeProtocol, "control frame payload exceeds 125 bytes", nil)
	}

	var b0 byte
	if fin {
		b0 = 0x80
	}
	b0 |= byte(opcode) & 0x0F

	plen := len(payload)
	dst = dst[:0]
	dst = append(dst, b0)

	switch {
	case plen <= 125:
		dst = append(dst, maskedLenByte(byte(plen), mask))
	case plen <= 0xFFFF:
		dst = append(dst, maskedLenByte(126, mask))
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(plen))
		dst = append(dst, ext[:]...)
	default:
		dst = append(dst, maskedLenByte(127, mask))
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(plen))
		dst = append(dst, ext[:]...)
	}

	if !mask {
		dst = append(dst, payload...)
		return dst, nil
	}

	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, api.NewError(api.ErrCodeResource, "generate mask key", err)
	}
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	maskInPlace(dst[start:], key)
	return dst, nil
}

func maskedLenByte(length byte, mask bool) byte {
	if mask {
		return length | 0x80
	}
	return length
}

func maskInPlace(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}

// DecodeFrame parses a single frame from raw. Returns (nil, 0, nil) if
// raw does not yet contain a complete frame.
func DecodeFrame(raw []byte, maxPayload int) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}
	fin := raw[0]&0x80 != 0
	opcode := Opcode(raw[0] & 0x0F)
	masked := raw[1]&0x80 != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil
		}
		length64 := binary.BigEndian.Uint64(raw[offset:])
		if length64&(1<<63) != 0 {
			// RFC 6455 §5.2/spec: the 8-byte extended length's MSB must be
			// 0; a set MSB represents a length far beyond any real
			// maximum, so this is classified with the same
			// length-exceeds-maximum close code (1009) as an explicit
			// over-limit length rather than a bare protocol error (1002).
			return nil, 0, api.NewError(api.ErrCodeResource, "extended payload length MSB must be 0", nil)
		}
		length = int64(length64)
		offset += 8
	}

	if maxPayload > 0 && length > int64(maxPayload) {
		return nil, 0, api.NewError(api.ErrCodeResource, "frame payload exceeds configured maximum", nil)
	}
	if opcode.isControl() && (length > MaxControlFramePayload || !fin) {
		return nil, 0, api.NewError(api.ErrCodeProtocol, "invalid control frame", nil)
	}

	var key [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(key[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:total])
	if masked {
		maskInPlace(payload, key)
	}

	return &Frame{
		Fin:     fin,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: key,
		Payload: payload,
	}, total, nil
}
