// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sentinel decode errors. All three are fatal for the connection that
// produced the frame.
var (
	// ErrShortFrame reports a frame that ends in the middle of a field.
	ErrShortFrame = errors.New("wire: frame ends mid-field")

	// ErrUnknownMsgKind reports an unrecognized message kind byte.
	ErrUnknownMsgKind = errors.New("wire: unknown message kind")

	// ErrMalformedFrame reports an unknown optional field tag. Since a
	// tag's payload size cannot be determined without knowing the tag,
	// decoding cannot continue.
	ErrMalformedFrame = errors.New("wire: malformed frame")
)

// Encode serializes m into a payload (without the frame length prefix).
// Optional fields are emitted in VERSION, LABEL, NOGOOD, INFO order.
func Encode(m Message) []byte {
	size := 1
	if m.Kind == KindNode {
		size += 4*8 + 1
	}
	if m.HaveVersion {
		size += 1 + 4
	}
	if m.HaveLabel {
		size += 1 + 4 + len(m.Label)
	}
	if m.HaveNogood {
		size += 1 + 4 + len(m.Nogood)
	}
	if m.HaveInfo {
		size += 1 + 4 + len(m.Info)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(m.Kind))

	if m.Kind == KindNode {
		buf = appendInt32(buf, m.Node.Nid)
		buf = appendInt32(buf, m.Node.Rid)
		buf = appendInt32(buf, m.Node.Tid)
		buf = appendInt32(buf, m.Parent.Nid)
		buf = appendInt32(buf, m.Parent.Rid)
		buf = appendInt32(buf, m.Parent.Tid)
		buf = appendInt32(buf, m.Alt)
		buf = appendInt32(buf, m.Kids)
		buf = append(buf, m.Status)
	}

	if m.HaveVersion {
		buf = append(buf, fieldVersion)
		buf = appendInt32(buf, m.Version)
	}
	if m.HaveLabel {
		buf = append(buf, fieldLabel)
		buf = appendString(buf, m.Label)
	}
	if m.HaveNogood {
		buf = append(buf, fieldNogood)
		buf = appendString(buf, m.Nogood)
	}
	if m.HaveInfo {
		buf = append(buf, fieldInfo)
		buf = appendString(buf, m.Info)
	}
	return buf
}

// WriteFrame writes m to w as a length-prefixed frame.
func WriteFrame(w io.Writer, m Message) error {
	payload := Encode(m)
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// Decode parses exactly one message from a complete frame payload.
// Every byte of the frame must be consumed.
func Decode(payload []byte) (Message, error) {
	d := decoder{buf: payload}

	kindByte, err := d.byte()
	if err != nil {
		return Message{}, err
	}

	var m Message
	m.Kind = MsgKind(kindByte)

	switch m.Kind {
	case KindNode:
		if err := d.nodeHeader(&m); err != nil {
			return Message{}, err
		}
	case KindDone, KindStart, KindRestart:
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownMsgKind, kindByte)
	}

	for !d.done() {
		tag, err := d.byte()
		if err != nil {
			return Message{}, err
		}
		switch tag {
		case fieldVersion:
			v, err := d.int32()
			if err != nil {
				return Message{}, err
			}
			m.HaveVersion = true
			m.Version = v
		case fieldLabel:
			s, err := d.string()
			if err != nil {
				return Message{}, err
			}
			m.HaveLabel = true
			m.Label = s
		case fieldNogood:
			s, err := d.string()
			if err != nil {
				return Message{}, err
			}
			m.HaveNogood = true
			m.Nogood = s
		case fieldInfo:
			s, err := d.string()
			if err != nil {
				return Message{}, err
			}
			m.HaveInfo = true
			m.Info = s
		default:
			return Message{}, fmt.Errorf("%w: unknown tag %d", ErrMalformedFrame, tag)
		}
	}

	return m, nil
}

func appendInt32(buf []byte, v int32) []byte {
	return append(buf,
		byte(uint32(v)>>24),
		byte(uint32(v)>>16),
		byte(uint32(v)>>8),
		byte(uint32(v)))
}

func appendString(buf []byte, s string) []byte {
	buf = appendInt32(buf, int32(len(s)))
	return append(buf, s...)
}

// decoder walks a frame payload, failing with ErrShortFrame when a
// field would read past the end.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) done() bool { return d.pos >= len(d.buf) }

func (d *decoder) byte() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, ErrShortFrame
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) int32() (int32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, ErrShortFrame
	}
	v := int32(binary.BigEndian.Uint32(d.buf[d.pos:]))
	d.pos += 4
	return v, nil
}

func (d *decoder) string() (string, error) {
	n, err := d.int32()
	if err != nil {
		return "", err
	}
	if n < 0 || d.pos+int(n) > len(d.buf) {
		return "", ErrShortFrame
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

func (d *decoder) nodeHeader(m *Message) error {
	ints := make([]int32, 8)
	for i := range ints {
		v, err := d.int32()
		if err != nil {
			return err
		}
		ints[i] = v
	}
	status, err := d.byte()
	if err != nil {
		return err
	}
	m.Node = UID{Nid: ints[0], Rid: ints[1], Tid: ints[2]}
	m.Parent = UID{Nid: ints[3], Rid: ints[4], Tid: ints[5]}
	m.Alt = ints[6]
	m.Kids = ints[7]
	m.Status = status
	return nil
}
