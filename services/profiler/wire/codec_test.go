// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_Node(t *testing.T) {
	msg := NewNode(UID{1, 0, 0}, UID{-1, -1, -1}, -1, 2, 2)
	msg.SetLabel("x < 5")
	msg.SetNogood("a \\/ b")
	msg.SetInfo(`{"domain": 3}`)

	got, err := Decode(Encode(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestRoundTrip_AllKinds(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"done", NewDone()},
		{"start", NewStart(`{"name":"golomb","has_restarts":false}`)},
		{"restart", NewRestart(`{"restart_id":4}`)},
		{"bare node", NewNode(UID{7, 1, 2}, UID{3, 1, 2}, 1, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestEncode_NodeLayout(t *testing.T) {
	// kind + 8 ints + status byte, no optional fields.
	msg := NewNode(UID{1, 2, 3}, UID{4, 5, 6}, 7, 8, 1)
	payload := Encode(msg)

	require.Len(t, payload, 1+4*8+1)
	assert.Equal(t, byte(KindNode), payload[0])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(payload[1:5]))
	assert.Equal(t, uint32(6), binary.BigEndian.Uint32(payload[21:25]))
	// Status is a single unpadded byte at the end.
	assert.Equal(t, byte(1), payload[len(payload)-1])
}

func TestEncode_StartCarriesVersion(t *testing.T) {
	payload := Encode(NewStart(`{"name":"t"}`))

	// kind, VERSION tag, 4-byte version, INFO tag, ...
	assert.Equal(t, byte(KindStart), payload[0])
	assert.Equal(t, byte(3), payload[1])
	assert.Equal(t, int32(3), int32(binary.BigEndian.Uint32(payload[2:6])))
}

func TestDecode_ShortFrame(t *testing.T) {
	msg := NewNode(UID{1, 0, 0}, RootUID, -1, 0, 1)
	payload := Encode(msg)

	for _, cut := range []int{1, 5, len(payload) - 1} {
		_, err := Decode(payload[:cut])
		assert.ErrorIs(t, err, ErrShortFrame, "cut at %d", cut)
	}
}

func TestDecode_StringOverrunsFrame(t *testing.T) {
	payload := []byte{byte(KindDone), fieldLabel, 0, 0, 0, 100, 'x'}
	_, err := Decode(payload)
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte{42})
	assert.ErrorIs(t, err, ErrUnknownMsgKind)
}

func TestDecode_UnknownTagIsFatal(t *testing.T) {
	payload := append(Encode(NewDone()), 9, 0, 0, 0, 0)
	_, err := Decode(payload)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecode_EmptyFrame(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	msg := NewStart(`{"name":"t"}`)
	require.NoError(t, WriteFrame(&buf, msg))

	frame := buf.Bytes()
	size := binary.BigEndian.Uint32(frame[:4])
	require.Equal(t, int(size), len(frame)-4)

	got, err := Decode(frame[4:])
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecode_FieldsPopulatedOnlyFromThisFrame(t *testing.T) {
	// A frame without optional tags yields a message without them,
	// regardless of what earlier frames carried.
	withLabel := NewNode(UID{1, 0, 0}, RootUID, -1, 0, 1)
	withLabel.SetLabel("x")
	_, err := Decode(Encode(withLabel))
	require.NoError(t, err)

	bare, err := Decode(Encode(NewNode(UID{2, 0, 0}, UID{1, 0, 0}, 0, 0, 1)))
	require.NoError(t, err)
	assert.False(t, bare.HaveLabel)
	assert.False(t, bare.HaveNogood)
	assert.False(t, bare.HaveInfo)
	assert.False(t, bare.HaveVersion)
}
