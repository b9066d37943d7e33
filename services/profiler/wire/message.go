// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package wire implements the framed binary protocol spoken between a
// solver and the profiler.
//
// Every message travels as a frame: a 4-byte big-endian payload length
// followed by that many payload bytes. The payload starts with a
// one-byte message kind; NODE payloads carry a fixed header (two UID
// triplets, alt, kids as 4-byte big-endian integers, then a one-byte
// status) and any payload may end with optional tagged fields.
package wire

// Version is the current protocol version, sent inside START messages.
const Version int32 = 3

// MsgKind is the one-byte message discriminator.
type MsgKind byte

const (
	// KindNode describes one explored search node.
	KindNode MsgKind = 0
	// KindDone signals the end of the execution's stream.
	KindDone MsgKind = 1
	// KindStart opens an execution; its info field carries metadata.
	KindStart MsgKind = 2
	// KindRestart signals a solver restart.
	KindRestart MsgKind = 3
)

// Optional field tags. Each optional field is encoded as a one-byte tag
// followed by its payload: a 4-byte integer for fieldVersion, a
// length-prefixed string for the rest.
const (
	fieldLabel   byte = 0
	fieldNogood  byte = 1
	fieldInfo    byte = 2
	fieldVersion byte = 3
)

// UID is the solver-supplied node identifier triplet: node number,
// restart id, thread id. UIDs are only meaningful during ingestion;
// the builder translates them to dense NodeIDs.
type UID struct {
	Nid int32
	Rid int32
	Tid int32
}

// RootUID is the sentinel parent UID solvers send for root nodes.
var RootUID = UID{Nid: -1, Rid: -1, Tid: -1}

// Message is one decoded protocol message. The header fields are only
// meaningful for KindNode; optional fields are populated solely by tags
// observed in the frame they were decoded from.
type Message struct {
	Kind MsgKind

	Node   UID
	Parent UID
	Alt    int32
	Kids   int32
	Status byte

	HaveVersion bool
	Version     int32

	HaveLabel bool
	Label     string

	HaveNogood bool
	Nogood     string

	HaveInfo bool
	Info     string
}

// NewNode builds a NODE message.
func NewNode(node, parent UID, alt, kids int32, status byte) Message {
	return Message{
		Kind:   KindNode,
		Node:   node,
		Parent: parent,
		Alt:    alt,
		Kids:   kids,
		Status: status,
	}
}

// NewStart builds a START message carrying the protocol version and an
// info JSON blob (name, has_restarts, execution_id).
func NewStart(info string) Message {
	return Message{
		Kind:        KindStart,
		HaveVersion: true,
		Version:     Version,
		HaveInfo:    true,
		Info:        info,
	}
}

// NewRestart builds a RESTART message; info carries the restart id.
func NewRestart(info string) Message {
	return Message{Kind: KindRestart, HaveInfo: true, Info: info}
}

// NewDone builds a DONE message.
func NewDone() Message {
	return Message{Kind: KindDone}
}

// SetLabel attaches a branching label.
func (m *Message) SetLabel(label string) {
	m.HaveLabel = true
	m.Label = label
}

// SetNogood attaches a learned nogood.
func (m *Message) SetNogood(nogood string) {
	m.HaveNogood = true
	m.Nogood = nogood
}

// SetInfo attaches an info JSON blob.
func (m *Message) SetInfo(info string) {
	m.HaveInfo = true
	m.Info = info
}
