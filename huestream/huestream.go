// Package huestream implements the Hue Entertainment streaming message format.
package huestream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.BigEndian

const (
	// ProtocolName is the literal that starts every message.
	ProtocolName = "HueStream"
	// ConfigIDSize is the length of an entertainment configuration ID.
	ConfigIDSize = 36
	// HeaderSize is the size of the fixed message header.
	HeaderSize = len(ProtocolName) + 2 + 1 + 2 + 1 + 1 + ConfigIDSize
	// ChannelSize is the size of a single serialized channel record.
	ChannelSize = 1 + 3*2
	// MaxMessageSize is the size of a message carrying MaxChannels channels.
	MaxMessageSize = HeaderSize + MaxChannels*ChannelSize
)

// Version is the protocol version tag, major then minor.
var Version = [2]byte{0x02, 0x00}

var (
	// ErrChannelCount is returned when a channel count is outside
	// [0, MaxChannels].
	ErrChannelCount = errors.New("channel count out of range")
	// ErrConfigIDLength is returned when an entertainment configuration ID is
	// not exactly ConfigIDSize characters long.
	ErrConfigIDLength = errors.New("entertainment configuration ID has invalid length")
)

// ColorSpace is the color space tag of a message.
type ColorSpace uint8

const (
	// RGB means each channel carries 16-bit red, green and blue values.
	RGB ColorSpace = 0x00
	// XYBrightness means each channel carries 16-bit CIE x and y chromaticity
	// followed by brightness.
	XYBrightness ColorSpace = 0x01
)

// String returns a string representation of the color space.
func (c ColorSpace) String() string {
	switch c {
	case RGB:
		return "rgb"
	case XYBrightness:
		return "xy"
	default:
		return fmt.Sprintf("ColorSpace(%d)", c)
	}
}

// ParseColorSpace parses the string form of a color space.
func ParseColorSpace(s string) (ColorSpace, error) {
	switch s {
	case "rgb":
		return RGB, nil
	case "xy", "xyb", "":
		return XYBrightness, nil
	default:
		return 0, fmt.Errorf("unknown color space %q", s)
	}
}

// ValidChannelCount reports whether n channels fit into a message.
func ValidChannelCount(n int) bool {
	return n >= 0 && n <= MaxChannels
}

// Message is a single streaming message. Only the first ChannelCount channels
// of Channels are meaningful.
type Message struct {
	SequenceID   uint8
	ColorSpace   ColorSpace
	ConfigID     [ConfigIDSize]byte
	Channels     [MaxChannels]Channel
	ChannelCount int
}

// NewMessage builds a message carrying the active channels of the given frame,
// tagged with the frame's color space.
func NewMessage(frame *Frame, configID string, seq uint8) (*Message, error) {
	if len(configID) != ConfigIDSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrConfigIDLength, len(configID), ConfigIDSize)
	}
	if !ValidChannelCount(frame.Count) {
		return nil, fmt.Errorf("%w: %d", ErrChannelCount, frame.Count)
	}

	m := &Message{
		SequenceID:   seq,
		ColorSpace:   frame.Space,
		Channels:     frame.Channels,
		ChannelCount: frame.Count,
	}
	copy(m.ConfigID[:], configID)
	return m, nil
}

// header is the fixed part of a message in wire order.
type header struct {
	ProtocolName [len(ProtocolName)]byte
	Version      [2]byte
	SequenceID   uint8
	Reserved1    [2]byte
	ColorSpace   ColorSpace
	Reserved2    uint8
	ConfigID     [ConfigIDSize]byte
}

// WriteMessage writes the first channelCount channels of the message to w.
func WriteMessage(w io.Writer, m *Message, channelCount int) error {
	if !ValidChannelCount(channelCount) {
		return fmt.Errorf("%w: %d", ErrChannelCount, channelCount)
	}

	h := header{
		Version:    Version,
		SequenceID: m.SequenceID,
		ColorSpace: m.ColorSpace,
		ConfigID:   m.ConfigID,
	}
	copy(h.ProtocolName[:], ProtocolName)

	if err := binary.Write(w, Endianness, &h); err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}

	for i := 0; i < channelCount; i++ {
		if err := binary.Write(w, Endianness, &m.Channels[i]); err != nil {
			return fmt.Errorf("failed to write channel %d: %w", i, err)
		}
	}

	return nil
}

// Serialize returns the wire form of the first channelCount channels of the
// message. It returns no bytes on error.
func (m *Message) Serialize(channelCount int) ([]byte, error) {
	if !ValidChannelCount(channelCount) {
		return nil, fmt.Errorf("%w: %d", ErrChannelCount, channelCount)
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize + channelCount*ChannelSize)

	if err := WriteMessage(&buf, m, channelCount); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
