// Package rcon implements the Source-style RCON binary protocol used by
// Ark: Survival Ascended servers, along with a connection manager that
// caches authenticated sessions per server.
package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Packet type constants. AUTH_RESPONSE and EXEC_COMMAND share the value 2;
// direction disambiguates them.
const (
	TypeResponseValue int32 = 0
	TypeAuthResponse  int32 = 2
	TypeExecCommand   int32 = 2
	TypeAuth          int32 = 3
)

// Wire framing:
//
//	[size:int32 LE][request_id:int32 LE][type:int32 LE][body...][0x00 0x00]
//
// size counts everything after itself: 4 (id) + 4 (type) + len(body) + 2.
const (
	headerSize    = 10 // id + type + two trailing nulls
	maxPacketSize = 4096
)

// Packet is a single decoded RCON frame.
type Packet struct {
	RequestID int32
	Type      int32
	Body      string
}

// Encode serializes the packet into wire format.
func (p Packet) Encode() []byte {
	body := []byte(p.Body)
	size := int32(headerSize + len(body))

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, size)
	binary.Write(&buf, binary.LittleEndian, p.RequestID)
	binary.Write(&buf, binary.LittleEndian, p.Type)
	buf.Write(body)
	buf.WriteByte(0)
	buf.WriteByte(0)
	return buf.Bytes()
}

// WritePacket encodes and writes one packet to w.
func WritePacket(w io.Writer, p Packet) error {
	if _, err := w.Write(p.Encode()); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// ReadPacket reads a single packet from r. It blocks until a complete
// frame is available or the reader fails.
func ReadPacket(r io.Reader) (Packet, error) {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return Packet{}, fmt.Errorf("failed to read packet size: %w", err)
	}
	if size < headerSize || size > maxPacketSize {
		return Packet{}, fmt.Errorf("invalid packet size %d", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Packet{}, fmt.Errorf("failed to read packet payload: %w", err)
	}

	p := Packet{
		RequestID: int32(binary.LittleEndian.Uint32(payload[0:4])),
		Type:      int32(binary.LittleEndian.Uint32(payload[4:8])),
	}

	body := payload[8:]
	// Strip the two trailing null terminators.
	if len(body) >= 2 && body[len(body)-1] == 0 && body[len(body)-2] == 0 {
		body = body[:len(body)-2]
	}
	p.Body = string(body)

	return p, nil
}
