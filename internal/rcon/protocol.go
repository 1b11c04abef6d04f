package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types per the Source RCON wire protocol (§4.3).
const (
	TypeLogin       int32 = 3
	TypeCommand     int32 = 2
	TypeResponse    int32 = 0
	typeAuthRespAlt int32 = 2 // servers sometimes echo type 2 for SERVERDATA_AUTH_RESPONSE
)

// authFailedID is the request id a server sends back when a LOGIN packet
// carries the wrong password.
const authFailedID int32 = -1

// maxPacketSize bounds a single incoming packet so a misbehaving or
// compromised server can't force an unbounded allocation.
const maxPacketSize = 1 << 20

// packet is {length:int32, request_id:int32, type:int32, payload:bytes, 0x00 0x00}.
// length counts everything after itself: request_id + type + payload + 2.
type packet struct {
	requestID int32
	pktType   int32
	payload   string
}

func writePacket(w io.Writer, p packet) error {
	body := []byte(p.payload)
	length := 4 + 4 + len(body) + 2

	buf := new(bytes.Buffer)
	buf.Grow(4 + length)
	if err := binary.Write(buf, binary.LittleEndian, int32(length)); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, p.requestID); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, p.pktType); err != nil {
		return err
	}
	buf.Write(body)
	buf.Write([]byte{0x00, 0x00})

	_, err := w.Write(buf.Bytes())
	return err
}

func readPacket(r io.Reader) (packet, error) {
	var length int32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return packet{}, fmt.Errorf("read length prefix: %w", err)
	}
	if length < 10 || int(length) > maxPacketSize {
		return packet{}, fmt.Errorf("implausible packet length %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, fmt.Errorf("read packet body: %w", err)
	}

	requestID := int32(binary.LittleEndian.Uint32(body[0:4]))
	pktType := int32(binary.LittleEndian.Uint32(body[4:8]))
	payload := body[8 : len(body)-2]

	return packet{requestID: requestID, pktType: pktType, payload: string(payload)}, nil
}
