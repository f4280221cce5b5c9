package s7

import (
	"encoding/binary"
	"fmt"
)

// TPKT (RFC 1006) and COTP (ISO 8073) framing. S7 runs as a COTP data PDU
// carried inside a TPKT packet over TCP port 102.
const (
	tpktVersion    = 0x03
	tpktHeaderSize = 4

	// minTPKTFrameSize is the smallest total_length a conforming frame can
	// carry: a 4-byte TPKT header plus the 3-byte COTP data header.
	// Anything shorter is rejected before it ever reaches the COTP decoder.
	minTPKTFrameSize = 7

	cotpPDUTypeCR = 0xE0 // Connection Request
	cotpPDUTypeCC = 0xD0 // Connection Confirm
	cotpPDUTypeDT = 0xF0 // Data Transfer

	cotpParamTPDUSize = 0xC0
	cotpParamSrcTSAP  = 0xC1
	cotpParamDstTSAP  = 0xC2

	cotpDataHeaderLen = 3 // {0x02, 0xF0, 0x80}, fixed for a class-0 data PDU
)

var cotpDataHeader = [cotpDataHeaderLen]byte{0x02, cotpPDUTypeDT, 0x80}

// encodeTPKT wraps payload in a 4-byte TPKT header: version=0x03,
// reserved=0x00, total length (header+payload) as big-endian uint16.
func encodeTPKT(payload []byte) []byte {
	total := len(payload) + tpktHeaderSize
	out := make([]byte, 0, total)
	out = append(out, tpktVersion, 0x00, byte(total>>8), byte(total))
	out = append(out, payload...)
	return out
}

// encodeCOTPData wraps an S7 PDU in a COTP data-transfer header and then a
// TPKT header, ready to write to the transport.
func encodeCOTPData(s7PDU []byte) []byte {
	payload := make([]byte, 0, cotpDataHeaderLen+len(s7PDU))
	payload = append(payload, cotpDataHeader[:]...)
	payload = append(payload, s7PDU...)
	return encodeTPKT(payload)
}

// decodeCOTPData strips the COTP data header from one complete frame
// payload (TPKT header already removed by FrameDecoder) and returns the S7
// PDU.
func decodeCOTPData(framePayload []byte) ([]byte, error) {
	if len(framePayload) < cotpDataHeaderLen {
		return nil, fmt.Errorf("s7: COTP payload too short (%d bytes)", len(framePayload))
	}
	if framePayload[1] != cotpPDUTypeDT {
		return nil, fmt.Errorf("s7: expected COTP DT (0x%02X), got 0x%02X", cotpPDUTypeDT, framePayload[1])
	}
	return framePayload[cotpDataHeaderLen:], nil
}

// FrameDecoder accumulates bytes from a stream and extracts complete
// TPKT-framed payloads, regardless of how the input is chunked. Feeding the
// same byte stream split at any boundary across multiple Feed calls yields
// the same sequence of frames as feeding it whole, regardless of chunking.
type FrameDecoder struct {
	buf []byte
}

// Feed appends chunk to the internal buffer and returns every complete
// frame payload (TPKT header stripped) that can now be extracted. Any
// trailing partial frame remains buffered for the next call.
func (d *FrameDecoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	for {
		if len(d.buf) < tpktHeaderSize {
			break
		}
		if d.buf[0] != tpktVersion {
			return frames, fmt.Errorf("s7: invalid TPKT version 0x%02X", d.buf[0])
		}
		total := int(binary.BigEndian.Uint16(d.buf[2:4]))
		if total < minTPKTFrameSize {
			return frames, fmt.Errorf("s7: invalid TPKT length %d", total)
		}
		if len(d.buf) < total {
			break
		}

		payload := make([]byte, total-tpktHeaderSize)
		copy(payload, d.buf[tpktHeaderSize:total])
		frames = append(frames, payload)

		d.buf = d.buf[total:]
	}

	return frames, nil
}

// buildCOTPConnectionRequest builds a COTP CR PDU requesting the given
// local/remote TSAPs, wrapped in a TPKT frame.
func buildCOTPConnectionRequest(srcTSAP, dstTSAP [2]byte, tpduSizeCode byte) []byte {
	cr := []byte{
		0x00,       // length, filled below
		cotpPDUTypeCR,
		0x00, 0x00, // destination reference
		0x00, 0x01, // source reference
		0x00, // class 0, no options
	}
	cr = append(cr, cotpParamSrcTSAP, 2, srcTSAP[0], srcTSAP[1])
	cr = append(cr, cotpParamDstTSAP, 2, dstTSAP[0], dstTSAP[1])
	cr = append(cr, cotpParamTPDUSize, 1, tpduSizeCode)
	cr[0] = byte(len(cr) - 1)
	return encodeTPKT(cr)
}

// parseCOTPConnectionConfirm validates a COTP CC payload (TPKT header
// already stripped).
func parseCOTPConnectionConfirm(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("s7: COTP CC too short (%d bytes)", len(payload))
	}
	if payload[1] != cotpPDUTypeCC {
		return fmt.Errorf("s7: expected COTP CC (0x%02X), got 0x%02X", cotpPDUTypeCC, payload[1])
	}
	return nil
}

// remoteTSAP derives the destination TSAP from connection type, rack and
// slot, per the PG/OP/Basic TSAP encoding S7 PLCs expect.
func remoteTSAP(connType ConnectionType, rack, slot int) [2]byte {
	return [2]byte{byte(connType), byte(rack<<5 | slot)}
}

// ConnectionType selects the remote TSAP's role octet.
type ConnectionType byte

const (
	ConnectionTypePG    ConnectionType = 0x01
	ConnectionTypeOP    ConnectionType = 0x02
	ConnectionTypeBasic ConnectionType = 0x03
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionTypePG:
		return "Pg"
	case ConnectionTypeOP:
		return "Op"
	case ConnectionTypeBasic:
		return "Basic"
	default:
		return fmt.Sprintf("ConnectionType(0x%02X)", byte(c))
	}
}

// tpduSizeCode returns the COTP TPDU-size parameter code for a requested
// size, rounding down to the nearest supported power of two (COTP encodes
// size as 2^n, n in [7, 11]).
func tpduSizeCode(size int) byte {
	code := byte(7)
	for n := byte(8); n <= 11; n++ {
		if size < (1 << n) {
			break
		}
		code = n
	}
	return code
}
