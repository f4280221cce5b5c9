package s7

import (
	"encoding/binary"
	"fmt"
)

// S7 PDU constants. protocolID is normative; PduType and function codes
// select which datagram follows the 10/12-byte header.
const (
	protocolID = 0x32

	pduTypeJob     = 0x01
	pduTypeAck     = 0x02
	pduTypeAckData = 0x03
	pduTypeUserData = 0x07

	funcCommSetup = 0xF0
	funcRead      = 0x04
	funcWrite     = 0x05

	dataItemReturnCodeOK = 0xFF

	// s7AnyItemLenField is the value of an S7ANY address item's own length
	// byte: the byte count of everything after the spec/len pair itself
	// (syntax id, transport size, count, DB number, area, address).
	s7AnyItemLenField = 0x0A
	s7AnySpecType     = 0x12
	s7AnySyntaxID     = 0x10
)

// header is the fixed portion of an S7 PDU. Job/UserData
// requests carry a 10-byte header; Ack/AckData responses add 2 bytes of
// error class/code.
type header struct {
	PduType      byte
	PduReference uint16
	ParamLength  uint16
	DataLength   uint16
	ErrorClass   byte
	ErrorCode    byte
}

func encodeHeaderJob(pduRef uint16, paramLen, dataLen int) []byte {
	return []byte{
		protocolID, pduTypeJob,
		0x00, 0x00, // redundancy id
		byte(pduRef >> 8), byte(pduRef),
		byte(paramLen >> 8), byte(paramLen),
		byte(dataLen >> 8), byte(dataLen),
	}
}

func decodeHeader(data []byte) (header, int, error) {
	if len(data) < 10 {
		return header{}, 0, fmt.Errorf("s7: PDU header too short (%d bytes)", len(data))
	}
	if data[0] != protocolID {
		return header{}, 0, fmt.Errorf("s7: invalid protocol id 0x%02X", data[0])
	}
	h := header{
		PduType:      data[1],
		PduReference: binary.BigEndian.Uint16(data[4:6]),
		ParamLength:  binary.BigEndian.Uint16(data[6:8]),
		DataLength:   binary.BigEndian.Uint16(data[8:10]),
	}

	headerLen := 10
	switch h.PduType {
	case pduTypeAck, pduTypeAckData:
		if len(data) < 12 {
			return header{}, 0, fmt.Errorf("s7: ack header too short (%d bytes)", len(data))
		}
		h.ErrorClass = data[10]
		h.ErrorCode = data[11]
		headerLen = 12
	case pduTypeJob, pduTypeUserData:
		// 10-byte header, no error fields.
	default:
		return header{}, 0, fmt.Errorf("s7: unknown PDU type 0x%02X", h.PduType)
	}

	return h, headerLen, nil
}

// encodeCommSetupRequest builds the Setup Communication Job PDU negotiating
// the caller's desired PDU size and parallel-job credits.
func encodeCommSetupRequest(pduRef uint16, maxAmQCalling, maxAmQCalled, pduSize uint16) []byte {
	params := []byte{
		funcCommSetup,
		0x00, // reserved
		byte(maxAmQCalling >> 8), byte(maxAmQCalling),
		byte(maxAmQCalled >> 8), byte(maxAmQCalled),
		byte(pduSize >> 8), byte(pduSize),
	}
	out := encodeHeaderJob(pduRef, len(params), 0)
	return append(out, params...)
}

// commSetupAck is the peer's negotiated CommSetup response.
type commSetupAck struct {
	MaxAmQCalling uint16
	MaxAmQCalled  uint16
	PDUSize       uint16
}

func decodeCommSetupAck(data []byte) (commSetupAck, error) {
	h, headerLen, err := decodeHeader(data)
	if err != nil {
		return commSetupAck{}, err
	}
	if h.PduType != pduTypeAckData {
		return commSetupAck{}, fmt.Errorf("s7: CommSetup response PduType=0x%02X, want AckData", h.PduType)
	}
	if h.ErrorClass != 0 || h.ErrorCode != 0 {
		return commSetupAck{}, &ProtocolError{Class: h.ErrorClass, Code: h.ErrorCode}
	}
	params := data[headerLen:]
	if len(params) < 8 {
		return commSetupAck{}, fmt.Errorf("s7: CommSetup params too short (%d bytes)", len(params))
	}
	if params[0] != funcCommSetup {
		return commSetupAck{}, fmt.Errorf("s7: CommSetup response function=0x%02X, want 0x%02X", params[0], funcCommSetup)
	}
	return commSetupAck{
		MaxAmQCalling: binary.BigEndian.Uint16(params[2:4]),
		MaxAmQCalled:  binary.BigEndian.Uint16(params[4:6]),
		PDUSize:       binary.BigEndian.Uint16(params[6:8]),
	}, nil
}

// commSetupJob is a peer-initiated CommSetup negotiation: the PLC, rather
// than this client, opens the exchange.
type commSetupJob struct {
	MaxAmQCalling uint16
	MaxAmQCalled  uint16
	PDUSize       uint16
}

// decodeCommSetupJob decodes a Job PDU whose function code is CommSetup.
// Callers must already know data's PduType is pduTypeJob and its function
// byte is funcCommSetup; this only parses the negotiated parameters.
func decodeCommSetupJob(data []byte) (commSetupJob, error) {
	h, headerLen, err := decodeHeader(data)
	if err != nil {
		return commSetupJob{}, err
	}
	if h.PduType != pduTypeJob {
		return commSetupJob{}, fmt.Errorf("s7: CommSetup job PduType=0x%02X, want Job", h.PduType)
	}
	params := data[headerLen:]
	if len(params) < 8 || params[0] != funcCommSetup {
		return commSetupJob{}, fmt.Errorf("s7: not a CommSetup job")
	}
	return commSetupJob{
		MaxAmQCalling: binary.BigEndian.Uint16(params[2:4]),
		MaxAmQCalled:  binary.BigEndian.Uint16(params[4:6]),
		PDUSize:       binary.BigEndian.Uint16(params[6:8]),
	}, nil
}

// encodeCommSetupAckReply builds the AckData this side sends in response to
// a peer-initiated CommSetup job, granting maxAmQCalled credits at pduSize.
func encodeCommSetupAckReply(pduRef uint16, maxAmQCalling, maxAmQCalled, pduSize uint16) []byte {
	params := []byte{
		funcCommSetup,
		0x00,
		byte(maxAmQCalling >> 8), byte(maxAmQCalling),
		byte(maxAmQCalled >> 8), byte(maxAmQCalled),
		byte(pduSize >> 8), byte(pduSize),
	}
	out := []byte{
		protocolID, pduTypeAckData,
		0x00, 0x00,
		byte(pduRef >> 8), byte(pduRef),
		byte(len(params) >> 8), byte(len(params)),
		0x00, 0x00,
		0x00, 0x00, // error class/code
	}
	return append(out, params...)
}

// encodeAddressItem encodes one S7ANY read/write address item. For Bit
// access, Offset is already the bit offset; Count is element count (bits
// for Bit, elements otherwise).
func encodeAddressItem(item ReadItem) []byte {
	out := make([]byte, 0, 12)
	out = append(out, s7AnySpecType, s7AnyItemLenField, s7AnySyntaxID)
	out = append(out, item.VarType.transportSize(item.Area))

	count := item.NumberOfItems
	if item.VarType == VarString {
		count += 2
	}
	out = append(out, byte(count>>8), byte(count))

	out = append(out, byte(item.DBNumber>>8), byte(item.DBNumber))
	out = append(out, item.Area.wireCode())

	var bitAddr uint32
	if item.VarType == VarBit {
		bitAddr = uint32(item.Offset)
	} else {
		bitAddr = uint32(item.Offset) * 8
	}
	out = append(out, byte(bitAddr>>16), byte(bitAddr>>8), byte(bitAddr))

	return out
}

// encodeReadRequest builds a Read Job PDU for the given items, already
// known to fit within one package by the planner.
func encodeReadRequest(pduRef uint16, items []ReadItem) []byte {
	params := []byte{funcRead, byte(len(items))}
	for _, it := range items {
		params = append(params, encodeAddressItem(it)...)
	}
	out := encodeHeaderJob(pduRef, len(params), 0)
	return append(out, params...)
}

// readResult is one item's decoded read outcome.
type readResult struct {
	Data []byte
	Err  error
}

// decodeReadResponse decodes a Read Job Ack into per-item results, in
// request order.
func decodeReadResponse(data []byte, itemCount int) ([]readResult, error) {
	h, headerLen, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.ErrorClass != 0 || h.ErrorCode != 0 {
		return nil, &ProtocolError{Class: h.ErrorClass, Code: h.ErrorCode}
	}
	if h.PduType != pduTypeAckData {
		return nil, fmt.Errorf("s7: Read response PduType=0x%02X, want AckData", h.PduType)
	}

	dataStart := headerLen + int(h.ParamLength)
	if dataStart > len(data) {
		return nil, fmt.Errorf("s7: Read response truncated before data section")
	}
	buf := data[dataStart:]

	results := make([]readResult, itemCount)
	pos := 0
	for i := 0; i < itemCount; i++ {
		if pos >= len(buf) {
			for j := i; j < itemCount; j++ {
				results[j] = readResult{Err: &ProtocolContentError{ReturnCode: 0, ItemIndex: j}}
			}
			break
		}
		returnCode := buf[pos]
		if returnCode != dataItemReturnCodeOK {
			results[i] = readResult{Err: &ProtocolContentError{ReturnCode: returnCode, ItemIndex: i}}
			pos++
			continue
		}
		if pos+4 > len(buf) {
			for j := i; j < itemCount; j++ {
				results[j] = readResult{Err: &ProtocolContentError{ReturnCode: returnCode, ItemIndex: j}}
			}
			break
		}
		transportSize := buf[pos+1]
		length := int(binary.BigEndian.Uint16(buf[pos+2 : pos+4]))

		// The response's length field is in bits for every transport size
		// except the octet-string code (0x09), which PLCs use for
		// byte/char arrays and reports length directly in bytes.
		var byteLen int
		if transportSize == 0x09 {
			byteLen = length
		} else {
			byteLen = (length + 7) / 8
		}
		pos += 4

		if pos+byteLen > len(buf) {
			for j := i; j < itemCount; j++ {
				results[j] = readResult{Err: &ProtocolContentError{ReturnCode: returnCode, ItemIndex: j}}
			}
			break
		}
		out := make([]byte, byteLen)
		copy(out, buf[pos:pos+byteLen])
		results[i] = readResult{Data: out}
		pos += byteLen

		if i < itemCount-1 && byteLen%2 == 1 {
			pos++ // items are padded to an even byte count, except the last
		}
	}

	return results, nil
}

// encodeWriteRequest builds a Write Job PDU carrying every item the
// planner placed in one package. Each item's payload is padded to an even
// byte count, except the last item in the PDU.
func encodeWriteRequest(pduRef uint16, items []WriteItem) []byte {
	params := []byte{funcWrite, byte(len(items))}
	var dataSection []byte
	for i, item := range items {
		params = append(params, encodeAddressItem(item.read())...)

		bitLen := len(item.Data) * 8
		if item.VarType == VarBit {
			bitLen = 1
		}
		dataSection = append(dataSection,
			0x00, // return code placeholder, ignored on encode
			item.VarType.transportSize(item.Area),
			byte(bitLen>>8), byte(bitLen))
		dataSection = append(dataSection, item.Data...)
		if i < len(items)-1 && len(item.Data)%2 == 1 {
			dataSection = append(dataSection, 0x00)
		}
	}

	out := encodeHeaderJob(pduRef, len(params), len(dataSection))
	out = append(out, params...)
	out = append(out, dataSection...)
	return out
}

// decodeWriteResponse decodes a Write Job Ack into one return code per
// item, in request order.
func decodeWriteResponse(data []byte, itemCount int) ([]error, error) {
	h, headerLen, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.ErrorClass != 0 || h.ErrorCode != 0 {
		return nil, &ProtocolError{Class: h.ErrorClass, Code: h.ErrorCode}
	}
	if h.PduType != pduTypeAckData {
		return nil, fmt.Errorf("s7: Write response PduType=0x%02X, want AckData", h.PduType)
	}

	dataStart := headerLen + int(h.ParamLength)
	if dataStart > len(data) {
		return nil, fmt.Errorf("s7: Write response truncated before data section")
	}
	buf := data[dataStart:]

	results := make([]error, itemCount)
	for i := 0; i < itemCount; i++ {
		if i >= len(buf) {
			for j := i; j < itemCount; j++ {
				results[j] = &ProtocolContentError{ReturnCode: 0, ItemIndex: j}
			}
			break
		}
		returnCode := buf[i]
		if returnCode != dataItemReturnCodeOK {
			results[i] = &ProtocolContentError{ReturnCode: returnCode, ItemIndex: i}
		}
	}
	return results, nil
}
