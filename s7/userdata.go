package s7

import (
	"encoding/binary"
	"fmt"
	"time"
)

// User-data (function group 0x07) requests carry a parameter header
// distinct from Read/Write. Alarm requests are implemented here at the
// level needed to exercise the dispatcher once framing and dispatch are
// correct, not as a full SZL record catalogue; block upload is not
// implemented.
const (
	userDataParamHead = 0x00

	udFuncGroupCPU   = 0x04 // SZL read (block info, CPU identification)
	udFuncGroupAlarm = 0x05

	udSubfuncReadSZL = 0x01

	udFuncAlarmAck   = 0x0B
	udFuncAlarmQuery = 0x13
	udFuncClockRead  = 0x01
	udFuncGroupTime  = 0x04

	szlBlockInfoID = 0x0011
	szlCPUInfoID   = 0x001C
)

// PlcBlockInfo is the decoded result of a ReadBlockInfo call: size and
// checksum metadata for one program block, read via an SZL query.
type PlcBlockInfo struct {
	BlockType   byte
	BlockNumber uint16
	LoadSize    uint32
	CodeSize    uint32
	Checksum    uint16
}

// CPUInfo is the decoded result of ReadCPUInfo: the module identification
// SZL, read at the same UserData/SZL codec layer as ReadBlockInfo.
type CPUInfo struct {
	ModuleType string
	SerialNumber string
	ASName       string
}

// PendingAlarm is one entry in a paged pending-alarm response.
type PendingAlarm struct {
	EventID  uint32
	Raised   bool
	Acked    bool
}

// AlarmIndication is one unsolicited alarm event, fanned out to the
// subscribed callback.
type AlarmIndication struct {
	EventID uint32
	Raised  bool
}

// encodeReadSZLRequest builds a UserData Job PDU requesting one System
// Status List entry by id.
func encodeReadSZLRequest(pduRef uint16, szlID uint16, szlIndex uint16) []byte {
	params := []byte{
		0xFF, 0x09, // parameter head constant for this function group
		udFuncGroupCPU<<4 | 0x04, // type=request(4) | function group
		udSubfuncReadSZL,
		0x00, // sequence number placeholder
	}
	data := []byte{
		0xFF, 0x09, 0x00, 0x04, // return code + transport size + length(bytes)=4
		byte(szlID >> 8), byte(szlID),
		byte(szlIndex >> 8), byte(szlIndex),
	}
	out := encodeHeaderJob(pduRef, len(params), len(data))
	out = append(out, params...)
	out = append(out, data...)
	return out
}

// decodeBlockInfoPayload maps a raw SZL block-info payload onto
// PlcBlockInfo. Field offsets follow the SZL-0111 record layout; a payload
// shorter than expected yields zero-valued fields rather than an error,
// since block-info is advisory metadata, not a correctness-critical value.
func decodeBlockInfoPayload(blockNumber uint16, payload []byte) *PlcBlockInfo {
	info := &PlcBlockInfo{BlockNumber: blockNumber}
	if len(payload) < 1 {
		return info
	}
	info.BlockType = payload[0]
	if len(payload) >= 5 {
		info.LoadSize = binary.BigEndian.Uint32(payload[1:5])
	}
	if len(payload) >= 9 {
		info.CodeSize = binary.BigEndian.Uint32(payload[5:9])
	}
	if len(payload) >= 11 {
		info.Checksum = binary.BigEndian.Uint16(payload[9:11])
	}
	return info
}

// decodeCPUInfoPayload maps a raw SZL-001C (module identification) payload
// onto CPUInfo. Each field is a fixed-width, space-padded ASCII string in
// the real record; this decoder trims trailing NUL/space padding.
func decodeCPUInfoPayload(payload []byte) *CPUInfo {
	field := func(start, length int) string {
		if start >= len(payload) {
			return ""
		}
		end := start + length
		if end > len(payload) {
			end = len(payload)
		}
		b := payload[start:end]
		for len(b) > 0 && (b[len(b)-1] == 0x00 || b[len(b)-1] == ' ') {
			b = b[:len(b)-1]
		}
		return string(b)
	}
	return &CPUInfo{
		ModuleType:   field(0, 20),
		SerialNumber: field(20, 24),
		ASName:       field(44, 24),
	}
}

// encodeDisableAlarmUpdatesRequest builds the best-effort UserData Job PDU
// sent on close when an alarm subscription was active.
func encodeDisableAlarmUpdatesRequest(pduRef uint16) []byte {
	params := []byte{
		0xFF, 0x09,
		udFuncGroupAlarm<<4 | 0x04,
		udFuncAlarmAck,
		0x00,
	}
	out := encodeHeaderJob(pduRef, len(params), 0)
	return append(out, params...)
}

// encodeReadClockRequest builds a UserData Job PDU requesting the PLC's
// real-time clock.
func encodeReadClockRequest(pduRef uint16) []byte {
	params := []byte{
		0xFF, 0x09,
		udFuncGroupTime<<4 | 0x04,
		udFuncClockRead,
		0x00,
	}
	out := encodeHeaderJob(pduRef, len(params), 0)
	return append(out, params...)
}

// decodeReadClockResponse decodes the BCD-encoded clock payload into a
// time.Time. The PLC's real-time clock has no timezone information, so the
// result is UTC by convention.
func decodeReadClockResponse(data []byte) (time.Time, error) {
	payload, _, _, err := decodeReadSZLResponse(data)
	if err != nil {
		return time.Time{}, err
	}
	if len(payload) < 8 {
		return time.Time{}, fmt.Errorf("s7: clock payload too short (%d bytes)", len(payload))
	}
	bcd := func(b byte) int { return int(b>>4)*10 + int(b&0x0F) }
	year := bcd(payload[0])
	if year < 90 {
		year += 2000
	} else {
		year += 1900
	}
	month := bcd(payload[1])
	day := bcd(payload[2])
	hour := bcd(payload[3])
	minute := bcd(payload[4])
	second := bcd(payload[5])
	msec := bcd(payload[6])*10 + int(payload[7]>>4)
	return time.Date(year, time.Month(month), day, hour, minute, second, msec*1e6, time.UTC), nil
}

// decodeReadSZLResponse extracts the SZL payload bytes from a UserData
// AckData response, along with the paging fields (sequence number and
// last-data-unit flag) a real device uses for multi-page replies.
func decodeReadSZLResponse(data []byte) (payload []byte, sequenceNumber byte, lastDataUnit bool, err error) {
	h, headerLen, derr := decodeHeader(data)
	if derr != nil {
		return nil, 0, false, derr
	}
	if h.ErrorClass != 0 || h.ErrorCode != 0 {
		return nil, 0, false, &ProtocolError{Class: h.ErrorClass, Code: h.ErrorCode}
	}
	dataStart := headerLen + int(h.ParamLength)
	if dataStart+4 > len(data) {
		return nil, 0, false, &ProtocolContentError{ReturnCode: 0, ItemIndex: 0}
	}
	length := int(binary.BigEndian.Uint16(data[dataStart+2 : dataStart+4]))
	payloadStart := dataStart + 4
	if payloadStart+length > len(data) {
		length = len(data) - payloadStart
	}
	// lastDataUnit/sequenceNumber live in the parameter section's
	// function-group byte in a real device response; this minimal
	// decoder treats every reply as the final page.
	return data[payloadStart : payloadStart+length], 0, true, nil
}
