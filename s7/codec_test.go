package s7

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestCommSetupRoundTrip(t *testing.T) {
	req := encodeCommSetupRequest(5, 8, 8, 480)
	h, headerLen, err := decodeHeader(req)
	if err != nil {
		t.Fatalf("decodeHeader error: %v", err)
	}
	if h.PduType != pduTypeJob {
		t.Fatalf("PduType = 0x%02X, want Job", h.PduType)
	}
	if h.PduReference != 5 {
		t.Fatalf("PduReference = %d, want 5", h.PduReference)
	}
	if headerLen != 10 {
		t.Fatalf("headerLen = %d, want 10", headerLen)
	}

	// Synthesize an AckData response the way a PLC would.
	ackParams := []byte{funcCommSetup, 0x00, 0x00, 0x04, 0x00, 0x04, 0x01, 0xE0}
	ack := []byte{protocolID, pduTypeAckData, 0x00, 0x00, 0x00, 0x05,
		byte(len(ackParams) >> 8), byte(len(ackParams)),
		0x00, 0x00, 0x00, 0x00}
	ack = append(ack, ackParams...)

	setup, err := decodeCommSetupAck(ack)
	if err != nil {
		t.Fatalf("decodeCommSetupAck error: %v", err)
	}
	if setup.MaxAmQCalling != 4 || setup.MaxAmQCalled != 4 || setup.PDUSize != 480 {
		t.Fatalf("decodeCommSetupAck = %+v, want {4 4 480}", setup)
	}
}

func TestDecodeCommSetupAckProtocolError(t *testing.T) {
	ack := []byte{protocolID, pduTypeAckData, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02}
	_, err := decodeCommSetupAck(ack)
	pe, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("error type = %T, want *ProtocolError", err)
	}
	if pe.Class != 0x01 || pe.Code != 0x02 {
		t.Fatalf("ProtocolError = %+v, want {1 2}", pe)
	}
}

func TestEncodeAddressItemByte(t *testing.T) {
	item := ReadItem{Area: AreaDataBlock, DBNumber: 1, Offset: 10, VarType: VarWord, NumberOfItems: 2}
	got := encodeAddressItem(item)
	want := []byte{s7AnySpecType, s7AnyItemLenField, s7AnySyntaxID, transportSizeWord, 0x00, 0x02, 0x00, 0x01, areaCodeDB, 0x00, 0x00, 0x50}
	if !bytes.Equal(got, want) {
		t.Fatalf("encodeAddressItem = %x, want %x", got, want)
	}
}

func TestEncodeAddressItemBit(t *testing.T) {
	item := ReadItem{Area: AreaFlagByte, Offset: 82, VarType: VarBit, NumberOfItems: 1}
	got := encodeAddressItem(item)
	if got[3] != transportSizeBit {
		t.Fatalf("transport size = 0x%02X, want bit", got[3])
	}
	bitAddr := uint32(got[9])<<16 | uint32(got[10])<<8 | uint32(got[11])
	if bitAddr != 82 {
		t.Fatalf("bit address = %d, want 82", bitAddr)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	items := []ReadItem{
		{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarWord, NumberOfItems: 1},
	}
	req := encodeReadRequest(7, items)
	h, _, err := decodeHeader(req)
	if err != nil {
		t.Fatalf("decodeHeader error: %v", err)
	}
	if h.PduReference != 7 {
		t.Fatalf("PduReference = %d, want 7", h.PduReference)
	}

	// Synthesize a Read AckData for one Word item, value 0x1234.
	dataSection := []byte{dataItemReturnCodeOK, transportSizeWord, 0x00, 16, 0x12, 0x34}
	ack := []byte{protocolID, pduTypeAckData, 0x00, 0x00, 0x00, 0x07,
		0x00, 0x02, byte(len(dataSection) >> 8), byte(len(dataSection)),
		0x00, 0x00,
		funcRead, 0x01}
	ack = append(ack, dataSection...)

	results, err := decodeReadResponse(ack, 1)
	if err != nil {
		t.Fatalf("decodeReadResponse error: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("results = %+v", results)
	}
	if !bytes.Equal(results[0].Data, []byte{0x12, 0x34}) {
		t.Fatalf("data = %x, want 1234", results[0].Data)
	}
}

func TestDecodeReadResponsePerItemError(t *testing.T) {
	dataSection := []byte{0x05} // non-OK return code, S7 item is 1 byte
	ack := []byte{protocolID, pduTypeAckData, 0x00, 0x00, 0x00, 0x07,
		0x00, 0x02, byte(len(dataSection) >> 8), byte(len(dataSection)),
		0x00, 0x00,
		funcRead, 0x01}
	ack = append(ack, dataSection...)

	results, err := decodeReadResponse(ack, 1)
	if err != nil {
		t.Fatalf("decodeReadResponse error: %v", err)
	}
	pce, ok := results[0].Err.(*ProtocolContentError)
	if !ok {
		t.Fatalf("error type = %T, want *ProtocolContentError", results[0].Err)
	}
	if pce.ReturnCode != 0x05 {
		t.Fatalf("ReturnCode = 0x%02X, want 0x05", pce.ReturnCode)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	items := []WriteItem{
		{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarWord, NumberOfItems: 1, Data: []byte{0xAB, 0xCD}},
	}
	req := encodeWriteRequest(9, items)
	h, headerLen, err := decodeHeader(req)
	if err != nil {
		t.Fatalf("decodeHeader error: %v", err)
	}
	dataStart := headerLen + int(h.ParamLength)
	if req[dataStart+1] != transportSizeWord {
		t.Fatalf("transport size in data section = 0x%02X, want word", req[dataStart+1])
	}
	bitLen := binary.BigEndian.Uint16(req[dataStart+2 : dataStart+4])
	if bitLen != 16 {
		t.Fatalf("bit length = %d, want 16", bitLen)
	}

	ack := []byte{protocolID, pduTypeAckData, 0x00, 0x00, 0x00, 0x09,
		0x00, 0x02, 0x00, 0x01,
		0x00, 0x00,
		funcWrite, 0x01,
		dataItemReturnCodeOK}

	results, err := decodeWriteResponse(ack, 1)
	if err != nil {
		t.Fatalf("decodeWriteResponse error: %v", err)
	}
	if results[0] != nil {
		t.Fatalf("results[0] = %v, want nil", results[0])
	}
}

func TestDecodeWriteResponseProtocolContentError(t *testing.T) {
	ack := []byte{protocolID, pduTypeAckData, 0x00, 0x00, 0x00, 0x09,
		0x00, 0x02, 0x00, 0x01,
		0x00, 0x00,
		funcWrite, 0x01,
		0x0A}

	results, err := decodeWriteResponse(ack, 1)
	if err != nil {
		t.Fatalf("decodeWriteResponse error: %v", err)
	}
	pce, ok := results[0].(*ProtocolContentError)
	if !ok {
		t.Fatalf("error type = %T, want *ProtocolContentError", results[0])
	}
	if pce.ReturnCode != 0x0A {
		t.Fatalf("ReturnCode = 0x%02X, want 0x0A", pce.ReturnCode)
	}
}
