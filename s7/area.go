package s7

import "fmt"

// Area identifies an S7 memory class (DB, I, Q, M, T, C). Areas carry a
// one-byte wire code (wireCode) distinct from the textual grammar
// recognized by ParseTag.
type Area int

const (
	AreaInputByte Area = iota
	AreaFlagByte
	AreaOutputByte
	AreaTimer
	AreaCounter
	AreaDataBlock
)

// String renders the area the way it appears in trace logs; it is not the
// tag grammar token (see ParseTag for that).
func (a Area) String() string {
	switch a {
	case AreaInputByte:
		return "InputByte"
	case AreaFlagByte:
		return "FlagByte"
	case AreaOutputByte:
		return "OutputByte"
	case AreaTimer:
		return "Timer"
	case AreaCounter:
		return "Counter"
	case AreaDataBlock:
		return "DataBlock"
	default:
		return fmt.Sprintf("Area(%d)", int(a))
	}
}

// S7ANY area wire codes.
const (
	areaCodeSysInfo = 0x03
	areaCodeSysFlg  = 0x05
	areaCodeAnaIn   = 0x06
	areaCodeAnaOut  = 0x07
	areaCodeCounter = 0x1C
	areaCodeTimer   = 0x1D
	areaCodeInput   = 0x81
	areaCodeOutput  = 0x82
	areaCodeFlag    = 0x83
	areaCodeDB      = 0x84
)

// wireCode returns the one-byte S7ANY area code for the area.
func (a Area) wireCode() byte {
	switch a {
	case AreaInputByte:
		return areaCodeInput
	case AreaOutputByte:
		return areaCodeOutput
	case AreaFlagByte:
		return areaCodeFlag
	case AreaTimer:
		return areaCodeTimer
	case AreaCounter:
		return areaCodeCounter
	case AreaDataBlock:
		return areaCodeDB
	default:
		return areaCodeDB
	}
}
