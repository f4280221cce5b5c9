package s7

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TagValue is the result of one logical Read call: the raw wire bytes plus
// the type information needed to convert them to a Go value. BitOffset is
// the bit position within Bytes[0] for VarBit results and is -1 otherwise.
type TagValue struct {
	Tag       string
	VarType   VarType
	Bytes     []byte
	BitOffset int
	Count     int
	Err       error
}

// Bool returns the value as a boolean; works for VarBit (against BitOffset)
// and any byte-sized type (zero/non-zero).
func (v *TagValue) Bool() (bool, error) {
	if v.Err != nil {
		return false, v.Err
	}
	if len(v.Bytes) < 1 {
		return false, fmt.Errorf("s7: insufficient data for Bool")
	}
	if v.BitOffset >= 0 && v.BitOffset <= 7 {
		return v.Bytes[0]&(1<<uint(v.BitOffset)) != 0, nil
	}
	return v.Bytes[0] != 0, nil
}

// Int returns the value as a signed 64-bit integer; works for VarChar,
// VarInt16 and VarInt32.
func (v *TagValue) Int() (int64, error) {
	if v.Err != nil {
		return 0, v.Err
	}
	switch v.VarType {
	case VarChar:
		if len(v.Bytes) < 1 {
			return 0, fmt.Errorf("s7: insufficient data for Char")
		}
		return int64(int8(v.Bytes[0])), nil
	case VarInt16:
		if len(v.Bytes) < 2 {
			return 0, fmt.Errorf("s7: insufficient data for Int16")
		}
		return int64(int16(binary.BigEndian.Uint16(v.Bytes))), nil
	case VarInt32:
		if len(v.Bytes) < 4 {
			return 0, fmt.Errorf("s7: insufficient data for Int32")
		}
		return int64(int32(binary.BigEndian.Uint32(v.Bytes))), nil
	default:
		return 0, fmt.Errorf("s7: Int() not valid for %s", v.VarType)
	}
}

// Uint returns the value as an unsigned 64-bit integer; works for VarByte,
// VarWord and VarDWord.
func (v *TagValue) Uint() (uint64, error) {
	if v.Err != nil {
		return 0, v.Err
	}
	switch v.VarType {
	case VarByte:
		if len(v.Bytes) < 1 {
			return 0, fmt.Errorf("s7: insufficient data for Byte")
		}
		return uint64(v.Bytes[0]), nil
	case VarWord:
		if len(v.Bytes) < 2 {
			return 0, fmt.Errorf("s7: insufficient data for Word")
		}
		return uint64(binary.BigEndian.Uint16(v.Bytes)), nil
	case VarDWord:
		if len(v.Bytes) < 4 {
			return 0, fmt.Errorf("s7: insufficient data for DWord")
		}
		return uint64(binary.BigEndian.Uint32(v.Bytes)), nil
	default:
		return 0, fmt.Errorf("s7: Uint() not valid for %s", v.VarType)
	}
}

// Float returns the value as a float64; works for VarFloat32.
func (v *TagValue) Float() (float64, error) {
	if v.Err != nil {
		return 0, v.Err
	}
	if v.VarType != VarFloat32 {
		return 0, fmt.Errorf("s7: Float() not valid for %s", v.VarType)
	}
	if len(v.Bytes) < 4 {
		return 0, fmt.Errorf("s7: insufficient data for Float32")
	}
	return float64(math.Float32frombits(binary.BigEndian.Uint32(v.Bytes))), nil
}

// String decodes a VarString payload: a 2-byte max/actual-length header
// followed by ASCII characters.
func (v *TagValue) String() (string, error) {
	if v.Err != nil {
		return "", v.Err
	}
	if v.VarType != VarString {
		return "", fmt.Errorf("s7: String() not valid for %s", v.VarType)
	}
	if len(v.Bytes) < 2 {
		return "", fmt.Errorf("s7: insufficient data for String")
	}
	actualLen := int(v.Bytes[1])
	if actualLen > len(v.Bytes)-2 {
		actualLen = len(v.Bytes) - 2
	}
	return string(v.Bytes[2 : 2+actualLen]), nil
}

// GoValue converts the tag to the Go type idiomatic for its wire type
// (bool/int64/uint64/float64, or their slice forms, string for VarString),
// returning a slice when Count > 1 and nil on error.
func (v *TagValue) GoValue() interface{} {
	if v.Err != nil {
		return nil
	}
	if v.VarType == VarString {
		s, err := v.String()
		if err != nil {
			return nil
		}
		return s
	}

	elemSize := v.VarType.ElementSize()
	if v.VarType == VarBit || elemSize == 0 {
		elemSize = 1
	}
	count := v.Count
	if count < 1 {
		count = 1
	}
	if count == 1 {
		return v.scalarGoValue()
	}
	return v.arrayGoValue(count, elemSize)
}

func (v *TagValue) scalarGoValue() interface{} {
	switch v.VarType {
	case VarBit:
		b, _ := v.Bool()
		return b
	case VarByte, VarWord, VarDWord:
		u, _ := v.Uint()
		return u
	case VarChar, VarInt16, VarInt32:
		i, _ := v.Int()
		return i
	case VarFloat32:
		f, _ := v.Float()
		return f
	default:
		return nil
	}
}

func (v *TagValue) arrayGoValue(count, elemSize int) interface{} {
	elem := func(i int) []byte {
		start := i * elemSize
		end := start + elemSize
		if end > len(v.Bytes) {
			end = len(v.Bytes)
		}
		if start > len(v.Bytes) {
			start = len(v.Bytes)
		}
		return v.Bytes[start:end]
	}

	switch v.VarType {
	case VarBit:
		out := make([]bool, min(count, len(v.Bytes)))
		for i := range out {
			out[i] = v.Bytes[i] != 0
		}
		return out
	case VarByte:
		out := make([]uint64, count)
		for i := range out {
			b := elem(i)
			if len(b) > 0 {
				out[i] = uint64(b[0])
			}
		}
		return out
	case VarChar:
		out := make([]int64, count)
		for i := range out {
			b := elem(i)
			if len(b) > 0 {
				out[i] = int64(int8(b[0]))
			}
		}
		return out
	case VarWord:
		out := make([]uint64, count)
		for i := range out {
			b := elem(i)
			if len(b) == 2 {
				out[i] = uint64(binary.BigEndian.Uint16(b))
			}
		}
		return out
	case VarInt16:
		out := make([]int64, count)
		for i := range out {
			b := elem(i)
			if len(b) == 2 {
				out[i] = int64(int16(binary.BigEndian.Uint16(b)))
			}
		}
		return out
	case VarDWord:
		out := make([]uint64, count)
		for i := range out {
			b := elem(i)
			if len(b) == 4 {
				out[i] = uint64(binary.BigEndian.Uint32(b))
			}
		}
		return out
	case VarInt32:
		out := make([]int64, count)
		for i := range out {
			b := elem(i)
			if len(b) == 4 {
				out[i] = int64(int32(binary.BigEndian.Uint32(b)))
			}
		}
		return out
	case VarFloat32:
		out := make([]float64, count)
		for i := range out {
			b := elem(i)
			if len(b) == 4 {
				out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
			}
		}
		return out
	default:
		return nil
	}
}
