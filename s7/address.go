package s7

import (
	"fmt"
	"strconv"
	"strings"
)

// parseState names a state of the tag-grammar state machine: Area ->
// Offset -> Type -> NumberOfItems -> TypeValidation -> Success. A parse
// failure reports the state it failed in plus the offending substring.
type parseState string

const (
	stateArea           parseState = "Area"
	stateOffset         parseState = "Offset"
	stateType           parseState = "Type"
	stateNumberOfItems  parseState = "NumberOfItems"
	stateTypeValidation parseState = "TypeValidation"
	stateSuccess        parseState = "Success"
)

// TagParseError reports where in the grammar a tag string failed to parse.
type TagParseError struct {
	State    parseState
	Fragment string
	FullTag  string
}

func (e *TagParseError) Error() string {
	return fmt.Sprintf("tag parse failed in state %s at %q (tag: %q)", e.State, e.Fragment, e.FullTag)
}

// ParseTag parses a compact S7 tag address into a ReadItem, following the
// grammar:
//
//	tag   := area offset ("," type ("," count)?)?
//	area  := "I" | "E" | "M" | "Q" | "A" | "T" | "C" | "Z" | "DB" digit+ "."
//	offset:= digit+ ("." digit+)?
//	type  := "b" | "c" | "w" | "dw" | "i" | "di" | "r" | "s" | "x" digit*
//	count := digit+
//
// A DB area is separated from the offset by "."; a single-letter area is
// followed directly by the offset digits. The offset/type and type/count
// separators are ",". A trailing ".digit+" on the offset is a byte.bit
// form that only takes effect when type resolves to Bit (the x-suffix
// rule takes precedence); otherwise it is parsed but ignored (e.g. "M10.2"
// with no area/offset dot is still a valid byte offset, not a bit form).
func ParseTag(tag string) (ReadItem, error) {
	full := tag
	s := strings.ToUpper(strings.TrimSpace(tag))
	if s == "" {
		return ReadItem{}, &TagParseError{State: stateArea, Fragment: "", FullTag: full}
	}

	area, dbNumber, rest, err := parseAreaToken(s, full)
	if err != nil {
		return ReadItem{}, err
	}

	// DB areas spell their number inline ("DB1") and always need the "."
	// delimiter before the offset digits start; single-letter areas
	// ("M10.2") butt the offset directly against the area letter, with
	// any "." belonging to the offset's own byte.bit form instead.
	if area == AreaDataBlock {
		if !strings.HasPrefix(rest, ".") {
			return ReadItem{}, &TagParseError{State: stateArea, Fragment: rest, FullTag: full}
		}
		rest = rest[1:]
	}

	byteOffset, bitComponent, hasBitComponent, rest, err := parseOffsetToken(rest, full)
	if err != nil {
		return ReadItem{}, err
	}

	varType := VarByte
	suffixBit := 0
	hasSuffixBit := false
	if strings.HasPrefix(rest, ",") {
		rest = rest[1:]
		varType, suffixBit, hasSuffixBit, rest, err = parseTypeToken(rest, full)
		if err != nil {
			return ReadItem{}, err
		}
	}

	count := 1
	if strings.HasPrefix(rest, ",") {
		rest = rest[1:]
		count, rest, err = parseCountToken(rest, full)
		if err != nil {
			return ReadItem{}, err
		}
	}

	if rest != "" {
		return ReadItem{}, &TagParseError{State: stateTypeValidation, Fragment: rest, FullTag: full}
	}

	offset := byteOffset
	if varType == VarBit {
		bit := 0
		switch {
		case hasSuffixBit:
			bit = suffixBit
		case hasBitComponent:
			bit = bitComponent
		}
		offset = byteOffset*8 + bit
	}

	if count < 1 {
		return ReadItem{}, &TagParseError{State: stateNumberOfItems, Fragment: strconv.Itoa(count), FullTag: full}
	}

	return ReadItem{
		Area:          area,
		DBNumber:      dbNumber,
		Offset:        offset,
		VarType:       varType,
		NumberOfItems: count,
	}, nil
}

// ParseWriteTag is ParseTag plus the payload to write.
func ParseWriteTag(tag string, data []byte) (WriteItem, error) {
	item, err := ParseTag(tag)
	if err != nil {
		return WriteItem{}, err
	}
	return WriteItem{
		Area:          item.Area,
		DBNumber:      item.DBNumber,
		Offset:        item.Offset,
		VarType:       item.VarType,
		NumberOfItems: item.NumberOfItems,
		Data:          data,
	}, nil
}

func parseAreaToken(s, full string) (area Area, dbNumber uint16, rest string, err error) {
	switch {
	case strings.HasPrefix(s, "DB"):
		digits, tail := takeDigits(s[2:])
		if digits == "" {
			return 0, 0, "", &TagParseError{State: stateArea, Fragment: s, FullTag: full}
		}
		n, convErr := strconv.Atoi(digits)
		if convErr != nil {
			return 0, 0, "", &TagParseError{State: stateArea, Fragment: digits, FullTag: full}
		}
		return AreaDataBlock, uint16(n), tail, nil
	case strings.HasPrefix(s, "I"), strings.HasPrefix(s, "E"):
		return AreaInputByte, 0, s[1:], nil
	case strings.HasPrefix(s, "Q"), strings.HasPrefix(s, "A"):
		return AreaOutputByte, 0, s[1:], nil
	case strings.HasPrefix(s, "M"):
		return AreaFlagByte, 0, s[1:], nil
	case strings.HasPrefix(s, "T"):
		return AreaTimer, 0, s[1:], nil
	case strings.HasPrefix(s, "C"), strings.HasPrefix(s, "Z"):
		return AreaCounter, 0, s[1:], nil
	default:
		return 0, 0, "", &TagParseError{State: stateArea, Fragment: s, FullTag: full}
	}
}

func parseOffsetToken(s, full string) (byteOffset, bitComponent int, hasBitComponent bool, rest string, err error) {
	digits, tail := takeDigits(s)
	if digits == "" {
		return 0, 0, false, "", &TagParseError{State: stateOffset, Fragment: s, FullTag: full}
	}
	byteOffset, convErr := strconv.Atoi(digits)
	if convErr != nil {
		return 0, 0, false, "", &TagParseError{State: stateOffset, Fragment: digits, FullTag: full}
	}

	if strings.HasPrefix(tail, ".") {
		bitDigits, bitTail := takeDigits(tail[1:])
		if bitDigits != "" {
			bit, bitErr := strconv.Atoi(bitDigits)
			if bitErr == nil {
				return byteOffset, bit, true, bitTail, nil
			}
		}
	}

	return byteOffset, 0, false, tail, nil
}

func parseTypeToken(s, full string) (vt VarType, suffixBit int, hasSuffixBit bool, rest string, err error) {
	switch {
	case strings.HasPrefix(s, "DW"):
		return VarDWord, 0, false, s[2:], nil
	case strings.HasPrefix(s, "DI"):
		return VarInt32, 0, false, s[2:], nil
	case strings.HasPrefix(s, "B"):
		return VarByte, 0, false, s[1:], nil
	case strings.HasPrefix(s, "C"):
		return VarChar, 0, false, s[1:], nil
	case strings.HasPrefix(s, "W"):
		return VarWord, 0, false, s[1:], nil
	case strings.HasPrefix(s, "I"):
		return VarInt16, 0, false, s[1:], nil
	case strings.HasPrefix(s, "R"):
		return VarFloat32, 0, false, s[1:], nil
	case strings.HasPrefix(s, "S"):
		return VarString, 0, false, s[1:], nil
	case strings.HasPrefix(s, "X"):
		digits, tail := takeDigits(s[1:])
		if digits == "" {
			// Bare "x" with no bit digit: VarBit is resolved, but there is
			// no explicit suffix bit, so the offset's own byte.bit
			// component (if any) decides the bit index.
			return VarBit, 0, false, tail, nil
		}
		bit, convErr := strconv.Atoi(digits)
		if convErr != nil {
			return 0, 0, false, "", &TagParseError{State: stateType, Fragment: digits, FullTag: full}
		}
		return VarBit, bit, true, tail, nil
	default:
		return 0, 0, false, "", &TagParseError{State: stateType, Fragment: s, FullTag: full}
	}
}

func parseCountToken(s, full string) (count int, rest string, err error) {
	digits, tail := takeDigits(s)
	if digits == "" {
		return 0, "", &TagParseError{State: stateNumberOfItems, Fragment: s, FullTag: full}
	}
	n, convErr := strconv.Atoi(digits)
	if convErr != nil {
		return 0, "", &TagParseError{State: stateNumberOfItems, Fragment: digits, FullTag: full}
	}
	return n, tail, nil
}

func takeDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// Format renders a ReadItem back into tag-grammar text, the inverse of
// ParseTag, for round-trip tests. DB areas get the "." delimiter before the
// offset digits; single-letter areas butt the offset directly against the
// area letter, matching the asymmetry ParseTag accepts ("M10.2" has no
// area/offset dot).
func (it ReadItem) Format() string {
	var area string
	switch it.Area {
	case AreaDataBlock:
		area = fmt.Sprintf("DB%d.", it.DBNumber)
	case AreaInputByte:
		area = "I"
	case AreaOutputByte:
		area = "Q"
	case AreaFlagByte:
		area = "M"
	case AreaTimer:
		area = "T"
	case AreaCounter:
		area = "C"
	}

	if it.VarType == VarBit {
		byteOffset := it.Offset / 8
		bit := it.Offset % 8
		return fmt.Sprintf("%s%d,x%d,%d", area, byteOffset, bit, it.NumberOfItems)
	}

	var typeTok string
	switch it.VarType {
	case VarByte:
		typeTok = "b"
	case VarChar:
		typeTok = "c"
	case VarWord:
		typeTok = "w"
	case VarDWord:
		typeTok = "dw"
	case VarInt16:
		typeTok = "i"
	case VarInt32:
		typeTok = "di"
	case VarFloat32:
		typeTok = "r"
	case VarString:
		typeTok = "s"
	}

	return fmt.Sprintf("%s%d,%s,%d", area, it.Offset, typeTok, it.NumberOfItems)
}
