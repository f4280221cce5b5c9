package s7

// ReadItem is one logical value to read from the PLC: an area/offset/type
// triple plus how many elements to read.
//
// Invariants: NumberOfItems >= 1; when VarType is VarString, the wire
// length is NumberOfItems+2 (2-byte string header + payload); when
// VarType is VarBit, Offset is a bit offset (byte_offset*8 + bit_index),
// not a byte offset.
type ReadItem struct {
	Area          Area
	DBNumber      uint16
	Offset        int
	VarType       VarType
	NumberOfItems int
}

// SizeBytes returns the wire payload size in bytes this item occupies.
func (it ReadItem) SizeBytes() int {
	n := it.NumberOfItems
	if n < 1 {
		n = 1
	}
	switch it.VarType {
	case VarBit:
		return 1
	case VarString:
		return n + 2
	default:
		size := it.VarType.ElementSize()
		if size == 0 {
			size = 1
		}
		return n * size
	}
}

// WriteItem is a ReadItem plus the payload to write.
type WriteItem struct {
	Area          Area
	DBNumber      uint16
	Offset        int
	VarType       VarType
	NumberOfItems int
	Data          []byte
}

func (it WriteItem) read() ReadItem {
	return ReadItem{
		Area:          it.Area,
		DBNumber:      it.DBNumber,
		Offset:        it.Offset,
		VarType:       it.VarType,
		NumberOfItems: it.NumberOfItems,
	}
}

// SizeBytes returns the wire payload size in bytes, mirroring ReadItem.
func (it WriteItem) SizeBytes() int {
	return it.read().SizeBytes()
}

// ReadPart is a possibly-partial slice of a logical ReadItem, produced by
// the packing planner when an item is too large for one package. The set
// of parts for a single logical item has contiguous offsets covering
// [0, total_bytes) with no overlap.
type ReadPart struct {
	Item               ReadItem
	ParentIndex        int // index of the logical item this part belongs to
	OffsetWithinParent int // byte offset into the parent's backing buffer
	LengthBytes        int
	IsPart             bool
}

// WritePart mirrors ReadPart for the write path.
type WritePart struct {
	Item               WriteItem
	ParentIndex        int
	OffsetWithinParent int
	LengthBytes        int
	IsPart             bool
}
