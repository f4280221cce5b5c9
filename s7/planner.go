package s7

// Per-package wire overhead. readPackageFixedOverhead and
// writePackageFixedOverhead cover the S7 header, function byte and
// item-count byte. readItemAddressBytes/writeItemAddressBytes are the
// S7ANY address block each item contributes to the request. Write items
// additionally carry a 4-byte data-item header plus their payload.
const (
	readPackageFixedOverhead  = 12
	readItemAddressBytes      = 12
	writePackageFixedOverhead = 12
	writeItemAddressBytes     = 12
	writeItemDataHeaderBytes  = 4
)

// ReadPackage is a set of read parts the planner placed together so the
// request encodes to at most one PDU.
type ReadPackage struct {
	Parts []ReadPart
	size  int
}

// WritePackage mirrors ReadPackage for the write path.
type WritePackage struct {
	Parts []WritePart
	size  int
}

// PlanReads packs logical read items into packages bounded by the
// session's negotiated PDU size: sort largest-first, split any item too
// large for a single item slot, then first-fit the resulting parts across
// open packages.
func PlanReads(items []ReadItem, session SessionContext) ([]ReadPackage, error) {
	order := sortIndicesByCountDesc(len(items), func(i int) int { return items[i].NumberOfItems })

	pduSize := int(session.PDUSize)
	var packages []ReadPackage
	for _, idx := range order {
		item := items[idx]
		parts := splitReadItem(item, idx, session.ReadItemMaxLength)
		for _, part := range parts {
			cost := readItemAddressBytes
			if readPackageFixedOverhead+cost > pduSize {
				return nil, &CouldNotAddPackageError{ItemSizeBytes: part.LengthBytes, MaxLength: pduSize - readPackageFixedOverhead}
			}

			pkgIdx := -1
			for i := range packages {
				if packages[i].size+cost <= pduSize {
					pkgIdx = i
					break
				}
			}
			if pkgIdx == -1 {
				packages = append(packages, ReadPackage{size: readPackageFixedOverhead})
				pkgIdx = len(packages) - 1
			}
			packages[pkgIdx].Parts = append(packages[pkgIdx].Parts, part)
			packages[pkgIdx].size += cost
		}
	}
	return packages, nil
}

// PlanWrites mirrors PlanReads for writes, using WriteItemMaxLength and
// counting each item's data-header plus payload towards the budget.
func PlanWrites(items []WriteItem, session SessionContext) ([]WritePackage, error) {
	order := sortIndicesByCountDesc(len(items), func(i int) int { return items[i].NumberOfItems })

	pduSize := int(session.PDUSize)
	var packages []WritePackage
	for _, idx := range order {
		item := items[idx]
		parts := splitWriteItem(item, idx, session.WriteItemMaxLength)
		for partPos, part := range parts {
			payloadLen := part.LengthBytes
			isLastPartOfItem := partPos == len(parts)-1
			if payloadLen%2 == 1 && !isLastPartOfItem {
				payloadLen++
			}
			cost := writeItemAddressBytes + writeItemDataHeaderBytes + payloadLen
			if writePackageFixedOverhead+cost > pduSize {
				return nil, &CouldNotAddPackageError{ItemSizeBytes: part.LengthBytes, MaxLength: pduSize - writePackageFixedOverhead}
			}

			pkgIdx := -1
			for i := range packages {
				if packages[i].size+cost <= pduSize {
					pkgIdx = i
					break
				}
			}
			if pkgIdx == -1 {
				packages = append(packages, WritePackage{size: writePackageFixedOverhead})
				pkgIdx = len(packages) - 1
			}
			packages[pkgIdx].Parts = append(packages[pkgIdx].Parts, part)
			packages[pkgIdx].size += cost
		}
	}
	return packages, nil
}

// splitReadItem breaks a logical read item into one or more parts, each no
// larger than maxLength bytes. An item within the limit yields a single
// non-part part referencing itself.
func splitReadItem(item ReadItem, parentIndex, maxLength int) []ReadPart {
	total := item.SizeBytes()
	if total <= maxLength {
		return []ReadPart{{
			Item:        item,
			ParentIndex: parentIndex,
			LengthBytes: total,
			IsPart:      false,
		}}
	}

	var parts []ReadPart
	offset := 0
	for offset < total {
		length := maxLength
		if total-offset < length {
			length = total - offset
		}
		child := childReadItem(item, offset, length)
		parts = append(parts, ReadPart{
			Item:               child,
			ParentIndex:        parentIndex,
			OffsetWithinParent: offset,
			LengthBytes:        length,
			IsPart:             true,
		})
		offset += length
	}
	return parts
}

// childReadItem builds the ReadItem for a byte-range slice of a larger
// item. Only byte-oriented types (not Bit) are ever split in practice,
// since a single bit never exceeds any reasonable PDU budget.
func childReadItem(parent ReadItem, byteOffset, length int) ReadItem {
	return ReadItem{
		Area:          parent.Area,
		DBNumber:      parent.DBNumber,
		Offset:        parent.Offset + byteOffset,
		VarType:       VarByte,
		NumberOfItems: length,
	}
}

func splitWriteItem(item WriteItem, parentIndex, maxLength int) []WritePart {
	total := item.SizeBytes()
	if total <= maxLength {
		return []WritePart{{
			Item:        item,
			ParentIndex: parentIndex,
			LengthBytes: total,
			IsPart:      false,
		}}
	}

	var parts []WritePart
	offset := 0
	for offset < total {
		length := maxLength
		if total-offset < length {
			length = total - offset
		}
		childRead := childReadItem(item.read(), offset, length)
		child := WriteItem{
			Area:          childRead.Area,
			DBNumber:      childRead.DBNumber,
			Offset:        childRead.Offset,
			VarType:       childRead.VarType,
			NumberOfItems: childRead.NumberOfItems,
			Data:          item.Data[offset : offset+length],
		}
		parts = append(parts, WritePart{
			Item:               child,
			ParentIndex:        parentIndex,
			OffsetWithinParent: offset,
			LengthBytes:        length,
			IsPart:             true,
		})
		offset += length
	}
	return parts
}

// sortIndicesByCountDesc returns [0, n) sorted by key(i) descending,
// stable on ties (insertion order preserved among equal keys).
func sortIndicesByCountDesc(n int, key func(i int) int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		j := i
		for j > 0 && key(idx[j-1]) < key(idx[j]) {
			idx[j-1], idx[j] = idx[j], idx[j-1]
			j--
		}
	}
	return idx
}

// ReassembleReads walks decoded per-part results in the same order the
// parts were sent and reconstructs each logical item's full byte buffer.
// logicalSizes gives each logical item's total byte length (for parent
// buffer allocation); the returned error slice holds the first per-part
// error observed per logical item. If any package failed entirely, the caller is
// responsible for discarding all results.
func ReassembleReads(parts []ReadPart, results []readResult, logicalSizes []int) ([][]byte, []error) {
	buffers := make([][]byte, len(logicalSizes))
	firstErr := make([]error, len(logicalSizes))

	for i, part := range parts {
		res := results[i]
		if res.Err != nil {
			if firstErr[part.ParentIndex] == nil {
				firstErr[part.ParentIndex] = res.Err
			}
			continue
		}
		if !part.IsPart {
			buffers[part.ParentIndex] = res.Data
			continue
		}
		if buffers[part.ParentIndex] == nil {
			buffers[part.ParentIndex] = make([]byte, logicalSizes[part.ParentIndex])
		}
		copy(buffers[part.ParentIndex][part.OffsetWithinParent:part.OffsetWithinParent+part.LengthBytes], res.Data)
	}

	return buffers, firstErr
}
