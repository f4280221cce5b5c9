package s7

import "testing"

func TestPlanReadsSmallItemsOnePackage(t *testing.T) {
	// Three 20-byte items, pdu_size=240: budget per package is
	// 240-12=228 bytes of address blocks (12 bytes each) -- all three fit
	// in one package regardless of their 20-byte payload, since read
	// packaging budgets only count the address block.
	session := NewSessionContext(5000, 240, 8, 8)
	items := []ReadItem{
		{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarByte, NumberOfItems: 20},
		{Area: AreaDataBlock, DBNumber: 1, Offset: 20, VarType: VarByte, NumberOfItems: 20},
		{Area: AreaDataBlock, DBNumber: 1, Offset: 40, VarType: VarByte, NumberOfItems: 20},
	}
	packages, err := PlanReads(items, session)
	if err != nil {
		t.Fatalf("PlanReads error: %v", err)
	}
	if len(packages) != 1 {
		t.Fatalf("got %d packages, want 1", len(packages))
	}
	if len(packages[0].Parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(packages[0].Parts))
	}
}

func TestPlanReadsSplitsLargeItem(t *testing.T) {
	// One 900-byte item, pdu_size=480 -> ReadItemMaxLength = 480-18 = 462.
	session := NewSessionContext(5000, 480, 8, 8)
	items := []ReadItem{
		{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarByte, NumberOfItems: 900},
	}
	packages, err := PlanReads(items, session)
	if err != nil {
		t.Fatalf("PlanReads error: %v", err)
	}

	var allParts []ReadPart
	for _, pkg := range packages {
		allParts = append(allParts, pkg.Parts...)
	}
	if len(allParts) != 2 {
		t.Fatalf("got %d parts, want 2", len(allParts))
	}
	if allParts[0].LengthBytes != 462 || allParts[1].LengthBytes != 438 {
		t.Fatalf("part lengths = %d, %d, want 462, 438", allParts[0].LengthBytes, allParts[1].LengthBytes)
	}
	if allParts[0].OffsetWithinParent != 0 || allParts[1].OffsetWithinParent != 462 {
		t.Fatalf("part offsets = %d, %d, want 0, 462", allParts[0].OffsetWithinParent, allParts[1].OffsetWithinParent)
	}
}

func TestPlanReadsRejectsOversizedMinimalItem(t *testing.T) {
	// A single item's address block (12 bytes) plus fixed overhead (12)
	// is 24 bytes: force a failure with a pdu_size too small to hold it.
	tinySession := SessionContext{PDUSize: 20, ReadItemMaxLength: 2}
	_, err := PlanReads([]ReadItem{{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarByte, NumberOfItems: 1}}, tinySession)
	if err == nil {
		t.Fatalf("PlanReads succeeded with an impossibly small pdu_size, want error")
	}
	if _, ok := err.(*CouldNotAddPackageError); !ok {
		t.Fatalf("error type = %T, want *CouldNotAddPackageError", err)
	}
}

func TestPlanReadsReassemble(t *testing.T) {
	session := NewSessionContext(5000, 480, 8, 8)
	items := []ReadItem{
		{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarByte, NumberOfItems: 900},
	}
	packages, err := PlanReads(items, session)
	if err != nil {
		t.Fatalf("PlanReads error: %v", err)
	}
	var parts []ReadPart
	for _, pkg := range packages {
		parts = append(parts, pkg.Parts...)
	}

	results := make([]readResult, len(parts))
	for i, p := range parts {
		data := make([]byte, p.LengthBytes)
		for j := range data {
			data[j] = byte(p.OffsetWithinParent + j)
		}
		results[i] = readResult{Data: data}
	}

	buffers, errs := ReassembleReads(parts, results, []int{900})
	if errs[0] != nil {
		t.Fatalf("reassemble error: %v", errs[0])
	}
	if len(buffers[0]) != 900 {
		t.Fatalf("buffer length = %d, want 900", len(buffers[0]))
	}
	for i, b := range buffers[0] {
		if b != byte(i) {
			t.Fatalf("buffer[%d] = %d, want %d", i, b, byte(i))
		}
	}
}

func TestPlanWritesSplitsLargeItem(t *testing.T) {
	session := NewSessionContext(5000, 480, 8, 8)
	data := make([]byte, 900)
	items := []WriteItem{
		{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarByte, NumberOfItems: 900, Data: data},
	}
	packages, err := PlanWrites(items, session)
	if err != nil {
		t.Fatalf("PlanWrites error: %v", err)
	}
	var allParts []WritePart
	for _, pkg := range packages {
		allParts = append(allParts, pkg.Parts...)
	}
	if len(allParts) != 2 {
		t.Fatalf("got %d parts, want 2", len(allParts))
	}
	total := 0
	for _, p := range allParts {
		total += p.LengthBytes
	}
	if total != 900 {
		t.Fatalf("total part length = %d, want 900", total)
	}
}
