package s7

import "testing"

func TestParseTagScenarios(t *testing.T) {
	cases := []struct {
		name string
		tag  string
		want ReadItem
	}{
		{
			name: "DB bit address",
			tag:  "DB1.80000,x,1",
			want: ReadItem{Area: AreaDataBlock, DBNumber: 1, Offset: 640000, VarType: VarBit, NumberOfItems: 1},
		},
		{
			name: "flag word array, offset bit-suffix ignored",
			tag:  "M10.2,w,4",
			want: ReadItem{Area: AreaFlagByte, Offset: 10, VarType: VarWord, NumberOfItems: 4},
		},
		{
			name: "DB byte default type and count",
			tag:  "DB5.12",
			want: ReadItem{Area: AreaDataBlock, DBNumber: 5, Offset: 12, VarType: VarByte, NumberOfItems: 1},
		},
		{
			name: "input dword",
			tag:  "I0,dw,2",
			want: ReadItem{Area: AreaInputByte, Offset: 0, VarType: VarDWord, NumberOfItems: 2},
		},
		{
			name: "output real",
			tag:  "Q4,r,1",
			want: ReadItem{Area: AreaOutputByte, Offset: 4, VarType: VarFloat32, NumberOfItems: 1},
		},
		{
			name: "counter area",
			tag:  "C3",
			want: ReadItem{Area: AreaCounter, Offset: 3, VarType: VarByte, NumberOfItems: 1},
		},
		{
			name: "timer area",
			tag:  "T7",
			want: ReadItem{Area: AreaTimer, Offset: 7, VarType: VarByte, NumberOfItems: 1},
		},
		{
			name: "explicit bit index suffix wins over offset bit component",
			tag:  "M10.2,x5,1",
			want: ReadItem{Area: AreaFlagByte, Offset: 85, VarType: VarBit, NumberOfItems: 1},
		},
		{
			name: "bit suffix falls back to offset bit component when absent",
			tag:  "M10.2,x,1",
			want: ReadItem{Area: AreaFlagByte, Offset: 82, VarType: VarBit, NumberOfItems: 1},
		},
		{
			name: "string type",
			tag:  "DB2.0,s,20",
			want: ReadItem{Area: AreaDataBlock, DBNumber: 2, Offset: 0, VarType: VarString, NumberOfItems: 20},
		},
		{
			name: "int32 type",
			tag:  "DB2.4,di,1",
			want: ReadItem{Area: AreaDataBlock, DBNumber: 2, Offset: 4, VarType: VarInt32, NumberOfItems: 1},
		},
		{
			name: "lowercase input accepted",
			tag:  "db1.0,b,1",
			want: ReadItem{Area: AreaDataBlock, DBNumber: 1, Offset: 0, VarType: VarByte, NumberOfItems: 1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTag(tc.tag)
			if err != nil {
				t.Fatalf("ParseTag(%q) returned error: %v", tc.tag, err)
			}
			if got != tc.want {
				t.Fatalf("ParseTag(%q) = %+v, want %+v", tc.tag, got, tc.want)
			}
		})
	}
}

func TestParseTagErrors(t *testing.T) {
	cases := []struct {
		name      string
		tag       string
		wantState parseState
	}{
		{"empty tag", "", stateArea},
		{"unknown area letter", "X1.0,b,1", stateArea},
		{"DB without number", "DB.0,b,1", stateArea},
		{"DB without dot before offset", "DB10,b,1", stateArea},
		{"missing offset digits", "M,b,1", stateOffset},
		{"unknown type token", "M10,q,1", stateType},
		{"zero count", "M10,b,0", stateNumberOfItems},
		{"negative count", "M10,b,-1", stateNumberOfItems},
		{"trailing garbage", "M10,b,1,extra", stateTypeValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTag(tc.tag)
			if err == nil {
				t.Fatalf("ParseTag(%q) succeeded, want error", tc.tag)
			}
			tpe, ok := err.(*TagParseError)
			if !ok {
				t.Fatalf("ParseTag(%q) error type = %T, want *TagParseError", tc.tag, err)
			}
			if tpe.State != tc.wantState {
				t.Fatalf("ParseTag(%q) failed in state %s, want %s", tc.tag, tpe.State, tc.wantState)
			}
		})
	}
}

func TestParseTagRoundTrip(t *testing.T) {
	items := []ReadItem{
		{Area: AreaDataBlock, DBNumber: 1, Offset: 640000, VarType: VarBit, NumberOfItems: 1},
		{Area: AreaFlagByte, Offset: 10, VarType: VarWord, NumberOfItems: 4},
		{Area: AreaInputByte, Offset: 0, VarType: VarDWord, NumberOfItems: 2},
		{Area: AreaOutputByte, Offset: 4, VarType: VarFloat32, NumberOfItems: 1},
		{Area: AreaCounter, Offset: 3, VarType: VarByte, NumberOfItems: 1},
		{Area: AreaTimer, Offset: 7, VarType: VarByte, NumberOfItems: 1},
		{Area: AreaDataBlock, DBNumber: 2, Offset: 0, VarType: VarString, NumberOfItems: 20},
		{Area: AreaDataBlock, DBNumber: 2, Offset: 4, VarType: VarInt32, NumberOfItems: 1},
		{Area: AreaFlagByte, Offset: 82, VarType: VarBit, NumberOfItems: 1},
	}

	for _, it := range items {
		tag := it.Format()
		got, err := ParseTag(tag)
		if err != nil {
			t.Fatalf("round trip: ParseTag(Format(%+v)=%q) returned error: %v", it, tag, err)
		}
		if got != it {
			t.Fatalf("round trip: Format(%+v) = %q, ParseTag of which = %+v", it, tag, got)
		}
	}
}

func TestParseWriteTag(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	wi, err := ParseWriteTag("DB3.0,dw,1", data)
	if err != nil {
		t.Fatalf("ParseWriteTag returned error: %v", err)
	}
	want := WriteItem{Area: AreaDataBlock, DBNumber: 3, Offset: 0, VarType: VarDWord, NumberOfItems: 1, Data: data}
	if wi.Area != want.Area || wi.DBNumber != want.DBNumber || wi.Offset != want.Offset ||
		wi.VarType != want.VarType || wi.NumberOfItems != want.NumberOfItems || len(wi.Data) != len(want.Data) {
		t.Fatalf("ParseWriteTag = %+v, want %+v", wi, want)
	}
}

func TestParseWriteTagPropagatesParseError(t *testing.T) {
	_, err := ParseWriteTag("ZZ1.0,b,1", nil)
	if err == nil {
		t.Fatalf("ParseWriteTag with invalid tag succeeded, want error")
	}
}
