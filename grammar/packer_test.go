package grammar

import (
	"testing"
)

func TestAppendSection(t *testing.T) {
	data := []uint16{dataEnd}

	data, off1 := appendSection(data, []uint16{1, 2, 3, dataEnd})
	if off1 != 1 {
		t.Fatalf("want offset 1, got %v", off1)
	}

	// An identical section reuses the existing bytes.
	data, off2 := appendSection(data, []uint16{1, 2, 3, dataEnd})
	if off2 != off1 {
		t.Fatalf("identical sections must share an offset: %v vs %v", off1, off2)
	}
	if len(data) != 5 {
		t.Fatalf("no data may be appended for a duplicate, len=%v", len(data))
	}

	// A sub-array of existing data is found too.
	data, off3 := appendSection(data, []uint16{2, 3})
	if off3 != 2 {
		t.Fatalf("want the embedded occurrence at 2, got %v", off3)
	}

	data, off4 := appendSection(data, []uint16{9, 9})
	if off4 != 5 || len(data) != 7 {
		t.Fatalf("new content must append at the end")
	}
}

func TestEncodeReduce(t *testing.T) {
	terms := newTermTable()
	A := terms.makeNonTerminal("A", "")
	R := terms.makeNonTerminal("R", "")
	R.Flags |= TermRepeated

	v := encodeReduce(A, 3, false)
	if v&actionReduceFlag == 0 {
		t.Fatalf("missing reduce flag")
	}
	if v&0xffff != uint32(A.ID) {
		t.Fatalf("lhs id must sit in the low half")
	}
	if v>>actionReduceDepthShift != 3 {
		t.Fatalf("depth must sit above the flags")
	}
	if v&actionRepeatFlag != 0 {
		t.Fatalf("a plain term must not carry the repeat flag")
	}

	v = encodeReduce(R, 2, true)
	if v&actionRepeatFlag == 0 || v&actionStayFlag == 0 {
		t.Fatalf("repeat and stay flags must be encoded")
	}
}

func TestPackTables_StateRecords(t *testing.T) {
	cg := compileSource(t, arithSrc)
	tables := cg.Tables

	if len(tables.States)%stateRecSize != 0 {
		t.Fatalf("the state table must hold fixed-size records")
	}
	stateCount := len(tables.States) / stateRecSize
	if stateCount != cg.StateCount() {
		t.Fatalf("want %v records, got %v", cg.StateCount(), stateCount)
	}

	sawDefault := false
	sawForced := false
	for s := 0; s < stateCount; s++ {
		rec := tables.States[s*stateRecSize : (s+1)*stateRecSize]

		actionOff := int(rec[1])
		if actionOff >= len(tables.Data) {
			t.Fatalf("state %v: action offset out of range", s)
		}
		// Walk the action list to its terminator.
		for off := actionOff; ; off += 3 {
			if tables.Data[off] == dataEnd {
				break
			}
			if off+2 >= len(tables.Data) {
				t.Fatalf("state %v: unterminated action list", s)
			}
		}

		if rec[5] != 0 || rec[6] != 0 {
			sawDefault = true
		}
		if rec[7] != 0 || rec[8] != 0 {
			sawForced = true
		}

		if rec[4] == 0 {
			t.Fatalf("state %v: empty tokenizer mask", s)
		}
	}
	if !sawDefault {
		t.Fatalf("some state must carry a default reduce")
	}
	if !sawForced {
		t.Fatalf("some state must carry a forced reduce")
	}
}

func TestPackTables_Goto(t *testing.T) {
	cg := compileSource(t, arithSrc)
	tables := cg.Tables

	termCount := len(cg.Terms)
	if len(tables.Goto) < termCount {
		t.Fatalf("the goto table must start with a header per term")
	}

	stateCount := len(tables.States) / stateRecSize
	sawRecord := false
	for id := 0; id < termCount; id++ {
		off := tables.Goto[id]
		if off == noOffset {
			continue
		}
		if cg.Terms[id].IsTerminal() {
			t.Fatalf("terminal %v has a goto record", cg.Terms[id])
		}
		// Walk the records of this term.
		pos := int(off)
		for {
			header := tables.Goto[pos]
			count := int(header >> 1)
			if count == 0 {
				t.Fatalf("empty goto record for %v", cg.Terms[id])
			}
			target := int(tables.Goto[pos+1])
			if target >= stateCount {
				t.Fatalf("goto target %v out of range", target)
			}
			for i := 0; i < count; i++ {
				if int(tables.Goto[pos+2+i]) >= stateCount {
					t.Fatalf("goto source out of range")
				}
			}
			sawRecord = true
			if header&1 == 1 {
				break
			}
			pos += 2 + count
		}
	}
	if !sawRecord {
		t.Fatalf("the arithmetic grammar must produce goto records")
	}
}

func TestPackTables_TokenData(t *testing.T) {
	cg := compileSource(t, arithSrc)
	tables := cg.Tables

	if len(tables.GroupOffsets) == 0 {
		t.Fatalf("at least one token group must be packed")
	}
	for _, off := range tables.GroupOffsets {
		n := int(tables.TokenData[off])
		if n == 0 {
			t.Fatalf("a group automaton cannot be empty")
		}
		// Every state offset must stay within the array.
		for i := 0; i < n; i++ {
			so := int(tables.TokenData[off+1+i])
			if off+so >= len(tables.TokenData) {
				t.Fatalf("token state offset out of range")
			}
		}
	}
}
