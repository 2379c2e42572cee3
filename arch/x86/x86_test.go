package x86_test

import (
	"testing"

	"github.com/opcodeflow/recore/arch/x86"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/rvalue"
)

func decodeOne(t *testing.T, code []byte, addr bin.Addr) (mne struct {
	Opcode string
	Len    int
}, jumps int) {
	t.Helper()
	region := bin.NewRegion("text", 0, code)
	d := x86.NewDecoder(x86.Mode32)
	result, err := d.Decode(region, addr)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(result.Mnemonics) != 1 {
		t.Fatalf("Decode produced %d mnemonics, want 1", len(result.Mnemonics))
	}
	m := result.Mnemonics[0]
	mne.Opcode = m.Opcode
	mne.Len = int(m.Area.End - m.Area.Start)
	return mne, len(result.Jumps)
}

func TestDecodeNOP(t *testing.T) {
	mne, jumps := decodeOne(t, []byte{0x90}, 0)
	if mne.Opcode != "NOP" {
		t.Errorf("Opcode = %q, want NOP", mne.Opcode)
	}
	if mne.Len != 1 {
		t.Errorf("Len = %d, want 1", mne.Len)
	}
	if jumps != 1 {
		t.Fatalf("len(Jumps) = %d, want 1 (fallthrough)", jumps)
	}
}

func TestDecodeRET(t *testing.T) {
	mne, jumps := decodeOne(t, []byte{0xC3}, 0)
	if mne.Opcode != "RET" {
		t.Errorf("Opcode = %q, want RET", mne.Opcode)
	}
	if jumps != 1 {
		t.Fatalf("len(Jumps) = %d, want 1 (undefined target)", jumps)
	}
}

func TestDecodeUnconditionalJump(t *testing.T) {
	// EB 05: jmp rel8 +5
	mne, jumps := decodeOne(t, []byte{0xEB, 0x05}, 0)
	if mne.Opcode != "JMP" {
		t.Errorf("Opcode = %q, want JMP", mne.Opcode)
	}
	if mne.Len != 2 {
		t.Errorf("Len = %d, want 2", mne.Len)
	}
	if jumps != 1 {
		t.Fatalf("len(Jumps) = %d, want 1", jumps)
	}
}

func TestDecodeUnconditionalJumpOperandIsAbsolute(t *testing.T) {
	// EB 05: jmp rel8 +5, decoded at address 0x10; the operand must carry
	// the resolved absolute destination (0x10 + 2 + 5 = 0x17), not the raw
	// relative displacement 5, matching the target used for the Jump's
	// CFG edge.
	region := bin.NewRegion("text", 0x10, []byte{0xEB, 0x05})
	d := x86.NewDecoder(x86.Mode32)
	result, err := d.Decode(region, 0x10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	operands := result.Mnemonics[0].Operands
	if len(operands) != 1 {
		t.Fatalf("len(Operands) = %d, want 1", len(operands))
	}
	want, err := rvalue.ValConstant(0x17, 32)
	if err != nil {
		t.Fatalf("ValConstant: %v", err)
	}
	if !operands[0].Equal(want) {
		t.Errorf("Operands[0] = %v, want %v", operands[0], want)
	}
}

func TestDecodeConditionalJump(t *testing.T) {
	// 74 02: je rel8 +2
	mne, jumps := decodeOne(t, []byte{0x74, 0x02}, 0)
	if mne.Opcode != "JE" {
		t.Errorf("Opcode = %q, want JE", mne.Opcode)
	}
	if jumps != 2 {
		t.Fatalf("len(Jumps) = %d, want 2 (taken + not-taken)", jumps)
	}
}

func TestDecodeMovImmediate(t *testing.T) {
	// B8 01 00 00 00: mov eax, 1
	mne, jumps := decodeOne(t, []byte{0xB8, 0x01, 0x00, 0x00, 0x00}, 0)
	if mne.Opcode != "MOV" {
		t.Errorf("Opcode = %q, want MOV", mne.Opcode)
	}
	if mne.Len != 5 {
		t.Errorf("Len = %d, want 5", mne.Len)
	}
	if jumps != 1 {
		t.Fatalf("len(Jumps) = %d, want 1 (fallthrough)", jumps)
	}
}
