// Package bytecode defines the 32-bit instruction word, its four
// encodings (ABC, ABx, AsBx, sBx24), and the Agentus opcode set.
//
// The encoding scheme (bit positions, Create*/decoder-method shape,
// opNames-map-plus-String() debug printer) is grounded on the donor
// VM's internal/vmregister/bytecode.go. The opcode *content* is not:
// the donor is a ~90-opcode general-purpose scripting-language
// instruction set (JIT hints, OOP classes, fibers, try/catch, a dozen
// string/array builtins fused into opcodes); Agentus needs a much
// smaller, domain-specific ~50-opcode set built around agents,
// mailboxes, tool calls and LLM exec. One concrete encoding choice
// also deliberately departs from the donor: the donor's CreateAsBx
// biases sBx by a constant (excess-K encoding) before storing it in an
// unsigned Bx field; this spec is explicit that offsets are
// "sign-extended on decode", so AsBx/sBx24 here store a plain two's
// complement value instead of a biased one.
package bytecode

import "fmt"

// Instruction is one 32-bit bytecode word.
type Instruction uint32

const (
	posOp = 0
	posA  = 8
	posB  = 16
	posC  = 24

	maskByte = 0xFF
	maskBx   = 0xFFFF
	maskAx   = 0xFFFFFF
)

// CreateABC packs a three-register instruction.
func CreateABC(op OpCode, a, b, c uint8) Instruction {
	return Instruction(uint32(op)<<posOp | uint32(a)<<posA | uint32(b)<<posB | uint32(c)<<posC)
}

// CreateABx packs a register + 16-bit unsigned index instruction.
func CreateABx(op OpCode, a uint8, bx uint16) Instruction {
	return Instruction(uint32(op)<<posOp | uint32(a)<<posA | uint32(bx)<<posB)
}

// CreateAsBx packs a register + 16-bit signed offset instruction. The
// offset is stored as a plain two's complement value in the low 16
// bits of the B/C region, sign-extended back out on decode.
func CreateAsBx(op OpCode, a uint8, sbx int16) Instruction {
	return Instruction(uint32(op)<<posOp | uint32(a)<<posA | uint32(uint16(sbx))<<posB)
}

// CreateSBx24 packs an unconditional-jump instruction: op(8) + a
// 24-bit signed offset occupying the A/B/C region as one field.
func CreateSBx24(op OpCode, sbx int32) Instruction {
	return Instruction(uint32(op)<<posOp | (uint32(sbx)&maskAx)<<posA)
}

// ExtraData packs a non-opcode "extra data" word following a Call,
// TCall or IterNext instruction. The opcode field is ignored by the
// dispatcher for these words; it is still filled in as Nop so that a
// raw disassembly never shows an invalid opcode byte.
func ExtraData(b, c uint8) Instruction {
	return CreateABC(OpNop, 0, b, c)
}

// ExtraDataBx packs an extra-data word whose payload is a single
// 16-bit index (used for the method-Call group's method-name word).
func ExtraDataBx(bx uint16) Instruction {
	return CreateABx(OpNop, 0, bx)
}

func (i Instruction) OpCode() OpCode { return OpCode((uint32(i) >> posOp) & maskByte) }
func (i Instruction) A() uint8       { return uint8((uint32(i) >> posA) & maskByte) }
func (i Instruction) B() uint8       { return uint8((uint32(i) >> posB) & maskByte) }
func (i Instruction) C() uint8       { return uint8((uint32(i) >> posC) & maskByte) }
func (i Instruction) Bx() uint16     { return uint16((uint32(i) >> posB) & maskBx) }

// SBx decodes the AsBx 16-bit signed offset field.
func (i Instruction) SBx() int16 { return int16(i.Bx()) }

// SBx24 decodes the sBx24 24-bit signed offset field, sign-extended.
func (i Instruction) SBx24() int32 {
	raw := (uint32(i) >> posA) & maskAx
	if raw&0x800000 != 0 {
		return int32(raw | ^uint32(maskAx))
	}
	return int32(raw)
}

func (i Instruction) String() string {
	return fmt.Sprintf("%-10s A=%d B=%d C=%d Bx=%d", i.OpCode(), i.A(), i.B(), i.C(), i.Bx())
}

// MethodCallSentinel is the reserved Call.Bx value that signals method
// dispatch rather than a direct function-index call (spec §4.1/§4.2).
const MethodCallSentinel uint16 = 0xFFFE
