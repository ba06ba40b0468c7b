package bytecode

// OpCode identifies an instruction's operation. Numbering leaves
// deliberate gaps between categories (matching the donor's layout
// convention) so a future revision can slot in a related opcode
// without renumbering everything after it.
type OpCode uint8

const (
	OpNop  OpCode = 0
	OpHalt OpCode = 1

	OpLoadConst OpCode = 10
	OpLoadNone  OpCode = 11
	OpLoadTrue  OpCode = 12
	OpLoadFalse OpCode = 13
	OpMove      OpCode = 14

	OpAdd OpCode = 20
	OpSub OpCode = 21
	OpMul OpCode = 22
	OpDiv OpCode = 23
	OpMod OpCode = 24
	OpNeg OpCode = 25

	OpEq  OpCode = 30
	OpNeq OpCode = 31
	OpLt  OpCode = 32
	OpLte OpCode = 33
	OpGt  OpCode = 34
	OpGte OpCode = 35

	OpAnd OpCode = 40
	OpOr  OpCode = 41
	OpNot OpCode = 42

	OpConcat OpCode = 50

	OpJmp       OpCode = 60
	OpJmpTrue   OpCode = 61
	OpJmpFalse  OpCode = 62

	OpCall    OpCode = 70
	OpRet     OpCode = 71
	OpRetNone OpCode = 72

	OpNewList  OpCode = 80
	OpNewMap   OpCode = 81
	OpIndexGet OpCode = 82
	OpIndexSet OpCode = 83
	OpLen      OpCode = 84

	OpIterInit OpCode = 90
	OpIterNext OpCode = 91

	OpSpawn OpCode = 100
	OpSend  OpCode = 101
	OpRecv  OpCode = 102

	OpMLoad  OpCode = 110
	OpMStore OpCode = 111

	OpExec  OpCode = 120
	OpTCall OpCode = 121

	OpEmit OpCode = 130

	// Reserved opcodes: valid numbers, stub handlers that fail with
	// "not implemented" at runtime (spec §4.1, §5, §7).
	OpTryBegin      OpCode = 140
	OpTryEnd        OpCode = 141
	OpThrow         OpCode = 142
	OpGetError      OpCode = 143
	OpYield         OpCode = 144
	OpExecStructured OpCode = 145
	OpRecvTimeout   OpCode = 146
	OpWait          OpCode = 147
	OpKill          OpCode = 148
	OpPipelineRun   OpCode = 149
	OpCast          OpCode = 150
	OpTypeOf        OpCode = 151
	OpFormat        OpCode = 152
	OpSubstr        OpCode = 153
	OpStrLen        OpCode = 154
	OpGLoad         OpCode = 155
	OpGStore        OpCode = 156
	OpListPush      OpCode = 157
)

var opNames = map[OpCode]string{
	OpNop: "NOP", OpHalt: "HALT",
	OpLoadConst: "LOADCONST", OpLoadNone: "LOADNONE", OpLoadTrue: "LOADTRUE", OpLoadFalse: "LOADFALSE", OpMove: "MOVE",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD", OpNeg: "NEG",
	OpEq: "EQ", OpNeq: "NEQ", OpLt: "LT", OpLte: "LTE", OpGt: "GT", OpGte: "GTE",
	OpAnd: "AND", OpOr: "OR", OpNot: "NOT",
	OpConcat: "CONCAT",
	OpJmp: "JMP", OpJmpTrue: "JMPTRUE", OpJmpFalse: "JMPFALSE",
	OpCall: "CALL", OpRet: "RET", OpRetNone: "RETNONE",
	OpNewList: "NEWLIST", OpNewMap: "NEWMAP", OpIndexGet: "INDEXGET", OpIndexSet: "INDEXSET", OpLen: "LEN",
	OpIterInit: "ITERINIT", OpIterNext: "ITERNEXT",
	OpSpawn: "SPAWN", OpSend: "SEND", OpRecv: "RECV",
	OpMLoad: "MLOAD", OpMStore: "MSTORE",
	OpExec: "EXEC", OpTCall: "TCALL",
	OpEmit: "EMIT",
	OpTryBegin: "TRYBEGIN", OpTryEnd: "TRYEND", OpThrow: "THROW", OpGetError: "GETERROR",
	OpYield: "YIELD", OpExecStructured: "EXECSTRUCTURED", OpRecvTimeout: "RECVTIMEOUT",
	OpWait: "WAIT", OpKill: "KILL", OpPipelineRun: "PIPELINERUN", OpCast: "CAST",
	OpTypeOf: "TYPEOF", OpFormat: "FORMAT", OpSubstr: "SUBSTR", OpStrLen: "STRLEN",
	OpGLoad: "GLOAD", OpGStore: "GSTORE", OpListPush: "LISTPUSH",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Reserved reports whether op is a numbered-but-unimplemented stub
// opcode (spec §4.1: "may be reserved as unimplemented stubs").
func (op OpCode) Reserved() bool {
	return op >= OpTryBegin && op <= OpListPush
}
