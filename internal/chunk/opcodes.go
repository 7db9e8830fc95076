package chunk

// OpCode is a single bytecode instruction tag, dispatched by a switch in the
// interpreter loop (spec §4.7). This is the exhaustive core opcode set of
// spec §6 — no ABI beyond this list is promised.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNull
	OpTrue
	OpFalse
	OpEmpty
	OpPop

	OpGetLocal
	OpGetGlobal
	OpGetUpvalue
	OpGetProperty
	OpGetPropertyNoPop
	OpGetPrivateProperty
	OpGetPrivatePropertyNoPop
	OpGetSuper
	OpGetScript

	OpDefineGlobal
	OpDefineScript

	OpSetLocal
	OpSetGlobal
	OpSetUpvalue
	OpSetProperty
	OpSetPrivateProperty
	OpSetScript
	OpSetClassStaticVar

	OpEq
	OpNotEq
	OpGr
	OpGrEq
	OpLt
	OpLtEq

	OpAdd
	OpConcat
	OpInc
	OpSub
	OpDec
	OpMul
	OpDiv
	OpPow
	OpMod

	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpBitLs
	OpBitRs

	OpNot
	OpNeg

	OpNullCoalesce
	OpOr

	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpJumpDoWhile
	OpLoop

	OpCall
	OpInvoke
	OpInvokeSuper
	OpInvokeThis

	OpClosure
	OpCloseUpvalue
	OpReturn

	OpClass
	OpInherit
	OpCheckAbstract
	OpMethod

	OpAssert
	OpPanic

	OpMultiCase
	OpCmpJmp
	OpCmpJmpFall

	OpEnum
	OpEnumSetValue

	OpUse
	OpUseVar
	OpUseBuiltin
	OpUseBuiltinVar
	OpUseEnd

	OpBreak

	OpNewArray
	OpSlice
	OpIndex
	OpIndexAssign
	OpIndexPush

	OpOpenFile
	OpCloseFile

	OpNewMap
	OpNewSet

	OpDefineDefault
)

var names = [...]string{
	OpConstant:                "CONSTANT",
	OpNull:                    "NULL",
	OpTrue:                    "TRUE",
	OpFalse:                   "FALSE",
	OpEmpty:                   "EMPTY",
	OpPop:                     "POP",
	OpGetLocal:                "GET_LOCAL",
	OpGetGlobal:               "GET_GLOBAL",
	OpGetUpvalue:              "GET_UPVALUE",
	OpGetProperty:             "GET_PROPERTY",
	OpGetPropertyNoPop:        "GET_PROPERTY_NO_POP",
	OpGetPrivateProperty:      "GET_PRIVATE_PROPERTY",
	OpGetPrivatePropertyNoPop: "GET_PRIVATE_PROPERTY_NO_POP",
	OpGetSuper:                "GET_SUPER",
	OpGetScript:               "GET_SCRIPT",
	OpDefineGlobal:            "DEFINE_GLOBAL",
	OpDefineScript:            "DEFINE_SCRIPT",
	OpSetLocal:                "SET_LOCAL",
	OpSetGlobal:               "SET_GLOBAL",
	OpSetUpvalue:              "SET_UPVALUE",
	OpSetProperty:             "SET_PROPERTY",
	OpSetPrivateProperty:      "SET_PRIVATE_PROPERTY",
	OpSetScript:               "SET_SCRIPT",
	OpSetClassStaticVar:       "SET_CLASS_STATIC_VAR",
	OpEq:                      "EQ",
	OpNotEq:                   "NOTEQ",
	OpGr:                      "GR",
	OpGrEq:                    "GREQ",
	OpLt:                      "LT",
	OpLtEq:                    "LTEQ",
	OpAdd:                     "ADD",
	OpConcat:                  "CONCAT",
	OpInc:                     "INC",
	OpSub:                     "SUB",
	OpDec:                     "DEC",
	OpMul:                     "MUL",
	OpDiv:                     "DIV",
	OpPow:                     "POW",
	OpMod:                     "MOD",
	OpBitAnd:                  "BIT_AND",
	OpBitOr:                   "BIT_OR",
	OpBitXor:                  "BIT_XOR",
	OpBitNot:                  "BIT_NOT",
	OpBitLs:                   "BIT_LS",
	OpBitRs:                   "BIT_RS",
	OpNot:                     "NOT",
	OpNeg:                     "NEG",
	OpNullCoalesce:            "NULL_COALESCE",
	OpOr:                      "OR",
	OpJump:                    "JUMP",
	OpJumpIfFalse:             "JUMP_IF_FALSE",
	OpJumpIfTrue:              "JUMP_IF_TRUE",
	OpJumpDoWhile:             "JUMP_DO_WHILE",
	OpLoop:                    "LOOP",
	OpCall:                    "CALL",
	OpInvoke:                  "INVOKE",
	OpInvokeSuper:             "INVOKE_SUPER",
	OpInvokeThis:              "INVOKE_THIS",
	OpClosure:                 "CLOSURE",
	OpCloseUpvalue:            "CLOSE_UPVALUE",
	OpReturn:                  "RETURN",
	OpClass:                   "CLASS",
	OpInherit:                 "INHERIT",
	OpCheckAbstract:           "CHECK_ABSTRACT",
	OpMethod:                  "METHOD",
	OpAssert:                  "ASSERT",
	OpPanic:                   "PANIC",
	OpMultiCase:               "MULTI_CASE",
	OpCmpJmp:                  "CMP_JMP",
	OpCmpJmpFall:              "CMP_JMP_FALL",
	OpEnum:                    "ENUM",
	OpEnumSetValue:            "ENUM_SET_VALUE",
	OpUse:                     "USE",
	OpUseVar:                  "USE_VAR",
	OpUseBuiltin:              "USE_BUILTIN",
	OpUseBuiltinVar:           "USE_BUILTIN_VAR",
	OpUseEnd:                  "USE_END",
	OpBreak:                   "BREAK",
	OpNewArray:                "NEW_ARRAY",
	OpSlice:                   "SLICE",
	OpIndex:                   "INDEX",
	OpIndexAssign:             "INDEX_ASSIGN",
	OpIndexPush:               "INDEX_PUSH",
	OpOpenFile:                "OPEN_FILE",
	OpCloseFile:               "CLOSE_FILE",
	OpNewMap:                  "NEW_MAP",
	OpNewSet:                  "NEW_SET",
	OpDefineDefault:           "DEFINE_DEFAULT",
}

func (op OpCode) String() string {
	if int(op) < len(names) && names[op] != "" {
		return names[op]
	}
	return "UNKNOWN"
}
