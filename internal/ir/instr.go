package ir

// InstrKind enumerates instruction kinds.
type InstrKind uint8

const (
	// InstrOther is any instruction this tool does not interpret; its text
	// is kept verbatim.
	InstrOther InstrKind = iota
	// InstrCall is a function call.
	InstrCall
)

// Instr is one instruction.
type Instr struct {
	Kind InstrKind `msgpack:"kind"`
	Call CallInstr `msgpack:"call,omitempty"`
	Text string    `msgpack:"text,omitempty"`
}

// CalleeKind distinguishes call target types.
type CalleeKind uint8

const (
	// CalleeSym is a direct call to a named function.
	CalleeSym CalleeKind = iota
	// CalleeValue is an indirect call through a local value.
	CalleeValue
)

// Callee is a call target.
type Callee struct {
	Kind CalleeKind `msgpack:"kind"`
	Name string     `msgpack:"name"`
}

// CallInstr is a call. Dst is empty when the result is unused.
type CallInstr struct {
	Dst    string   `msgpack:"dst,omitempty"`
	Callee Callee   `msgpack:"callee"`
	Args   []string `msgpack:"args,omitempty"`
}

// Call builds a direct call instruction.
func Call(dst, callee string, args ...string) Instr {
	return Instr{Kind: InstrCall, Call: CallInstr{Dst: dst, Callee: Callee{Kind: CalleeSym, Name: callee}, Args: args}}
}

// CallValue builds an indirect call instruction.
func CallValue(dst, value string, args ...string) Instr {
	return Instr{Kind: InstrCall, Call: CallInstr{Dst: dst, Callee: Callee{Kind: CalleeValue, Name: value}, Args: args}}
}

// Other builds an uninterpreted instruction.
func Other(text string) Instr {
	return Instr{Kind: InstrOther, Text: text}
}
