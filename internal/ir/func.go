package ir

// Param is a named function parameter.
type Param struct {
	Name string `msgpack:"name"`
	Type Type   `msgpack:"type"`
}

// Func is a function body.
type Func struct {
	Name   string  `msgpack:"name"`
	Params []Param `msgpack:"params"`
	Blocks []Block `msgpack:"blocks"`
}

// Block is a labelled straight-line sequence of instructions.
type Block struct {
	Label  string  `msgpack:"label"`
	Instrs []Instr `msgpack:"instrs"`
}

// Calls returns the number of call instructions in f.
func (f *Func) Calls() int {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Kind == InstrCall {
				n++
			}
		}
	}
	return n
}
