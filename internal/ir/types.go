package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Type is an opaque type name such as "i32", "ptr" or "void".
type Type string

// Void is the result type of functions returning nothing.
const Void Type = "void"

// Signature is a function type.
type Signature struct {
	Result   Type   `msgpack:"result"`
	Params   []Type `msgpack:"params"`
	Variadic bool   `msgpack:"variadic,omitempty"`
}

// Equal reports whether two signatures describe the same function type.
func (s Signature) Equal(o Signature) bool {
	return s.Result == o.Result && s.Variadic == o.Variadic && slices.Equal(s.Params, o.Params)
}

// Clone returns a deep copy.
func (s Signature) Clone() Signature {
	s.Params = slices.Clone(s.Params)
	return s
}

func (s Signature) String() string {
	var sb strings.Builder
	sb.WriteString(string(s.Result))
	sb.WriteString(" (")
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(p))
	}
	if s.Variadic {
		if len(s.Params) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
	}
	sb.WriteString(")")
	return sb.String()
}

// CallConv is a function calling convention.
type CallConv uint8

const (
	// CallConvC is the default C convention; it is never printed.
	CallConvC CallConv = iota
	CallConvStdcall
	CallConvFastcall
	CallConvThiscall
	CallConvVectorcall
	CallConvWin64
)

var callConvNames = [...]string{
	CallConvC:          "ccc",
	CallConvStdcall:    "stdcall",
	CallConvFastcall:   "fastcall",
	CallConvThiscall:   "thiscall",
	CallConvVectorcall: "vectorcall",
	CallConvWin64:      "win64",
}

func (c CallConv) String() string {
	if int(c) < len(callConvNames) {
		return callConvNames[c]
	}
	return fmt.Sprintf("cc%d", uint8(c))
}

// ParseCallConv maps a convention keyword to its value.
func ParseCallConv(s string) (CallConv, bool) {
	for i, name := range callConvNames {
		if name == s {
			return CallConv(i), true
		}
	}
	return CallConvC, false
}

// Storage is the DLL storage class of a declaration.
type Storage uint8

const (
	StorageDefault Storage = iota
	StorageDLLImport
	StorageDLLExport
)

func (s Storage) String() string {
	switch s {
	case StorageDLLImport:
		return "dllimport"
	case StorageDLLExport:
		return "dllexport"
	default:
		return "default"
	}
}

// ParseStorage maps a storage keyword to its value.
func ParseStorage(s string) (Storage, bool) {
	switch s {
	case "dllimport":
		return StorageDLLImport, true
	case "dllexport":
		return StorageDLLExport, true
	}
	return StorageDefault, false
}
