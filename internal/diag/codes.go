package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// archive loading
	ArchiveInfo      Code = 1000
	ArchiveIO        Code = 1001
	ArchiveFormat    Code = 1002
	ArchiveNoSymtab  Code = 1003
	ArchiveLookup    Code = 1004
	LibraryLoaded    Code = 1005
	IndexInitialized Code = 1006

	// call-site rewriting
	RewriteInfo          Code = 2000
	SymbolRenamed        Code = 2001
	UnsupportedIntrinsic Code = 2002
	UnresolvedSymbol     Code = 2003
	AmbiguousSymbol      Code = 2004
	SignatureMismatch    Code = 2005
	UnknownCallee        Code = 2006
	RewriteDisabled      Code = 2007

	// module files
	ModuleInfo    Code = 3000
	ModuleRead    Code = 3001
	ModuleWrite   Code = 3002
	ModuleParse   Code = 3003
	ModuleInvalid Code = 3004
)

var codeName = map[Code]string{
	UnknownCode:          "UnknownCode",
	ArchiveInfo:          "ArchiveInfo",
	ArchiveIO:            "ArchiveIO",
	ArchiveFormat:        "ArchiveFormat",
	ArchiveNoSymtab:      "ArchiveNoSymtab",
	ArchiveLookup:        "ArchiveLookup",
	LibraryLoaded:        "LibraryLoaded",
	IndexInitialized:     "IndexInitialized",
	RewriteInfo:          "RewriteInfo",
	SymbolRenamed:        "SymbolRenamed",
	UnsupportedIntrinsic: "UnsupportedIntrinsic",
	UnresolvedSymbol:     "UnresolvedSymbol",
	AmbiguousSymbol:      "AmbiguousSymbol",
	SignatureMismatch:    "SignatureMismatch",
	UnknownCallee:        "UnknownCallee",
	RewriteDisabled:      "RewriteDisabled",
	ModuleInfo:           "ModuleInfo",
	ModuleRead:           "ModuleRead",
	ModuleWrite:          "ModuleWrite",
	ModuleParse:          "ModuleParse",
	ModuleInvalid:        "ModuleInvalid",
}

// ID returns the short stable identifier, e.g. "ARC1001" or "RWR2003".
func (c Code) ID() string {
	prefix := "UNK"
	switch {
	case c >= 1000 && c < 2000:
		prefix = "ARC"
	case c >= 2000 && c < 3000:
		prefix = "RWR"
	case c >= 3000 && c < 4000:
		prefix = "MOD"
	}
	return fmt.Sprintf("%s%04d", prefix, uint16(c))
}

func (c Code) String() string {
	if name, ok := codeName[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}
