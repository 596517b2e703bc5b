package ir

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when the binary payload changes
const binarySchemaVersion uint16 = 1

const binaryMagic = "bofpass-ir"

// ErrSchema reports a binary module written by an incompatible version.
var ErrSchema = errors.New("unsupported module schema")

// Format is a module serialization.
type Format uint8

const (
	FormatText Format = iota
	FormatBinary
)

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// ParseFormat maps "text"/"binary" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "bir":
		return FormatText, nil
	case "binary", "bmod":
		return FormatBinary, nil
	}
	return FormatText, fmt.Errorf("unknown module format %q (want text or binary)", s)
}

// Ext is the conventional file extension.
func (f Format) Ext() string {
	if f == FormatBinary {
		return ".bmod"
	}
	return ".bir"
}

type binaryPayload struct {
	Magic  string  `msgpack:"magic"`
	Schema uint16  `msgpack:"schema"`
	Module *Module `msgpack:"module"`
}

// Encode writes m as a msgpack payload.
func Encode(w io.Writer, m *Module) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(&binaryPayload{Magic: binaryMagic, Schema: binarySchemaVersion, Module: m})
}

// Decode reads a payload written by Encode.
func Decode(r io.Reader) (*Module, error) {
	var p binaryPayload
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if p.Magic != binaryMagic {
		return nil, fmt.Errorf("%w: not a module payload", ErrSchema)
	}
	if p.Schema != binarySchemaVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSchema, p.Schema, binarySchemaVersion)
	}
	if p.Module == nil {
		return nil, fmt.Errorf("decode module: empty payload")
	}
	return p.Module, nil
}

// DetectFormat guesses the serialization of data. Text modules start with
// a comment or the module header; anything else is treated as binary.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("module")) || bytes.HasPrefix(trimmed, []byte(";")) {
		return FormatText
	}
	return FormatBinary
}

// ReadFile loads a module in either format.
func ReadFile(path string) (*Module, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, FormatText, err
	}
	format := DetectFormat(data)
	var m *Module
	if format == FormatBinary {
		m, err = Decode(bytes.NewReader(data))
	} else {
		m, err = Parse(bytes.NewReader(data))
		var se *SyntaxError
		if errors.As(err, &se) {
			se.File = path
		}
	}
	if err != nil {
		return nil, format, err
	}
	return m, format, nil
}

// Write serializes m in format.
func Write(w io.Writer, m *Module, format Format) error {
	if format == FormatBinary {
		return Encode(w, m)
	}
	return Dump(w, m)
}

// WriteFile replaces path atomically with m serialized in format.
func WriteFile(path string, m *Module, format Format) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".bofpass-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err = Write(f, m, format); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
