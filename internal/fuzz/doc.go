// Package fuzztests houses Go fuzz harnesses for the parsers that read
// untrusted bytes: static library archives, text IR modules and callee
// names. Their goal is to smoke test robustness and guard against panics,
// hangs and out-of-range reads on arbitrary inputs.
package fuzztests
