// Package mangle turns raw call-target names into archive lookup keys.
//
// Every function here is pure: the input string is never modified and the
// outcome is described by a Result value. The rules, in order:
//
//   - a name containing the qualifier separator '$' was already rewritten;
//   - names starting with "llvm." are compiler intrinsics, of which only the
//     memory primitives map to a fixed runtime provider;
//   - "\x01_Name@N" decorated names are reduced to "Name";
//   - anything else is looked up as is.
package mangle
