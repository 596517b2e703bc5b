package fuzztests

import (
	"testing"

	"bofpass/internal/testkit"
)

const (
	maxSeedBytes = 64 << 10 // 64 KiB
	maxFuzzInput = 1 << 16
)

// addArchiveSeeds adds one well-formed archive per symbol table layout.
func addArchiveSeeds(f *testing.F) {
	objects := []testkit.Object{
		{Name: "sleep.o", Symbols: []string{"Sleep", "SleepEx"}},
		{Name: "a_member_with_a_long_name.o", Symbols: []string{"ExitProcess"}},
	}
	formats := []testkit.Format{
		testkit.FormatGNU,
		testkit.FormatGNU64,
		testkit.FormatCOFF,
		testkit.FormatBSD,
		testkit.FormatBSD64,
		testkit.FormatNone,
	}
	for _, format := range formats {
		for _, thin := range []bool{false, true} {
			data, err := testkit.BuildArchive(testkit.ArchiveSpec{Format: format, Thin: thin, Objects: objects})
			if err != nil {
				continue
			}
			f.Add(clampSeed(data))
		}
	}
	f.Add([]byte("!<arch>\n"))
	f.Add([]byte("!<thin>\n"))
	f.Add([]byte{})
}

// addModuleSeeds adds small text modules covering the syntax.
func addModuleSeeds(f *testing.F) {
	for _, src := range []string{
		"module m\n",
		"module m\ndeclare stdcall void @Sleep(i32)\n",
		"module \"odd name\"\ndeclare dllimport win64 i32 @kernel32$Sleep(i32, ...)\n",
		"module m\ndeclare void @llvm.memcpy.p0.p0.i64(ptr, ptr, i64, i1)\n" +
			"define void @f(ptr %a, ptr %b) {\nentry:\n  call @llvm.memcpy.p0.p0.i64(ptr %a, ptr %b, i64 4, i1 false)\n  ret void\n}\n",
		"module m\ndeclare stdcall void @\"\\x01_Sleep@4\"(i32)\n" +
			"define i32 @g(ptr %fp) {\nentry:\n  %r = call %fp(i32 1)\n  call @\"\\x01_Sleep@4\"(i32 %r)\n  br label %exit\nexit:\n  ret i32 %r\n}\n",
		"module m\ndefine void @f() {\n",
	} {
		f.Add([]byte(src))
	}
}

func addNameSeeds(f *testing.F) {
	for _, name := range []string{
		"Sleep",
		"kernel32$Sleep",
		"llvm.memcpy.p0.p0.i64",
		"llvm.memset.p0.i32",
		"llvm.memmove",
		"llvm.trap",
		"llvm.",
		"\x01_Sleep@4",
		"\x01_a@1",
		"\x01_NoSuffix",
		"\x01",
		"",
	} {
		f.Add(name)
	}
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}

func clampInput(input []byte) []byte {
	if len(input) > maxFuzzInput {
		return append([]byte(nil), input[:maxFuzzInput]...)
	}
	return append([]byte(nil), input...)
}

// truncateForLog truncates input for logging purposes
func truncateForLog(input []byte, maxLen int) []byte {
	if len(input) <= maxLen {
		return input
	}
	return append(input[:maxLen:maxLen], []byte("...")...)
}
