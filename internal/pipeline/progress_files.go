package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DisplayNames maps input paths to the names used in progress events:
// relative to baseDir when inside it, slash separated. Inputs naming the
// same file twice are rejected.
func DisplayNames(files []string, baseDir string) ([]string, error) {
	base := strings.TrimSpace(baseDir)
	if base != "" {
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
	}
	out := make([]string, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, file := range files {
		if file == "" {
			return nil, fmt.Errorf("empty file name")
		}
		path := filepath.Clean(file)
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if prev, dup := seen[abs]; dup {
			return nil, fmt.Errorf("%s and %s name the same file", prev, file)
		}
		seen[abs] = file
		if base != "" {
			if rel, err := filepath.Rel(base, abs); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				path = rel
			}
		}
		out = append(out, filepath.ToSlash(path))
	}
	return out, nil
}

// outputPath places a rewritten module. With outDir every output keeps its
// base name, with the extension of the emitted format.
func outputPath(input, outDir string, inPlace bool, ext string) string {
	if inPlace || outDir == "" {
		return input
	}
	name := filepath.Base(input)
	return filepath.Join(outDir, strings.TrimSuffix(name, filepath.Ext(name))+ext)
}

// checkOutputCollisions rejects inputs that would share an output name.
func checkOutputCollisions(files []string) error {
	seen := make(map[string]string, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if prev, dup := seen[stem]; dup {
			return fmt.Errorf("%s and %s would write the same output", prev, file)
		}
		seen[stem] = file
	}
	return nil
}
