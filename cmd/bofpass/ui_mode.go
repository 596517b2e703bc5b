package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/xyproto/env/v2"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

var uiModes = map[string]uiMode{
	"":     uiModeAuto,
	"auto": uiModeAuto,
	"on":   uiModeOn,
	"off":  uiModeOff,
}

func readUIMode(value string) (uiMode, error) {
	mode, ok := uiModes[strings.TrimSpace(strings.ToLower(value))]
	if !ok {
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
	return mode, nil
}

// shouldUseTUI decides whether the progress UI runs. In auto mode it needs
// an interactive stdout and a terminal that can redraw lines.
func shouldUseTUI(mode uiMode) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	}
	if env.Has("CI") || env.Str("TERM") == "dumb" {
		return false
	}
	return isTerminal(os.Stdout)
}
