package parser

import (
	"strconv"
	"strings"
)

// PIDPlaceholder is replaced by the shell's process id before tokenizing.
const PIDPlaceholder = "$$"

// BackgroundMarker requests background execution when it is the last token.
const BackgroundMarker = "&"

// Line is a tokenized command line.
type Line struct {
	Args       []string
	Background bool // a trailing & was present and stripped
}

// ExpandPID replaces every $$ in the raw input with pid.
func ExpandPID(input string, pid int) string {
	if !strings.Contains(input, PIDPlaceholder) {
		return input
	}
	return strings.ReplaceAll(input, PIDPlaceholder, strconv.Itoa(pid))
}

// Parse splits input on whitespace. Blank lines and lines whose first token
// starts with # yield an empty Line. A trailing & is only a marker when a
// command precedes it.
func Parse(input string) Line {
	tokens := strings.Fields(input)
	if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
		return Line{}
	}
	if len(tokens) > 1 && tokens[len(tokens)-1] == BackgroundMarker {
		return Line{Args: tokens[:len(tokens)-1], Background: true}
	}
	return Line{Args: tokens}
}

// Empty reports whether the line has nothing to run.
func (l Line) Empty() bool {
	return len(l.Args) == 0
}
