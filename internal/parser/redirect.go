package parser

import (
	"errors"
	"fmt"
)

// ErrMissingTarget is returned when < or > is the last token.
var ErrMissingTarget = errors.New("missing redirection target")

// Redirection holds the paths extracted from a command line.
// An empty path means the stream is not redirected.
type Redirection struct {
	Input  string
	Output string
}

// ResolveRedirection removes `< file` and `> file` pairs from tokens and
// returns the remaining arguments in their original order. When an operator
// repeats, the last one wins. tokens is not modified.
func ResolveRedirection(tokens []string) (clean []string, redir Redirection, err error) {
	clean = make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "<", ">":
			if i+1 >= len(tokens) {
				return nil, Redirection{}, fmt.Errorf("%w for %s", ErrMissingTarget, tokens[i])
			}
			if tokens[i] == "<" {
				redir.Input = tokens[i+1]
			} else {
				redir.Output = tokens[i+1]
			}
			i++
		default:
			clean = append(clean, tokens[i])
		}
	}
	return clean, redir, nil
}
