package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// terminal asks yes/no questions on in and shows blocking messages on out.
type terminal struct {
	in      *bufio.Reader
	out     io.Writer
	assumeY bool
}

func newTerminal(in io.Reader, out io.Writer, assumeYes bool) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out, assumeY: assumeYes}
}

func (t *terminal) Confirm(ctx context.Context, message string) bool {
	if t.assumeY {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	fmt.Fprintf(t.out, "%s [y/N] ", message)
	answer, err := t.in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (t *terminal) Alert(message string) {
	fmt.Fprintln(t.out, "!", message)
}
