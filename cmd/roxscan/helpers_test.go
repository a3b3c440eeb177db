package main

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
)

// run executes the CLI with args and returns what it printed to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	app.ErrWriter = &buf
	err := app.Run(append([]string{"roxscan"}, args...))
	return buf.String(), err
}

func testSignature() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return base58.Encode(b)
}
