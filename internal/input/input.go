// Package input turns command arguments into todo texts, expanding "-"
// (stdin) and @file arguments to one todo per line.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrStdinUsed is returned when "-" appears more than once.
var ErrStdinUsed = errors.New("stdin already used")

// Texts returns the todo texts named by args. Consecutive plain words form
// one text; "-" reads one text per line from stdin and "@path" one per line
// from the file. No args yields a single blank text.
func Texts(args []string, stdin io.Reader) ([]string, error) {
	if len(args) == 0 {
		return []string{""}, nil
	}

	var (
		texts     []string
		words     []string
		stdinUsed bool
	)
	flush := func() {
		if len(words) > 0 {
			texts = append(texts, strings.Join(words, " "))
			words = nil
		}
	}

	for _, a := range args {
		switch {
		case a == "-":
			flush()
			if stdinUsed {
				return nil, ErrStdinUsed
			}
			stdinUsed = true
			lines, err := ReadLines(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			texts = append(texts, lines...)
		case strings.HasPrefix(a, "@") && len(a) > 1:
			flush()
			path := strings.TrimPrefix(a, "@")
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			lines, err := ReadLines(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			texts = append(texts, lines...)
		default:
			words = append(words, a)
		}
	}
	flush()
	return texts, nil
}

// ReadLines reads the non-empty, trimmed lines from r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
