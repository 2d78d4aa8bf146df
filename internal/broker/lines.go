package broker

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// readLines calls emit once per newline-terminated line read from r. Content
// left without a trailing newline when r closes is emitted as a last line.
func readLines(r io.Reader, emit func(string)) error {
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if len(raw) > 0 {
			line := strings.TrimSuffix(raw, "\n")
			line = strings.TrimSuffix(line, "\r")
			emit(strings.ToValidUTF8(line, "\uFFFD"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
