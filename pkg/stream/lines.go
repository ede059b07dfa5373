package stream

import "bytes"

// lineSplitter turns arbitrary transport reads into complete lines. The
// trailing partial line is carried over to the next write, which also keeps
// multi-byte characters split across reads intact.
type lineSplitter struct {
	carry []byte
}

// Write appends p and returns every line completed by it
func (l *lineSplitter) Write(p []byte) []string {
	l.carry = append(l.carry, p...)

	var lines []string
	for {
		i := bytes.IndexByte(l.carry, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(l.carry[:i], []byte("\r"))))
		l.carry = l.carry[i+1:]
	}

	if len(l.carry) == 0 {
		l.carry = nil
	}
	return lines
}

// Flush returns the unterminated remainder, if any
func (l *lineSplitter) Flush() (string, bool) {
	if len(l.carry) == 0 {
		return "", false
	}
	rest := string(bytes.TrimSuffix(l.carry, []byte("\r")))
	l.carry = nil
	return rest, true
}
