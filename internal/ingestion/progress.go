package ingestion

import (
	"regexp"
	"strings"
)

// lineSplitter incrementally splits a byte stream on carriage returns
// or newlines. Git overwrites its progress line with \r and terminates
// final lines with \n, so both count as delimiters.
type lineSplitter struct {
	buf []byte
}

// feed appends a chunk and returns every completed line. A trailing
// partial line stays buffered until the next chunk or flush.
func (s *lineSplitter) feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)
	var lines []string
	for {
		idx := -1
		for i, b := range s.buf {
			if b == '\r' || b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return lines
		}
		lines = append(lines, string(s.buf[:idx]))
		s.buf = s.buf[idx+1:]
	}
}

// flush returns any buffered partial line.
func (s *lineSplitter) flush() string {
	line := string(s.buf)
	s.buf = nil
	return line
}

// Matches git progress lines like
// "Receiving objects:  45% (12345/27000), 150.00 MiB | 5.00 MiB/s".
var progressRe = regexp.MustCompile(`(Receiving objects|Resolving deltas|Counting objects|Compressing objects|remote: Counting objects|remote: Compressing objects):\s+(\d+)%`)

// parseProgressLine extracts a "phase: NN%" report from one diagnostic
// line, or returns false for unrecognized lines.
func parseProgressLine(line string) (string, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	phase := strings.TrimPrefix(m[1], "remote: ")
	return phase + ": " + m[2] + "%", true
}
