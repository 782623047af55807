package triple

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Terms keep their N-Triples lexical form (<iri>, _:b0, "lit"@en, "1"^^<dt>)
// so a parse/format cycle is lossless.

// ParseLine parses one N-Triples statement. ok is false for blank and
// comment lines.
func ParseLine(line string) (st Statement, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Statement{}, false, nil
	}

	var terms [3]string
	pos := 0
	for i := range terms {
		term, next, err := readTerm(line, pos)
		if err != nil {
			return Statement{}, false, err
		}
		terms[i] = term
		pos = next
	}

	rest := strings.TrimSpace(line[pos:])
	if !strings.HasPrefix(rest, ".") {
		return Statement{}, false, fmt.Errorf("missing terminating '.'")
	}
	if tail := strings.TrimSpace(rest[1:]); tail != "" && !strings.HasPrefix(tail, "#") {
		return Statement{}, false, fmt.Errorf("unexpected content after '.': %q", tail)
	}

	return Statement{Subject: terms[0], Predicate: terms[1], Object: terms[2]}, true, nil
}

func readTerm(line string, pos int) (string, int, error) {
	for pos < len(line) && (line[pos] == ' ' || line[pos] == '\t') {
		pos++
	}
	if pos >= len(line) {
		return "", pos, fmt.Errorf("unexpected end of statement")
	}

	start := pos
	switch line[pos] {
	case '<':
		end := strings.IndexByte(line[pos:], '>')
		if end < 0 {
			return "", pos, fmt.Errorf("unterminated IRI at column %d", pos)
		}
		return line[start : pos+end+1], pos + end + 1, nil
	case '_':
		if !strings.HasPrefix(line[pos:], "_:") {
			return "", pos, fmt.Errorf("malformed blank node at column %d", pos)
		}
		for pos < len(line) && line[pos] != ' ' && line[pos] != '\t' {
			pos++
		}
		return line[start:pos], pos, nil
	case '"':
		pos++
		for pos < len(line) && line[pos] != '"' {
			if line[pos] == '\\' {
				pos++
			}
			pos++
		}
		if pos >= len(line) {
			return "", start, fmt.Errorf("unterminated literal at column %d", start)
		}
		pos++
		switch {
		case strings.HasPrefix(line[pos:], "^^<"):
			end := strings.IndexByte(line[pos:], '>')
			if end < 0 {
				return "", start, fmt.Errorf("unterminated datatype at column %d", pos)
			}
			pos += end + 1
		case strings.HasPrefix(line[pos:], "@"):
			for pos < len(line) && line[pos] != ' ' && line[pos] != '\t' && line[pos] != '.' {
				pos++
			}
		}
		return line[start:pos], pos, nil
	}
	return "", pos, fmt.Errorf("unexpected character %q at column %d", line[pos], pos)
}

// Parse reads an N-Triples document into a set. Duplicate lines collapse.
func Parse(r io.Reader) (Set, error) {
	set := make(Set)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		st, ok, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if ok {
			set.Add(st)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading statements: %w", err)
	}
	return set, nil
}

func FormatLine(st Statement) string {
	return st.Subject + " " + st.Predicate + " " + st.Object + " ."
}

// Write emits the set in canonical order, one statement per line.
func Write(w io.Writer, set Set) error {
	bw := bufio.NewWriter(w)
	for _, st := range set.Sorted() {
		if _, err := bw.WriteString(FormatLine(st)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
