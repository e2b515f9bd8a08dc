package engine

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

const maxLineBytes = 64 << 20

// recordReader yields one delimited record per call and io.EOF at the end.
// Line is the 1-based source line the last record (or error) started on.
type recordReader interface {
	Read() ([]string, error)
	Line() int
}

// newRecordReader returns a reader for r. Quoted sources follow RFC 4180 with
// delim as separator; unquoted sources split each line on delim and keep
// quote characters literally, which vocabulary exports rely on.
func newRecordReader(r io.Reader, delim rune, quoted bool) recordReader {
	if quoted {
		cr := csv.NewReader(r)
		cr.Comma = delim
		cr.FieldsPerRecord = -1
		return &csvReader{r: cr}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &lineReader{sc: sc, sep: string(delim)}
}

type csvReader struct {
	r    *csv.Reader
	line int
}

func (c *csvReader) Read() ([]string, error) {
	rec, err := c.r.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			c.line = pe.StartLine
		}
		return nil, err
	}
	c.line, _ = c.r.FieldPos(0)
	return rec, nil
}

func (c *csvReader) Line() int {
	return c.line
}

type lineReader struct {
	sc   *bufio.Scanner
	sep  string
	line int
}

func (l *lineReader) Read() ([]string, error) {
	for l.sc.Scan() {
		l.line++
		line := strings.TrimSuffix(l.sc.Text(), "\r")
		if line == "" {
			continue
		}
		return strings.Split(line, l.sep), nil
	}
	if err := l.sc.Err(); err != nil {
		l.line++
		return nil, err
	}
	return nil, io.EOF
}

func (l *lineReader) Line() int {
	return l.line
}

// normalizeHeader lower-cases and trims header names and drops a UTF-8 BOM.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}
