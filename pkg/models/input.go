package models

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadRows parses line-oriented input into rows. Each non-blank,
// non-comment line is comma-separated: an optional leading numeric row
// index followed by one or more candidate URLs. Lines without an explicit
// index are numbered by position.
func ReadRows(r io.Reader) ([]InputRow, error) {
	var rows []InputRow

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		index := len(rows)
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[0]); err == nil {
				index = n
				fields = fields[1:]
			}
		}

		urls := fields[:0]
		for _, f := range fields {
			if f != "" {
				urls = append(urls, f)
			}
		}

		rows = append(rows, InputRow{Index: index, URLs: urls})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input line %d: %w", lineNo, err)
	}

	return rows, nil
}
