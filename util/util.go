// Package util contains misc internal utilities.
package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// ParseIntCSV is the inverse of IntSliceToCSV.  Whitespace around each field is ignored.
// e.g., "1, 2,3" => []int{1,2,3}
func ParseIntCSV(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty integer list")
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("field %d of %q: %w", i+1, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseFrameList reads a frame list, one path per line.  Surrounding whitespace
// is trimmed, and blank lines and lines starting with # are skipped.
func ParseFrameList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// ReadFrameList opens path and parses it with ParseFrameList
func ReadFrameList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	list, err := ParseFrameList(f)
	if err != nil {
		return nil, fmt.Errorf("reading frame list %s: %w", path, err)
	}
	return list, nil
}
