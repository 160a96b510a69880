// Package caption renders and parses WEBVTT timed captions.
package caption

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const Header = "WEBVTT"

var ErrBadTimestamp = errors.New("invalid caption timestamp")

type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// FormatTimestamp renders seconds as HH:MM:SS.mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// ParseTimestamp accepts HH:MM:SS.mmm, MM:SS.mmm and the SRT comma form.
func ParseTimestamp(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, value)
	}
	var total float64
	for i, part := range parts {
		last := i == len(parts)-1
		var (
			v   float64
			err error
		)
		if last {
			v, err = strconv.ParseFloat(part, 64)
		} else {
			var n int
			n, err = strconv.Atoi(part)
			v = float64(n)
		}
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, value)
		}
		total = total*60 + v
	}
	return total, nil
}

// Format renders cues as a WEBVTT document. Cue indexes are written as given.
func Format(cues []Cue) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n\n")
	for _, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", c.Index, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
	return b.String()
}

// Parse reads a WEBVTT (or SRT) document. Cues without a numeric identifier
// are numbered by position.
func Parse(doc string) ([]Cue, error) {
	scanner := bufio.NewScanner(strings.NewReader(strings.ReplaceAll(doc, "\r\n", "\n")))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		cues  []Cue
		block []string
	)
	flush := func() error {
		defer func() { block = block[:0] }()
		if len(block) == 0 {
			return nil
		}
		if strings.HasPrefix(block[0], Header) || strings.HasPrefix(block[0], "NOTE") {
			return nil
		}
		timing := -1
		for i, line := range block {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			return nil
		}

		cue := Cue{Index: len(cues) + 1}
		if timing > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(block[timing-1])); err == nil {
				cue.Index = n
			}
		}
		bounds := strings.SplitN(block[timing], "-->", 2)
		start, err := ParseTimestamp(bounds[0])
		if err != nil {
			return err
		}
		// Cue settings may follow the end timestamp.
		endField := strings.Fields(bounds[1])
		if len(endField) == 0 {
			return fmt.Errorf("%w: missing end in %q", ErrBadTimestamp, block[timing])
		}
		end, err := ParseTimestamp(endField[0])
		if err != nil {
			return err
		}
		cue.Start, cue.End = start, end
		cue.Text = strings.Join(block[timing+1:], "\n")
		cues = append(cues, cue)
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cues, nil
}
