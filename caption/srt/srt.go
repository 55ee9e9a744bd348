// Package srt parses SubRip (.srt) subtitle files into caption.Line
// values. It is the Go-native equivalent of the original system's use of
// the Python `pysrt` library (original_source/build_index.py), kept as a
// small, dependency-free reference parser rather than a full-featured
// library, matching the "subtitle parsing is an external collaborator"
// framing from spec.md §1.
package srt

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/capidxerrors"
)

// Parser parses .srt files.
type Parser struct{}

var _ caption.Parser = Parser{}

// timecode matches "HH:MM:SS,mmm".
const timecodeLen = len("00:00:00,000")

// Parse reads one .srt document and returns its caption lines in file
// order. Malformed blocks cause the whole document to be rejected with
// ErrMalformedInput, per spec.md §7 ("a document cannot be parsed; logged,
// document skipped, pipeline continues").
func (Parser) Parse(data []byte) ([]caption.Line, error) {
	var lines []caption.Line
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		// An index line (a bare integer) precedes the timecode line;
		// skip it if present, tolerate its absence.
		if isAllDigits(text) {
			if !scanner.Scan() {
				break
			}
			text = strings.TrimSpace(scanner.Text())
		}

		start, end, err := parseTimecodeLine(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", capidxerrors.ErrMalformedInput, err)
		}

		var textLines []string
		for scanner.Scan() {
			l := scanner.Text()
			if strings.TrimSpace(l) == "" {
				break
			}
			textLines = append(textLines, l)
		}
		lines = append(lines, caption.Line{
			Start: start,
			End:   end,
			Text:  strings.Join(textLines, " "),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", capidxerrors.ErrMalformedInput, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no caption lines found", capidxerrors.ErrMalformedInput)
	}
	return lines, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseTimecodeLine parses "00:00:00,000 --> 00:00:02,000[ extra]".
func parseTimecodeLine(line string) (start, end time.Duration, err error) {
	const sep = " --> "
	idx := strings.Index(line, sep)
	if idx < 0 {
		return 0, 0, fmt.Errorf("srt: not a timecode line: %q", line)
	}
	startStr := line[:idx]
	rest := line[idx+len(sep):]
	if len(rest) < timecodeLen {
		return 0, 0, fmt.Errorf("srt: truncated end timecode: %q", line)
	}
	endStr := rest[:timecodeLen]

	start, err = parseTimecode(startStr)
	if err != nil {
		return 0, 0, err
	}
	end, err = parseTimecode(endStr)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseTimecode(s string) (time.Duration, error) {
	if len(s) != timecodeLen {
		return 0, fmt.Errorf("srt: malformed timecode %q", s)
	}
	hh, err1 := strconv.Atoi(s[0:2])
	mm, err2 := strconv.Atoi(s[3:5])
	ss, err3 := strconv.Atoi(s[6:8])
	ms, err4 := strconv.Atoi(s[9:12])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, fmt.Errorf("srt: malformed timecode %q", s)
	}
	total := time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(ms)*time.Millisecond
	return total, nil
}
