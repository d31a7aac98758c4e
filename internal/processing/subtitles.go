package processing

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// defaultEntrySeconds is the display time given to the last entry of an LRC
// file, which carries no end time of its own.
const defaultEntrySeconds = 3.0

// Entry is one timed line of text. Times are in seconds.
type Entry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ParseLRC reads "[mm:ss.xx]text" lines. Lines without a valid timestamp or
// without text are skipped. Each entry ends where the next one starts; the
// last one lasts three seconds.
func ParseLRC(content string) []Entry {
	var entries []Entry

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "[") {
			continue
		}
		end := strings.IndexByte(line, ']')
		if end < 0 {
			continue
		}
		text := strings.TrimSpace(line[end+1:])
		if text == "" {
			continue
		}
		start, ok := parseLRCTime(line[1:end])
		if !ok {
			continue
		}
		entries = append(entries, Entry{Start: start, End: start + defaultEntrySeconds, Text: text})
	}

	for i := 0; i+1 < len(entries); i++ {
		entries[i].End = entries[i+1].Start
	}
	return entries
}

func parseLRCTime(s string) (float64, bool) {
	minStr, secStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(minStr, 64)
	if err != nil || minutes < 0 {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(secStr, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return minutes*60 + seconds, true
}

// FormatLRCTime renders seconds as an LRC "[mm:ss.xx]" tag.
func FormatLRCTime(seconds float64) string {
	seconds = math.Max(seconds, 0)
	minutes := int(seconds / 60)
	return fmt.Sprintf("[%02d:%05.2f]", minutes, seconds-float64(minutes*60))
}

// FormatLRC renders entries as LRC, one line per entry.
func FormatLRC(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatLRCTime(e.Start))
		b.WriteString(e.Text)
	}
	return b.String()
}

// ParseSRT reads SubRip blocks. Malformed blocks are skipped; multi-line
// cue text is joined with spaces.
func ParseSRT(content string) []Entry {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var entries []Entry
	for _, block := range strings.Split(strings.TrimSpace(content), "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		timing := -1
		for i, l := range lines {
			if strings.Contains(l, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 || timing+1 >= len(lines) {
			continue
		}

		startStr, endStr, _ := strings.Cut(lines[timing], "-->")
		start, ok := parseSRTTime(startStr)
		if !ok {
			continue
		}
		end, ok := parseSRTTime(endStr)
		if !ok {
			continue
		}

		text := make([]string, 0, len(lines)-timing-1)
		for _, l := range lines[timing+1:] {
			if l = strings.TrimSpace(l); l != "" {
				text = append(text, l)
			}
		}
		if len(text) == 0 {
			continue
		}
		entries = append(entries, Entry{Start: start, End: end, Text: strings.Join(text, " ")})
	}
	return entries
}

// parseSRTTime parses "hh:mm:ss,mmm". A dot is accepted as the decimal mark.
func parseSRTTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	s = strings.Replace(s, ",", ".", 1)

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, false
	}
	return float64(h*3600+m*60) + sec, true
}

// FormatSRT renders entries as SubRip.
func FormatSRT(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(e.Start), formatSRTTime(e.End), e.Text)
	}
	return b.String()
}

func formatSRTTime(seconds float64) string {
	ms := int64(math.Round(math.Max(seconds, 0) * 1000))
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// SRTToLRC converts SubRip content to LRC.
func SRTToLRC(srt string) (string, error) {
	entries := ParseSRT(srt)
	if len(entries) == 0 {
		return "", ErrNoEntries
	}
	return FormatLRC(entries), nil
}
