package srt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Segment is one timed span of transcript text. Start and End are
// seconds from the beginning of the media; End is exclusive.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Sort orders segments by start time, then end time, in place.
func Sort(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].Start != segments[j].Start {
			return segments[i].Start < segments[j].Start
		}
		return segments[i].End < segments[j].End
	})
}

// Format renders segments as an SRT document. Segments are sorted
// before rendering; cue numbers are assigned from 1.
func Format(segments []Segment) string {
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	Sort(ordered)

	var b strings.Builder
	for i, seg := range ordered {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(formatTimestamp(seg.Start))
		b.WriteString(" --> ")
		b.WriteString(formatTimestamp(seg.End))
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// Parse reads an SRT document back into segments, sorted by start then
// end. Cue numbers are ignored; blank cues are skipped.
func Parse(content string) ([]Segment, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(strings.TrimSpace(content), "\n\n")
	var segments []Segment
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		timeIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timeIdx = i
				break
			}
		}
		if timeIdx < 0 || timeIdx == len(lines)-1 {
			return nil, fmt.Errorf("srt: cue without timing or text: %q", block)
		}
		parts := strings.Split(lines[timeIdx], "-->")
		if len(parts) != 2 {
			return nil, fmt.Errorf("srt: invalid timing line %q", lines[timeIdx])
		}
		start, err := parseTimestamp(parts[0])
		if err != nil {
			return nil, err
		}
		end, err := parseTimestamp(parts[1])
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(strings.Join(lines[timeIdx+1:], "\n"))
		if text == "" {
			continue
		}
		segments = append(segments, Segment{Start: start, End: end, Text: text})
	}
	Sort(segments)
	return segments, nil
}

// formatTimestamp renders seconds as HH:MM:SS,mmm.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	millis -= h * 3600000
	m := millis / 60000
	millis -= m * 60000
	s := millis / 1000
	ms := millis - s*1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func parseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("srt: empty timestamp")
	}
	// Normalize period to comma (SRT standard uses comma for milliseconds)
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("srt: invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("srt: invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("srt: invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
