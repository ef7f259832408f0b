// Package subtitle reads and writes SRT files for the pipeline. Entries are
// kept as an ordered sequence sorted by index; indices are rewritten to be
// 1-based and contiguous on every save.
package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"videotrans/internal/types"
)

var timelineRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// ParseFile reads an SRT file. Entries whose end time is not strictly after
// their start time are dropped, not processed.
func ParseFile(path string) ([]types.SubtitleEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("subtitle: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(bufio.NewScanner(f), path)
}

// ParseString parses SRT content held in memory, e.g. a provider response.
func ParseString(content string) ([]types.SubtitleEntry, error) {
	return parse(bufio.NewScanner(strings.NewReader(content)), "<string>")
}

func parse(scanner *bufio.Scanner, name string) ([]types.SubtitleEntry, error) {
	var (
		entries []types.SubtitleEntry
		current *types.SubtitleEntry
		textBuf []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(strings.Join(textBuf, " "))
		if current.Text != "" && current.EndSeconds > current.StartSeconds {
			entries = append(entries, *current)
		}
		current, textBuf = nil, nil
	}

	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		if line == "" {
			flush()
			continue
		}
		if m := timelineRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &types.SubtitleEntry{
				StartSeconds: timestampToSeconds(m[1], m[2], m[3], m[4]),
				EndSeconds:   timestampToSeconds(m[5], m[6], m[7], m[8]),
			}
			continue
		}
		if current != nil {
			textBuf = append(textBuf, line)
		}
		// bare index lines before a timeline are ignored; indices are
		// renumbered on write anyway
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("subtitle: scan %s: %w", name, err)
	}

	for i := range entries {
		entries[i].Index = i + 1
	}
	return entries, nil
}

// WriteFile saves entries as SRT, renumbering indices 1..n in order.
func WriteFile(path string, entries []types.SubtitleEntry) error {
	var sb strings.Builder
	for i, e := range entries {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("\n")
		sb.WriteString(FormatTimestamp(e.StartSeconds))
		sb.WriteString(" --> ")
		sb.WriteString(FormatTimestamp(e.EndSeconds))
		sb.WriteString("\n")
		sb.WriteString(e.Text)
		sb.WriteString("\n\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// WriteBilingualFile writes source and target line pairs with the source
// entries' timing; the two sequences must already be the same length.
func WriteBilingualFile(path string, source, target []types.SubtitleEntry) error {
	if len(source) != len(target) {
		return fmt.Errorf("subtitle: bilingual length mismatch: %d vs %d", len(source), len(target))
	}
	merged := lo.Map(source, func(e types.SubtitleEntry, i int) types.SubtitleEntry {
		e.Text = target[i].Text + "\n" + e.Text
		return e
	})
	return WriteFile(path, merged)
}

// Texts returns the ordered text list, one element per entry.
func Texts(entries []types.SubtitleEntry) []string {
	return lo.Map(entries, func(e types.SubtitleEntry, _ int) string { return e.Text })
}

// FormatTimestamp renders seconds as an SRT timestamp (HH:MM:SS,mmm).
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp parses an SRT timestamp into seconds.
func ParseTimestamp(ts string) (float64, error) {
	m := regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})[,.](\d{1,3})$`).FindStringSubmatch(strings.TrimSpace(ts))
	if m == nil {
		return 0, fmt.Errorf("subtitle: invalid timestamp %q", ts)
	}
	return timestampToSeconds(m[1], m[2], m[3], m[4]), nil
}

func timestampToSeconds(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	for len(ms) < 3 {
		ms += "0"
	}
	mss, _ := strconv.Atoi(ms)
	return float64(hh)*3600 + float64(mm)*60 + float64(ss) + float64(mss)/1000
}
