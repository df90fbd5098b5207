package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns the whole file.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is one decoded JSON log line.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	Error   string
	Fields  map[string]string
}

// Parse decodes a zerolog JSON line. ok is false for anything else.
func Parse(line string) (Entry, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Entry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Entry{}, false
	}

	e := Entry{Fields: map[string]string{}}
	for key, value := range raw {
		switch key {
		case "time":
			if s, ok := value.(string); ok {
				e.Time, _ = time.Parse(time.RFC3339, s)
			}
		case "level":
			e.Level, _ = value.(string)
		case "message":
			e.Message, _ = value.(string)
		case "error":
			e.Error = fmt.Sprint(value)
		default:
			e.Fields[key] = fmt.Sprint(value)
		}
	}
	return e, true
}

// FormatLine renders a JSON log line for humans:
//
//	2025-10-08 21:01:05 WARN targets fetch failed – filters=none error=...
//
// Lines that are not JSON are returned unchanged.
func FormatLine(line string) string {
	e, ok := Parse(line)
	if !ok {
		return line
	}
	ts := "-"
	if !e.Time.IsZero() {
		ts = e.Time.In(time.Local).Format("2006-01-02 15:04:05")
	}
	level := strings.ToUpper(strings.TrimSpace(e.Level))
	if level == "" {
		level = "INFO"
	}

	var b strings.Builder
	b.WriteString(ts)
	b.WriteString(" ")
	b.WriteString(level)
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(" ")
		b.WriteString(msg)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	extras := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		extras = append(extras, k+"="+e.Fields[k])
	}
	if e.Error != "" {
		extras = append(extras, "error="+e.Error)
	}
	if len(extras) > 0 {
		b.WriteString(" – ")
		b.WriteString(strings.Join(extras, " "))
	}
	return b.String()
}

// FormatLines applies FormatLine to each line.
func FormatLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = FormatLine(line)
	}
	return out
}
