package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bcms_scan_go/internal/domain"
	"bcms_scan_go/internal/scan"
)

func waitStatsCmd(ch <-chan domain.Stats) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{Name: "stats"}
		}
		return statsMsg{Stats: s}
	}
}

func waitTagsCmd(ch <-chan domain.Snapshot) tea.Cmd {
	return func() tea.Msg {
		table, ok := <-ch
		if !ok {
			return streamClosedMsg{Name: "tags"}
		}
		return tagsMsg{Table: table}
	}
}

func waitScanningCmd(ch <-chan bool) tea.Cmd {
	return func() tea.Msg {
		active, ok := <-ch
		if !ok {
			return streamClosedMsg{Name: "scanning"}
		}
		return scanningMsg{Active: active}
	}
}

func waitPowerCmd(ch <-chan int) tea.Cmd {
	return func() tea.Msg {
		level, ok := <-ch
		if !ok {
			return streamClosedMsg{Name: "power"}
		}
		return powerMsg{Level: level}
	}
}

func waitControlErrCmd(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		text, ok := <-ch
		if !ok {
			return streamClosedMsg{Name: "errors"}
		}
		return controlErrMsg{Text: text}
	}
}

// controlCmd runs a controller request off the UI goroutine; a start may
// block until the start deadline.
func controlCmd(name string, fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return actionDoneMsg{Name: name}
	}
}

func exportCmd(ctl Control, path string) tea.Cmd {
	return func() tea.Msg {
		rows := ctl.Tags().Load().Len()
		if err := scan.ExportFile(ctl, path); err != nil {
			return exportFinishedMsg{Path: path, Err: err}
		}
		return exportFinishedMsg{Path: path, Rows: rows}
	}
}

func parseLevel(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty value")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return n, nil
}

func trimText(in string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(in)
	if len(r) <= max {
		return in
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func listWindow(cursor, total, window int) (int, int) {
	if total <= 0 {
		return 0, 0
	}
	if window <= 0 || window >= total {
		return 0, total
	}

	start := cursor - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > total {
		end = total
		start = end - window
		if start < 0 {
			start = 0
		}
	}
	return start, end
}

func (m *Model) pushLog(line string) {
	stamp := time.Now().Format("15:04:05")
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s", stamp, line))
	if len(m.logs) > 240 {
		m.logs = m.logs[len(m.logs)-240:]
	}
}
