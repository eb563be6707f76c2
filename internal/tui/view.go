package tui

import (
	"fmt"
	"strings"
	"time"
)

const appTitle = "UHF Scan Monitor"

func (m Model) View() string {
	contentWidth := m.panelContentWidth()

	headerPanel := renderPanel(
		"",
		[]string{
			appTitle,
			m.tabsLine(),
			m.metaLine(),
			m.statusLine(),
		},
		contentWidth,
	)

	page := m.pageLines()
	pageTitle := "Page"
	pageBody := []string{}
	if len(page) > 0 {
		pageTitle = page[0]
		pageBody = page[1:]
	}
	pageBody = m.clampPageBody(pageBody)
	pagePanel := renderPanel(pageTitle, pageBody, contentWidth)

	parts := []string{headerPanel, pagePanel}
	if m.inputMode != inputModeNone {
		parts = append(parts, renderPanel(m.inputTitle(), []string{m.input.View()}, contentWidth))
	}
	parts = append(parts, renderPanel("", []string{"Keys: " + m.footerLine()}, contentWidth))

	return paintLayout(strings.Join(parts, "\n"))
}

func (m Model) clampPageBody(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}

	height := m.height
	if height <= 0 {
		height = 24
	}

	reserved := panelLineCount("", 4) + panelLineCount("", 1)
	if m.inputMode != inputModeNone {
		reserved += panelLineCount("input", 1)
	}
	available := height - reserved
	if available < 7 {
		available = 7
	}

	bodyLimit := available - panelLineCount("page-title", 0)
	if bodyLimit < 1 {
		bodyLimit = 1
	}
	if len(lines) <= bodyLimit {
		return lines
	}
	if bodyLimit == 1 {
		return []string{fmt.Sprintf("... %d more line(s)", len(lines))}
	}

	clipped := make([]string, 0, bodyLimit)
	clipped = append(clipped, lines[:bodyLimit-1]...)
	clipped = append(clipped, fmt.Sprintf("... %d more line(s)", len(lines)-bodyLimit+1))
	return clipped
}

func panelLineCount(title string, bodyLines int) int {
	if strings.TrimSpace(title) == "" {
		return bodyLines + 2
	}
	return bodyLines + 4
}

func (m Model) pageLines() []string {
	switch m.activeScreen {
	case screenLogs:
		return m.logPageLines()
	case screenHelp:
		return m.helpPageLines()
	default:
		return m.monitorPageLines()
	}
}

func (m Model) tabsLine() string {
	parts := make([]string, 0, len(screenNames))
	for i, name := range screenNames {
		mark := "□ "
		if screen(i) == m.activeScreen {
			mark = "▣ "
		}
		parts = append(parts, mark+name)
	}
	return strings.Join(parts, "  ")
}

func (m Model) metaLine() string {
	state := "Scan IDLE"
	if m.scanning {
		state = "Scan ACTIVE"
	}
	family := m.opts.Family
	if family == "" {
		family = "-"
	}
	return fmt.Sprintf("%s | Reader %s | Family %s | Power %s | Region %s",
		state, m.opts.Endpoint, family, powerLabel(m.power), regionLabel(m.region))
}

func (m Model) statusLine() string {
	return statusTag(m.status) + " " + m.status
}

func (m Model) monitorPageLines() []string {
	session := m.ctl.Session()
	id := "-"
	if session.ID != "" {
		id = shortID(session.ID)
	}

	lines := []string{
		"Monitor",
		fmt.Sprintf("Session %s  Elapsed %s", id, formatElapsed(m.stats.Duration)),
		fmt.Sprintf("Unique %d  Reads %d  Rate %.1f/s", m.stats.UniqueTags, m.stats.TotalReads, m.stats.ReadRate),
		"",
	}
	if len(m.tags) == 0 {
		return append(lines, "No tags read yet")
	}

	lines = append(lines, fmt.Sprintf("  %-3s %-26s %-6s %6s %-8s %s", "#", "EPC", "RSSI", "Count", "Last", "Status"))
	start, end := listWindow(m.tagCursor, len(m.tags), m.tagViewSize())
	for i := start; i < end; i++ {
		tag := m.tags[i]
		prefix := "  "
		if i == m.tagCursor {
			prefix = "▶ "
		}
		lines = append(lines, fmt.Sprintf("%s%-3d %-26s %-6s %6d %-8s %s",
			prefix,
			i+1,
			trimText(tag.EPC, 26),
			fmt.Sprintf("%d", tag.RSSI),
			tag.ReadCount,
			tag.LastSeenAt.Format("15:04:05"),
			tag.Status(),
		))
	}
	if end < len(m.tags) {
		lines = append(lines, fmt.Sprintf("... %d more tag(s)", len(m.tags)-end))
	}
	return lines
}

func (m Model) logPageLines() []string {
	lines := []string{"Logs"}
	visible := m.visibleLogs(m.logViewSize())
	if len(visible) == 0 {
		return append(lines, "No events yet")
	}
	return append(lines, visible...)
}

func (m Model) helpPageLines() []string {
	return []string{
		"Help",
		"s  start scanning",
		"x  stop scanning",
		"c  clear tag table (logs on Logs page)",
		"p  set output power 5..33",
		"r  set frequency region 0..3",
		"e  export tag table to CSV",
		"Tab/m/l/h  switch page",
		"Up/Down  move selection",
		"q  quit",
	}
}

func (m Model) footerLine() string {
	if m.inputMode != inputModeNone {
		return "[Enter] Apply  [Esc] Cancel"
	}
	switch m.activeScreen {
	case screenLogs:
		return "[Up/Down] Scroll  [c] Clear  [m] Monitor  [q] Exit"
	case screenHelp:
		return "[m] Monitor  [l] Logs  [q] Exit"
	default:
		return "[s] Start  [x] Stop  [c] Clear  [p] Power  [r] Region  [e] Export  [q] Exit"
	}
}

func (m Model) inputTitle() string {
	switch m.inputMode {
	case inputModePower:
		return "Set Power"
	case inputModeRegion:
		return "Set Region"
	case inputModeExport:
		return "Export CSV"
	default:
		return "Input"
	}
}

func (m Model) tagViewSize() int {
	if m.height <= 0 {
		return 10
	}
	return min(max(m.height-18, 4), 40)
}

func (m Model) logViewSize() int {
	if m.height <= 0 {
		return 12
	}
	size := m.height - 10
	if size < 6 {
		size = 6
	}
	if size > 24 {
		size = 24
	}
	return size
}

func (m Model) visibleLogs(limit int) []string {
	if len(m.logs) == 0 || limit <= 0 {
		return nil
	}

	end := len(m.logs) - m.logScroll
	if end < 0 {
		end = 0
	}
	if end > len(m.logs) {
		end = len(m.logs)
	}

	start := end - limit
	if start < 0 {
		start = 0
	}
	return m.logs[start:end]
}

func renderPanel(title string, lines []string, contentWidth int) string {
	if contentWidth < 24 {
		contentWidth = 24
	}

	var b strings.Builder
	horizontal := strings.Repeat("─", contentWidth+2)
	top := "┌" + horizontal + "┐"
	mid := "├" + horizontal + "┤"
	bottom := "└" + horizontal + "┘"

	b.WriteString(top)
	if strings.TrimSpace(title) != "" {
		b.WriteString("\n")
		titleText := "[" + strings.ToUpper(strings.TrimSpace(title)) + "]"
		b.WriteString("│ ")
		b.WriteString(padRight(trimText(titleText, contentWidth), contentWidth))
		b.WriteString(" │\n")
		b.WriteString(mid)
	}

	if len(lines) == 0 {
		b.WriteString("\n")
		b.WriteString("│ ")
		b.WriteString(strings.Repeat(" ", contentWidth))
		b.WriteString(" │\n")
		b.WriteString(bottom)
		return b.String()
	}

	b.WriteString("\n")
	for i, line := range lines {
		b.WriteString("│ ")
		b.WriteString(padRight(trimText(line, contentWidth), contentWidth))
		b.WriteString(" │")
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(bottom)
	return b.String()
}

func (m Model) panelContentWidth() int {
	if m.width <= 0 {
		return 78
	}
	width := m.width - 4
	if width < 36 {
		width = 36
	}
	if width > 120 {
		width = 120
	}
	return width
}

func statusTag(status string) string {
	text := strings.ToLower(status)
	switch {
	case strings.Contains(text, "failed"),
		strings.Contains(text, "error"),
		strings.Contains(text, "timed out"),
		strings.Contains(text, "closed"):
		return "[ERROR]"
	case strings.Contains(text, "stopped"),
		strings.Contains(text, "idle"),
		strings.Contains(text, "busy"),
		strings.Contains(text, "not scanning"),
		strings.Contains(text, "canceled"):
		return "[WARN ]"
	case strings.Contains(text, "started"),
		strings.Contains(text, "new tag"),
		strings.Contains(text, "exported"):
		return "[ OK  ]"
	default:
		return "[INFO ]"
	}
}

func powerLabel(level int) string {
	if level < 0 {
		return "?"
	}
	return fmt.Sprintf("%d", level)
}

func regionLabel(region int) string {
	if region < 0 || region >= len(regionNames) {
		return "?"
	}
	return regionNames[region]
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Truncate(100 * time.Millisecond).String()
}

func runeLen(s string) int {
	return len([]rune(s))
}

func padRight(s string, width int) string {
	n := runeLen(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
