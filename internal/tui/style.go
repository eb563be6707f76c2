package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

var (
	borderStyle     = fg("63")
	headerStyle     = fg("230").Background(lipgloss.Color("24")).Bold(true)
	tabsStyle       = fg("117").Bold(true)
	metaActiveStyle = fg("120")
	metaIdleStyle   = fg("203")
	panelTitleStyle = fg("230").Background(lipgloss.Color("60")).Bold(true)
	selectedStyle   = fg("230").Background(lipgloss.Color("57")).Bold(true)
	activeTagStyle  = fg("156")
	keysStyle       = fg("252")

	statusStyles = map[string]lipgloss.Style{
		"[ OK  ]": fg("120").Bold(true),
		"[WARN ]": fg("220").Bold(true),
		"[ERROR]": fg("203").Bold(true),
		"[INFO ]": fg("117").Bold(true),
	}
	statusOrder = []string{"[ OK  ]", "[WARN ]", "[ERROR]", "[INFO ]"}
)

// lineStyle picks the style for one rendered line; the first match wins.
func lineStyle(line string) (lipgloss.Style, bool) {
	switch {
	case strings.HasPrefix(line, "┌"), strings.HasPrefix(line, "├"), strings.HasPrefix(line, "└"):
		return borderStyle, true
	case strings.Contains(line, appTitle):
		return headerStyle, true
	case strings.Contains(line, "▣ "):
		return tabsStyle, true
	case strings.Contains(line, "Scan ACTIVE"):
		return metaActiveStyle, true
	case strings.Contains(line, "Scan IDLE"):
		return metaIdleStyle, true
	}
	for _, tag := range statusOrder {
		if strings.Contains(line, tag) {
			return statusStyles[tag], true
		}
	}
	switch {
	case strings.Contains(line, "│ ▶ "):
		return selectedStyle, true
	case strings.HasSuffix(strings.TrimRight(line, " │"), " ACTIVE"):
		return activeTagStyle, true
	case isPanelTitleLine(line):
		return panelTitleStyle, true
	case strings.Contains(line, "Keys:"):
		return keysStyle, true
	}
	return lipgloss.Style{}, false
}

func paintLayout(layout string) string {
	if layout == "" {
		return layout
	}
	lines := strings.Split(layout, "\n")
	for i, line := range lines {
		if style, ok := lineStyle(line); ok {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func isPanelTitleLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "│ [") || !strings.HasSuffix(trimmed, "] │") {
		return false
	}
	for _, tag := range statusOrder {
		if strings.Contains(trimmed, tag) {
			return false
		}
	}
	return true
}
