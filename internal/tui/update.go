package tui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.width > 20 {
			m.input.Width = m.width - 14
		}
		return m, nil

	case tea.KeyMsg:
		if m.inputMode != inputModeNone {
			return m.updateInput(msg)
		}
		return m.updateKey(msg)

	case statsMsg:
		m.stats = msg.Stats
		return m, waitStatsCmd(m.subs.stats)

	case tagsMsg:
		before := len(m.tags)
		m.tags = msg.Table.Tags()
		if len(m.tags) > before && m.scanning {
			m.status = fmt.Sprintf("New tag: %d unique", len(m.tags))
		}
		if m.tagCursor >= len(m.tags) {
			m.tagCursor = max(len(m.tags)-1, 0)
		}
		return m, waitTagsCmd(m.subs.tags)

	case scanningMsg:
		if msg.Active != m.scanning {
			m.scanning = msg.Active
			if msg.Active {
				m.status = "Scanning started"
				m.pushLog("scan started, session " + shortID(m.ctl.Session().ID))
			} else {
				m.status = "Scanning stopped"
				m.pushLog(fmt.Sprintf("scan stopped: %d unique, %d reads", m.stats.UniqueTags, m.stats.TotalReads))
			}
		}
		return m, waitScanningCmd(m.subs.scanning)

	case powerMsg:
		if msg.Level != m.power && msg.Level >= 0 {
			m.pushLog(fmt.Sprintf("power set to %d", msg.Level))
		}
		m.power = msg.Level
		return m, waitPowerCmd(m.subs.power)

	case controlErrMsg:
		m.status = msg.Text
		m.pushLog("error: " + msg.Text)
		if strings.HasPrefix(msg.Text, "set region") {
			m.region = -1
		}
		return m, waitControlErrCmd(m.ctl.Errors())

	case streamClosedMsg:
		if msg.Name == "errors" {
			m.status = "Controller closed"
		}
		m.pushLog(msg.Name + " stream closed")
		return m, nil

	case actionDoneMsg:
		if m.busy == msg.Name {
			m.busy = ""
		}
		return m, nil

	case exportFinishedMsg:
		if msg.Err != nil {
			m.status = "Export failed: " + msg.Err.Error()
			m.pushLog("export error: " + msg.Err.Error())
			return m, nil
		}
		m.status = fmt.Sprintf("Exported %d tag(s) to %s", msg.Rows, msg.Path)
		m.pushLog(m.status)
		return m, nil
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.subs.cancel()
		return m, tea.Quit
	case "tab":
		m.activeScreen = (m.activeScreen + 1) % screen(len(screenNames))
		return m, nil
	case "m", "b", "esc":
		m.activeScreen = screenMonitor
		return m, nil
	case "l":
		m.activeScreen = screenLogs
		return m, nil
	case "?", "h":
		m.activeScreen = screenHelp
		return m, nil
	case "s":
		return m.requestStart()
	case "x":
		return m.requestStop()
	case "p":
		return m.enterInput(inputModePower, strconv.Itoa(max(m.power, 0)), "Power: enter level 5..33 and press Enter")
	case "r":
		value := ""
		if m.region >= 0 {
			value = strconv.Itoa(m.region)
		}
		return m.enterInput(inputModeRegion, value, "Region: 0 China, 1 US, 2 Korea, 3 EU")
	case "e":
		return m.enterInput(inputModeExport, m.opts.ExportPath, "Export: CSV path, Enter to write")
	}

	switch m.activeScreen {
	case screenMonitor:
		return m.updateMonitorKeys(msg)
	case screenLogs:
		return m.updateLogKeys(msg)
	default:
		return m, nil
	}
}

func (m Model) requestStart() (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.status = "Busy: " + m.busy + " in progress"
		return m, nil
	}
	if m.scanning {
		m.status = "Already scanning"
		return m, nil
	}
	m.busy = "start"
	m.status = "Starting scan..."
	m.pushLog("start requested")
	return m, controlCmd("start", m.ctl.RequestStart)
}

func (m Model) requestStop() (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.status = "Busy: " + m.busy + " in progress"
		return m, nil
	}
	if !m.scanning {
		m.status = "Not scanning"
		return m, nil
	}
	m.busy = "stop"
	m.status = "Stopping scan..."
	m.pushLog("stop requested")
	return m, controlCmd("stop", m.ctl.RequestStop)
}

func (m Model) updateMonitorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.tagCursor > 0 {
			m.tagCursor--
		}
	case "down", "j":
		if m.tagCursor < len(m.tags)-1 {
			m.tagCursor++
		}
	case "c":
		m.status = "Table cleared"
		m.tagCursor = 0
		m.pushLog("table cleared")
		return m, controlCmd("clear", m.ctl.Clear)
	}
	return m, nil
}

func (m Model) updateLogKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	maxVisible := m.logViewSize()
	maxScroll := len(m.logs) - maxVisible
	if maxScroll < 0 {
		maxScroll = 0
	}

	switch msg.String() {
	case "up", "k":
		if m.logScroll < maxScroll {
			m.logScroll++
		}
	case "down", "j":
		if m.logScroll > 0 {
			m.logScroll--
		}
	case "c":
		m.logs = nil
		m.logScroll = 0
		m.status = "Logs cleared"
	}
	return m, nil
}

func (m Model) enterInput(mode inputMode, value, status string) (tea.Model, tea.Cmd) {
	m.inputMode = mode
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.status = status
	return m, m.input.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.subs.cancel()
		return m, tea.Quit
	case "esc":
		m.inputMode = inputModeNone
		m.input.Blur()
		m.status = "Input canceled"
		return m, nil
	case "enter":
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	mode := m.inputMode

	switch mode {
	case inputModePower:
		level, err := parseLevel(value)
		if err != nil {
			m.status = "Power parse error: " + err.Error()
			return m, nil
		}
		m.closeInput()
		m.status = fmt.Sprintf("Setting power to %d...", level)
		return m, controlCmd("power", func() { m.ctl.RequestSetPower(level) })

	case inputModeRegion:
		region, err := parseLevel(value)
		if err != nil {
			m.status = "Region parse error: " + err.Error()
			return m, nil
		}
		m.closeInput()
		m.region = region
		m.status = fmt.Sprintf("Setting region to %d...", region)
		m.pushLog(fmt.Sprintf("region %d requested", region))
		return m, controlCmd("region", func() { m.ctl.RequestSetRegion(region) })

	case inputModeExport:
		if value == "" {
			m.status = "Export path is empty"
			return m, nil
		}
		m.closeInput()
		m.opts.ExportPath = value
		m.status = "Exporting to " + value + "..."
		return m, exportCmd(m.ctl, value)
	}

	m.closeInput()
	return m, nil
}

func (m *Model) closeInput() {
	m.inputMode = inputModeNone
	m.input.Blur()
	m.input.SetValue("")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
