package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// NewModel subscribes to the controller streams. The subscriptions are
// released when the user quits or when the controller closes its streams.
func NewModel(ctl Control, opts Options) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 256
	input.Width = 48

	if opts.ExportPath == "" {
		opts.ExportPath = "tags.csv"
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "unknown"
	}

	subs := &subscriptions{}
	var cancel func()
	subs.stats, cancel = ctl.Stats().Subscribe()
	subs.cancels = append(subs.cancels, cancel)
	subs.tags, cancel = ctl.Tags().Subscribe()
	subs.cancels = append(subs.cancels, cancel)
	subs.scanning, cancel = ctl.Scanning().Subscribe()
	subs.cancels = append(subs.cancels, cancel)
	subs.power, cancel = ctl.Power().Subscribe()
	subs.cancels = append(subs.cancels, cancel)

	return Model{
		ctl:          ctl,
		subs:         subs,
		opts:         opts,
		activeScreen: screenMonitor,
		power:        ctl.Power().Load(),
		region:       -1,
		input:        input,
		inputMode:    inputModeNone,
		status:       "Idle. Press s to start scanning",
		logs:         make([]string, 0, 64),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitStatsCmd(m.subs.stats),
		waitTagsCmd(m.subs.tags),
		waitScanningCmd(m.subs.scanning),
		waitPowerCmd(m.subs.power),
		waitControlErrCmd(m.ctl.Errors()),
	)
}
