package tui

import (
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"

	"bcms_scan_go/internal/domain"
	"bcms_scan_go/internal/stream"
)

// Control is the controller surface the monitor drives. *scan.Controller
// implements it.
type Control interface {
	RequestStart()
	RequestStop()
	RequestSetPower(level int)
	RequestSetRegion(region int)
	Clear()
	Stats() *stream.Value[domain.Stats]
	Power() *stream.Value[int]
	Scanning() *stream.Value[bool]
	Tags() *stream.Value[domain.Snapshot]
	Session() domain.ScanSession
	Errors() <-chan string
	WriteCSV(w io.Writer) error
}

type screen int

const (
	screenMonitor screen = iota
	screenLogs
	screenHelp
)

var screenNames = []string{"Monitor", "Logs", "Help"}

type inputMode int

const (
	inputModeNone inputMode = iota
	inputModePower
	inputModeRegion
	inputModeExport
)

var regionNames = []string{"0 China", "1 US", "2 Korea", "3 EU"}

type statsMsg struct{ Stats domain.Stats }

type tagsMsg struct{ Table domain.Snapshot }

type scanningMsg struct{ Active bool }

type powerMsg struct{ Level int }

type controlErrMsg struct{ Text string }

type streamClosedMsg struct{ Name string }

type actionDoneMsg struct{ Name string }

type exportFinishedMsg struct {
	Path string
	Rows int
	Err  error
}

// subscriptions outlive Model copies so a quit from any copy releases them.
type subscriptions struct {
	stats    <-chan domain.Stats
	tags     <-chan domain.Snapshot
	scanning <-chan bool
	power    <-chan int

	once    sync.Once
	cancels []func()
}

func (s *subscriptions) cancel() {
	s.once.Do(func() {
		for _, c := range s.cancels {
			c()
		}
	})
}

// Options configures the monitor.
type Options struct {
	// Endpoint is shown in the header, e.g. "sim" or "192.168.1.200:6000".
	Endpoint string
	Family   string
	// ExportPath prefills the CSV export prompt.
	ExportPath string
}

// Model is the app state.
type Model struct {
	ctl  Control
	subs *subscriptions
	opts Options

	activeScreen screen
	tagCursor    int
	logScroll    int

	scanning bool
	stats    domain.Stats
	tags     []domain.AggregatedTag
	power    int
	region   int
	busy     string

	input     textinput.Model
	inputMode inputMode

	status string
	logs   []string

	width  int
	height int
}
