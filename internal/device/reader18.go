package device

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	reader18 "bcms_scan_go/internal/protocol/reader18"
	"bcms_scan_go/internal/reader"
	"bcms_scan_go/internal/stream"
	"bcms_scan_go/internal/tagcodec"
)

var (
	ErrClosed         = errors.New("reader18: closed")
	ErrCommandTimeout = errors.New("reader18: command timed out")
)

// Reader18Config tunes the UHFReader18 inventory loop.
type Reader18Config struct {
	Address        byte
	AutoAddress    bool
	Params         reader18.InventoryParams
	AntennaMask    byte
	Interval       time.Duration
	CommandTimeout time.Duration
	BufferSize     int
}

func DefaultReader18Config() Reader18Config {
	params := reader18.DefaultInventoryParams()
	params.ScanTime = 0x01
	return Reader18Config{
		Address:        reader18.DefaultReaderAddress,
		AutoAddress:    true,
		Params:         params,
		AntennaMask:    0x01,
		Interval:       60 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
		BufferSize:     1024,
	}
}

// EffectiveInterval never polls faster than the reader's scan window or 40ms.
func (c Reader18Config) EffectiveInterval() time.Duration {
	minDelay := time.Duration(c.Params.ScanTime) * 100 * time.Millisecond
	if minDelay < 40*time.Millisecond {
		minDelay = 40 * time.Millisecond
	}
	if c.Interval > minDelay {
		return c.Interval
	}
	return minDelay
}

// Reader18 drives a UHFReader18 module over any byte stream. Inventory
// responses are decoded by a receive goroutine into a bounded FIFO that
// ReadTagFromBuffer drains.
type Reader18 struct {
	conn   io.ReadWriteCloser
	family tagcodec.ModuleFamily
	cfg    Reader18Config
	log    *slog.Logger
	link   *stream.Value[bool]

	writeMu sync.Mutex

	mu        sync.Mutex
	addr      byte
	fifo      [][]string
	power     int
	powered   bool
	waiters   map[byte][]chan reader18.Frame
	invCancel context.CancelFunc
	invDone   chan struct{}
	antIdx    int

	closeOnce sync.Once
	closed    chan struct{}
	rxDone    chan struct{}
}

func NewReader18(conn io.ReadWriteCloser, family tagcodec.ModuleFamily, cfg Reader18Config, log *slog.Logger) *Reader18 {
	def := DefaultReader18Config()
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.AntennaMask == 0 {
		cfg.AntennaMask = def.AntennaMask
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Reader18{
		conn:    conn,
		family:  family,
		cfg:     cfg,
		log:     log,
		link:    stream.NewDistinct(true),
		addr:    cfg.Address,
		power:   -1,
		waiters: make(map[byte][]chan reader18.Frame),
		closed:  make(chan struct{}),
		rxDone:  make(chan struct{}),
	}
	go r.rxLoop()
	return r
}

func (r *Reader18) rxLoop() {
	defer close(r.rxDone)

	var dec reader18.Decoder
	buf := make([]byte, 512)
	for {
		n, err := r.conn.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				r.handleFrame(frame)
			}
		}
		if err == nil {
			if n == 0 && r.isClosed() {
				return
			}
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		if !r.isClosed() {
			r.log.Warn("reader18: receive failed", "err", err)
		}
		_ = r.link.Publish(false)
		return
	}
}

func (r *Reader18) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func (r *Reader18) handleFrame(frame reader18.Frame) {
	r.mu.Lock()
	if r.cfg.AutoAddress {
		r.addr = frame.Address
	}
	if queue := r.waiters[frame.Command]; len(queue) > 0 {
		select {
		case queue[0] <- frame:
		default:
		}
		r.waiters[frame.Command] = queue[1:]
	}
	r.mu.Unlock()

	switch frame.Command {
	case reader18.CmdInventory:
		tags, err := reader18.ParseInventoryTags(frame)
		if err != nil {
			r.log.Debug("reader18: inventory frame dropped", "err", err)
			return
		}
		for _, tag := range tags {
			r.push(tag)
		}
	case reader18.CmdInventorySingle:
		tag, err := reader18.ParseSingleInventory(frame)
		if err == nil && tag != nil {
			r.push(*tag)
		}
	case reader18.CmdGetReaderInfo:
		info, err := reader18.ParseReaderInfo(frame)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.power = int(info.Power)
		r.mu.Unlock()
	}
}

// push stores a tag as [TID, EPC, RSSI]. The module reports RSSI as a
// positive magnitude, so the dBm value is its negation. The inventory
// command does not return TID memory.
func (r *Reader18) push(tag reader18.InventoryTag) {
	payload := []string{
		"",
		strings.ToUpper(hex.EncodeToString(tag.EPC)),
		tagcodec.EncodeRSSI(-int(tag.RSSI), r.family),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fifo = append(r.fifo, payload)
	if over := len(r.fifo) - r.cfg.BufferSize; over > 0 {
		r.fifo = r.fifo[over:]
	}
}

func (r *Reader18) send(packet []byte) error {
	if r.isClosed() {
		return ErrClosed
	}
	r.writeMu.Lock()
	_, err := r.conn.Write(packet)
	r.writeMu.Unlock()
	if err != nil {
		r.log.Warn("reader18: send failed", "err", err)
		_ = r.link.Publish(false)
	}
	return err
}

// transact sends packet and waits for the response to command cmd.
func (r *Reader18) transact(cmd byte, build func(addr byte) []byte) (reader18.Frame, error) {
	ch := make(chan reader18.Frame, 1)
	r.mu.Lock()
	addr := r.addr
	r.waiters[cmd] = append(r.waiters[cmd], ch)
	r.mu.Unlock()
	defer r.dropWaiter(cmd, ch)

	if err := r.send(build(addr)); err != nil {
		return reader18.Frame{}, err
	}

	timer := time.NewTimer(r.cfg.CommandTimeout)
	defer timer.Stop()
	select {
	case frame := <-ch:
		return frame, nil
	case <-timer.C:
		return reader18.Frame{}, fmt.Errorf("%w: 0x%02X", ErrCommandTimeout, cmd)
	case <-r.closed:
		return reader18.Frame{}, ErrClosed
	}
}

func (r *Reader18) dropWaiter(cmd byte, ch chan reader18.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.waiters[cmd]
	for i, w := range queue {
		if w == ch {
			r.waiters[cmd] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

// PowerOn probes the module with GetReaderInfo; a network module has no
// separate power switch.
func (r *Reader18) PowerOn() bool {
	frame, err := r.transact(reader18.CmdGetReaderInfo, reader18.GetReaderInfoCommand)
	if err != nil || !frame.OK() {
		r.log.Warn("reader18: power on probe failed", "err", err, "status", frame.Status)
		return false
	}
	r.mu.Lock()
	r.powered = true
	r.mu.Unlock()
	return true
}

func (r *Reader18) PowerOff() bool {
	r.StopInventory()
	r.mu.Lock()
	r.powered = false
	r.mu.Unlock()
	return true
}

func (r *Reader18) SetPower(level int) bool {
	if level < 0 || level > 0xFF {
		return false
	}
	frame, err := r.transact(reader18.CmdSetOutputPower, func(addr byte) []byte {
		return reader18.SetOutputPowerCommand(addr, byte(level))
	})
	if err != nil || !frame.OK() {
		return false
	}
	r.mu.Lock()
	r.power = level
	if level > reader18.MaxOutputPower {
		r.power = reader18.MaxOutputPower
	}
	r.mu.Unlock()
	return true
}

func (r *Reader18) Power() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.power
}

func (r *Reader18) SetFrequencyMode(region int) bool {
	if region < 0 || region >= len(reader18.Regions) {
		return false
	}
	frame, err := r.transact(reader18.CmdSetRegion, func(addr byte) []byte {
		packet, _ := reader18.SetRegionCommand(addr, reader18.Regions[region])
		return packet
	})
	return err == nil && frame.OK()
}

func (r *Reader18) StartInventory() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.powered || r.isClosed() {
		return false
	}
	if r.invCancel != nil {
		return true
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.invCancel = cancel
	r.invDone = make(chan struct{})
	go r.txLoop(ctx, r.invDone)
	return true
}

func (r *Reader18) StopInventory() bool {
	r.mu.Lock()
	cancel, done := r.invCancel, r.invDone
	r.invCancel, r.invDone = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return true
}

func (r *Reader18) txLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	interval := r.cfg.EffectiveInterval()
	for {
		r.mu.Lock()
		antenna, next := reader18.NextAntenna(r.cfg.AntennaMask, r.antIdx)
		r.antIdx = next
		addr := r.addr
		r.mu.Unlock()

		params := r.cfg.Params
		params.Antenna = antenna
		if err := r.send(reader18.InventoryG2Command(addr, params)); err != nil {
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Reader18) ReadTagFromBuffer() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fifo) == 0 {
		return nil
	}
	p := r.fifo[0]
	r.fifo = r.fifo[1:]
	return p
}

func (r *Reader18) Link() *stream.Value[bool] { return r.link }

// Close closes the stream first so a blocked write cannot hold up the
// inventory loop, then waits for both goroutines.
func (r *Reader18) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.conn.Close()
		r.StopInventory()
		<-r.rxDone
		_ = r.link.Publish(false)
	})
	return err
}

var (
	_ reader.Device       = (*Reader18)(nil)
	_ reader.LinkReporter = (*Reader18)(nil)
)
