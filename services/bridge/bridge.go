// bridge/bridge.go

// Package bridge uplinks selected bus traffic to a peer over a framed serial
// transport. Messages matching the configured export patterns are forwarded
// as JSON pub frames; pub frames arriving from the peer are republished on
// the local bus under a remote prefix. Ping/pong frames keep watch over
// links, like UART, that have no close semantics of their own.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"envsense-go/bus"
	"envsense-go/x/timex"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for JSON config on topic {"config","bridge"} and (re)configures the link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.Topic{"bridge", "state"},
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`

	// Export lists topic patterns ("/"-separated, "+" and "#" wildcards)
	// forwarded to the peer. Empty means the capability value/state default.
	Export []string `json:"export,omitempty"`

	// RemotePrefix namespaces topics republished from inbound pub frames.
	RemotePrefix string `json:"remote_prefix,omitempty"`

	// PingMs is the keepalive cadence. The link is declared lost after
	// maxMissedPongs unanswered pings.
	PingMs int `json:"ping_ms,omitempty"`
}

type TransportConfig struct {
	// "uart" (provided here) or other names registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
}

// UARTConfig carries enough information for an injected TinyGo dialler to open the UART.
// The actual pin mapping and UART instance selection will be handled in UARTDial.
type UARTConfig struct {
	Baud           int `json:"baud"`
	RxPin          int `json:"rx_pin"` // platform-specific numeric IDs (e.g. machine.GPIOxx)
	TxPin          int `json:"tx_pin"`
	ReadTimeoutMS  int `json:"read_timeout_ms,omitempty"` // per read; 0 means blocking
	WriteTimeoutMS int `json:"write_timeout_ms,omitempty"`
}

const (
	defaultPingMs    = 5000
	defaultRemotePfx = "remote"
	maxMissedPongs   = 3
)

var defaultExport = []string{
	"hal/capability/+/+/value",
	"hal/capability/+/+/state",
}

func (c Config) pingInterval() time.Duration {
	if c.PingMs <= 0 {
		return defaultPingMs * time.Millisecond
	}
	return time.Duration(c.PingMs) * time.Millisecond
}

func (c Config) exports() []string {
	if len(c.Export) == 0 {
		return defaultExport
	}
	return c.Export
}

func (c Config) remotePrefix() string {
	if c.RemotePrefix == "" {
		return defaultRemotePfx
	}
	return c.RemotePrefix
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "bridge"})
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	// Cancel any existing run.
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		if err := s.handleLink(ctx, rwc, cfg); err != nil {
			_ = rwc.Close()
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		_ = rwc.Close()
		return
	}
}

var errPeerUnresponsive = errors.New("peer unresponsive")
var errPeerClosed = errors.New("peer closed link")

// handleLink owns the active link lifetime: it forwards export-matched bus
// traffic to the peer, republishes inbound pub frames, and runs the ping/pong
// keepalive. All frame writes happen on this goroutine.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser, cfg Config) error {
	rd := newFramedReader(rwc)
	wr := newFramedWriter(rwc)

	done := make(chan struct{})
	defer close(done)

	outCh := make(chan *bus.Message, 8)
	var subs []*bus.Subscription
	for _, pat := range cfg.exports() {
		sub := s.conn.Subscribe(parsePattern(pat))
		subs = append(subs, sub)
		go forward(sub, outCh, done)
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	// Announced only once exports are subscribed: anything published after
	// the up state is visible on the link.
	s.publishState("up", "link_established", nil)

	// Reader: pongs and inbound pubs are signalled to the write loop; pub
	// payloads go straight onto the local bus.
	errCh := make(chan error, 1)
	pongCh := make(chan struct{}, 1)
	pingCh := make(chan struct{}, 1)
	go func() {
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			switch f.Type {
			case framePing:
				select {
				case pingCh <- struct{}{}:
				default:
				}
			case framePong:
				select {
				case pongCh <- struct{}{}:
				default:
				}
			case framePub:
				s.importPub(cfg, f.Payload)
			case frameClose:
				errCh <- errPeerClosed
				return
			default:
				// Unknown frame type; skip.
			}
		}
	}()

	tick := time.NewTicker(cfg.pingInterval())
	defer tick.Stop()

	missed := 0
	for {
		select {
		case <-ctx.Done():
			// Best-effort close.
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case <-pongCh:
			missed = 0
		case <-pingCh:
			if err := wr.WriteFrame(Frame{Type: framePong}); err != nil {
				return err
			}
		case <-tick.C:
			if missed >= maxMissedPongs {
				return errPeerUnresponsive
			}
			missed++
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		case m := <-outCh:
			if err := s.exportPub(wr, m); err != nil {
				return err
			}
		}
	}
}

// forward shuttles one subscription into the shared export channel.
func forward(sub *bus.Subscription, out chan<- *bus.Message, done <-chan struct{}) {
	for {
		select {
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case out <- m:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

// wirePub is the JSON body of a pub frame.
type wirePub struct {
	Topic   bus.Topic `json:"topic"`
	Payload any       `json:"payload"`
	TsMs    int64     `json:"ts_ms"`
}

func (s *Service) exportPub(wr *framedWriter, m *bus.Message) error {
	body, err := json.Marshal(wirePub{
		Topic:   m.Topic,
		Payload: m.Payload,
		TsMs:    timex.NowMs(),
	})
	if err != nil {
		// A payload the codec cannot express is dropped, not fatal.
		println("Error: bridge: encode pub:", err.Error())
		return nil
	}
	return wr.WriteFrame(Frame{Type: framePub, Payload: body})
}

// importPub republishes a peer's pub frame under the remote prefix.
func (s *Service) importPub(cfg Config, body []byte) {
	var p wirePub
	if err := json.Unmarshal(body, &p); err != nil {
		println("Error: bridge: decode pub:", err.Error())
		return
	}
	topic := make(bus.Topic, 0, len(p.Topic)+1)
	topic = append(topic, cfg.remotePrefix())
	for _, tok := range p.Topic {
		topic = append(topic, normalizeToken(tok))
	}
	s.conn.Publish(s.conn.NewMessage(topic, p.Payload, false))
}

// normalizeToken turns integral JSON numbers back into int tokens so remote
// topics route like local ones (capability ids are ints on this side).
func normalizeToken(tok any) any {
	if f, ok := tok.(float64); ok && f == math.Trunc(f) {
		return int(f)
	}
	return tok
}

// parsePattern splits a "/"-separated pattern into bus tokens.
func parsePattern(pat string) bus.Topic {
	parts := strings.Split(pat, "/")
	t := make(bus.Topic, len(parts))
	for i, p := range parts {
		t[i] = p
	}
	return t
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
)

// RegisterTransport allows external packages to add transports (eg. "ws", "tcp").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// UARTDial is injected by platform code (eg. in main or a tinygo_uart.go).
// It must open and return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

// uartTransport implements Transport via an injected dial function.
type uartTransport struct {
	cfg TransportConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: cfg}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, *u.cfg.UART)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Frame is a very simple length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already a decoded object (e.g. if provided internally); re-marshal for simplicity.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	msg := s.conn.NewMessage(s.stateTopic, payload, true)
	s.conn.Publish(msg)
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
