// cmd/envtest/main.go
//
// Host self-test: drives the real sht3x driver and the full service stack
// against the simulated sensor, printing one PASS/FAIL line per check and
// exiting non-zero if anything failed. Useful as a pre-flash smoke test and
// as a worked example of how the pieces connect.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"envsense-go/bus"
	"envsense-go/drivers/sht3x"
	"envsense-go/internal/sim"
	"envsense-go/services/bridge"
	"envsense-go/services/config"
	"envsense-go/services/console"
	"envsense-go/services/hal"
	"envsense-go/services/heartbeat"
	"envsense-go/types"
	"envsense-go/x/mathx"
)

func main() {
	passed, failed := 0, 0
	report := func(name string, err error) {
		if err != nil {
			fmt.Printf("[FAIL] %s: %v\n", name, err)
			failed++
			return
		}
		fmt.Printf("[PASS] %s\n", name)
		passed++
	}

	// Driver checks against a bare simulated sensor.
	driverChecks := []struct {
		name string
		fn   func() error
	}{
		{"single_shot_too_early", checkSingleShotTooEarly},
		{"single_shot_reading", checkSingleShotReading},
		{"polling_retries", checkPollingRetries},
		{"polling_checksum_timeout", checkPollingChecksumTimeout},
		{"polling_zero_attempts", checkPollingZeroAttempts},
		{"periodic_fetch", checkPeriodicFetch},
		{"periodic_art", checkPeriodicART},
		{"heater_and_status", checkHeaterAndStatus},
		{"alert_limit_roundtrip", checkAlertLimitRoundtrip},
		{"transition_resets_heater", checkTransitionResetsHeater},
		{"release_returns_bus", checkReleaseReturnsBus},
	}
	for _, c := range driverChecks {
		report(c.name, c.fn())
	}

	// Service checks against the wired stack.
	runStackChecks(report)

	fmt.Printf("== done: %d passed, %d failed ==\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------
// Driver checks
// -----------------------------------------------------------------------------

func checkSingleShotTooEarly() error {
	s := sht3x.NewSingleShot(sim.New(sht3x.AddressA))
	if err := s.Measure(); err != nil {
		return err
	}
	// The sensor is still converting; a single-shot read reports that
	// immediately instead of waiting.
	if _, err := s.Read(); !errors.Is(err, sht3x.ErrRead) {
		return fmt.Errorf("want ErrRead while converting, got %v", err)
	}
	return nil
}

func checkSingleShotReading() error {
	s := sht3x.NewSingleShot(sim.New(sht3x.AddressA))
	if err := s.Measure(); err != nil {
		return err
	}
	time.Sleep(25 * time.Millisecond)
	r, err := s.Read()
	if err != nil {
		return err
	}
	return plausible(r)
}

func checkPollingRetries() error {
	sens := sim.New(sht3x.AddressA)
	sens.FailReads(3)
	h := sht3x.New(sens)
	h.SetInterval(10 * time.Millisecond)
	r, err := h.Read()
	if err != nil {
		return err
	}
	return plausible(r)
}

func checkPollingChecksumTimeout() error {
	sens := sim.New(sht3x.AddressA)
	sens.CorruptFrames(100)
	h := sht3x.New(sens)
	h.SetAttempts(4)
	h.SetInterval(10 * time.Millisecond)
	_, err := h.Read()
	if !errors.Is(err, sht3x.ErrTimeout) {
		return fmt.Errorf("want ErrTimeout, got %v", err)
	}
	var ce *sht3x.ChecksumError
	if !errors.As(err, &ce) || ce.Subject != sht3x.SubjectHumidity {
		return fmt.Errorf("want wrapped humidity checksum mismatch, got %v", err)
	}
	return nil
}

func checkPollingZeroAttempts() error {
	h := sht3x.New(sim.New(sht3x.AddressA))
	h.SetAttempts(0)
	if _, err := h.Read(); !errors.Is(err, sht3x.ErrNoAttempts) {
		return fmt.Errorf("want ErrNoAttempts, got %v", err)
	}
	return nil
}

func checkPeriodicFetch() error {
	sens := sim.New(sht3x.AddressA)
	p := sht3x.NewPeriodic(sens, sht3x.Rate10)
	if err := p.Measure(); err != nil {
		return err
	}
	if !sens.Running() {
		return errors.New("sensor not in periodic mode after measure")
	}
	time.Sleep(150 * time.Millisecond)
	r, err := p.Read()
	if err != nil {
		return err
	}
	return plausible(r)
}

func checkPeriodicART() error {
	sens := sim.New(sht3x.AddressA)
	p := sht3x.NewPeriodic(sens, sht3x.RateHalf)
	p.SetART(true)
	if err := p.Measure(); err != nil {
		return err
	}
	if !sens.Running() {
		return errors.New("ART measure did not start acquisition")
	}
	return nil
}

func checkHeaterAndStatus() error {
	sens := sim.New(sht3x.AddressA)
	h := sht3x.New(sens)

	st, err := h.Status()
	if err != nil {
		return err
	}
	if !st.SystemReset {
		return errors.New("reset-detected bit should be set after power-up")
	}

	if err := h.SetHeater(true); err != nil {
		return err
	}
	if !sens.Heater() || !h.Heater() {
		return errors.New("heater state not reflected on both sides")
	}
	if st, err = h.Status(); err != nil {
		return err
	}
	if !st.HeaterOn {
		return errors.New("status word lost the heater bit")
	}

	if err := h.ClearStatus(); err != nil {
		return err
	}
	if st, err = h.Status(); err != nil {
		return err
	}
	if st.SystemReset {
		return errors.New("clear status left the reset-detected bit set")
	}
	return h.SetHeater(false)
}

func checkAlertLimitRoundtrip() error {
	h := sht3x.New(sim.New(sht3x.AddressA))
	want := sht3x.NewThreshold(30, 60, sht3x.Celsius)
	if err := h.WriteAlertLimit(sht3x.AlertHighSet, want); err != nil {
		return err
	}
	got, err := h.ReadAlertLimit(sht3x.AlertHighSet)
	if err != nil {
		return err
	}
	// The packed word keeps 9 temperature and 7 humidity bits, so allow one
	// quantisation step each way.
	if d := got.Temperature(sht3x.Celsius) - 30; !mathx.Between(d, -1, 1) {
		return fmt.Errorf("temperature limit came back as %v", got.Temperature(sht3x.Celsius))
	}
	if d := got.Humidity() - 60; !mathx.Between(d, -1, 1) {
		return fmt.Errorf("humidity limit came back as %v", got.Humidity())
	}
	return nil
}

func checkTransitionResetsHeater() error {
	sens := sim.New(sht3x.AddressA)
	h := sht3x.New(sens)
	if err := h.SetHeater(true); err != nil {
		return err
	}
	p, err := h.ToPeriodic(sht3x.Rate1)
	if err != nil {
		return err
	}
	if p.Heater() || sens.Heater() {
		return errors.New("transition left the heater on")
	}
	if _, err := h.Read(); !errors.Is(err, sht3x.ErrReleased) {
		return fmt.Errorf("old handle still usable after transition: %v", err)
	}
	return nil
}

func checkReleaseReturnsBus() error {
	sens := sim.New(sht3x.AddressA)
	h := sht3x.New(sens)
	if got := h.Release(); got != sens {
		return errors.New("Release did not hand back the bus")
	}
	if _, err := h.Read(); !errors.Is(err, sht3x.ErrReleased) {
		return fmt.Errorf("released handle still usable: %v", err)
	}
	return nil
}

func plausible(r sht3x.Reading) error {
	// The simulator synthesises 21..27 °C and 35..55 %RH.
	if !mathx.Between(r.Temperature, 15, 35) {
		return fmt.Errorf("temperature %v out of simulated range", r.Temperature)
	}
	if !mathx.Between(r.Humidity, 30, 60) {
		return fmt.Errorf("humidity %v out of simulated range", r.Humidity)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Stack checks: config -> hal -> heartbeat -> console -> bridge, one shared
// bus, one simulated sensor on the "sim0" bus id the envtest config names.
// -----------------------------------------------------------------------------

func runStackChecks(report func(string, error)) {
	sens := sim.New(sht3x.AddressA)
	b := bus.NewBus(8)
	ctx, cancel := context.WithCancel(
		context.WithValue(context.Background(), config.CtxDeviceKey, "envtest"))
	defer cancel()

	ui := b.NewConnection("envtest")
	stateSub := ui.Subscribe(bus.T("hal", "state"))
	valSub := ui.Subscribe(bus.T("hal", "capability", "temperature", 0, "value"))
	hbSub := ui.Subscribe(bus.T("system", "heartbeat"))
	remoteSub := ui.Subscribe(bus.T("remote", "note"))

	// Console over an in-memory duplex.
	conIn, conOut := newDuplexPair()
	conBuf := newTailBuffer(conOut)

	// Bridge over a second duplex; we play the peer.
	brSide, peer := newDuplexPair()
	bridge.RegisterTransport("pipe", func(bridge.TransportConfig) (bridge.Transport, error) {
		return pipeTransport{side: brSide}, nil
	})
	sawPub := make(chan struct{}, 1)
	go runPeer(peer, sawPub)

	go hal.Run(ctx, b.NewConnection("hal"), sim.Factory{"sim0": sens})
	go bridge.Start(ctx, b.NewConnection("bridge"))
	go console.Run(ctx, b.NewConnection("console"), conIn)
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	// Config last: everything above waits on its retained section.
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	report("hal_ready", waitHALReady(stateSub, 3*time.Second))
	report("scheduled_value", waitTemperature(valSub, 3*time.Second))

	report("read_now", func() error {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		defer rcancel()
		rep, err := ui.RequestWait(rctx, ui.NewMessage(
			bus.T("hal", "capability", "temperature", 0, "control", "read_now"), nil, false))
		if err != nil {
			return err
		}
		m, _ := rep.Payload.(map[string]any)
		if ok, _ := m["ok"].(bool); !ok {
			return fmt.Errorf("reply not ok: %v", rep.Payload)
		}
		rd, ok := m["reading"].(types.EnvReading)
		if !ok {
			return fmt.Errorf("reply carries no reading: %v", rep.Payload)
		}
		if !mathx.Between(rd.TempDeci, 150, 350) {
			return fmt.Errorf("deci-degrees %d out of range", rd.TempDeci)
		}
		return nil
	}())

	report("set_rate", func() error {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		defer rcancel()
		rep, err := ui.RequestWait(rctx, ui.NewMessage(
			bus.T("hal", "capability", "temperature", 0, "control", "set_rate"),
			map[string]any{"period_ms": 250}, false))
		if err != nil {
			return err
		}
		m, _ := rep.Payload.(map[string]any)
		if m["period_ms"] != 250 {
			return fmt.Errorf("period not applied: %v", rep.Payload)
		}
		return nil
	}())

	report("history", func() error {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		defer rcancel()
		rep, err := ui.RequestWait(rctx, ui.NewMessage(
			bus.T("hal", "capability", "temperature", 0, "control", "history"),
			map[string]any{"n": 4}, false))
		if err != nil {
			return err
		}
		m, _ := rep.Payload.(map[string]any)
		h, ok := m["history"].(types.History)
		if !ok || len(h.Points) == 0 {
			return fmt.Errorf("no history points: %v", rep.Payload)
		}
		return nil
	}())

	report("control_heater", func() error {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		defer rcancel()
		if _, err := ui.RequestWait(rctx, ui.NewMessage(
			bus.T("hal", "capability", "temperature", 0, "control", "set_heater"),
			map[string]any{"on": true}, false)); err != nil {
			return err
		}
		if !sens.Heater() {
			return errors.New("heater verb did not reach the sensor")
		}
		rctx2, rcancel2 := context.WithTimeout(ctx, 2*time.Second)
		defer rcancel2()
		_, err := ui.RequestWait(rctx2, ui.NewMessage(
			bus.T("hal", "capability", "temperature", 0, "control", "set_heater"),
			map[string]any{"on": false}, false))
		return err
	}())

	report("heartbeat", func() error {
		select {
		case <-hbSub.Channel():
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("no heartbeat within 2s")
		}
	}())

	report("console_read", func() error {
		if _, err := io.WriteString(conOut, "read temperature\n"); err != nil {
			return err
		}
		return conBuf.waitFor("ok t=", 2*time.Second)
	}())

	report("console_unknown", func() error {
		if _, err := io.WriteString(conOut, "frobnicate\n"); err != nil {
			return err
		}
		return conBuf.waitFor("err unknown_command", 2*time.Second)
	}())

	report("bridge_export", func() error {
		select {
		case <-sawPub:
			return nil
		case <-time.After(3 * time.Second):
			return errors.New("peer saw no pub frame")
		}
	}())

	report("bridge_import", func() error {
		select {
		case m := <-remoteSub.Channel():
			if s, _ := m.Payload.(string); s != "hi" {
				return fmt.Errorf("unexpected remote payload %v", m.Payload)
			}
			return nil
		case <-time.After(3 * time.Second):
			return errors.New("peer pub frame was not republished")
		}
	}())
}

func waitHALReady(sub *bus.Subscription, d time.Duration) error {
	deadline := time.After(d)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == "ready" {
				return nil
			}
		case <-deadline:
			return errors.New("hal never reported ready")
		}
	}
}

func waitTemperature(sub *bus.Subscription, d time.Duration) error {
	select {
	case m := <-sub.Channel():
		v, ok := m.Payload.(types.TemperatureValue)
		if !ok {
			return fmt.Errorf("unexpected value payload %T", m.Payload)
		}
		if !mathx.Between(v.DeciC, 150, 350) {
			return fmt.Errorf("deci-degrees %d out of range", v.DeciC)
		}
		return nil
	case <-time.After(d):
		return errors.New("no scheduled value published")
	}
}

// -----------------------------------------------------------------------------
// In-memory plumbing
// -----------------------------------------------------------------------------

// duplex is one end of a bidirectional in-memory byte stream.
type duplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d duplex) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d duplex) Close() error {
	_ = d.r.Close()
	return d.w.Close()
}

func newDuplexPair() (duplex, duplex) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return duplex{r: ar, w: aw}, duplex{r: br, w: bw}
}

type pipeTransport struct{ side duplex }

func (t pipeTransport) Open(context.Context) (io.ReadWriteCloser, error) { return t.side, nil }
func (t pipeTransport) String() string                                   { return "pipe" }

// runPeer plays the far end of the bridge link: it answers pings, signals the
// first pub frame it sees, and injects one pub of its own for the import path.
func runPeer(p duplex, sawPub chan<- struct{}) {
	injected := false
	for {
		var hdr [3]byte
		if _, err := io.ReadFull(p, hdr[:]); err != nil {
			return
		}
		n := int(hdr[1])<<8 | int(hdr[2])
		body := make([]byte, n)
		if _, err := io.ReadFull(p, body); err != nil {
			return
		}
		switch hdr[0] {
		case 0x01: // ping -> pong
			if _, err := p.Write([]byte{0x02, 0, 0}); err != nil {
				return
			}
			if !injected {
				injected = true
				pub := []byte(`{"topic":["note"],"payload":"hi","ts_ms":0}`)
				frame := append([]byte{0x10, byte(len(pub) >> 8), byte(len(pub))}, pub...)
				if _, err := p.Write(frame); err != nil {
					return
				}
			}
		case 0x10: // pub from our side
			select {
			case sawPub <- struct{}{}:
			default:
			}
		}
	}
}

// tailBuffer accumulates console output so checks can wait for substrings.
type tailBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func newTailBuffer(r io.Reader) *tailBuffer {
	t := &tailBuffer{}
	go func() {
		chunk := make([]byte, 256)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				t.mu.Lock()
				t.buf.Write(chunk[:n])
				t.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return t
}

func (t *tailBuffer) waitFor(substr string, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		ok := strings.Contains(t.buf.String(), substr)
		t.mu.Unlock()
		if ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("console output missing %q", substr)
}
