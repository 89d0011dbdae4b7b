package console

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"envsense-go/bus"
	"envsense-go/drivers/sht3x"
	"envsense-go/internal/sim"
	"envsense-go/services/hal"
	"envsense-go/types"
)

type rwPair struct {
	io.Reader
	io.Writer
}

// harness drives the console through pipes: send writes command lines, await
// scans accumulated output for a marker.
type harness struct {
	t  *testing.T
	in *io.PipeWriter

	mu  sync.Mutex
	out []byte
}

func startConsole(t *testing.T, conn *bus.Connection) *harness {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		inW.Close()
		outR.Close()
	})
	go Run(ctx, conn, rwPair{inR, outW})

	h := &harness{t: t, in: inW}
	go h.collect(outR)
	return h
}

func (h *harness) collect(r io.Reader) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.mu.Lock()
			h.out = append(h.out, buf[:n]...)
			h.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (h *harness) send(line string) {
	h.t.Helper()
	if _, err := h.in.Write([]byte(line + "\n")); err != nil {
		h.t.Fatalf("send %q: %v", line, err)
	}
}

func (h *harness) await(substr string) string {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		s := string(h.out)
		h.mu.Unlock()
		if strings.Contains(s, substr) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.mu.Lock()
	s := string(h.out)
	h.mu.Unlock()
	h.t.Fatalf("output missing %q; got:\n%s", substr, s)
	return ""
}

func TestConsole_UnknownCommand(t *testing.T) {
	b := bus.NewBus(8)
	h := startConsole(t, b.NewConnection("console"))

	h.await("> ")
	h.send("frobnicate")
	h.await("err unknown_command")

	// The loop survives bad input.
	h.send("help")
	h.await("commands:")
}

func TestConsole_BadCapabilityRef(t *testing.T) {
	b := bus.NewBus(8)
	h := startConsole(t, b.NewConnection("console"))

	h.await("> ")
	h.send("read temperature/xyz")
	h.await("err bad_capability")

	h.send("rate temperature/0")
	h.await("err usage")
}

func TestConsole_EchoAndPromptFromConfig(t *testing.T) {
	b := bus.NewBus(8)
	tc := b.NewConnection("cfg")
	tc.Publish(tc.NewMessage(bus.Topic{"config", "console"},
		map[string]any{"echo": true, "prompt": "$ "}, true))

	h := startConsole(t, b.NewConnection("console"))
	h.await("$ ")
	h.send("help")
	h.await("help\r\ncommands:")
}

func TestConsole_CommandsOverHAL(t *testing.T) {
	b := bus.NewBus(16)
	dev := sim.New(sht3x.AddressA)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hal.Run(ctx, b.NewConnection("hal"), sim.Factory{"i2c0": dev})

	tc := b.NewConnection("cfg")
	tc.Publish(tc.NewMessage(bus.Topic{"config", "hal"}, map[string]any{
		"version": 1,
		"buses":   []any{map[string]any{"id": "i2c0", "type": "i2c"}},
		"devices": []any{map[string]any{
			"id":      "sht3x0",
			"type":    "sht3x",
			"bus_ref": map[string]any{"id": "i2c0", "type": "i2c"},
			"params":  map[string]any{"accuracy": "low"},
		}},
	}, true))
	awaitHALReady(t, tc)

	h := startConsole(t, b.NewConnection("console"))
	h.await("> ")

	// Quoted argument exercises the tokenizer.
	h.send(`read "temperature/0"`)
	out := h.await("ok t=")
	if !strings.Contains(out, "unit=celsius") {
		t.Fatalf("read output missing unit: %s", out)
	}

	h.send("rate temperature/0 500")
	h.await("ok period_ms=500")

	h.send("heater temperature/0 on")
	h.await("ok heater=true")
	if !dev.Heater() {
		t.Fatal("heater not on at the sensor")
	}

	h.send("status temperature/0")
	h.await("reset=true heater=true")

	h.send("clear temperature/0")
	h.send("status temperature/0")
	h.await("reset=false heater=true")

	// read_now recorded a point per kind.
	h.send("history temperature/0")
	h.await("ok n=")

	// Capability the HAL never announced.
	h.send("read pressure/0")
	h.await("err unknown_capability")
}

func awaitHALReady(t *testing.T, tc *bus.Connection) {
	t.Helper()
	sub := tc.Subscribe(bus.Topic{"hal", "state"})
	defer tc.Unsubscribe(sub)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == "ready" {
				return
			}
		case <-deadline:
			t.Fatal("hal never became ready")
		}
	}
}
