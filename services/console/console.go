// Package console runs an operator command loop over a byte stream (USB CDC
// serial on the board, any pipe in tests). Lines are tokenised with shlex so
// quoted arguments survive, and each command maps to a capability control
// request on the bus. Output stays within x/fmtx's verb subset so MCU builds
// never pull in fmt.
package console

import (
	"context"
	"io"
	"strings"
	"time"

	"envsense-go/bus"
	"envsense-go/types"
	"envsense-go/x/fmtx"
	"envsense-go/x/strconvx"
	"envsense-go/x/strx"

	"github.com/google/shlex"
)

const (
	defaultPrompt  = "> "
	requestTimeout = 2 * time.Second
	historyAsk     = 8
)

type Service struct {
	conn *bus.Connection
	rw   io.ReadWriter

	echo   bool
	prompt string
}

// Run blocks until ctx is cancelled or the stream closes.
func Run(ctx context.Context, conn *bus.Connection, rw io.ReadWriter) {
	s := &Service{conn: conn, rw: rw, prompt: defaultPrompt}
	s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "console"})
	defer s.conn.Unsubscribe(cfgSub)

	// A retained console section is replayed synchronously on subscribe;
	// apply it before the first prompt.
	select {
	case msg := <-cfgSub.Channel():
		s.applyConfig(msg.Payload)
	default:
	}

	lines := make(chan string, 4)
	go readLines(s.rw, lines)

	s.writePrompt()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-cfgSub.Channel():
			s.applyConfig(msg.Payload)
		case line, ok := <-lines:
			if !ok {
				return
			}
			if s.echo {
				fmtx.Fprintf(s.rw, "%s\r\n", line)
			}
			s.exec(ctx, line)
			s.writePrompt()
		}
	}
}

func (s *Service) applyConfig(p any) {
	m, ok := p.(map[string]any)
	if !ok {
		return
	}
	if v, ok := m["echo"].(bool); ok {
		s.echo = v
	}
	if v, ok := m["prompt"].(string); ok {
		s.prompt = strx.Coalesce(v, defaultPrompt)
	}
}

func (s *Service) writePrompt() {
	_, _ = s.rw.Write([]byte(s.prompt))
}

// readLines splits the stream on LF, swallowing the CR of CRLF pairs. The
// channel closes when the stream errors.
func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		n, err := r.Read(one)
		if n > 0 {
			switch one[0] {
			case '\n':
				lines <- string(buf)
				buf = buf[:0]
			case '\r':
			default:
				buf = append(buf, one[0])
			}
		}
		if err != nil {
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Command dispatch
// -----------------------------------------------------------------------------

func (s *Service) exec(ctx context.Context, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		s.errf("bad_line")
		return
	}
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "help":
		s.writeHelp()

	case "read":
		kind, id, ok := s.capArg(args, 2)
		if !ok {
			return
		}
		m, ok := s.request(ctx, kind, id, "read_now", nil)
		if !ok {
			return
		}
		rd, ok := m["reading"].(types.EnvReading)
		if !ok {
			s.errf("bad_reply")
			return
		}
		fmtx.Fprintf(s.rw, "ok t=%s h=%s unit=%s\r\n",
			deciStr(rd.TempDeci), centiStr(rd.RHx100), rd.Unit)

	case "rate":
		kind, id, ok := s.capArg(args, 3)
		if !ok {
			return
		}
		ms, err := strconvx.Atoi(args[2])
		if err != nil || ms <= 0 {
			s.errf("bad_arg")
			return
		}
		m, ok := s.request(ctx, kind, id, "set_rate", map[string]any{"period_ms": ms})
		if !ok {
			return
		}
		fmtx.Fprintf(s.rw, "ok period_ms=%v\r\n", m["period_ms"])

	case "heater":
		kind, id, ok := s.capArg(args, 3)
		if !ok {
			return
		}
		var on bool
		switch args[2] {
		case "on":
			on = true
		case "off":
		default:
			s.errf("bad_arg")
			return
		}
		m, ok := s.request(ctx, kind, id, "set_heater", map[string]any{"on": on})
		if !ok {
			return
		}
		res, _ := m["result"].(map[string]any)
		fmtx.Fprintf(s.rw, "ok heater=%v\r\n", res["heater"])

	case "status":
		kind, id, ok := s.capArg(args, 2)
		if !ok {
			return
		}
		m, ok := s.request(ctx, kind, id, "status", nil)
		if !ok {
			return
		}
		st, ok := m["result"].(types.SensorStatus)
		if !ok {
			s.errf("bad_reply")
			return
		}
		fmtx.Fprintf(s.rw, "ok reset=%t heater=%t t_alert=%t h_alert=%t pending=%t crc=%t cmd=%t\r\n",
			st.SystemReset, st.HeaterOn, st.TemperatureAlert, st.HumidityAlert,
			st.AlertPending, st.ChecksumFailed, st.CommandFailed)

	case "clear":
		kind, id, ok := s.capArg(args, 2)
		if !ok {
			return
		}
		if _, ok := s.request(ctx, kind, id, "clear_status", nil); ok {
			fmtx.Fprintf(s.rw, "ok\r\n")
		}

	case "reset":
		kind, id, ok := s.capArg(args, 2)
		if !ok {
			return
		}
		if _, ok := s.request(ctx, kind, id, "soft_reset", nil); ok {
			fmtx.Fprintf(s.rw, "ok\r\n")
		}

	case "history":
		kind, id, ok := s.capArg(args, 2)
		if !ok {
			return
		}
		m, ok := s.request(ctx, kind, id, "history", map[string]any{"n": historyAsk})
		if !ok {
			return
		}
		h, ok := m["history"].(types.History)
		if !ok {
			s.errf("bad_reply")
			return
		}
		fmtx.Fprintf(s.rw, "ok n=%d", len(h.Points))
		for _, p := range h.Points {
			fmtx.Fprintf(s.rw, " %v", p.V)
		}
		fmtx.Fprintf(s.rw, "\r\n")

	default:
		s.errf("unknown_command")
	}
}

func (s *Service) writeHelp() {
	fmtx.Fprintf(s.rw, "commands:\r\n"+
		"  read <kind[/id]>          one-shot reading\r\n"+
		"  rate <kind[/id]> <ms>     set publish period\r\n"+
		"  heater <kind[/id]> on|off sensor heater\r\n"+
		"  status <kind[/id]>        status word flags\r\n"+
		"  clear <kind[/id]>         clear status flags\r\n"+
		"  reset <kind[/id]>         soft reset\r\n"+
		"  history <kind[/id]>       recent values\r\n"+
		"  help\r\n")
}

// capArg validates arity and parses the capability reference in args[1].
func (s *Service) capArg(args []string, arity int) (string, int, bool) {
	if len(args) < arity {
		s.errf("usage")
		return "", 0, false
	}
	kind, id, ok := parseCapRef(args[1])
	if !ok {
		s.errf("bad_capability")
		return "", 0, false
	}
	return kind, id, true
}

// parseCapRef reads "<kind>" or "<kind>/<id>"; a bare kind means id 0.
func parseCapRef(ref string) (string, int, bool) {
	kind := ref
	id := 0
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		kind = ref[:i]
		n, err := strconvx.Atoi(ref[i+1:])
		if err != nil || n < 0 {
			return "", 0, false
		}
		id = n
	}
	if kind == "" {
		return "", 0, false
	}
	return kind, id, true
}

// request performs a control round-trip and unwraps the ok envelope.
func (s *Service) request(ctx context.Context, kind string, id int, verb string, payload any) (map[string]any, bool) {
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	topic := bus.Topic{"hal", "capability", kind, id, "control", verb}
	rep, err := s.conn.RequestWait(rctx, s.conn.NewMessage(topic, payload, false))
	if err != nil {
		s.errf("timeout")
		return nil, false
	}
	m, ok := rep.Payload.(map[string]any)
	if !ok {
		s.errf("bad_reply")
		return nil, false
	}
	if okv, _ := m["ok"].(bool); !okv {
		code, _ := m["error"].(string)
		s.errf(strx.Coalesce(code, "error"))
		return nil, false
	}
	return m, true
}

func (s *Service) errf(code string) {
	fmtx.Fprintf(s.rw, "err %s\r\n", code)
}

// deciStr renders tenths as a decimal string: 224 -> "22.4", -31 -> "-3.1".
func deciStr(v int16) string {
	whole := int(v) / 10
	frac := int(v) % 10
	if frac < 0 {
		frac = -frac
	}
	sign := ""
	if v < 0 && whole == 0 {
		sign = "-"
	}
	return sign + strconvx.Itoa(whole) + "." + strconvx.Itoa(frac)
}

// centiStr renders hundredths: 4321 -> "43.21", 907 -> "9.07".
func centiStr(v uint16) string {
	whole := int(v) / 100
	frac := int(v) % 100
	fs := strconvx.Itoa(frac)
	if frac < 10 {
		fs = "0" + fs
	}
	return strconvx.Itoa(whole) + "." + fs
}
