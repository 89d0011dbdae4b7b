// services/hal/hal.go
package hal

import (
	"context"
	"encoding/json"
	"time"

	"envsense-go/bus"
	"envsense-go/errcode"
	"envsense-go/types"
	"envsense-go/x/mathx"
	"envsense-go/x/ring"
)

// defaultHistory is the per-capability reading ring capacity when config
// does not size one.
const defaultHistory = 32

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

func Run(ctx context.Context, conn *bus.Connection, i2cFactory I2CBusFactory) {
	h := &service{
		conn:        conn,
		i2cFactory:  i2cFactory,
		workers:     map[string]*measureWorker{},
		devices:     map[string]devEntry{},
		capToDev:    map[capKey]string{},
		nextCapID:   map[string]int{},
		devPeriodMS: map[string]int{},
		devNextDue:  map[string]time.Time{},
		history:     map[capKey]*ring.Ring[types.HistoryPoint]{},
		pendingRead: map[string]*bus.Message{},
		results:     make(chan Result, 32),
	}
	h.loop(ctx)
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

type devEntry struct {
	adaptor Adaptor
	caps    map[string]int // kind -> numeric capability id
	busID   string
}

type capKey struct {
	kind string
	id   int
}

type service struct {
	conn       *bus.Connection
	i2cFactory I2CBusFactory

	workers map[string]*measureWorker
	devices map[string]devEntry

	capToDev  map[capKey]string
	nextCapID map[string]int

	devPeriodMS map[string]int
	devNextDue  map[string]time.Time

	history     map[capKey]*ring.Ring[types.HistoryPoint]
	pendingRead map[string]*bus.Message // devID -> read_now awaiting its result

	timer *time.Timer

	// Results fan-in shared by all bus workers.
	results chan Result
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "hal"})
	ctrlSub := s.conn.Subscribe(bus.Topic{"hal", "capability", "+", "+", "control", "+"})
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}

	for {
		if next := s.earliestDevDue(); next.IsZero() {
			resetTimer(s.timer, time.Hour)
		} else {
			resetTimer(s.timer, time.Until(next))
		}

		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg HALConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.applyConfig(ctx, cfg)
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// -----------------------------------------------------------------------------
// Control plane
// -----------------------------------------------------------------------------

// handleControl dispatches hal/capability/<kind>/<id:int>/control/<method>.
func (s *service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 6 {
		return
	}
	kind, _ := msg.Topic[2].(string)
	idNum, ok := asInt(msg.Topic[3])
	if !ok || kind == "" {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	key := capKey{kind: kind, id: idNum}
	devID, ok := s.capToDev[key]
	if !ok {
		s.replyErr(msg, errcode.UnknownCapability)
		return
	}
	method, _ := msg.Topic[5].(string)

	switch method {
	case "read_now":
		if _, busy := s.pendingRead[devID]; busy {
			s.replyErr(msg, errcode.Busy)
			return
		}
		if !s.submitMeasure(devID, true) {
			s.replyErr(msg, errcode.Busy)
			return
		}
		// Reply is deferred until the worker's result arrives.
		if len(msg.ReplyTo) != 0 {
			s.pendingRead[devID] = msg
		}
		s.bumpDevNext(devID, time.Now())

	case "set_rate":
		var req types.SetRate
		if err := decodeJSON(msg.Payload, &req); err != nil || req.PeriodMs <= 0 {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		s.devPeriodMS[devID] = mathx.Clamp(req.PeriodMs, 200, 3_600_000)
		s.bumpDevNext(devID, time.Now())
		s.replyOK(msg, map[string]any{"period_ms": s.devPeriodMS[devID]})

	case "history":
		var req types.HistoryReq
		_ = decodeJSON(msg.Payload, &req)
		s.replyOK(msg, map[string]any{"history": s.snapshotHistory(key, req.N)})

	default:
		ent := s.devices[devID]
		if ent.adaptor == nil {
			s.replyErr(msg, errcode.UnknownDevice)
			return
		}
		res, err := ent.adaptor.Control(kind, method, msg.Payload)
		if err != nil {
			s.replyErr(msg, controlErrCode(err))
			return
		}
		s.replyOK(msg, map[string]any{"result": res})
	}
}

func controlErrCode(err error) errcode.Code {
	switch err {
	case ErrUnsupported:
		return errcode.Unsupported
	case ErrNotReady:
		return errcode.NotReady
	}
	if c := errcode.Of(err); c != errcode.Error {
		return c
	}
	return errcode.MapDriverErr(err)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(ctx context.Context, cfg HALConfig) {
	seen := map[string]struct{}{}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		// Already present: config is idempotent per device id.
		if _, exists := s.devices[d.ID]; exists {
			continue
		}
		b, ok := findBuilder(d.Type)
		if !ok {
			continue
		}
		in := BuildInput{
			Ctx:        ctx,
			Buses:      s.i2cFactory,
			DeviceID:   d.ID,
			Type:       d.Type,
			ParamsJSON: d.Params,
		}
		in.BusRef.Type = d.BusRef.Type
		in.BusRef.ID = d.BusRef.ID
		out, err := b.Build(in)
		if err != nil || out.Adaptor == nil {
			continue
		}

		if _, ok := s.workers[out.BusID]; !ok {
			w := NewWorker(WorkerConfig{}, s.results)
			w.Start(ctx)
			s.workers[out.BusID] = w
		}

		histLen := out.HistoryLen
		if histLen <= 0 {
			histLen = defaultHistory
		}
		entry := devEntry{adaptor: out.Adaptor, busID: out.BusID, caps: map[string]int{}}
		now := time.Now().UnixMilli()
		for _, ci := range out.Adaptor.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++

			entry.caps[ci.Kind] = id
			key := capKey{kind: ci.Kind, id: id}
			s.capToDev[key] = d.ID
			s.history[key] = ring.New[types.HistoryPoint](histLen)

			s.pubRet(capTopicInt(ci.Kind, id, "info"), ci.Info)
			s.pubRet(capTopicInt(ci.Kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkUp, TS: now})
		}
		s.devices[d.ID] = entry

		if out.SampleEvery > 0 {
			s.devPeriodMS[d.ID] = mathx.Clamp(int(out.SampleEvery/time.Millisecond), 200, 3_600_000)
			s.devNextDue[d.ID] = time.Now().Add(200 * time.Millisecond)
		}
	}

	// Tidy-up: remove devices dropped from config.
	for devID, ent := range s.devices {
		if _, ok := seen[devID]; ok {
			continue
		}
		now := time.Now().UnixMilli()
		for kind, id := range ent.caps {
			s.pubRet(capTopicInt(kind, id, "info"), nil)
			s.pubRet(capTopicInt(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDown, TS: now})
			key := capKey{kind: kind, id: id}
			delete(s.capToDev, key)
			delete(s.history, key)
		}
		if req, ok := s.pendingRead[devID]; ok {
			delete(s.pendingRead, devID)
			s.replyErr(req, errcode.UnknownDevice)
		}
		delete(s.devices, devID)
		delete(s.devPeriodMS, devID)
		delete(s.devNextDue, devID)
	}
}

// -----------------------------------------------------------------------------
// Results and helpers
// -----------------------------------------------------------------------------

func (s *service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	w := s.workers[ent.busID]
	if w == nil {
		return false
	}
	return w.Submit(MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *service) bumpDevNext(devID string, from time.Time) {
	period := time.Duration(mathx.Clamp(s.devPeriodMS[devID], 200, 3_600_000)) * time.Millisecond
	s.devNextDue[devID] = from.Add(period)
}

func (s *service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

func (s *service) handleResult(r Result) {
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	now := time.Now().UnixMilli()

	if r.Err != nil {
		code := errcode.MapDriverErr(r.Err)
		for kind, id := range ent.caps {
			s.pubRet(capTopicInt(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDegraded, TS: now, Error: string(code)})
		}
		if req, ok := s.pendingRead[r.ID]; ok {
			delete(s.pendingRead, r.ID)
			s.replyErr(req, code)
		}
		return
	}

	var summary any
	for _, rd := range r.Sample {
		if rd.Kind == kindEnvSummary {
			summary = rd.Payload
			continue
		}
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.conn.Publish(s.conn.NewMessage(capTopicInt(rd.Kind, id, "value"), rd.Payload, false))
		s.pubRet(capTopicInt(rd.Kind, id, "state"),
			types.CapabilityStatus{Link: types.LinkUp, TS: now})
		s.recordHistory(capKey{kind: rd.Kind, id: id}, rd)
	}
	if req, ok := s.pendingRead[r.ID]; ok {
		delete(s.pendingRead, r.ID)
		s.replyOK(req, map[string]any{"reading": summary})
	}
}

func (s *service) recordHistory(key capKey, rd Reading) {
	rg := s.history[key]
	if rg == nil {
		return
	}
	switch v := rd.Payload.(type) {
	case types.TemperatureValue:
		rg.Push(types.HistoryPoint{TS: rd.TsMs, V: int32(v.DeciC)})
	case types.HumidityValue:
		rg.Push(types.HistoryPoint{TS: rd.TsMs, V: int32(v.RHx100)})
	}
}

func (s *service) snapshotHistory(key capKey, n int) types.History {
	rg := s.history[key]
	if rg == nil {
		return types.History{}
	}
	pts := rg.Snapshot(nil)
	if n > 0 && len(pts) > n {
		pts = pts[len(pts)-n:]
	}
	return types.History{Points: pts}
}

func (s *service) publishState(level, status string, err error) {
	st := types.HALState{Level: level, Status: status, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(bus.Topic{"hal", "state"}, st, true))
}

func (s *service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *bus.Message, code errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "error": string(code)}, false)
}

func capTopicInt(kind string, id int, rest ...bus.Token) bus.Topic {
	base := bus.Topic{"hal", "capability", kind, id}
	return append(base, rest...)
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
