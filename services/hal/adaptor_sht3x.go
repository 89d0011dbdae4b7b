// services/hal/adaptor_sht3x.go
package hal

import (
	"context"
	"errors"
	"sync"
	"time"

	"envsense-go/drivers/sht3x"
	"envsense-go/errcode"
	"envsense-go/types"
	"envsense-go/x/conv"
)

func init() { RegisterBuilder("sht3x", sht3xBuilder{}) }

// sht3xParams is the device params shape under config/hal.
type sht3xParams struct {
	Addr     int     `json:"addr,omitempty"`      // 0x44 or 0x45; default 0x44
	Mode     string  `json:"mode,omitempty"`      // "polling" (default) or "periodic"
	Accuracy string  `json:"accuracy,omitempty"`  // "high" (default), "medium", "low"
	Unit     string  `json:"unit,omitempty"`      // "celsius" (default) or "fahrenheit"
	RateHz   float64 `json:"rate_hz,omitempty"`   // periodic cadence: 0.5, 1, 2, 4, 10
	PeriodMs int     `json:"period_ms,omitempty"` // publish period; default 2000
	History  int     `json:"history,omitempty"`   // ring capacity; 0 => service default
}

type sht3xBuilder struct{}

func (sht3xBuilder) Build(in BuildInput) (BuildOutput, error) {
	if in.BusRef.Type != "i2c" || in.BusRef.ID == "" {
		return BuildOutput{}, errcode.InvalidParams
	}
	i2c, ok := in.Buses.ByID(in.BusRef.ID)
	if !ok {
		return BuildOutput{}, errcode.NotConfigured
	}
	var p sht3xParams
	if err := decodeJSON(in.ParamsJSON, &p); err != nil {
		return BuildOutput{}, errcode.InvalidParams
	}

	addr := uint16(p.Addr)
	if addr == 0 {
		addr = sht3x.AddressA
	}
	unit := parseUnit(p.Unit)
	opts := []sht3x.Option{
		sht3x.WithAddress(addr),
		sht3x.WithAccuracy(parseAccuracy(p.Accuracy)),
		sht3x.WithUnit(unit),
	}

	a := &sht3xAdaptor{
		id:    in.DeviceID,
		busID: in.BusRef.ID,
		addr:  addr,
		unit:  unit,
	}
	switch p.Mode {
	case "periodic":
		a.rate = parseRate(p.RateHz)
		a.per = sht3x.NewPeriodic(i2c, a.rate, opts...)
		a.ops = a.per
	default:
		poll := sht3x.New(i2c, opts...)
		// Short poll interval: the collect timeout budgets the whole read.
		poll.SetInterval(5 * time.Millisecond)
		a.poll = poll
		a.ops = poll
	}

	period := time.Duration(p.PeriodMs) * time.Millisecond
	if p.PeriodMs <= 0 {
		period = 2 * time.Second
	}
	return BuildOutput{
		Adaptor:     a,
		BusID:       in.BusRef.ID,
		SampleEvery: period,
		HistoryLen:  p.History,
	}, nil
}

// deviceOps is the device-level surface shared by both mode handles.
type deviceOps interface {
	SetHeater(on bool) error
	Heater() bool
	Status() (sht3x.Status, error)
	ClearStatus() error
	SoftReset() error
	SetUnit(sht3x.Unit)
	SetAccuracy(sht3x.Accuracy)
	Address() uint16
}

var (
	_ deviceOps = (*sht3x.Polling)(nil)
	_ deviceOps = (*sht3x.Periodic)(nil)
)

// sht3xAdaptor drives one sensor in either polling or periodic mode. The
// mutex serialises the worker's Trigger/Collect with control calls arriving
// from the service loop; the driver handle owns its bus and must not see
// interleaved transactions.
type sht3xAdaptor struct {
	mu    sync.Mutex
	id    string
	busID string
	addr  uint16
	unit  sht3x.Unit

	poll *sht3x.Polling
	per  *sht3x.Periodic
	rate sht3x.Rate
	ops  deviceOps

	started bool // periodic acquisition running
}

func (a *sht3xAdaptor) ID() string { return a.id }

func (a *sht3xAdaptor) Capabilities() []CapInfo {
	return []CapInfo{
		{Kind: string(types.KindTemperature), Info: types.Info{
			SchemaVersion: 1, Driver: "sht3x",
			Detail: types.TemperatureInfo{Sensor: "sht3x", Addr: a.addr, Bus: a.busID},
		}},
		{Kind: string(types.KindHumidity), Info: types.Info{
			SchemaVersion: 1, Driver: "sht3x",
			Detail: types.HumidityInfo{Sensor: "sht3x", Addr: a.addr, Bus: a.busID},
		}},
	}
}

func (a *sht3xAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.per == nil {
		return 0, nil // polling mode runs the whole cycle in Collect
	}
	if !a.started {
		if err := a.per.Measure(); err != nil {
			return 0, err
		}
		a.started = true
		// First sample lands one period after the start command.
		return a.rate.Period() + 10*time.Millisecond, nil
	}
	return 0, nil
}

func (a *sht3xAdaptor) Collect(ctx context.Context) (Sample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var (
		r   sht3x.Reading
		err error
	)
	if a.per != nil {
		r, err = a.per.Read()
		if errors.Is(err, sht3x.ErrWriteRead) {
			return nil, ErrNotReady // no sample buffered yet
		}
	} else {
		r, err = a.poll.Read()
	}
	if err != nil {
		return nil, err
	}
	ts := time.Now().UnixMilli()
	return Sample{
		{Kind: string(types.KindTemperature), TsMs: ts,
			Payload: types.TemperatureValue{DeciC: conv.DeciC(r.Temperature)}},
		{Kind: string(types.KindHumidity), TsMs: ts,
			Payload: types.HumidityValue{RHx100: conv.RHx100(r.Humidity)}},
		{Kind: kindEnvSummary, TsMs: ts,
			Payload: types.EnvReading{
				TempDeci: conv.DeciC(r.Temperature),
				RHx100:   conv.RHx100(r.Humidity),
				Unit:     unitName(a.unit),
				TS:       ts,
			}},
	}, nil
}

func (a *sht3xAdaptor) Control(kind, method string, payload any) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch method {
	case "set_heater":
		var req types.SetHeater
		if err := decodeJSON(payload, &req); err != nil {
			return nil, errcode.InvalidPayload
		}
		if err := a.ops.SetHeater(req.On); err != nil {
			return nil, err
		}
		return map[string]any{"heater": a.ops.Heater()}, nil

	case "status":
		st, err := a.ops.Status()
		if err != nil {
			return nil, err
		}
		return types.SensorStatus{
			ChecksumFailed:   st.ChecksumFailed,
			CommandFailed:    !st.LastCommandProcessed,
			SystemReset:      st.SystemReset,
			TemperatureAlert: st.TemperatureAlert,
			HumidityAlert:    st.HumidityAlert,
			HeaterOn:         st.HeaterOn,
			AlertPending:     st.AlertPending,
		}, nil

	case "clear_status":
		return nil, a.ops.ClearStatus()

	case "soft_reset":
		if err := a.ops.SoftReset(); err != nil {
			return nil, err
		}
		a.started = false // reset stops a periodic acquisition
		return nil, nil

	case "set_unit":
		var req types.SetUnit
		if err := decodeJSON(payload, &req); err != nil {
			return nil, errcode.InvalidPayload
		}
		u, ok := unitFromName(req.Unit)
		if !ok {
			return nil, errcode.InvalidParams
		}
		a.unit = u
		a.ops.SetUnit(u)
		return map[string]any{"unit": unitName(u)}, nil

	default:
		return nil, ErrUnsupported
	}
}

func parseAccuracy(s string) sht3x.Accuracy {
	switch s {
	case "medium":
		return sht3x.AccuracyMedium
	case "low":
		return sht3x.AccuracyLow
	default:
		return sht3x.AccuracyHigh
	}
}

func parseUnit(s string) sht3x.Unit {
	u, _ := unitFromName(s)
	return u
}

func unitFromName(s string) (sht3x.Unit, bool) {
	switch s {
	case "fahrenheit", "f":
		return sht3x.Fahrenheit, true
	case "celsius", "c":
		return sht3x.Celsius, true
	default:
		return sht3x.Celsius, false
	}
}

func unitName(u sht3x.Unit) string {
	if u == sht3x.Fahrenheit {
		return "fahrenheit"
	}
	return "celsius"
}

func parseRate(hz float64) sht3x.Rate {
	switch {
	case hz == 0:
		return sht3x.Rate1
	case hz <= 0.5:
		return sht3x.RateHalf
	case hz <= 1:
		return sht3x.Rate1
	case hz <= 2:
		return sht3x.Rate2
	case hz <= 4:
		return sht3x.Rate4
	default:
		return sht3x.Rate10
	}
}
