package sht3x

import "testing"

func TestDecodeStatus(t *testing.T) {
	cases := []struct {
		name string
		word uint16
		want Status
	}{
		{
			"power-on with pending alert",
			0x8010,
			Status{LastCommandProcessed: true, SystemReset: true, AlertPending: true},
		},
		{
			"all clear",
			0x0000,
			Status{LastCommandProcessed: true},
		},
		{
			"checksum failed",
			0x0001,
			Status{ChecksumFailed: true, LastCommandProcessed: true},
		},
		{
			"command rejected",
			0x0002,
			Status{},
		},
		{
			"temperature alert",
			0x0400,
			Status{LastCommandProcessed: true, TemperatureAlert: true},
		},
		{
			"humidity alert",
			0x0800,
			Status{LastCommandProcessed: true, HumidityAlert: true},
		},
		{
			"heater on",
			0x2000,
			Status{LastCommandProcessed: true, HeaterOn: true},
		},
		{
			"reserved bits ignored",
			0x53EC,
			Status{LastCommandProcessed: true},
		},
		{
			"everything at once",
			0xAC13,
			Status{
				ChecksumFailed:   true,
				SystemReset:      true,
				TemperatureAlert: true,
				HumidityAlert:    true,
				HeaterOn:         true,
				AlertPending:     true,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecodeStatus(tc.word); got != tc.want {
				t.Fatalf("DecodeStatus(%#04x) = %+v, want %+v", tc.word, got, tc.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if got := (Status{LastCommandProcessed: true}).String(); got != "ok" {
		t.Errorf("clear status String() = %q, want \"ok\"", got)
	}
	s := Status{SystemReset: true, AlertPending: true, LastCommandProcessed: true}
	if got := s.String(); got != "system_reset,alert_pending" {
		t.Errorf("String() = %q", got)
	}
	s = Status{}
	if got := s.String(); got != "command_failed" {
		t.Errorf("String() = %q", got)
	}
}
