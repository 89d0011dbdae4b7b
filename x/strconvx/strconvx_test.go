package strconvx

import "testing"

// Round trips must hold on both halves: strconv on host, the compact
// implementation on rp2 builds.
func TestItoaAtoiRoundTrip(t *testing.T) {
	for _, v := range []int{0, 1, -1, 42, 65535, -99999} {
		s := Itoa(v)
		got, err := Atoi(s)
		if err != nil {
			t.Fatalf("Atoi(%q): %v", s, err)
		}
		if got != v {
			t.Fatalf("Itoa/Atoi: want %d, got %d", v, got)
		}
	}
}

func TestFormatBases(t *testing.T) {
	cases := []struct {
		u    uint64
		base int
		want string
	}{
		{0, 2, "0"},
		{5, 2, "101"},
		{255, 16, "ff"},
		{255, 10, "255"},
		{35, 36, "z"},
	}
	for _, c := range cases {
		if got := FormatUint(c.u, c.base); got != c.want {
			t.Fatalf("FormatUint(%d,%d) = %q, want %q", c.u, c.base, got, c.want)
		}
	}
	if got := FormatInt(-15, 10); got != "-15" {
		t.Fatalf("FormatInt(-15,10) = %q", got)
	}
}

func TestParseUintBases(t *testing.T) {
	cases := []struct {
		s    string
		base int
		want uint64
	}{
		{"0", 0, 0},
		{"101", 2, 5},
		{"0b101", 0, 5},
		{"075", 0, 61}, // legacy octal, per strconv
		{"0o77", 0, 63},
		{"0xff", 0, 255},
		{"0Xff", 0, 255},
		{"FF", 16, 255},
	}
	for _, c := range cases {
		got, err := ParseUint(c.s, c.base, 64)
		if err != nil {
			t.Fatalf("ParseUint(%q,%d): %v", c.s, c.base, err)
		}
		if got != c.want {
			t.Fatalf("ParseUint(%q,%d) = %d, want %d", c.s, c.base, got, c.want)
		}
	}
	for _, s := range []string{"", "g", "0x", "2", "0b102"} {
		if _, err := ParseUint(s, 2, 64); err == nil {
			t.Fatalf("ParseUint(%q,2): expected error", s)
		}
	}
}

func TestParseIntSigns(t *testing.T) {
	cases := []struct {
		s    string
		base int
		want int64
	}{
		{"+10", 10, 10},
		{"-10", 10, -10},
		{"0b11", 0, 3},
		{"-0x0f", 0, -15},
	}
	for _, c := range cases {
		got, err := ParseInt(c.s, c.base, 64)
		if err != nil {
			t.Fatalf("ParseInt(%q,%d): %v", c.s, c.base, err)
		}
		if got != c.want {
			t.Fatalf("ParseInt(%q,%d) = %d, want %d", c.s, c.base, got, c.want)
		}
	}
	if _, err := ParseInt("18446744073709551615", 10, 64); err == nil {
		t.Fatalf("ParseInt: value above int64 range must error")
	}
}

func TestFormatParseFloat(t *testing.T) {
	cases := []struct {
		in   float64
		prec int
		want string
	}{
		{0, 0, "0"},
		{12.3, 1, "12.3"},
		{12.345, 2, "12.35"},
		{-1.25, 2, "-1.25"},
	}
	for _, c := range cases {
		got := FormatFloat(c.in, 'f', c.prec, 64)
		if got != c.want {
			t.Fatalf("FormatFloat(%v,'f',%d) = %q, want %q", c.in, c.prec, got, c.want)
		}
		v, err := ParseFloat(got, 64)
		if err != nil {
			t.Fatalf("ParseFloat(%q): %v", got, err)
		}
		if FormatFloat(v, 'f', c.prec, 64) != c.want {
			t.Fatalf("float round trip broke for %q", c.want)
		}
	}
	if _, err := ParseFloat("12.3.4", 64); err == nil {
		t.Fatalf("ParseFloat: malformed input must error")
	}
}
