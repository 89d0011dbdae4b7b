package conv

import "testing"

func TestUtoa(t *testing.T) {
	cases := []struct {
		n    uint64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{42, "42"},
		{65535, "65535"},
		{18446744073709551615, "18446744073709551615"},
	}
	var buf [20]byte
	for _, c := range cases {
		if got := string(Utoa(buf[:], c.n)); got != c.want {
			t.Errorf("Utoa(%d) = %q, want %q", c.n, got, c.want)
		}
	}
	if got := Utoa(buf[:2], 12345); string(got) != "45" {
		t.Errorf("short buffer: got %q", got)
	}
}

func TestItoa(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{215, "215"},
		{-5, "-5"},
		{-450, "-450"},
		{-9223372036854775808, "-9223372036854775808"},
	}
	var buf [21]byte
	for _, c := range cases {
		if got := string(Itoa(buf[:], c.n)); got != c.want {
			t.Errorf("Itoa(%d) = %q, want %q", c.n, got, c.want)
		}
	}
	// No room for the sign: the magnitude alone fills the buffer.
	if got := string(Itoa(buf[:2], -45)); got != "45" {
		t.Errorf("short buffer: got %q", got)
	}
}
