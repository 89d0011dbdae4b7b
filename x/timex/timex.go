// Package timex centralises the one clock representation that crosses the
// wire: Unix milliseconds, which TinyGo and hosts agree on and which fits
// JSON numbers without float trouble.
package timex

import "time"

// NowMs returns the current time as Unix milliseconds.
func NowMs() int64 { return time.Now().UnixMilli() }
