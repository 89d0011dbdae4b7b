package sht3x

// command is one 16-bit command word as the two bytes written on the wire.
type command [2]byte

// Device-level commands (fixed words, per datasheet).
var (
	cmdHeaterOn     = command{0x30, 0x6D}
	cmdHeaterOff    = command{0x30, 0x66}
	cmdBreak        = command{0x30, 0x93}
	cmdSoftReset    = command{0x30, 0xA2}
	cmdGeneralReset = command{0x00, 0x06}
	cmdClearStatus  = command{0x30, 0x41}
	cmdReadStatus   = command{0xF3, 0x2D}

	// Periodic mode: fetch the most recent result.
	cmdFetch = command{0xE0, 0x00}
	// Periodic mode with accelerated response time; overrides rate/accuracy.
	cmdPeriodicART = command{0x2B, 0x32}
)

// cmdMeasureOneShot encodes a single-shot conversion without clock
// stretching. The result is read back separately once conversion is done.
func cmdMeasureOneShot(a Accuracy) command {
	switch a {
	case AccuracyMedium:
		return command{0x24, 0x0B}
	case AccuracyLow:
		return command{0x24, 0x16}
	default:
		return command{0x24, 0x00}
	}
}

// cmdMeasurePolled encodes the single-shot variant used by the polling mode:
// the command is written once and the result is then polled with plain reads.
func cmdMeasurePolled(a Accuracy) command {
	switch a {
	case AccuracyMedium:
		return command{0x2C, 0x0D}
	case AccuracyLow:
		return command{0x2C, 0x10}
	default:
		return command{0x2C, 0x06}
	}
}

// periodicCmd holds the start-acquisition word for every rate/accuracy pair.
// The MSB is fixed per rate; the LSB table is irregular and copied verbatim
// from the datasheet.
var periodicCmd = [5][3]command{
	RateHalf: {
		AccuracyHigh:   {0x20, 0x32},
		AccuracyMedium: {0x20, 0x24},
		AccuracyLow:    {0x20, 0x2F},
	},
	Rate1: {
		AccuracyHigh:   {0x21, 0x30},
		AccuracyMedium: {0x21, 0x26},
		AccuracyLow:    {0x21, 0x2D},
	},
	Rate2: {
		AccuracyHigh:   {0x22, 0x36},
		AccuracyMedium: {0x22, 0x20},
		AccuracyLow:    {0x22, 0x2B},
	},
	Rate4: {
		AccuracyHigh:   {0x23, 0x34},
		AccuracyMedium: {0x23, 0x22},
		AccuracyLow:    {0x23, 0x29},
	},
	Rate10: {
		AccuracyHigh:   {0x27, 0x37},
		AccuracyMedium: {0x27, 0x21},
		AccuracyLow:    {0x27, 0x2A},
	},
}

func cmdMeasurePeriodic(r Rate, a Accuracy) command {
	if r > Rate10 {
		r = Rate1
	}
	if a > AccuracyLow {
		a = AccuracyHigh
	}
	return periodicCmd[r][a]
}

// Alert limit words: one read and one write command per limit register.
var alertReadCmd = [4]command{
	AlertHighSet:   {0xE1, 0x1F},
	AlertHighClear: {0xE1, 0x14},
	AlertLowClear:  {0xE1, 0x09},
	AlertLowSet:    {0xE1, 0x02},
}

var alertWriteCmd = [4]command{
	AlertHighSet:   {0x61, 0x1D},
	AlertHighClear: {0x61, 0x16},
	AlertLowClear:  {0x61, 0x0B},
	AlertLowSet:    {0x61, 0x00},
}
