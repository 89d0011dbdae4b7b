package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPicoEnv = `{
  "hal": {
    "version": 1,
    "buses": [
      {"id": "i2c0", "type": "i2c", "params": {"freq_hz": 400000}}
    ],
    "devices": [
      {
        "id": "sht3x0",
        "type": "sht3x",
        "bus_ref": {"id": "i2c0", "type": "i2c"},
        "params": {
          "addr": 68,
          "mode": "periodic",
          "accuracy": "high",
          "unit": "celsius",
          "rate_hz": 1,
          "period_ms": 2000,
          "history": 64
        }
      }
    ]
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {"baud": 115200, "rx_pin": 1, "tx_pin": 0}
    },
    "export": ["hal/capability/#", "system/heartbeat"],
    "remote_prefix": "remote",
    "ping_ms": 5000
  },
  "heartbeat": {
    "interval": 2
  },
  "console": {
    "echo": true,
    "prompt": "> "
  }
}`

// cfgEnvTest drives the host self-test: same stack, simulated bus, short
// periods so the run finishes in seconds.
const cfgEnvTest = `{
  "hal": {
    "version": 1,
    "buses": [
      {"id": "sim0", "type": "i2c"}
    ],
    "devices": [
      {
        "id": "sht3x0",
        "type": "sht3x",
        "bus_ref": {"id": "sim0", "type": "i2c"},
        "params": {
          "addr": 68,
          "mode": "polling",
          "accuracy": "high",
          "unit": "celsius",
          "period_ms": 500,
          "history": 16
        }
      }
    ]
  },
  "bridge": {
    "transport": {"type": "pipe"},
    "export": ["hal/capability/+/+/value", "system/heartbeat"],
    "remote_prefix": "remote",
    "ping_ms": 500
  },
  "heartbeat": {
    "interval": 1
  },
  "console": {
    "echo": false,
    "prompt": "> "
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico-env": []byte(cfgPicoEnv),
	"envtest":  []byte(cfgEnvTest),
}
