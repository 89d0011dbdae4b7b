//go:build rp2040 || rp2350

// cmd/pico-env-main/main.go
//
// Firmware entry point for the Pico environmental node. Wires the hardware
// (I2C0 for the sensor, UART0 for the bridge link, USB CDC for the console)
// into the service stack and parks. All behaviour beyond pin mapping lives
// in the services; this file only injects platform resources.
package main

import (
	"context"
	"io"
	"time"

	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"

	"envsense-go/bus"
	"envsense-go/services/bridge"
	"envsense-go/services/config"
	"envsense-go/services/console"
	"envsense-go/services/hal"
	"envsense-go/services/heartbeat"
)

const deviceID = "pico-env"

func main() {
	time.Sleep(3 * time.Second) // let USB serial enumerate before first prints

	println("main: configuring i2c0")
	if err := machine.I2C0.Configure(machine.I2CConfig{
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
		Frequency: 400_000,
	}); err != nil {
		println("main: i2c0 configure failed:", err.Error())
	}

	bridge.UARTDial = dialUART

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)
	b := bus.NewBus(4)

	println("main: starting services")
	go hal.Run(ctx, b.NewConnection("hal"), rp2Buses{})
	go bridge.Start(ctx, b.NewConnection("bridge"))
	go console.Run(ctx, b.NewConnection("console"), serialRW{})
	(&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	// Config last: every service above blocks on its retained section.
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	println("main: up")
	select {}
}

// rp2Buses hands out the chip's I2C controllers by config id. The controller
// must already be configured; hal only transacts on it.
type rp2Buses struct{}

func (rp2Buses) ByID(id string) (drivers.I2C, bool) {
	switch id {
	case "i2c0":
		return machine.I2C0, true
	case "i2c1":
		return machine.I2C1, true
	}
	return nil, false
}

// dialUART opens the hardware UART named by the bridge config. Closing the
// link is a no-op: the peripheral stays configured for the next dial.
func dialUART(ctx context.Context, u bridge.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartx.UART0
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(u.Baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	return &uartRWC{ctx: ctx, u: hw}, nil
}

type uartRWC struct {
	ctx context.Context
	u   *uartx.UART
}

func (c *uartRWC) Read(p []byte) (int, error)  { return c.u.RecvSomeContext(c.ctx, p) }
func (c *uartRWC) Write(p []byte) (int, error) { return c.u.Write(p) }
func (c *uartRWC) Close() error                { return nil }

// serialRW adapts the USB CDC serial to io.ReadWriter for the console.
// machine.Serial has no blocking read, so Read polls the receive buffer.
type serialRW struct{}

func (serialRW) Read(p []byte) (int, error) {
	for {
		if machine.Serial.Buffered() > 0 {
			n := 0
			for n < len(p) && machine.Serial.Buffered() > 0 {
				b, err := machine.Serial.ReadByte()
				if err != nil {
					if n > 0 {
						return n, nil
					}
					return 0, err
				}
				p[n] = b
				n++
			}
			return n, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (serialRW) Write(p []byte) (int, error) { return machine.Serial.Write(p) }
