package sim

import "tinygo.org/x/drivers"

// Factory maps configured bus ids onto simulated buses. It satisfies the
// HAL's I2CBusFactory without importing it.
type Factory map[string]drivers.I2C

func (f Factory) ByID(id string) (drivers.I2C, bool) {
	b, ok := f[id]
	return b, ok
}
