package device

import (
	"sync"

	"codeberg.org/mutker/ventctl/internal/hvac"
)

// ThermostatCache holds the most recent thermostat reading so that
// consumers constructed before the first poll can still resolve
// setpoints once one arrives.
type ThermostatCache struct {
	mu      sync.RWMutex
	current Thermostat
	primed  bool
}

func NewThermostatCache() *ThermostatCache {
	return &ThermostatCache{}
}

func (c *ThermostatCache) Update(t Thermostat) {
	c.mu.Lock()
	c.current = t
	c.primed = true
	c.mu.Unlock()
}

// Setpoint reports the active setpoint for the given mode. It returns
// false until the cache has been primed with a reading.
func (c *ThermostatCache) Setpoint(mode hvac.Mode) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.primed {
		return 0, false
	}
	return c.current.Setpoint(mode)
}
