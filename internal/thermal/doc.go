// Package thermal reads and sets bed and chamber temperatures through
// Moonraker.
//
// The bed is always heater_bed. Chambers have no canonical Klipper
// name, so reads probe temperature_sensor/heater_generic/
// temperature_fan variants most specific first, and writes pick
// SET_HEATER_TEMPERATURE or SET_TEMPERATURE_FAN_TARGET based on what
// the printer actually has loaded. Target ranges are enforced before
// any G-code is sent: 0-150°C bed, 0-90°C chamber.
//
// Driver is not synchronized; callers serialize externally.
package thermal
