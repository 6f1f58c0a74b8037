// Package device defines the transport-neutral Bluetooth Low Energy vocabulary
// shared by the sensor client and the platform transports.
//
// The sensor client never talks to a Bluetooth stack directly. It issues
// fire-and-forget requests through a Transport and receives the outcome later
// through the EventHandler callbacks. This keeps the connection lifecycle
// testable with a recording fake and lets each platform backend (go-ble on
// macOS and Linux) live in its own package.
package device
