// Package sensor implements a single-peripheral BLE temperature client.
//
// A Client drives one connection lifecycle:
//
//	Idle → Scanning → Connecting → Connected → DiscoveringServices →
//	DiscoveringCharacteristics → ReadingOrSubscribing → Receiving
//
// with a terminal Failed state reachable from every active state. The client
// issues requests through a device.Transport and advances only when the
// transport reports back through the device.EventHandler methods the Client
// implements. Readings are decoded from the characteristic payload and
// published to observers.
package sensor
