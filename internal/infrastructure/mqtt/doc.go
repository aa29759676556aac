// Package mqtt announces moonrig printer commands to an MQTT broker.
//
// This package manages:
//   - A publish-only connection to the broker (Mosquitto or similar)
//   - Motion and thermal command announcements as JSON
//   - Retained online/offline status per printer instance
//   - Last Will and Testament (LWT) for crash detection
//
// # Architecture
//
// moonrig talks to the printer over HTTP; MQTT is a one-way event feed so
// dashboards and automations can watch what operators do without polling
// Moonraker themselves. The client never subscribes.
//
//	moonrig → MQTT Broker → dashboards / automations
//
// Topics follow <prefix>/<instance>/<leaf>:
//
//	moonrig/voron-350/motion   - motion command announcements
//	moonrig/voron-350/thermal  - thermal command announcements
//	moonrig/voron-350/status   - retained online/offline (also the LWT topic)
//
// Auto-reconnect is disabled. moonrig runs one operator command and exits,
// so a lost broker link fails the announcement instead of retrying after
// the command has finished. Announcements are best effort: a down broker
// never blocks a printer command.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Printer.Instance)
//	if errors.Is(err, mqtt.ErrDisabled) {
//	    // announcements off, carry on without them
//	}
//	defer client.Close()
//
//	client.PublishMotion(map[string]any{
//	    "command": "G28",
//	    "outcome": "sent",
//	})
package mqtt
