// Package moonraker is a synchronous REST client for the Moonraker API
// server that fronts Klipper.
//
// Only the endpoints the rest of the system needs are implemented:
// printer info, object query/list, G-code script submission, firmware
// restart, and the JWT session endpoints. Responses arrive wrapped in
// Moonraker's {"result": ...} envelope; errors in {"error": ...}. The
// client unwraps both.
//
// # Authentication
//
// Three modes, matching Moonraker's own:
//
//   - none: open trusted network, no headers
//   - API key: X-Api-Key on every request
//   - JWT: username/password login on first use, access token kept
//     fresh via /access/refresh_jwt, re-login when refresh fails
//
// # Usage
//
//	client, err := moonraker.New(moonraker.Config{
//	    BaseURL: "http://voron.local:7125",
//	    Timeout: 10 * time.Second,
//	})
//	if err != nil {
//	    return err
//	}
//
//	info, err := client.PrinterInfo(ctx)
//	if err != nil {
//	    return err
//	}
//	if !info.Ready() {
//	    return fmt.Errorf("printer not ready: %s", info.State)
//	}
//
// # Thread Safety
//
// Client is not synchronized. The command model is a single synchronous
// caller; wrap calls in your own mutex if sharing across goroutines.
package moonraker
