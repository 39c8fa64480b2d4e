// Package transport carries the session bus over websocket connections.
//
// A Server wraps an in-process bus.Memory and exposes it on /bus. Each
// websocket message is one CBOR-encoded Frame. Clients publish envelopes,
// manage subscriptions with acknowledged requests, and receive deliveries
// tagged with their subscription id:
//
//	client                        server
//	  | -- subscribe(seq, id) ----> |
//	  | <----------- ack(seq) ----- |
//	  | -- publish(envelope) -----> |  route through bus.Memory
//	  | <-- deliver(id, envelope) - |
//
// Client implements bus.Bus, so components are unaware whether they run
// against the in-process broker or a remote one.
//
// # Keep-Alive
//
// Clients ping the server with websocket control frames:
//   - Ping interval: 10 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
//
// The server also exposes /healthz and /status for operators.
package transport
