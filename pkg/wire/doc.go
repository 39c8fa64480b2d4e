// Package wire defines the messages exchanged on the session bus and their
// CBOR encoding.
//
// Every message travels inside an Envelope. The envelope carries the message
// Kind (the discriminant of the body), the routing key it is published
// under, and for request/reply exchanges a correlation id and a reply-to
// routing key. The body is the CBOR encoding of one of the message types in
// this package.
//
// # Routing keys
//
// Routing keys are dot separated words. Inbound control events for the
// coordinator live under "control.", notifications published by the
// coordinator under "event.", and service requests under "service.".
// A request published under R is answered on R + ".reply".
//
// # CBOR Integer Keys
//
// Envelopes and bodies use integer keys for compactness.
package wire
