// Package bus provides topic-based publish/subscribe between the components
// of a test session, and a synchronous request/reply call on top of it.
//
// Routing keys are dotted words. Subscription patterns use AMQP topic
// wildcards: "*" matches exactly one word, "#" matches zero or more words.
//
// Two brokers implement Bus: Memory, an in-process broker, and the websocket
// client in package transport. Client adds typed messages, the event log tap
// and Request on top of any Bus.
package bus
