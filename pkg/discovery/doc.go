// Package discovery advertises and finds session bus brokers with mDNS/DNS-SD.
//
// Brokers register the _ioppytest-bus._tcp service. The instance name is the
// broker name chosen by the operator. TXT records carry:
//   - path: the websocket path of the bus (usually /bus)
//   - ver: the broker version
//   - sid: the session id, when the broker is bound to one session
//
// Components started with "-bus mdns" browse for the service and connect to
// the first broker found, optionally restricted to a session id.
package discovery
