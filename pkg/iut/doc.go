// Package iut drives implementations under test from the session bus.
//
// An Agent plays one node of a test configuration. It answers the
// configuration requests of the coordinator, executes the stimuli and
// verify steps addressed to its node through an Adapter, and skips the test
// cases the adapter does not implement.
//
// Adapters declare optional capabilities by implementing additional
// interfaces:
//
//	Configurer   configures the node for a test case and reports its address
//	Verifier     answers verify steps
//	Capabilities lists the implemented test cases and stimuli
//
// NewAgent validates the adapter and its declared capabilities once, so that
// a misconfigured adapter fails before the session starts.
//
// CommandAdapter is an Adapter that runs shell-quoted commands read from a
// YAML document.
package iut
