// Package testsuite holds the test description model that a test session
// operates on: test suites made of test cases, test cases made of steps,
// and the test configurations describing the network topology the cases
// run on.
//
// A TestSuite owns the navigation state of a session: the current test case,
// the step cursor of that case, the node addressing table and the session
// configuration. None of the types in this package are safe for concurrent
// use; a session is driven from a single goroutine.
package testsuite
