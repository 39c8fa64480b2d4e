package testsuite

import (
	"fmt"
	"slices"
)

// Link is a network link between two nodes of a test configuration.
type Link struct {
	ID            string
	Nodes         []string
	CaptureFilter string
}

// Address is the IPv6 addressing of a node, split as the IUTs report it.
type Address struct {
	Prefix string
	Host   string
}

// String returns the address in "prefix::host" form.
func (a Address) String() string {
	return a.Prefix + "::" + a.Host
}

// TestConfig describes the topology a test case runs on.
type TestConfig struct {
	ID          string
	URI         string
	Description string
	Nodes       []string
	Topology    []Link

	// DefaultAddressing maps node names to the address used until the IUT
	// reports its own configuration.
	DefaultAddressing map[string]Address
}

// Link returns the link with the given id, or the first link when id is empty.
func (c *TestConfig) Link(id string) (Link, bool) {
	if len(c.Topology) == 0 {
		return Link{}, false
	}
	if id == "" {
		return c.Topology[0], true
	}
	for _, l := range c.Topology {
		if l.ID == id {
			return l, true
		}
	}
	return Link{}, false
}

// TargetNode returns the peer of origin on the first link that connects it.
func (c *TestConfig) TargetNode(origin string) (string, error) {
	for _, l := range c.Topology {
		if !slices.Contains(l.Nodes, origin) {
			continue
		}
		for _, n := range l.Nodes {
			if n != origin {
				return n, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s in configuration %s", ErrNodeNotOnLink, origin, c.ID)
}
