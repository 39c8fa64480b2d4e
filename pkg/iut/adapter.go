package iut

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
)

// Adapter errors.
var (
	ErrInvalidAdapter = errors.New("invalid adapter")
	ErrNotImplemented = errors.New("step not implemented")
)

// StepRequest is a step addressed to the node of an adapter.
type StepRequest struct {
	TestCaseID    string
	StepID        string
	TargetAddress string
	Description   []string
}

// Address is the data plane address of a node.
type Address struct {
	Prefix string
	Host   string
}

// IsZero reports whether no address part is set.
func (a Address) IsZero() bool {
	return a.Prefix == "" && a.Host == ""
}

// Adapter executes the stimuli of one node. Execution must honor ctx.
type Adapter interface {
	Node() string
	Stimuli(ctx context.Context, req StepRequest) error
}

// Configurer is implemented by adapters that set their node up per test
// case. A zero address keeps the address known to the coordinator.
type Configurer interface {
	Configure(ctx context.Context, testCaseID string) (Address, error)
}

// Verifier is implemented by adapters that can check verify steps. Adapters
// without it confirm every verify step.
type Verifier interface {
	Verify(ctx context.Context, req StepRequest) (bool, error)
}

// Capabilities is implemented by adapters that only support part of a test
// suite. An empty list means everything is supported.
type Capabilities interface {
	TestCases() []string
	StimuliSteps() []string
}

// capabilities is the validated form of an adapter's declarations.
type capabilities struct {
	testCases map[string]bool
	stimuli   map[string]bool
}

func (c capabilities) implements(testCaseID string) bool {
	return len(c.testCases) == 0 || c.testCases[testsuite.NormalizeTestCaseID(testCaseID)]
}

func (c capabilities) hasStimuli(stepID string) bool {
	return len(c.stimuli) == 0 || c.stimuli[stepID]
}

// validateAdapter checks the node name and the declared capabilities.
func validateAdapter(a Adapter) (capabilities, error) {
	if a == nil {
		return capabilities{}, fmt.Errorf("%w: nil adapter", ErrInvalidAdapter)
	}
	node := a.Node()
	if node == "" || strings.TrimSpace(node) != node {
		return capabilities{}, fmt.Errorf("%w: bad node name %q", ErrInvalidAdapter, node)
	}

	caps, ok := a.(Capabilities)
	if !ok {
		return capabilities{}, nil
	}
	testCases, err := idSet(caps.TestCases(), testsuite.NormalizeTestCaseID)
	if err != nil {
		return capabilities{}, fmt.Errorf("%w: node %s test cases: %v", ErrInvalidAdapter, node, err)
	}
	stimuli, err := idSet(caps.StimuliSteps(), strings.TrimSpace)
	if err != nil {
		return capabilities{}, fmt.Errorf("%w: node %s stimuli: %v", ErrInvalidAdapter, node, err)
	}
	return capabilities{testCases: testCases, stimuli: stimuli}, nil
}

func idSet(ids []string, normalize func(string) string) (map[string]bool, error) {
	set := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id := normalize(raw)
		if id == "" {
			return nil, errors.New("empty id")
		}
		if set[id] {
			return nil, fmt.Errorf("duplicate id %s", id)
		}
		set[id] = true
	}
	return set, nil
}
