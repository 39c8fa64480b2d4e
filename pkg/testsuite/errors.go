package testsuite

import "errors"

// Model errors.
var (
	ErrTestCaseNotFound   = errors.New("testcase not found")
	ErrNoTestCase         = errors.New("no testcase given and no ongoing testcase")
	ErrDuplicateTestCase  = errors.New("duplicate testcase id")
	ErrUnknownConfig      = errors.New("unknown test configuration")
	ErrStepsNotFinished   = errors.New("testcase has steps that are not finished")
	ErrNoVerdict          = errors.New("step type does not carry a verdict")
	ErrInvalidStep        = errors.New("invalid step")
	ErrNodeNotOnLink      = errors.New("node is not part of the link")
	ErrNoAddress          = errors.New("no address known for node")
	ErrStepNotExecuting   = errors.New("current step is not executing")
	ErrUnexpectedStepType = errors.New("unexpected step type")
)
