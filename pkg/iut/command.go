package iut

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// ErrCommandFailed is returned when an adapter command exits with an error.
var ErrCommandFailed = errors.New("command failed")

// CommandConfig is the YAML document of a CommandAdapter:
//
//	node: coap_client
//	address: {prefix: bbbb, host: "1"}
//	testcases: [TD_COAP_CORE_01]
//	configure: ip -6 addr add {prefix}::{host}/64 dev tun0
//	stimuli:
//	  TD_COAP_CORE_01_step_01: coap-client -m get coap://[{target}]/test
//	verify:
//	  TD_COAP_CORE_01_step_03: grep -q "Type: CON" /tmp/last_response
//
// Commands are split like a POSIX shell would and run without a shell. The
// placeholders {node}, {testcase}, {step}, {target}, {prefix} and {host} are
// substituted in every argument after splitting.
type CommandConfig struct {
	Node      string            `yaml:"node"`
	Address   AddressConfig     `yaml:"address"`
	TestCases []string          `yaml:"testcases"`
	Configure string            `yaml:"configure"`
	Stimuli   map[string]string `yaml:"stimuli"`
	Verify    map[string]string `yaml:"verify"`
}

// AddressConfig is the address a node reports once configured.
type AddressConfig struct {
	Prefix string `yaml:"prefix"`
	Host   string `yaml:"host"`
}

// CommandAdapter runs the commands of a CommandConfig.
type CommandAdapter struct {
	cfg      CommandConfig
	logger   *slog.Logger
	commands map[string][]string
}

// LoadCommandAdapter reads a CommandConfig from path.
func LoadCommandAdapter(path string, logger *slog.Logger) (*CommandAdapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read adapter config: %w", err)
	}
	var cfg CommandConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse adapter config %s: %w", path, err)
	}
	return NewCommandAdapter(cfg, logger)
}

// NewCommandAdapter validates cfg and splits its commands.
func NewCommandAdapter(cfg CommandConfig, logger *slog.Logger) (*CommandAdapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &CommandAdapter{
		cfg:      cfg,
		logger:   logger,
		commands: make(map[string][]string),
	}

	add := func(key, line string) error {
		words, err := shellquote.Split(line)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidAdapter, key, err)
		}
		if len(words) == 0 {
			return fmt.Errorf("%w: %s: empty command", ErrInvalidAdapter, key)
		}
		a.commands[key] = words
		return nil
	}
	if cfg.Configure != "" {
		if err := add(configureKey, cfg.Configure); err != nil {
			return nil, err
		}
	}
	for _, step := range slices.Sorted(maps.Keys(cfg.Stimuli)) {
		if err := add(stimuliKey(step), cfg.Stimuli[step]); err != nil {
			return nil, err
		}
	}
	for _, step := range slices.Sorted(maps.Keys(cfg.Verify)) {
		if err := add(verifyKey(step), cfg.Verify[step]); err != nil {
			return nil, err
		}
	}
	return a, nil
}

const configureKey = "configure"

func stimuliKey(step string) string { return "stimuli/" + step }
func verifyKey(step string) string { return "verify/" + step }

// Node returns the node the adapter plays.
func (a *CommandAdapter) Node() string {
	return a.cfg.Node
}

// TestCases returns the implemented test cases.
func (a *CommandAdapter) TestCases() []string {
	return a.cfg.TestCases
}

// StimuliSteps returns the steps a stimuli command exists for.
func (a *CommandAdapter) StimuliSteps() []string {
	return slices.Sorted(maps.Keys(a.cfg.Stimuli))
}

// Configure runs the configure command, if any, and returns the configured
// address.
func (a *CommandAdapter) Configure(ctx context.Context, testCaseID string) (Address, error) {
	addr := Address{Prefix: a.cfg.Address.Prefix, Host: a.cfg.Address.Host}
	if _, ok := a.commands[configureKey]; !ok {
		return addr, nil
	}
	_, err := a.run(ctx, configureKey, StepRequest{TestCaseID: testCaseID})
	if err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Stimuli runs the command of the step.
func (a *CommandAdapter) Stimuli(ctx context.Context, req StepRequest) error {
	key := stimuliKey(req.StepID)
	if _, ok := a.commands[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotImplemented, req.StepID)
	}
	_, err := a.run(ctx, key, req)
	return err
}

// Verify runs the verify command of the step. A step without a command is
// confirmed. A command exiting non-zero rejects the step.
func (a *CommandAdapter) Verify(ctx context.Context, req StepRequest) (bool, error) {
	key := verifyKey(req.StepID)
	if _, ok := a.commands[key]; !ok {
		return true, nil
	}
	_, err := a.run(ctx, key, req)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return err == nil, err
}

// command returns the arguments the command of key runs with for req.
func (a *CommandAdapter) command(key string, req StepRequest) []string {
	r := strings.NewReplacer(
		"{node}", a.cfg.Node,
		"{testcase}", req.TestCaseID,
		"{step}", req.StepID,
		"{target}", req.TargetAddress,
		"{prefix}", a.cfg.Address.Prefix,
		"{host}", a.cfg.Address.Host,
	)
	words := a.commands[key]
	args := make([]string, len(words))
	for i, w := range words {
		args[i] = r.Replace(w)
	}
	return args
}

func (a *CommandAdapter) run(ctx context.Context, key string, req StepRequest) ([]byte, error) {
	args := a.command(key, req)
	a.logger.Debug("running command", "key", key, "args", args)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return out.Bytes(), fmt.Errorf("%s: %w", key, ctx.Err())
		}
		return out.Bytes(), fmt.Errorf("%w: %s: %w (output: %s)", ErrCommandFailed, key, err,
			strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// Compile-time interface satisfaction checks.
var (
	_ Adapter      = (*CommandAdapter)(nil)
	_ Configurer   = (*CommandAdapter)(nil)
	_ Verifier     = (*CommandAdapter)(nil)
	_ Capabilities = (*CommandAdapter)(nil)
)
