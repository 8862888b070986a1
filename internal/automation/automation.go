package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrEmptyStep = errors.New("automation: step has neither command nor wait")

// Scenario is a scripted sequence of commands sent to a running server.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Repeat      int            `yaml:"repeat"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep runs Command with Args, then sleeps for Wait. Either may be
// omitted, not both.
type ScenarioStep struct {
	Command string         `yaml:"command"`
	Args    map[string]any `yaml:"args"`
	Wait    time.Duration  `yaml:"wait"`
}

// Invoker sends one named command. *api.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, name string, args any) (json.RawMessage, error)
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	for i, step := range scenario.Steps {
		if step.Command == "" && step.Wait <= 0 {
			return nil, fmt.Errorf("step %d: %w", i+1, ErrEmptyStep)
		}
	}
	if scenario.Repeat <= 0 {
		scenario.Repeat = 1
	}
	return &scenario, nil
}

// RunScenario executes every step in order, Repeat times, writing one line
// per command to out. It stops at the first failing command.
func RunScenario(ctx context.Context, scenario *Scenario, inv Invoker, out io.Writer) error {
	total := len(scenario.Steps)
	for round := 1; round <= scenario.Repeat; round++ {
		for i, step := range scenario.Steps {
			if step.Command != "" {
				var args any
				if len(step.Args) > 0 {
					args = step.Args
				}
				res, err := inv.Invoke(ctx, step.Command, args)
				if err != nil {
					return fmt.Errorf("round %d step %d (%s): %w", round, i+1, step.Command, err)
				}
				fmt.Fprintf(out, "[%d/%d] %s %s\n", i+1, total, step.Command, summarize(res))
			}
			if step.Wait > 0 {
				if err := sleep(ctx, step.Wait); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func summarize(res json.RawMessage) string {
	var s string
	if json.Unmarshal(res, &s) == nil {
		return s
	}
	return string(bytes.TrimSpace(res))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
