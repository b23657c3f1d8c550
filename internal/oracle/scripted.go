package oracle

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spboyer/servicecounter/internal/models"
	"gopkg.in/yaml.v3"
)

// Script is a canned set of responses, consumed in order per role.
type Script struct {
	Responses map[models.Role][]string `yaml:"responses"`
	// RepeatLast keeps answering with a role's final response once its queue is used up.
	RepeatLast bool `yaml:"repeat_last,omitempty"`
}

// LoadScript reads a Script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing oracle script %s: %w", path, err)
	}
	return &script, nil
}

// ScriptedOracle replays a [Script] without contacting any model. It records
// every request it receives.
type ScriptedOracle struct {
	mu       sync.Mutex
	script   Script
	next     map[models.Role]int
	requests []Request
}

// NewScriptedOracle creates an oracle that answers from script.
func NewScriptedOracle(script Script) *ScriptedOracle {
	return &ScriptedOracle{
		script: script,
		next:   map[models.Role]int{},
	}
}

// Call implements [Oracle].
func (s *ScriptedOracle) Call(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, *req)

	queue := s.script.Responses[req.Role]
	i := s.next[req.Role]
	if i >= len(queue) {
		if !s.script.RepeatLast || len(queue) == 0 {
			return nil, fmt.Errorf("scripted oracle has no response left for %s (call %d)", req.Role, i+1)
		}
		i = len(queue) - 1
	}
	s.next[req.Role]++

	raw := queue[i]
	return &Response{Raw: raw, Ledger: Record(req, raw)}, nil
}

// Requests returns the requests received so far.
func (s *ScriptedOracle) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns how many requests were made for role.
func (s *ScriptedOracle) Calls(role models.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Role == role {
			n++
		}
	}
	return n
}
