// Package solver defines the narrow bridge to a rule-set engine and the policy that
// picks the smallest model among those it reports.
package solver

import (
	"context"
	"errors"
)

var (
	// ErrResourceNotFound is returned by Load when the rule-set file does not exist.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrRuleSetParse is returned by Load when the rule-set cannot be parsed or analysed.
	ErrRuleSetParse = errors.New("rule-set parse failure")
	// ErrNotLoaded is returned by Solve before a successful Load.
	ErrNotLoaded = errors.New("engine has no program loaded")
)

// Model is one satisfying answer: its facts in emission order and their count.
type Model struct {
	Number int
	Facts  []string
	Size   int
}

// NewModel builds a model whose size is its fact count.
func NewModel(number int, facts []string) Model {
	return Model{Number: number, Facts: facts, Size: len(facts)}
}

// Engine loads a rule-set with instance facts and enumerates models.
//
// Solve calls onModel synchronously, once per model, and never delivers the next
// model before the callback returns. Zero models is a normal outcome. An error from
// onModel stops enumeration and is returned from Solve.
type Engine interface {
	Load(ctx context.Context, ruleSet string, facts []string) error
	Solve(ctx context.Context, onModel func(Model) error) error
	Statistics() Statistics
}

// Statistics mirrors the sections a benchmark reads from a solver run. Engines fill
// what they can; consumers pass it through untouched.
type Statistics struct {
	Summary   Summary   `json:"summary"`
	Solving   Solving   `json:"solving"`
	Grounding Grounding `json:"grounding"`
}

type Summary struct {
	Times  Times       `json:"times"`
	Models ModelCounts `json:"models"`
}

// Times are wall-clock seconds.
type Times struct {
	Total  float64 `json:"total"`
	Ground float64 `json:"ground"`
	Solve  float64 `json:"solve"`
}

type ModelCounts struct {
	Enumerated int `json:"enumerated"`
}

type Solving struct {
	Solvers Solvers `json:"solvers"`
}

// Solvers counts search effort: choices are expanded search nodes, conflicts are
// moves rejected by a reservation.
type Solvers struct {
	Choices   int `json:"choices"`
	Conflicts int `json:"conflicts"`
}

// Grounding describes the evaluated program.
type Grounding struct {
	Strata  int `json:"strata"`
	Facts   int `json:"facts"`
	Derived int `json:"derived"`
}
