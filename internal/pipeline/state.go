package pipeline

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// State is a stage's position in the orchestration state machine.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateUnchanged  State = "unchanged"
	StateBackingUp  State = "backing_up"
	StateProducing  State = "producing"
	StatePersisting State = "persisting"
	StateFailed     State = "failed"
)

func (s State) String() string { return string(s) }

// Label renders the state for humans ("Backing Up").
func (s State) Label() string {
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool { return s == StateFailed }

// Transition is one edge taken by a stage.
type Transition struct {
	Stage string
	From  State
	To    State
	At    time.Time
	Err   error
}

// Observer receives every transition of every stage.
type Observer interface {
	StageTransition(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(context.Context, Transition)

func (f ObserverFunc) StageTransition(ctx context.Context, t Transition) { f(ctx, t) }

// Observers fans transitions out in order. Nil entries are skipped.
type Observers []Observer

func (o Observers) StageTransition(ctx context.Context, t Transition) {
	for _, obs := range o {
		if obs != nil {
			obs.StageTransition(ctx, t)
		}
	}
}
