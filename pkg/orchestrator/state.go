package orchestrator

import (
	"fmt"
	"time"

	"github.com/mchmarny/devrank/pkg/interval"
)

// State is where one (entity, interval) computation stands.
type State string

const (
	NotStarted State = "not_started"
	Skipped    State = "skipped"
	Computing  State = "computing"
	Complete   State = "complete"
	Failed     State = "failed"
)

var transitions = map[State][]State{
	NotStarted: {Skipped, Computing},
	Computing:  {Complete, Failed},
}

// entity tracks a single unit of work through its states.
type entity struct {
	key     string
	pass    interval.Type
	state   State
	started time.Time
}

func newEntity(key string, pass interval.Type) *entity {
	return &entity{key: key, pass: pass, state: NotStarted, started: time.Now()}
}

func (e *entity) to(next State) error {
	if e.state.terminal() {
		return fmt.Errorf("entity %s (%s): already %s, cannot move to %s", e.key, e.pass, e.state, next)
	}
	for _, s := range transitions[e.state] {
		if s == next {
			e.state = next
			return nil
		}
	}
	return fmt.Errorf("entity %s (%s): illegal transition %s -> %s", e.key, e.pass, e.state, next)
}

func (e *entity) elapsed() time.Duration {
	return time.Since(e.started)
}

// terminal reports whether no further transition is possible.
func (s State) terminal() bool {
	return len(transitions[s]) == 0
}
