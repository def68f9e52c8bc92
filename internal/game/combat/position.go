package combat

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// Position is a combatant's bodily state. Order matters: comparisons such as
// "position <= Sitting" are used throughout.
type Position int

const (
	Dead Position = iota
	MortallyWounded
	Incapacitated
	Stunned
	Sleeping
	Prone
	Resting
	Sitting
	Fighting
	Standing
)

var positionNames = [...]string{
	Dead:            "dead",
	MortallyWounded: "mortally_wounded",
	Incapacitated:   "incapacitated",
	Stunned:         "stunned",
	Sleeping:        "sleeping",
	Prone:           "prone",
	Resting:         "resting",
	Sitting:         "sitting",
	Fighting:        "fighting",
	Standing:        "standing",
}

// String returns the snake_case position name.
func (p Position) String() string {
	if p < Dead || p > Standing {
		return fmt.Sprintf("position(%d)", int(p))
	}
	return positionNames[p]
}

// ParsePosition resolves a position name.
func ParsePosition(s string) (Position, bool) {
	for i, n := range positionNames {
		if n == s {
			return Position(i), true
		}
	}
	return Standing, false
}

// Position events.
const (
	EventEngage        = "engage"
	EventDisengage     = "disengage"
	EventStand         = "stand"
	EventSit           = "sit"
	EventRest          = "rest"
	EventSleep         = "sleep"
	EventWake          = "wake"
	EventTrip          = "trip"
	EventStun          = "stun"
	EventRecover       = "recover"
	EventIncapacitate  = "incapacitate"
	EventMortallyWound = "mortally_wound"
	EventDie           = "die"
	EventRevive        = "revive"
)

func names(ps ...Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

// positionEvents is the (from, event) -> to transition table.
var positionEvents = fsm.Events{
	{Name: EventEngage, Src: names(Standing), Dst: Fighting.String()},
	{Name: EventDisengage, Src: names(Fighting), Dst: Standing.String()},
	{Name: EventStand, Src: names(Sitting, Resting, Prone, Fighting), Dst: Standing.String()},
	{Name: EventSit, Src: names(Standing, Fighting, Resting, Prone), Dst: Sitting.String()},
	{Name: EventRest, Src: names(Standing, Sitting), Dst: Resting.String()},
	{Name: EventSleep, Src: names(Standing, Sitting, Resting), Dst: Sleeping.String()},
	{Name: EventWake, Src: names(Sleeping), Dst: Resting.String()},
	{Name: EventTrip, Src: names(Standing, Fighting, Sitting, Resting), Dst: Prone.String()},
	{Name: EventStun, Src: names(Standing, Fighting, Sitting, Resting, Prone, Sleeping, Incapacitated, MortallyWounded), Dst: Stunned.String()},
	{Name: EventRecover, Src: names(Stunned, Incapacitated, MortallyWounded), Dst: Sitting.String()},
	{Name: EventIncapacitate, Src: names(Standing, Fighting, Sitting, Resting, Prone, Sleeping, Stunned, MortallyWounded), Dst: Incapacitated.String()},
	{Name: EventMortallyWound, Src: names(Standing, Fighting, Sitting, Resting, Prone, Sleeping, Stunned, Incapacitated), Dst: MortallyWounded.String()},
	{Name: EventDie, Src: names(Standing, Fighting, Sitting, Resting, Prone, Sleeping, Stunned, Incapacitated, MortallyWounded), Dst: Dead.String()},
	{Name: EventRevive, Src: names(Dead), Dst: Standing.String()},
}

// PositionMachine drives a combatant's Position through the transition table.
// onEnter runs after every state change with the old and new positions.
type PositionMachine struct {
	f       *fsm.FSM
	onEnter func(from, to Position)
}

// NewPositionMachine creates a machine in initial.
func NewPositionMachine(initial Position, onEnter func(from, to Position)) *PositionMachine {
	m := &PositionMachine{onEnter: onEnter}
	m.f = fsm.NewFSM(initial.String(), positionEvents, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			// e.Dst is authoritative here; the machine is still mid-transition.
			if m.onEnter == nil {
				return
			}
			from, _ := ParsePosition(e.Src)
			to, _ := ParsePosition(e.Dst)
			m.onEnter(from, to)
		},
	})
	return m
}

// Current returns the current position.
func (m *PositionMachine) Current() Position {
	p, _ := ParsePosition(m.f.Current())
	return p
}

// Can reports whether event is allowed from the current position.
func (m *PositionMachine) Can(event string) bool {
	return m.f.Can(event)
}

// Fire applies event. A transition to the current position is not an error.
//
// Postcondition: Returns an error only when event is not allowed from Current().
func (m *PositionMachine) Fire(ctx context.Context, event string) error {
	err := m.f.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("position %s: %w", m.Current(), err)
	}
	return nil
}

// Force sets the position without running transition hooks.
func (m *PositionMachine) Force(p Position) {
	m.f.SetState(p.String())
}

// healthEvent returns the event that moves a combatant with hp health into
// its health-derived position, or "" when the position should not change.
// NPCs die at hp <= 0; players pass through stunned, incapacitated and
// mortally wounded before dying at deathThreshold.
func healthEvent(current Position, hp, deathThreshold int, player bool) string {
	switch {
	case current == Dead:
		return ""
	case hp <= 0 && !player:
		return EventDie
	case hp <= deathThreshold:
		return EventDie
	case hp <= -6:
		return eventUnless(current, MortallyWounded, EventMortallyWound)
	case hp <= -3:
		return eventUnless(current, Incapacitated, EventIncapacitate)
	case hp <= 0:
		return eventUnless(current, Stunned, EventStun)
	case current <= Stunned:
		return EventRecover
	default:
		return ""
	}
}

func eventUnless(current, want Position, event string) string {
	if current == want {
		return ""
	}
	return event
}
