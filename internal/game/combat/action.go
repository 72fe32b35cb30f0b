package combat

import (
	"errors"
	"fmt"
)

// ActionType enumerates the kinds of action a combatant can take.
type ActionType string

const (
	ActionAttack ActionType = "attack"
	ActionSpell  ActionType = "spell"
	ActionItem   ActionType = "item"
	ActionDefend ActionType = "defend"
	ActionFlee   ActionType = "flee"
)

// Action is one combatant's choice for its turn. TargetID is required for
// single-target attacks, spells and items; SpellID and ItemID select the
// spell or item; AttackIndex selects among the actor's declared attacks.
type Action struct {
	Type        ActionType
	ActorID     string
	TargetID    string
	SpellID     string
	ItemID      string
	AttackIndex int
}

// Surprise selects which side, if any, was caught off guard.
type Surprise int

const (
	SurpriseNone Surprise = iota
	// SurpriseParty: the party is surprised; enemies get an uncontested opening.
	SurpriseParty
	// SurpriseEnemies: the enemies are surprised; the party gets an uncontested opening.
	SurpriseEnemies
)

// String returns "none", "party" or "enemies".
func (s Surprise) String() string {
	switch s {
	case SurpriseParty:
		return "party"
	case SurpriseEnemies:
		return "enemies"
	default:
		return "none"
	}
}

// Error kinds returned by the engine. All are recoverable: the engine state is
// unchanged when one is returned from ProcessAction.
var (
	ErrOutOfTurnAction          = errors.New("out of turn action")
	ErrInvalidTarget            = errors.New("invalid target")
	ErrIllegalActionForActor    = errors.New("illegal action for actor")
	ErrEncounterAlreadyResolved = errors.New("encounter already resolved")
	// ErrCombatNotStarted is returned for actions submitted before StartCombat.
	ErrCombatNotStarted = errors.New("combat not started")
	// ErrInvalidEncounter is returned by StartCombat when its inputs violate a precondition.
	ErrInvalidEncounter = errors.New("invalid encounter")
	// ErrAwaitingPlayer is returned by Step when the current actor is a party member.
	ErrAwaitingPlayer = errors.New("awaiting player action")
	// ErrNoController is returned by Step when no monster controller is configured.
	ErrNoController = errors.New("no monster controller configured")
)

// errorKind names the error for metrics and logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrOutOfTurnAction):
		return "out_of_turn"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrIllegalActionForActor):
		return "illegal_action"
	case errors.Is(err, ErrEncounterAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrCombatNotStarted):
		return "not_started"
	default:
		return "other"
	}
}

func invalidTarget(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTarget, fmt.Sprintf(format, args...))
}

func illegalAction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalActionForActor, fmt.Sprintf(format, args...))
}
