// Package formation assigns combatants to front and back rows and derives
// positional combat modifiers, melee legality and targeting priority.
//
// A Formation holds two lineups: the party (bounded rows) and the current
// enemy wave (unbounded rows). Members are identified by combatant ID;
// eligibility (able to act and be targeted) is always supplied by the caller
// since the formation does not track hit points or status.
package formation

import (
	"errors"
	"fmt"
	"strings"
)

// Row is a formation row.
type Row int

const (
	Front Row = iota
	Back
)

// String returns "front" or "back".
func (r Row) String() string {
	if r == Back {
		return "back"
	}
	return "front"
}

// Opposite returns the other row.
func (r Row) Opposite() Row {
	if r == Front {
		return Back
	}
	return Front
}

// Side selects one of the two lineups.
type Side int

const (
	PartySide Side = iota
	EnemySide
)

// Priority is a targeting priority hint.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// Modifiers are the positional combat modifiers for one row.
type Modifiers struct {
	MeleeDamageBonus    int
	MeleeAccuracyBonus  int
	RangedAccuracyBonus int
	// DamageTakenMultiplier scales damage received by members of the row.
	DamageTakenMultiplier float64
	TargetPriority        Priority
}

// ModifiersFor returns the fixed modifiers for row.
//
// Postcondition: Front yields zero bonuses and a 1.0 multiplier; Back yields
// -1 melee damage, -1 melee accuracy, +1 ranged accuracy and 0.75 multiplier.
func ModifiersFor(row Row) Modifiers {
	if row == Back {
		return Modifiers{
			MeleeDamageBonus:      -1,
			MeleeAccuracyBonus:    -1,
			RangedAccuracyBonus:   1,
			DamageTakenMultiplier: 0.75,
			TargetPriority:        PriorityLow,
		}
	}
	return Modifiers{DamageTakenMultiplier: 1.0, TargetPriority: PriorityHigh}
}

var (
	// ErrRowFull is returned when a row has no free slot.
	ErrRowFull = errors.New("formation row is full")
	// ErrFormationFull is returned when neither row can take another member.
	ErrFormationFull = errors.New("formation is full")
	// ErrUnknownMember is returned for an ID not present in the lineup.
	ErrUnknownMember = errors.New("unknown formation member")
	// ErrDuplicateMember is returned when an ID is assigned twice.
	ErrDuplicateMember = errors.New("duplicate formation member")
)

// frontLineClasses are the melee-capable classes placed in the front row by default.
var frontLineClasses = map[string]bool{
	"fighter": true,
	"samurai": true,
	"lord":    true,
	"ninja":   true,
}

// ShouldBeInFrontRow reports whether a member of class belongs in the front row
// by default. Casters, thieves and unknown classes default to the back.
func ShouldBeInFrontRow(class string) bool {
	return frontLineClasses[strings.ToLower(class)]
}

// Member is a party member to be placed in the formation.
type Member struct {
	ID    string
	Class string
}

// EnemyMember is an enemy to be placed in the formation.
type EnemyMember struct {
	ID string
	// RangedOnly is true when every attack the enemy declares is ranged.
	RangedOnly bool
}

// Lineup holds the ordered row membership of one side.
//
// Invariant: each ID appears in at most one row; len(row) <= capacity when
// the capacity is positive.
type Lineup struct {
	maxFront int
	maxBack  int
	front    []string
	back     []string
}

func (l *Lineup) capacity(row Row) int {
	if row == Back {
		return l.maxBack
	}
	return l.maxFront
}

func (l *Lineup) rowSlice(row Row) *[]string {
	if row == Back {
		return &l.back
	}
	return &l.front
}

func (l *Lineup) hasRoom(row Row) bool {
	c := l.capacity(row)
	return c <= 0 || len(*l.rowSlice(row)) < c
}

// RowOf returns the row holding id.
func (l *Lineup) RowOf(id string) (Row, bool) {
	for _, m := range l.front {
		if m == id {
			return Front, true
		}
	}
	for _, m := range l.back {
		if m == id {
			return Back, true
		}
	}
	return Front, false
}

// Members returns a copy of the IDs in row, in assignment order.
func (l *Lineup) Members(row Row) []string {
	src := *l.rowSlice(row)
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func (l *Lineup) place(id string, preferred Row) error {
	if _, ok := l.RowOf(id); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateMember, id)
	}
	row := preferred
	if !l.hasRoom(row) {
		row = row.Opposite()
		if !l.hasRoom(row) {
			return fmt.Errorf("%w: no slot for %q", ErrFormationFull, id)
		}
	}
	s := l.rowSlice(row)
	*s = append(*s, id)
	return nil
}

func (l *Lineup) remove(id string) {
	for _, row := range []Row{Front, Back} {
		s := l.rowSlice(row)
		for i, m := range *s {
			if m == id {
				*s = append((*s)[:i:i], (*s)[i+1:]...)
				return
			}
		}
	}
}

func (l *Lineup) eligibleIn(row Row, eligible func(id string) bool) []string {
	var out []string
	for _, id := range *l.rowSlice(row) {
		if eligible(id) {
			out = append(out, id)
		}
	}
	return out
}

// Formation is the front/back row assignment of both sides of an encounter.
type Formation struct {
	party   Lineup
	enemies Lineup
}

// New creates an empty Formation whose party rows hold at most maxFront and
// maxBack members. Enemy rows are unbounded.
//
// Precondition: maxFront >= 1 and maxBack >= 1.
func New(maxFront, maxBack int) *Formation {
	if maxFront < 1 || maxBack < 1 {
		panic("formation.New: row capacities must be >= 1")
	}
	return &Formation{party: Lineup{maxFront: maxFront, maxBack: maxBack}}
}

// Lineup returns the lineup for side.
func (f *Formation) Lineup(side Side) *Lineup {
	if side == EnemySide {
		return &f.enemies
	}
	return &f.party
}

// SetupFromParty replaces the party lineup with the default assignment:
// front-line classes fill the front row first-come, everyone else the back
// row, and overflow spills into the opposite row.
//
// Postcondition: on error the previous party lineup is left untouched.
func (f *Formation) SetupFromParty(members []Member) error {
	next := Lineup{maxFront: f.party.maxFront, maxBack: f.party.maxBack}
	for _, m := range members {
		row := Back
		if ShouldBeInFrontRow(m.Class) {
			row = Front
		}
		if err := next.place(m.ID, row); err != nil {
			return err
		}
	}
	f.party = next
	return nil
}

// SetupEnemies replaces the enemy lineup. Ranged-only enemies stand in the
// back row, everyone else in the front.
func (f *Formation) SetupEnemies(members []EnemyMember) error {
	next := Lineup{}
	for _, m := range members {
		row := Front
		if m.RangedOnly {
			row = Back
		}
		if err := next.place(m.ID, row); err != nil {
			return err
		}
	}
	f.enemies = next
	return nil
}

// MoveCharacter moves a party member to row.
//
// Postcondition: on ErrRowFull or ErrUnknownMember nothing changes; moving a
// member to the row it already occupies succeeds without change.
func (f *Formation) MoveCharacter(id string, row Row) (Snapshot, error) {
	current, ok := f.party.RowOf(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownMember, id)
	}
	if current == row {
		return f.Snapshot(), nil
	}
	if !f.party.hasRoom(row) {
		return Snapshot{}, fmt.Errorf("%w: cannot move %q to the %s row", ErrRowFull, id, row)
	}
	f.party.remove(id)
	s := f.party.rowSlice(row)
	*s = append(*s, id)
	return f.Snapshot(), nil
}

// RowOf returns the row of id on side; the second value is false when id is
// not in that lineup.
func (f *Formation) RowOf(side Side, id string) (Row, bool) {
	return f.Lineup(side).RowOf(id)
}

// CanMelee reports whether the member id of side may perform a melee action.
// A back-row member may only do so when it has reach or when no eligible
// member stands in its side's front row.
func (f *Formation) CanMelee(side Side, id string, hasReach bool, eligible func(id string) bool) bool {
	row, ok := f.RowOf(side, id)
	if !ok || row == Front || hasReach {
		return true
	}
	return len(f.Lineup(side).eligibleIn(Front, eligible)) == 0
}

// PriorityTargets returns the eligible members of side that may be targeted
// by melee: the eligible front row when it is non-empty, otherwise the
// eligible back row.
func (f *Formation) PriorityTargets(side Side, eligible func(id string) bool) []string {
	l := f.Lineup(side)
	if front := l.eligibleIn(Front, eligible); len(front) > 0 {
		return front
	}
	return l.eligibleIn(Back, eligible)
}

// Eligible returns every eligible member of side, front row first.
func (f *Formation) Eligible(side Side, eligible func(id string) bool) []string {
	l := f.Lineup(side)
	return append(l.eligibleIn(Front, eligible), l.eligibleIn(Back, eligible)...)
}

// Isolated reports whether id is the only eligible member of its row.
func (f *Formation) Isolated(side Side, id string, eligible func(id string) bool) bool {
	row, ok := f.RowOf(side, id)
	if !ok {
		return false
	}
	in := f.Lineup(side).eligibleIn(row, eligible)
	return len(in) == 1 && in[0] == id
}

// Snapshot is an immutable copy of both lineups.
type Snapshot struct {
	PartyFront []string
	PartyBack  []string
	EnemyFront []string
	EnemyBack  []string
}

// Snapshot returns a copy of the current assignment.
func (f *Formation) Snapshot() Snapshot {
	return Snapshot{
		PartyFront: f.party.Members(Front),
		PartyBack:  f.party.Members(Back),
		EnemyFront: f.enemies.Members(Front),
		EnemyBack:  f.enemies.Members(Back),
	}
}
