package combat

import "github.com/cory-johannsen/crawler/internal/game/formation"

// Battlefield is the read-only view of one wave's combatants and their
// formation. Monster controllers and target validation query it; callers
// must not mutate the combatants it returns.
type Battlefield struct {
	rules     Rules
	formation *formation.Formation
	party     []*Combatant
	enemies   []*Combatant
	byID      map[string]*Combatant
}

// NewBattlefield assembles a Battlefield and syncs each combatant's Row from f.
//
// Precondition: every combatant ID is present in f's lineup for its side.
func NewBattlefield(rules Rules, f *formation.Formation, party, enemies []*Combatant) *Battlefield {
	b := &Battlefield{
		rules:     rules,
		formation: f,
		party:     party,
		enemies:   enemies,
		byID:      make(map[string]*Combatant, len(party)+len(enemies)),
	}
	for _, c := range party {
		b.byID[c.ID] = c
	}
	for _, c := range enemies {
		b.byID[c.ID] = c
	}
	b.syncRows()
	return b
}

func (b *Battlefield) syncRows() {
	for _, c := range b.byID {
		if row, ok := b.formation.RowOf(c.Side.formationSide(), c.ID); ok {
			c.Row = row
		}
	}
}

// Rules returns the rule constants in force.
func (b *Battlefield) Rules() Rules { return b.rules }

// Combatant returns the party member or current-wave enemy with id.
func (b *Battlefield) Combatant(id string) (*Combatant, bool) {
	c, ok := b.byID[id]
	return c, ok
}

// Party returns every party member, in party order.
func (b *Battlefield) Party() []*Combatant { return b.party }

// Enemies returns every enemy of the current wave, in wave order.
func (b *Battlefield) Enemies() []*Combatant { return b.enemies }

func (b *Battlefield) eligible(id string) bool {
	c, ok := b.byID[id]
	return ok && c.Eligible()
}

func (b *Battlefield) resolve(ids []string) []*Combatant {
	out := make([]*Combatant, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.byID[id])
	}
	return out
}

// Opponents returns the eligible combatants opposing c, front row first.
func (b *Battlefield) Opponents(c *Combatant) []*Combatant {
	return b.resolve(b.formation.Eligible(c.Side.Opposite().formationSide(), b.eligible))
}

// Allies returns the eligible combatants on c's side, c included, front row first.
func (b *Battlefield) Allies(c *Combatant) []*Combatant {
	return b.resolve(b.formation.Eligible(c.Side.formationSide(), b.eligible))
}

// MeleeTargets returns the opponents c may strike in melee: the eligible
// front row, or the eligible back row once the front row is empty.
func (b *Battlefield) MeleeTargets(c *Combatant) []*Combatant {
	return b.resolve(b.formation.PriorityTargets(c.Side.Opposite().formationSide(), b.eligible))
}

// TargetsFor returns the legal single targets of atk made by c.
func (b *Battlefield) TargetsFor(c *Combatant, atk Attack) []*Combatant {
	if atk.Ranged {
		return b.Opponents(c)
	}
	return b.MeleeTargets(c)
}

// CanMelee reports whether c may make a melee attack from its row.
func (b *Battlefield) CanMelee(c *Combatant) bool {
	return b.formation.CanMelee(c.Side.formationSide(), c.ID, c.Reach, b.eligible)
}

// Isolated reports whether c is the only eligible member of its row.
func (b *Battlefield) Isolated(c *Combatant) bool {
	return b.formation.Isolated(c.Side.formationSide(), c.ID, b.eligible)
}

// Formation returns a snapshot of the current row assignment.
func (b *Battlefield) Formation() formation.Snapshot {
	return b.formation.Snapshot()
}
