package combat

import "strings"

var classInitiativeBonus = map[string]int{
	"ninja":   4,
	"thief":   2,
	"samurai": 2,
	"fighter": 1,
	"lord":    1,
	"bishop":  0,
	"mage":    -1,
	"priest":  -1,
}

// ClassInitiativeBonus returns the initiative bonus for class; unlisted classes get 0.
func ClassInitiativeBonus(class string) int {
	return classInitiativeBonus[strings.ToLower(class)]
}

// TurnEntry is one slot of the turn order.
type TurnEntry struct {
	CombatantID string
	Initiative  int
}

// RollInitiative rolls initiative for each combatant in input order and
// returns the turn order, highest first.
// Formula: agility + class bonus + d6.
//
// Precondition: combatants and rnd must be non-nil.
// Postcondition: ties keep input order.
func RollInitiative(combatants []*Combatant, rnd Random) []TurnEntry {
	order := make([]TurnEntry, 0, len(combatants))
	for _, c := range combatants {
		order = append(order, TurnEntry{
			CombatantID: c.ID,
			Initiative:  c.Attributes.Agility + ClassInitiativeBonus(c.Class) + rnd.Die(6),
		})
	}
	sortByInitiativeDesc(order)
	return order
}

// sortByInitiativeDesc sorts entries in place, highest initiative first.
// Insertion sort is stable, so equal scores keep their relative order.
func sortByInitiativeDesc(entries []TurnEntry) {
	n := len(entries)
	for i := 1; i < n; i++ {
		for j := i; j > 0 && entries[j].Initiative > entries[j-1].Initiative; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
