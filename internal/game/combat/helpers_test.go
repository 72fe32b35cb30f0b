package combat_test

import (
	"strings"
	"time"

	"github.com/cory-johannsen/crawler/internal/game/character"
	"github.com/cory-johannsen/crawler/internal/game/combat"
	"github.com/cory-johannsen/crawler/internal/game/monster"
)

// scriptedRandom returns queued values; an empty queue yields the lowest
// legal value (1 for dice, min for Integer, false for Chance, 0 for Choice).
type scriptedRandom struct {
	dies    []int
	ints    []int
	chances []bool
	choices []int
}

func (s *scriptedRandom) Die(sides int) int {
	if len(s.dies) == 0 {
		return 1
	}
	v := s.dies[0]
	s.dies = s.dies[1:]
	return v
}

func (s *scriptedRandom) Dice(count, sides int) int {
	total := 0
	for i := 0; i < count; i++ {
		total += s.Die(sides)
	}
	return total
}

func (s *scriptedRandom) Integer(min, max int) int {
	if len(s.ints) == 0 {
		return min
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v
}

func (s *scriptedRandom) Chance(p float64) bool {
	if len(s.chances) == 0 {
		return false
	}
	v := s.chances[0]
	s.chances = s.chances[1:]
	return v
}

func (s *scriptedRandom) Choice(n int) int {
	if len(s.choices) == 0 {
		return 0
	}
	v := s.choices[0]
	s.choices = s.choices[1:]
	return v
}

func baseAttributes() character.Attributes {
	return character.Attributes{Strength: 10, Intelligence: 10, Piety: 10, Vitality: 10, Agility: 10, Luck: 10}
}

func newHero(id, class string, hp int) *character.Character {
	return &character.Character{
		ID:         id,
		Name:       strings.ToUpper(id[:1]) + id[1:],
		Class:      class,
		Level:      1,
		Attributes: baseAttributes(),
		MaxHP:      hp,
		CurrentHP:  hp,
		Status:     character.StatusOK,
	}
}

func newMonster(id string, hp, ac int) *monster.Instance {
	return &monster.Instance{
		ID:         id,
		TemplateID: "goblin",
		Name:       id,
		Kind:       "humanoid",
		Level:      1,
		MaxHP:      hp,
		CurrentHP:  hp,
		AC:         ac,
		AIType:     "aggressive",
		Experience: 10,
		Attacks:    []monster.Attack{{Name: "claw", Damage: "1d4"}},
	}
}

func newArcher(id string, hp, ac int) *monster.Instance {
	m := newMonster(id, hp, ac)
	m.Attacks = []monster.Attack{{Name: "arrow", Damage: "1d6", Ranged: true}}
	return m
}

type recorder struct {
	events []combat.Event
}

func (r *recorder) Publish(ev combat.Event) { r.events = append(r.events, ev) }

func (r *recorder) names() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name()
	}
	return out
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// firstTargetController attacks the first legal target with the first
// attack, or defends.
type firstTargetController struct{}

func (firstTargetController) ChooseAction(actor *combat.Combatant, bf *combat.Battlefield, _ combat.Random) (combat.Action, error) {
	defend := combat.Action{Type: combat.ActionDefend, ActorID: actor.ID}
	if len(actor.Attacks) == 0 {
		return defend, nil
	}
	atk := actor.Attacks[0]
	if !atk.Ranged && !bf.CanMelee(actor) {
		return defend, nil
	}
	targets := bf.TargetsFor(actor, atk)
	if len(targets) == 0 {
		return defend, nil
	}
	return combat.Action{Type: combat.ActionAttack, ActorID: actor.ID, TargetID: targets[0].ID}, nil
}
