package combat

import (
	"fmt"

	"github.com/cory-johannsen/crawler/internal/game/character"
	"github.com/cory-johannsen/crawler/internal/game/dice"
	"github.com/cory-johannsen/crawler/internal/game/equipment"
	"github.com/cory-johannsen/crawler/internal/game/formation"
	"github.com/cory-johannsen/crawler/internal/game/monster"
)

const (
	// partyArmorClassBase is the unarmored armor class of a party member.
	partyArmorClassBase = 10
	// partyBaseDamage is the base damage die of every party attack.
	partyBaseDamage = "1d6"
	// defaultMonsterAttribute stands in for attributes a template leaves unset.
	defaultMonsterAttribute = 10
)

// EquipmentProvider resolves equipment definitions by item ID.
type EquipmentProvider interface {
	Item(id string) (*equipment.Def, bool)
}

// FromCharacter builds the combatant view of a party member. The equipped
// weapon contributes its hit/damage bonus, ranged flag and reach; armor and
// shield contribute their AC bonuses.
//
// Precondition: ch must not be nil; equip may be nil only when ch has no equipment.
// Postcondition: returns an error if an equipped item is unknown or sits in the wrong slot.
func FromCharacter(ch *character.Character, equip EquipmentProvider) (*Combatant, error) {
	attack := Attack{Name: "attack", Damage: dice.MustParse(partyBaseDamage)}
	c := &Combatant{
		ID:        ch.ID,
		Name:      ch.Name,
		Side:      SidePlayer,
		Class:     ch.Class,
		Level:     ch.Level,
		CurrentHP: max(0, min(ch.CurrentHP, ch.MaxHP)),
		MaxHP:     ch.MaxHP,
		Attributes: Attributes{
			Strength:     ch.Attributes.Strength,
			Intelligence: ch.Attributes.Intelligence,
			Piety:        ch.Attributes.Piety,
			Vitality:     ch.Attributes.Vitality,
			Agility:      ch.Attributes.Agility,
			Luck:         ch.Attributes.Luck,
		},
		ArmorClassBase: partyArmorClassBase,
		Status:         StatusOK,
		PreparedSpells: make(map[string]int, len(ch.PreparedSpells)),
	}
	for id, n := range ch.PreparedSpells {
		c.PreparedSpells[id] = n
	}

	lookup := func(id string, slot equipment.Slot) (*equipment.Def, error) {
		if equip == nil {
			return nil, fmt.Errorf("character %q: no equipment provider to resolve %q", ch.ID, id)
		}
		def, ok := equip.Item(id)
		if !ok {
			return nil, fmt.Errorf("character %q: unknown equipment %q", ch.ID, id)
		}
		if def.Slot != slot {
			return nil, fmt.Errorf("character %q: %q is a %s, not a %s", ch.ID, id, def.Slot, slot)
		}
		return def, nil
	}

	if id := ch.Equipment.Weapon; id != "" {
		w, err := lookup(id, equipment.SlotWeapon)
		if err != nil {
			return nil, err
		}
		attack.Name = w.Name
		attack.Ranged = w.Ranged
		attack.HitBonus = w.HitBonus
		attack.DamageBonus = w.DamageBonus
		c.Reach = w.IsReach()
	}
	if id := ch.Equipment.Armor; id != "" {
		a, err := lookup(id, equipment.SlotArmor)
		if err != nil {
			return nil, err
		}
		c.ArmorBonus = a.ACBonus
	}
	if id := ch.Equipment.Shield; id != "" {
		s, err := lookup(id, equipment.SlotShield)
		if err != nil {
			return nil, err
		}
		c.ShieldBonus = s.ACBonus
	}
	c.Attacks = []Attack{attack}
	if c.CurrentHP == 0 {
		c.Status = StatusUnconscious
	}
	return c, nil
}

// FromMonster builds the combatant view of a spawned monster.
//
// Precondition: inst must not be nil and its attack damage expressions must parse.
// Postcondition: ArmorClass() equals inst.AC.
func FromMonster(inst *monster.Instance) (*Combatant, error) {
	attrs := Attributes{
		Strength:     orDefault(inst.Abilities.Strength),
		Intelligence: orDefault(inst.Abilities.Intelligence),
		Piety:        orDefault(inst.Abilities.Piety),
		Vitality:     orDefault(inst.Abilities.Vitality),
		Agility:      orDefault(inst.Abilities.Agility),
		Luck:         orDefault(inst.Abilities.Luck),
	}
	attacks := make([]Attack, 0, len(inst.Attacks))
	for _, a := range inst.Attacks {
		expr, err := dice.Parse(a.Damage)
		if err != nil {
			return nil, fmt.Errorf("monster %q attack %q: %w", inst.ID, a.Name, err)
		}
		attacks = append(attacks, Attack{
			Name:       a.Name,
			Damage:     expr,
			Ranged:     a.Ranged,
			AreaEffect: a.AreaEffect,
			HitBonus:   a.HitBonus,
		})
	}
	c := &Combatant{
		ID:              inst.ID,
		Name:            inst.Name,
		Side:            SideEnemy,
		Level:           inst.Level,
		CurrentHP:       max(0, min(inst.CurrentHP, inst.MaxHP)),
		MaxHP:           inst.MaxHP,
		Attributes:      attrs,
		ArmorClassBase:  inst.AC + AbilityMod(attrs.Agility),
		Attacks:         attacks,
		Row:             formation.Front,
		Status:          StatusOK,
		TemplateID:      inst.TemplateID,
		AIType:          inst.AIType,
		ExperienceValue: inst.Experience,
		Loot:            inst.Loot,
	}
	if c.CurrentHP == 0 {
		c.Status = StatusUnconscious
	}
	return c, nil
}

func orDefault(score int) int {
	if score == 0 {
		return defaultMonsterAttribute
	}
	return score
}
