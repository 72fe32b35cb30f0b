package ai

import (
	"github.com/cory-johannsen/crawler/internal/game/combat"
	"github.com/cory-johannsen/crawler/internal/scripting"
)

// Scripted returns a Policy that asks the choose_target Lua hook registered
// for the actor's monster template. A nil manager, a missing hook or an
// answer naming no candidate yields nil. Dice the hook rolls come from
// s.Random.
func Scripted(scripts *scripting.Manager) Policy {
	return PolicyFunc(func(s Situation) *combat.Combatant {
		if scripts == nil {
			return nil
		}
		infos := make([]scripting.CombatantInfo, len(s.Candidates))
		for i, c := range s.Candidates {
			infos[i] = info(c)
		}
		id, ok := scripts.ChooseTarget(s.Actor.TemplateID, info(s.Actor), infos, s.Random)
		if !ok {
			return nil
		}
		for _, c := range s.Candidates {
			if c.ID == id {
				return c
			}
		}
		return nil
	})
}

func info(c *combat.Combatant) scripting.CombatantInfo {
	return scripting.CombatantInfo{
		UID:         c.ID,
		Name:        c.Name,
		HP:          c.CurrentHP,
		MaxHP:       c.MaxHP,
		AC:          c.ArmorClass(),
		Row:         c.Row.String(),
		Spellcaster: c.IsSpellcaster(),
	}
}
