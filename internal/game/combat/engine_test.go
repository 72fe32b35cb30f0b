package combat_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crawler/internal/game/character"
	"github.com/cory-johannsen/crawler/internal/game/combat"
	"github.com/cory-johannsen/crawler/internal/game/dice"
	"github.com/cory-johannsen/crawler/internal/game/equipment"
	"github.com/cory-johannsen/crawler/internal/game/formation"
	"github.com/cory-johannsen/crawler/internal/game/inventory"
	"github.com/cory-johannsen/crawler/internal/game/monster"
	"github.com/cory-johannsen/crawler/internal/game/spell"
)

type metricsRecorder struct {
	resolved []string
	rejected []string
	waves    int
	finished []string
	rounds   int
}

func (m *metricsRecorder) ActionResolved(actionType, outcome string) {
	m.resolved = append(m.resolved, actionType+":"+outcome)
}
func (m *metricsRecorder) ActionRejected(kind string) { m.rejected = append(m.rejected, kind) }
func (m *metricsRecorder) WaveCleared()               { m.waves++ }
func (m *metricsRecorder) EncounterFinished(result string, rounds int) {
	m.finished = append(m.finished, result)
	m.rounds = rounds
}

type fixture struct {
	rnd     *scriptedRandom
	events  *recorder
	metrics *metricsRecorder
	roster  *character.Roster
	stash   *inventory.Stash
	engine  *combat.Engine
}

func newFixture(t *testing.T, party []*character.Character, opts ...combat.Option) *fixture {
	t.Helper()
	items := inventory.NewRegistry()
	require.NoError(t, items.RegisterItem(&inventory.ItemDef{
		ID: "potion", Name: "Potion", Effect: inventory.EffectHeal, Dice: "1d4",
		Target: inventory.TargetSingleAlly, MaxStack: 5,
	}))
	spells := spell.NewRegistry()
	for _, d := range []*spell.Def{
		{ID: "heal", Name: "Heal", School: spell.Divine, Level: 1, Effect: spell.EffectHeal, Dice: "1d8", Target: spell.TargetSingleAlly},
		{ID: "sleep", Name: "Sleep", School: spell.Arcane, Level: 1, Effect: spell.EffectControl, Target: spell.TargetSingleEnemy},
		{ID: "bolt", Name: "Bolt", School: spell.Arcane, Level: 1, Effect: spell.EffectDamage, Dice: "2d4", Target: spell.TargetSingleEnemy},
	} {
		require.NoError(t, spells.Register(d))
	}
	equip := equipment.NewRegistry()
	for _, d := range []*equipment.Def{
		{ID: "sword", Name: "Sword", Slot: equipment.SlotWeapon, WeaponType: "sword"},
		{ID: "spear", Name: "Spear", Slot: equipment.SlotWeapon, WeaponType: "spear"},
		{ID: "plate", Name: "Plate Mail", Slot: equipment.SlotArmor, ACBonus: 4},
		{ID: "buckler", Name: "Buckler", Slot: equipment.SlotShield, ACBonus: 1},
	} {
		require.NoError(t, equip.Register(d))
	}

	f := &fixture{
		rnd:     &scriptedRandom{},
		events:  &recorder{},
		metrics: &metricsRecorder{},
		roster:  character.NewRoster(party),
		stash:   inventory.NewStash(items),
	}
	base := []combat.Option{combat.WithClock(fixedClock), combat.WithMetrics(f.metrics)}
	f.engine = combat.NewEngine(combat.Dependencies{
		Random:     f.rnd,
		Controller: firstTargetController{},
		Equipment:  equip,
		Spells:     spells,
		Inventory:  f.stash,
		Party:      f.roster,
		Events:     f.events,
	}, append(base, opts...)...)
	return f
}

func (f *fixture) start(t *testing.T, surprise combat.Surprise, waves ...[]*monster.Instance) {
	t.Helper()
	party, err := f.roster.Living(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.engine.StartCombat(party, waves, surprise))
}

func (f *fixture) act(t *testing.T, a combat.Action) *combat.Outcome {
	t.Helper()
	out, err := f.engine.ProcessAction(context.Background(), a)
	require.NoError(t, err)
	return out
}

func attack(actor, target string) combat.Action {
	return combat.Action{Type: combat.ActionAttack, ActorID: actor, TargetID: target}
}

func messages(entries []combat.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func currentID(t *testing.T, e *combat.Engine) string {
	t.Helper()
	c, err := e.CurrentActor()
	require.NoError(t, err)
	return c.ID
}

func TestEngine_RejectsActionsBeforeStart(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})

	_, err := f.engine.ProcessAction(context.Background(), attack("f1", "g1"))
	assert.ErrorIs(t, err, combat.ErrCombatNotStarted)
	_, err = f.engine.CurrentActor()
	assert.ErrorIs(t, err, combat.ErrCombatNotStarted)
	_, err = f.engine.Step(context.Background())
	assert.ErrorIs(t, err, combat.ErrCombatNotStarted)
	_, err = f.engine.MoveCharacter("f1", formation.Back)
	assert.ErrorIs(t, err, combat.ErrCombatNotStarted)
	assert.Equal(t, combat.PhaseNotStarted, f.engine.Phase())
}

func TestEngine_StartCombat_RejectsInvalidEncounter(t *testing.T) {
	fullParty := make([]*character.Character, 7)
	for i := range fullParty {
		fullParty[i] = newHero(fmt.Sprintf("h%d", i), "fighter", 10)
	}
	down := newHero("f1", "fighter", 10)
	down.CurrentHP = 0

	cases := []struct {
		name  string
		party []*character.Character
		waves [][]*monster.Instance
	}{
		{"no party", nil, [][]*monster.Instance{{newMonster("g1", 5, 10)}}},
		{"nobody able to fight", []*character.Character{down}, [][]*monster.Instance{{newMonster("g1", 5, 10)}}},
		{"no waves", []*character.Character{newHero("f1", "fighter", 10)}, nil},
		{"empty wave", []*character.Character{newHero("f1", "fighter", 10)}, [][]*monster.Instance{{newMonster("g1", 5, 10)}, {}}},
		{"duplicate ids", []*character.Character{newHero("x", "fighter", 10)}, [][]*monster.Instance{{newMonster("x", 5, 10)}}},
		{"formation overflow", fullParty, [][]*monster.Instance{{newMonster("g1", 5, 10)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			err := f.engine.StartCombat(tc.party, tc.waves, combat.SurpriseNone)
			require.ErrorIs(t, err, combat.ErrInvalidEncounter)
			assert.Equal(t, combat.PhaseNotStarted, f.engine.Phase())
			assert.Empty(t, f.events.events)
		})
	}
}

func TestEngine_StartCombat_PublishesCombatStarted(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)}, combat.WithLogger(zap.New(core)))
	f.rnd.dies = []int{6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 5, 10)})

	assert.Equal(t, combat.PhaseActive, f.engine.Phase())
	assert.Equal(t, combat.StateActionSelection, f.engine.State())
	assert.Equal(t, "f1", currentID(t, f.engine))
	assert.Equal(t, []combat.TurnEntry{{CombatantID: "f1", Initiative: 17}, {CombatantID: "g1", Initiative: 11}}, f.engine.TurnOrder())
	snap := f.engine.Formation()
	assert.Equal(t, []string{"f1"}, snap.PartyFront)
	assert.Equal(t, []string{"g1"}, snap.EnemyFront)

	require.Len(t, f.events.events, 1)
	started, ok := f.events.events[0].(combat.CombatStarted)
	require.True(t, ok)
	assert.Equal(t, "f1", started.FirstActor.ID)
	assert.Equal(t, "easy", started.Difficulty)
	assert.Equal(t, 1, started.Encounter.Waves)
	assert.Equal(t, []int{1}, started.Encounter.WaveSizes)
	assert.Equal(t, combat.SurpriseNone, started.SurpriseRound)
	assert.Equal(t, 1, logs.FilterMessage("combat started").Len())

	err := f.engine.StartCombat([]*character.Character{newHero("f9", "fighter", 5)}, [][]*monster.Instance{{newMonster("g9", 5, 10)}}, combat.SurpriseNone)
	assert.ErrorIs(t, err, combat.ErrInvalidEncounter, "a second start while active is refused")
}

func TestDifficulty(t *testing.T) {
	assert.Equal(t, "easy", combat.Difficulty(100, 49))
	assert.Equal(t, "normal", combat.Difficulty(100, 50))
	assert.Equal(t, "hard", combat.Difficulty(100, 100))
	assert.Equal(t, "deadly", combat.Difficulty(100, 200))
	assert.Equal(t, "deadly", combat.Difficulty(0, 1))
}

func TestEngine_FighterSlaysKobold(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	hero := newHero("f1", "fighter", 20)
	hero.Attributes.Strength = 16
	hero.Equipment = character.Equipment{Weapon: "sword", Armor: "plate", Shield: "buckler"}
	f := newFixture(t, []*character.Character{hero}, combat.WithLogger(zap.New(core)))

	kobold := newMonster("k1", 4, 7)
	kobold.Loot = &monster.LootTable{Gold: &monster.GoldDrop{Min: 5, Max: 10}}
	f.rnd.dies = []int{6, 1, 15, 4}
	f.start(t, combat.SurpriseNone, []*monster.Instance{kobold})

	fighter, ok := f.engine.Combatant("f1")
	require.True(t, ok)
	assert.Equal(t, 5, fighter.ArmorClass())
	k, _ := f.engine.Combatant("k1")
	assert.Equal(t, 7, k.ArmorClass())

	out := f.act(t, attack("f1", "k1"))

	assert.True(t, out.Result.Success)
	assert.Equal(t, 15, out.Result.Roll)
	assert.Equal(t, 7, out.Result.Damage)
	assert.Nil(t, out.NextActor)
	assert.Equal(t, []string{
		"F1 hits k1 with Sword for 7 damage.",
		"k1 is defeated.",
		"Victory! All enemies have been defeated.",
	}, messages(out.LogTail))

	k, _ = f.engine.Combatant("k1")
	assert.Equal(t, 0, k.CurrentHP)
	assert.Equal(t, combat.StatusUnconscious, k.Status)
	assert.Equal(t, combat.PhaseVictory, f.engine.Phase())

	assert.Equal(t, []string{"combat-started", "character-updated", "combat-action-processed", "combat-ended"}, f.events.names())
	ended := f.events.events[3].(combat.CombatEnded)
	assert.True(t, ended.Victory)
	assert.Equal(t, combat.Rewards{Experience: 10, Gold: 5}, ended.Rewards)
	assert.Empty(t, ended.Casualties)

	assert.Equal(t, 5, f.stash.Gold())
	stored, ok := f.roster.Get("f1")
	require.True(t, ok)
	assert.Equal(t, 10, stored.Experience)
	assert.Equal(t, 20, stored.CurrentHP)
	assert.Equal(t, character.StatusOK, stored.Status)

	assert.Equal(t, []string{"attack:success"}, f.metrics.resolved)
	assert.Equal(t, []string{"victory"}, f.metrics.finished)
	assert.Equal(t, 1, logs.FilterMessage("combat ended").Len())

	_, err := f.engine.ProcessAction(context.Background(), attack("f1", "k1"))
	assert.ErrorIs(t, err, combat.ErrEncounterAlreadyResolved)
	assert.Equal(t, []string{"already_resolved"}, f.metrics.rejected)
}

func TestEngine_TwoEnemyVictorySumsExperience(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	g1 := newMonster("g1", 3, 10)
	g2 := newMonster("g2", 3, 10)
	g2.Experience = 15
	f.rnd.dies = []int{6, 1, 1, 10, 4}
	f.start(t, combat.SurpriseNone, []*monster.Instance{g1, g2})

	out := f.act(t, attack("f1", "g1"))
	require.NotNil(t, out.NextActor)
	assert.Equal(t, "g2", out.NextActor.ID, "defeated g1 loses its turn")

	f.rnd.dies = []int{2}
	out, err := f.engine.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Result.Success)
	assert.Equal(t, "f1", out.NextActor.ID)
	assert.Equal(t, 2, f.engine.Round())

	f.rnd.dies = []int{10, 4}
	f.act(t, attack("f1", "g2"))

	require.Equal(t, combat.PhaseVictory, f.engine.Phase())
	ended := f.events.events[len(f.events.events)-1].(combat.CombatEnded)
	assert.Equal(t, 25, ended.Rewards.Experience)
	stored, _ := f.roster.Get("f1")
	assert.Equal(t, 25, stored.Experience)
}

func TestEngine_ExperienceSplitsBetweenStandingMembers(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20), newHero("f2", "fighter", 20)})
	g := newMonster("g1", 3, 10)
	g.Experience = 9
	f.rnd.dies = []int{6, 1, 1, 10, 4}
	f.start(t, combat.SurpriseNone, []*monster.Instance{g})

	f.act(t, attack("f1", "g1"))

	a, _ := f.roster.Get("f1")
	b, _ := f.roster.Get("f2")
	assert.Equal(t, 4, a.Experience)
	assert.Equal(t, 4, b.Experience)
}

func TestEngine_MissPassesTurn(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{6, 1, 2}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 5, 10)})

	out := f.act(t, attack("f1", "g1"))

	assert.False(t, out.Result.Success)
	assert.Equal(t, []string{"F1 attacks g1 with attack and misses."}, messages(out.LogTail))
	require.NotNil(t, out.NextActor)
	assert.Equal(t, "g1", out.NextActor.ID)
	assert.Equal(t, []string{"attack:failure"}, f.metrics.resolved)
}

func TestEngine_OutOfTurnActionLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 5, 10)})
	before := f.engine.Combatants()
	logBefore := f.engine.Log()

	_, err := f.engine.ProcessAction(context.Background(), attack("g1", "f1"))

	require.ErrorIs(t, err, combat.ErrOutOfTurnAction)
	assert.Equal(t, before, f.engine.Combatants())
	assert.Equal(t, logBefore, f.engine.Log())
	assert.Equal(t, "f1", currentID(t, f.engine))
	assert.Equal(t, []string{"out_of_turn"}, f.metrics.rejected)
}

func TestEngine_Property_OutOfTurnAlwaysRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Int64().Draw(rt, "seed")
		ids := []string{"f1", "f2", "g1", "g2"}
		e := combat.NewEngine(combat.Dependencies{Random: dice.NewLoggedRoller(dice.NewSeededSource(seed), nil)})
		party := []*character.Character{newHero("f1", "fighter", 20), newHero("f2", "thief", 20)}
		wave := []*monster.Instance{newMonster("g1", 10, 10), newMonster("g2", 10, 10)}
		require.NoError(rt, e.StartCombat(party, [][]*monster.Instance{wave}, combat.SurpriseNone))

		cur, err := e.CurrentActor()
		require.NoError(rt, err)
		var others []string
		for _, id := range ids {
			if id != cur.ID {
				others = append(others, id)
			}
		}
		actor := rapid.SampledFrom(others).Draw(rt, "actor")
		target := rapid.SampledFrom(ids).Draw(rt, "target")
		kind := rapid.SampledFrom([]combat.ActionType{combat.ActionAttack, combat.ActionDefend, combat.ActionFlee}).Draw(rt, "kind")

		before := e.Combatants()
		logBefore := e.Log()
		_, err = e.ProcessAction(context.Background(), combat.Action{Type: kind, ActorID: actor, TargetID: target})
		assert.ErrorIs(rt, err, combat.ErrOutOfTurnAction)
		assert.Equal(rt, before, e.Combatants())
		assert.Equal(rt, logBefore, e.Log())
	})
}

func TestEngine_BackRowMageCannotMelee(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20), newHero("m1", "mage", 12)})
	f.rnd.dies = []int{1, 6, 1, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10), newArcher("a1", 8, 10)})

	require.Equal(t, "m1", currentID(t, f.engine))
	snap := f.engine.Formation()
	assert.Equal(t, []string{"f1"}, snap.PartyFront)
	assert.Equal(t, []string{"m1"}, snap.PartyBack)
	assert.Equal(t, []string{"g1"}, snap.EnemyFront)
	assert.Equal(t, []string{"a1"}, snap.EnemyBack)
	logBefore := f.engine.Log()

	_, err := f.engine.ProcessAction(context.Background(), attack("m1", "g1"))
	require.ErrorIs(t, err, combat.ErrIllegalActionForActor)
	assert.Equal(t, logBefore, f.engine.Log())
	assert.Equal(t, "m1", currentID(t, f.engine))

	_, err = f.engine.MoveCharacter("f1", formation.Back)
	require.ErrorIs(t, err, combat.ErrOutOfTurnAction)

	snap, err = f.engine.MoveCharacter("m1", formation.Front)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "m1"}, snap.PartyFront)
	m, _ := f.engine.Combatant("m1")
	assert.Equal(t, formation.Front, m.Row)
	assert.Equal(t, "m1", currentID(t, f.engine), "moving does not consume the turn")

	_, err = f.engine.ProcessAction(context.Background(), attack("m1", "a1"))
	require.ErrorIs(t, err, combat.ErrInvalidTarget, "the enemy front row shields the archer from melee")

	f.rnd.dies = []int{10, 3}
	out := f.act(t, attack("m1", "g1"))
	assert.Equal(t, 3, out.Result.Damage)
}

func TestEngine_ReachWeaponMeleesFromBackRow(t *testing.T) {
	mage := newHero("m1", "mage", 12)
	mage.Equipment.Weapon = "spear"
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20), mage})
	f.rnd.dies = []int{1, 6, 1, 11, 2}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	require.Equal(t, "m1", currentID(t, f.engine))
	out := f.act(t, attack("m1", "g1"))
	assert.True(t, out.Result.Success)
	assert.Equal(t, 1, out.Result.Damage, "back-row melee deals one less damage")
}

func TestEngine_MoveCharacter_FullRow(t *testing.T) {
	party := []*character.Character{
		newHero("f1", "fighter", 20), newHero("f2", "fighter", 20),
		newHero("f3", "fighter", 20), newHero("f4", "fighter", 20),
	}
	f := newFixture(t, party)
	f.rnd.dies = []int{1, 1, 1, 6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	require.Equal(t, "f4", currentID(t, f.engine))
	assert.Equal(t, []string{"f4"}, f.engine.Formation().PartyBack)

	_, err := f.engine.MoveCharacter("f4", formation.Front)
	require.ErrorIs(t, err, combat.ErrIllegalActionForActor)
	assert.ErrorIs(t, err, formation.ErrRowFull)
	assert.Equal(t, []string{"f4"}, f.engine.Formation().PartyBack)
}

func TestEngine_InvalidTargets(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20), newHero("f2", "fighter", 20)})
	f.rnd.dies = []int{6, 1, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)}, []*monster.Instance{newMonster("g2", 10, 10)})

	cases := map[string]combat.Action{
		"missing target": attack("f1", "nobody"),
		"ally":           attack("f1", "f2"),
		"later wave":     attack("f1", "g2"),
	}
	for name, a := range cases {
		_, err := f.engine.ProcessAction(context.Background(), a)
		assert.ErrorIs(t, err, combat.ErrInvalidTarget, name)
	}
	_, err := f.engine.ProcessAction(context.Background(), combat.Action{Type: combat.ActionAttack, ActorID: "f1", TargetID: "g1", AttackIndex: 3})
	assert.ErrorIs(t, err, combat.ErrIllegalActionForActor)
	_, err = f.engine.ProcessAction(context.Background(), combat.Action{Type: "dance", ActorID: "f1"})
	assert.ErrorIs(t, err, combat.ErrIllegalActionForActor)
	assert.Empty(t, f.engine.Log())
}

func TestEngine_RemovedCombatantsAreInvalidTargets(t *testing.T) {
	healer := newHero("f3", "fighter", 20)
	healer.PreparedSpells = map[string]int{"heal": 1}
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20), newHero("f2", "fighter", 20), healer})
	f.rnd.dies = []int{6, 5, 4, 1, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 1, 10), newMonster("g2", 10, 10)})
	require.Equal(t, "f1", currentID(t, f.engine))

	f.rnd.dies = []int{15, 4}
	f.act(t, attack("f1", "g1"))
	f.rnd.chances = []bool{true}
	f.act(t, combat.Action{Type: combat.ActionFlee, ActorID: "f2"})
	require.Equal(t, "f3", currentID(t, f.engine))

	logLen := len(f.engine.Log())
	before, _ := f.engine.Combatant("f3")

	cases := map[string]combat.Action{
		"downed enemy":       attack("f3", "g1"),
		"fled ally healed":   {Type: combat.ActionSpell, ActorID: "f3", SpellID: "heal", TargetID: "f2"},
		"fled ally attacked": attack("f3", "f2"),
	}
	for name, a := range cases {
		_, err := f.engine.ProcessAction(context.Background(), a)
		assert.ErrorIs(t, err, combat.ErrInvalidTarget, name)
	}

	assert.Len(t, f.engine.Log(), logLen)
	assert.Equal(t, "f3", currentID(t, f.engine))
	after, _ := f.engine.Combatant("f3")
	assert.Equal(t, before.PreparedSpells, after.PreparedSpells)
	g1, _ := f.engine.Combatant("g1")
	assert.Equal(t, 0, g1.CurrentHP)
	f2, _ := f.engine.Combatant("f2")
	assert.Equal(t, combat.StatusFled, f2.Status)
	assert.Equal(t, 20, f2.CurrentHP)
}

func TestEngine_TurnOrderDropsDefeatedCombatants(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{1, 6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 1, 10), newMonster("g2", 10, 10)})
	require.Equal(t, []combat.TurnEntry{
		{CombatantID: "g1", Initiative: 16},
		{CombatantID: "f1", Initiative: 12},
		{CombatantID: "g2", Initiative: 11},
	}, f.engine.TurnOrder())

	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "g1"})
	f.rnd.dies = []int{15, 4}
	out := f.act(t, attack("f1", "g1"))

	assert.Contains(t, messages(out.LogTail), "g1 is defeated.")
	assert.Equal(t, []combat.TurnEntry{
		{CombatantID: "f1", Initiative: 12},
		{CombatantID: "g2", Initiative: 11},
	}, f.engine.TurnOrder())
}

func TestEngine_FailedFleeProvokesFreeAttack(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{6, 1, 15, 2}
	f.rnd.chances = []bool{false}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	out := f.act(t, combat.Action{Type: combat.ActionFlee, ActorID: "f1"})

	assert.False(t, out.Result.Success)
	require.NotNil(t, out.Result.FreeAttack)
	assert.Equal(t, "g1", out.Result.FreeAttack.ActorID)
	assert.Equal(t, []string{
		"F1 tries to flee but cannot escape!",
		"g1 hits F1 with claw for 2 damage.",
	}, messages(out.LogTail))
	hero, _ := f.engine.Combatant("f1")
	assert.Equal(t, 18, hero.CurrentHP)
	assert.Equal(t, "g1", out.NextActor.ID, "the scheduled turn follows the free attack")
}

func TestEngine_SuccessfulFleeDisconnectsCharacter(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{6, 1}
	f.rnd.chances = []bool{true}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	f.act(t, combat.Action{Type: combat.ActionFlee, ActorID: "f1"})

	assert.Equal(t, combat.PhaseDefeat, f.engine.Phase())
	defeated := f.events.events[len(f.events.events)-1].(combat.PartyDefeated)
	assert.False(t, defeated.TotalDefeat)
	assert.Equal(t, []string{"f1"}, defeated.DisconnectedCharacters)
	assert.Empty(t, defeated.Casualties)
	stored, _ := f.roster.Get("f1")
	assert.Equal(t, character.StatusDisoriented, stored.Status)
	assert.Equal(t, 20, stored.CurrentHP)
}

func TestEngine_PartyDefeat(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 1)})
	f.rnd.dies = []int{1, 6, 15, 3}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})
	require.Equal(t, "g1", currentID(t, f.engine))

	out, err := f.engine.Step(context.Background())
	require.NoError(t, err)

	assert.Nil(t, out.NextActor)
	assert.Equal(t, []string{
		"g1 hits F1 with claw for 3 damage.",
		"F1 falls unconscious.",
		"The party has been defeated.",
	}, messages(out.LogTail))
	assert.Equal(t, combat.PhaseDefeat, f.engine.Phase())
	defeated := f.events.events[len(f.events.events)-1].(combat.PartyDefeated)
	assert.True(t, defeated.TotalDefeat)
	assert.Equal(t, []string{"f1"}, defeated.Casualties)
	stored, _ := f.roster.Get("f1")
	assert.Equal(t, 0, stored.CurrentHP)
	assert.Equal(t, character.StatusUnconscious, stored.Status)
	assert.Equal(t, []string{"defeat"}, f.metrics.finished)
}

func TestEngine_InstantKillForcesZeroHP(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{6, 1, 20, 1, 20}
	f.rnd.chances = []bool{true}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 50, 10)})

	out := f.act(t, attack("f1", "g1"))

	assert.True(t, out.Result.Instant)
	g, _ := f.engine.Combatant("g1")
	assert.Equal(t, 0, g.CurrentHP)
	assert.Equal(t, combat.StatusUnconscious, g.Status)
	assert.Equal(t, combat.PhaseVictory, f.engine.Phase())
	assert.Equal(t, []string{"attack:instant_kill"}, f.metrics.resolved)
}

func TestEngine_WaveProgression(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{6, 1, 10, 1, 3, 5}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 1, 10)}, []*monster.Instance{newMonster("g2", 1, 10)})

	out := f.act(t, attack("f1", "g1"))

	assert.Equal(t, combat.PhaseActive, f.engine.Phase())
	assert.Equal(t, 1, f.engine.WaveIndex())
	assert.Contains(t, messages(out.LogTail), "Wave 2 of 2 approaches!")
	assert.NotContains(t, f.events.names(), "combat-ended")
	assert.Equal(t, []combat.TurnEntry{{CombatantID: "g2", Initiative: 15}, {CombatantID: "f1", Initiative: 14}}, f.engine.TurnOrder())
	require.NotNil(t, out.NextActor)
	assert.Equal(t, "g2", out.NextActor.ID)
	assert.Equal(t, []string{"g2"}, f.engine.Formation().EnemyFront)
	assert.Equal(t, 1, f.metrics.waves)

	f.rnd.dies = []int{2}
	_, err := f.engine.Step(context.Background())
	require.NoError(t, err)

	f.rnd.dies = []int{10, 1}
	f.act(t, attack("f1", "g2"))
	assert.Equal(t, combat.PhaseVictory, f.engine.Phase())
	ended := f.events.events[len(f.events.events)-1].(combat.CombatEnded)
	assert.Equal(t, 20, ended.Rewards.Experience)
	assert.Equal(t, 2, f.metrics.waves)
}

func TestEngine_SpellConsumedOnSuccess(t *testing.T) {
	hurt := newHero("f1", "fighter", 20)
	hurt.CurrentHP = 10
	priest := newHero("p1", "priest", 12)
	priest.PreparedSpells = map[string]int{"heal": 1}
	f := newFixture(t, []*character.Character{hurt, priest})
	f.rnd.dies = []int{1, 6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})
	require.Equal(t, "p1", currentID(t, f.engine))

	f.rnd.ints = []int{50}
	f.rnd.dies = []int{8}
	out := f.act(t, combat.Action{Type: combat.ActionSpell, ActorID: "p1", SpellID: "heal", TargetID: "f1"})

	assert.True(t, out.Result.Success)
	assert.Equal(t, 8, out.Result.Healing)
	hero, _ := f.engine.Combatant("f1")
	assert.Equal(t, 18, hero.CurrentHP)
	caster, _ := f.engine.Combatant("p1")
	assert.Equal(t, 0, caster.PreparedSpells["heal"])

	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "f1"})
	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "g1"})
	require.Equal(t, "p1", currentID(t, f.engine))

	logBefore := f.engine.Log()
	_, err := f.engine.ProcessAction(context.Background(), combat.Action{Type: combat.ActionSpell, ActorID: "p1", SpellID: "heal", TargetID: "f1"})
	require.ErrorIs(t, err, combat.ErrIllegalActionForActor)
	assert.Equal(t, logBefore, f.engine.Log())
}

func TestEngine_SpellConsumedOnFizzle(t *testing.T) {
	mage := newHero("m1", "mage", 12)
	mage.PreparedSpells = map[string]int{"bolt": 2}
	f := newFixture(t, []*character.Character{mage})
	f.rnd.dies = []int{6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	f.rnd.ints = []int{99}
	out := f.act(t, combat.Action{Type: combat.ActionSpell, ActorID: "m1", SpellID: "bolt", TargetID: "g1"})

	assert.False(t, out.Result.Success)
	assert.Equal(t, "M1 casts Bolt, but the spell fizzles.", out.LogTail[0].Message)
	caster, _ := f.engine.Combatant("m1")
	assert.Equal(t, 1, caster.PreparedSpells["bolt"])
	assert.Equal(t, []string{"spell:failure"}, f.metrics.resolved)
}

func TestEngine_SpellRejections(t *testing.T) {
	mage := newHero("m1", "mage", 12)
	mage.PreparedSpells = map[string]int{"bolt": 1}
	f := newFixture(t, []*character.Character{mage})
	f.rnd.dies = []int{6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	_, err := f.engine.ProcessAction(context.Background(), combat.Action{Type: combat.ActionSpell, ActorID: "m1", SpellID: "meteor", TargetID: "g1"})
	assert.ErrorIs(t, err, combat.ErrIllegalActionForActor)
	_, err = f.engine.ProcessAction(context.Background(), combat.Action{Type: combat.ActionSpell, ActorID: "m1", SpellID: "heal", TargetID: "m1"})
	assert.ErrorIs(t, err, combat.ErrIllegalActionForActor, "heal is not prepared")
	_, err = f.engine.ProcessAction(context.Background(), combat.Action{Type: combat.ActionSpell, ActorID: "m1", SpellID: "bolt", TargetID: "m1"})
	assert.ErrorIs(t, err, combat.ErrInvalidTarget)

	caster, _ := f.engine.Combatant("m1")
	assert.Equal(t, 1, caster.PreparedSpells["bolt"], "rejected casts consume nothing")
}

func TestEngine_ControlSpellHoldsTarget(t *testing.T) {
	mage := newHero("m1", "mage", 12)
	mage.PreparedSpells = map[string]int{"sleep": 1}
	f := newFixture(t, []*character.Character{mage})
	f.rnd.dies = []int{6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	f.rnd.ints = []int{1}
	out := f.act(t, combat.Action{Type: combat.ActionSpell, ActorID: "m1", SpellID: "sleep", TargetID: "g1"})

	assert.Contains(t, messages(out.LogTail), "g1 is held and loses the turn.")
	require.NotNil(t, out.NextActor)
	assert.Equal(t, "m1", out.NextActor.ID)
	assert.Equal(t, 2, f.engine.Round())
	g, _ := f.engine.Combatant("g1")
	assert.False(t, g.Held)
}

func TestEngine_HeldTurnEndsDefence(t *testing.T) {
	mage := newHero("m1", "mage", 12)
	mage.PreparedSpells = map[string]int{"sleep": 1}
	f := newFixture(t, []*character.Character{mage})
	f.rnd.dies = []int{1, 6}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})
	require.Equal(t, "g1", currentID(t, f.engine))

	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "g1"})
	g, _ := f.engine.Combatant("g1")
	require.True(t, g.IsDefending)
	require.Equal(t, 8, g.ArmorClass())

	f.rnd.ints = []int{1}
	out := f.act(t, combat.Action{Type: combat.ActionSpell, ActorID: "m1", SpellID: "sleep", TargetID: "g1"})

	assert.Contains(t, messages(out.LogTail), "g1 is held and loses the turn.")
	require.NotNil(t, out.NextActor)
	assert.Equal(t, "m1", out.NextActor.ID)
	g, _ = f.engine.Combatant("g1")
	assert.False(t, g.Held)
	assert.False(t, g.IsDefending)
	assert.Equal(t, 10, g.ArmorClass())
}

func TestEngine_ItemUse(t *testing.T) {
	hero := newHero("f1", "fighter", 20)
	hero.CurrentHP = 10
	f := newFixture(t, []*character.Character{hero})
	_, err := f.stash.Add("potion", 1)
	require.NoError(t, err)
	f.rnd.dies = []int{6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	f.rnd.dies = []int{3}
	out := f.act(t, combat.Action{Type: combat.ActionItem, ActorID: "f1", ItemID: "potion", TargetID: "f1"})

	assert.Equal(t, 3, out.Result.Healing)
	assert.Equal(t, 0, f.stash.Count("potion"))
	h, _ := f.engine.Combatant("f1")
	assert.Equal(t, 13, h.CurrentHP)

	_, err = f.engine.ProcessAction(context.Background(), combat.Action{Type: combat.ActionItem, ActorID: "g1", ItemID: "potion", TargetID: "g1"})
	assert.ErrorIs(t, err, combat.ErrIllegalActionForActor, "monsters cannot use party items")
	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "g1"})

	_, err = f.engine.ProcessAction(context.Background(), combat.Action{Type: combat.ActionItem, ActorID: "f1", ItemID: "potion", TargetID: "f1"})
	assert.ErrorIs(t, err, combat.ErrIllegalActionForActor, "out of potions")
}

func TestEngine_DefendClearedByAttackOrNextTurn(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20), newHero("f2", "fighter", 20)})
	f.rnd.dies = []int{6, 1, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "f1"})
	h, _ := f.engine.Combatant("f1")
	assert.True(t, h.IsDefending)
	assert.Equal(t, 8, h.ArmorClass())
	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "f2"})

	f.rnd.dies = []int{2}
	out := f.act(t, attack("g1", "f1"))
	require.Equal(t, "f1", out.NextActor.ID)
	h, _ = f.engine.Combatant("f1")
	assert.False(t, h.IsDefending)
	h2, _ := f.engine.Combatant("f2")
	assert.True(t, h2.IsDefending, "f2 was not attacked and its turn has not begun")

	f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "f1"})
	h2, _ = f.engine.Combatant("f2")
	assert.False(t, h2.IsDefending, "the stance ends when the next turn begins")
}

func TestEngine_SurpriseRound(t *testing.T) {
	t.Run("enemies surprised", func(t *testing.T) {
		f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
		f.rnd.dies = []int{1, 6, 2}
		f.start(t, combat.SurpriseEnemies, []*monster.Instance{newMonster("g1", 20, 10)})

		assert.Equal(t, "f1", currentID(t, f.engine), "the party opens despite lower initiative")
		assert.Equal(t, "The enemies are caught off guard!", f.engine.Log()[0].Message)
		started := f.events.events[0].(combat.CombatStarted)
		assert.Equal(t, combat.SurpriseEnemies, started.SurpriseRound)

		out := f.act(t, attack("f1", "g1"))
		assert.Equal(t, "g1", out.NextActor.ID)
		assert.Equal(t, 2, f.engine.Round())
	})
	t.Run("party surprised", func(t *testing.T) {
		f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
		f.rnd.dies = []int{6, 1}
		f.start(t, combat.SurpriseParty, []*monster.Instance{newMonster("g1", 20, 10)})

		assert.Equal(t, "g1", currentID(t, f.engine))
		out := f.act(t, combat.Action{Type: combat.ActionDefend, ActorID: "g1"})
		assert.Equal(t, "f1", out.NextActor.ID)
	})
}

type badController struct{}

func (badController) ChooseAction(actor *combat.Combatant, _ *combat.Battlefield, _ combat.Random) (combat.Action, error) {
	return attack(actor.ID, "nobody"), nil
}

func TestEngine_Step(t *testing.T) {
	f := newFixture(t, []*character.Character{newHero("f1", "fighter", 20)})
	f.rnd.dies = []int{6, 1}
	f.start(t, combat.SurpriseNone, []*monster.Instance{newMonster("g1", 10, 10)})

	_, err := f.engine.Step(context.Background())
	assert.ErrorIs(t, err, combat.ErrAwaitingPlayer)

	noCtrl := combat.NewEngine(combat.Dependencies{Random: &scriptedRandom{dies: []int{1, 6}}})
	require.NoError(t, noCtrl.StartCombat([]*character.Character{newHero("f1", "fighter", 20)}, [][]*monster.Instance{{newMonster("g1", 10, 10)}}, combat.SurpriseNone))
	_, err = noCtrl.Step(context.Background())
	assert.ErrorIs(t, err, combat.ErrNoController)

	bad := combat.NewEngine(combat.Dependencies{Random: &scriptedRandom{dies: []int{1, 6}}, Controller: badController{}})
	require.NoError(t, bad.StartCombat([]*character.Character{newHero("f1", "fighter", 20)}, [][]*monster.Instance{{newMonster("g1", 10, 10)}}, combat.SurpriseNone))
	out, err := bad.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, combat.ActionDefend, out.Result.Action)
}

// playOut drives e to completion with firstTargetController on both sides.
func playOut(t require.TestingT, e *combat.Engine, maxActions int, check func()) {
	ctrl := firstTargetController{}
	for i := 0; i < maxActions && e.Phase() == combat.PhaseActive; i++ {
		actor, err := e.CurrentActor()
		require.NoError(t, err)
		if actor.IsPlayer() {
			a, _ := ctrl.ChooseAction(actor, e.Battlefield(), nil)
			_, err = e.ProcessAction(context.Background(), a)
		} else {
			_, err = e.Step(context.Background())
		}
		require.NoError(t, err)
		check()
	}
}

func TestEngine_Property_HPStaysInBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Int64().Draw(rt, "seed")
		nParty := rapid.IntRange(1, 4).Draw(rt, "party")
		nEnemies := rapid.IntRange(1, 4).Draw(rt, "enemies")
		classes := []string{"fighter", "mage", "priest", "thief"}
		var party []*character.Character
		for i := 0; i < nParty; i++ {
			party = append(party, newHero(fmt.Sprintf("p%d", i), classes[i], rapid.IntRange(1, 20).Draw(rt, "hp")))
		}
		var wave []*monster.Instance
		for i := 0; i < nEnemies; i++ {
			m := newMonster(fmt.Sprintf("m%d", i), rapid.IntRange(1, 20).Draw(rt, "monster_hp"), 10)
			if rapid.Bool().Draw(rt, "archer") {
				m.Attacks = []monster.Attack{{Name: "arrow", Damage: "1d6", Ranged: true}}
			}
			wave = append(wave, m)
		}
		e := combat.NewEngine(combat.Dependencies{
			Random:     dice.NewLoggedRoller(dice.NewSeededSource(seed), nil),
			Controller: firstTargetController{},
		})
		require.NoError(rt, e.StartCombat(party, [][]*monster.Instance{wave}, combat.SurpriseNone))

		playOut(rt, e, 500, func() {
			for _, c := range e.Combatants() {
				assert.GreaterOrEqual(rt, c.CurrentHP, 0, c.ID)
				assert.LessOrEqual(rt, c.CurrentHP, c.MaxHP, c.ID)
				if c.CurrentHP == 0 {
					assert.NotEqual(rt, combat.StatusOK, c.Status, c.ID)
				}
			}
			if e.Phase() == combat.PhaseActive {
				cur, err := e.CurrentActor()
				require.NoError(rt, err)
				assert.True(rt, cur.Eligible(), "current actor %s must be able to act", cur.ID)
			}
		})
	})
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() ([]combat.LogEntry, []combat.Combatant) {
		e := combat.NewEngine(combat.Dependencies{
			Random:     dice.NewLoggedRoller(dice.NewSeededSource(42), nil),
			Controller: firstTargetController{},
		}, combat.WithClock(fixedClock))
		party := []*character.Character{newHero("f1", "fighter", 15), newHero("t1", "thief", 10)}
		waves := [][]*monster.Instance{
			{newMonster("g1", 8, 10), newArcher("a1", 6, 10)},
			{newMonster("g2", 8, 10)},
		}
		require.NoError(t, e.StartCombat(party, waves, combat.SurpriseNone))
		playOut(t, e, 500, func() {})
		return e.Log(), e.Combatants()
	}
	log1, final1 := run()
	log2, final2 := run()
	assert.NotEmpty(t, log1)
	assert.Equal(t, log1, log2)
	assert.Equal(t, final1, final2)
}
