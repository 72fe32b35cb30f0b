package combat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/game/character"
	"github.com/cory-johannsen/crawler/internal/game/formation"
	"github.com/cory-johannsen/crawler/internal/game/inventory"
	"github.com/cory-johannsen/crawler/internal/game/monster"
	"github.com/cory-johannsen/crawler/internal/game/spell"
)

// Phase is the encounter-level state.
type Phase string

const (
	PhaseNotStarted     Phase = "not_started"
	PhaseActive         Phase = "active"
	PhaseWaveTransition Phase = "wave_transition"
	PhaseVictory        Phase = "victory"
	PhaseDefeat         Phase = "defeat"
)

// TurnState is the per-turn state of the engine.
type TurnState string

const (
	StateInitiative      TurnState = "initiative"
	StateActionSelection TurnState = "action_selection"
	StateResolution      TurnState = "resolution"
	StateCleanup         TurnState = "cleanup"
)

// MonsterController chooses actions for enemy combatants.
type MonsterController interface {
	ChooseAction(actor *Combatant, bf *Battlefield, rnd Random) (Action, error)
}

// SpellProvider resolves spell definitions by ID.
type SpellProvider interface {
	Spell(id string) (*spell.Def, bool)
}

// InventoryProvider applies item use and accepts reward deposits.
type InventoryProvider interface {
	Item(id string) (*inventory.ItemDef, bool)
	Count(id string) int
	Consume(id string) error
	Deposit(gold int, loot []inventory.ItemInstance) error
}

// PartyProvider supplies the living party and accepts post-combat write-back.
type PartyProvider interface {
	Living(ctx context.Context) ([]*character.Character, error)
	WriteBack(ctx context.Context, updates []character.Update) error
}

// EncounterProvider builds enemy waves for a descriptor.
type EncounterProvider interface {
	Encounter(ctx context.Context, d monster.Descriptor) ([][]*monster.Instance, error)
}

// Metrics records engine activity. A nil Metrics disables recording.
type Metrics interface {
	ActionResolved(actionType, outcome string)
	ActionRejected(kind string)
	WaveCleared()
	EncounterFinished(result string, rounds int)
}

type noopMetrics struct{}

func (noopMetrics) ActionResolved(string, string) {}
func (noopMetrics) ActionRejected(string)         {}
func (noopMetrics) WaveCleared()                  {}
func (noopMetrics) EncounterFinished(string, int) {}

// Dependencies are the engine's collaborators. Random is required; every
// other collaborator is optional and the features needing it are refused
// or skipped when it is nil.
type Dependencies struct {
	Random     Random
	Controller MonsterController
	Equipment  EquipmentProvider
	Spells     SpellProvider
	Inventory  InventoryProvider
	Party      PartyProvider
	Monsters   EncounterProvider
	Events     EventSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules overrides DefaultRules.
func WithRules(r Rules) Option { return func(e *Engine) { e.rules = r } }

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock sets the clock used to timestamp log entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Outcome is what ProcessAction returns for an accepted action.
type Outcome struct {
	Result Result
	// LogTail holds the log entries this action appended.
	LogTail []LogEntry
	// NextActor is nil once the encounter is resolved.
	NextActor *Combatant
}

// Engine owns one combat session. It is driven by a single caller and is not
// safe for concurrent use.
type Engine struct {
	deps     Dependencies
	rules    Rules
	logger   *zap.Logger
	metrics  Metrics
	now      func() time.Time
	resolver *Resolver

	phase     Phase
	state     TurnState
	formation *formation.Formation
	bf        *Battlefield
	party     []*Combatant
	waves     [][]*Combatant
	waveIndex int
	byID      map[string]*Combatant

	// order is the wave's turn order; entries of removed combatants are
	// dropped permanently. turns is the current round (the surprise round
	// holds only the unsurprised side).
	order   []TurnEntry
	turns   []TurnEntry
	cursor  int
	round   int
	current *Combatant

	surprise Surprise
	log      []LogEntry
	defeated []*Combatant
}

// NewEngine creates an Engine.
//
// Precondition: deps.Random must not be nil.
// Postcondition: Phase() == PhaseNotStarted.
func NewEngine(deps Dependencies, opts ...Option) *Engine {
	if deps.Random == nil {
		panic("combat.NewEngine: Random must not be nil")
	}
	e := &Engine{
		deps:    deps,
		rules:   DefaultRules(),
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		now:     time.Now,
		phase:   PhaseNotStarted,
		state:   StateInitiative,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = NewResolver(e.rules, deps.Random)
	return e
}

// StartEncounter loads the living party and the waves for desc from the
// configured providers and starts combat.
func (e *Engine) StartEncounter(ctx context.Context, desc monster.Descriptor, surprise Surprise) error {
	if e.deps.Party == nil || e.deps.Monsters == nil {
		return fmt.Errorf("%w: party and encounter providers are required", ErrInvalidEncounter)
	}
	party, err := e.deps.Party.Living(ctx)
	if err != nil {
		return fmt.Errorf("loading party: %w", err)
	}
	waves, err := e.deps.Monsters.Encounter(ctx, desc)
	if err != nil {
		return fmt.Errorf("building encounter: %w", err)
	}
	return e.StartCombat(party, waves, surprise)
}

// StartCombat begins a session: builds the formation from party, normalizes
// every combatant, rolls initiative for wave 0 and publishes CombatStarted.
// Party members that cannot fight are left out.
//
// Postcondition: on error (wrapping ErrInvalidEncounter) no session state changes.
func (e *Engine) StartCombat(party []*character.Character, waves [][]*monster.Instance, surprise Surprise) error {
	if e.phase == PhaseActive || e.phase == PhaseWaveTransition {
		return fmt.Errorf("%w: combat already in progress", ErrInvalidEncounter)
	}
	if len(waves) == 0 {
		return fmt.Errorf("%w: no enemy waves", ErrInvalidEncounter)
	}
	byID := make(map[string]*Combatant)
	var members []*Combatant
	for _, ch := range party {
		if ch == nil || !ch.CanFight() {
			continue
		}
		c, err := FromCharacter(ch, e.deps.Equipment)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEncounter, err)
		}
		if _, dup := byID[c.ID]; dup {
			return fmt.Errorf("%w: duplicate combatant id %q", ErrInvalidEncounter, c.ID)
		}
		byID[c.ID] = c
		members = append(members, c)
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: no party member able to fight", ErrInvalidEncounter)
	}
	enemyWaves := make([][]*Combatant, len(waves))
	for i, w := range waves {
		if len(w) == 0 {
			return fmt.Errorf("%w: wave %d is empty", ErrInvalidEncounter, i)
		}
		for _, inst := range w {
			c, err := FromMonster(inst)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidEncounter, err)
			}
			if !c.Eligible() {
				return fmt.Errorf("%w: enemy %q in wave %d cannot fight", ErrInvalidEncounter, c.ID, i)
			}
			if _, dup := byID[c.ID]; dup {
				return fmt.Errorf("%w: duplicate combatant id %q", ErrInvalidEncounter, c.ID)
			}
			byID[c.ID] = c
			enemyWaves[i] = append(enemyWaves[i], c)
		}
	}
	f := formation.New(e.rules.MaxFrontRow, e.rules.MaxBackRow)
	fm := make([]formation.Member, len(members))
	for i, c := range members {
		fm[i] = formation.Member{ID: c.ID, Class: c.Class}
	}
	if err := f.SetupFromParty(fm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEncounter, err)
	}

	e.formation = f
	e.party = members
	e.waves = enemyWaves
	e.waveIndex = 0
	e.byID = byID
	e.log = nil
	e.defeated = nil
	e.round = 0
	e.surprise = surprise
	e.phase = PhaseActive
	e.state = StateInitiative
	e.setupWave()
	if surprise != SurpriseNone {
		opening := SideEnemy
		if surprise == SurpriseEnemies {
			opening = SidePlayer
		}
		e.turns = slices.DeleteFunc(slices.Clone(e.order), func(t TurnEntry) bool {
			return e.byID[t.CombatantID].Side != opening
		})
		if opening == SidePlayer {
			e.appendLog("The enemies are caught off guard!", "surprise")
		} else {
			e.appendLog("The party is ambushed!", "surprise")
		}
	}
	e.settle()
	e.state = StateActionSelection

	difficulty := e.difficulty()
	e.logger.Info("combat started",
		zap.Int("waves", len(e.waves)),
		zap.Int("party_size", len(e.party)),
		zap.String("surprise", surprise.String()),
		zap.String("difficulty", difficulty),
	)
	sizes := make([]int, len(e.waves))
	for i, w := range e.waves {
		sizes[i] = len(w)
	}
	started := CombatStarted{
		Encounter:     EncounterSummary{Waves: len(e.waves), WaveSizes: sizes, Enemies: cloneAll(e.waves[0])},
		Formation:     e.formation.Snapshot(),
		Difficulty:    difficulty,
		SurpriseRound: surprise,
	}
	if e.current != nil {
		started.FirstActor = e.current.Clone()
	}
	e.publish(started)
	return nil
}

// setupWave places the current wave in the formation and rolls its initiative.
func (e *Engine) setupWave() {
	wave := e.waves[e.waveIndex]
	em := make([]formation.EnemyMember, len(wave))
	for i, c := range wave {
		em[i] = formation.EnemyMember{ID: c.ID, RangedOnly: c.RangedOnly()}
	}
	// IDs were checked unique at start and enemy rows are unbounded.
	_ = e.formation.SetupEnemies(em)
	e.bf = NewBattlefield(e.rules, e.formation, e.party, wave)

	roster := make([]*Combatant, 0, len(e.party)+len(wave))
	for _, c := range e.party {
		if c.Eligible() {
			roster = append(roster, c)
		}
	}
	roster = append(roster, wave...)
	e.order = RollInitiative(roster, e.deps.Random)
	e.turns = slices.Clone(e.order)
	e.cursor = 0
	e.round++
}

// settle moves the cursor to the next combatant able to act, dropping
// removed combatants from the order and skipping held ones. Reaching a
// combatant ends its defence even when the turn is lost.
//
// Postcondition: e.current is eligible, or nil when the order is empty.
func (e *Engine) settle() {
	e.current = nil
	for len(e.order) > 0 {
		if e.cursor >= len(e.turns) {
			e.turns = slices.Clone(e.order)
			e.cursor = 0
			e.round++
		}
		c := e.byID[e.turns[e.cursor].CombatantID]
		if !c.Eligible() {
			drop := func(t TurnEntry) bool { return t.CombatantID == c.ID }
			e.order = slices.DeleteFunc(e.order, drop)
			e.turns = slices.DeleteFunc(e.turns, drop)
			continue
		}
		c.IsDefending = false
		if c.Held {
			c.Held = false
			e.appendLog(fmt.Sprintf("%s is held and loses the turn.", c.Name), "held")
			e.cursor++
			continue
		}
		e.current = c
		return
	}
}

func (e *Engine) checkActive() error {
	switch e.phase {
	case PhaseNotStarted:
		return ErrCombatNotStarted
	case PhaseVictory, PhaseDefeat:
		return ErrEncounterAlreadyResolved
	}
	return nil
}

// CurrentActor returns a copy of the combatant whose turn it is.
func (e *Engine) CurrentActor() (*Combatant, error) {
	if err := e.checkActive(); err != nil {
		return nil, err
	}
	if e.current == nil {
		return nil, ErrCombatNotStarted
	}
	c := e.current.Clone()
	return &c, nil
}

// ProcessAction validates and resolves a, applies its effects, appends to the
// log and evaluates end conditions: a cleared wave advances to the next wave
// or declares victory; a party with nobody able to fight is defeated.
//
// Postcondition: a returned error of the combat error kinds leaves all state
// unchanged. When the action ends the encounter, the outcome is returned
// together with any error from the reward or write-back collaborators.
func (e *Engine) ProcessAction(ctx context.Context, a Action) (*Outcome, error) {
	if err := e.checkActive(); err != nil {
		return nil, e.reject(a, err)
	}
	actor := e.current
	if actor == nil {
		return nil, e.reject(a, ErrCombatNotStarted)
	}
	if a.ActorID != actor.ID {
		return nil, e.reject(a, fmt.Errorf("%w: %q acted on %q's turn", ErrOutOfTurnAction, a.ActorID, actor.ID))
	}
	e.state = StateResolution
	res, err := e.resolve(a, actor)
	if err != nil {
		e.state = StateActionSelection
		return nil, e.reject(a, err)
	}

	logStart := len(e.log)
	e.appendLog(res.Message, iconFor(res.Action))
	e.applyEffects(res.Effects)
	if res.FreeAttack != nil {
		e.appendLog(res.FreeAttack.Message, iconFor(ActionAttack))
		e.applyEffects(res.FreeAttack.Effects)
	}
	e.state = StateCleanup
	e.metrics.ActionResolved(string(a.Type), outcomeLabel(res))
	e.logger.Debug("action resolved",
		zap.String("actor", actor.ID),
		zap.String("action", string(a.Type)),
		zap.Bool("success", res.Success),
		zap.Int("damage", res.Damage),
		zap.Int("healing", res.Healing),
	)

	e.evaluate()

	out := &Outcome{Result: res, LogTail: slices.Clone(e.log[logStart:])}
	if e.phase == PhaseActive && e.current != nil {
		next := e.current.Clone()
		out.NextActor = &next
		e.state = StateActionSelection
	}
	e.publish(ActionProcessed{Action: a, Result: res, CombatLog: out.LogTail, NextActor: out.NextActor})

	switch e.phase {
	case PhaseVictory:
		return out, e.finishVictory(ctx)
	case PhaseDefeat:
		return out, e.finishDefeat(ctx)
	}
	return out, nil
}

// Step plays the current enemy's turn using the monster controller. An
// action the controller proposes that the engine rejects is replaced by
// defending.
func (e *Engine) Step(ctx context.Context) (*Outcome, error) {
	if err := e.checkActive(); err != nil {
		return nil, err
	}
	actor := e.current
	if actor == nil {
		return nil, ErrCombatNotStarted
	}
	if actor.IsPlayer() {
		return nil, ErrAwaitingPlayer
	}
	if e.deps.Controller == nil {
		return nil, ErrNoController
	}
	a, err := e.deps.Controller.ChooseAction(actor, e.bf, e.deps.Random)
	if err != nil {
		return nil, fmt.Errorf("choosing action for %q: %w", actor.ID, err)
	}
	out, err := e.ProcessAction(ctx, a)
	if errors.Is(err, ErrInvalidTarget) || errors.Is(err, ErrIllegalActionForActor) {
		e.logger.Warn("monster action rejected; defending instead",
			zap.String("actor", actor.ID),
			zap.Error(err),
		)
		return e.ProcessAction(ctx, Action{Type: ActionDefend, ActorID: actor.ID})
	}
	return out, err
}

// MoveCharacter moves the current party actor to row without consuming its turn.
func (e *Engine) MoveCharacter(id string, row formation.Row) (formation.Snapshot, error) {
	if err := e.checkActive(); err != nil {
		return formation.Snapshot{}, err
	}
	if e.current == nil || !e.current.IsPlayer() || e.current.ID != id {
		return formation.Snapshot{}, fmt.Errorf("%w: %q may not move now", ErrOutOfTurnAction, id)
	}
	snap, err := e.formation.MoveCharacter(id, row)
	if err != nil {
		return formation.Snapshot{}, fmt.Errorf("%w: %w", ErrIllegalActionForActor, err)
	}
	if e.current.Row != row {
		e.current.Row = row
		e.appendLog(fmt.Sprintf("%s moves to the %s row.", e.current.Name, row), "move")
	}
	return snap, nil
}

func (e *Engine) reject(a Action, err error) error {
	kind := errorKind(err)
	e.metrics.ActionRejected(kind)
	e.logger.Warn("action rejected",
		zap.String("actor", a.ActorID),
		zap.String("action", string(a.Type)),
		zap.String("kind", kind),
		zap.Error(err),
	)
	return err
}

// resolve checks a's legality and delegates to the resolver. The only
// mutations before a nil error are spell and item consumption.
func (e *Engine) resolve(a Action, actor *Combatant) (Result, error) {
	switch a.Type {
	case ActionAttack:
		if a.AttackIndex < 0 || a.AttackIndex >= len(actor.Attacks) {
			return Result{}, illegalAction("%s has no attack %d", actor.Name, a.AttackIndex)
		}
		atk := actor.Attacks[a.AttackIndex]
		if !atk.Ranged && !e.bf.CanMelee(actor) {
			return Result{}, illegalAction("%s cannot reach melee range from the back row", actor.Name)
		}
		if atk.AreaEffect {
			targets := e.bf.Opponents(actor)
			if len(targets) == 0 {
				return Result{}, invalidTarget("no eligible targets")
			}
			return e.resolver.AreaAttack(actor, atk, targets), nil
		}
		target, err := e.opponent(actor, a.TargetID)
		if err != nil {
			return Result{}, err
		}
		if !atk.Ranged && !slices.Contains(e.bf.MeleeTargets(actor), target) {
			return Result{}, invalidTarget("%s is shielded by the front row", target.Name)
		}
		return e.resolver.Attack(actor, atk, target), nil

	case ActionSpell:
		if e.deps.Spells == nil {
			return Result{}, illegalAction("spells are unavailable")
		}
		def, ok := e.deps.Spells.Spell(a.SpellID)
		if !ok {
			return Result{}, illegalAction("unknown spell %q", a.SpellID)
		}
		if actor.PreparedSpells[a.SpellID] <= 0 {
			return Result{}, illegalAction("%s has no prepared casts of %s", actor.Name, def.Name)
		}
		targets, err := e.effectTargets(actor, string(def.Target), a.TargetID)
		if err != nil {
			return Result{}, err
		}
		actor.PreparedSpells[a.SpellID]--
		return e.resolver.Spell(actor, def, targets), nil

	case ActionItem:
		if !actor.IsPlayer() || e.deps.Inventory == nil {
			return Result{}, illegalAction("%s cannot use items", actor.Name)
		}
		def, ok := e.deps.Inventory.Item(a.ItemID)
		if !ok {
			return Result{}, illegalAction("unknown item %q", a.ItemID)
		}
		if e.deps.Inventory.Count(a.ItemID) <= 0 {
			return Result{}, illegalAction("the party has no %s", def.Name)
		}
		targets, err := e.effectTargets(actor, def.Target, a.TargetID)
		if err != nil {
			return Result{}, err
		}
		if err := e.deps.Inventory.Consume(a.ItemID); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrIllegalActionForActor, err)
		}
		return e.resolver.Item(actor, def, targets), nil

	case ActionDefend:
		return e.resolver.Defend(actor), nil

	case ActionFlee:
		return e.resolver.Flee(actor, e.bf.Opponents(actor)), nil
	}
	return Result{}, illegalAction("unknown action type %q", a.Type)
}

func (e *Engine) opponent(actor *Combatant, id string) (*Combatant, error) {
	c, ok := e.bf.Combatant(id)
	if !ok {
		return nil, invalidTarget("no combatant %q in this wave", id)
	}
	if c.Side == actor.Side {
		return nil, invalidTarget("%s is an ally", c.Name)
	}
	if !c.Eligible() {
		return nil, invalidTarget("%s is no longer fighting", c.Name)
	}
	return c, nil
}

func (e *Engine) ally(actor *Combatant, id string) (*Combatant, error) {
	c, ok := e.bf.Combatant(id)
	if !ok {
		return nil, invalidTarget("no combatant %q in this wave", id)
	}
	if c.Side != actor.Side {
		return nil, invalidTarget("%s is not an ally", c.Name)
	}
	if !c.Eligible() {
		return nil, invalidTarget("%s is no longer fighting", c.Name)
	}
	return c, nil
}

// effectTargets resolves a spell or item target kind to combatants.
func (e *Engine) effectTargets(actor *Combatant, kind, targetID string) ([]*Combatant, error) {
	var targets []*Combatant
	switch kind {
	case string(spell.TargetSingleEnemy):
		t, err := e.opponent(actor, targetID)
		if err != nil {
			return nil, err
		}
		targets = []*Combatant{t}
	case string(spell.TargetSingleAlly):
		t, err := e.ally(actor, targetID)
		if err != nil {
			return nil, err
		}
		targets = []*Combatant{t}
	case string(spell.TargetAllEnemies):
		targets = e.bf.Opponents(actor)
	case string(spell.TargetAllAllies):
		targets = e.bf.Allies(actor)
	case string(spell.TargetSelf):
		targets = []*Combatant{actor}
	default:
		return nil, illegalAction("unknown target kind %q", kind)
	}
	if len(targets) == 0 {
		return nil, invalidTarget("no eligible targets")
	}
	return targets, nil
}

func (e *Engine) applyEffects(effects []Effect) {
	for _, eff := range effects {
		c, ok := e.byID[eff.TargetID]
		if !ok {
			continue
		}
		hp, status := c.CurrentHP, c.Status
		if eff.ClearDefend {
			c.IsDefending = false
		}
		if eff.Defend {
			c.IsDefending = true
		}
		c.ACModifier += eff.ACDelta
		if eff.Hold {
			c.Held = true
		}
		if eff.Status != "" {
			c.Status = eff.Status
		}
		next := c.CurrentHP + eff.HPDelta
		if eff.Kill {
			next = 0
		}
		if c.applyHP(next) {
			if c.IsPlayer() {
				e.appendLog(fmt.Sprintf("%s falls unconscious.", c.Name), "down")
			} else {
				e.appendLog(fmt.Sprintf("%s is defeated.", c.Name), "skull")
				e.defeated = append(e.defeated, c)
			}
		}
		if c.CurrentHP != hp || c.Status != status {
			e.publish(CharacterUpdated{Character: c.Clone()})
		}
	}
}

// evaluate checks end conditions in order: wave cleared, party down, else
// the next turn.
func (e *Engine) evaluate() {
	if allOut(e.waves[e.waveIndex]) {
		e.metrics.WaveCleared()
		if e.waveIndex+1 < len(e.waves) {
			e.phase = PhaseWaveTransition
			e.waveIndex++
			e.appendLog(fmt.Sprintf("Wave %d of %d approaches!", e.waveIndex+1, len(e.waves)), "wave")
			e.logger.Info("wave advanced", zap.Int("wave", e.waveIndex), zap.Int("enemies", len(e.waves[e.waveIndex])))
			e.setupWave()
			e.phase = PhaseActive
			e.settle()
			return
		}
		e.phase = PhaseVictory
		e.current = nil
		e.appendLog("Victory! All enemies have been defeated.", "trophy")
		return
	}
	if allOut(e.party) {
		e.phase = PhaseDefeat
		e.current = nil
		e.appendLog("The party has been defeated.", "skull")
		return
	}
	e.cursor++
	e.settle()
}

func allOut(cs []*Combatant) bool {
	for _, c := range cs {
		if c.Eligible() {
			return false
		}
	}
	return true
}

func (e *Engine) casualties() (casualties, disconnected []string) {
	for _, c := range e.party {
		switch c.Status {
		case StatusUnconscious:
			casualties = append(casualties, c.ID)
		case StatusFled:
			disconnected = append(disconnected, c.ID)
		}
	}
	return casualties, disconnected
}

// partyUpdates builds the write-back for every party member; experience is
// split evenly between members still standing.
func (e *Engine) partyUpdates(experience int) []character.Update {
	var standing int
	for _, c := range e.party {
		if c.Status == StatusOK {
			standing++
		}
	}
	share := 0
	if standing > 0 {
		share = experience / standing
	}
	updates := make([]character.Update, 0, len(e.party))
	for _, c := range e.party {
		u := character.Update{
			ID:             c.ID,
			CurrentHP:      c.CurrentHP,
			Status:         persistentStatus(c.Status),
			PreparedSpells: c.Clone().PreparedSpells,
		}
		if c.Status == StatusOK {
			u.ExperienceGained = share
		}
		updates = append(updates, u)
	}
	return updates
}

func persistentStatus(s Status) character.Status {
	switch s {
	case StatusUnconscious:
		return character.StatusUnconscious
	case StatusFled:
		return character.StatusDisoriented
	default:
		return character.StatusOK
	}
}

func (e *Engine) finishVictory(ctx context.Context) error {
	var rewards Rewards
	for _, c := range e.defeated {
		rewards.Experience += c.ExperienceValue
		if c.Loot == nil {
			continue
		}
		loot := monster.GenerateLoot(c.Loot, e.deps.Random)
		rewards.Gold += loot.Gold
		rewards.Loot = append(rewards.Loot, loot.Items...)
	}
	casualties, disconnected := e.casualties()

	var errs []error
	if e.deps.Inventory != nil {
		if err := e.deps.Inventory.Deposit(rewards.Gold, rewards.Loot); err != nil {
			errs = append(errs, fmt.Errorf("depositing rewards: %w", err))
		}
	}
	if e.deps.Party != nil {
		if err := e.deps.Party.WriteBack(ctx, e.partyUpdates(rewards.Experience)); err != nil {
			errs = append(errs, fmt.Errorf("writing back party: %w", err))
		}
	}
	e.metrics.EncounterFinished("victory", e.round)
	e.logger.Info("combat ended",
		zap.String("result", "victory"),
		zap.Int("rounds", e.round),
		zap.Int("experience", rewards.Experience),
		zap.Int("gold", rewards.Gold),
	)
	e.publish(CombatEnded{
		Victory:                true,
		Rewards:                rewards,
		Casualties:             casualties,
		DisconnectedCharacters: disconnected,
	})
	return errors.Join(errs...)
}

func (e *Engine) finishDefeat(ctx context.Context) error {
	casualties, disconnected := e.casualties()
	var err error
	if e.deps.Party != nil {
		if werr := e.deps.Party.WriteBack(ctx, e.partyUpdates(0)); werr != nil {
			err = fmt.Errorf("writing back party: %w", werr)
		}
	}
	e.metrics.EncounterFinished("defeat", e.round)
	e.logger.Info("combat ended",
		zap.String("result", "defeat"),
		zap.Int("rounds", e.round),
		zap.Int("casualties", len(casualties)),
		zap.Int("fled", len(disconnected)),
	)
	e.publish(PartyDefeated{
		Victory:                false,
		Casualties:             casualties,
		DisconnectedCharacters: disconnected,
		TotalDefeat:            len(disconnected) == 0,
	})
	return err
}

func (e *Engine) appendLog(msg, icon string) {
	e.log = append(e.log, LogEntry{Message: msg, Icon: icon, Timestamp: e.now()})
}

func (e *Engine) publish(ev Event) {
	if e.deps.Events != nil {
		e.deps.Events.Publish(ev)
	}
}

// difficulty rates the encounter by total enemy max HP over party current HP.
func (e *Engine) difficulty() string {
	var enemyHP, partyHP int
	for _, w := range e.waves {
		for _, c := range w {
			enemyHP += c.MaxHP
		}
	}
	for _, c := range e.party {
		partyHP += c.CurrentHP
	}
	return Difficulty(partyHP, enemyHP)
}

// Difficulty rates an encounter: the ratio of enemy HP to party HP below 0.5
// is "easy", below 1 "normal", below 2 "hard", otherwise "deadly".
func Difficulty(partyHP, enemyHP int) string {
	if partyHP <= 0 {
		return "deadly"
	}
	ratio := float64(enemyHP) / float64(partyHP)
	switch {
	case ratio < 0.5:
		return "easy"
	case ratio < 1:
		return "normal"
	case ratio < 2:
		return "hard"
	default:
		return "deadly"
	}
}

func iconFor(t ActionType) string {
	switch t {
	case ActionAttack:
		return "sword"
	case ActionSpell:
		return "sparkles"
	case ActionItem:
		return "potion"
	case ActionDefend:
		return "shield"
	case ActionFlee:
		return "run"
	}
	return ""
}

func outcomeLabel(r Result) string {
	switch {
	case r.Instant:
		return "instant_kill"
	case r.Critical:
		return "critical"
	case r.Success:
		return "success"
	default:
		return "failure"
	}
}

func cloneAll(cs []*Combatant) []Combatant {
	out := make([]Combatant, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}

// Phase returns the encounter-level state.
func (e *Engine) Phase() Phase { return e.phase }

// State returns the per-turn state.
func (e *Engine) State() TurnState { return e.state }

// WaveIndex returns the zero-based index of the current wave.
func (e *Engine) WaveIndex() int { return e.waveIndex }

// Round returns the number of rounds begun, counting each wave's first round.
func (e *Engine) Round() int { return e.round }

// Combatants returns copies of every party member followed by every enemy of every wave.
func (e *Engine) Combatants() []Combatant {
	out := cloneAll(e.party)
	for _, w := range e.waves {
		out = append(out, cloneAll(w)...)
	}
	return out
}

// Combatant returns a copy of the combatant with id.
func (e *Engine) Combatant(id string) (Combatant, bool) {
	c, ok := e.byID[id]
	if !ok {
		return Combatant{}, false
	}
	return c.Clone(), true
}

// Log returns a copy of the combat log.
func (e *Engine) Log() []LogEntry { return slices.Clone(e.log) }

// TurnOrder returns a copy of the current wave's turn order without the
// combatants that can no longer act.
func (e *Engine) TurnOrder() []TurnEntry {
	out := make([]TurnEntry, 0, len(e.order))
	for _, t := range e.order {
		if c, ok := e.byID[t.CombatantID]; ok && c.Eligible() {
			out = append(out, t)
		}
	}
	return out
}

// Formation returns a snapshot of the row assignment.
func (e *Engine) Formation() formation.Snapshot {
	if e.formation == nil {
		return formation.Snapshot{}
	}
	return e.formation.Snapshot()
}

// Battlefield returns the current wave's battlefield; nil before StartCombat.
func (e *Engine) Battlefield() *Battlefield { return e.bf }
