package combat

import (
	"sync"
	"time"

	"github.com/cory-johannsen/crawler/internal/game/formation"
	"github.com/cory-johannsen/crawler/internal/game/inventory"
)

// LogEntry is one line of the append-only combat log.
type LogEntry struct {
	Message   string
	Icon      string
	Timestamp time.Time
}

// Event is the closed set of notifications the engine publishes.
type Event interface {
	// Name returns the wire-style event name, e.g. "combat-started".
	Name() string
	isEvent()
}

// EncounterSummary describes the encounter in CombatStarted.
type EncounterSummary struct {
	Waves     int
	WaveSizes []int
	// Enemies are copies of the first wave's combatants.
	Enemies []Combatant
}

// CombatStarted is published once StartCombat succeeds.
type CombatStarted struct {
	Encounter     EncounterSummary
	Formation     formation.Snapshot
	Difficulty    string
	FirstActor    Combatant
	SurpriseRound Surprise
}

// ActionProcessed is published after every resolved action.
type ActionProcessed struct {
	Action Action
	Result Result
	// CombatLog is the log tail the action produced.
	CombatLog []LogEntry
	// NextActor is nil once the encounter is resolved.
	NextActor *Combatant
}

// Rewards are the spoils of a victory.
type Rewards struct {
	Experience int
	Gold       int
	Loot       []inventory.ItemInstance
}

// CombatEnded is published on victory.
type CombatEnded struct {
	Victory                bool
	Rewards                Rewards
	Casualties             []string
	DisconnectedCharacters []string
}

// PartyDefeated is published when no party member remains able to fight.
type PartyDefeated struct {
	Victory                bool
	Casualties             []string
	DisconnectedCharacters []string
	// TotalDefeat is true when nobody escaped by fleeing.
	TotalDefeat bool
}

// CharacterUpdated is published whenever a combatant's HP or status changes.
type CharacterUpdated struct {
	Character Combatant
}

func (CombatStarted) Name() string    { return "combat-started" }
func (ActionProcessed) Name() string  { return "combat-action-processed" }
func (CombatEnded) Name() string      { return "combat-ended" }
func (PartyDefeated) Name() string    { return "party-defeated" }
func (CharacterUpdated) Name() string { return "character-updated" }

func (CombatStarted) isEvent()    {}
func (ActionProcessed) isEvent()  {}
func (CombatEnded) isEvent()      {}
func (PartyDefeated) isEvent()    {}
func (CharacterUpdated) isEvent() {}

// EventSink receives engine events.
type EventSink interface {
	Publish(Event)
}

// Bus is an in-process observer list. Publish delivers synchronously, in
// subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(Event)
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
