package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/crawler/internal/game/character"
)

// ErrCharacterNotFound is returned when a character lookup or update matches no row.
var ErrCharacterNotFound = errors.New("character not found")

const characterColumns = `id, name, class, level, experience,
	strength, intelligence, piety, vitality, agility, luck,
	max_hp, current_hp, status, weapon, armor, shield, prepared_spells, updated_at`

// PartyRepository persists the party roster. It satisfies the combat
// engine's party provider.
type PartyRepository struct {
	db *pgxpool.Pool
}

// NewPartyRepository creates a PartyRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPartyRepository(db *pgxpool.Pool) *PartyRepository {
	return &PartyRepository{db: db}
}

func scanCharacter(row pgx.Row) (*character.Character, error) {
	var c character.Character
	var status string
	err := row.Scan(
		&c.ID, &c.Name, &c.Class, &c.Level, &c.Experience,
		&c.Attributes.Strength, &c.Attributes.Intelligence, &c.Attributes.Piety,
		&c.Attributes.Vitality, &c.Attributes.Agility, &c.Attributes.Luck,
		&c.MaxHP, &c.CurrentHP, &status,
		&c.Equipment.Weapon, &c.Equipment.Armor, &c.Equipment.Shield,
		&c.PreparedSpells, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = character.Status(status)
	return &c, nil
}

// Save upserts party in slot order inside one transaction.
//
// Precondition: every member passes Validate.
// Postcondition: on error nothing is written.
func (r *PartyRepository) Save(ctx context.Context, party []*character.Character) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for slot, c := range party {
			spells := c.PreparedSpells
			if spells == nil {
				spells = map[string]int{}
			}
			status := c.Status
			if status == "" {
				status = character.StatusOK
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO characters
					(id, slot, name, class, level, experience,
					 strength, intelligence, piety, vitality, agility, luck,
					 max_hp, current_hp, status, weapon, armor, shield, prepared_spells)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
				ON CONFLICT (id) DO UPDATE SET
					slot = EXCLUDED.slot, name = EXCLUDED.name, class = EXCLUDED.class,
					level = EXCLUDED.level, experience = EXCLUDED.experience,
					strength = EXCLUDED.strength, intelligence = EXCLUDED.intelligence,
					piety = EXCLUDED.piety, vitality = EXCLUDED.vitality,
					agility = EXCLUDED.agility, luck = EXCLUDED.luck,
					max_hp = EXCLUDED.max_hp, current_hp = EXCLUDED.current_hp,
					status = EXCLUDED.status, weapon = EXCLUDED.weapon,
					armor = EXCLUDED.armor, shield = EXCLUDED.shield,
					prepared_spells = EXCLUDED.prepared_spells, updated_at = NOW()`,
				c.ID, slot, c.Name, c.Class, c.Level, c.Experience,
				c.Attributes.Strength, c.Attributes.Intelligence, c.Attributes.Piety,
				c.Attributes.Vitality, c.Attributes.Agility, c.Attributes.Luck,
				c.MaxHP, c.CurrentHP, string(status),
				c.Equipment.Weapon, c.Equipment.Armor, c.Equipment.Shield, spells,
			)
			if err != nil {
				return fmt.Errorf("saving character %q: %w", c.ID, err)
			}
		}
		return nil
	})
}

// Living returns the members able to join an encounter, in slot order.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *PartyRepository) Living(ctx context.Context) ([]*character.Character, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+characterColumns+`
		FROM characters WHERE status = 'ok' AND current_hp > 0 ORDER BY slot ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing living characters: %w", err)
	}
	defer rows.Close()

	party := make([]*character.Character, 0)
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		party = append(party, c)
	}
	return party, rows.Err()
}

// GetByID retrieves a character by ID.
//
// Postcondition: Returns the Character or ErrCharacterNotFound.
func (r *PartyRepository) GetByID(ctx context.Context, id string) (*character.Character, error) {
	c, err := scanCharacter(r.db.QueryRow(ctx, `
		SELECT `+characterColumns+` FROM characters WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("querying character: %w", err)
	}
	return c, nil
}

// WriteBack applies post-combat updates in one transaction.
//
// Postcondition: HP is clamped to [0, max_hp]; if any update names an unknown
// character the transaction rolls back and ErrCharacterNotFound is returned.
func (r *PartyRepository) WriteBack(ctx context.Context, updates []character.Update) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, u := range updates {
			var spells any
			if u.PreparedSpells != nil {
				spells = u.PreparedSpells
			}
			tag, err := tx.Exec(ctx, `
				UPDATE characters SET
					current_hp = LEAST(GREATEST($2::int, 0), max_hp),
					status = COALESCE(NULLIF($3::text, ''), status),
					experience = experience + $4,
					prepared_spells = COALESCE($5::jsonb, prepared_spells),
					updated_at = NOW()
				WHERE id = $1`,
				u.ID, u.CurrentHP, string(u.Status), u.ExperienceGained, spells,
			)
			if err != nil {
				return fmt.Errorf("writing back character %q: %w", u.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %q", ErrCharacterNotFound, u.ID)
			}
		}
		return nil
	})
}
