package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/crawler/internal/game/inventory"
)

// StashRepository persists the party stash between runs.
type StashRepository struct {
	db *pgxpool.Pool
}

// NewStashRepository creates a StashRepository backed by the given pool.
func NewStashRepository(db *pgxpool.Pool) *StashRepository {
	return &StashRepository{db: db}
}

// Save replaces the stored stash with s's gold and per-item totals.
func (r *StashRepository) Save(ctx context.Context, s *inventory.Stash) error {
	totals := make(map[string]int)
	var order []string
	for _, inst := range s.Items() {
		if _, seen := totals[inst.ItemDefID]; !seen {
			order = append(order, inst.ItemDefID)
		}
		totals[inst.ItemDefID] += inst.Quantity
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO stash_gold (id, gold) VALUES (TRUE, $1)
			ON CONFLICT (id) DO UPDATE SET gold = EXCLUDED.gold`, s.Gold()); err != nil {
			return fmt.Errorf("saving stash gold: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM stash_items`); err != nil {
			return fmt.Errorf("clearing stash items: %w", err)
		}
		for _, id := range order {
			if _, err := tx.Exec(ctx,
				`INSERT INTO stash_items (item_id, quantity) VALUES ($1, $2)`, id, totals[id]); err != nil {
				return fmt.Errorf("saving stash item %q: %w", id, err)
			}
		}
		return nil
	})
}

// LoadInto deposits the stored gold and items into s.
//
// Precondition: s should be empty; stored items must be registered in s's registry.
func (r *StashRepository) LoadInto(ctx context.Context, s *inventory.Stash) error {
	var gold int
	err := r.db.QueryRow(ctx, `SELECT gold FROM stash_gold WHERE id`).Scan(&gold)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("loading stash gold: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT item_id, quantity FROM stash_items ORDER BY item_id`)
	if err != nil {
		return fmt.Errorf("loading stash items: %w", err)
	}
	loot, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.ItemInstance, error) {
		var inst inventory.ItemInstance
		err := row.Scan(&inst.ItemDefID, &inst.Quantity)
		return inst, err
	})
	if err != nil {
		return fmt.Errorf("scanning stash items: %w", err)
	}
	return s.Deposit(gold, loot)
}
