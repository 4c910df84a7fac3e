package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fruit is one item on the fruit stand.
type Fruit struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

// FruitPick records a person choosing a fruit as a favourite.
type FruitPick struct {
	ID       uuid.UUID `json:"id"`
	FruitID  int       `json:"fruit_id"`
	Picker   string    `json:"picker"`
	PickedAt time.Time `json:"picked_at"`
}

// FruitCount is the number of picks a fruit has received.
type FruitCount struct {
	Fruit
	Picks int64 `json:"picks"`
}

// FruitRepository stores the fruit stand and its picks.
type FruitRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewFruitRepository(db *sql.DB) *FruitRepository {
	return &FruitRepository{db: db, now: time.Now}
}

// List returns the fruit stand in id order.
func (r *FruitRepository) List(ctx context.Context) ([]Fruit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color, emoji FROM fruits ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query fruits: %w", err)
	}
	defer rows.Close()

	fruits := make([]Fruit, 0)
	for rows.Next() {
		var f Fruit
		if err := rows.Scan(&f.ID, &f.Name, &f.Color, &f.Emoji); err != nil {
			return nil, fmt.Errorf("scan fruit: %w", err)
		}
		fruits = append(fruits, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fruits: %w", err)
	}
	return fruits, nil
}

// Pick stores a pick of fruitID by picker. ErrNotFound if the fruit does
// not exist.
func (r *FruitRepository) Pick(ctx context.Context, fruitID int, picker string) (FruitPick, error) {
	p := FruitPick{
		ID:       uuid.New(),
		FruitID:  fruitID,
		Picker:   picker,
		PickedAt: r.now().UTC(),
	}

	// Inserting through a SELECT on fruits yields no row for an unknown id.
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO fruit_picks (id, fruit_id, picker, picked_at)
		SELECT $1, id, $3, $4 FROM fruits WHERE id = $2
		RETURNING id
	`, p.ID, fruitID, picker, p.PickedAt).Scan(&p.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return FruitPick{}, ErrNotFound
	}
	if err != nil {
		return FruitPick{}, fmt.Errorf("insert fruit pick: %w", err)
	}
	return p, nil
}

// Favorites returns up to limit fruits ordered by pick count, most picked first.
func (r *FruitRepository) Favorites(ctx context.Context, limit int) ([]FruitCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.color, f.emoji, COUNT(p.id) AS picks
		FROM fruits f
		LEFT JOIN fruit_picks p ON p.fruit_id = f.id
		GROUP BY f.id, f.name, f.color, f.emoji
		ORDER BY picks DESC, f.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	counts := make([]FruitCount, 0)
	for rows.Next() {
		var c FruitCount
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Emoji, &c.Picks); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return counts, nil
}
