// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/mudcore/internal/ident"
	"github.com/ManuGH/mudcore/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens dbPath and migrates the schema.
func NewSqliteStore(ctx context.Context, dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(ctx, dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("player store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) migrate(ctx context.Context) error {
	var currentVersion int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		zone TEXT NOT NULL DEFAULT '',
		safe INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS players (
		player_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL UNIQUE,
		room_id TEXT NOT NULL DEFAULT '',
		pos_x INTEGER NOT NULL DEFAULT 0,
		pos_y INTEGER NOT NULL DEFAULT 0,
		pos_z INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT '',
		last_active_ms INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_players_room ON players(room_id);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

const playerColumns = "player_id, name, room_id, pos_x, pos_y, pos_z, state, last_active_ms, created_at_ms"

func scanPlayer(row *sql.Row) (Player, error) {
	var (
		p                   Player
		lastActive, created int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.RoomID, &p.Position.X, &p.Position.Y, &p.Position.Z, &p.State, &lastActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, err
	}
	if lastActive > 0 {
		p.LastActive = time.UnixMilli(lastActive).UTC()
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	return p, nil
}

func (s *SqliteStore) GetPlayerByID(ctx context.Context, id string) (Player, error) {
	return scanPlayer(s.DB.QueryRowContext(ctx, "SELECT "+playerColumns+" FROM players WHERE player_id = ?", id))
}

func (s *SqliteStore) GetPlayerByName(ctx context.Context, name string) (Player, error) {
	return scanPlayer(s.DB.QueryRowContext(ctx, "SELECT "+playerColumns+" FROM players WHERE name_key = ?", ident.Canonical(name)))
}

func (s *SqliteStore) SavePlayer(ctx context.Context, p Player) error {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var lastActive int64
	if !p.LastActive.IsZero() {
		lastActive = p.LastActive.UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO players (`+playerColumns+`, name_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			name = excluded.name,
			name_key = excluded.name_key,
			room_id = excluded.room_id,
			pos_x = excluded.pos_x,
			pos_y = excluded.pos_y,
			pos_z = excluded.pos_z,
			state = excluded.state,
			last_active_ms = excluded.last_active_ms`,
		p.ID, p.Name, p.RoomID, p.Position.X, p.Position.Y, p.Position.Z, p.State, lastActive, created.UnixMilli(),
		ident.Canonical(p.Name))
	if err != nil {
		return fmt.Errorf("save player %s: %w", p.ID, err)
	}
	return nil
}

func (s *SqliteStore) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE players SET last_active_ms = ? WHERE player_id = ?", at.UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqliteStore) GetRoomByID(ctx context.Context, id string) (Room, error) {
	var (
		r    Room
		safe int
	)
	err := s.DB.QueryRowContext(ctx, "SELECT room_id, name, zone, safe FROM rooms WHERE room_id = ?", id).
		Scan(&r.ID, &r.Name, &r.Zone, &safe)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, err
	}
	r.Safe = safe != 0
	return r, nil
}

func (s *SqliteStore) SaveRoom(ctx context.Context, r Room) error {
	safe := 0
	if r.Safe {
		safe = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rooms (room_id, name, zone, safe) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET name = excluded.name, zone = excluded.zone, safe = excluded.safe`,
		r.ID, r.Name, r.Zone, safe)
	return err
}

// Check runs a quick integrity check.
func (s *SqliteStore) Check(ctx context.Context) error {
	issues, err := sqlite.VerifyIntegrity(ctx, s.DB, sqlite.CheckQuick)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("sqlite integrity: %s", strings.Join(issues, "; "))
	}
	return nil
}

var _ Store = (*SqliteStore)(nil)
