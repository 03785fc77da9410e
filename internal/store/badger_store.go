// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/mudcore/internal/ident"
)

// BadgerStore keeps players and rooms as JSON values:
//   - players: key = "player:<id>"
//   - name index: key = "pname:<canonical name>" (value = id)
//   - rooms: key = "room:<id>"
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens a store at path. An empty path keeps data in memory.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, buf)
}

func playerKey(id string) []byte { return []byte("player:" + id) }
func nameKey(name string) []byte { return []byte("pname:" + ident.Canonical(name)) }
func roomKey(id string) []byte   { return []byte("room:" + id) }

func (s *BadgerStore) GetPlayerByID(_ context.Context, id string) (Player, error) {
	var p Player
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, playerKey(id), &p)
	})
	return p, err
}

func (s *BadgerStore) GetPlayerByName(_ context.Context, name string) (Player, error) {
	var p Player
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nameKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, playerKey(string(id)), &p)
	})
	return p, err
}

func (s *BadgerStore) SavePlayer(_ context.Context, p Player) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var old Player
		switch err := getJSON(txn, playerKey(p.ID), &old); {
		case err == nil:
			if err := txn.Delete(nameKey(old.Name)); err != nil {
				return err
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = old.CreatedAt
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		if err := setJSON(txn, playerKey(p.ID), p); err != nil {
			return err
		}
		return txn.Set(nameKey(p.Name), []byte(p.ID))
	})
}

func (s *BadgerStore) UpdateLastActive(_ context.Context, id string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var p Player
		if err := getJSON(txn, playerKey(id), &p); err != nil {
			return err
		}
		p.LastActive = at
		return setJSON(txn, playerKey(id), p)
	})
}

func (s *BadgerStore) GetRoomByID(_ context.Context, id string) (Room, error) {
	var r Room
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &r)
	})
	return r, err
}

func (s *BadgerStore) SaveRoom(_ context.Context, r Room) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, roomKey(r.ID), r)
	})
}

// Check fails once the database has been closed.
func (s *BadgerStore) Check(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

var _ Store = (*BadgerStore)(nil)
