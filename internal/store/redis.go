package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/grimoire-rpg/grimoire/pkg/document"
)

var _ Store = (*RedisStore)(nil)

// RedisStore persists documents as JSON blobs in Redis with a per-owner name
// index hash. It is safe for concurrent use from many connections.
type RedisStore struct {
	rdb      *redis.Client
	instance string
}

// NewRedisStore creates a store for the given instance namespace.
// Returns an error if instance is empty.
func NewRedisStore(opts *redis.Options, instance string) (*RedisStore, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &RedisStore{rdb: redis.NewClient(opts), instance: instance}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SheetByID retrieves a sheet by id. Returns ErrNotFound if no row exists.
func (s *RedisStore) SheetByID(ctx context.Context, id int64) (*document.Sheet, error) {
	data, err := s.rdb.Get(ctx, SheetKey(s.instance, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet from Redis: %w", err)
	}
	var sheet document.Sheet
	if err := json.Unmarshal([]byte(data), &sheet); err != nil {
		return nil, fmt.Errorf("failed to deserialize sheet %d: %w", id, err)
	}
	return &sheet, nil
}

// SheetByOwnerAndName resolves a sheet through the owner's name index.
func (s *RedisStore) SheetByOwnerAndName(ctx context.Context, userID int64, name string) (*document.Sheet, error) {
	raw, err := s.rdb.HGet(ctx, SheetIndexKey(s.instance, userID), name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet name index: %w", err)
	}
	id, err := ParseID(raw)
	if err != nil {
		return nil, err
	}
	return s.SheetByID(ctx, id)
}

// SheetHeadsByOwner lists the owner's sheets as heads, ordered by id.
// The index hash alone carries everything a head needs.
func (s *RedisStore) SheetHeadsByOwner(ctx context.Context, userID int64) ([]document.SheetHead, error) {
	index, err := s.rdb.HGetAll(ctx, SheetIndexKey(s.instance, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet name index: %w", err)
	}
	heads := make([]document.SheetHead, 0, len(index))
	for name, raw := range index {
		id, err := ParseID(raw)
		if err != nil {
			return nil, err
		}
		heads = append(heads, document.SheetHead{ID: id, UserID: userID, SheetName: name})
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].ID < heads[j].ID })
	return heads, nil
}

// CreateSheet allocates an id, writes the blob and indexes the name.
func (s *RedisStore) CreateSheet(ctx context.Context, sheet *document.Sheet) (*document.Sheet, error) {
	id, err := s.rdb.Incr(ctx, SheetSeqKey(s.instance)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sheet id: %w", err)
	}
	created := *sheet
	created.ID = id
	if err := s.writeSheet(ctx, &created); err != nil {
		return nil, err
	}
	if err := s.rdb.HSet(ctx, SheetIndexKey(s.instance, created.UserID), created.SheetName, strconv.FormatInt(id, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to index sheet name: %w", err)
	}
	return &created, nil
}

// UpdateSheet replaces the persisted payload and keeps the name index in
// step when the sheet was renamed.
func (s *RedisStore) UpdateSheet(ctx context.Context, sheet *document.Sheet) (*document.Sheet, error) {
	existing, err := s.SheetByID(ctx, sheet.ID)
	if err != nil {
		return nil, err
	}
	if err := s.writeSheet(ctx, sheet); err != nil {
		return nil, err
	}
	indexKey := SheetIndexKey(s.instance, sheet.UserID)
	if existing.SheetName != sheet.SheetName {
		if err := s.rdb.HDel(ctx, indexKey, existing.SheetName).Err(); err != nil {
			return nil, fmt.Errorf("failed to drop stale sheet name index entry: %w", err)
		}
	}
	if err := s.rdb.HSet(ctx, indexKey, sheet.SheetName, strconv.FormatInt(sheet.ID, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to index sheet name: %w", err)
	}
	return sheet, nil
}

// DeleteSheet removes the blob and the index entry, returning the document
// as it was at deletion time.
func (s *RedisStore) DeleteSheet(ctx context.Context, id int64) (*document.Sheet, error) {
	sheet, err := s.SheetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Del(ctx, SheetKey(s.instance, id)).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete sheet: %w", err)
	}
	if err := s.rdb.HDel(ctx, SheetIndexKey(s.instance, sheet.UserID), sheet.SheetName).Err(); err != nil {
		return nil, fmt.Errorf("failed to drop sheet name index entry: %w", err)
	}
	return sheet, nil
}

func (s *RedisStore) writeSheet(ctx context.Context, sheet *document.Sheet) error {
	data, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to serialize sheet: %w", err)
	}
	if err := s.rdb.Set(ctx, SheetKey(s.instance, sheet.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write sheet to Redis: %w", err)
	}
	return nil
}

// MacroByID retrieves a macro document by id.
func (s *RedisStore) MacroByID(ctx context.Context, id int64) (*document.Macro, error) {
	data, err := s.rdb.Get(ctx, MacroKey(s.instance, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read macro from Redis: %w", err)
	}
	var macro document.Macro
	if err := json.Unmarshal([]byte(data), &macro); err != nil {
		return nil, fmt.Errorf("failed to deserialize macro %d: %w", id, err)
	}
	return &macro, nil
}

// MacroByOwnerAndName resolves a macro through the owner's name index.
func (s *RedisStore) MacroByOwnerAndName(ctx context.Context, userID int64, name string) (*document.Macro, error) {
	raw, err := s.rdb.HGet(ctx, MacroIndexKey(s.instance, userID), name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read macro name index: %w", err)
	}
	id, err := ParseID(raw)
	if err != nil {
		return nil, err
	}
	return s.MacroByID(ctx, id)
}

// MacroHeadsByOwner lists the owner's macro documents as heads, ordered by id.
func (s *RedisStore) MacroHeadsByOwner(ctx context.Context, userID int64) ([]document.MacroHead, error) {
	index, err := s.rdb.HGetAll(ctx, MacroIndexKey(s.instance, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read macro name index: %w", err)
	}
	heads := make([]document.MacroHead, 0, len(index))
	for name, raw := range index {
		id, err := ParseID(raw)
		if err != nil {
			return nil, err
		}
		heads = append(heads, document.MacroHead{ID: id, UserID: userID, MacroName: name})
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].ID < heads[j].ID })
	return heads, nil
}

// CreateMacro allocates an id, writes the blob and indexes the name.
func (s *RedisStore) CreateMacro(ctx context.Context, macro *document.Macro) (*document.Macro, error) {
	id, err := s.rdb.Incr(ctx, MacroSeqKey(s.instance)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate macro id: %w", err)
	}
	created := *macro
	created.ID = id
	if err := s.writeMacro(ctx, &created); err != nil {
		return nil, err
	}
	if err := s.rdb.HSet(ctx, MacroIndexKey(s.instance, created.UserID), created.MacroName, strconv.FormatInt(id, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to index macro name: %w", err)
	}
	return &created, nil
}

// UpdateMacro replaces the persisted payload and keeps the name index in step.
func (s *RedisStore) UpdateMacro(ctx context.Context, macro *document.Macro) (*document.Macro, error) {
	existing, err := s.MacroByID(ctx, macro.ID)
	if err != nil {
		return nil, err
	}
	if err := s.writeMacro(ctx, macro); err != nil {
		return nil, err
	}
	indexKey := MacroIndexKey(s.instance, macro.UserID)
	if existing.MacroName != macro.MacroName {
		if err := s.rdb.HDel(ctx, indexKey, existing.MacroName).Err(); err != nil {
			return nil, fmt.Errorf("failed to drop stale macro name index entry: %w", err)
		}
	}
	if err := s.rdb.HSet(ctx, indexKey, macro.MacroName, strconv.FormatInt(macro.ID, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to index macro name: %w", err)
	}
	return macro, nil
}

// DeleteMacro removes the blob and the index entry.
func (s *RedisStore) DeleteMacro(ctx context.Context, id int64) (*document.Macro, error) {
	macro, err := s.MacroByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Del(ctx, MacroKey(s.instance, id)).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete macro: %w", err)
	}
	if err := s.rdb.HDel(ctx, MacroIndexKey(s.instance, macro.UserID), macro.MacroName).Err(); err != nil {
		return nil, fmt.Errorf("failed to drop macro name index entry: %w", err)
	}
	return macro, nil
}

func (s *RedisStore) writeMacro(ctx context.Context, macro *document.Macro) error {
	data, err := json.Marshal(macro)
	if err != nil {
		return fmt.Errorf("failed to serialize macro: %w", err)
	}
	if err := s.rdb.Set(ctx, MacroKey(s.instance, macro.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write macro to Redis: %w", err)
	}
	return nil
}
