// Package catalog is the item catalog: admin-managed item definitions with
// O(1) case-insensitive name resolution, persisted in pebble and served
// from memory.
package catalog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"bazaar/domain/market"
)

// ErrDuplicateItem rejects adding a name that already resolves.
var ErrDuplicateItem = errors.New("item already exists")

var seqKey = []byte("seq")

type item struct {
	ID       market.ItemID `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category,omitempty"`
}

// Catalog loads every item into memory on open; lookups never touch disk.
type Catalog struct {
	db *pebble.DB

	mu     sync.RWMutex
	byName map[string]market.ItemID // lowercased name -> id
	byID   map[market.ItemID]item
	nextID market.ItemID
}

func Open(dir string) (*Catalog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c := &Catalog{
		db:     db,
		byName: make(map[string]market.ItemID),
		byID:   make(map[market.ItemID]item),
		nextID: 1,
	}
	if err := c.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load() error {
	if v, closer, err := c.db.Get(seqKey); err == nil {
		c.nextID = market.ItemID(binary.BigEndian.Uint64(v))
		_ = closer.Close()
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}

	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("item/"),
		UpperBound: []byte("item0"), // '0' follows '/'
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var it item
		if err := json.Unmarshal(iter.Value(), &it); err != nil {
			return fmt.Errorf("decode item %q: %w", iter.Key(), err)
		}
		c.byName[strings.ToLower(it.Name)] = it.ID
		c.byID[it.ID] = it
	}
	return iter.Error()
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Add registers a new item and returns its id.
func (c *Catalog) Add(name, category string) (market.ItemID, error) {
	name, err := market.ValidateItemName(name)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.byName[strings.ToLower(name)]; taken {
		return 0, ErrDuplicateItem
	}

	it := item{ID: c.nextID, Name: name, Category: category}
	if err := c.persist(it, c.nextID+1); err != nil {
		return 0, err
	}
	c.nextID++
	c.byName[strings.ToLower(it.Name)] = it.ID
	c.byID[it.ID] = it
	return it.ID, nil
}

func (c *Catalog) persist(it item, nextID market.ItemID) error {
	val, err := json.Marshal(it)
	if err != nil {
		return err
	}
	b := c.db.NewBatch()
	defer b.Close()
	if err := b.Set(itemKey(it.ID), val, nil); err != nil {
		return err
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(nextID))
	if err := b.Set(seqKey, seq[:], nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Remove deletes an item by name.
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return market.ErrItemNotFound
	}
	if err := c.db.Delete(itemKey(id), pebble.Sync); err != nil {
		return err
	}
	delete(c.byName, strings.ToLower(c.byID[id].Name))
	delete(c.byID, id)
	return nil
}

// Resolve maps a name to its id, case-insensitively.
func (c *Catalog) Resolve(name string) (market.ItemID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, market.ErrItemNotFound
	}
	return id, nil
}

func (c *Catalog) Exists(id market.ItemID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byID[id]
	return ok
}

// Name returns the display name for an id.
func (c *Catalog) Name(id market.ItemID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.byID[id]
	return it.Name, ok
}

// Search returns up to limit item names containing the query, for command
// surfaces that offer completion.
func (c *Catalog) Search(query string, limit int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for lower, id := range c.byName {
		if strings.Contains(lower, query) {
			out = append(out, c.byID[id].Name)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func itemKey(id market.ItemID) []byte {
	k := append([]byte(nil), "item/"...)
	return binary.BigEndian.AppendUint64(k, uint64(id))
}
