// Package colordb maintains the colored state of the ledger for a set of
// registered colors: which outpoints hold how much of each color, and the
// transactions that put it there, so proofs can be built for any of them.
package colordb

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/log"
	"github.com/Klingon-tech/smartcolors/internal/storage"
	"github.com/Klingon-tech/smartcolors/pkg/crypto"
	"github.com/Klingon-tech/smartcolors/pkg/merbinner"
	"github.com/Klingon-tech/smartcolors/pkg/serde"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

var (
	ErrUnknownColor    = errors.New("unknown color")
	ErrNotColored      = errors.New("outpoint holds no color")
	ErrVersionConflict = errors.New("conflicting definition version")
	ErrNoDefinition    = errors.New("no definition version commits to all genesis points")
	ErrGenesisSpent    = errors.New("genesis point already spent with another quantity")
)

// color is the in-memory state of one registered color.
type color struct {
	id    types.ColorID
	chain *colordef.Chain
	trees map[uint32]*merbinner.Tree
	db    *storage.PrefixDB
}

// DB is a color database. Safe for concurrent use.
type DB struct {
	mu     sync.RWMutex
	store  storage.DB
	colors map[types.ColorID]*color
	seq    uint64
}

// Open loads a color database from store.
func Open(store storage.DB) (*DB, error) {
	d := &DB{store: store, colors: make(map[types.ColorID]*color)}

	if data, err := store.Get(keySeq); err == nil {
		r := serde.NewReader(data)
		d.seq = r.Uint64()
		if err := r.Done(); err != nil {
			return nil, fmt.Errorf("colordb seq: %w", err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("colordb seq: %w", err)
	}

	var ids []types.ColorID
	err := store.ForEach(prefixColor, func(key, _ []byte) error {
		var id types.ColorID
		copy(id[:], key[len(prefixColor):])
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("colordb registry: %w", err)
	}
	for _, id := range ids {
		c, err := d.load(id)
		if err != nil {
			return nil, fmt.Errorf("colordb load %s: %w", id, err)
		}
		d.colors[id] = c
	}
	log.ColorDB.Debug().Int("colors", len(d.colors)).Uint64("seq", d.seq).Msg("Color database opened")
	return d, nil
}

func (d *DB) newColor(id types.ColorID) *color {
	return &color{
		id:    id,
		trees: make(map[uint32]*merbinner.Tree),
		db:    storage.NewPrefixDB(d.store, colorPrefix(id)),
	}
}

func (d *DB) load(id types.ColorID) (*color, error) {
	c := d.newColor(id)
	err := c.db.ForEach(prefixIssuance, func(_, value []byte) error {
		is, err := colordef.DecodeIssuance(value)
		if err != nil {
			return err
		}
		tree, err := is.Tree()
		if err != nil {
			return err
		}
		if c.chain == nil {
			c.chain = colordef.NewChain(is.Definition)
		} else if err := c.chain.Append(is.Definition); err != nil {
			return err
		}
		c.trees[is.Definition.Version] = tree
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.chain == nil {
		return nil, fmt.Errorf("%w: no definitions stored", ErrUnknownColor)
	}
	return c, nil
}

// Register adds a color, or a newer version of a registered color. Genesis
// points of the new version become colored with the quantity it declares;
// unspent genesis points the new version drops stop being colored. A new
// version cannot change the quantity of a genesis point already spent.
// Registering a version already known is a no-op.
func (d *DB) Register(is *colordef.Issuance) error {
	def := is.Definition
	tree, err := is.Tree()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, known := d.colors[def.ColorID]
	var prev *merbinner.Tree
	if known {
		if old, ok := c.chain.At(def.Version); ok {
			if old.Hash() != def.Hash() {
				return fmt.Errorf("%w: %s", ErrVersionConflict, def)
			}
			return nil
		}
		cur := c.chain.Current()
		if def.Version != cur.Version+1 {
			return fmt.Errorf("%w: %s after v%d", colordef.ErrVersionGap, def, cur.Version)
		}
		prev = c.trees[cur.Version]
	} else {
		c = d.newColor(def.ColorID)
	}

	root := storage.NewBatch(d.store)
	b := c.db.Wrap(root)
	if err := b.Put(versionKey(prefixDef, def.Version), def.Encode()); err != nil {
		return err
	}
	if err := b.Put(versionKey(prefixIssuance, def.Version), is.Encode()); err != nil {
		return err
	}
	if err := root.Put(hashKey(prefixColor, types.Hash(def.ColorID)), []byte{}); err != nil {
		return err
	}
	for _, g := range is.Points {
		rec, err := c.out(g.Outpoint)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			rec = &outRecord{}
		case err != nil:
			return err
		case !rec.Producer.IsZero() || rec.Quantity == g.Quantity:
			continue
		case !rec.unspent():
			return fmt.Errorf("%w: %s holds %d, %s declares %d", ErrGenesisSpent, g.Outpoint, rec.Quantity, def, g.Quantity)
		}
		rec.Quantity = g.Quantity
		if err := b.Put(outpointKey(prefixOut, g.Outpoint), rec.encode()); err != nil {
			return err
		}
	}
	if prev != nil {
		if err := c.dropGenesis(b, prev, tree); err != nil {
			return err
		}
		if err := c.clearProofs(b); err != nil {
			return err
		}
	}
	if err := root.Commit(); err != nil {
		return fmt.Errorf("register %s: %w", def, err)
	}

	if known {
		// Cannot fail: the version was checked above.
		_ = c.chain.Append(def)
	} else {
		c.chain = colordef.NewChain(def)
		d.colors[def.ColorID] = c
	}
	c.trees[def.Version] = tree
	log.ColorDB.Info().
		Str("color", def.ColorID.String()).
		Uint32("version", def.Version).
		Int("genesis", len(is.Points)).
		Msg("Color definition registered")
	return nil
}

// dropGenesis removes unspent genesis records whose key the new tree no
// longer commits to.
func (c *color) dropGenesis(b storage.Batch, prev, next *merbinner.Tree) error {
	return c.db.ForEach(prefixOut, func(key, value []byte) error {
		rec, err := decodeOutRecord(value)
		if err != nil {
			return err
		}
		if !rec.Producer.IsZero() || !rec.unspent() {
			return nil
		}
		op, err := types.OutpointFromBytes(key[len(prefixOut):])
		if err != nil {
			return err
		}
		k := crypto.ColorKey(op)
		if _, inPrev := prev.Get(k); !inPrev {
			return nil
		}
		if _, inNext := next.Get(k); inNext {
			return nil
		}
		return b.Delete(key)
	})
}

func (c *color) clearProofs(b storage.Batch) error {
	return c.db.ForEach(prefixProof, func(key, _ []byte) error {
		return b.Delete(key)
	})
}

// Colors returns the registered colors in id order.
func (d *DB) Colors() []types.ColorID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortedIDs()
}

func (d *DB) sortedIDs() []types.ColorID {
	ids := make([]types.ColorID, 0, len(d.colors))
	for id := range d.colors {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b types.ColorID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

// Definition returns the current definition of a color.
func (d *DB) Definition(id types.ColorID) (*colordef.Definition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.colors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColor, id)
	}
	return c.chain.Current(), nil
}

// DefinitionAt returns a specific version of a color's definition.
func (d *DB) DefinitionAt(id types.ColorID, version uint32) (*colordef.Definition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.colors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColor, id)
	}
	def, ok := c.chain.At(version)
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnknownColor, id, version)
	}
	return def, nil
}

// Tree returns the genesis commitment tree of a definition version.
func (d *DB) Tree(id types.ColorID, version uint32) (*merbinner.Tree, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, err := d.color(id)
	if err != nil {
		return nil, err
	}
	tree, ok := c.trees[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnknownColor, id, version)
	}
	return tree, nil
}

func (d *DB) color(id types.ColorID) (*color, error) {
	c, ok := d.colors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColor, id)
	}
	return c, nil
}

// key returns the store key of a key inside the color's namespace.
func (c *color) key(k []byte) []byte {
	return append(colorPrefix(c.id), k...)
}

func (c *color) out(op types.Outpoint) (*outRecord, error) {
	data, err := c.db.Get(outpointKey(prefixOut, op))
	if err != nil {
		return nil, err
	}
	return decodeOutRecord(data)
}
