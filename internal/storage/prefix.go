package storage

// PrefixDB is a namespace within a shared DB. The tracker keeps the ledger
// store and the color database side by side in one engine this way.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace of inner under prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: clone(prefix)}
}

func withPrefix(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	return append(append(out, prefix...), key...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(withPrefix(p.prefix, key))
}

func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(withPrefix(p.prefix, key), value)
}

func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(withPrefix(p.prefix, key))
}

func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(withPrefix(p.prefix, key))
}

// ForEach visits keys under prefix inside the namespace. Keys reach fn
// without the namespace prefix.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(withPrefix(p.prefix, prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// DeleteAll empties the namespace.
func (p *PrefixDB) DeleteAll() error {
	var keys [][]byte
	err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		keys = append(keys, clone(key))
		return nil
	})
	if err != nil {
		return err
	}
	b := NewBatch(p.inner)
	for _, key := range keys {
		if err := b.Delete(key); err != nil {
			return err
		}
	}
	return b.Commit()
}

// Root returns the database beneath any namespaces wrapping db.
func Root(db DB) DB {
	for {
		p, ok := db.(*PrefixDB)
		if !ok {
			return db
		}
		db = p.inner
	}
}

// View returns the view of b, a batch over Root(db), that writes inside
// db's namespaces.
func View(db DB, b Batch) Batch {
	p, ok := db.(*PrefixDB)
	if !ok {
		return b
	}
	return p.Wrap(View(p.inner, b))
}

// Close does nothing. The shared DB is closed by its owner.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns a batch over the namespace, atomic when the shared DB
// supports it.
func (p *PrefixDB) NewBatch() Batch {
	return p.Wrap(NewBatch(p.inner))
}

// Wrap returns a view of b that writes inside the namespace. Views of
// several namespaces over one batch commit together.
func (p *PrefixDB) Wrap(b Batch) Batch {
	return &prefixBatch{inner: b, prefix: p.prefix}
}

type prefixBatch struct {
	inner  Batch
	prefix []byte
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(withPrefix(pb.prefix, key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(withPrefix(pb.prefix, key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}
