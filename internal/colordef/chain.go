package colordef

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// Chain tracks the published versions of one color. Safe for concurrent use.
type Chain struct {
	mu       sync.RWMutex
	color    types.ColorID
	versions []*Definition
}

// NewChain starts a chain at first.
func NewChain(first *Definition) *Chain {
	return &Chain{color: first.ColorID, versions: []*Definition{first}}
}

// Color returns the color the chain tracks.
func (c *Chain) Color() types.ColorID {
	return c.color
}

// Append adds the next version. It must belong to the same color and carry
// the version right after the current one.
func (c *Chain) Append(d *Definition) error {
	if d.ColorID != c.color {
		return fmt.Errorf("%w: %s, chain is %s", ErrColorMismatch, d.ColorID, c.color)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.versions[len(c.versions)-1]
	if cur.Version == ^uint32(0) || d.Version != cur.Version+1 {
		return fmt.Errorf("%w: got v%d after v%d", ErrVersionGap, d.Version, cur.Version)
	}
	c.versions = append(c.versions, d)
	return nil
}

// Current returns the latest version.
func (c *Chain) Current() *Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[len(c.versions)-1]
}

// At returns the given version.
func (c *Chain) At(version uint32) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	first := c.versions[0].Version
	if version < first || uint64(version-first) >= uint64(len(c.versions)) {
		return nil, false
	}
	return c.versions[version-first], true
}

// Len returns the number of versions tracked.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.versions)
}
