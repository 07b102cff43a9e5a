package cache

// ScopedKeyer prefixes every key from an inner [Keyer], so several canvases
// or deployments can share one Redis without seeing each other's entries.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "canvas:project/42:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner. A nil inner uses [DefaultKeyer].
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// EdgeKey returns the prefixed edge query key.
func (k *ScopedKeyer) EdgeKey(uuids []string) string {
	return k.prefix + k.inner.EdgeKey(uuids)
}

// SearchKey returns the prefixed search key.
func (k *ScopedKeyer) SearchKey(kind, query string, limit int) string {
	return k.prefix + k.inner.SearchKey(kind, query, limit)
}
