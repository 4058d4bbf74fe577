package reconcile

// ExclusionList is the ordered set of observation keys that are never
// persisted. It only grows between commits.
type ExclusionList struct {
	keys      []string
	set       map[string]struct{}
	committed int
}

// NewExclusionList returns a list holding keys in order, without duplicates.
// The initial keys count as committed.
func NewExclusionList(keys []string) *ExclusionList {
	l := &ExclusionList{set: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		l.Add(k)
	}
	l.Commit()
	return l
}

// Contains reports whether key is excluded.
func (l *ExclusionList) Contains(key string) bool {
	_, ok := l.set[key]
	return ok
}

// Add appends key and reports whether it was not already present.
func (l *ExclusionList) Add(key string) bool {
	if key == "" || l.Contains(key) {
		return false
	}
	l.set[key] = struct{}{}
	l.keys = append(l.keys, key)
	return true
}

// Keys returns a copy of the keys in insertion order.
func (l *ExclusionList) Keys() []string {
	return append([]string(nil), l.keys...)
}

// Len returns the number of keys.
func (l *ExclusionList) Len() int {
	return len(l.keys)
}

// Changed reports whether keys were added since the last Commit.
func (l *ExclusionList) Changed() bool {
	return len(l.keys) > l.committed
}

// Added returns the keys added since the last Commit.
func (l *ExclusionList) Added() []string {
	return append([]string(nil), l.keys[l.committed:]...)
}

// Commit marks the current keys as persisted.
func (l *ExclusionList) Commit() {
	l.committed = len(l.keys)
}
