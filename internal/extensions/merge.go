package extensions

import (
	"go.uber.org/zap"
)

// mergeSet accumulates extensions keyed by identity. A later extension
// replaces an earlier one in place.
type mergeSet struct {
	index      map[string]int
	list       []Extension
	collisions int
	logger     *zap.Logger
}

func newMergeSet(logger *zap.Logger) *mergeSet {
	return &mergeSet{
		index:  make(map[string]int),
		logger: logger,
	}
}

func (m *mergeSet) addAll(exts []Extension) {
	for _, ext := range exts {
		m.add(ext)
	}
}

func (m *mergeSet) add(ext Extension) {
	key := ext.Identifier.Key()
	if i, ok := m.index[key]; ok {
		m.logger.Warn("overwriting extension",
			zap.String("extension", key),
			zap.String("previous", m.list[i].Location.FSPath()),
			zap.String("new", ext.Location.FSPath()))
		m.list[i] = ext
		m.collisions++
		return
	}
	m.index[key] = len(m.list)
	m.list = append(m.list, ext)
}

func (m *mergeSet) values() []Extension {
	out := make([]Extension, len(m.list))
	copy(out, m.list)
	return out
}
