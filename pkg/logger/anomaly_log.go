package logger

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultAnomalyCapacity = 500

type AnomalyEntry struct {
	Seq       int64                  `json:"seq"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// AnomalyLog keeps the most recent warn-and-above entries in memory so
// operators can read them from the internal endpoint without log shipping.
type AnomalyLog struct {
	mu       sync.RWMutex
	entries  []AnomalyEntry
	capacity int
	next     int
	size     int
	seq      int64
}

func NewAnomalyLog(capacity int) *AnomalyLog {
	if capacity <= 0 {
		capacity = defaultAnomalyCapacity
	}
	return &AnomalyLog{
		entries:  make([]AnomalyEntry, capacity),
		capacity: capacity,
	}
}

// Tee returns base with every warn-and-above entry also recorded into l.
func (l *AnomalyLog) Tee(base *zap.Logger) *zap.Logger {
	if base == nil || l == nil {
		return base
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &anomalyCore{Core: core, sink: l}
	}))
}

// Recent returns up to limit entries, newest first.
func (l *AnomalyLog) Recent(limit int) []AnomalyEntry {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]AnomalyEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + l.capacity) % l.capacity
		out = append(out, l.entries[idx])
	}
	return out
}

func (l *AnomalyLog) record(entry zapcore.Entry, fields []zapcore.Field) {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range SanitizeFields(fields) {
		field.AddTo(enc)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	item := AnomalyEntry{
		Seq:       l.seq,
		Timestamp: entry.Time.UTC(),
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Caller:    entry.Caller.TrimmedPath(),
	}
	if len(enc.Fields) > 0 {
		item.Fields = enc.Fields
	}

	l.entries[l.next] = item
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
}

type anomalyCore struct {
	zapcore.Core
	sink   *AnomalyLog
	fields []zapcore.Field
}

func (c *anomalyCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &anomalyCore{Core: c.Core.With(fields), sink: c.sink, fields: merged}
}

func (c *anomalyCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *anomalyCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= zapcore.WarnLevel {
		all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
		all = append(all, c.fields...)
		all = append(all, fields...)
		c.sink.record(entry, all)
	}
	return c.Core.Write(entry, fields)
}
