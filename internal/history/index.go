// Package history holds the list of past decisions retrieved from the
// analysis service and answers search queries over it.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/boardroom/internal/council"
)

// Refresh outcomes reported to Hooks.OnRefresh.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
)

var errNotArray = errors.New("history response is not a JSON array")

// Retriever fetches the raw history document from the analysis service.
type Retriever interface {
	History(ctx context.Context) (json.RawMessage, error)
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	OnRefresh func(outcome string, entries int)
}

// Index is the console's copy of the decision history. A refresh replaces
// the whole list at once; a failed refresh leaves it as it was.
type Index struct {
	retriever Retriever
	logger    log.Logger
	hooks     Hooks

	mu      sync.RWMutex
	entries []*council.HistoryEntry
}

// NewIndex creates an empty index backed by r.
func NewIndex(r Retriever, logger log.Logger, hooks Hooks) *Index {
	if logger == nil {
		logger = log.Nop()
	}
	return &Index{
		retriever: r,
		logger:    logger,
		hooks:     hooks,
	}
}

// Refresh fetches the history and swaps it in. Errors are logged and absorbed;
// the returned list is whatever the index holds afterwards.
func (x *Index) Refresh(ctx context.Context) []*council.HistoryEntry {
	raw, err := x.retriever.History(ctx)
	if err != nil {
		x.logger.Error(ctx, err, "failed to fetch history")
		x.report(OutcomeError, -1)
		return x.Entries()
	}

	entries, err := decode(raw)
	if err != nil {
		x.logger.Warn(ctx, "ignoring malformed history response", "error", err, "bytes", len(raw))
		x.report(OutcomeMalformed, -1)
		return x.Entries()
	}

	x.mu.Lock()
	x.entries = entries
	x.mu.Unlock()

	x.report(OutcomeOK, len(entries))
	return x.Entries()
}

// Entries returns the held list. The slice is a copy; entries are shared and
// must be treated as read-only.
func (x *Index) Entries() []*council.HistoryEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*council.HistoryEntry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Len reports the number of held entries, nulls included.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// At returns the entry at position i of the held list.
func (x *Index) At(i int) (*council.HistoryEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if i < 0 || i >= len(x.entries) || x.entries[i] == nil {
		return nil, false
	}
	return x.entries[i], true
}

func (x *Index) report(outcome string, n int) {
	if x.hooks.OnRefresh != nil {
		x.hooks.OnRefresh(outcome, n)
	}
}

// decode reads the history array one element at a time. Nulls and elements
// that are not objects are held as nil; objects decode leniently, so one bad
// field never discards the rest of the list.
func decode(raw json.RawMessage) ([]*council.HistoryEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errNotArray
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	entries := make([]*council.HistoryEntry, len(items))
	for i, it := range items {
		it = bytes.TrimSpace(it)
		if len(it) == 0 || it[0] != '{' {
			continue
		}
		e := new(council.HistoryEntry)
		if err := json.Unmarshal(it, e); err != nil {
			continue
		}
		entries[i] = e
	}
	return entries, nil
}
