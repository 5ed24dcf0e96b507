package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Overlay buffers writes on top of a base store. Reads see buffered writes
// first and fall through to the base; nothing touches the base until Flush.
// Each event handler runs against one overlay, so an aborted event leaves no
// partial state behind and a successful one lands all of its mutations
// together.
type Overlay struct {
	base    Store
	pending map[string]json.RawMessage
	order   []string // flush in first-write order
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{
		base:    base,
		pending: make(map[string]json.RawMessage, 32),
	}
}

func (o *Overlay) Get(ctx context.Context, kind, key string, out any) error {
	if raw, ok := o.pending[memKey(kind, key)]; ok {
		return json.Unmarshal(raw, out)
	}
	return o.base.Get(ctx, kind, key, out)
}

func (o *Overlay) Put(_ context.Context, kind, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal %s:%s: %w", kind, key, err)
	}

	k := memKey(kind, key)
	if _, seen := o.pending[k]; !seen {
		o.order = append(o.order, k)
	}
	o.pending[k] = raw
	return nil
}

// Flush persists every buffered document to the base store.
func (o *Overlay) Flush(ctx context.Context) error {
	for _, k := range o.order {
		kind, key := splitKey(k)
		if err := o.base.Put(ctx, kind, key, o.pending[k]); err != nil {
			return fmt.Errorf("flush %s: %w", k, err)
		}
	}
	o.pending = make(map[string]json.RawMessage, 32)
	o.order = o.order[:0]
	return nil
}

// Pending reports the number of buffered documents.
func (o *Overlay) Pending() int {
	return len(o.pending)
}

func splitKey(k string) (kind, key string) {
	for i := 0; i < len(k); i++ {
		if k[i] == ':' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}
