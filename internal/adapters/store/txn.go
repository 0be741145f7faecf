package store

import (
	"fmt"
	"sort"
)

// TxBuffer is the Tx implementation shared by backends: reads come from a
// snapshot of the declared keys and writes are buffered until commit.
type TxBuffer struct {
	snapshot map[string][]byte
	declared map[string]bool
	writes   map[string][]byte
	deletes  map[string]bool
}

// NewTxBuffer builds a buffer over keys. snapshot holds the current values of
// the keys that exist.
func NewTxBuffer(keys []string, snapshot map[string][]byte) *TxBuffer {
	declared := make(map[string]bool, len(keys))
	for _, k := range keys {
		declared[k] = true
	}
	return &TxBuffer{
		snapshot: snapshot,
		declared: declared,
		writes:   make(map[string][]byte),
		deletes:  make(map[string]bool),
	}
}

func (t *TxBuffer) check(key string) error {
	if !t.declared[key] {
		return fmt.Errorf("%w: %s", ErrUndeclaredKey, key)
	}
	return nil
}

// Get implements Tx and sees the transaction's own writes.
func (t *TxBuffer) Get(key string) ([]byte, error) {
	if err := t.check(key); err != nil {
		return nil, err
	}
	if t.deletes[key] {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if v, ok := t.writes[key]; ok {
		return v, nil
	}
	if v, ok := t.snapshot[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
}

// Put implements Tx.
func (t *TxBuffer) Put(key string, value []byte) error {
	if err := t.check(key); err != nil {
		return err
	}
	delete(t.deletes, key)
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Tx.
func (t *TxBuffer) Delete(key string) error {
	if err := t.check(key); err != nil {
		return err
	}
	delete(t.writes, key)
	t.deletes[key] = true
	return nil
}

// Changes returns the buffered writes in key order.
func (t *TxBuffer) Changes() []Change {
	out := make([]Change, 0, len(t.writes)+len(t.deletes))
	for k, v := range t.writes {
		out = append(out, Change{Key: k, Value: v})
	}
	for k := range t.deletes {
		out = append(out, Change{Key: k, Deleted: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
