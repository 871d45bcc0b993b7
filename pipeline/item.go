package pipeline

import "fmt"

// StreamError is a per-item failure carried as data instead of terminating
// the stream. Data holds the failing input, or the stage formatter's
// rendering of it.
type StreamError struct {
	Err     error
	Data    any
	Stage   string
	StageID string
}

func (e *StreamError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Item is what flows on every edge: either a value or a StreamError record.
type Item[T any] struct {
	value T
	err   *StreamError
}

// Value wraps v as an ordinary item.
func Value[T any](v T) Item[T] {
	return Item[T]{value: v}
}

// Failed wraps a StreamError record as an item of any element type.
func Failed[T any](err *StreamError) Item[T] {
	return Item[T]{err: err}
}

// Value returns the item's value. It is the zero value for records.
func (it Item[T]) Value() T { return it.value }

// StreamError returns the record carried by the item, or nil.
func (it Item[T]) StreamError() *StreamError { return it.err }

// IsStreamError reports whether it carries a StreamError record. Both the
// error route and the value route are derived from it.
func IsStreamError[T any](it Item[T]) bool {
	return it.err != nil
}

// Partition splits items into values and records, preserving order within each.
func Partition[T any](items []Item[T]) ([]T, []*StreamError) {
	var (
		values  []T
		records []*StreamError
	)
	for _, it := range items {
		if IsStreamError(it) {
			records = append(records, it.err)
			continue
		}
		values = append(values, it.value)
	}
	return values, records
}

// retype moves a record onto an edge of a different element type.
func retype[O, I any](it Item[I]) Item[O] {
	return Item[O]{err: it.err}
}
