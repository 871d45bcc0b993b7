package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/resilience"
)

// Blob is an object's key and contents.
type Blob struct {
	Key  string
	Data []byte
}

// NewPutSink creates a stage writing each blob to store and emitting it
// once written.
func NewPutSink(name string, store Store, opts ...pipeline.Option) *pipeline.Stage[Blob, Blob] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, b Blob) (Blob, error) {
		if err := store.Put(ctx, b.Key, bytes.NewReader(b.Data)); err != nil {
			return Blob{}, err
		}
		return b, nil
	}), opts...)
}

// NewFetchStage creates a stage reading the object for each key. A missing
// object is a permanent NOT_FOUND error, so retries skip it.
func NewFetchStage(name string, store Store, opts ...pipeline.Option) *pipeline.Stage[string, Blob] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, key string) (Blob, error) {
		rc, err := store.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, ErrNotFound) {
				return Blob{}, resilience.Permanent(errors.NotFound("object", key).WithCause(err))
			}
			return Blob{}, err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return Blob{}, fmt.Errorf("storage: read %s: %w", key, err)
		}
		return Blob{Key: key, Data: data}, nil
	}), opts...)
}

// NewListSource creates a source emitting the objects under prefix in key
// order. The listing is taken when the source starts.
func NewListSource(store Store, prefix string, opts ...pipeline.Option) *pipeline.Source[Object] {
	var (
		objects []Object
		listed  bool
	)
	next := func(ctx context.Context) (Object, bool, error) {
		if !listed {
			var err error
			if objects, err = store.List(ctx, prefix); err != nil {
				return Object{}, false, err
			}
			listed = true
		}
		if len(objects) == 0 {
			return Object{}, false, nil
		}
		o := objects[0]
		objects = objects[1:]
		return o, true, nil
	}
	return pipeline.FromFunc(next, append([]pipeline.Option{pipeline.WithName("list:" + prefix)}, opts...)...)
}
