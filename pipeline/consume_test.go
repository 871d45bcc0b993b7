package pipeline

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/flowkit/errors"
)

func TestIter_CloseStopsUpstream(t *testing.T) {
	n := 0
	endless := FromFunc(func(context.Context) (int, bool, error) {
		n++
		return n, true, nil
	})
	double := NewStage("double", Sync(func(n int) (int, error) { return n * 2, nil }))
	if err := ConnectOneToOne[int](endless, double); err != nil {
		t.Fatal(err)
	}

	it, err := Iter[int](double)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		v, ok, err := it.Next(ctx)
		if !ok || err != nil || v.Value() != i*2 {
			t.Fatalf("item %d: %v ok=%v err=%v", i, v.Value(), ok, err)
		}
	}
	it.Close()

	waitDone(t, double)
	if !errors.HasCode(double.Err(), errors.ErrCodeDownstreamClosed) {
		t.Errorf("double: expected DOWNSTREAM_CLOSED, got %v", double.Err())
	}
	waitDone(t, endless)
	if !errors.HasCode(endless.Err(), errors.ErrCodeDownstreamClosed) {
		t.Errorf("source: expected DOWNSTREAM_CLOSED, got %v", endless.Err())
	}
}

func TestIter_OnlyOnce(t *testing.T) {
	src := FromSlice(seq(1, 2))
	if _, err := Collect(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if _, err := Iter[int](src); !errors.HasCode(err, errors.ErrCodeInvalidTopology) {
		t.Errorf("expected INVALID_TOPOLOGY, got %v", err)
	}
	if _, err := Iter[int](nil); !errors.HasCode(err, errors.ErrCodeInvalidTopology) {
		t.Errorf("expected INVALID_TOPOLOGY for nil, got %v", err)
	}
}

func TestCollect_ContextCanceled(t *testing.T) {
	block := make(chan int)
	src := FromChannel(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Collect(ctx, src)
	if !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline in chain, got %v", err)
	}
	waitDone(t, src)
	if !errors.HasCode(src.Err(), errors.ErrCodeCanceled) {
		t.Errorf("source should be canceled, got %v", src.Err())
	}
}

func TestForEach_CallbackErrorStops(t *testing.T) {
	src := FromSlice(seq(1, 100))
	stop := stderrors.New("enough")
	seen := 0
	err := ForEach(context.Background(), src, func(_ context.Context, it Item[int]) error {
		seen++
		if it.Value() == 3 {
			return stop
		}
		return nil
	})
	if !stderrors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if seen != 3 {
		t.Errorf("expected 3 callbacks, got %d", seen)
	}
	waitDone(t, src)
	if !errors.HasCode(src.Err(), errors.ErrCodeAborted) {
		t.Errorf("expected ABORTED, got %v", src.Err())
	}
}

func TestWait(t *testing.T) {
	t.Run("completes unconsumed stages", func(t *testing.T) {
		src := FromSlice(seq(1, 50))
		stage := identity[int]("sink")
		if err := ConnectOneToOne[int](src, stage); err != nil {
			t.Fatal(err)
		}
		if err := Wait(context.Background(), stage); err != nil {
			t.Fatal(err)
		}
		if st := stage.Stats(); st.Received != 50 || st.State != StateCompleted {
			t.Errorf("unexpected stats %+v", st)
		}
	})

	t.Run("returns the first failure", func(t *testing.T) {
		ok := identity[int]("ok")
		bad := NewStage("bad", Sync(func(int) (int, error) { return 0, stderrors.New("bad") }))
		if err := ConnectOneToOne[int](FromSlice(seq(1, 3)), ok); err != nil {
			t.Fatal(err)
		}
		if err := ConnectOneToOne[int](FromSlice(seq(1, 3)), bad); err != nil {
			t.Fatal(err)
		}
		err := Wait(context.Background(), ok, bad)
		if !errors.HasCode(err, errors.ErrCodeStageFailed) {
			t.Errorf("expected STAGE_FAILED, got %v", err)
		}
	})

	t.Run("aborts the others on failure", func(t *testing.T) {
		n := 0
		endless := FromFunc(func(context.Context) (int, bool, error) {
			n++
			return n, true, nil
		}, WithName("endless"))
		busy := identity[int]("busy")
		bad := NewStage("bad", Sync(func(int) (int, error) { return 0, stderrors.New("bad") }))
		if err := ConnectOneToOne[int](endless, busy); err != nil {
			t.Fatal(err)
		}
		if err := ConnectOneToOne[int](FromSlice(seq(1, 3)), bad); err != nil {
			t.Fatal(err)
		}

		if err := Wait(context.Background(), busy, bad); !errors.HasCode(err, errors.ErrCodeStageFailed) {
			t.Fatalf("expected STAGE_FAILED, got %v", err)
		}
		waitDone(t, busy)
		if !errors.HasCode(busy.Err(), errors.ErrCodeAborted) {
			t.Errorf("busy: expected ABORTED, got %v", busy.Err())
		}
		waitDone(t, endless)
	})

	t.Run("context", func(t *testing.T) {
		errs := NewErrorChannel()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := Wait(ctx, errs); !stderrors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline, got %v", err)
		}
		waitDone(t, errs)
		if !errors.HasCode(errs.Err(), errors.ErrCodeCanceled) {
			t.Errorf("expected CANCELED, got %v", errs.Err())
		}
	})

	t.Run("nil node", func(t *testing.T) {
		if err := Wait(context.Background(), nil); !errors.HasCode(err, errors.ErrCodeInvalidTopology) {
			t.Errorf("expected INVALID_TOPOLOGY, got %v", err)
		}
	})
}

func TestTerminals_RejectUnfedStage(t *testing.T) {
	t.Run("collect", func(t *testing.T) {
		lonely := identity[int]("lonely")
		if _, err := Collect(context.Background(), lonely); !errors.HasCode(err, errors.ErrCodeInvalidTopology) {
			t.Errorf("expected INVALID_TOPOLOGY, got %v", err)
		}
		if lonely.core().started() {
			t.Error("rejected stage should not start")
		}
	})

	t.Run("wait", func(t *testing.T) {
		src := FromSlice(seq(1, 3))
		fed := identity[int]("fed")
		if err := ConnectOneToOne[int](src, fed); err != nil {
			t.Fatal(err)
		}
		err := Wait(context.Background(), fed, identity[int]("lonely"))
		if !errors.HasCode(err, errors.ErrCodeInvalidTopology) {
			t.Errorf("expected INVALID_TOPOLOGY, got %v", err)
		}
		if fed.core().started() {
			t.Error("no node should start when one is rejected")
		}
	})

	t.Run("closed input", func(t *testing.T) {
		closed := identity[int]("closed")
		closed.Input().Close()
		got, err := Collect(context.Background(), closed)
		if err != nil || len(got) != 0 {
			t.Errorf("expected empty result, got %v, %v", got, err)
		}
	})
}

type sliceIter[T any] struct {
	items  []T
	pos    int
	closed bool
}

func (it *sliceIter[T]) Next(context.Context) (T, bool, error) {
	if it.pos >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	v := it.items[it.pos]
	it.pos++
	return v, true, nil
}

func (it *sliceIter[T]) Close() error {
	it.closed = true
	return nil
}

func TestSources(t *testing.T) {
	ctx := context.Background()

	t.Run("iterator", func(t *testing.T) {
		iter := &sliceIter[string]{items: []string{"a", "b"}}
		src := FromIterator[string](iter)
		got, err := Collect(ctx, src)
		if err != nil || !sliceEqual(got, []string{"a", "b"}) {
			t.Fatalf("got %v, err %v", got, err)
		}
		if !iter.closed {
			t.Error("iterator was not closed")
		}
		if src.Name() != "iterator" || src.Kind() != KindSource {
			t.Errorf("unexpected identity %s/%s", src.Name(), src.Kind())
		}
	})

	t.Run("channel", func(t *testing.T) {
		ch := make(chan int, 3)
		ch <- 1
		ch <- 2
		ch <- 3
		close(ch)
		got, err := Collect(ctx, FromChannel(ch, WithName("numbers")))
		if err != nil || !sliceEqual(got, []int{1, 2, 3}) {
			t.Fatalf("got %v, err %v", got, err)
		}
	})

	t.Run("func error", func(t *testing.T) {
		broken := FromFunc(func(context.Context) (int, bool, error) {
			return 0, false, stderrors.New("read failed")
		})
		_, err := Collect(ctx, broken)
		if !errors.HasCode(err, errors.ErrCodeStageFailed) {
			t.Errorf("expected STAGE_FAILED, got %v", err)
		}
	})
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		input []int
		size  int
		want  [][]int
	}{
		{"even split", seq(1, 6), 2, [][]int{{1, 2}, {3, 4}, {5, 6}}},
		{"partial tail", seq(1, 5), 2, [][]int{{1, 2}, {3, 4}, {5}}},
		{"empty", nil, 3, nil},
		{"zero size defaults to one", seq(1, 2), 0, [][]int{{1}, {2}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chunk := Chunk[int]("chunk", tc.size, 0)
			if err := ConnectOneToOne[int](FromSlice(tc.input), chunk); err != nil {
				t.Fatal(err)
			}
			got, err := Collect(context.Background(), chunk)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if !sliceEqual(got[i], tc.want[i]) {
					t.Errorf("chunk %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestChunk_Timeout(t *testing.T) {
	ch := make(chan int)
	chunk := Chunk[int]("chunk", 10, 10*time.Millisecond)
	if err := ConnectOneToOne[int](FromChannel(ch), chunk); err != nil {
		t.Fatal(err)
	}
	it, err := Iter[[]int](chunk)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	ch <- 1
	ch <- 2
	v, ok, err := it.Next(context.Background())
	if !ok || err != nil || !sliceEqual(v.Value(), []int{1, 2}) {
		t.Fatalf("expected timed flush of [1 2], got %v ok=%v err=%v", v.Value(), ok, err)
	}
	close(ch)
	if _, ok, err := it.Next(context.Background()); ok || err != nil {
		t.Errorf("expected clean end, got ok=%v err=%v", ok, err)
	}
}

func TestChunkFlatten_RoundTripWithRecords(t *testing.T) {
	src := FromSlice(seq(1, 7))
	odd := NewStage("odd", Sync(oddPlusOne), PushErrorsForward())
	chunk := Chunk[int]("chunk", 3, 0)
	flat := Flatten[int]("flatten")
	if err := Connect(ConnectOptions{}, src, odd, chunk, flat); err != nil {
		t.Fatal(err)
	}

	items, err := CollectItems(context.Background(), flat)
	if err != nil {
		t.Fatal(err)
	}
	values, records := Partition(items)
	if !sliceEqual(values, []int{2, 4, 6, 8}) {
		t.Errorf("values = %v", values)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
}
