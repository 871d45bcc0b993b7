package pipeline

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/flowkit/errors"
)

// collectRecords collects ch in the background and returns the payloads.
func collectRecords(ch *ErrorChannel) <-chan []*StreamError {
	out := make(chan []*StreamError, 1)
	go func() {
		recs, _ := Collect(context.Background(), ch)
		out <- recs
	}()
	return out
}

func recordData(t *testing.T, recs <-chan []*StreamError) []int {
	t.Helper()
	select {
	case got := <-recs:
		var data []int
		for _, rec := range got {
			data = append(data, rec.Data.(int))
		}
		return sortedInts(data)
	case <-time.After(time.Second):
		t.Fatal("error channel did not complete")
		return nil
	}
}

func TestErrorChannel_ForwardingScenario(t *testing.T) {
	errs := NewErrorChannel()
	if errs.ID() == "" || errs.Kind() != KindErrorChannel {
		t.Fatalf("unexpected identity %q / %s", errs.ID(), errs.Kind())
	}

	src := FromSlice(seq(1, 8))
	stage := NewStage("odd", Sync(oddPlusOne), PushErrorsForward())
	sink := identity[int]("sink")
	if err := Connect(ConnectOptions{ErrorChannel: errs}, src, stage, sink); err != nil {
		t.Fatal(err)
	}

	recs := collectRecords(errs)
	items, err := CollectItems(context.Background(), sink)
	if err != nil {
		t.Fatal(err)
	}

	values, records := Partition(items)
	if len(records) != 0 {
		t.Errorf("records leaked onto the main path: %v", records)
	}
	if !sliceEqual(values, []int{2, 4, 6, 8}) {
		t.Errorf("main output = %v, want [2 4 6 8]", values)
	}
	if got := recordData(t, recs); !sliceEqual(got, []int{2, 4, 6, 8}) {
		t.Errorf("error payloads = %v, want [2 4 6 8]", got)
	}
}

func TestErrorChannel_MergesManyProducers(t *testing.T) {
	errs := NewErrorChannel()
	a := NewStage("a", Sync(oddPlusOne), PushErrorsForward())
	b := NewStage("b", Sync(oddPlusOne), PushErrorsForward())
	if err := ConnectOneToOne[int](FromSlice(seq(1, 4)), a); err != nil {
		t.Fatal(err)
	}
	if err := ConnectOneToOne[int](FromSlice(seq(5, 8)), b); err != nil {
		t.Fatal(err)
	}

	// Registrations accumulate across calls and ignore repeats.
	if err := errs.RegisterProducers(a); err != nil {
		t.Fatal(err)
	}
	if err := errs.RegisterProducers(b, a); err != nil {
		t.Fatal(err)
	}
	if reg, _ := errs.Input().Counts(); reg != 2 {
		t.Fatalf("expected 2 registered producers, got %d", reg)
	}

	recs := collectRecords(errs)

	// Finish a first: the channel must keep waiting for b.
	if _, err := Collect(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { _, sig := errs.Input().Counts(); return sig == 1 }, "a never signaled")
	select {
	case <-errs.Done():
		t.Fatal("channel completed before every producer did")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := Collect(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if got := recordData(t, recs); !sliceEqual(got, []int{2, 4, 6, 8}) {
		t.Errorf("payloads = %v, want [2 4 6 8]", got)
	}
}

func TestErrorChannel_ZeroProducersNeedsClose(t *testing.T) {
	errs := NewErrorChannel()
	recs := collectRecords(errs)

	select {
	case <-recs:
		t.Fatal("channel with no producers completed on its own")
	case <-time.After(20 * time.Millisecond):
	}

	errs.Close()
	if got := recordData(t, recs); len(got) != 0 {
		t.Errorf("expected no records, got %v", got)
	}
	if errs.Err() != nil {
		t.Errorf("closed channel should complete cleanly, got %v", errs.Err())
	}
}

func TestErrorChannel_FailedProducerCountsAsCompletion(t *testing.T) {
	errs := NewErrorChannel()
	stage := NewStage("fail-at-3", Sync(func(n int) (int, error) {
		if n == 3 {
			return 0, stderrors.New("fatal")
		}
		return n, nil
	}))
	forward := NewStage("forward", Sync(oddPlusOne), PushErrorsForward())
	if err := Connect(ConnectOptions{}, FromSlice(seq(1, 8)), forward); err != nil {
		t.Fatal(err)
	}
	if err := ConnectOneToOne[int](FromSlice(seq(1, 8)), stage); err != nil {
		t.Fatal(err)
	}
	if err := errs.RegisterProducers(stage, forward); err != nil {
		t.Fatal(err)
	}

	recs := collectRecords(errs)
	if err := Wait(context.Background(), forward); err != nil {
		t.Fatal(err)
	}
	if err := Wait(context.Background(), stage); !errors.HasCode(err, errors.ErrCodeStageFailed) {
		t.Fatalf("expected STAGE_FAILED, got %v", err)
	}

	if got := recordData(t, recs); !sliceEqual(got, []int{2, 4, 6, 8}) {
		t.Errorf("payloads = %v, want [2 4 6 8]", got)
	}
	if errs.Err() != nil {
		t.Errorf("channel should complete normally, got %v", errs.Err())
	}
}

func TestErrorChannel_RegisterErrors(t *testing.T) {
	errs := NewErrorChannel()
	tests := []struct {
		name  string
		nodes []Node
	}{
		{"nil producer", []Node{nil}},
		{"itself", []Node{errs}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := errs.RegisterProducers(tc.nodes...)
			if !errors.HasCode(err, errors.ErrCodeInvalidTopology) {
				t.Errorf("expected INVALID_TOPOLOGY, got %v", err)
			}
		})
	}

	t.Run("started channel", func(t *testing.T) {
		started := NewErrorChannel()
		started.Close()
		if err := Wait(context.Background(), started); err != nil {
			t.Fatal(err)
		}
		err := started.RegisterProducers(identity[int]("late"))
		if !errors.HasCode(err, errors.ErrCodeInvalidTopology) {
			t.Errorf("expected INVALID_TOPOLOGY, got %v", err)
		}
	})
}
