// Package pipeline wires item-at-a-time processing stages into graphs:
// linear chains, fan-out, fan-in and layered fan levels, with backpressure
// on every edge and per-item failures optionally carried as data.
//
// Graphs are lazy. Connecting stages only records edges; nothing runs until
// a terminal call (Iter, ForEach, Collect, CollectItems, Drain or Wait)
// starts a node and, recursively, every producer feeding it. Every branch
// of a fan-out must be consumed, otherwise the shared producer blocks once
// the unconsumed branch's buffer is full. A terminal call must be made
// before anything downstream of the same node starts it.
//
// # Stages
//
//   - NewStage: one item at a time, output in input order
//   - NewConcurrentStage: a bounded worker pool, output unordered
//   - Chunk, Flatten: slice grouping and ungrouping
//   - FromSlice, FromChannel, FromIterator, FromFunc: sources
//
// # Error policy
//
// When a stage function fails for an item the stage either drops the item
// (IgnoreErrors), emits a StreamError record in its place
// (PushErrorsForward), or fails. A failed stage aborts its consumers and
// any producer left without consumers stops with DownstreamClosed.
//
// # Error channels
//
// An ErrorChannel collects records from any number of producers and
// completes once all of them completed:
//
//	errs := pipeline.NewErrorChannel()
//	src := pipeline.FromSlice([]int{1, 2, 3, 4})
//	parse := pipeline.NewStage("parse", parseFn, pipeline.PushErrorsForward())
//	if err := pipeline.Connect(pipeline.ConnectOptions{ErrorChannel: errs}, src, parse); err != nil {
//	    return err
//	}
//	go func() { failures, _ = pipeline.Collect(ctx, errs) }()
//	values, err := pipeline.Collect(ctx, parse)
//
// # Topologies
//
// Connect takes a chain of groups, each a single stage or a slice of
// stages. A slice feeding a single stage is a fan-in whose consumer
// completes only after every producer did; a failing producer aborts its
// siblings.
//
//	pipeline.Connect(pipeline.ConnectOptions{}, src, []pipeline.Node{a, b}, merge)
package pipeline
