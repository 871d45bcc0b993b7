package pipeline

import (
	"fmt"
	"reflect"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
)

// ConnectOptions configures how edges are wired.
type ConnectOptions struct {
	// ErrorChannel, when set, receives every producer's records; consumers
	// then receive values only.
	ErrorChannel *ErrorChannel
}

// ConnectOption configures a single connect call.
type ConnectOption func(*ConnectOptions)

// WithErrorChannel routes producer records into ch.
func WithErrorChannel(ch *ErrorChannel) ConnectOption {
	return func(o *ConnectOptions) { o.ErrorChannel = ch }
}

func connectOptions(opts []ConnectOption) ConnectOptions {
	var o ConnectOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ConnectOneToOne feeds src into dst.
func ConnectOneToOne[T any](src Producer[T], dst Consumer[T], opts ...ConnectOption) error {
	o := connectOptions(opts)
	if err := checkEdge(src, dst, o); err != nil {
		return err
	}
	return link(src, dst, o.ErrorChannel)
}

// ConnectOneToMany delivers every value of src to each of dsts.
func ConnectOneToMany[T any](src Producer[T], dsts []Consumer[T], opts ...ConnectOption) error {
	o := connectOptions(opts)
	if len(dsts) == 0 {
		return errors.InvalidTopology("one-to-many needs at least one consumer")
	}
	for _, dst := range dsts {
		if err := checkEdge(src, dst, o); err != nil {
			return err
		}
	}
	for _, dst := range dsts {
		if err := link(src, dst, o.ErrorChannel); err != nil {
			return err
		}
	}
	return nil
}

// ConnectManyToOne merges srcs into dst. dst completes only after every
// producer completed; a producer failing aborts its siblings.
func ConnectManyToOne[T any](srcs []Producer[T], dst Consumer[T], opts ...ConnectOption) error {
	o := connectOptions(opts)
	if len(srcs) == 0 {
		return errors.InvalidTopology("many-to-one needs at least one producer")
	}
	for _, src := range srcs {
		if err := checkEdge(src, dst, o); err != nil {
			return err
		}
	}
	group := make([]Node, 0, len(srcs))
	for _, src := range srcs {
		if err := link(src, dst, o.ErrorChannel); err != nil {
			return err
		}
		group = append(group, src)
	}
	abortSiblings(group)
	return nil
}

// ConnectManyToMany connects srcs[i] into dsts[i]. Both lists must have the
// same length; a producer failing aborts the others.
func ConnectManyToMany[T any](srcs []Producer[T], dsts []Consumer[T], opts ...ConnectOption) error {
	o := connectOptions(opts)
	if len(srcs) == 0 || len(dsts) == 0 {
		return errors.InvalidTopology("many-to-many needs at least one producer and one consumer")
	}
	if len(srcs) != len(dsts) {
		return errors.InvalidTopology(fmt.Sprintf("many-to-many arity mismatch: %d producers, %d consumers", len(srcs), len(dsts)))
	}
	for i := range srcs {
		if err := checkEdge(srcs[i], dsts[i], o); err != nil {
			return err
		}
	}
	group := make([]Node, 0, len(srcs))
	for i := range srcs {
		if err := link(srcs[i], dsts[i], o.ErrorChannel); err != nil {
			return err
		}
		group = append(group, srcs[i])
	}
	abortSiblings(group)
	return nil
}

// Connect wires a chain of stage groups. Each group is a single Node or a
// slice of nodes forming a fan level; a slice is plural even with one
// element. Consecutive groups are joined one-to-one, one-to-many,
// many-to-one or many-to-many according to their arities. Element types
// are checked before anything is wired.
func Connect(opts ConnectOptions, groups ...any) error {
	if len(groups) < 2 {
		return errors.InvalidTopology("connect needs at least two stage groups")
	}

	levels := make([][]Node, len(groups))
	plural := make([]bool, len(groups))
	for i, g := range groups {
		nodes, many, err := groupNodes(i, g)
		if err != nil {
			return err
		}
		levels[i], plural[i] = nodes, many
	}

	// Validate every edge before wiring any of them.
	for i := 1; i < len(levels); i++ {
		if err := checkLevel(levels[i-1], levels[i], plural[i-1], plural[i], opts); err != nil {
			return fmt.Errorf("group %d -> %d: %w", i-1, i, err)
		}
	}

	for i := 1; i < len(levels); i++ {
		srcs, dsts := levels[i-1], levels[i]
		switch {
		case plural[i-1] && plural[i]:
			for j := range srcs {
				if err := dsts[j].(inputPort).linkFrom(srcs[j], opts.ErrorChannel); err != nil {
					return err
				}
			}
			abortSiblings(srcs)
		case plural[i-1]:
			for _, src := range srcs {
				if err := dsts[0].(inputPort).linkFrom(src, opts.ErrorChannel); err != nil {
					return err
				}
			}
			abortSiblings(srcs)
		default:
			for _, dst := range dsts {
				if err := dst.(inputPort).linkFrom(srcs[0], opts.ErrorChannel); err != nil {
					return err
				}
			}
		}
	}

	logger.Get("pipeline").Debug("topology connected", logger.Fields(
		logger.FieldTopology, describe(levels),
	))
	return nil
}

// groupNodes normalizes one Connect argument.
func groupNodes(i int, g any) ([]Node, bool, error) {
	if n, ok := g.(Node); ok {
		if isNilNode(n) {
			return nil, false, errors.InvalidTopology(fmt.Sprintf("group %d is nil", i))
		}
		return []Node{n}, false, nil
	}

	v := reflect.ValueOf(g)
	if !v.IsValid() {
		return nil, false, errors.InvalidTopology(fmt.Sprintf("group %d is nil", i))
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false, errors.InvalidTopology(fmt.Sprintf("group %d: %T is not a stage or stage list", i, g))
	}
	if v.Len() == 0 {
		return nil, false, errors.InvalidTopology(fmt.Sprintf("group %d is empty", i))
	}
	nodes := make([]Node, v.Len())
	for j := range nodes {
		elem := v.Index(j).Interface()
		n, ok := elem.(Node)
		if !ok || isNilNode(n) {
			return nil, false, errors.InvalidTopology(fmt.Sprintf("group %d element %d is not a stage", i, j))
		}
		nodes[j] = n
	}
	return nodes, true, nil
}

func checkLevel(srcs, dsts []Node, manySrc, manyDst bool, opts ConnectOptions) error {
	if manySrc && manyDst && len(srcs) != len(dsts) {
		return errors.InvalidTopology(fmt.Sprintf("many-to-many arity mismatch: %d producers, %d consumers", len(srcs), len(dsts)))
	}
	pairs := func(fn func(src, dst Node) error) error {
		switch {
		case manySrc && manyDst:
			for j := range srcs {
				if err := fn(srcs[j], dsts[j]); err != nil {
					return err
				}
			}
		default:
			for _, src := range srcs {
				for _, dst := range dsts {
					if err := fn(src, dst); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	return pairs(func(src, dst Node) error {
		port, ok := dst.(inputPort)
		if !ok {
			return errors.InvalidTopology(fmt.Sprintf("%s %s cannot consume items", dst.Kind(), dst.Name()))
		}
		if !port.accepts(src) {
			return typeMismatch(src, dst)
		}
		return checkEdge(src, dst, opts)
	})
}

// checkEdge reports the usage errors of connecting src into dst.
func checkEdge(src, dst Node, o ConnectOptions) error {
	switch {
	case isNilNode(src):
		return errors.InvalidTopology("producer is nil")
	case isNilNode(dst):
		return errors.InvalidTopology("consumer is nil")
	case src.core() == dst.core():
		return errors.InvalidTopology(fmt.Sprintf("stage %s cannot feed itself", src.Name()))
	case src.core().started():
		return errors.InvalidTopology(fmt.Sprintf("stage %s already started", src.Name()))
	case dst.core().started():
		return errors.InvalidTopology(fmt.Sprintf("stage %s already started", dst.Name()))
	}
	if ch := o.ErrorChannel; ch != nil {
		if ch.Stage == nil {
			return errors.InvalidTopology("error channel is nil")
		}
		if ch.started() {
			return errors.InvalidTopology(fmt.Sprintf("error channel %s already started", ch.Name()))
		}
		if src.core() == ch.core() {
			return errors.InvalidTopology("error channel cannot route into itself")
		}
	}
	return nil
}

// link adds the data edge src -> dst, and src's error route when an error
// channel is given. Callers validate with checkEdge first.
func link[T any](src Producer[T], dst Consumer[T], errCh *ErrorChannel) error {
	r := routeAll
	if errCh != nil {
		if err := errCh.RegisterProducers(src); err != nil {
			return err
		}
		r = routeValues
	}

	producer, consumer := src.core(), dst.core()
	in := dst.input()
	in.join.Register(1)
	src.output().add(&outlet[T]{
		name:   consumer.name,
		route:  r,
		data:   true,
		target: consumer,
		send:   sendTo(in, consumer.done),
		close: func(err error) {
			if err != nil {
				consumer.Abort(errors.UpstreamFailed(consumer.name, producer.name, err))
			}
			in.join.Signal()
		},
	})
	consumer.addUpstream(producer)
	return nil
}

// abortSiblings makes a fatal failure of any node in group abort the rest.
func abortSiblings(group []Node) {
	if len(group) < 2 {
		return
	}
	nodes := make([]*node, len(group))
	for i, n := range group {
		nodes[i] = n.core()
	}
	for _, n := range nodes {
		self := n
		self.addOnFail(func(cause error) {
			for _, sib := range nodes {
				if sib != self {
					sib.Abort(errors.Aborted(sib.name, cause))
				}
			}
		})
	}
}

func typeMismatch(src, dst Node) error {
	return errors.InvalidTopology(fmt.Sprintf("type mismatch: %s does not produce what %s consumes", src.Name(), dst.Name()))
}

func isNilNode(n Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func describe(levels [][]Node) []string {
	out := make([]string, len(levels))
	for i, level := range levels {
		names := make([]string, len(level))
		for j, n := range level {
			names[j] = n.Name()
		}
		out[i] = fmt.Sprint(names)
	}
	return out
}
