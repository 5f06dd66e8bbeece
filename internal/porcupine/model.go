// Package porcupine implements a Wing & Gong linearizability checker:
// a partitioned depth-first search over call
// linearizations memoized on (linearized-prefix bitset, model state).
//
// It is a direct generalization of original_source/porcupine/*.py: the
// same Model/Operation/Event shapes, the same doubly linked entry list
// with lift/unlift splicing, the same cache keyed on BitSet.Hash with
// BitSet.Equals + Model.Equal collision resolution.
package porcupine

// Operation is one recorded client call/response pair.
type Operation struct {
	ClientID     int
	Input        interface{}
	CallTime     int64 // monotonic nanoseconds
	Output       interface{}
	ResponseTime int64
}

// Event is a pre-paired call/return record, used by the Event-based entry
// points (CheckEvents and friends) in place of wall-clock Operations.
type Event struct {
	ClientID int
	IsReturn bool
	Value    interface{}
	ID       int
}

// Model plugs a reference state machine into the checker.
type Model struct {
	// Partition splits a history into independent subhistories whose
	// linearizability can be checked separately. Defaults to a single
	// partition containing the whole history.
	Partition func(history []Operation) [][]Operation

	// PartitionEvent is Partition's Event-based counterpart.
	PartitionEvent func(history []Event) [][]Event

	// Init returns the state machine's initial state.
	Init func() interface{}

	// Step attempts to apply input/output against state, returning
	// whether the transition is legal and, if so, the resulting state.
	// Must not mutate state.
	Step func(state, input, output interface{}) (bool, interface{})

	// Equal compares two states for the purposes of cache-collision
	// resolution. Defaults to Go's shallow (==) comparison, which is
	// sufficient for the string states used by the KV model.
	Equal func(a, b interface{}) bool

	// DescribeOperation renders an operation for diagnostics.
	DescribeOperation func(input, output interface{}) string

	// DescribeState renders a state for diagnostics.
	DescribeState func(state interface{}) string
}

func noPartition(history []Operation) [][]Operation {
	return [][]Operation{history}
}

func noPartitionEvent(history []Event) [][]Event {
	return [][]Event{history}
}

func shallowEqual(a, b interface{}) bool {
	return a == b
}

func defaultDescribeOperation(input, output interface{}) string {
	return formatPair(input, output)
}

func defaultDescribeState(state interface{}) string {
	return formatValue(state)
}

func fillDefaults(m Model) Model {
	if m.Partition == nil {
		m.Partition = noPartition
	}
	if m.PartitionEvent == nil {
		m.PartitionEvent = noPartitionEvent
	}
	if m.Equal == nil {
		m.Equal = shallowEqual
	}
	if m.DescribeOperation == nil {
		m.DescribeOperation = defaultDescribeOperation
	}
	if m.DescribeState == nil {
		m.DescribeState = defaultDescribeState
	}
	return m
}
