// Package kvmodel is the reference state machine a kvsrv history is checked
// against: a single string register per key, read with Get, overwritten with
// Put, and extended with Append. It is grounded on
// original_source/models/kv.py and plugs into internal/porcupine.Model.
package kvmodel

import (
	"fmt"
	"sort"

	"github.com/tamu-distsys-cloud/kvstore/internal/porcupine"
)

// Op identifies which of the four state transitions an Input performs.
type Op int

const (
	OpGet Op = iota
	OpPut
	OpAppend
	OpAppendReturn // append that also reports the pre-append value
)

// Input is one client call against the modeled key's register.
type Input struct {
	Op    Op
	Key   string
	Value string
}

// Output is the call's recorded return value.
type Output struct {
	Value string
}

// Model returns a porcupine.Model checking a single kvsrv key's register,
// partitioned by key so that every partition's search runs independently.
func Model() porcupine.Model {
	return porcupine.Model{
		Partition: partition,
		Init:      func() interface{} { return "" },
		Step:      step,
		DescribeOperation: func(input, output interface{}) string {
			return describeOperation(input.(Input), output.(Output))
		},
	}
}

func partition(history []porcupine.Operation) [][]porcupine.Operation {
	byKey := map[string][]porcupine.Operation{}
	for _, op := range history {
		key := op.Input.(Input).Key
		byKey[key] = append(byKey[key], op)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]porcupine.Operation, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out
}

func step(state, input, output interface{}) (bool, interface{}) {
	st := state.(string)
	in := input.(Input)
	out := output.(Output)
	switch in.Op {
	case OpGet:
		return out.Value == st, st
	case OpPut:
		return true, in.Value
	case OpAppend:
		return true, st + in.Value
	case OpAppendReturn:
		return out.Value == st, st + in.Value
	default:
		return false, st
	}
}

func describeOperation(input Input, output Output) string {
	switch input.Op {
	case OpGet:
		return fmt.Sprintf("get(%q) -> %q", input.Key, output.Value)
	case OpPut:
		return fmt.Sprintf("put(%q, %q)", input.Key, input.Value)
	case OpAppend, OpAppendReturn:
		return fmt.Sprintf("append(%q, %q)", input.Key, input.Value)
	default:
		return "<invalid>"
	}
}
