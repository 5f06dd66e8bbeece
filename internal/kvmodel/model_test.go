package kvmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tamu-distsys-cloud/kvstore/internal/porcupine"
)

func TestLinearizablePutGetAppend(t *testing.T) {
	history := []porcupine.Operation{
		{ClientID: 0, Input: Input{Op: OpPut, Key: "k", Value: "a"}, Output: Output{}, CallTime: 0, ResponseTime: 10},
		{ClientID: 1, Input: Input{Op: OpGet, Key: "k"}, Output: Output{Value: "a"}, CallTime: 20, ResponseTime: 30},
		{ClientID: 1, Input: Input{Op: OpAppend, Key: "k", Value: "b"}, Output: Output{}, CallTime: 40, ResponseTime: 50},
		{ClientID: 0, Input: Input{Op: OpGet, Key: "k"}, Output: Output{Value: "ab"}, CallTime: 60, ResponseTime: 70},
	}
	assert.True(t, porcupine.CheckOperations(Model(), history))
}

func TestAppendReturnsPriorValue(t *testing.T) {
	history := []porcupine.Operation{
		{ClientID: 0, Input: Input{Op: OpPut, Key: "k", Value: "a"}, Output: Output{}, CallTime: 0, ResponseTime: 10},
		{ClientID: 0, Input: Input{Op: OpAppendReturn, Key: "k", Value: "b"}, Output: Output{Value: "a"}, CallTime: 20, ResponseTime: 30},
		{ClientID: 0, Input: Input{Op: OpGet, Key: "k"}, Output: Output{Value: "ab"}, CallTime: 40, ResponseTime: 50},
	}
	assert.True(t, porcupine.CheckOperations(Model(), history))
}

func TestGetOfUnwrittenKeyMustObserveEmptyString(t *testing.T) {
	history := []porcupine.Operation{
		{ClientID: 0, Input: Input{Op: OpGet, Key: "k"}, Output: Output{Value: "nope"}, CallTime: 0, ResponseTime: 10},
	}
	assert.Equal(t, porcupine.Illegal, porcupine.CheckOperationsTimeout(Model(), history, 5))
}

func TestDistinctKeysAreIndependentPartitions(t *testing.T) {
	// An illegal read on key "x" must not be masked by a legal history on
	// key "y" landing in a different partition.
	history := []porcupine.Operation{
		{ClientID: 0, Input: Input{Op: OpPut, Key: "y", Value: "a"}, Output: Output{}, CallTime: 0, ResponseTime: 10},
		{ClientID: 0, Input: Input{Op: OpGet, Key: "y"}, Output: Output{Value: "a"}, CallTime: 20, ResponseTime: 30},
		{ClientID: 1, Input: Input{Op: OpGet, Key: "x"}, Output: Output{Value: "bogus"}, CallTime: 0, ResponseTime: 10},
	}
	assert.Equal(t, porcupine.Illegal, porcupine.CheckOperationsTimeout(Model(), history, 5))
}

func TestConcurrentAppendsEitherOrderLinearizable(t *testing.T) {
	history := []porcupine.Operation{
		{ClientID: 0, Input: Input{Op: OpAppend, Key: "k", Value: "a"}, Output: Output{}, CallTime: 0, ResponseTime: 100},
		{ClientID: 1, Input: Input{Op: OpAppend, Key: "k", Value: "b"}, Output: Output{}, CallTime: 0, ResponseTime: 100},
		{ClientID: 2, Input: Input{Op: OpGet, Key: "k"}, Output: Output{Value: "ba"}, CallTime: 200, ResponseTime: 300},
	}
	assert.True(t, porcupine.CheckOperations(Model(), history))
}
