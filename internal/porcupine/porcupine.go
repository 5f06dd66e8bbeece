package porcupine

import "time"

// CheckOperations reports whether history is linearizable against model,
// with no timeout — a slow history simply runs to completion.
func CheckOperations(model Model, history []Operation) bool {
	result, _ := CheckOperationsTimeout(model, history, 0)
	return result == Ok
}

// CheckOperationsTimeout is CheckOperations with a wall-clock budget.
// timeoutSeconds <= 0 means no timeout (the source's ambiguous
// unset-variable case is made explicit here).
func CheckOperationsTimeout(model Model, history []Operation, timeoutSeconds float64) Result {
	result, _ := checkOperations(model, history, false, timeoutSeconds)
	return result
}

// CheckOperationsVerbose additionally returns partial-linearization
// witnesses for every operation, at the cost of running every partition
// to completion even after one is known to be illegal.
func CheckOperationsVerbose(model Model, history []Operation, timeoutSeconds float64) (Result, *LinearizationInfo) {
	return checkOperations(model, history, true, timeoutSeconds)
}

func checkOperations(model Model, history []Operation, verbose bool, timeoutSeconds float64) (Result, *LinearizationInfo) {
	model = fillDefaults(model)
	partitions := model.Partition(history)
	converted := make([][]*entry, len(partitions))
	for i, p := range partitions {
		converted[i] = makeEntries(p)
	}
	return checkParallel(model, converted, verbose, durationFromSeconds(timeoutSeconds))
}

// CheckEvents is CheckOperations's Event-based counterpart: useful when
// a recorded log already carries paired call/return markers instead of
// wall-clock timestamps.
func CheckEvents(model Model, history []Event) bool {
	result, _ := CheckEventsTimeout(model, history, 0)
	return result == Ok
}

func CheckEventsTimeout(model Model, history []Event, timeoutSeconds float64) Result {
	result, _ := checkEvents(model, history, false, timeoutSeconds)
	return result
}

func CheckEventsVerbose(model Model, history []Event, timeoutSeconds float64) (Result, *LinearizationInfo) {
	return checkEvents(model, history, true, timeoutSeconds)
}

func checkEvents(model Model, history []Event, verbose bool, timeoutSeconds float64) (Result, *LinearizationInfo) {
	model = fillDefaults(model)
	partitions := model.PartitionEvent(history)
	converted := make([][]*entry, len(partitions))
	for i, p := range partitions {
		converted[i] = convertEntries(renumber(p))
	}
	return checkParallel(model, converted, verbose, durationFromSeconds(timeoutSeconds))
}

func durationFromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
