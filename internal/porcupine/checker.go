package porcupine

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamu-distsys-cloud/kvstore/internal/bitset"
)

// Result is the checker's verdict for a history.
type Result string

const (
	Ok      Result = "Ok"
	Illegal Result = "Illegal"
	Unknown Result = "Unknown"
)

// entry is one call or return event, after sorting and before being
// spliced into the doubly linked search list.
type entry struct {
	isReturn bool
	value    interface{}
	id       int
	time     int64
	clientID int
}

func secondaryKey(e *entry) int {
	// calls (isReturn=false) sort before returns at the same timestamp:
	// a call that returns at the same timestamp another call starts is
	// never treated as happening-before it.
	if e.isReturn {
		return 1
	}
	return 0
}

func makeEntries(history []Operation) []*entry {
	entries := make([]*entry, 0, len(history)*2)
	id := 0
	for _, op := range history {
		entries = append(entries, &entry{isReturn: false, value: op.Input, id: id, time: op.CallTime, clientID: op.ClientID})
		entries = append(entries, &entry{isReturn: true, value: op.Output, id: id, time: op.ResponseTime, clientID: op.ClientID})
		id++
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].time != entries[j].time {
			return entries[i].time < entries[j].time
		}
		return secondaryKey(entries[i]) < secondaryKey(entries[j])
	})
	return entries
}

// renumber gives every distinct event id in events a fresh, densely packed
// id starting at zero, preserving order. Needed before convertEntries
// since Event-based histories may arrive with sparse or non-sequential ids.
func renumber(events []Event) []Event {
	out := make([]Event, 0, len(events))
	seen := map[int]int{}
	next := 0
	for _, v := range events {
		if id, ok := seen[v.ID]; ok {
			out = append(out, Event{ClientID: v.ClientID, IsReturn: v.IsReturn, Value: v.Value, ID: id})
		} else {
			seen[v.ID] = next
			out = append(out, Event{ClientID: v.ClientID, IsReturn: v.IsReturn, Value: v.Value, ID: next})
			next++
		}
	}
	return out
}

// convertEntries turns a renumbered Event slice into entries, using the
// slice index itself as the ordering key ("time").
func convertEntries(events []Event) []*entry {
	entries := make([]*entry, len(events))
	for i, e := range events {
		entries[i] = &entry{isReturn: e.IsReturn, value: e.Value, id: e.ID, time: int64(i), clientID: e.ClientID}
	}
	return entries
}

// node is one element of the search's doubly linked entry list. match is
// nil for a return node; for a call node it points at its matching return.
type node struct {
	value interface{}
	match *node
	id    int
	next  *node
	prev  *node
}

func insertBefore(n, mark *node) *node {
	if mark != nil {
		beforeMark := mark.prev
		mark.prev = n
		n.next = mark
		if beforeMark != nil {
			n.prev = beforeMark
			beforeMark.next = n
		}
	}
	return n
}

func length(n *node) int {
	l := 0
	for n != nil {
		n = n.next
		l++
	}
	return l
}

func makeLinkedEntries(entries []*entry) *node {
	var root *node
	match := map[int]*node{}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.isReturn {
			n := &node{value: e.value, id: e.id}
			match[e.id] = n
			root = insertBefore(n, root)
		} else {
			n := &node{value: e.value, id: e.id, match: match[e.id]}
			root = insertBefore(n, root)
		}
	}
	return root
}

func lift(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	match := n.match
	match.prev.next = match.next
	if match.next != nil {
		match.next.prev = match.prev
	}
}

func unlift(n *node) {
	match := n.match
	match.prev.next = match
	if match.next != nil {
		match.next.prev = match
	}
	n.prev.next = n
	n.next.prev = n
}

type cacheEntry struct {
	linearized *bitset.BitSet
	state      interface{}
}

type callsEntry struct {
	entry *node
	state interface{}
}

func cacheContains(model Model, cache map[uint64][]cacheEntry, lin *bitset.BitSet, state interface{}) bool {
	for _, ce := range cache[lin.Hash()] {
		if lin.Equals(ce.linearized) && model.Equal(state, ce.state) {
			return true
		}
	}
	return false
}

// checkSingle runs the Wing & Gong search over one partition's entry
// list. killed is polled once per loop iteration so a timeout or a
// sibling partition's failure (non-verbose mode only) can cut it short.
func checkSingle(model Model, history []*entry, computePartial bool, killed *int32) (bool, [][]int) {
	root := makeLinkedEntries(history)
	n := length(root) / 2
	linearized := bitset.New(n)
	cache := map[uint64][]cacheEntry{}
	var calls []callsEntry
	longest := make([][]int, n)

	state := model.Init()
	head := &node{id: -1}
	insertBefore(head, root)
	cur := root

	for head.next != nil {
		if atomic.LoadInt32(killed) != 0 {
			return false, longest
		}

		if cur.match != nil {
			matching := cur.match
			ok, newState := model.Step(state, cur.value, matching.value)
			if ok {
				newLinearized := linearized.Clone().Set(cur.id)
				if !cacheContains(model, cache, newLinearized, newState) {
					h := newLinearized.Hash()
					cache[h] = append(cache[h], cacheEntry{linearized: newLinearized, state: newState})
					calls = append(calls, callsEntry{entry: cur, state: state})
					state = newState
					linearized.Set(cur.id)
					lift(cur)
					cur = head.next
					continue
				}
			}
			cur = cur.next
		} else {
			if len(calls) == 0 {
				return false, longest
			}
			if computePartial {
				callsLen := len(calls)
				var seq []int
				for _, v := range calls {
					if longest[v.entry.id] == nil || callsLen > len(longest[v.entry.id]) {
						if seq == nil {
							seq = make([]int, len(calls))
							for i, c := range calls {
								seq[i] = c.entry.id
							}
						}
						longest[v.entry.id] = seq
					}
				}
			}
			top := calls[len(calls)-1]
			calls = calls[:len(calls)-1]
			cur = top.entry
			state = top.state
			linearized.Clear(cur.id)
			unlift(cur)
			cur = cur.next
		}
	}

	seq := make([]int, len(calls))
	for i, c := range calls {
		seq[i] = c.entry.id
	}
	for i := range longest {
		longest[i] = seq
	}
	return true, longest
}

// LinearizationInfo carries, per partition, the distinct longest partial
// linearizations discovered for every operation id — populated only when
// verbose checking is requested.
type LinearizationInfo struct {
	Partitions            [][]*entry
	PartialLinearizations [][][]int
}

func checkParallel(model Model, history [][]*entry, computeInfo bool, timeout time.Duration) (Result, *LinearizationInfo) {
	n := len(history)
	results := make([]bool, n)
	aborted := make([]bool, n)
	longestAll := make([][][]int, n)
	var killed int32

	g := new(errgroup.Group)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			ok, longest := checkSingle(model, history[i], computeInfo, &killed)
			results[i] = ok
			// A partition stopped by the kill flag has not shown anything
			// illegal, so its false result does not count against the history.
			aborted[i] = !ok && atomic.LoadInt32(&killed) != 0
			longestAll[i] = longest
			if !ok && !computeInfo {
				atomic.StoreInt32(&killed, 1)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timedOut := false
	if timeout > 0 {
		select {
		case <-done:
		case <-time.After(timeout):
			timedOut = true
			atomic.StoreInt32(&killed, 1)
			<-done
		}
	} else {
		<-done
	}

	ok := true
	for i, r := range results {
		if !r && !aborted[i] {
			ok = false
		}
	}

	var info *LinearizationInfo
	if computeInfo {
		info = &LinearizationInfo{Partitions: history, PartialLinearizations: make([][][]int, n)}
		for i, longest := range longestAll {
			seen := map[string]bool{}
			var partials [][]int
			for _, seq := range longest {
				if seq == nil {
					continue
				}
				key := fmt.Sprint(seq)
				if !seen[key] {
					seen[key] = true
					partials = append(partials, seq)
				}
			}
			info.PartialLinearizations[i] = partials
		}
	}

	var result Result
	switch {
	case !ok:
		result = Illegal
	case timedOut:
		result = Unknown
	default:
		result = Ok
	}
	return result, info
}
