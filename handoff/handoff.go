// Package handoff computes the history a target agent receives when control
// is transferred to it, and provides the common history filters.
package handoff

import (
	"github.com/hupe1980/agentrelay/core"
)

// InputData is the history available at the moment of a handoff, split by
// provenance.
type InputData struct {
	// InputHistory holds the items that predate this run.
	InputHistory []core.Item
	// PreHandoffItems holds the items produced earlier in this run.
	PreHandoffItems []core.Item
	// NewItems holds the items produced by the turn that triggered the handoff.
	NewItems []core.Item
}

// All returns the three slices concatenated in order.
func (d InputData) All() []core.Item {
	out := make([]core.Item, 0, len(d.InputHistory)+len(d.PreHandoffItems)+len(d.NewItems))
	out = append(out, d.InputHistory...)
	out = append(out, d.PreHandoffItems...)
	return append(out, d.NewItems...)
}

// Filter edits the history handed to the target agent. Its output is used as
// is; a filter that removes needed context is a caller error.
type Filter func(data InputData) InputData

// Apply runs filter over data, keeping the three way split. A nil filter
// returns data unchanged.
func Apply(filter Filter, data InputData) InputData {
	if filter == nil {
		return data
	}
	return filter(data)
}

// Resolve computes the target agent's history. A nil filter passes the full
// history unchanged.
func Resolve(filter Filter, data InputData) []core.Item {
	return Apply(filter, data).All()
}

// RemoveAllTools drops tool and handoff call/result items from every slice.
func RemoveAllTools(data InputData) InputData {
	return InputData{
		InputHistory:    removeToolItems(data.InputHistory),
		PreHandoffItems: removeToolItems(data.PreHandoffItems),
		NewItems:        removeToolItems(data.NewItems),
	}
}

func removeToolItems(items []core.Item) []core.Item {
	out := make([]core.Item, 0, len(items))
	for _, it := range items {
		if it.IsToolRelated() {
			continue
		}
		out = append(out, it)
	}
	return out
}

// DropOldest removes the n oldest items of InputHistory.
func DropOldest(n int) Filter {
	return func(data InputData) InputData {
		if n <= 0 {
			return data
		}
		if n >= len(data.InputHistory) {
			data.InputHistory = []core.Item{}
			return data
		}
		data.InputHistory = append([]core.Item(nil), data.InputHistory[n:]...)
		return data
	}
}

// KeepLast retains only the last n items across the whole history, trimming
// InputHistory first, then PreHandoffItems, then NewItems.
func KeepLast(n int) Filter {
	return func(data InputData) InputData {
		if n < 0 {
			n = 0
		}
		excess := len(data.InputHistory) + len(data.PreHandoffItems) + len(data.NewItems) - n
		if excess <= 0 {
			return data
		}
		data.InputHistory, excess = trimFront(data.InputHistory, excess)
		data.PreHandoffItems, excess = trimFront(data.PreHandoffItems, excess)
		data.NewItems, _ = trimFront(data.NewItems, excess)
		return data
	}
}

func trimFront(items []core.Item, n int) ([]core.Item, int) {
	if n <= 0 {
		return items, 0
	}
	if n >= len(items) {
		return []core.Item{}, n - len(items)
	}
	return append([]core.Item(nil), items[n:]...), 0
}

// Chain applies filters left to right.
func Chain(filters ...Filter) Filter {
	return func(data InputData) InputData {
		for _, f := range filters {
			if f != nil {
				data = f(data)
			}
		}
		return data
	}
}
