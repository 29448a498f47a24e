// Package ledger tracks cumulative token usage per model and converts it
// to dollar cost. The ledger is process-wide mutable state: every
// successful generation adds to it, and cost reports read it at any time
// without blocking writers.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelUsage is the running token count for one model. Values only
// increase for the process lifetime, except at an explicit Reset.
type ModelUsage struct {
	TokensIn  int64
	TokensOut int64
}

type Ledger struct {
	mu    sync.RWMutex
	usage map[string]ModelUsage
}

func New() *Ledger {
	return &Ledger{
		usage: make(map[string]ModelUsage),
	}
}

func (l *Ledger) Add(model string, tokensIn, tokensOut int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.usage[model]
	u.TokensIn += int64(tokensIn)
	u.TokensOut += int64(tokensOut)
	l.usage[model] = u
}

func (l *Ledger) Usage(model string) ModelUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.usage[model]
}

// Snapshot returns a copy of the per-model totals.
func (l *Ledger) Snapshot() map[string]ModelUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]ModelUsage, len(l.usage))
	for model, u := range l.usage {
		out[model] = u
	}
	return out
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage = make(map[string]ModelUsage)
}

// TotalCost prices the current totals with calc.
func (l *Ledger) TotalCost(calc *Calculator) float64 {
	var total float64
	for model, u := range l.Snapshot() {
		total += calc.Cost(model, u)
	}
	return total
}

// Report renders a human-readable cumulative spend summary, one line per
// model in stable order.
func (l *Ledger) Report(calc *Calculator) string {
	snapshot := l.Snapshot()

	models := make([]string, 0, len(snapshot))
	for model := range snapshot {
		models = append(models, model)
	}
	sort.Strings(models)

	var b strings.Builder
	b.WriteString("cumulative inference spend:\n")

	var total float64
	for _, model := range models {
		u := snapshot[model]
		cost := calc.Cost(model, u)
		total += cost
		fmt.Fprintf(&b, "  %-28s tokens_in=%-10d tokens_out=%-10d $%.4f\n",
			model, u.TokensIn, u.TokensOut, cost)
	}
	fmt.Fprintf(&b, "total: $%.4f", total)

	return b.String()
}
