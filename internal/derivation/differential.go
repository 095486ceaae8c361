package derivation

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"bayzzer/internal/facts"
)

// crossCheckProgram is the fixed rule set expressed as a Mangle program. The
// predicates mirror the Fact constructors one to one.
const crossCheckProgram = `
Decl input(X).
Decl flow(X, Y).
Decl mem(X, L).
Decl taint(X).
Decl alarm(L).

taint(X) :- input(X).
taint(Y) :- taint(X), flow(X, Y).
alarm(L) :- taint(X), mem(X, L).
`

// CrossCheck re-derives the fixpoint of the graph's base facts through the
// Mangle engine and verifies both engines agree on the derived Taint and
// Alarm sets. The in-house solver exists because the probabilistic model
// needs per-instance premise edges, which Mangle evaluation does not expose;
// this check keeps the two semantics from drifting.
func CrossCheck(g *Graph) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(crossCheckProgram)))
	if err != nil {
		return fmt.Errorf("derivation: parse cross-check program: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return fmt.Errorf("derivation: analyze cross-check program: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	base := map[facts.Predicate]ast.PredicateSym{
		facts.PredInput:  {Symbol: "input", Arity: 1},
		facts.PredFlow:   {Symbol: "flow", Arity: 2},
		facts.PredMemory: {Symbol: "mem", Arity: 2},
	}
	for pred, sym := range base {
		for _, f := range g.Store().ByPredicate(pred) {
			args := make([]ast.BaseTerm, len(f.Args))
			for i, a := range f.Args {
				args[i] = ast.String(a)
			}
			store.Add(ast.Atom{Predicate: sym, Args: args})
		}
	}

	if err := mengine.EvalProgram(info, store); err != nil {
		return fmt.Errorf("derivation: mangle evaluation: %w", err)
	}

	checks := []struct {
		sym  ast.PredicateSym
		pred facts.Predicate
	}{
		{ast.PredicateSym{Symbol: "taint", Arity: 1}, facts.PredTaint},
		{ast.PredicateSym{Symbol: "alarm", Arity: 1}, facts.PredAlarm},
	}
	for _, c := range checks {
		theirs, err := collectUnary(store, c.sym)
		if err != nil {
			return err
		}
		ours := make([]string, 0)
		for _, f := range g.Store().ByPredicate(c.pred) {
			ours = append(ours, f.Args[0])
		}
		sort.Strings(ours)
		if !equalStrings(ours, theirs) {
			return fmt.Errorf("derivation: cross-check divergence on %s: fixpoint %v vs mangle %v",
				c.pred, ours, theirs)
		}
	}
	return nil
}

func collectUnary(store factstore.FactStore, sym ast.PredicateSym) ([]string, error) {
	var out []string
	err := store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		if len(atom.Args) != 1 {
			return fmt.Errorf("derivation: unexpected arity for %s", sym.Symbol)
		}
		c, ok := atom.Args[0].(ast.Constant)
		if !ok {
			return fmt.Errorf("derivation: non-constant arg for %s", sym.Symbol)
		}
		out = append(out, c.Symbol)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
