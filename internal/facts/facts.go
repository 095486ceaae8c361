// Package facts defines the typed atoms of the taint analysis and the
// deduplicating store they live in. A fact's identity is its predicate plus
// argument tuple; insertion order never matters.
package facts

import (
	"fmt"
	"sort"
	"strings"
)

// Predicate names the closed set of fact types the analysis works with.
type Predicate string

const (
	PredInput  Predicate = "Input"  // Input(v): v carries untrusted data
	PredFlow   Predicate = "Flow"   // Flow(src, dst): data dependency src -> dst
	PredMemory Predicate = "Memory" // Memory(v, loc): v used in a memory op at loc
	PredTaint  Predicate = "Taint"  // Taint(v): v is (transitively) tainted
	PredAlarm  Predicate = "Alarm"  // Alarm(loc): potential vulnerability at loc
)

// Fact is an atomic proposition about the analyzed program.
type Fact struct {
	Predicate Predicate
	Args      []string
}

// ID returns the canonical identity of the fact, e.g. "Flow(x, y)".
// Two facts with the same ID are the same fact.
func (f Fact) ID() string {
	return fmt.Sprintf("%s(%s)", f.Predicate, strings.Join(f.Args, ", "))
}

func (f Fact) String() string { return f.ID() }

// Input constructs an Input(v) fact.
func Input(v string) Fact { return Fact{Predicate: PredInput, Args: []string{v}} }

// Flow constructs a Flow(src, dst) fact.
func Flow(src, dst string) Fact { return Fact{Predicate: PredFlow, Args: []string{src, dst}} }

// Memory constructs a Memory(v, loc) fact.
func Memory(v, loc string) Fact { return Fact{Predicate: PredMemory, Args: []string{v, loc}} }

// Taint constructs a Taint(v) fact.
func Taint(v string) Fact { return Fact{Predicate: PredTaint, Args: []string{v}} }

// Alarm constructs an Alarm(loc) fact.
func Alarm(loc string) Fact { return Fact{Predicate: PredAlarm, Args: []string{loc}} }

// SourceLocation is reporting metadata attached to Memory/Alarm locations by
// the fact extractor. It plays no role in derivation or inference.
type SourceLocation struct {
	File string `yaml:"file" json:"file"`
	Line int    `yaml:"line" json:"line"`
}

func (l SourceLocation) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Extraction is the handoff from the out-of-scope fact extractor: the initial
// fact set plus source positions for the memory-operation locations.
type Extraction struct {
	Facts     []Fact
	Locations map[string]SourceLocation // location token -> source position
}

// Store is a deduplicated collection of facts keyed by identity.
type Store struct {
	byID   map[string]Fact
	byPred map[Predicate]map[string]struct{}
}

// NewStore returns an empty fact store.
func NewStore() *Store {
	return &Store{
		byID:   make(map[string]Fact),
		byPred: make(map[Predicate]map[string]struct{}),
	}
}

// Add inserts a fact and reports whether it was new.
func (s *Store) Add(f Fact) bool {
	id := f.ID()
	if _, ok := s.byID[id]; ok {
		return false
	}
	s.byID[id] = f
	ids, ok := s.byPred[f.Predicate]
	if !ok {
		ids = make(map[string]struct{})
		s.byPred[f.Predicate] = ids
	}
	ids[id] = struct{}{}
	return true
}

// Has reports whether a fact with the given identity is present.
func (s *Store) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Get returns the fact with the given identity.
func (s *Store) Get(id string) (Fact, bool) {
	f, ok := s.byID[id]
	return f, ok
}

// Len returns the number of distinct facts.
func (s *Store) Len() int { return len(s.byID) }

// IDs returns all fact identities in ascending order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByPredicate returns all facts with the given predicate, ordered by identity.
// The stable order is what makes forward chaining deterministic.
func (s *Store) ByPredicate(p Predicate) []Fact {
	idSet, ok := s.byPred[p]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Fact, len(ids))
	for i, id := range ids {
		out[i] = s.byID[id]
	}
	return out
}
