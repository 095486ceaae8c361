package bayes

import (
	"fmt"
	"sort"
)

// factor is a discrete potential over binary variables. Values are stored
// row-major with the last variable toggling fastest, matching the CPT column
// convention used by the model builder.
type factor struct {
	vars   []string
	values []float64
}

func newFactor(vars []string, values []float64) *factor {
	if len(values) != 1<<len(vars) {
		panic(fmt.Sprintf("bayes: factor over %d vars needs %d values, got %d",
			len(vars), 1<<len(vars), len(values)))
	}
	return &factor{vars: vars, values: values}
}

// scalarFactor is a variable-free potential, the result of summing a factor
// all the way out.
func scalarFactor(v float64) *factor {
	return &factor{values: []float64{v}}
}

func (f *factor) varIndex(name string) int {
	for i, v := range f.vars {
		if v == name {
			return i
		}
	}
	return -1
}

// multiply computes the pointwise product of two factors over the union of
// their variables. The union is kept sorted so repeated multiplication stays
// deterministic.
func multiply(a, b *factor) *factor {
	union := make([]string, 0, len(a.vars)+len(b.vars))
	seen := make(map[string]struct{}, len(a.vars)+len(b.vars))
	for _, v := range a.vars {
		seen[v] = struct{}{}
		union = append(union, v)
	}
	for _, v := range b.vars {
		if _, ok := seen[v]; !ok {
			union = append(union, v)
		}
	}
	sort.Strings(union)

	aPos := make([]int, len(union))
	bPos := make([]int, len(union))
	for i, v := range union {
		aPos[i] = a.varIndex(v)
		bPos[i] = b.varIndex(v)
	}

	out := make([]float64, 1<<len(union))
	assign := make([]int, len(union))
	for idx := range out {
		for i := range union {
			assign[i] = (idx >> (len(union) - 1 - i)) & 1
		}
		av := a.value(assign, aPos)
		bv := b.value(assign, bPos)
		out[idx] = av * bv
	}
	return &factor{vars: union, values: out}
}

// value evaluates the factor under a joint assignment expressed in another
// variable order; pos maps joint positions to this factor's positions.
func (f *factor) value(assign []int, pos []int) float64 {
	idx := 0
	for fi := range f.vars {
		// Find the joint position carrying this factor variable.
		for ji, p := range pos {
			if p == fi {
				idx = idx<<1 | assign[ji]
				break
			}
		}
	}
	return f.values[idx]
}

// sumOut marginalizes a variable away.
func (f *factor) sumOut(name string) *factor {
	vi := f.varIndex(name)
	if vi < 0 {
		return f
	}
	rest := make([]string, 0, len(f.vars)-1)
	for _, v := range f.vars {
		if v != name {
			rest = append(rest, v)
		}
	}
	out := make([]float64, 1<<len(rest))
	assign := make([]int, len(f.vars))
	for idx := range f.values {
		for i := range f.vars {
			assign[i] = (idx >> (len(f.vars) - 1 - i)) & 1
		}
		oidx := 0
		for i := range f.vars {
			if i == vi {
				continue
			}
			oidx = oidx<<1 | assign[i]
		}
		out[oidx] += f.values[idx]
	}
	return &factor{vars: rest, values: out}
}

// reduce clamps a variable to a fixed value, dropping it from the scope.
func (f *factor) reduce(name string, val int) *factor {
	vi := f.varIndex(name)
	if vi < 0 {
		return f
	}
	rest := make([]string, 0, len(f.vars)-1)
	for _, v := range f.vars {
		if v != name {
			rest = append(rest, v)
		}
	}
	out := make([]float64, 1<<len(rest))
	assign := make([]int, len(f.vars))
	for idx := range f.values {
		for i := range f.vars {
			assign[i] = (idx >> (len(f.vars) - 1 - i)) & 1
		}
		if assign[vi] != val {
			continue
		}
		oidx := 0
		for i := range f.vars {
			if i == vi {
				continue
			}
			oidx = oidx<<1 | assign[i]
		}
		out[oidx] = f.values[idx]
	}
	return &factor{vars: rest, values: out}
}
