// Package matrix expands a declarative set of axes into concrete job
// combinations.
//
// Expansion is a pure function: identical input always yields the identical
// sequence of combinations, ordered lexicographically over the declared axis
// order with values in declared order. Reproducible ordering is load-bearing
// for CI logs, so tests assert it byte-for-byte.
package matrix

import (
	"fmt"
)

// Axis is one named dimension of the build matrix.
type Axis struct {
	Name   string
	Values []string
}

// Override adds environment entries and a placement hint to the combinations
// its Match selects. Match maps axis name to a required value; an override
// applies to a combination when every Match entry agrees with it.
type Override struct {
	Match  map[string]string
	Env    map[string]string
	RunsOn string
}

// Combination is one cell of the expanded matrix.
type Combination struct {
	// Axes maps axis name to the chosen value.
	Axes map[string]string
	// AxisOrder preserves declaration order for stable identity.
	AxisOrder []string
	// Env holds the merged override environment for this cell (overrides only;
	// the caller layers these over pipeline defaults).
	Env map[string]string
	// RunsOn is the placement hint from the last matching override, if any.
	RunsOn string
}

// InvalidAxisError reports a malformed matrix configuration. It is fatal
// before any job starts.
type InvalidAxisError struct {
	Axis   string
	Reason string
}

func (e *InvalidAxisError) Error() string {
	return fmt.Sprintf("invalid matrix axis %q: %s", e.Axis, e.Reason)
}

// Expand produces the full Cartesian product of the axes, applying matching
// overrides to each combination. It validates that every axis is non-empty,
// axis names are unique, and every override references only declared axes and
// declared values.
func Expand(axes []Axis, overrides []Override) ([]Combination, error) {
	if err := validate(axes, overrides); err != nil {
		return nil, err
	}

	order := make([]string, len(axes))
	for i, axis := range axes {
		order[i] = axis.Name
	}

	total := 1
	for _, axis := range axes {
		total *= len(axis.Values)
	}

	combos := make([]Combination, 0, total)
	indices := make([]int, len(axes))
	for {
		combo := Combination{
			Axes:      make(map[string]string, len(axes)),
			AxisOrder: order,
			Env:       map[string]string{},
		}
		for i, axis := range axes {
			combo.Axes[axis.Name] = axis.Values[indices[i]]
		}
		applyOverrides(&combo, overrides)
		combos = append(combos, combo)

		// Advance the odometer: last axis varies fastest, which yields
		// lexicographic order over the declared axis order.
		i := len(axes) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(axes[i].Values) {
				break
			}
			indices[i] = 0
		}
		if i < 0 {
			break
		}
	}

	return combos, nil
}

func applyOverrides(combo *Combination, overrides []Override) {
	for _, ov := range overrides {
		if !matches(combo.Axes, ov.Match) {
			continue
		}
		for k, v := range ov.Env {
			combo.Env[k] = v
		}
		if ov.RunsOn != "" {
			combo.RunsOn = ov.RunsOn
		}
	}
}

func matches(axes map[string]string, match map[string]string) bool {
	for name, want := range match {
		if axes[name] != want {
			return false
		}
	}
	return true
}

func validate(axes []Axis, overrides []Override) error {
	if len(axes) == 0 {
		return &InvalidAxisError{Reason: "matrix declares no axes"}
	}
	declared := make(map[string]map[string]bool, len(axes))
	for _, axis := range axes {
		if len(axis.Values) == 0 {
			return &InvalidAxisError{Axis: axis.Name, Reason: "axis has no values"}
		}
		if _, dup := declared[axis.Name]; dup {
			return &InvalidAxisError{Axis: axis.Name, Reason: "axis declared twice"}
		}
		values := make(map[string]bool, len(axis.Values))
		for _, v := range axis.Values {
			if values[v] {
				return &InvalidAxisError{Axis: axis.Name, Reason: fmt.Sprintf("value %q declared twice", v)}
			}
			values[v] = true
		}
		declared[axis.Name] = values
	}
	for _, ov := range overrides {
		for name, want := range ov.Match {
			values, ok := declared[name]
			if !ok {
				return &InvalidAxisError{Axis: name, Reason: "override references undeclared axis"}
			}
			if !values[want] {
				return &InvalidAxisError{Axis: name, Reason: fmt.Sprintf("override references undeclared value %q", want)}
			}
		}
	}
	return nil
}
