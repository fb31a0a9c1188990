package route

import "strings"

// Sentinel route names produced when no declared route applies.
const (
	// NoMatch is selected when every condition evaluates to false.
	NoMatch = "no_match"

	// Error is selected when condition evaluation itself fails.
	// Selection of the error route is a recoverable outcome; the
	// pipeline continues with a nil forwarded value.
	Error = "error"
)

// Route is a named branch guarded by a compiled condition.
type Route struct {
	// Name identifies the branch and becomes the output port that
	// fires when this route is selected.
	Name string

	// Condition guards the route.
	Condition *Predicate

	// OutputTemplate is bound into OutputValue on selection, with
	// "{{ output_text }}" replaced by the selection's output text.
	OutputTemplate string

	// Description is informational only.
	Description string

	// Forward is the value delivered on the route's output port when
	// selected.
	Forward any
}

// Selection is the outcome of evaluating a route list.
type Selection struct {
	// Route is the selected route name, or a sentinel.
	Route string

	// OutputText describes the selection (or the evaluation failure).
	OutputText string

	// OutputValue is the bound output template, empty for sentinels.
	OutputValue string

	// Forward is the selected route's forwarded value, nil for
	// sentinels.
	Forward any
}

// Matched reports whether a declared route (not a sentinel) was selected.
func (s Selection) Matched() bool {
	return s.Route != NoMatch && s.Route != Error
}

// Evaluate walks routes in declaration order and selects the first whose
// condition holds for ctx. Order is load-bearing: when several conditions
// are simultaneously true, the earliest declared route wins.
//
// No match yields the NoMatch sentinel. A condition evaluation failure
// yields the Error sentinel with the failure message as OutputText; the
// caller is expected to continue rather than abort.
func Evaluate(ctx map[string]any, routes []Route) Selection {
	for _, r := range routes {
		ok, err := r.Condition.Eval(ctx)
		if err != nil {
			return Selection{
				Route:      Error,
				OutputText: "Error evaluating conditions: " + err.Error(),
			}
		}
		if !ok {
			continue
		}
		text := "Matched route '" + r.Name + "' with condition: " + r.Condition.Source()
		return Selection{
			Route:       r.Name,
			OutputText:  text,
			OutputValue: bindTemplate(r.OutputTemplate, text),
			Forward:     r.Forward,
		}
	}
	return Selection{Route: NoMatch, OutputText: "No matching condition found."}
}

func bindTemplate(tmpl, outputText string) string {
	if tmpl == "" {
		return ""
	}
	return strings.ReplaceAll(tmpl, "{{ output_text }}", outputText)
}
