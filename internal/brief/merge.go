package brief

import "strings"

// Extracted carries the field values a single briefing turn produced.
// Every field maps to the candidate values the agent pulled from the
// user's message; single-valued fields with several candidates are
// ambiguous and trigger a disambiguating follow-up.
type Extracted struct {
	Fields map[Field][]string `json:"fields"`
	// HasCampaign is set when the turn established or ruled out a
	// conversion campaign; nil leaves the brief's flag untouched.
	HasCampaign *bool `json:"has_campaign,omitempty"`
}

// Ambiguity records a single-valued field for which the user supplied
// several candidates.
type Ambiguity struct {
	Field   Field    `json:"field"`
	Options []string `json:"options"`
}

// MergeResult summarizes a merge: completeness, what is still missing, and
// what needs disambiguation.
type MergeResult struct {
	Complete  bool        `json:"complete"`
	Missing   []Field     `json:"missing,omitempty"`
	Ambiguous []Ambiguity `json:"ambiguous,omitempty"`
}

// Merge folds one turn's extracted fields into an existing brief. Extracted
// values only ever add or overwrite: an empty extraction never clears a
// previously filled field. Ambiguous single-valued fields are reported
// instead of silently resolved and leave the existing value in place.
func Merge(existing Brief, extracted Extracted) (Brief, MergeResult) {
	merged := existing

	if extracted.HasCampaign != nil {
		merged.HasCampaign = *extracted.HasCampaign
	}

	var ambiguous []Ambiguity
	for field, values := range extracted.Fields {
		cleaned := nonEmpty(values)
		if len(cleaned) == 0 {
			continue
		}
		if !listFields[field] && len(cleaned) > 1 {
			ambiguous = append(ambiguous, Ambiguity{Field: field, Options: cleaned})
			continue
		}
		merged.set(field, cleaned)
	}

	missing := merged.Missing()
	return merged, MergeResult{
		Complete:  len(missing) == 0 && len(ambiguous) == 0,
		Missing:   missing,
		Ambiguous: ambiguous,
	}
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
