package models

// PreprocessorState is the opaque fitted-transform state owned by the
// preprocessing collaborator, keyed by transform name.
type PreprocessorState map[string]map[string]any

// Clone returns a shallow copy of the state map.
func (s PreprocessorState) Clone() PreprocessorState {
	if s == nil {
		return PreprocessorState{}
	}
	out := make(PreprocessorState, len(s))
	for k, v := range s {
		params := make(map[string]any, len(v))
		for pk, pv := range v {
			params[pk] = pv
		}
		out[k] = params
	}
	return out
}

// DecisionLog is the persisted record that makes a later run reproducible.
type DecisionLog struct {
	Preprocessors PreprocessorState `json:"preprocessors"`
	Features      []string          `json:"features"`
}

// Empty reports whether the log carries no prior feature selection.
func (l DecisionLog) Empty() bool {
	return len(l.Features) == 0
}
