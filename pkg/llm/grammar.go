package llm

import (
	"encoding/json"
	"sort"
)

type DifficultWord struct {
	Word         string `json:"word"`
	Definition   string `json:"definition"`
	Phonetic     string `json:"phonetic,omitempty"`
	PartOfSpeech string `json:"part_of_speech,omitempty"`
}

type Grammar struct {
	SentenceStructure string         `json:"sentence_structure"`
	GrammarPoints     []string       `json:"grammar_points"`
	DifficultWords    DifficultWords `json:"difficult_words"`
	Phrases           []string       `json:"phrases"`
	Explanation       string         `json:"explanation"`
}

type DifficultWords []DifficultWord

// UnmarshalJSON accepts a list of objects, a list of bare words or a
// word -> definition object, which models produce interchangeably.
func (d *DifficultWords) UnmarshalJSON(data []byte) error {
	var objects []DifficultWord
	if err := json.Unmarshal(data, &objects); err == nil {
		*d = objects
		return nil
	}

	var words []string
	if err := json.Unmarshal(data, &words); err == nil {
		out := make([]DifficultWord, 0, len(words))
		for _, w := range words {
			out = append(out, DifficultWord{Word: w})
		}
		*d = out
		return nil
	}

	var defs map[string]string
	if err := json.Unmarshal(data, &defs); err != nil {
		return err
	}
	keys := make([]string, 0, len(defs))
	for k := range defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]DifficultWord, 0, len(defs))
	for _, k := range keys {
		out = append(out, DifficultWord{Word: k, Definition: defs[k]})
	}
	*d = out
	return nil
}
