package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Question represents a single multiple-choice exam question.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"correct_option"`
	OrderNum      int             `json:"order_num"`
}

// QuestionOption is the object form of an entry in Question.Options.
type QuestionOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChoiceIDs returns the choice ids offered by the question, in display
// order. Options are stored either as [{"id","text"}] objects or as a
// plain string array, in which case ids are the letters "A", "B", ...
func (q *Question) ChoiceIDs() ([]string, error) {
	if len(q.Options) == 0 || string(q.Options) == "null" {
		return nil, nil
	}

	var objects []QuestionOption
	if err := json.Unmarshal(q.Options, &objects); err == nil {
		ids := make([]string, 0, len(objects))
		for _, o := range objects {
			if o.ID != "" {
				ids = append(ids, o.ID)
			}
		}
		return ids, nil
	}

	var texts []string
	if err := json.Unmarshal(q.Options, &texts); err != nil {
		return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
	}
	ids := make([]string, len(texts))
	for i := range texts {
		ids[i] = optionLetter(i)
	}
	return ids, nil
}

// optionLetter maps 0 -> "A", 25 -> "Z", 26 -> "AA".
func optionLetter(i int) string {
	s := ""
	for i >= 0 {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
	}
	return s
}
