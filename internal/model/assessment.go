package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an identifier issued by the platform backend. The backend emits
// numeric ids for some resources and string ids for others, so both forms
// are accepted and normalised to their decimal/string form.
type ID string

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Choice is the label of one of the four options of a question.
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	ChoiceC Choice = "C"
	ChoiceD Choice = "D"
)

// Valid reports whether c is one of A, B, C or D.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceA, ChoiceB, ChoiceC, ChoiceD:
		return true
	}
	return false
}

// Assessment is a timed multiple-choice test as served to a learner.
// Correct answers and explanations are withheld by the backend until
// the attempt is submitted.
type Assessment struct {
	ID              ID         `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	Difficulty      string     `json:"difficulty"`
	DurationMinutes int        `json:"duration_minutes"`
	PassingScore    float64    `json:"passing_score"`
	Questions       []Question `json:"questions"`
}

// DurationSeconds is the initial value of the session clock.
func (a *Assessment) DurationSeconds() int {
	return a.DurationMinutes * 60
}

// HasQuestion reports whether qid belongs to the assessment.
func (a *Assessment) HasQuestion(qid ID) bool {
	for i := range a.Questions {
		if a.Questions[i].ID == qid {
			return true
		}
	}
	return false
}

// Question is a single multiple-choice item.
type Question struct {
	ID           ID     `json:"id"`
	QuestionText string `json:"question_text"`
	OptionA      string `json:"option_a"`
	OptionB      string `json:"option_b"`
	OptionC      string `json:"option_c"`
	OptionD      string `json:"option_d"`
}

// Option returns the text of the option labelled c.
func (q *Question) Option(c Choice) string {
	switch c {
	case ChoiceA:
		return q.OptionA
	case ChoiceB:
		return q.OptionB
	case ChoiceC:
		return q.OptionC
	case ChoiceD:
		return q.OptionD
	}
	return ""
}
