package model

import "encoding/json"

// SubmitRequest is the body of POST assessment/{id}/submit.
type SubmitRequest struct {
	Answers   map[ID]Choice `json:"answers"`
	TimeSpent int           `json:"time_spent"`
}

// SubmitResponse wraps the attempt created by the backend.
type SubmitResponse struct {
	Attempt AttemptSummary `json:"attempt"`
}

// AttemptSummary is the scored attempt returned on submission.
type AttemptSummary struct {
	ID             ID              `json:"id"`
	Score          float64         `json:"score"`
	CorrectAnswers int             `json:"correct_answers"`
	WrongAnswers   int             `json:"wrong_answers"`
	Passed         bool            `json:"passed"`
	TimeSpent      int             `json:"time_spent"`
	Test           json.RawMessage `json:"test,omitempty"`
}

// AttemptDetail is the full result of GET attempt/{id}, consumed by the
// results display after submission.
type AttemptDetail struct {
	AttemptSummary
	Answers []AttemptAnswer `json:"answers"`
}

// AttemptAnswer is one question of a scored attempt, with the correct
// answer and explanation now disclosed.
type AttemptAnswer struct {
	QuestionID     ID     `json:"question_id"`
	QuestionText   string `json:"question_text,omitempty"`
	SelectedAnswer Choice `json:"selected_answer,omitempty"`
	CorrectAnswer  Choice `json:"correct_answer"`
	IsCorrect      bool   `json:"is_correct"`
	Explanation    string `json:"explanation,omitempty"`
}
