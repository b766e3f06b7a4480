package model

import "time"

// Question is a posted question. Votes is the denormalized ledger sum and
// AnswerCount/AuthorName are filled on reads only.
type Question struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"author"`
	Tags        []string  `json:"tags"`
	Votes       int       `json:"votes"`
	ViewCount   int       `json:"viewCount"`
	AnswerCount int       `json:"answerCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Answer belongs to exactly one Question. At most one Answer per Question
// has IsAccepted set.
type Answer struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"author"`
	QuestionID string    `json:"questionId"`
	Votes      int       `json:"votes"`
	IsAccepted bool      `json:"isAccepted"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
