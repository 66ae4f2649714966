package domain

import "errors"

var (
	// ErrInvalidState is returned when a lifecycle action is attempted from
	// the wrong state, e.g. starting a question while one is active.
	ErrInvalidState = errors.New("question already in progress")
	// ErrInvalidQuestion is returned for malformed questions (too few
	// options, duplicate options, missing correct option, bad duration).
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNoActiveQuestion rejects answers when no round is accepting them.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrUnknownOption rejects answers naming an option the question lacks.
	ErrUnknownOption = errors.New("option not part of active question")
	// ErrDuplicateAnswer rejects a second answer from the same student.
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrUnknownStudent rejects answers from ids not present in the roster.
	ErrUnknownStudent = errors.New("student not in roster")
	// ErrQuestionSetNotFound indicates the requested set is not in the bank.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrQuestionNotFound indicates a set does not contain the question.
	ErrQuestionNotFound = errors.New("question not found in set")
)
