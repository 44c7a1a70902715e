package service

import (
	"regexp"
	"strings"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// Unknown question id policies.
const (
	UnknownQuestionFallback = "fallback"
	UnknownQuestionReject   = "reject"
)

// DefaultUnknownMaxScore is the max score assumed for an unresolved id under the fallback policy.
const DefaultUnknownMaxScore = 10.0

var questionIDPattern = regexp.MustCompile(`^(\d+)\s*[\.\-_:]?\s*\(?([a-z])?\)?\.?$`)

// ParseQuestionID splits ids such as "Q1a", "1(b)", "Question 2" or "3.c"
// into the base question number and an optional sub-part letter.
func ParseQuestionID(id string) (string, string) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	for _, prefix := range []string{"question", "ques", "qn", "q"} {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimSpace(strings.TrimPrefix(normalized, prefix))
			normalized = strings.TrimLeft(normalized, ".:#- ")
			break
		}
	}

	if match := questionIDPattern.FindStringSubmatch(normalized); match != nil {
		return strings.TrimLeft(match[1], "0"), match[2]
	}
	return normalized, ""
}

// ResolvedQuestion is the guide entry a mapped question id points at.
type ResolvedQuestion struct {
	ID       string
	Text     string
	MaxScore float64
}

// ResolveQuestion finds the guide entry for questionID and derives its max
// score from the guide structure.
func ResolveQuestion(questions []models.QuestionSpec, questionID string) (ResolvedQuestion, bool) {
	number, letter := ParseQuestionID(questionID)
	if number == "" {
		return ResolvedQuestion{}, false
	}

	for _, question := range questions {
		questionNumber, _ := ParseQuestionID(question.QuestionNumber())
		if questionNumber != number {
			continue
		}

		switch q := question.(type) {
		case models.GroupedQuestion:
			if letter == "" {
				return ResolvedQuestion{ID: number, Text: q.Text, MaxScore: q.TotalMarks()}, true
			}
			if _, fromCriteria := models.ExtractSubPartMarks(q.Criteria, letter); !fromCriteria && !q.HasSubPart(letter) {
				return ResolvedQuestion{}, false
			}
			return ResolvedQuestion{ID: number + letter, Text: q.Text, MaxScore: q.SubPartMarks(letter)}, true
		case models.SingleQuestion:
			return ResolvedQuestion{ID: number, Text: q.Text, MaxScore: q.Marks}, true
		}
	}
	return ResolvedQuestion{}, false
}

// ResolveMaxScore returns the authoritative max score for questionID.
func ResolveMaxScore(questions []models.QuestionSpec, questionID string) (float64, bool) {
	resolved, ok := ResolveQuestion(questions, questionID)
	if !ok || resolved.MaxScore <= 0 {
		return 0, false
	}
	return resolved.MaxScore, true
}
