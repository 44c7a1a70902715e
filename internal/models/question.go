package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Question kinds stored in the guide's questions column.
const (
	QuestionTypeSingle  = "single"
	QuestionTypeGrouped = "grouped"
)

// QuestionSpec is a single entry of a marking guide. It is implemented by
// SingleQuestion and GroupedQuestion only.
type QuestionSpec interface {
	QuestionNumber() string
	QuestionText() string
	TotalMarks() float64
	MarkingCriteria() string
	questionSpec()
}

// SingleQuestion is a stand-alone question worth a fixed number of marks.
type SingleQuestion struct {
	Number   string
	Text     string
	Marks    float64
	Criteria string
}

// GroupedQuestion is a question made of lettered sub-parts sharing TotalMarks.
type GroupedQuestion struct {
	Number   string
	Text     string
	Marks    float64
	SubParts []string
	Criteria string
}

func (q SingleQuestion) QuestionNumber() string  { return q.Number }
func (q SingleQuestion) QuestionText() string    { return q.Text }
func (q SingleQuestion) TotalMarks() float64     { return q.Marks }
func (q SingleQuestion) MarkingCriteria() string { return q.Criteria }
func (SingleQuestion) questionSpec()             {}

func (q GroupedQuestion) QuestionNumber() string  { return q.Number }
func (q GroupedQuestion) QuestionText() string    { return q.Text }
func (q GroupedQuestion) TotalMarks() float64     { return q.Marks }
func (q GroupedQuestion) MarkingCriteria() string { return q.Criteria }
func (GroupedQuestion) questionSpec()             {}

// SubPartMarks returns the marks for the given sub-part letter, read from the
// criteria text when present and otherwise split evenly across sub-parts.
func (q GroupedQuestion) SubPartMarks(letter string) float64 {
	if marks, ok := ExtractSubPartMarks(q.Criteria, letter); ok {
		return marks
	}
	if len(q.SubParts) == 0 {
		return q.Marks
	}
	return q.Marks / float64(len(q.SubParts))
}

// HasSubPart reports whether letter names one of the question's sub-parts.
func (q GroupedQuestion) HasSubPart(letter string) bool {
	letter = strings.ToLower(strings.TrimSpace(letter))
	for _, part := range q.SubParts {
		if normalizeSubPart(part) == letter {
			return true
		}
	}
	return false
}

var (
	partHeaderPattern = regexp.MustCompile(subPartHeader(`[a-z]`))
	marksPattern      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*marks?\b`)
)

// ExtractSubPartMarks reads "Part <letter>: ... <N> mark(s)" from criteria text.
// The search for N stops at the end of the line or the next "Part" header.
func ExtractSubPartMarks(criteria, letter string) (float64, bool) {
	letter = strings.ToLower(strings.TrimSpace(letter))
	if criteria == "" || letter == "" {
		return 0, false
	}

	header := regexp.MustCompile(subPartHeader(regexp.QuoteMeta(letter)))
	loc := header.FindStringIndex(criteria)
	if loc == nil {
		return 0, false
	}

	segment := criteria[loc[1]:]
	if idx := strings.IndexByte(segment, '\n'); idx >= 0 {
		segment = segment[:idx]
	}
	if next := partHeaderPattern.FindStringIndex(segment); next != nil {
		segment = segment[:next[0]]
	}

	match := marksPattern.FindStringSubmatch(segment)
	if len(match) < 2 {
		return 0, false
	}

	marks, err := strconv.ParseFloat(match[1], 64)
	if err != nil || marks <= 0 {
		return 0, false
	}
	return marks, true
}

// subPartHeader matches "Part a:", "Part (a)" or "part a -" but not words
// such as "parts" or "party".
func subPartHeader(letter string) string {
	return `(?i)\bpart(?:\s+\(?|\s*\()` + letter + `(?:\s*\)|\s*[:.\-])`
}

func normalizeSubPart(part string) string {
	part = strings.ToLower(strings.TrimSpace(part))
	part = strings.Trim(part, "()., ")
	if len(part) > 1 {
		// "1a" style labels carry the parent number.
		part = strings.TrimLeft(part, "0123456789")
	}
	return part
}

// questionRecord is the stored JSON shape of a question.
type questionRecord struct {
	Type     string   `json:"type,omitempty"`
	Number   string   `json:"number"`
	Text     string   `json:"text"`
	Marks    float64  `json:"marks"`
	SubParts []string `json:"sub_parts,omitempty"`
	Criteria string   `json:"criteria,omitempty"`
}

func (r *questionRecord) UnmarshalJSON(data []byte) error {
	type alias questionRecord
	var raw struct {
		alias
		Number     json.RawMessage `json:"number"`
		TotalMarks *float64        `json:"total_marks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = questionRecord(raw.alias)
	r.Number = strings.Trim(strings.TrimSpace(string(raw.Number)), `"`)
	if raw.TotalMarks != nil && r.Marks == 0 {
		r.Marks = *raw.TotalMarks
	}
	return nil
}

// DecodeQuestions turns the stored questions JSON into QuestionSpec values.
func DecodeQuestions(data []byte) ([]QuestionSpec, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var records []questionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	questions := make([]QuestionSpec, 0, len(records))
	for i, record := range records {
		if strings.TrimSpace(record.Number) == "" {
			record.Number = strconv.Itoa(i + 1)
		}

		kind := strings.ToLower(strings.TrimSpace(record.Type))
		if kind == "" && len(record.SubParts) > 0 {
			kind = QuestionTypeGrouped
		}

		switch kind {
		case QuestionTypeGrouped:
			questions = append(questions, GroupedQuestion{
				Number:   record.Number,
				Text:     record.Text,
				Marks:    record.Marks,
				SubParts: record.SubParts,
				Criteria: record.Criteria,
			})
		case QuestionTypeSingle, "":
			questions = append(questions, SingleQuestion{
				Number:   record.Number,
				Text:     record.Text,
				Marks:    record.Marks,
				Criteria: record.Criteria,
			})
		default:
			return nil, fmt.Errorf("question %s: unknown type %q", record.Number, record.Type)
		}
	}

	return questions, nil
}

// EncodeQuestions serialises questions into the stored JSON shape.
func EncodeQuestions(questions []QuestionSpec) ([]byte, error) {
	records := make([]questionRecord, 0, len(questions))
	for _, question := range questions {
		switch q := question.(type) {
		case SingleQuestion:
			records = append(records, questionRecord{Type: QuestionTypeSingle, Number: q.Number, Text: q.Text, Marks: q.Marks, Criteria: q.Criteria})
		case GroupedQuestion:
			records = append(records, questionRecord{Type: QuestionTypeGrouped, Number: q.Number, Text: q.Text, Marks: q.Marks, SubParts: q.SubParts, Criteria: q.Criteria})
		}
	}
	return json.Marshal(records)
}
