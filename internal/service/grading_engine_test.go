package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

func gradedMappings() []models.Mapping {
	return []models.Mapping{
		{QuestionID: "1", QuestionText: "Define osmosis", StudentAnswer: "Water movement", MaxScore: 10},
		{QuestionID: "2a", QuestionText: "Name the organelle", StudentAnswer: "Mitochondria", MaxScore: 5},
		{QuestionID: "3", QuestionText: "Explain diffusion", StudentAnswer: "Spreading", MaxScore: 8},
	}
}

func TestGradingEngineScoresAndClamps(t *testing.T) {
	model := &scriptedModel{grades: []string{`Here you go: {"grades": [
		{"question_id": 1, "score": 14, "feedback": "Great"},
		{"question_id": "Q2(a)", "score": -1, "feedback": "<script>alert(1)</script>Wrong organelle"},
		{"question_id": "3", "score": 6, "feedback": "Fair &amp; clear"}
	], "overall_feedback": "Well done"}`}}
	engine := NewGradingEngine(model, testLogger())

	outcome, err := engine.Grade(context.Background(), GradingRequest{SubmissionID: "sub-1", Mappings: gradedMappings()})
	require.NoError(t, err)
	require.Equal(t, models.GradingMethodLLM, outcome.Method)
	require.Len(t, outcome.Grades, 3)
	require.Equal(t, 10.0, outcome.Grades[0].Score)
	require.Equal(t, 0.0, outcome.Grades[1].Score)
	require.Equal(t, "Wrong organelle", outcome.Grades[1].Feedback)
	require.Equal(t, "Fair & clear", outcome.Grades[2].Feedback)
	require.Equal(t, 16.0, outcome.Score)
	require.Equal(t, 23.0, outcome.MaxScore)
	require.InDelta(t, 69.565217, outcome.Percentage, 0.000001)
	require.NotEqual(t, 69.57, outcome.Percentage)
	require.Equal(t, "Well done", outcome.Feedback)

	_, gradingCalls := model.calls()
	require.Equal(t, 1, gradingCalls)
	require.InDelta(t, 0.2, model.requests[0].Temperature, 0.0001)
}

func TestGradingEngineFallsBackToPartialCredit(t *testing.T) {
	model := &scriptedModel{grades: []string{"I could not grade this submission."}}
	engine := NewGradingEngine(model, testLogger())

	outcome, err := engine.Grade(context.Background(), GradingRequest{Mappings: gradedMappings()})
	require.NoError(t, err)
	require.Equal(t, models.GradingMethodFallback, outcome.Method)
	require.Equal(t, []float64{5, 2.5, 4}, []float64{outcome.Grades[0].Score, outcome.Grades[1].Score, outcome.Grades[2].Score})
	require.Equal(t, 11.5, outcome.Score)
	require.Equal(t, 23.0, outcome.MaxScore)
	require.Equal(t, 50.0, outcome.Percentage)
	require.Equal(t, fallbackFeedback, outcome.Grades[0].Feedback)
}

func TestGradingEngineTreatsEmptyGradesAsUnusable(t *testing.T) {
	model := &scriptedModel{grades: []string{`{"grades": [], "overall_feedback": "Nothing to grade"}`}}
	engine := NewGradingEngine(model, testLogger())

	outcome, err := engine.Grade(context.Background(), GradingRequest{Mappings: gradedMappings()})
	require.NoError(t, err)
	require.Equal(t, models.GradingMethodFallback, outcome.Method)
	require.Equal(t, 11.5, outcome.Score)
	require.Equal(t, 50.0, outcome.Percentage)
	for _, grade := range outcome.Grades {
		require.Equal(t, fallbackFeedback, grade.Feedback)
	}
}

func TestGradingEngineRejectsUnknownQuestionIDs(t *testing.T) {
	model := &scriptedModel{grades: []string{`{"grades": [{"question_id": "9", "score": 3}]}`}}
	engine := NewGradingEngine(model, testLogger())

	_, err := engine.Grade(context.Background(), GradingRequest{Mappings: gradedMappings()})
	require.ErrorIs(t, err, ErrGrading)
	require.ErrorIs(t, err, ErrUnknownGradedQuestion)
	require.Equal(t, ErrorKindParse, ErrorKind(err))
}

func TestGradingEngineMarksMissingGrades(t *testing.T) {
	model := &scriptedModel{grades: []string{`{"grades": [{"question_id": "1", "score": 7, "feedback": "ok"}]}`}}
	engine := NewGradingEngine(model, testLogger())

	outcome, err := engine.Grade(context.Background(), GradingRequest{Mappings: gradedMappings()})
	require.NoError(t, err)
	require.Equal(t, 7.0, outcome.Score)
	require.Equal(t, 23.0, outcome.MaxScore)
	require.Equal(t, missingFeedback, outcome.Grades[1].Feedback)
	require.Equal(t, missingFeedback, outcome.Grades[2].Feedback)
}

func TestGradingEngineSkipsModelWithoutMappings(t *testing.T) {
	model := &scriptedModel{}
	engine := NewGradingEngine(model, testLogger())

	outcome, err := engine.Grade(context.Background(), GradingRequest{})
	require.NoError(t, err)
	require.Empty(t, outcome.Grades)
	require.Zero(t, outcome.MaxScore)
	require.Zero(t, outcome.Percentage)

	_, gradingCalls := model.calls()
	require.Zero(t, gradingCalls)
}

func TestGradingEngineWrapsModelErrors(t *testing.T) {
	model := &scriptedModel{gradingErr: errScripted}
	engine := NewGradingEngine(model, testLogger())

	_, err := engine.Grade(context.Background(), GradingRequest{Mappings: gradedMappings()})
	require.ErrorIs(t, err, ErrGrading)
	require.ErrorIs(t, err, errScripted)
	require.Equal(t, ErrorKindExternalService, ErrorKind(err))
}
