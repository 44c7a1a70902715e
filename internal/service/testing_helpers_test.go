package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
	"github.com/noah-isme/gema-exam-grader/pkg/ocr"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:svc_" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// scriptedModel replays canned responses, split by prompt kind.
type scriptedModel struct {
	mu             sync.Mutex
	mappings       []string
	grades         []string
	mappingCalls   int
	gradingCalls   int
	requests       []ai.GenerateRequest
	mappingErr     error
	gradingErr     error
	enterMapping   chan struct{}
	releaseMapping chan struct{}
	// beforeMapping runs with the zero-based mapping call index.
	beforeMapping func(call int)
}

func (m *scriptedModel) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	isMapping := req.SystemPrompt == mappingSystemPrompt
	var response string
	var err error
	call := m.mappingCalls
	if isMapping {
		response, err = next(m.mappings, m.mappingCalls), m.mappingErr
		m.mappingCalls++
	} else {
		response, err = next(m.grades, m.gradingCalls), m.gradingErr
		m.gradingCalls++
	}
	enter, release, before := m.enterMapping, m.releaseMapping, m.beforeMapping
	m.mu.Unlock()

	if isMapping && before != nil {
		before(call)
	}

	if isMapping && enter != nil {
		enter <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return response, err
}

func (m *scriptedModel) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mappingCalls, m.gradingCalls
}

func next(responses []string, call int) string {
	if len(responses) == 0 {
		return ""
	}
	if call >= len(responses) {
		return responses[len(responses)-1]
	}
	return responses[call]
}

const threeAnswerMapping = `{"mappings": [
  {"question_id": "1", "question_text": "Define osmosis", "student_answer": "Movement of water across a membrane", "match_score": 0.9},
  {"question_id": "2", "question_text": "Name the organelle", "student_answer": "Mitochondria", "match_score": 0.8},
  {"question_id": 3, "question_text": "Explain diffusion", "student_answer": "Particles spread from high to low concentration", "match_score": 0.7}
]}`

const threeAnswerGrades = `{"grades": [
  {"question_id": "1", "score": 8, "feedback": "Good definition"},
  {"question_id": "2", "score": 5, "feedback": "<b>Correct</b>"},
  {"question_id": "3", "score": 12, "feedback": "Thorough"}
], "overall_feedback": "Solid work"}`

type pipelineFixture struct {
	db          *gorm.DB
	model       *scriptedModel
	guides      repository.GuideRepository
	submissions repository.SubmissionRepository
	mappings    repository.MappingRepository
	results     repository.GradingRepository
	activity    ActivityService
	locks       *MemoryLockManager
	guide       models.MarkingGuide
	submission  models.Submission
}

func newPipelineFixture(t *testing.T, model *scriptedModel) *pipelineFixture {
	t.Helper()
	db := setupServiceDB(t)
	fixture := &pipelineFixture{
		db:          db,
		model:       model,
		guides:      repository.NewGuideRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		mappings:    repository.NewMappingRepository(db),
		results:     repository.NewGradingRepository(db),
		activity:    NewActivityService(repository.NewActivityLogRepository(db), testLogger()),
		locks:       NewMemoryLockManager(),
	}

	fixture.guide = models.MarkingGuide{
		ID:          "guide-1",
		UserID:      "teacher-1",
		Title:       "Biology",
		ContentText: "1. Define osmosis (10 marks)\n2. Name the organelle (5 marks)\n3. Explain diffusion (10 marks)",
		Questions:   datatypes.JSON(`[{"number": 1, "text": "Define osmosis", "marks": 10}, {"number": 2, "text": "Name the organelle", "marks": 5}, {"number": 3, "text": "Explain diffusion", "marks": 10}]`),
		TotalMarks:  25,
	}
	require.NoError(t, fixture.guides.Create(context.Background(), &fixture.guide))

	fixture.submission = models.Submission{
		ID:               "sub-1",
		UserID:           "teacher-1",
		StudentName:      "Ada",
		Filename:         "ada.txt",
		ContentText:      "1. Movement of water across a membrane\n2. Mitochondria\n3. Particles spread",
		ProcessingStatus: models.ProcessingStatusPending,
	}
	require.NoError(t, fixture.submissions.Create(context.Background(), &fixture.submission))
	return fixture
}

func (f *pipelineFixture) components() ProcessingComponents {
	return ProcessingComponents{
		Mapper:    NewAnswerMapper(f.model, MapperConfig{}, testLogger()),
		Validator: NewMappingValidator(f.mappings, testLogger()),
		Grader:    NewGradingEngine(f.model, testLogger()),
		Persister: NewResultPersister(f.results, testLogger()),
	}
}

func (f *pipelineFixture) orchestrator(components ProcessingComponents) ProcessingOrchestrator {
	return NewProcessingOrchestrator(
		ProcessingRepositories{Guides: f.guides, Submissions: f.submissions, Mappings: f.mappings},
		components,
		f.locks,
		f.activity,
		nil,
		nil,
		OrchestratorConfig{EnforceOwnership: true},
		testLogger(),
	)
}

type staticExtractor struct {
	text       string
	confidence float64
	err        error
}

func (s staticExtractor) Extract(context.Context, string) (ocr.Result, error) {
	if s.err != nil {
		return ocr.Result{}, s.err
	}
	return ocr.Result{Success: true, Text: s.text, Confidence: s.confidence, Provider: "static"}, nil
}

var errScripted = errors.New("scripted failure")
