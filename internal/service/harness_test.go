package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/autoeval-api/internal/models"
	"github.com/noah-isme/autoeval-api/internal/repository"
	"github.com/noah-isme/autoeval-api/pkg/ai"
	"github.com/noah-isme/autoeval-api/pkg/extract"
	"github.com/noah-isme/autoeval-api/pkg/filecodec"
)

var testKDF = filecodec.KDFParams{N: 1 << 10, R: 8, P: 1}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Topic{}, &models.Submission{}, &models.Correction{}, &models.CorrectionFailure{}))
	return db
}

func newTestFileStore(t *testing.T) FileStore {
	t.Helper()
	codec := filecodec.New("test-secret", filecodec.WithKDF(testKDF), filecodec.WithTempDir(t.TempDir()))
	store, err := NewFileStore(t.TempDir(), codec, 1<<20, testLogger())
	require.NoError(t, err)
	return store
}

func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

// stubGenerator answers every prompt through reply and records what it saw.
type stubGenerator struct {
	mu      sync.Mutex
	reply   func(prompt string) (string, error)
	prompts []string
	delay   time.Duration

	active    int
	maxActive int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt, _ string, _ time.Duration) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply(prompt)
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *stubGenerator) peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxActive
}

func gradeReply(score int, feedback, correction string) string {
	return fmt.Sprintf("Here you go.\n%s\n%d\n%s\n%s\n%s\n%s\n%s\n%s\n%s\n",
		ai.ScoreOpen, score, ai.ScoreClose,
		ai.FeedbackOpen, feedback, ai.FeedbackClose,
		ai.CorrectionOpen, correction, ai.CorrectionClose)
}

func fixedReply(raw string) func(string) (string, error) {
	return func(string) (string, error) { return raw, nil }
}

type pipelineEnv struct {
	db          *gorm.DB
	users       repository.UserRepository
	topics      repository.TopicRepository
	submissions repository.SubmissionRepository
	corrections repository.CorrectionRepository
	files       FileStore
	generator   *stubGenerator
	service     CorrectionService

	teacher models.User
	other   models.User
	admin   models.User
	student models.User
	topic   models.Topic
}

func (e *pipelineEnv) teacherActor() Actor { return Actor{ID: e.teacher.ID, Role: models.RoleTeacher} }
func (e *pipelineEnv) otherActor() Actor   { return Actor{ID: e.other.ID, Role: models.RoleTeacher} }
func (e *pipelineEnv) adminActor() Actor   { return Actor{ID: e.admin.ID, Role: models.RoleAdmin} }
func (e *pipelineEnv) studentActor() Actor { return Actor{ID: e.student.ID, Role: models.RoleStudent} }

func newPipelineEnv(t *testing.T, cfg CorrectionConfig, opts ...func(*CorrectionDependencies)) *pipelineEnv {
	t.Helper()
	db := setupServiceDB(t)

	env := &pipelineEnv{
		db:          db,
		users:       repository.NewUserRepository(db),
		topics:      repository.NewTopicRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		corrections: repository.NewCorrectionRepository(db),
		files:       newTestFileStore(t),
		generator:   &stubGenerator{reply: fixedReply(gradeReply(14, "Selects every column.", "SELECT id,name FROM users;"))},
	}

	env.teacher = env.createUser(t, "Teacher", "teacher@example.com", models.RoleTeacher)
	env.other = env.createUser(t, "Other", "other@example.com", models.RoleTeacher)
	env.admin = env.createUser(t, "Admin", "admin@example.com", models.RoleAdmin)
	env.student = env.createUser(t, "Student", "student@example.com", models.RoleStudent)

	env.topic = models.Topic{Title: "SQL basics", Description: "Select id and name of users", TeacherID: env.teacher.ID, Status: models.TopicStatusPublished}
	require.NoError(t, db.Omit("Teacher").Create(&env.topic).Error)

	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	deps := CorrectionDependencies{
		Corrections: env.corrections,
		Submissions: env.submissions,
		Topics:      env.topics,
		Files:       env.files,
		Extractor:   extract.NewRouter(nil),
		Generator:   env.generator,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.service = NewCorrectionService(deps, cfg, validator.New(), testLogger())

	return env
}

func (e *pipelineEnv) createUser(t *testing.T, name, email, role string) models.User {
	t.Helper()
	user := models.User{Name: name, Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, e.users.Create(context.Background(), &user))
	return user
}

// addSubmission stores content encrypted and records a submission for student.
func (e *pipelineEnv) addSubmission(t *testing.T, student models.User, content string) models.Submission {
	t.Helper()
	stored, err := e.files.Save(context.Background(), fileHeader(t, "answer.txt", []byte(content)))
	require.NoError(t, err)

	submission := models.Submission{
		TopicID:      e.topic.ID,
		StudentID:    student.ID,
		StoredFile:   stored.Name,
		OriginalName: stored.OriginalName,
		FileExt:      stored.Ext,
		MimeType:     stored.MimeType,
		FileSize:     stored.Size,
		Checksum:     stored.Checksum,
	}
	require.NoError(t, e.submissions.Create(context.Background(), &submission))
	return submission
}

func (e *pipelineEnv) countCorrections(t *testing.T, submissionID uint) (active, total int64) {
	t.Helper()
	require.NoError(t, e.db.Model(&models.Correction{}).Where("submission_id = ? AND active_for IS NOT NULL", submissionID).Count(&active).Error)
	require.NoError(t, e.db.Model(&models.Correction{}).Where("submission_id = ?", submissionID).Count(&total).Error)
	return active, total
}
