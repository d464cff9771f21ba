package service

import (
	"context"
	"mime/multipart"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/models"
)

func newTestSubmissionService(t *testing.T, tracker GradingTracker) (*pipelineEnv, SubmissionService) {
	t.Helper()
	env := newPipelineEnv(t, CorrectionConfig{})
	svc := NewSubmissionService(SubmissionDependencies{
		Submissions: env.submissions,
		Topics:      env.topics,
		Users:       env.users,
		Corrections: env.corrections,
		Files:       env.files,
		Tracker:     tracker,
	}, validator.New(), testLogger())
	return env, svc
}

func TestSubmissionCreateByStudent(t *testing.T) {
	env, svc := newTestSubmissionService(t, nil)

	resp, err := svc.Create(context.Background(), env.studentActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID},
		fileHeader(t, "answer.sql", []byte("SELECT * FROM users;")))
	require.NoError(t, err)
	require.Equal(t, env.student.ID, resp.StudentID)
	require.Equal(t, env.topic.ID, resp.TopicID)
	require.Equal(t, "answer.sql", resp.OriginalName)
	require.Equal(t, "text/plain", resp.MimeType)
	require.Equal(t, dto.GradingStatePending, resp.GradingState)
	require.Nil(t, resp.CorrectionID)
	require.Regexp(t, `^/uploads/[0-9a-f-]{36}\.enc$`, resp.FileURL)

	_, err = svc.Create(context.Background(), env.studentActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID, StudentID: env.teacher.ID},
		fileHeader(t, "answer.sql", []byte("SELECT 1;")))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(context.Background(), env.studentActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID}, nil)
	require.ErrorIs(t, err, ErrFileRequired)

	_, err = svc.Create(context.Background(), env.studentActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID},
		fileHeader(t, "image.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")))
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)
}

func TestSubmissionCreateByStaff(t *testing.T) {
	env, svc := newTestSubmissionService(t, nil)
	file := func() *multipart.FileHeader { return fileHeader(t, "answer.txt", []byte("SELECT 1;")) }

	_, err := svc.Create(context.Background(), env.teacherActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID}, file())
	require.ErrorIs(t, err, ErrStudentRequired)

	_, err = svc.Create(context.Background(), env.otherActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID, StudentID: env.student.ID}, file())
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(context.Background(), env.teacherActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID, StudentID: env.other.ID}, file())
	require.ErrorIs(t, err, ErrUserNotFound)

	resp, err := svc.Create(context.Background(), env.teacherActor(), dto.SubmissionCreateRequest{TopicID: env.topic.ID, StudentID: env.student.ID}, file())
	require.NoError(t, err)
	require.Equal(t, env.student.ID, resp.StudentID)
}

func TestSubmissionCreateRequiresOpenTopic(t *testing.T) {
	env, svc := newTestSubmissionService(t, nil)

	draft := models.Topic{Title: "Draft", TeacherID: env.teacher.ID, Status: models.TopicStatusDraft}
	require.NoError(t, env.db.Omit("Teacher").Create(&draft).Error)
	past := time.Now().Add(-time.Hour)
	closed := models.Topic{Title: "Closed", TeacherID: env.teacher.ID, Status: models.TopicStatusPublished, Deadline: &past}
	require.NoError(t, env.db.Omit("Teacher").Create(&closed).Error)

	file := fileHeader(t, "answer.txt", []byte("SELECT 1;"))

	_, err := svc.Create(context.Background(), env.studentActor(), dto.SubmissionCreateRequest{TopicID: draft.ID}, file)
	require.ErrorIs(t, err, ErrTopicNotFound)

	_, err = svc.Create(context.Background(), env.teacherActor(), dto.SubmissionCreateRequest{TopicID: draft.ID, StudentID: env.student.ID}, file)
	require.ErrorIs(t, err, ErrTopicNotPublished)

	_, err = svc.Create(context.Background(), env.studentActor(), dto.SubmissionCreateRequest{TopicID: closed.ID}, file)
	require.ErrorIs(t, err, ErrTopicClosed)

	_, err = svc.Create(context.Background(), env.studentActor(), dto.SubmissionCreateRequest{TopicID: 9999}, file)
	require.ErrorIs(t, err, ErrTopicNotFound)
}

func TestSubmissionListDerivesGradingState(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	tracker := NewGradingTracker(client, time.Minute, testLogger())
	env, svc := newTestSubmissionService(t, tracker)
	classmate := env.createUser(t, "Classmate", "classmate@example.com", models.RoleStudent)

	graded := env.addSubmission(t, env.student, "SELECT * FROM users;")
	grading := env.addSubmission(t, env.student, "SELECT 2;")
	failed := env.addSubmission(t, classmate, "SELECT 3;")
	pending := env.addSubmission(t, classmate, "SELECT 4;")

	_, err = env.service.Generate(context.Background(), env.teacherActor(), graded.ID)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkGrading(context.Background(), grading.ID))
	require.NoError(t, env.submissions.RecordGradingError(context.Background(), failed.ID, "inference service timed out", time.Now()))

	all, err := svc.List(context.Background(), env.teacherActor(), dto.SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	states := map[uint]string{}
	for _, item := range all {
		states[item.ID] = item.GradingState
		require.NotNil(t, item.Student)
	}
	require.Equal(t, dto.GradingStateGraded, states[graded.ID])
	require.Equal(t, dto.GradingStateGrading, states[grading.ID])
	require.Equal(t, dto.GradingStateFailed, states[failed.ID])
	require.Equal(t, dto.GradingStatePending, states[pending.ID])

	own, err := svc.List(context.Background(), env.studentActor(), dto.SubmissionFilter{StudentID: &classmate.ID})
	require.NoError(t, err)
	require.Len(t, own, 2)
	for _, item := range own {
		require.Equal(t, env.student.ID, item.StudentID)
	}

	foreign, err := svc.List(context.Background(), env.otherActor(), dto.SubmissionFilter{})
	require.NoError(t, err)
	require.Empty(t, foreign)

	_, err = svc.Get(context.Background(), env.studentActor(), failed.ID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSubmissionOpenFile(t *testing.T) {
	env, svc := newTestSubmissionService(t, nil)
	classmate := env.createUser(t, "Classmate", "classmate@example.com", models.RoleStudent)
	submission := env.addSubmission(t, env.student, "SELECT * FROM users;")

	for _, actor := range []Actor{env.studentActor(), env.teacherActor(), env.adminActor()} {
		file, err := svc.OpenFile(context.Background(), actor, submission.StoredFile)
		require.NoError(t, err)
		data, err := os.ReadFile(file.Path)
		require.NoError(t, err)
		require.Equal(t, "SELECT * FROM users;", string(data))
		require.Equal(t, "answer.txt", file.DownloadName)

		file.Release()
		require.NoFileExists(t, file.Path)
	}

	_, err := svc.OpenFile(context.Background(), Actor{ID: classmate.ID, Role: models.RoleStudent}, submission.StoredFile)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.OpenFile(context.Background(), env.otherActor(), submission.StoredFile)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.OpenFile(context.Background(), env.adminActor(), "../../etc/passwd")
	require.ErrorIs(t, err, ErrStoredFileNotFound)
}
