package api

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/entities"
	"lesson-worker/pkg/filestore"
	"lesson-worker/pkg/testdb"
	"lesson-worker/repository"
	"lesson-worker/service"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubQueue struct {
	mu       sync.Mutex
	messages []dto.PipelineMessage
}

func (q *stubQueue) Enqueue(_ context.Context, message dto.PipelineMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, message)
	return nil
}

type apiFixture struct {
	repo   repository.Repository
	queue  *stubQueue
	router *gin.Engine
	course *entities.Course
	unit   *entities.Unit
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.New(testdb.Open(t))
	store := filestore.New(afero.NewMemMapFs(), "/data/uploads")
	queue := &stubQueue{}
	lessons := service.NewLessons(repo, store, queue, func() time.Time { return time.Now().UTC() })
	h := NewHandler(lessons, service.NewQueries(repo), service.NewLearning(repo, nil))

	f := &apiFixture{
		repo:   repo,
		queue:  queue,
		router: NewRouter(h, nil, zerolog.Nop(), RouterConfig{}),
	}

	var course entities.Course
	f.doJSON(t, http.MethodPost, "/api/v1/courses", `{"title":"Everyday English"}`, http.StatusCreated, &course)
	f.course = &course
	var unit entities.Unit
	f.doJSON(t, http.MethodPost, "/api/v1/courses/"+course.ID.String()+"/units", `{"title":"Greetings"}`, http.StatusCreated, &unit)
	f.unit = &unit
	return f
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) doJSON(t *testing.T, method, path, body string, status int, out interface{}) {
	t.Helper()
	f.doJSONAs(t, "instructor-1", method, path, body, status, out)
}

// doJSONAs sends the request as user; an empty user sends no user header.
func (f *apiFixture) doJSONAs(t *testing.T, user, method, path, body string, status int, out interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(headerUserId, user)
	}
	w := f.do(req)
	require.Equal(t, status, w.Code, w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

func (f *apiFixture) upload(t *testing.T, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake video bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("title", "Saying hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/units/"+f.unit.ID.String()+"/lessons", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(req)
}

func (f *apiFixture) uploaded(t *testing.T) dto.TriggerResponse {
	t.Helper()
	w := f.upload(t, "hello.mp4")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp dto.TriggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestUploadAndStatus(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.uploaded(t)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, 0, resp.Generation)
	require.Len(t, f.queue.messages, 1)
	assert.Equal(t, resp.JobId, f.queue.messages[0].JobId)

	var status dto.LessonStatusResponse
	f.doJSON(t, http.MethodGet, "/api/v1/lessons/"+resp.LessonId.String()+"/status", "", http.StatusOK, &status)
	assert.Equal(t, "PENDING", status.ProcessingStatus)
	require.NotNil(t, status.LastEntry)
	assert.Equal(t, "INIT", status.LastEntry.StepName)

	var journal []dto.JournalEntry
	f.doJSON(t, http.MethodGet, "/api/v1/lessons/"+resp.LessonId.String()+"/journal", "", http.StatusOK, &journal)
	require.Len(t, journal, 1)
	assert.Equal(t, "hello.mp4", journal[0].Context["filename"])
}

func TestUploadRejectsUnsupportedFile(t *testing.T) {
	f := newAPIFixture(t)
	w := f.upload(t, "slides.pdf")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported")
	assert.Empty(t, f.queue.messages)
}

func TestProcessLesson(t *testing.T) {
	f := newAPIFixture(t)
	lesson := f.uploaded(t)
	path := "/api/v1/lessons/" + lesson.LessonId.String() + "/process"

	var resp dto.TriggerResponse
	f.doJSON(t, http.MethodPost, path, "", http.StatusAccepted, &resp)
	assert.Equal(t, 1, resp.Generation)

	require.NoError(t, f.repo.SetLessonState(context.Background(), lesson.LessonId, 1, constant.LessonProcessing, 30))
	var conflict dto.ErrorResponse
	f.doJSON(t, http.MethodPost, path, `{"force":false}`, http.StatusConflict, &conflict)
	assert.Equal(t, service.ErrLessonBusy.Error(), conflict.Error)

	f.doJSON(t, http.MethodPost, path, `{"force":true}`, http.StatusAccepted, &resp)
	assert.Equal(t, 2, resp.Generation)
	assert.Len(t, f.queue.messages, 3)
}

func TestLessonErrors(t *testing.T) {
	f := newAPIFixture(t)
	f.doJSON(t, http.MethodGet, "/api/v1/lessons/not-a-uuid/status", "", http.StatusBadRequest, nil)
	f.doJSON(t, http.MethodGet, "/api/v1/lessons/"+uuid.NewString()+"/status", "", http.StatusNotFound, nil)
	f.doJSON(t, http.MethodPost, "/api/v1/courses", `{"title":"   "}`, http.StatusBadRequest, nil)
	f.doJSON(t, http.MethodPost, "/api/v1/courses", `{}`, http.StatusBadRequest, nil)

	lesson := f.uploaded(t)
	f.doJSON(t, http.MethodDelete, "/api/v1/lessons/"+lesson.LessonId.String(), "", http.StatusNoContent, nil)
	f.doJSON(t, http.MethodGet, "/api/v1/lessons/"+lesson.LessonId.String()+"/journal", "", http.StatusNotFound, nil)
	f.doJSON(t, http.MethodPost, "/api/v1/lessons/"+lesson.LessonId.String()+"/process", "", http.StatusNotFound, nil)
}

func TestCaptionsAndTasks(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t)
	lesson := f.uploaded(t)
	stored, err := f.repo.FindLessonById(ctx, lesson.LessonId)
	require.NoError(t, err)
	videoId := *stored.VideoId

	require.NoError(t, f.repo.ReplaceSubtitles(ctx, videoId, []*entities.Subtitle{
		{VideoId: videoId, SequenceNumber: 1, StartTime: 0, EndTime: 1.5, OriginalText: "Hello."},
	}))
	require.NoError(t, f.repo.CreateTask(ctx, &entities.ProcessingTask{
		VideoId:  videoId,
		TaskType: constant.TaskTranslation,
		Status:   constant.TaskPending,
	}))

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/lessons/"+lesson.LessonId.String()+"/subtitle.vtt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/vtt; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "WEBVTT\n\n1\n00:00:00.000 --> 00:00:01.500\nHello.\n\n", w.Body.String())

	var tasks dto.TaskListResponse
	f.doJSON(t, http.MethodGet, "/api/v1/tasks?status=PENDING&video_id="+videoId.String(), "", http.StatusOK, &tasks)
	assert.EqualValues(t, 1, tasks.Total)
	assert.Equal(t, 20, tasks.Limit)
	require.Len(t, tasks.Items, 1)
	assert.Equal(t, "TRANSLATION", tasks.Items[0].TaskType)

	f.doJSON(t, http.MethodGet, "/api/v1/tasks?status=DONE", "", http.StatusBadRequest, nil)

	var progress dto.VideoProgressResponse
	f.doJSON(t, http.MethodGet, "/api/v1/videos/"+videoId.String()+"/progress", "", http.StatusOK, &progress)
	assert.Equal(t, 0, progress.Progress)
	require.Len(t, progress.Tasks, len(constant.TaskTypes))
	for i, taskType := range constant.TaskTypes {
		assert.Equal(t, string(taskType), progress.Tasks[i].Name)
		assert.Equal(t, "PENDING", progress.Tasks[i].Status)
		assert.Equal(t, 0, progress.Tasks[i].Progress)
	}
	assert.Equal(t, "TRANSLATION", progress.Tasks[2].Name)
}
