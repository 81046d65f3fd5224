package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zer0phucks/devconsul/scheduling/application"
	"github.com/Zer0phucks/devconsul/scheduling/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupScheduleAPI(t *testing.T) (*fiber.App, *application.QueueService) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open("file:"+dbPath+"?_journal_mode=WAL&_foreign_keys=on"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := repository.NewScheduleGormRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	metricsRepo := repository.NewMetricsGormRepository(db)
	require.NoError(t, metricsRepo.Init(context.Background()))

	metrics := application.NewMetricsService(repo, metricsRepo, nil)
	queue := application.NewQueueService(repo, metrics, nil, nil, application.QueueDefaults{
		Priority:          5,
		MaxRetries:        3,
		RetryDelaySeconds: 300,
	}, "srv-test")

	app := fiber.New()
	InitRestSchedule(app, queue, metrics)
	return app, queue
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var envelope map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	resp.Body.Close()
	return resp, envelope
}

func TestCreateSchedule_E2E(t *testing.T) {
	app, _ := setupScheduleAPI(t)

	resp, envelope := doJSON(t, app, http.MethodPost, "/schedules/", map[string]any{
		"content_id":    "content-1",
		"project_id":    "proj1",
		"scheduled_for": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"platforms":     []string{"log"},
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "CREATED", envelope["code"])

	results := envelope["results"].(map[string]any)
	assert.NotEmpty(t, results["id"])
	assert.Equal(t, "PENDING", results["queue_status"])
	assert.Equal(t, "SCHEDULED", results["status"])
	assert.EqualValues(t, 5, results["priority"])
}

func TestCreateSchedule_MissingFields(t *testing.T) {
	app, _ := setupScheduleAPI(t)

	resp, envelope := doJSON(t, app, http.MethodPost, "/schedules/", map[string]any{
		"content_id": "content-1",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", envelope["code"])
}

func TestGetSchedule_NotFound(t *testing.T) {
	app, _ := setupScheduleAPI(t)

	resp, envelope := doJSON(t, app, http.MethodGet, "/schedules/missing-id", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", envelope["code"])
}

func TestCancelSchedule_ConflictOnTerminalRow(t *testing.T) {
	app, queue := setupScheduleAPI(t)
	ctx := context.Background()

	item, err := queue.Enqueue(ctx, "content-1", "proj1", time.Now().UTC().Add(time.Hour), application.EnqueueOptions{})
	require.NoError(t, err)
	require.NoError(t, queue.CancelSchedule(ctx, item.ID))

	resp, envelope := doJSON(t, app, http.MethodPost, "/schedules/"+item.ID+"/cancel", nil)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", envelope["code"])
}

func TestBatchCancel_ReportsCounts(t *testing.T) {
	app, queue := setupScheduleAPI(t)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		item, err := queue.Enqueue(ctx, fmt.Sprintf("content-%d", i), "proj1", time.Now().UTC().Add(time.Hour), application.EnqueueOptions{})
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}
	require.NoError(t, queue.CancelSchedule(ctx, ids[0]))

	resp, envelope := doJSON(t, app, http.MethodPost, "/schedules/batch/cancel", map[string]any{"ids": ids})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := envelope["results"].(map[string]any)
	assert.EqualValues(t, 3, results["requested"])
	assert.EqualValues(t, 2, results["affected"])
}

func TestDequeueEndpoint_ClaimsDueItems(t *testing.T) {
	app, queue := setupScheduleAPI(t)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "due", "proj1", time.Now().UTC().Add(-time.Minute), application.EnqueueOptions{})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, "future", "proj1", time.Now().UTC().Add(time.Hour), application.EnqueueOptions{})
	require.NoError(t, err)

	resp, envelope := doJSON(t, app, http.MethodPost, "/projects/proj1/dequeue", map[string]any{"limit": 10})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := envelope["results"].([]any)
	require.Len(t, results, 1)
	claimed := results[0].(map[string]any)
	assert.Equal(t, "QUEUED", claimed["queue_status"])
}

func TestQueueStatsEndpoint(t *testing.T) {
	app, queue := setupScheduleAPI(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := queue.Enqueue(ctx, "content", "proj1", time.Now().UTC().Add(time.Hour), application.EnqueueOptions{})
		require.NoError(t, err)
	}

	resp, envelope := doJSON(t, app, http.MethodGet, "/projects/proj1/queue/stats", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := envelope["results"].(map[string]any)
	assert.EqualValues(t, 2, results["queue_length"])
}
