package handlers_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shramik/internal/handlers"
	"github.com/example/shramik/internal/middleware"
	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/routes"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/testutil/memstore"
	"github.com/example/shramik/internal/utils"
)

const secret = "handler-secret"

type shiftAPI struct {
	app          *fiber.App
	store        *memstore.Store
	application  models.Application
	job          models.Job
	workerID     uuid.UUID
	contractorID uuid.UUID
}

func newShiftAPI(t *testing.T, codes ...string) *shiftAPI {
	t.Helper()

	store := memstore.New()
	audit := &memstore.AuditLog{}

	i := 0
	gen := func() (string, error) {
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}

	otps := services.NewOtpService(store, audit, services.WithCodeGenerator(gen))
	shifts := services.NewShiftService(store, audit, nil)
	ratings := services.NewRatingService(store, audit, false)

	api := &shiftAPI{store: store, workerID: uuid.New(), contractorID: uuid.New()}
	api.job = store.AddJob(models.Job{ContractorID: api.contractorID, Title: "Warehouse loading", Status: models.JobStatusOpen})
	api.application = store.AddApplication(models.Application{
		JobID:        api.job.ID,
		WorkerID:     api.workerID,
		ContractorID: api.contractorID,
		Status:       models.ApplicationStatusAccepted,
	})

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	routes.RegisterShifts(app.Group("", middleware.AuthMiddleware(secret)), handlers.NewShiftHandler(otps, shifts, ratings))
	api.app = app
	return api
}

func (a *shiftAPI) do(t *testing.T, method, path string, userID uuid.UUID, role string, body string) (int, map[string]any) {
	t.Helper()

	token, err := utils.GenerateToken(secret, userID, role, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func (a *shiftAPI) worker(t *testing.T, method, path, body string) (int, map[string]any) {
	return a.do(t, method, path, a.workerID, models.RoleWorker, body)
}

func (a *shiftAPI) appPath(suffix string) string {
	return "/applications/" + a.application.ID.String() + suffix
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error object: %v", body)
	return e["code"].(string)
}

func TestShiftFlowOverHTTP(t *testing.T) {
	api := newShiftAPI(t, "482913", "771204")

	status, body := api.worker(t, "POST", api.appPath("/shift-otps"), `{"type":"start"}`)
	require.Equal(t, fiber.StatusCreated, status)
	data := body["data"].(map[string]any)
	assert.NotContains(t, data, "code")
	assert.Equal(t, "start", data["type"])

	status, body = api.do(t, "GET", "/shift-otps/pending", api.contractorID, models.RoleContractor, "")
	require.Equal(t, fiber.StatusOK, status)
	pending := body["data"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, "482913", pending[0].(map[string]any)["code"])

	status, body = api.worker(t, "POST", api.appPath("/shift-otps/check"), `{"type":"start","code":"482913"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["valid"])

	status, body = api.worker(t, "POST", api.appPath("/shifts/start"), `{"code":"482913"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, models.ShiftStatusOngoing, body["data"].(map[string]any)["status"])

	status, body = api.worker(t, "POST", api.appPath("/shifts/start"), `{"code":"482913"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "otp_invalid", errorCode(t, body))

	status, _ = api.worker(t, "POST", api.appPath("/shift-otps"), `{"type":"start"}`)
	require.Equal(t, fiber.StatusCreated, status)
	status, body = api.worker(t, "POST", api.appPath("/shifts/start"), `{"code":"771204"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "shift_already_ongoing", errorCode(t, body))

	status, _ = api.worker(t, "POST", api.appPath("/shift-otps"), `{"type":"end"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body = api.worker(t, "POST", api.appPath("/shifts/end"), `{"code":"771204"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, models.ShiftStatusCompleted, body["data"].(map[string]any)["status"])

	status, body = api.worker(t, "GET", api.appPath("/shifts"), "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"].([]any), 1)
}

func TestShiftErrorsOverHTTP(t *testing.T) {
	t.Run("wrong code", func(t *testing.T) {
		api := newShiftAPI(t, "482913")
		api.worker(t, "POST", api.appPath("/shift-otps"), `{"type":"start"}`)

		status, body := api.worker(t, "POST", api.appPath("/shifts/start"), `{"code":"000000"}`)
		assert.Equal(t, fiber.StatusUnprocessableEntity, status)
		assert.Equal(t, "otp_invalid", errorCode(t, body))
		assert.Empty(t, api.store.ShiftLogs())
	})

	t.Run("end without active shift", func(t *testing.T) {
		api := newShiftAPI(t, "482913")

		status, body := api.worker(t, "POST", api.appPath("/shifts/end"), `{"code":"482913"}`)
		assert.Equal(t, fiber.StatusConflict, status)
		assert.Equal(t, "no_active_shift", errorCode(t, body))
	})

	t.Run("another worker", func(t *testing.T) {
		api := newShiftAPI(t, "482913")

		status, body := api.do(t, "POST", api.appPath("/shift-otps"), uuid.New(), models.RoleWorker, `{"type":"start"}`)
		assert.Equal(t, fiber.StatusForbidden, status)
		assert.Equal(t, "forbidden", errorCode(t, body))
	})

	t.Run("unknown application", func(t *testing.T) {
		api := newShiftAPI(t, "482913")

		status, body := api.worker(t, "POST", "/applications/"+uuid.NewString()+"/shift-otps", `{"type":"start"}`)
		assert.Equal(t, fiber.StatusNotFound, status)
		assert.Equal(t, "not_found", errorCode(t, body))
	})

	t.Run("bad type", func(t *testing.T) {
		api := newShiftAPI(t, "482913")

		status, body := api.worker(t, "POST", api.appPath("/shift-otps"), `{"type":"lunch"}`)
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "bad_request", errorCode(t, body))
	})

	t.Run("contractor cannot start", func(t *testing.T) {
		api := newShiftAPI(t, "482913")

		status, _ := api.do(t, "POST", api.appPath("/shifts/start"), api.contractorID, models.RoleContractor, `{"code":"482913"}`)
		assert.Equal(t, fiber.StatusForbidden, status)
	})
}

func TestSubmitRatingOverHTTP(t *testing.T) {
	api := newShiftAPI(t, "482913")

	body := `{"job_id":"` + api.job.ID.String() + `","rated_id":"` + api.contractorID.String() + `","score":5,"review":"  fair pay  "}`
	status, resp := api.worker(t, "POST", "/ratings", body)
	require.Equal(t, fiber.StatusCreated, status)

	rating := resp["data"].(map[string]any)["rating"].(map[string]any)
	assert.Equal(t, "fair pay", rating["review"])

	status, resp = api.worker(t, "POST", "/ratings", `{"job_id":"`+api.job.ID.String()+`","rated_id":"`+api.workerID.String()+`","score":4}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation_error", errorCode(t, resp))
}
