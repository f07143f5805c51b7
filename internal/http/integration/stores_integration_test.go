package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/geocoder89/taskhub/internal/auth"
	"github.com/geocoder89/taskhub/internal/db"
	apphttp "github.com/geocoder89/taskhub/internal/http"
	"github.com/geocoder89/taskhub/internal/observability"
	"github.com/geocoder89/taskhub/internal/repo/mongodb"
	"github.com/geocoder89/taskhub/internal/repo/postgres"
	"github.com/geocoder89/taskhub/internal/security"
	"github.com/geocoder89/taskhub/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

const testDatabase = "taskhub_test"

// setupStoresRouter wires the router against real Postgres and MongoDB.
// Set TEST_DB_DSN and TEST_MONGO_URI to run these tests.
func setupStoresRouter(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	mongoURI := os.Getenv("TEST_MONGO_URI")
	if dsn == "" || mongoURI == "" {
		t.Skip("TEST_DB_DSN and TEST_MONGO_URI not set")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client, err := mongodb.Connect(ctx, mongoURI)
	if err != nil {
		t.Fatalf("mongo connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	resetStores(t, pool, client.Database(testDatabase).Collection("tasks"))

	prom := observability.NewProm(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	users := postgres.NewUsersRepo(pool, prom)
	tasks := mongodb.NewTasksRepo(client, testDatabase, prom)
	if err := tasks.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	hasher, err := security.NewHasher(bcrypt.MinCost, 2)
	if err != nil {
		t.Fatal(err)
	}
	tokens := auth.NewManager("integration-secret-with-enough-bytes", time.Hour, 24*time.Hour)

	return apphttp.NewRouter(apphttp.Deps{
		Log:            logger,
		Prom:           prom,
		Env:            "test",
		RequestTimeout: 5 * time.Second,
		AuthRateLimit:  1000,
		AuthRateWindow: time.Minute,
		Tokens:         tokens,
		AuthSvc:        service.NewAuthService(users, hasher, tokens, logger),
		TaskSvc:        service.NewTaskService(tasks, logger),
	})
}

func resetStores(t *testing.T, pool *pgxpool.Pool, tasks *mongo.Collection) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}

	if _, err := tasks.DeleteMany(context.Background(), bson.M{}); err != nil {
		t.Fatalf("failed to clear tasks: %v", err)
	}
}

func doRequest(router http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type taskResponse struct {
	ID          string `json:"id"`
	UserID      int64  `json:"userId"`
	IsCompleted bool   `json:"isCompleted"`
}

func TestStoresIntegration_Register_Login_Refresh(t *testing.T) {
	router := setupStoresRouter(t)

	body := `{"email":"Sam@Example.com","password":"Passw0rd!","name":"Sam Doe"}`

	w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	// same address in another case hits the unique index
	w = doRequest(router, http.MethodPost, "/api/v1/auth/register", "", `{"email":"sam@example.com","password":"Passw0rd!","name":"Sam Doe"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register got status %d, want %d", w.Code, http.StatusConflict)
	}

	w = doRequest(router, http.MethodPost, "/api/v1/auth/login", "", `{"email":"SAM@example.com","password":"Passw0rd!"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	var login tokenResponse
	mustReadJSON(t, w, &login)

	w = doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", `{"refreshToken":"`+login.RefreshToken+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/api/v1/auth/login", "", `{"email":"sam@example.com","password":"wrong-one"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login(invalid creds) got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestStoresIntegration_TaskOwnership(t *testing.T) {
	router := setupStoresRouter(t)

	var owner, other tokenResponse

	w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", `{"email":"owner@example.com","password":"Passw0rd!","name":"Owner"}`)
	mustReadJSON(t, w, &owner)
	w = doRequest(router, http.MethodPost, "/api/v1/auth/register", "", `{"email":"other@example.com","password":"Passw0rd!","name":"Other"}`)
	mustReadJSON(t, w, &other)

	w = doRequest(router, http.MethodPost, "/api/v1/tasks", owner.AccessToken,
		`{"title":"Write report","estimatedDate":"2025-03-10T09:00:00Z","subTasks":[{"title":"outline"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created taskResponse
	mustReadJSON(t, w, &created)
	path := "/api/v1/tasks/" + created.ID

	if w := doRequest(router, http.MethodGet, path, other.AccessToken, ""); w.Code != http.StatusForbidden {
		t.Fatalf("foreign get got status %d, want %d", w.Code, http.StatusForbidden)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/tasks?from=2025-03-01&to=2025-03-31&status=false", owner.AccessToken, "")
	var listed []taskResponse
	mustReadJSON(t, w, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected listing %+v", listed)
	}

	w = doRequest(router, http.MethodPatch, path, owner.AccessToken, `{"isCompleted":true}`)
	var updated taskResponse
	mustReadJSON(t, w, &updated)
	if !updated.IsCompleted {
		t.Fatalf("expected completed task, got %+v", updated)
	}

	w = doRequest(router, http.MethodPatch, path, owner.AccessToken, `{"estimatedDate":null}`)
	if w.Code != http.StatusOK {
		t.Fatalf("clear date got status %d, body=%s", w.Code, w.Body.String())
	}
	w = doRequest(router, http.MethodGet, "/api/v1/tasks?scheduled=false", owner.AccessToken, "")
	listed = nil
	mustReadJSON(t, w, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("cleared task not listed as unscheduled: %+v", listed)
	}

	if w := doRequest(router, http.MethodDelete, path, owner.AccessToken, ""); w.Code != http.StatusOK {
		t.Fatalf("delete got status %d, want %d", w.Code, http.StatusOK)
	}
	if w := doRequest(router, http.MethodGet, path, owner.AccessToken, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete got status %d, want %d", w.Code, http.StatusNotFound)
	}
}
