package testutils

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/library-server/internal/api"
	"github.com/rongwang/library-server/internal/models"
	"github.com/rongwang/library-server/internal/notify"
	"github.com/rongwang/library-server/internal/repository"
	"github.com/rongwang/library-server/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    service.Service
	Notifier   *notify.Recorder
}

// Catalog and users every test starts with
var (
	TestBooks = []models.Book{
		{BookID: 1, ISBN: "9780132350884", Authors: "Robert C. Martin", PublicationYear: 2008, Title: "Clean Code", Language: "en"},
		{BookID: 2, ISBN: "9780134685991", Authors: "Robert C. Martin", PublicationYear: 2017, Title: "Clean Architecture", Language: "en"},
		{BookID: 3, ISBN: "9780201633610", Authors: "Erich Gamma", PublicationYear: 1994, Title: "Design Patterns", Language: "en"},
	}
	TestUsers = []models.User{
		{UserName: "John", UserType: models.UserTypeUser},
		{UserName: "Anna", UserType: models.UserTypeStaff},
	}
)

// SetupTestContext creates a new test context backed by the memory store
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()
	ctx := context.Background()

	repo := repository.NewMemoryRepository()
	rec := &notify.Recorder{}
	svc := service.NewDefaultService(repo, rec, zerolog.Nop())

	_, err := svc.ReloadCatalog(ctx, TestBooks)
	require.NoError(t, err, "Failed to load test catalog")
	_, err = svc.ReloadUsers(ctx, TestUsers)
	require.NoError(t, err, "Failed to load test users")

	gin.SetMode(gin.TestMode)
	handler := api.NewHandler(svc, zerolog.Nop())
	router := api.NewRouter(handler, zerolog.Nop())

	return &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Notifier:   rec,
	}
}

// CleanupTestContext releases test resources
func CleanupTestContext(t *TestContext) {
	if t.Repository != nil {
		_ = t.Repository.Close()
	}
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// DecodeJSON unmarshals a response body into out
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
}
