package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"librarycatalog/internal/database"
	"librarycatalog/internal/logging"
	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
	"librarycatalog/internal/services"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logging.Init(logging.Config{Level: "disabled"})
	os.Exit(m.Run())
}

var now = time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T, ping Pinger) *testServer {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := func() time.Time { return now }
	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	checkoutRepo := repositories.NewCheckoutRepository(db)
	svc := services.NewLibraryService(db, userRepo, bookRepo, checkoutRepo,
		services.WithClock(clock), services.WithBcryptCost(bcrypt.MinCost))
	discovery := services.NewDiscoveryService(db, bookRepo, checkoutRepo, services.WithClock(clock))

	if ping == nil {
		ping = func(context.Context) error { return nil }
	}
	r := gin.New()
	r.Use(logging.RequestLogger())
	RegisterRoutes(r, svc, discovery, ping)
	return &testServer{t: t, router: r, db: db}
}

func (s *testServer) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func (s *testServer) register(username string) uint {
	s.t.Helper()
	w, body := s.do(http.MethodPost, "/api/users", gin.H{"username": username, "password": "pw-" + username})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return uint(body["user_id"].(float64))
}

func (s *testServer) book(title, author string, year int) uint {
	s.t.Helper()
	b := &models.Book{Title: title, Author: author, YearPublished: &year}
	require.NoError(s.t, s.db.Create(b).Error)
	return b.BookID
}

func TestUserEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.register("alice")

	w, _ := s.do(http.MethodPost, "/api/users", gin.H{"username": "alice", "password": "x"})
	require.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(http.MethodPost, "/api/users", gin.H{"username": "bob"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body := s.do(http.MethodPost, "/api/users/login", gin.H{"username": "alice", "password": "pw-alice"})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, id, body["user_id"])

	w, _ = s.do(http.MethodPost, "/api/users/login", gin.H{"username": "alice", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(http.MethodGet, "/api/users/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", body["username"])
	require.NotContains(t, body, "password")

	w, _ = s.do(http.MethodGet, "/api/users/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodGet, "/api/users/42", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(http.MethodPut, "/api/users/1", gin.H{"username": "alicia", "password": "pw2"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alicia", body["username"])

	w, _ = s.do(http.MethodDelete, "/api/users/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodDelete, "/api/users/1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutAndReturnEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register("alice")
	bob := s.register("bob")
	book := s.book("Persuasion", "Jane Austen", 1817)

	w, body := s.do(http.MethodPost, "/api/checkouts", gin.H{"book_id": book, "user_id": alice})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	checkoutID := uint(body["checkout_id"].(float64))
	due := now.AddDate(0, 0, models.LoanPeriodDays).Format(time.RFC3339)
	require.Equal(t, due, body["due_date"])

	w, body = s.do(http.MethodPost, "/api/checkouts", gin.H{"book_id": book, "user_id": bob})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "Book is not available", body["error"])
	require.Equal(t, due, body["due_date"])

	w, _ = s.do(http.MethodPost, "/api/checkouts", gin.H{"book_id": book, "user_id": 999})
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodPost, "/api/checkouts", gin.H{"book_id": book})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(http.MethodGet, "/api/checkouts?user_id=1&active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["count"])

	w, _ = s.do(http.MethodGet, "/api/checkouts?active=maybe", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(http.MethodGet, "/api/checkouts/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Persuasion", body["title"])

	w, body = s.do(http.MethodDelete, "/api/checkouts/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, checkoutID, body["checkout_id"])
	require.Equal(t, now.Format(time.RFC3339), body["return_date"])

	w, _ = s.do(http.MethodDelete, "/api/checkouts/1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/checkouts/77", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(http.MethodGet, "/api/checkouts/user/1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["total"])
}

func TestBookEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.book("Sense and Sensibility", "Jane Austen", 1811)
	s.book("Pride and Prejudice", "Jane Austen", 1813)
	s.book("Ivanhoe", "Walter Scott", 1819)

	w, body := s.do(http.MethodGet, "/api/books?author=austen&sort_by=year&order=desc&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, body["total"])
	require.EqualValues(t, 1, body["limit"])
	require.EqualValues(t, 0, body["offset"])
	books := body["books"].([]interface{})
	require.Len(t, books, 1)
	require.Equal(t, "Pride and Prejudice", books[0].(map[string]interface{})["title"])

	w, _ = s.do(http.MethodGet, "/api/books?year=abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(http.MethodGet, "/api/books/search?q=ivan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["count"])

	w, _ = s.do(http.MethodGet, "/api/books/search", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(http.MethodGet, "/api/books/filters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["authors"], 2)

	w, body = s.do(http.MethodGet, "/api/books/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Ivanhoe", body["title"])
	require.Equal(t, false, body["is_booked"])

	w, _ = s.do(http.MethodGet, "/api/books/30", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(http.MethodPatch, "/api/books/3", gin.H{"genre": "Historical"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Historical", body["book"].(map[string]interface{})["genre"])

	w, _ = s.do(http.MethodPatch, "/api/books/3", gin.H{"is_booked": true})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPatch, "/api/books/3", `["not", "an", "object"]`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPatch, "/api/books/3", gin.H{"year_published": 1500})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHomepageEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register("alice")
	a := s.book("Emma", "Jane Austen", 1815)
	s.book("Mansfield Park", "Jane Austen", 1814)

	w, body := s.do(http.MethodGet, "/api/homepage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["trending"], 2)
	require.Empty(t, body["recommendations"])

	w, body = s.do(http.MethodPost, "/api/checkouts", gin.H{"book_id": a, "user_id": alice})
	require.Equal(t, http.StatusCreated, w.Code)

	w, body = s.do(http.MethodGet, "/api/homepage?user_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	trending := body["trending"].([]interface{})
	require.EqualValues(t, a, trending[0].(map[string]interface{})["book_id"])
	require.EqualValues(t, 1, trending[0].(map[string]interface{})["checkout_count"])
	rec := body["recommendations"].(map[string]interface{})
	require.Len(t, rec["by_author"], 1)
	require.Equal(t, []interface{}{float64(a)}, rec["seed_checkout_ids"])

	w, body = s.do(http.MethodGet, "/api/homepage/trending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["trending"], 2)

	w, body = s.do(http.MethodGet, "/api/homepage/recommendations/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rec = body["recommendations"].(map[string]interface{})
	require.Equal(t, services.NoHistoryMessage, rec["message"])
	require.Equal(t, []interface{}{}, rec["by_author"])

	w, _ = s.do(http.MethodGet, "/api/homepage?user_id=x", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	w, body := s.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["ok"])

	down := newTestServer(t, func(context.Context) error { return errors.New("connection refused") })
	w, body = down.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, false, body["ok"])
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, errors.New(`pq: relation "books" does not exist`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(logging.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, "req-123", w.Header().Get(logging.RequestIDHeader))

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, w.Header().Get(logging.RequestIDHeader))
}
