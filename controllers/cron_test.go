package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chorepoints/database"
	"chorepoints/models"
)

func setupCronTest(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.Family{}, &models.User{}, &models.Task{},
		&models.PointEntry{}, &models.Negotiation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.DB = db
	os.Setenv("CRON_KEY", "test-cron-key")
}

func TestCronEndpointsRequireKey(t *testing.T) {
	setupCronTest(t)

	for _, handler := range []http.HandlerFunc{CronEnsureInstancesHandler, CronOverduePenaltiesHandler} {
		r := httptest.NewRequest(http.MethodPost, "/api/cron/x", nil)
		w := httptest.NewRecorder()
		handler(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("missing key: got %d, want 401", w.Code)
		}

		r = httptest.NewRequest(http.MethodPost, "/api/cron/x", nil)
		r.Header.Set("X-CRON-KEY", "wrong")
		w = httptest.NewRecorder()
		handler(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("wrong key: got %d, want 401", w.Code)
		}
	}
}

func TestCronEnsureInstancesRuns(t *testing.T) {
	setupCronTest(t)

	r := httptest.NewRequest(http.MethodPost, "/api/cron/ensure-instances", nil)
	r.Header.Set("X-CRON-KEY", "test-cron-key")
	w := httptest.NewRecorder()
	CronEnsureInstancesHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Processed int `json:"processed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success response")
	}
}

func TestCronOverduePenaltiesRuns(t *testing.T) {
	setupCronTest(t)

	r := httptest.NewRequest(http.MethodPost, "/api/cron/overdue-penalties", nil)
	r.Header.Set("X-CRON-KEY", "test-cron-key")
	w := httptest.NewRecorder()
	CronOverduePenaltiesHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", w.Code, w.Body.String())
	}
}
