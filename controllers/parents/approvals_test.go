package parents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chorepoints/database"
	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/utils"
)

// captureDispatcher records events instead of delivering them.
type captureDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureDispatcher) Dispatch(ev notify.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *captureDispatcher) byKind(kind string) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func setupDB(t *testing.T) *gorm.DB {
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
		&models.Reward{}, &models.Redemption{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.DB = db
	return db
}

func asUser(r *http.Request, u models.User) *http.Request {
	ctx := context.WithValue(r.Context(), utils.UserIDKey, u.ID)
	ctx = context.WithValue(ctx, utils.UserRoleKey, u.Role)
	ctx = context.WithValue(ctx, utils.FamilyIDKey, u.FamilyID)
	return r.WithContext(ctx)
}

func TestApproveCreditsAndHonorsSplit(t *testing.T) {
	db := setupDB(t)

	capture := &captureDispatcher{}
	notify.SetDefault(capture)
	t.Cleanup(func() { notify.SetDefault(notify.LogDispatcher{}) })

	family := models.Family{Name: "Testers", InviteCode: "APPROVE1"}
	if err := db.Create(&family).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	parent := models.User{FamilyID: family.ID, Name: "P", Username: "p1", Password: "x", Role: models.RoleParent}
	kidA := models.User{FamilyID: family.ID, Name: "A", Username: "a1", Password: "x", Role: models.RoleKid}
	kidB := models.User{FamilyID: family.ID, Name: "B", Username: "b1", Password: "x", Role: models.RoleKid}
	for _, u := range []*models.User{&parent, &kidA, &kidB} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// kidA offered the task to kidB for 8 of its 20 points; kidB finished it.
	task := models.Task{
		FamilyID: family.ID, Title: "Mow the lawn", Points: 20,
		TaskType: models.TaskTypeAssigned, AssigneeID: &kidB.ID,
		CreatedByID: parent.ID, Status: models.TaskStatusCompleted,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
	split := models.Negotiation{
		Code: "split-code-1", TaskID: task.ID,
		FromUserID: kidA.ID, ToUserID: kidB.ID,
		Kind: models.NegotiationSiblingSplit, SplitPoints: 8,
		Status: models.NegotiationAccepted, ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(&split).Error; err != nil {
		t.Fatalf("seed negotiation: %v", err)
	}

	approve := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/parents/tasks/"+strconv.Itoa(int(task.ID))+"/approve", nil)
		r = mux.SetURLVars(r, map[string]string{"id": strconv.Itoa(int(task.ID))})
		r = asUser(r, parent)
		w := httptest.NewRecorder()
		ApproveTaskHandler(w, r)
		return w
	}

	if w := approve(); w.Code != http.StatusOK {
		t.Fatalf("approve: got %d: %s", w.Code, w.Body.String())
	}

	var a, b models.User
	db.First(&a, kidA.ID)
	db.First(&b, kidB.ID)
	if b.Points != 12 {
		t.Fatalf("doer points = %d, want 12 (20 minus the 8-point split)", b.Points)
	}
	if a.Points != 8 {
		t.Fatalf("offerer points = %d, want 8", a.Points)
	}

	var ledger int64
	db.Model(&models.PointEntry{}).Where("task_id = ?", task.ID).Count(&ledger)
	if ledger != 2 {
		t.Fatalf("ledger rows = %d, want 2", ledger)
	}

	// The notification reports the credited share, not the face value.
	approvals := capture.byKind(notify.EventTaskApproved)
	if len(approvals) != 1 {
		t.Fatalf("approval notifications = %d, want 1", len(approvals))
	}
	if ev := approvals[0]; ev.UserID != kidB.ID || !strings.Contains(ev.Message, "+12 points") {
		t.Fatalf("approval notification = %+v, want +12 points for the doer", ev)
	}

	// A double-submit must not credit twice.
	if w := approve(); w.Code != http.StatusConflict {
		t.Fatalf("second approve: got %d, want 409", w.Code)
	}
	var after models.User
	if err := db.First(&after, kidB.ID).Error; err != nil {
		t.Fatalf("reload doer: %v", err)
	}
	if after.Points != 12 {
		t.Fatalf("double approve changed balance to %d", after.Points)
	}
}

func TestRejectAfterDeadlineSetsExemption(t *testing.T) {
	db := setupDB(t)

	family := models.Family{Name: "Testers", InviteCode: "REJECT01"}
	if err := db.Create(&family).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	parent := models.User{FamilyID: family.ID, Name: "P", Username: "p2", Password: "x", Role: models.RoleParent}
	kid := models.User{FamilyID: family.ID, Name: "K", Username: "k2", Password: "x", Role: models.RoleKid}
	for _, u := range []*models.User{&parent, &kid} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	due := time.Now().Add(-time.Hour)
	task := models.Task{
		FamilyID: family.ID, Title: "Dishes", Points: 10, PenaltyPoints: 3,
		TaskType: models.TaskTypeAssigned, AssigneeID: &kid.ID,
		CreatedByID: parent.ID, Status: models.TaskStatusCompleted, DueDate: &due,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/parents/tasks/"+strconv.Itoa(int(task.ID))+"/reject", nil)
	r = mux.SetURLVars(r, map[string]string{"id": strconv.Itoa(int(task.ID))})
	r = asUser(r, parent)
	w := httptest.NewRecorder()
	RejectTaskHandler(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: got %d: %s", w.Code, w.Body.String())
	}

	var reloaded models.Task
	db.First(&reloaded, task.ID)
	if reloaded.Status != models.TaskStatusRejected {
		t.Fatalf("status = %s, want rejected", reloaded.Status)
	}
	if !reloaded.RejectedAfterDeadline {
		t.Fatal("rejection past the deadline must set the penalty exemption")
	}
}
