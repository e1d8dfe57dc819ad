package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chorepoints/models"
	"chorepoints/notify"
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

func (c *captureDispatcher) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// newTestDB opens an in-memory SQLite database. A single connection keeps the
// memory database alive and serializes access, so concurrent goroutines
// exercise the application-level races without tripping SQLite's write locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Family{},
		&models.User{},
		&models.Task{},
		&models.PointEntry{},
		&models.Negotiation{},
		&models.Reward{},
		&models.Redemption{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedFamily(t *testing.T, db *gorm.DB) (models.User, models.User, models.User) {
	t.Helper()
	family := models.Family{Name: "Testers", InviteCode: "TESTFAM1"}
	if err := db.Create(&family).Error; err != nil {
		t.Fatalf("seed family: %v", err)
	}
	parent := models.User{FamilyID: family.ID, Name: "Parent", Username: "parent1", Password: "x", Role: models.RoleParent}
	kidA := models.User{FamilyID: family.ID, Name: "Kid A", Username: "kida", Password: "x", Role: models.RoleKid}
	kidB := models.User{FamilyID: family.ID, Name: "Kid B", Username: "kidb", Password: "x", Role: models.RoleKid}
	for _, u := range []*models.User{&parent, &kidA, &kidB} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	return parent, kidA, kidB
}

// reloadTask reads the current row into a fresh struct. Reusing one dest
// across First calls would carry the previous primary key into the WHERE
// clause and silently return stale data.
func reloadTask(t *testing.T, db *gorm.DB, id uint) models.Task {
	t.Helper()
	var task models.Task
	if err := db.First(&task, id).Error; err != nil {
		t.Fatalf("reload task %d: %v", id, err)
	}
	return task
}

func newTemplate(parent, kid models.User, createdAt time.Time) models.Task {
	return models.Task{
		FamilyID:         parent.FamilyID,
		Title:            "Dishes",
		Points:           10,
		PenaltyPoints:    5,
		TaskType:         models.TaskTypeAssigned,
		AssigneeID:       &kid.ID,
		CreatedByID:      parent.ID,
		IsRecurring:      true,
		RecurringPattern: models.PatternDaily,
		RecurringTime:    "08:00",
		Enabled:          true,
		Status:           models.TaskStatusPending,
		CreatedAt:        createdAt,
	}
}

func TestEnsureCurrentInstancesIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	tpl := newTemplate(parent, kid, now.Add(-48*time.Hour))
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	sch := New(db, &captureDispatcher{})

	stats, err := sch.EnsureCurrentInstances(context.Background(), now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if stats.Generated != 2 {
		t.Fatalf("first run generated %d, want 2 (latest missed + current)", stats.Generated)
	}

	stats, err = sch.EnsureCurrentInstances(context.Background(), now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Generated != 0 {
		t.Fatalf("second run generated %d, want 0", stats.Generated)
	}

	var count int64
	if err := db.Model(&models.Task{}).Where("parent_task_id = ?", tpl.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("instance count = %d, want 2", count)
	}
}

func TestEnsureSkipsArchivedSlot(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	tpl := newTemplate(parent, kid, now.Add(-24*time.Hour))
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	sch := New(db, &captureDispatcher{})
	if _, err := sch.EnsureCurrentInstances(context.Background(), now); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	// Parent deletes today's instance.
	due := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	res := db.Model(&models.Task{}).
		Where("parent_task_id = ? AND due_date = ?", tpl.ID, due).
		Update("status", models.TaskStatusArchived)
	if res.RowsAffected != 1 {
		t.Fatalf("expected to archive one instance, got %d", res.RowsAffected)
	}

	// A later run must not resurrect the deliberately deleted slot.
	stats, err := sch.EnsureCurrentInstances(context.Background(), now)
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if stats.Generated != 0 {
		t.Fatalf("archived slot was refilled, generated=%d", stats.Generated)
	}
}

func TestPenaltyAppliedOnceAndFlooredAtZero(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	if err := db.Model(&models.User{}).Where("id = ?", kid.ID).Update("points", 3).Error; err != nil {
		t.Fatalf("set points: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tpl := newTemplate(parent, kid, now.Add(-72*time.Hour))
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	due := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	inst := models.Task{
		FamilyID:      parent.FamilyID,
		ParentTaskID:  &tpl.ID,
		Title:         tpl.Title,
		Points:        tpl.Points,
		PenaltyPoints: 5,
		TaskType:      models.TaskTypeAssigned,
		AssigneeID:    &kid.ID,
		CreatedByID:   parent.ID,
		Status:        models.TaskStatusPending,
		DueDate:       &due,
	}
	if err := db.Create(&inst).Error; err != nil {
		t.Fatalf("create instance: %v", err)
	}

	capture := &captureDispatcher{}
	sch := New(db, capture)

	stats, err := sch.ProcessOverduePenalties(context.Background(), now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if stats.Penalized != 1 {
		t.Fatalf("penalized = %d, want 1", stats.Penalized)
	}

	var after models.User
	if err := db.First(&after, kid.ID).Error; err != nil {
		t.Fatalf("load kid: %v", err)
	}
	if after.Points != 0 {
		t.Fatalf("points = %d, want 0 (floored, not negative)", after.Points)
	}

	var entry models.PointEntry
	if err := db.Where("user_id = ? AND kind = ?", kid.ID, models.EntryKindPenalty).First(&entry).Error; err != nil {
		t.Fatalf("load ledger entry: %v", err)
	}
	if entry.Delta != -3 {
		t.Fatalf("ledger delta = %d, want -3 (only what the balance allowed)", entry.Delta)
	}

	// The missed occurrence schedules the next one.
	var nextCount int64
	db.Model(&models.Task{}).
		Where("parent_task_id = ? AND due_date > ?", tpl.ID, now).
		Count(&nextCount)
	if nextCount != 1 {
		t.Fatalf("next instance count = %d, want 1", nextCount)
	}

	// Second run: nothing left to penalize.
	stats, err = sch.ProcessOverduePenalties(context.Background(), now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Penalized != 0 {
		t.Fatalf("second run penalized %d, want 0", stats.Penalized)
	}

	var entries int64
	db.Model(&models.PointEntry{}).Where("user_id = ? AND kind = ?", kid.ID, models.EntryKindPenalty).Count(&entries)
	if entries != 1 {
		t.Fatalf("penalty ledger rows = %d, want 1", entries)
	}
	if got := capture.count(notify.EventPenaltyApplied); got != 1 {
		t.Fatalf("penalty notifications = %d, want 1", got)
	}
}

func TestSequenceNumbersUniquePerTemplate(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	tpl := newTemplate(parent, kid, now.Add(-96*time.Hour))
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	sch := New(db, &captureDispatcher{})

	// A cron tick and penalty-chained refills can create different slots of
	// the same series at the same time. Each slot must still get its own
	// sequence number.
	slots := []time.Time{
		time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 8, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
	var wg sync.WaitGroup
	for _, due := range slots {
		wg.Add(1)
		go func(due time.Time) {
			defer wg.Done()
			if _, err := sch.createInstance(context.Background(), &tpl, due); err != nil {
				t.Errorf("slot %s: %v", due, err)
			}
		}(due)
	}
	wg.Wait()

	var instances []models.Task
	if err := db.Where("parent_task_id = ?", tpl.ID).Find(&instances).Error; err != nil {
		t.Fatalf("load instances: %v", err)
	}
	if len(instances) != len(slots) {
		t.Fatalf("instance count = %d, want %d", len(instances), len(slots))
	}
	seen := make(map[int]bool)
	for _, inst := range instances {
		if inst.SequenceNumber == 0 {
			t.Fatalf("instance %d has no sequence number", inst.ID)
		}
		if seen[inst.SequenceNumber] {
			t.Fatalf("duplicate sequence number %d", inst.SequenceNumber)
		}
		seen[inst.SequenceNumber] = true
	}
}

func TestRejectedAfterDeadlineIsExempt(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(-2 * time.Hour)
	inst := models.Task{
		FamilyID:              parent.FamilyID,
		Title:                 "Trash",
		Points:                5,
		PenaltyPoints:         2,
		TaskType:              models.TaskTypeAssigned,
		AssigneeID:            &kid.ID,
		CreatedByID:           parent.ID,
		Status:                models.TaskStatusRejected,
		DueDate:               &due,
		RejectedAfterDeadline: true,
	}
	if err := db.Create(&inst).Error; err != nil {
		t.Fatalf("create instance: %v", err)
	}

	sch := New(db, &captureDispatcher{})
	stats, err := sch.ProcessOverduePenalties(context.Background(), now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 0 {
		t.Fatalf("exempt instance was scanned, processed=%d", stats.Processed)
	}
}

func TestUnclaimedHangingInstanceIsNotPenalized(t *testing.T) {
	db := newTestDB(t)
	parent, _, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(-2 * time.Hour)
	inst := models.Task{
		FamilyID:           parent.FamilyID,
		Title:              "Rake leaves",
		Points:             10,
		PenaltyPoints:      4,
		TaskType:           models.TaskTypeHanging,
		CreatedByID:        parent.ID,
		Status:             models.TaskStatusPending,
		DueDate:            &due,
		AvailableForPickup: true,
	}
	if err := db.Create(&inst).Error; err != nil {
		t.Fatalf("create instance: %v", err)
	}

	sch := New(db, &captureDispatcher{})
	stats, err := sch.ProcessOverduePenalties(context.Background(), now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 0 {
		t.Fatalf("unassigned instance was scanned, processed=%d", stats.Processed)
	}

	// Nobody was penalized, so the at-most-once marker must stay clear.
	reloaded := reloadTask(t, db, inst.ID)
	if reloaded.PenalizedAt != nil {
		t.Fatal("penalized_at set without a deduction")
	}
	var entries int64
	db.Model(&models.PointEntry{}).Where("task_id = ?", inst.ID).Count(&entries)
	if entries != 0 {
		t.Fatalf("ledger rows = %d, want 0", entries)
	}
}

func TestConcurrentPickupHasSingleWinner(t *testing.T) {
	db := newTestDB(t)
	parent, _, _ := seedFamily(t, db)

	task := models.Task{
		FamilyID:           parent.FamilyID,
		Title:              "Wash the car",
		Points:             20,
		TaskType:           models.TaskTypeHanging,
		CreatedByID:        parent.ID,
		Status:             models.TaskStatusPending,
		AvailableForPickup: true,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Extra kid accounts to race with.
	var claimants []uint
	for i := 0; i < 8; i++ {
		kid := models.User{FamilyID: parent.FamilyID, Name: "Racer", Username: "racer" + string(rune('a'+i)), Password: "x", Role: models.RoleKid}
		if err := db.Create(&kid).Error; err != nil {
			t.Fatalf("seed racer: %v", err)
		}
		claimants = append(claimants, kid.ID)
	}

	sch := New(db, &captureDispatcher{})

	var wg sync.WaitGroup
	results := make([]error, len(claimants))
	for i, id := range claimants {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, err := sch.PickupHangingTask(context.Background(), task.ID, id)
			results[i] = err
		}(i, id)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyClaimed):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 || losers != len(claimants)-1 {
		t.Fatalf("winners=%d losers=%d, want exactly one winner", winners, losers)
	}

	var final models.Task
	if err := db.First(&final, task.ID).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	if final.AssigneeID == nil || final.AvailableForPickup || final.Status != models.TaskStatusInProgress {
		t.Fatalf("claimed task in wrong state: %+v", final)
	}
}

func TestScopedEditRejectsFinishedInstance(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	inst := models.Task{
		FamilyID:    parent.FamilyID,
		Title:       "Homework",
		Points:      5,
		TaskType:    models.TaskTypeAssigned,
		AssigneeID:  &kid.ID,
		CreatedByID: parent.ID,
		Status:      models.TaskStatusApproved,
	}
	if err := db.Create(&inst).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	sch := New(db, &captureDispatcher{})
	title := "Changed"
	err := sch.ApplyScopedEdit(context.Background(), inst.ID, ScopeSingle, TaskEdit{Title: &title}, time.Now())
	if !errors.Is(err, ErrNotEditable) {
		t.Fatalf("got %v, want ErrNotEditable", err)
	}
}

func TestSeriesEditPropagatesToUnfinishedOnly(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	tpl := newTemplate(parent, kid, now.Add(-48*time.Hour))
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	mk := func(due time.Time, status string) models.Task {
		inst := models.Task{
			FamilyID: parent.FamilyID, ParentTaskID: &tpl.ID, Title: tpl.Title,
			Points: tpl.Points, TaskType: tpl.TaskType, AssigneeID: &kid.ID,
			CreatedByID: parent.ID, Status: status, DueDate: &due,
		}
		if err := db.Create(&inst).Error; err != nil {
			t.Fatalf("create instance: %v", err)
		}
		return inst
	}
	done := mk(now.Add(-26*time.Hour), models.TaskStatusApproved)
	open := mk(now.Add(-2*time.Hour), models.TaskStatusPending)

	sch := New(db, &captureDispatcher{})
	points := 25
	if err := sch.ApplyScopedEdit(context.Background(), open.ID, ScopeSeries, TaskEdit{Points: &points}, now); err != nil {
		t.Fatalf("series edit: %v", err)
	}

	if got := reloadTask(t, db, tpl.ID); got.Points != 25 {
		t.Fatalf("template points = %d, want 25", got.Points)
	}
	if got := reloadTask(t, db, open.ID); got.Points != 25 {
		t.Fatalf("open instance points = %d, want 25", got.Points)
	}
	if got := reloadTask(t, db, done.ID); got.Points != tpl.Points {
		t.Fatalf("approved instance points changed to %d; history must be immutable", got.Points)
	}
}

func TestSeriesDeleteArchivesOpenKeepsHistory(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	tpl := newTemplate(parent, kid, now.Add(-48*time.Hour))
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	dueOld := now.Add(-26 * time.Hour)
	dueNew := now.Add(-2 * time.Hour)
	approved := models.Task{FamilyID: parent.FamilyID, ParentTaskID: &tpl.ID, Title: tpl.Title,
		Points: 10, TaskType: tpl.TaskType, AssigneeID: &kid.ID, CreatedByID: parent.ID,
		Status: models.TaskStatusApproved, DueDate: &dueOld}
	pending := models.Task{FamilyID: parent.FamilyID, ParentTaskID: &tpl.ID, Title: tpl.Title,
		Points: 10, TaskType: tpl.TaskType, AssigneeID: &kid.ID, CreatedByID: parent.ID,
		Status: models.TaskStatusPending, DueDate: &dueNew}
	if err := db.Create(&approved).Error; err != nil {
		t.Fatalf("create approved: %v", err)
	}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatalf("create pending: %v", err)
	}

	sch := New(db, &captureDispatcher{})
	if err := sch.ApplyScopedDelete(context.Background(), tpl.ID, ScopeSeries); err != nil {
		t.Fatalf("series delete: %v", err)
	}

	if got := reloadTask(t, db, tpl.ID); got.Enabled || got.Status != models.TaskStatusArchived {
		t.Fatalf("template not retired: %+v", got)
	}
	if got := reloadTask(t, db, pending.ID); got.Status != models.TaskStatusArchived {
		t.Fatalf("pending instance status = %s, want archived", got.Status)
	}
	if got := reloadTask(t, db, approved.ID); got.Status != models.TaskStatusApproved {
		t.Fatalf("approved instance status = %s, history must survive", got.Status)
	}

	// The retired template generates nothing.
	stats, err := sch.EnsureCurrentInstances(context.Background(), now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("run after delete: %v", err)
	}
	if stats.Generated != 0 {
		t.Fatalf("retired template generated %d instances", stats.Generated)
	}
}

func TestSingleDeleteDisablesTemplateOnly(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	tpl := newTemplate(parent, kid, now.Add(-48*time.Hour))
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	due := now.Add(-2 * time.Hour)
	pending := models.Task{FamilyID: parent.FamilyID, ParentTaskID: &tpl.ID, Title: tpl.Title,
		Points: 10, TaskType: tpl.TaskType, AssigneeID: &kid.ID, CreatedByID: parent.ID,
		Status: models.TaskStatusPending, DueDate: &due}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatalf("create pending: %v", err)
	}

	sch := New(db, &captureDispatcher{})
	if err := sch.ApplyScopedDelete(context.Background(), tpl.ID, ScopeSingle); err != nil {
		t.Fatalf("single delete: %v", err)
	}

	if got := reloadTask(t, db, tpl.ID); got.Enabled {
		t.Fatal("template still enabled")
	}
	if got := reloadTask(t, db, pending.ID); got.Status != models.TaskStatusPending {
		t.Fatalf("existing instance was touched: %s", got.Status)
	}
}

func TestNegotiationAcceptTransfersTaskOnce(t *testing.T) {
	db := newTestDB(t)
	parent, kidA, kidB := seedFamily(t, db)

	task := models.Task{
		FamilyID: parent.FamilyID, Title: "Mow the lawn", Points: 20,
		TaskType: models.TaskTypeAssigned, AssigneeID: &kidA.ID,
		CreatedByID: parent.ID, Status: models.TaskStatusPending,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sch := New(db, &captureDispatcher{})

	n, err := sch.CreateSplitOffer(context.Background(), task.ID, kidA.ID, kidB.ID, 8, now)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if _, err := sch.AcceptNegotiation(context.Background(), n.Code, kidB.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var reloaded models.Task
	db.First(&reloaded, task.ID)
	if reloaded.AssigneeID == nil || *reloaded.AssigneeID != kidB.ID {
		t.Fatalf("task not transferred: %+v", reloaded.AssigneeID)
	}

	// Second accept of the same offer fails.
	if _, err := sch.AcceptNegotiation(context.Background(), n.Code, kidB.ID, now.Add(2*time.Hour)); !errors.Is(err, ErrNegotiationClosed) {
		t.Fatalf("got %v, want ErrNegotiationClosed", err)
	}

	split, err := sch.AcceptedSplit(context.Background(), task.ID)
	if err != nil || split == nil {
		t.Fatalf("accepted split not found: %v", err)
	}
	if split.SplitPoints != 8 || split.FromUserID != kidA.ID {
		t.Fatalf("wrong split: %+v", split)
	}
}

func TestNegotiationExpiresAtReadTime(t *testing.T) {
	db := newTestDB(t)
	parent, kidA, kidB := seedFamily(t, db)

	task := models.Task{
		FamilyID: parent.FamilyID, Title: "Vacuum", Points: 10,
		TaskType: models.TaskTypeAssigned, AssigneeID: &kidA.ID,
		CreatedByID: parent.ID, Status: models.TaskStatusPending,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sch := New(db, &captureDispatcher{})

	n, err := sch.CreateSplitOffer(context.Background(), task.ID, kidA.ID, kidB.ID, 0, now)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	late := now.Add(DefaultNegotiationTTL + time.Minute)
	if _, err := sch.AcceptNegotiation(context.Background(), n.Code, kidB.ID, late); !errors.Is(err, ErrNegotiationClosed) {
		t.Fatalf("got %v, want ErrNegotiationClosed", err)
	}

	var reloaded models.Negotiation
	db.Where("code = ?", n.Code).First(&reloaded)
	if reloaded.Status != models.NegotiationExpired {
		t.Fatalf("status = %s, want expired after lazy expiry", reloaded.Status)
	}

	var taskAfter models.Task
	db.First(&taskAfter, task.ID)
	if taskAfter.AssigneeID == nil || *taskAfter.AssigneeID != kidA.ID {
		t.Fatal("expired offer must not move the task")
	}
}

func TestRenegotiationAcceptUpdatesPoints(t *testing.T) {
	db := newTestDB(t)
	parent, kidA, _ := seedFamily(t, db)

	task := models.Task{
		FamilyID: parent.FamilyID, Title: "Clean garage", Points: 10,
		TaskType: models.TaskTypeAssigned, AssigneeID: &kidA.ID,
		CreatedByID: parent.ID, Status: models.TaskStatusPending,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sch := New(db, &captureDispatcher{})

	n, err := sch.CreateRenegotiation(context.Background(), task.ID, kidA.ID, parent.ID, 15, now)
	if err != nil {
		t.Fatalf("create renegotiation: %v", err)
	}
	if _, err := sch.AcceptNegotiation(context.Background(), n.Code, parent.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var reloaded models.Task
	db.First(&reloaded, task.ID)
	if reloaded.Points != 15 {
		t.Fatalf("points = %d, want 15", reloaded.Points)
	}
	if reloaded.AssigneeID == nil || *reloaded.AssigneeID != kidA.ID {
		t.Fatal("renegotiation must not change the assignee")
	}
}

func TestCatchUpFamilyScopesToFamily(t *testing.T) {
	db := newTestDB(t)
	parent, kid, _ := seedFamily(t, db)

	other := models.Family{Name: "Others", InviteCode: "OTHERFAM"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("seed other family: %v", err)
	}
	otherParent := models.User{FamilyID: other.ID, Name: "Other", Username: "otherp", Password: "x", Role: models.RoleParent}
	otherKid := models.User{FamilyID: other.ID, Name: "Other Kid", Username: "otherk", Password: "x", Role: models.RoleKid}
	if err := db.Create(&otherParent).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Create(&otherKid).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	mine := newTemplate(parent, kid, now.Add(-24*time.Hour))
	theirs := newTemplate(otherParent, otherKid, now.Add(-24*time.Hour))
	theirs.FamilyID = other.ID
	if err := db.Create(&mine).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	if err := db.Create(&theirs).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	sch := New(db, &captureDispatcher{})
	if _, err := sch.CatchUpFamily(context.Background(), parent.FamilyID, now); err != nil {
		t.Fatalf("catch up: %v", err)
	}

	var mineCount, theirsCount int64
	db.Model(&models.Task{}).Where("parent_task_id = ?", mine.ID).Count(&mineCount)
	db.Model(&models.Task{}).Where("parent_task_id = ?", theirs.ID).Count(&theirsCount)
	if mineCount == 0 {
		t.Fatal("own family's template was not materialized")
	}
	if theirsCount != 0 {
		t.Fatalf("catch-up leaked into another family: %d instances", theirsCount)
	}
}
