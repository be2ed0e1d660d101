package quizforge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testQuiz(id, owner string) *Quiz {
	pq := sampleQuiz(2)
	return pq.ToQuiz(id, owner, "prompt for "+id, "")
}

func TestQuizCRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.CreateQuiz(ctx, testQuiz("q1", "alice")); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if err := db.CreateQuiz(ctx, testQuiz("q2", "alice")); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if err := db.CreateQuiz(ctx, testQuiz("q3", "bob")); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}

	got, err := db.GetQuiz(ctx, "q1")
	if err != nil {
		t.Fatalf("GetQuiz: %v", err)
	}
	if got.Owner != "alice" || got.Prompt != "prompt for q1" || len(got.Questions) != 2 {
		t.Errorf("quiz = %+v", got)
	}
	if got.Questions[1].Answers[1].Message != "Yes" || got.CreatedAt.IsZero() {
		t.Errorf("questions not round-tripped: %+v", got.Questions[1])
	}

	list, err := db.ListQuizzesByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListQuizzesByOwner: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("alice has %d quizzes, want 2", len(list))
	}
	none, err := db.ListQuizzesByOwner(ctx, "carol")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("carol list = %v, %v; want empty non-nil", none, err)
	}

	if _, err := db.GetQuiz(ctx, "missing"); !errors.Is(err, ErrQuizNotFound) {
		t.Errorf("GetQuiz(missing) err = %v", err)
	}
}

func TestCreateQuizRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.CreateQuiz(ctx, testQuiz("q1", "alice")); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	dup := testQuiz("q1", "bob")
	dup.Title = "Other"
	if err := db.CreateQuiz(ctx, dup); !errors.Is(err, ErrQuizExists) {
		t.Fatalf("duplicate CreateQuiz err = %v, want ErrQuizExists", err)
	}

	got, _ := db.GetQuiz(ctx, "q1")
	if got.Owner != "alice" || got.Title != "Baseball Basics" {
		t.Errorf("original quiz changed: %+v", got)
	}
}

func TestUpdateAndDeleteQuizOwnerOnly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := db.CreateQuiz(ctx, testQuiz("q1", "alice")); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}

	edit := testQuiz("q1", "ignored")
	edit.Title = "Edited"
	edit.Questions = edit.Questions[:1]

	if _, err := db.UpdateQuiz(ctx, "bob", edit); !errors.Is(err, ErrForbidden) {
		t.Errorf("UpdateQuiz by bob err = %v, want ErrForbidden", err)
	}
	if _, err := db.UpdateQuiz(ctx, "alice", testQuiz("missing", "alice")); !errors.Is(err, ErrQuizNotFound) {
		t.Errorf("UpdateQuiz missing err = %v, want ErrQuizNotFound", err)
	}

	updated, err := db.UpdateQuiz(ctx, "alice", edit)
	if err != nil {
		t.Fatalf("UpdateQuiz: %v", err)
	}
	if updated.Title != "Edited" || len(updated.Questions) != 1 || updated.Owner != "alice" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Prompt != "prompt for q1" {
		t.Errorf("prompt changed to %q", updated.Prompt)
	}

	if err := db.DeleteQuiz(ctx, "bob", "q1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("DeleteQuiz by bob err = %v, want ErrForbidden", err)
	}
	if err := db.DeleteQuiz(ctx, "alice", "q1"); err != nil {
		t.Fatalf("DeleteQuiz: %v", err)
	}
	if _, err := db.GetQuiz(ctx, "q1"); !errors.Is(err, ErrQuizNotFound) {
		t.Errorf("GetQuiz after delete err = %v", err)
	}
	if err := db.DeleteQuiz(ctx, "alice", "q1"); !errors.Is(err, ErrQuizNotFound) {
		t.Errorf("second DeleteQuiz err = %v, want ErrQuizNotFound", err)
	}
}

func TestProgressEvents(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	events := []ProgressEvent{
		{ID: "e1", CorrelationID: "q1", Message: MsgWarmingUp, CreatedAt: base},
		{ID: "e2", CorrelationID: "q1", Message: MsgGeneratingQuiz, CreatedAt: base.Add(time.Second)},
		{ID: "e3", CorrelationID: "q2", Message: MsgWarmingUp, CreatedAt: base.Add(2 * time.Second)},
		{ID: "e4", CorrelationID: "q1", Message: MsgGenerationComplete, CreatedAt: base.Add(3 * time.Second)},
	}
	for _, ev := range events {
		if err := db.AppendProgress(ctx, ev); err != nil {
			t.Fatalf("AppendProgress: %v", err)
		}
	}

	got, err := db.ListProgress(ctx, "q1")
	if err != nil {
		t.Fatalf("ListProgress: %v", err)
	}
	var ids []string
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	if len(ids) != 3 || ids[0] != "e1" || ids[1] != "e2" || ids[2] != "e4" {
		t.Errorf("ids = %v, want [e1 e2 e4]", ids)
	}
	if !got[0].CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", got[0].CreatedAt, base)
	}

	n, err := PruneProgress(ctx, db, time.Hour, base.Add(time.Hour+1500*time.Millisecond))
	if err != nil {
		t.Fatalf("PruneProgress: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	left, _ := db.ListProgress(ctx, "q1")
	if len(left) != 1 || left[0].ID != "e4" {
		t.Errorf("left = %+v", left)
	}
}

func TestAttempts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := db.CreateQuiz(ctx, testQuiz("q1", "alice")); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}

	first := &QuizAttempt{ID: "a1", QuizID: "q1", UserID: "bob", Score: 2400, TotalPossible: 6000, Answers: []string{"b", ""},
		CreatedAt: time.Now().Add(-time.Minute)}
	second := &QuizAttempt{ID: "a2", QuizID: "q1", UserID: "bob", Score: 6000, TotalPossible: 6000, Answers: []string{"b", "b"}}
	other := &QuizAttempt{ID: "a3", QuizID: "q1", UserID: "carol", Score: 0, TotalPossible: 6000, Answers: []string{"a", "a"}}
	for _, a := range []*QuizAttempt{first, second, other} {
		if err := db.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
	}

	got, err := db.ListAttempts(ctx, "bob")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a2" || got[1].ID != "a1" {
		t.Fatalf("attempts = %+v", got)
	}
	if got[1].Answers[1] != "" || got[1].Score != 2400 {
		t.Errorf("attempt = %+v", got[1])
	}

	if err := db.DeleteQuiz(ctx, "alice", "q1"); err != nil {
		t.Fatalf("DeleteQuiz: %v", err)
	}
	if left, _ := db.ListAttempts(ctx, "bob"); len(left) != 0 {
		t.Errorf("attempts survived quiz deletion: %+v", left)
	}
}

func TestPersistenceGatewayChecksOwner(t *testing.T) {
	db := openTestDB(t)
	gw := NewPersistenceGateway(db)

	if _, err := gw.CreateQuiz(context.Background(), testQuiz("q1", "alice")); !errors.Is(err, ErrPersistence) || !errors.Is(err, ErrForbidden) {
		t.Errorf("anonymous CreateQuiz err = %v", err)
	}
	if _, err := gw.CreateQuiz(asUser("bob"), testQuiz("q1", "alice")); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign CreateQuiz err = %v", err)
	}
	stored, err := gw.CreateQuiz(asUser("alice"), testQuiz("q1", "alice"))
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if stored.ID != "q1" || stored.Owner != "alice" {
		t.Errorf("stored = %+v", stored)
	}
}
