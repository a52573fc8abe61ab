package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"finboard/internal/core"
)

func TestStore_AppendActivity(t *testing.T) {
	s := New()
	ev := core.ActivityEvent{
		Type:      core.ActivityLoggedIn,
		SessionID: "sess-1",
		User:      "a@b.co",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.AppendActivity(context.Background(), ev); err != nil {
		t.Fatalf("AppendActivity() error = %v", err)
	}

	rows := s.Rows()
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want header plus one row", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"2024-01-02T03:04:05Z", "user.logged_in", "a@b.co", "", "", "sess-1"}
	for i, v := range want {
		if rows[1][i] != v {
			t.Errorf("rows[1][%d] = %q, want %q", i, rows[1][i], v)
		}
	}
	if got := s.Events(); len(got) != 1 || got[0].User != "a@b.co" {
		t.Errorf("Events() = %+v", got)
	}
}

func TestStore_Fail(t *testing.T) {
	s := New()
	s.Fail = errors.New("quota exceeded")
	if err := s.AppendActivity(context.Background(), core.ActivityEvent{Type: core.ActivityLoggedOut}); err == nil {
		t.Fatal("AppendActivity() should fail")
	}
	if len(s.Rows()) != 1 {
		t.Error("failed append should not add a row")
	}
}

func TestStore_RowsAreCopies(t *testing.T) {
	s := New()
	rows := s.Rows()
	rows[0][0] = "changed"
	if s.Rows()[0][0] != "timestamp" {
		t.Error("Rows() should return a copy")
	}
}
