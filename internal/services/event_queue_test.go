package services

import (
	"errors"
	"testing"

	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

type branchSet map[int]bool

func (b branchSet) Exists(id int) bool { return b[id] }

// testTimeline puts the stickman at world 0 when the cursor is 200 and shows
// world [-200, 1000] on screen; months are 120 apart.
var testTimeline = Timeline{MonthSpacing: 120, StickmanX: 200, ViewWidth: 1200}

func newTestQueue(t *testing.T) *EventQueue {
	t.Helper()
	return NewEventQueue(mustDefaultCatalog(t), testTimeline, utils.NopLogger())
}

func TestEventQueue_ScheduleRejectsUnknown(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Schedule(ScheduleRequest{EventName: "time_travel", Year: 2025, Month: 3}, 200)
	if !errors.Is(err, apperrors.ErrUnknownEvent) {
		t.Fatalf("err = %v, want ErrUnknownEvent", err)
	}
	_, err = q.Schedule(ScheduleRequest{EventName: "promotion", Year: 2025, Month: 13}, 200)
	if !errors.Is(err, apperrors.ErrInvalidMonth) {
		t.Fatalf("err = %v, want ErrInvalidMonth", err)
	}
	if q.Len() != 0 {
		t.Errorf("rejected events were queued: %d", q.Len())
	}
}

func TestEventQueue_ScheduleDoesNotCheckBranchOrTime(t *testing.T) {
	q := newTestQueue(t)

	ev, err := q.Schedule(ScheduleRequest{EventName: "marry", Year: 2020, Month: 1, BranchID: 42, Text: "long ago"}, 200)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if ev.MonthIndex != -60 || ev.EnqueuedAt != 200 || ev.Source != models.SourceAPI {
		t.Errorf("scheduled = %+v", ev)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d", q.Len())
	}
}

func TestEventQueue_Materialize(t *testing.T) {
	q := newTestQueue(t)
	branches := branchSet{0: true, 1: true}

	schedule := func(name string, month, branch int) {
		t.Helper()
		if _, err := q.Schedule(ScheduleRequest{EventName: name, Year: 2025, Month: month, BranchID: branch}, 200); err != nil {
			t.Fatal(err)
		}
	}
	schedule("promotion", 6, 0)    // world 600, visible and ahead
	schedule("layoff", 3, 1)       // world 240, visible and ahead
	schedule("bonus", 1, 0)        // world 0, under the stickman: dropped
	schedule("kid", 6, 5)          // branch 5 does not exist yet
	schedule("lottery_win", 12, 0) // world 1320, not visible yet

	created, dropped := q.Materialize(200, branches)

	if len(created) != 2 {
		t.Fatalf("created %d events, want 2: %+v", len(created), created)
	}
	if created[0].Name != "promotion" || created[1].Name != "layoff" {
		t.Errorf("created out of order: %s, %s", created[0].Name, created[1].Name)
	}
	if created[0].ID >= created[1].ID {
		t.Errorf("ids not monotonic: %d, %d", created[0].ID, created[1].ID)
	}
	if !created[1].CausesSplit || created[1].Triggered {
		t.Errorf("layoff materialized as %+v", created[1])
	}
	if len(dropped) != 1 || dropped[0].EventName != "bonus" {
		t.Errorf("dropped = %+v", dropped)
	}

	pending := q.Pending()
	if len(pending) != 2 || pending[0].EventName != "kid" || pending[1].EventName != "lottery_win" {
		t.Fatalf("pending = %+v", pending)
	}

	// The branch appears and the far event scrolls into view.
	branches[5] = true
	created, dropped = q.Materialize(-200, branches)
	if len(created) != 2 || len(dropped) != 0 || q.Len() != 0 {
		t.Errorf("second pass created=%d dropped=%d left=%d", len(created), len(dropped), q.Len())
	}
}

func TestEventQueue_WaitsForBranchIndefinitely(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Schedule(ScheduleRequest{EventName: "kid", Year: 2025, Month: 8, BranchID: 3}, 200); err != nil {
		t.Fatal(err)
	}

	for cursor := 200.0; cursor > -400; cursor -= 50 {
		created, dropped := q.Materialize(cursor, branchSet{0: true})
		if len(created) != 0 || len(dropped) != 0 {
			t.Fatalf("event for a missing branch left the queue at cursor %v", cursor)
		}
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}

	q.Clear()
	if q.Len() != 0 {
		t.Error("Clear left events behind")
	}
}
