package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================
// Note: the at() time helper is defined in duration_test.go

func newTestEngine() (*attendance.Engine, *store.Memory, *spyInvalidator) {
	mem := store.NewMemory()
	spy := &spyInvalidator{}
	return attendance.NewEngine(mem, spy), mem, spy
}

type spyInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (s *spyInvalidator) InvalidateUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
}

func (s *spyInvalidator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// failingStore wraps a Store and fails writes on demand.
type failingStore struct {
	attendance.Store
	failUpsert bool
}

var errStoreDown = errors.New("store down")

func (f *failingStore) UpsertLog(ctx context.Context, log *attendance.Log) (*attendance.Log, error) {
	if f.failUpsert {
		return nil, errStoreDown
	}
	return f.Store.UpsertLog(ctx, log)
}

// blockingStore parks the FIRST UpsertLog until released, to exercise the
// in-flight guard. Later writes pass straight through.
type blockingStore struct {
	attendance.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) UpsertLog(ctx context.Context, log *attendance.Log) (*attendance.Log, error) {
	blocked := false
	b.once.Do(func() { blocked = true })
	if blocked {
		close(b.entered)
		<-b.release
	}
	return b.Store.UpsertLog(ctx, log)
}

func writeSchedule(t *testing.T, s attendance.Store, userID, timeIn string, requiredHours int64, importedMinutes int64) {
	t.Helper()
	_, err := s.WriteSchedule(context.Background(), &attendance.Schedule{
		UserID:                  userID,
		ScheduledTimeIn:         timeIn,
		RequiredHours:           decimal.NewFromInt(requiredHours),
		ImportedRenderedMinutes: importedMinutes,
	})
	require.NoError(t, err)
}

// =============================================================================
// CLOCK-IN STATE MACHINE
// =============================================================================

func TestClockIn_FirstOfDay_CreatesLogWithOpenSegment(t *testing.T) {
	// GIVEN: no log for today
	// WHEN:  clocking in
	// THEN:  a log exists with exactly one open segment and zero total

	engine, _, _ := newTestEngine()
	ctx := context.Background()

	log, err := engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)

	require.Len(t, log.Segments, 1)
	assert.True(t, log.Segments[0].Open())
	assert.Equal(t, at(9, 0, 0), log.Segments[0].TimeIn)
	assert.EqualValues(t, 0, log.TotalRenderedSeconds)
	assert.Equal(t, "2025-03-10", log.LogDate)
	assert.NotEmpty(t, log.ID)
	assert.NoError(t, log.Validate())
}

func TestClockIn_WhileOpen_RejectedAndUnchanged(t *testing.T) {
	// GIVEN: an open segment
	// WHEN:  clocking in again
	// THEN:  ErrAlreadyClockedIn, segments unchanged

	engine, mem, _ := newTestEngine()
	ctx := context.Background()

	first, err := engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)

	_, err = engine.ClockIn(ctx, "usr-1", at(9, 30, 0))
	assert.ErrorIs(t, err, attendance.ErrAlreadyClockedIn)

	var stateErr *attendance.ClockStateError
	assert.ErrorAs(t, err, &stateErr)

	after, err := mem.ReadLog(ctx, "usr-1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, first.Segments, after.Segments)
}

func TestClockOut_NotClockedIn_Rejected(t *testing.T) {
	engine, mem, _ := newTestEngine()
	ctx := context.Background()

	// No log at all.
	_, err := engine.ClockOut(ctx, "usr-1", at(17, 0, 0))
	assert.ErrorIs(t, err, attendance.ErrNotClockedIn)

	// Log exists but the last segment is closed.
	_, err = engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)
	closed, err := engine.ClockOut(ctx, "usr-1", at(12, 0, 0))
	require.NoError(t, err)

	_, err = engine.ClockOut(ctx, "usr-1", at(17, 0, 0))
	assert.ErrorIs(t, err, attendance.ErrNotClockedIn)

	after, err := mem.ReadLog(ctx, "usr-1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, closed.Segments, after.Segments)
	assert.Equal(t, closed.TotalRenderedSeconds, after.TotalRenderedSeconds)
}

func TestClockOut_BeforeClockIn_Rejected(t *testing.T) {
	// GIVEN: an open segment started at 10:00
	// WHEN:  clocking out with a timestamp of 09:00
	// THEN:  the operation is rejected and the stored log is untouched;
	//        a backdated clock-out must never fold a negative duration
	//        into the day total

	engine, mem, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.ClockIn(ctx, "usr-1", at(10, 0, 0))
	require.NoError(t, err)

	_, err = engine.ClockOut(ctx, "usr-1", at(9, 0, 0))
	assert.ErrorIs(t, err, attendance.ErrClockOutBeforeIn)
	assert.True(t, attendance.IsClientError(err))

	log, err := mem.ReadLog(ctx, "usr-1", "2025-03-10")
	require.NoError(t, err)
	assert.NotNil(t, log.OpenSegment(), "segment must stay open")
	assert.EqualValues(t, 0, log.TotalRenderedSeconds)

	// A clock-out at or after the clock-in still goes through.
	closed, err := engine.ClockOut(ctx, "usr-1", at(10, 0, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 0, closed.TotalRenderedSeconds)
}

func TestClockInOut_RoundTrip(t *testing.T) {
	// GIVEN: clockIn(t0) then clockOut(t1)
	// THEN:  exactly one closed segment {t0, t1}, total = floor(t1 - t0)

	engine, _, _ := newTestEngine()
	ctx := context.Background()

	t0, t1 := at(9, 0, 0), at(12, 30, 15)
	_, err := engine.ClockIn(ctx, "usr-1", t0)
	require.NoError(t, err)

	log, err := engine.ClockOut(ctx, "usr-1", t1)
	require.NoError(t, err)

	require.Len(t, log.Segments, 1)
	require.NotNil(t, log.Segments[0].TimeOut)
	assert.Equal(t, t0, log.Segments[0].TimeIn)
	assert.Equal(t, t1, *log.Segments[0].TimeOut)
	assert.EqualValues(t, 3*3600+30*60+15, log.TotalRenderedSeconds)
}

func TestClockIn_ReEntry_AppendsSegment(t *testing.T) {
	// Multiple in/out cycles accumulate; only the tail may be open.
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)
	_, err = engine.ClockOut(ctx, "usr-1", at(12, 0, 0))
	require.NoError(t, err)

	log, err := engine.ClockIn(ctx, "usr-1", at(13, 0, 0))
	require.NoError(t, err)

	require.Len(t, log.Segments, 2)
	assert.False(t, log.Segments[0].Open())
	assert.True(t, log.Segments[1].Open())
	assert.EqualValues(t, 3*3600, log.TotalRenderedSeconds)
	assert.NoError(t, log.Validate())
}

func TestInvariant_AtMostOneOpenSegment(t *testing.T) {
	// Drive the state machine through several cycles, validating the
	// one-open-segment invariant after every operation.
	engine, mem, _ := newTestEngine()
	ctx := context.Background()

	moments := []struct {
		op  string
		now time.Time
	}{
		{"in", at(8, 0, 0)},
		{"out", at(10, 0, 0)},
		{"in", at(10, 30, 0)},
		{"out", at(12, 0, 0)},
		{"in", at(13, 0, 0)},
	}

	for _, m := range moments {
		var err error
		if m.op == "in" {
			_, err = engine.ClockIn(ctx, "usr-1", m.now)
		} else {
			_, err = engine.ClockOut(ctx, "usr-1", m.now)
		}
		require.NoError(t, err)

		log, err := mem.ReadLog(ctx, "usr-1", "2025-03-10")
		require.NoError(t, err)
		assert.NoError(t, log.Validate())
	}
}

// =============================================================================
// LATENESS AT FIRST CLOCK-IN
// =============================================================================

func TestClockIn_LatenessFixedAtFirstClockIn(t *testing.T) {
	// GIVEN: schedule 09:00, first clock-in at 09:20 (late)
	// WHEN:  clocking out and back in at 13:00 the same day
	// THEN:  IsLate/GraceNotified keep their first-clock-in values

	engine, mem, _ := newTestEngine()
	ctx := context.Background()
	writeSchedule(t, mem, "usr-1", "09:00", 0, 0)

	first, err := engine.ClockIn(ctx, "usr-1", at(9, 20, 0))
	require.NoError(t, err)
	assert.True(t, first.IsLate)
	assert.False(t, first.GraceNotified)

	_, err = engine.ClockOut(ctx, "usr-1", at(12, 0, 0))
	require.NoError(t, err)

	// Even a mid-day schedule change must not rewrite the morning's verdict.
	writeSchedule(t, mem, "usr-1", "14:00", 0, 0)

	again, err := engine.ClockIn(ctx, "usr-1", at(13, 0, 0))
	require.NoError(t, err)
	assert.True(t, again.IsLate)
	assert.False(t, again.GraceNotified)
}

func TestClockIn_GraceWindow(t *testing.T) {
	engine, mem, _ := newTestEngine()
	ctx := context.Background()
	writeSchedule(t, mem, "usr-1", "09:00", 0, 0)

	log, err := engine.ClockIn(ctx, "usr-1", at(9, 10, 0))
	require.NoError(t, err)
	assert.False(t, log.IsLate)
	assert.True(t, log.GraceNotified)
}

func TestClockIn_NoSchedule_DefaultsTo0900(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	log, err := engine.ClockIn(ctx, "usr-1", at(9, 20, 0))
	require.NoError(t, err)
	assert.True(t, log.IsLate)
}

// =============================================================================
// FAILURE SEMANTICS
// =============================================================================

func TestClockIn_StoreFailure_NoStateChange(t *testing.T) {
	// A failed write must not leave a phantom log behind.
	mem := store.NewMemory()
	failing := &failingStore{Store: mem, failUpsert: true}
	spy := &spyInvalidator{}
	engine := attendance.NewEngine(failing, spy)
	ctx := context.Background()

	_, err := engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 0, spy.count(), "no invalidation without a confirmed write")

	_, err = mem.ReadLog(ctx, "usr-1", "2025-03-10")
	assert.ErrorIs(t, err, attendance.ErrLogNotFound)

	// Recovery: the same action succeeds once the store is back.
	failing.failUpsert = false
	_, err = engine.ClockIn(ctx, "usr-1", at(9, 5, 0))
	assert.NoError(t, err)
	assert.Equal(t, 1, spy.count())
}

func TestClockOut_StoreFailure_KeepsOpenSegment(t *testing.T) {
	mem := store.NewMemory()
	failing := &failingStore{Store: mem}
	engine := attendance.NewEngine(failing, nil)
	ctx := context.Background()

	_, err := engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)

	failing.failUpsert = true
	_, err = engine.ClockOut(ctx, "usr-1", at(17, 0, 0))
	assert.ErrorIs(t, err, errStoreDown)

	log, err := mem.ReadLog(ctx, "usr-1", "2025-03-10")
	require.NoError(t, err)
	assert.NotNil(t, log.OpenSegment(), "segment must remain open after a failed clock-out")
	assert.EqualValues(t, 0, log.TotalRenderedSeconds)
}

func TestEngine_SingleFlightPerUser(t *testing.T) {
	// GIVEN: a clock-in parked on its persistence round trip
	// WHEN:  a second operation for the same user arrives
	// THEN:  it is rejected with ErrOperationInFlight; other users proceed

	mem := store.NewMemory()
	blocking := &blockingStore{
		Store:   mem,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	engine := attendance.NewEngine(blocking, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
		done <- err
	}()

	<-blocking.entered
	_, err := engine.ClockOut(ctx, "usr-1", at(9, 0, 1))
	assert.ErrorIs(t, err, attendance.ErrOperationInFlight)

	close(blocking.release)
	require.NoError(t, <-done)

	// Released after completion: the next operation goes through.
	_, err = engine.ClockOut(ctx, "usr-1", at(10, 0, 0))
	assert.NoError(t, err)
}

// =============================================================================
// READS
// =============================================================================

func TestStatus_NoLog(t *testing.T) {
	engine, _, _ := newTestEngine()

	status, err := engine.Status(context.Background(), "usr-1", at(9, 0, 0))
	require.NoError(t, err)
	assert.False(t, status.ClockedIn)
	assert.EqualValues(t, 0, status.RenderedSeconds)
	assert.Equal(t, "00:00:00", status.Elapsed)
}

func TestStatus_LiveElapsed(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)

	status, err := engine.Status(ctx, "usr-1", at(10, 30, 0))
	require.NoError(t, err)
	assert.True(t, status.ClockedIn)
	assert.EqualValues(t, 5400, status.RenderedSeconds)
	assert.Equal(t, "01:30:00", status.Elapsed)
}

func TestSummary_RequiredHoursScenario(t *testing.T) {
	// GIVEN: requiredHours = 400, a prior day of 8h, today's open segment
	//        started an hour ago
	// THEN:  rendered = 9h, remaining = 391h

	engine, mem, _ := newTestEngine()
	ctx := context.Background()
	writeSchedule(t, mem, "usr-1", "09:00", 400, 0)

	prior := attendance.NewLog("usr-1", "2025-03-09")
	out := time.Date(2025, time.March, 9, 17, 0, 0, 0, time.UTC)
	prior.Segments = []attendance.Segment{{
		TimeIn:  time.Date(2025, time.March, 9, 9, 0, 0, 0, time.UTC),
		TimeOut: &out,
	}}
	prior.TotalRenderedSeconds = 28800
	_, err := mem.UpsertLog(ctx, prior)
	require.NoError(t, err)

	_, err = engine.ClockIn(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)

	summary, err := engine.Summary(ctx, "usr-1", at(10, 0, 0))
	require.NoError(t, err)

	assert.EqualValues(t, 9*3600, summary.RenderedSeconds)
	assert.EqualValues(t, 391*3600, summary.RemainingSeconds)
	assert.True(t, summary.RenderedHours.Equal(decimal.NewFromInt(9)))
	assert.True(t, summary.RemainingHours.Equal(decimal.NewFromInt(391)))
}

func TestSummary_StaleOpenLogDoesNotAccrue(t *testing.T) {
	// A segment abandoned open on a prior day must not inflate the summary.
	engine, mem, _ := newTestEngine()
	ctx := context.Background()
	writeSchedule(t, mem, "usr-1", "09:00", 400, 0)

	stale := attendance.NewLog("usr-1", "2025-03-09")
	stale.Segments = []attendance.Segment{{
		TimeIn: time.Date(2025, time.March, 9, 9, 0, 0, 0, time.UTC),
	}}
	_, err := mem.UpsertLog(ctx, stale)
	require.NoError(t, err)

	summary, err := engine.Summary(ctx, "usr-1", at(10, 0, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary.RenderedSeconds)
	assert.EqualValues(t, 400*3600, summary.RemainingSeconds)
}

func TestSummary_ImportedMinutesCountOnce(t *testing.T) {
	engine, mem, _ := newTestEngine()
	ctx := context.Background()
	writeSchedule(t, mem, "usr-1", "09:00", 10, 120)

	summary, err := engine.Summary(ctx, "usr-1", at(9, 0, 0))
	require.NoError(t, err)

	assert.EqualValues(t, 7200, summary.RenderedSeconds)
	assert.EqualValues(t, 8*3600, summary.RemainingSeconds)
}

func TestSummary_NoSchedule(t *testing.T) {
	engine, _, _ := newTestEngine()

	summary, err := engine.Summary(context.Background(), "usr-1", at(9, 0, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary.RenderedSeconds)
	assert.EqualValues(t, 0, summary.RemainingSeconds)
}
