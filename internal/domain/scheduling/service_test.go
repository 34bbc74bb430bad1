package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/booking/internal/domain/availability"
	"github.com/clinic/booking/internal/domain/directory"
	"github.com/clinic/booking/internal/platform/lock"
)

type fixture struct {
	store  *availability.MemoryStore
	dir    *directory.MemoryRepo
	ledger *MemoryLedger
	svc    *Service
	today  time.Time
}

// newFixture wires a Service over in-memory stores with "now" fixed at
// 2024-06-01 and a 09:00-12:00 Monday rule for 10 patients at 15 minutes.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:  availability.NewMemoryStore(),
		dir:    directory.NewMemoryRepo(),
		ledger: NewMemoryLedger(),
		today:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.dir.PutDoctor(directory.Doctor{ID: testDoctor, Name: "Dr. Rao"})
	f.dir.PutClinic(directory.Clinic{ID: testClinic, Name: "Central"})
	f.dir.PutFeeConfig(directory.FeeConfig{
		DoctorID: testDoctor, ClinicID: testClinic,
		DoctorFee: 50000, ClinicFee: 10000, OnlineFee: 2500,
	})
	f.addRule(t, mondayRule("09:00", "12:00", 10, 15))

	if opts.Now == nil {
		opts.Now = func() time.Time { return f.today }
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewKeyedMutex()
	}
	opts.Logger = zerolog.Nop()
	f.svc = NewService(f.store.Rules(), f.store.Exceptions(), f.ledger, f.dir, opts)
	return f
}

func (f *fixture) addRule(t *testing.T, r *availability.RecurringRule) *availability.RecurringRule {
	t.Helper()
	require.NoError(t, f.store.Rules().Create(context.Background(), r))
	return r
}

func (f *fixture) addException(t *testing.T, e *availability.Exception) *availability.Exception {
	t.Helper()
	require.NoError(t, f.store.Exceptions().Create(context.Background(), e))
	return e
}

func (f *fixture) mondaySession(t *testing.T) ResolvedSession {
	t.Helper()
	sessions, err := f.svc.ResolveSessions(context.Background(), testDoctor, testClinic, monday)
	require.NoError(t, err)
	require.NotEmpty(t, sessions)
	return sessions[0]
}

func patient(name string) PatientInfo {
	return PatientInfo{Name: name, Phone: "+15550100"}
}

func TestAllocate_ThirdPatientGetsNumberThree(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	key := f.mondaySession(t).Key

	var last *Allocation
	for _, name := range []string{"Asha", "Ben", "Chen"} {
		alloc, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient(name)})
		require.NoError(t, err)
		last = alloc
	}
	assert.Equal(t, 3, last.Appointment.AppointmentNumber)
	assert.Equal(t, tod("09:30"), last.Appointment.EstimatedTime)
	assert.Equal(t, StatusScheduled, last.Appointment.Status)
	assert.False(t, last.ExceedsSessionEnd)
	assert.Equal(t, int64(62500), last.Appointment.Fees.Total())
}

func TestAllocate_AbsenceYieldsSessionNotFound(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	key := f.mondaySession(t).Key

	f.addException(t, absence(monday, "09:00", "12:00"))

	sessions, err := f.svc.ResolveSessions(ctx, testDoctor, testClinic, monday)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("Asha")})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.AllocateNext(ctx, NextBookingRequest{DoctorID: testDoctor, ClinicID: testClinic, Date: monday, Patient: patient("Asha")})
	assert.ErrorIs(t, err, ErrNoSessionAvailable)
}

func TestBookingWindow_StricterLimitWins(t *testing.T) {
	f := newFixture(t, Options{})
	f.dir.PutDoctor(directory.Doctor{ID: testDoctor, BookingVisibleDays: intPtr(15)})
	f.dir.PutClinic(directory.Clinic{ID: testClinic, BookingVisibleDays: intPtr(30)})
	ctx := context.Background()

	_, err := f.svc.CheckBookingWindow(ctx, testDoctor, testClinic, time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	_, err = f.svc.CheckBookingWindow(ctx, testDoctor, testClinic, time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrDateNotBookable)
	_, err = f.svc.CheckBookingWindow(ctx, testDoctor, testClinic, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrDateNotBookable)
}

func TestAllocate_OutsideWindow(t *testing.T) {
	f := newFixture(t, Options{})
	f.today = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	key := SessionKey{DoctorID: testDoctor, ClinicID: testClinic, Date: monday, Kind: SourceRule, SourceID: uuid.New()}

	_, err := f.svc.AllocateAppointment(context.Background(), BookingRequest{SessionKey: key.String(), Patient: patient("Asha")})
	assert.ErrorIs(t, err, ErrDateNotBookable)
}

func TestAllocate_TodayFollowsLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	f := newFixture(t, Options{Location: kolkata})
	// 20:00 UTC on 31 May is already 1 June in the clinic's zone.
	f.today = time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC)
	assert.True(t, f.svc.Today().Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAllocate_FeeConfigMissing(t *testing.T) {
	f := newFixture(t, Options{})
	otherClinic := uuid.New()
	r := mondayRule("09:00", "12:00", 10, 15)
	r.ClinicID = otherClinic
	f.addRule(t, r)

	sessions, err := f.svc.ResolveSessions(context.Background(), testDoctor, otherClinic, monday)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	_, err = f.svc.AllocateAppointment(context.Background(), BookingRequest{SessionKey: sessions[0].Key, Patient: patient("Asha")})
	assert.ErrorIs(t, err, ErrFeeConfigMissing)

	appts, err := f.ledger.ListBySession(context.Background(), sessions[0].Key)
	require.NoError(t, err)
	assert.Empty(t, appts, "nothing is written on failure")
}

func TestAllocate_FeeSnapshotIsFrozen(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	alloc, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: f.mondaySession(t).Key, Patient: patient("Asha")})
	require.NoError(t, err)

	f.dir.PutFeeConfig(directory.FeeConfig{DoctorID: testDoctor, ClinicID: testClinic, DoctorFee: 99999})

	got, err := f.svc.GetAppointment(ctx, alloc.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got.Fees.DoctorFee)
}

func TestAllocate_InvalidRequest(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.AllocateAppointment(ctx, BookingRequest{Patient: patient("Asha")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: f.mondaySession(t).Key})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: "garbage", Patient: patient("Asha")})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestAllocate_SessionFull(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addException(t, modified(monday, "09:00", "12:00", 2, time.Now()))
	key := f.mondaySession(t).Key

	for i := 0; i < 2; i++ {
		_, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("P")})
		require.NoError(t, err)
	}
	_, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("P")})
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestAllocate_OverrunIsFlagged(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	// 3 patients at 30 minutes do not fit in one hour.
	f.addRule(t, &availability.RecurringRule{
		ID: uuid.New(), DoctorID: testDoctor, ClinicID: testClinic, DayOfWeek: int(time.Monday),
		StartTime: tod("14:00"), EndTime: tod("15:00"), MaxPatients: 3, MinutesPerPatient: 30,
	})
	sessions, err := f.svc.ResolveSessions(ctx, testDoctor, testClinic, monday)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	afternoon := sessions[1]
	assert.True(t, afternoon.Overcommitted)

	var flags []bool
	for i := 0; i < 3; i++ {
		alloc, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: afternoon.Key, Patient: patient("P")})
		require.NoError(t, err)
		flags = append(flags, alloc.ExceedsSessionEnd)
	}
	assert.Equal(t, []bool{false, false, true}, flags)
}

func TestAllocateNext_FillsEarliestSessionFirst(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addException(t, modified(monday, "09:00", "12:00", 1, time.Now()))
	f.addException(t, modified(monday, "14:00", "15:00", 1, time.Now()))
	req := NextBookingRequest{DoctorID: testDoctor, ClinicID: testClinic, Date: monday, Patient: patient("P")}

	first, err := f.svc.AllocateNext(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, tod("09:00"), first.Session.StartTime)

	second, err := f.svc.AllocateNext(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, tod("14:00"), second.Session.StartTime)
	assert.Equal(t, 1, second.Appointment.AppointmentNumber)

	_, err = f.svc.AllocateNext(ctx, req)
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestCancelledNumbersAreRetired(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addException(t, modified(monday, "09:00", "12:00", 2, time.Now()))
	key := f.mondaySession(t).Key

	a1, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("A")})
	require.NoError(t, err)
	_, err = f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("B")})
	require.NoError(t, err)

	_, err = f.svc.TransitionStatus(ctx, a1.Appointment.ID, StatusCancelled)
	require.NoError(t, err)

	a3, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("C")})
	require.NoError(t, err)
	assert.Equal(t, 3, a3.Appointment.AppointmentNumber)
	assert.Equal(t, tod("09:30"), a3.Appointment.EstimatedTime)

	_, err = f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("D")})
	assert.ErrorIs(t, err, ErrSessionFull)

	avail, err := f.svc.SessionAvailability(ctx, testDoctor, testClinic, monday)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, 2, avail[0].Booked)
	assert.Equal(t, 0, avail[0].Remaining)
	assert.Equal(t, 4, avail[0].NextNumber)
}

func TestSessionAvailability_Fresh(t *testing.T) {
	f := newFixture(t, Options{})
	avail, err := f.svc.SessionAvailability(context.Background(), testDoctor, testClinic, monday)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, 0, avail[0].Booked)
	assert.Equal(t, 10, avail[0].Remaining)
	assert.Equal(t, 1, avail[0].NextNumber)
}

func TestListPatientAppointments(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	pid := uuid.New()
	key := f.mondaySession(t).Key
	for i := 0; i < 3; i++ {
		_, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: PatientInfo{ID: &pid, Name: "Asha"}})
		require.NoError(t, err)
	}
	_, err := f.svc.AllocateAppointment(ctx, BookingRequest{SessionKey: key, Patient: patient("Other")})
	require.NoError(t, err)

	items, total, err := f.svc.ListPatientAppointments(ctx, pid, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)
	assert.Equal(t, 3, items[0].AppointmentNumber, "latest estimated time first")

	all, err := f.svc.ListSessionAppointments(ctx, key)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "session_full", Outcome(ErrSessionFull))
	assert.Equal(t, "conflict", Outcome(ErrAllocationConflict))
	assert.Equal(t, "error", Outcome(assert.AnError))
}
