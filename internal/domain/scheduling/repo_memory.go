package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an AppointmentRepository held in process memory. It keeps
// the same compare-and-swap contract as the PostgreSQL store.
type MemoryLedger struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	bySession    map[string][]uuid.UUID
	tallies      map[string]SessionTally
	now          func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		appointments: make(map[uuid.UUID]*Appointment),
		bySession:    make(map[string][]uuid.UUID),
		tallies:      make(map[string]SessionTally),
		now:          time.Now,
	}
}

func (m *MemoryLedger) Tally(_ context.Context, sessionKey string) (SessionTally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tallies[sessionKey], nil
}

func (m *MemoryLedger) TallySessions(_ context.Context, sessionKeys []string) (map[string]SessionTally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]SessionTally, len(sessionKeys))
	for _, k := range sessionKeys {
		if t, ok := m.tallies[k]; ok {
			out[k] = t
		}
	}
	return out, nil
}

func (m *MemoryLedger) Insert(_ context.Context, appt *Appointment, expected SessionTally) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tallies[appt.SessionKey] != expected {
		return errTallyConflict
	}
	for _, id := range m.bySession[appt.SessionKey] {
		if m.appointments[id].AppointmentNumber == appt.AppointmentNumber {
			return errTallyConflict
		}
	}
	now := m.now()
	appt.ID = uuid.New()
	appt.Version = 1
	appt.CreatedAt, appt.UpdatedAt = now, now
	cp := *appt
	m.appointments[appt.ID] = &cp
	m.bySession[appt.SessionKey] = append(m.bySession[appt.SessionKey], appt.ID)
	m.tallies[appt.SessionKey] = SessionTally{
		Active:     expected.Active + 1,
		LastNumber: int64(appt.AppointmentNumber),
		Version:    expected.Version + 1,
	}
	return nil
}

func (m *MemoryLedger) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryLedger) UpdateStatus(_ context.Context, appt *Appointment, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.appointments[appt.ID]
	if !ok || stored.Status != from {
		return errStatusConflict
	}
	stored.Status = appt.Status
	stored.Version++
	stored.UpdatedAt = m.now()
	appt.Version, appt.UpdatedAt = stored.Version, stored.UpdatedAt

	if from != StatusCancelled && !stored.CountsTowardCapacity() {
		t := m.tallies[stored.SessionKey]
		t.Active--
		t.Version++
		m.tallies[stored.SessionKey] = t
	}
	return nil
}

func (m *MemoryLedger) ListBySession(_ context.Context, sessionKey string) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*Appointment, 0, len(m.bySession[sessionKey]))
	for _, id := range m.bySession[sessionKey] {
		cp := *m.appointments[id]
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].AppointmentNumber < items[j].AppointmentNumber })
	return items, nil
}

func (m *MemoryLedger) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Appointment
	for _, a := range m.appointments {
		if a.Patient.ID != nil && *a.Patient.ID == patientID {
			cp := *a
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].EstimatedTime > all[j].EstimatedTime
	})
	total := len(all)
	if offset >= total {
		return []*Appointment{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
