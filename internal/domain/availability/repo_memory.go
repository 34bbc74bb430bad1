package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory RuleRepository and ExceptionRepository. It
// backs the STORE=memory mode and the tests.
type MemoryStore struct {
	mu         sync.RWMutex
	rules      map[uuid.UUID]*RecurringRule
	exceptions map[uuid.UUID]*Exception
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:      make(map[uuid.UUID]*RecurringRule),
		exceptions: make(map[uuid.UUID]*Exception),
		now:        time.Now,
	}
}

// Rules exposes the store as a RuleRepository.
func (m *MemoryStore) Rules() RuleRepository { return memoryRules{m} }

// Exceptions exposes the store as an ExceptionRepository.
func (m *MemoryStore) Exceptions() ExceptionRepository { return memoryExceptions{m} }

type memoryRules struct{ m *MemoryStore }

func (s memoryRules) Create(_ context.Context, r *RecurringRule) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = s.m.now()
	cp := *r
	s.m.rules[r.ID] = &cp
	return nil
}

func (s memoryRules) GetByID(_ context.Context, id uuid.UUID) (*RecurringRule, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	r, ok := s.m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s memoryRules) Delete(_ context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(s.m.rules, id)
	return nil
}

func (s memoryRules) ListRulesFor(_ context.Context, doctorID, clinicID uuid.UUID, weekday time.Weekday) ([]*RecurringRule, error) {
	return s.filter(func(r *RecurringRule) bool {
		return r.DoctorID == doctorID && r.ClinicID == clinicID && r.DayOfWeek == int(weekday)
	}), nil
}

func (s memoryRules) ListByDoctorClinic(_ context.Context, doctorID, clinicID uuid.UUID) ([]*RecurringRule, error) {
	return s.filter(func(r *RecurringRule) bool {
		return r.DoctorID == doctorID && r.ClinicID == clinicID
	}), nil
}

func (s memoryRules) filter(keep func(*RecurringRule) bool) []*RecurringRule {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := []*RecurringRule{}
	for _, r := range s.m.rules {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

type memoryExceptions struct{ m *MemoryStore }

func (s memoryExceptions) Create(_ context.Context, e *Exception) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	e.ID = uuid.New()
	e.Date = DateOf(e.Date)
	e.CreatedAt = s.m.now()
	cp := *e
	s.m.exceptions[e.ID] = &cp
	return nil
}

func (s memoryExceptions) GetByID(_ context.Context, id uuid.UUID) (*Exception, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	e, ok := s.m.exceptions[id]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	cp := *e
	return &cp, nil
}

func (s memoryExceptions) Delete(_ context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.exceptions[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(s.m.exceptions, id)
	return nil
}

func (s memoryExceptions) ListExceptionsFor(_ context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]*Exception, error) {
	day := DateOf(date)
	return s.filter(func(e *Exception) bool {
		return e.DoctorID == doctorID && e.ClinicID == clinicID && e.Date.Equal(day)
	}), nil
}

func (s memoryExceptions) ListBetween(_ context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]*Exception, error) {
	lo, hi := DateOf(from), DateOf(to)
	return s.filter(func(e *Exception) bool {
		return e.DoctorID == doctorID && e.ClinicID == clinicID &&
			!e.Date.Before(lo) && !e.Date.After(hi)
	}), nil
}

func (s memoryExceptions) filter(keep func(*Exception) bool) []*Exception {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := []*Exception{}
	for _, e := range s.m.exceptions {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
