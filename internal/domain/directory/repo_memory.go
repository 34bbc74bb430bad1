package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

type feeKey struct{ doctorID, clinicID uuid.UUID }

// MemoryRepo is a seedable in-memory directory.
type MemoryRepo struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]Doctor
	clinics map[uuid.UUID]Clinic
	fees    map[feeKey]FeeConfig
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		doctors: make(map[uuid.UUID]Doctor),
		clinics: make(map[uuid.UUID]Clinic),
		fees:    make(map[feeKey]FeeConfig),
	}
}

func (m *MemoryRepo) PutDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryRepo) PutClinic(c Clinic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clinics[c.ID] = c
}

// PutFeeConfig stores f, replacing any config for the same pair.
func (m *MemoryRepo) PutFeeConfig(f FeeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fees[feeKey{f.DoctorID, f.ClinicID}] = f
}

func (m *MemoryRepo) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor: %w", ErrNotFound)
	}
	return &d, nil
}

func (m *MemoryRepo) GetClinic(_ context.Context, id uuid.UUID) (*Clinic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clinics[id]
	if !ok {
		return nil, fmt.Errorf("clinic: %w", ErrNotFound)
	}
	return &c, nil
}

func (m *MemoryRepo) GetFeeConfig(_ context.Context, doctorID, clinicID uuid.UUID) (*FeeConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fees[feeKey{doctorID, clinicID}]
	if !ok {
		return nil, fmt.Errorf("fee config: %w", ErrNotFound)
	}
	return &f, nil
}

// Seed is the on-disk shape accepted by LoadSeed.
type Seed struct {
	Doctors []Doctor    `json:"doctors"`
	Clinics []Clinic    `json:"clinics"`
	Fees    []FeeConfig `json:"fees"`
}

// LoadSeed decodes a JSON Seed and stores every record in it.
func (m *MemoryRepo) LoadSeed(r io.Reader) error {
	var s Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return fmt.Errorf("decode directory seed: %w", err)
	}
	for _, d := range s.Doctors {
		m.PutDoctor(d)
	}
	for _, c := range s.Clinics {
		m.PutClinic(c)
	}
	for _, f := range s.Fees {
		m.PutFeeConfig(f)
	}
	return nil
}
