package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/domain/directory"
)

// AppointmentRepository is the booking ledger store. Insert and UpdateStatus
// are compare-and-swap operations: they fail with a conflict instead of
// overwriting a concurrent change.
type AppointmentRepository interface {
	// Tally returns the current counter for a session; a never-booked session
	// has the zero tally.
	Tally(ctx context.Context, sessionKey string) (SessionTally, error)
	// TallySessions returns tallies for several sessions at once. Missing keys
	// are absent from the map.
	TallySessions(ctx context.Context, sessionKeys []string) (map[string]SessionTally, error)
	// Insert stores appt and advances the session tally, provided the tally
	// still matches expected. On success appt.Version and timestamps are set.
	Insert(ctx context.Context, appt *Appointment, expected SessionTally) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus moves appt to appt.Status provided the stored status is
	// still from. Cancelling releases the capacity held in the tally.
	UpdateStatus(ctx context.Context, appt *Appointment, from Status) error
	ListBySession(ctx context.Context, sessionKey string) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}

// Directory is the read side of doctor, clinic and fee records.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	GetClinic(ctx context.Context, id uuid.UUID) (*directory.Clinic, error)
	GetFeeConfig(ctx context.Context, doctorID, clinicID uuid.UUID) (*directory.FeeConfig, error)
}
