package stations

import (
	"context"
	"fmt"
	"time"
)

// Contact is a person reachable at a partner.
type Contact struct {
	ID        string
	PartnerID string
	Name      string
	Email     string
	Phone     string
	Role      string
	CreatedAt time.Time
}

// Validate checks contact invariants.
func (c Contact) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: contact id is empty", ErrValidation)
	}
	if c.PartnerID == "" {
		return ErrEmptyPartnerID
	}
	if c.Name == "" && c.Email == "" && c.Phone == "" {
		return fmt.Errorf("%w: contact needs a name, email or phone", ErrValidation)
	}
	return nil
}

// ContactRepository manages partner contacts.
type ContactRepository interface {
	ListByPartner(ctx context.Context, partnerID string) ([]Contact, error)
	Save(ctx context.Context, contact *Contact) error
	DeleteByPartner(ctx context.Context, partnerID string) (int, error)
}
