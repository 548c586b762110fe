package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	stations "mobbi-manager/internal/stations/domain"
)

// Store is an in-memory backing for the stations repositories. Allocations
// are kept in their encoded form so reads go through the same decoding as
// the Postgres adapter.
type Store struct {
	mu       sync.RWMutex
	areas    map[string]stations.Area
	partners map[string]partnerRow
	contacts map[string][]stations.Contact
	models   map[string]stations.StationModel
	colors   map[string]stations.StationColor
}

type partnerRow struct {
	partner   stations.Partner
	requested []byte
	allocated []byte
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		areas:    make(map[string]stations.Area),
		partners: make(map[string]partnerRow),
		contacts: make(map[string][]stations.Contact),
		models:   make(map[string]stations.StationModel),
		colors:   make(map[string]stations.StationColor),
	}
}

// Areas returns the area repository view.
func (s *Store) Areas() *AreaRepository { return &AreaRepository{store: s} }

// Partners returns the partner repository view.
func (s *Store) Partners() *PartnerRepository { return &PartnerRepository{store: s} }

// Contacts returns the contact repository view.
func (s *Store) Contacts() *ContactRepository { return &ContactRepository{store: s} }

// Catalog returns the catalog view.
func (s *Store) Catalog() *Catalog { return &Catalog{store: s} }

// PutModel registers a station model.
func (s *Store) PutModel(model stations.StationModel) {
	s.mu.Lock()
	s.models[model.ID] = model
	s.mu.Unlock()
}

// PutColor registers a station color.
func (s *Store) PutColor(color stations.StationColor) {
	s.mu.Lock()
	s.colors[color.ID] = color
	s.mu.Unlock()
}

// SetRawAllocation overwrites a partner's stored allocation as-is.
func (s *Store) SetRawAllocation(partnerID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.partners[partnerID]
	if !ok {
		return stations.ErrPartnerNotFound
	}
	row.allocated = append([]byte(nil), raw...)
	s.partners[partnerID] = row
	return nil
}

// SetRawRequests overwrites a partner's stored requests as-is.
func (s *Store) SetRawRequests(partnerID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.partners[partnerID]
	if !ok {
		return stations.ErrPartnerNotFound
	}
	row.requested = append([]byte(nil), raw...)
	s.partners[partnerID] = row
	return nil
}

// RawRequests returns a partner's stored requests as-is.
func (s *Store) RawRequests(partnerID string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.partners[partnerID].requested...)
}

// AreaRepository is an in-memory area repository.
type AreaRepository struct {
	store *Store
}

// Get loads an area by id.
func (r *AreaRepository) Get(ctx context.Context, id string) (*stations.Area, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	area, ok := r.store.areas[id]
	if !ok {
		return nil, nil
	}
	return &area, nil
}

// List returns all areas ordered by name.
func (r *AreaRepository) List(ctx context.Context) ([]stations.Area, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	result := make([]stations.Area, 0, len(r.store.areas))
	for _, area := range r.store.areas {
		result = append(result, area)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Save upserts an area guarded by its allocation version.
func (r *AreaRepository) Save(ctx context.Context, area *stations.Area) error {
	_ = ctx
	if area == nil {
		return stations.ErrEmptyAreaID
	}
	if err := area.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := r.store.areas[area.ID]
	if ok {
		if existing.AllocationVersion != area.AllocationVersion {
			return stations.ErrAllocationConflict
		}
		area.CreatedAt = existing.CreatedAt
	} else {
		area.CreatedAt = now
	}
	area.AllocationVersion++
	area.UpdatedAt = now
	r.store.areas[area.ID] = *area
	return nil
}

// PartnerRepository is an in-memory partner repository.
type PartnerRepository struct {
	store *Store
}

// Get loads a partner by id.
func (r *PartnerRepository) Get(ctx context.Context, id string) (*stations.Partner, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.partners[id]
	if !ok {
		return nil, nil
	}
	partner := row.decode()
	return &partner, nil
}

// ListByArea returns the partners of an area ordered by name.
func (r *PartnerRepository) ListByArea(ctx context.Context, areaID string) ([]stations.Partner, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var result []stations.Partner
	for _, row := range r.store.partners {
		if row.partner.AreaID != areaID {
			continue
		}
		result = append(result, row.decode())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// AllocationsByArea returns the decoded allocation of every partner in the area.
func (r *PartnerRepository) AllocationsByArea(ctx context.Context, areaID string) ([]stations.AllocationRecord, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var records []stations.AllocationRecord
	for id, row := range r.store.partners {
		if row.partner.AreaID != areaID {
			continue
		}
		grants, err := stations.DecodeGrants(row.allocated)
		records = append(records, stations.AllocationRecord{PartnerID: id, Grants: grants, Err: err})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PartnerID < records[j].PartnerID })
	return records, nil
}

// Save upserts partner details, keeping any stored allocation.
func (r *PartnerRepository) Save(ctx context.Context, partner *stations.Partner) error {
	_ = ctx
	if partner == nil {
		return stations.ErrEmptyPartnerID
	}
	if err := partner.Validate(); err != nil {
		return err
	}
	requested, err := stations.EncodeRequests(partner.Requested)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now().UTC()
	row, ok := r.store.partners[partner.ID]
	if ok {
		partner.CreatedAt = row.partner.CreatedAt
		partner.AllocatedAt = row.partner.AllocatedAt
		partner.DeletingAt = row.partner.DeletingAt
	} else {
		partner.CreatedAt = now
	}
	if partner.Status == "" {
		partner.Status = stations.StatusContact
	}
	partner.UpdatedAt = now

	stored := *partner
	stored.Requested = nil
	stored.Allocated = nil
	stored.AllocationErr = nil
	stored.RequestsErr = nil
	row.partner = stored
	if !ok || partner.RequestsErr == nil {
		row.requested = requested
	}
	r.store.partners[partner.ID] = row
	return nil
}

// CommitAllocation writes grants and status when the area version and the
// partner's empty allocation still hold.
func (r *PartnerRepository) CommitAllocation(ctx context.Context, commit stations.AllocationCommit) error {
	_ = ctx
	encoded, err := stations.EncodeGrants(commit.Grants)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	area, ok := r.store.areas[commit.AreaID]
	if !ok || area.AllocationVersion != commit.ExpectedAreaVersion {
		return stations.ErrAllocationConflict
	}
	row, ok := r.store.partners[commit.PartnerID]
	if !ok {
		return stations.ErrPartnerNotFound
	}
	if row.partner.AreaID != commit.AreaID || !row.partner.DeletingAt.IsZero() {
		return stations.ErrAllocationConflict
	}
	existing, err := stations.DecodeGrants(row.allocated)
	if err != nil || len(existing) > 0 {
		return stations.ErrAllocationConflict
	}

	row.allocated = encoded
	row.partner.Status = commit.Status
	row.partner.AllocatedAt = commit.AllocatedAt
	row.partner.UpdatedAt = time.Now().UTC()
	r.store.partners[commit.PartnerID] = row

	area.AllocationVersion++
	area.UpdatedAt = row.partner.UpdatedAt
	r.store.areas[area.ID] = area
	return nil
}

// MarkDeleting flags a partner for deletion, optionally only while it is
// still unallocated.
func (r *PartnerRepository) MarkDeleting(ctx context.Context, id string, expectUnallocated bool) error {
	_ = ctx
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	row, ok := r.store.partners[id]
	if !ok {
		return stations.ErrPartnerNotFound
	}
	if expectUnallocated {
		existing, err := stations.DecodeGrants(row.allocated)
		if err != nil || len(existing) > 0 {
			return stations.ErrAllocationConflict
		}
	}
	if row.partner.DeletingAt.IsZero() {
		row.partner.DeletingAt = time.Now().UTC()
		r.store.partners[id] = row
	}
	return nil
}

// Delete removes a partner.
func (r *PartnerRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.partners[id]; !ok {
		return stations.ErrPartnerNotFound
	}
	delete(r.store.partners, id)
	return nil
}

func (row partnerRow) decode() stations.Partner {
	partner := row.partner
	partner.Requested, partner.RequestsErr = stations.DecodeRequests(row.requested)
	grants, err := stations.DecodeGrants(row.allocated)
	partner.Allocated = grants
	partner.AllocationErr = err
	return partner
}

// ContactRepository is an in-memory contact repository.
type ContactRepository struct {
	store *Store
}

// ListByPartner returns a partner's contacts in insertion order.
func (r *ContactRepository) ListByPartner(ctx context.Context, partnerID string) ([]stations.Contact, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	contacts := r.store.contacts[partnerID]
	return append([]stations.Contact(nil), contacts...), nil
}

// Save upserts a contact.
func (r *ContactRepository) Save(ctx context.Context, contact *stations.Contact) error {
	_ = ctx
	if contact == nil {
		return stations.ErrEmptyPartnerID
	}
	if err := contact.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}
	contacts := r.store.contacts[contact.PartnerID]
	for i := range contacts {
		if contacts[i].ID == contact.ID {
			contacts[i] = *contact
			return nil
		}
	}
	r.store.contacts[contact.PartnerID] = append(contacts, *contact)
	return nil
}

// DeleteByPartner removes all contacts of a partner.
func (r *ContactRepository) DeleteByPartner(ctx context.Context, partnerID string) (int, error) {
	_ = ctx
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := len(r.store.contacts[partnerID])
	delete(r.store.contacts, partnerID)
	return count, nil
}

// Catalog is an in-memory station catalog.
type Catalog struct {
	store *Store
}

// GetModel loads a model by id.
func (c *Catalog) GetModel(ctx context.Context, id string) (*stations.StationModel, error) {
	_ = ctx
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	model, ok := c.store.models[id]
	if !ok {
		return nil, nil
	}
	return &model, nil
}

// GetColor loads a color by id.
func (c *Catalog) GetColor(ctx context.Context, id string) (*stations.StationColor, error) {
	_ = ctx
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	color, ok := c.store.colors[id]
	if !ok {
		return nil, nil
	}
	return &color, nil
}
