package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/models"
	id "consent-ledger/pkg/domain"
	"consent-ledger/pkg/platform/sentinel"
)

// Error Contract:
// - Lookups return sentinel.ErrNotFound when the entity does not exist
// - Reads return copies; callers mutate and write back through Update*

type pairKey struct {
	study       id.StudyID
	participant identity.Address
}

// InMemoryStore keeps the ledger in process memory. Ids start at 1 and come
// from counters owned by the store.
type InMemoryStore struct {
	mu          sync.RWMutex
	nextStudy   id.StudyID
	nextConsent id.ConsentID
	studies     map[id.StudyID]*models.Study
	consents    map[id.ConsentID]*models.Consent
	pairs       map[pairKey]id.ConsentID
	permissions map[id.ConsentID][]models.Permission
}

func New() *InMemoryStore {
	return &InMemoryStore{
		nextStudy:   1,
		nextConsent: 1,
		studies:     make(map[id.StudyID]*models.Study),
		consents:    make(map[id.ConsentID]*models.Consent),
		pairs:       make(map[pairKey]id.ConsentID),
		permissions: make(map[id.ConsentID][]models.Permission),
	}
}

func (s *InMemoryStore) CreateStudy(_ context.Context, study *models.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	study.ID = s.nextStudy
	s.nextStudy++
	c := *study
	s.studies[study.ID] = &c
	return nil
}

func (s *InMemoryStore) GetStudy(_ context.Context, studyID id.StudyID) (*models.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	study, ok := s.studies[studyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *study
	return &c, nil
}

func (s *InMemoryStore) ListStudies(_ context.Context) ([]*models.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Study, 0, len(s.studies))
	for _, study := range s.studies {
		c := *study
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.Study) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *InMemoryStore) UpdateStudy(_ context.Context, study *models.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[study.ID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *study
	s.studies[study.ID] = &c
	return nil
}

// CreateConsent assigns the next consent id and points the (study,
// participant) index at it, replacing any earlier mapping.
func (s *InMemoryStore) CreateConsent(_ context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[consent.StudyID]; !ok {
		return sentinel.ErrNotFound
	}
	consent.ID = s.nextConsent
	s.nextConsent++
	s.consents[consent.ID] = copyConsent(consent)
	s.pairs[pairKey{consent.StudyID, consent.Participant}] = consent.ID
	return nil
}

func (s *InMemoryStore) GetConsent(_ context.Context, consentID id.ConsentID) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	consent, ok := s.consents[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyConsent(consent), nil
}

func (s *InMemoryStore) UpdateConsent(_ context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[consent.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.consents[consent.ID] = copyConsent(consent)
	return nil
}

func (s *InMemoryStore) FindConsentIDByPair(_ context.Context, studyID id.StudyID, participant identity.Address) (id.ConsentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	consentID, ok := s.pairs[pairKey{studyID, participant}]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return consentID, nil
}

func (s *InMemoryStore) ListConsentsByStudy(_ context.Context, studyID id.StudyID) ([]*models.Consent, error) {
	return s.listConsents(func(c *models.Consent) bool { return c.StudyID == studyID }), nil
}

func (s *InMemoryStore) ListConsentsByParticipant(_ context.Context, participant identity.Address) ([]*models.Consent, error) {
	return s.listConsents(func(c *models.Consent) bool { return c.Participant == participant }), nil
}

func (s *InMemoryStore) listConsents(match func(*models.Consent) bool) []*models.Consent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Consent
	for _, c := range s.consents {
		if match(c) {
			out = append(out, copyConsent(c))
		}
	}
	slices.SortFunc(out, func(a, b *models.Consent) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// SetPermission upserts a permission. A new key is appended after the
// existing ones so enumeration follows first introduction.
func (s *InMemoryStore) SetPermission(_ context.Context, consentID id.ConsentID, key string, granted bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[consentID]; !ok {
		return sentinel.ErrNotFound
	}
	perms := s.permissions[consentID]
	for i := range perms {
		if perms[i].Key == key {
			perms[i].Granted = granted
			perms[i].UpdatedAt = now
			return nil
		}
	}
	s.permissions[consentID] = append(perms, models.Permission{
		ConsentID: consentID,
		Key:       key,
		Granted:   granted,
		Position:  len(perms),
		UpdatedAt: now,
	})
	return nil
}

func (s *InMemoryStore) GetPermission(_ context.Context, consentID id.ConsentID, key string) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions[consentID] {
		if p.Key == key {
			return &p, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListPermissions(_ context.Context, consentID id.ConsentID) ([]models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.permissions[consentID]), nil
}

func copyConsent(c *models.Consent) *models.Consent {
	out := *c
	if c.RespondedAt != nil {
		t := *c.RespondedAt
		out.RespondedAt = &t
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
