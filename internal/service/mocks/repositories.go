package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu          sync.RWMutex
	links       map[int64]*models.Link
	aliases     map[int64]*models.Alias
	nextLinkID  int64
	nextAliasID int64

	// Grants, when set, lets TransferOwner mirror the real repository's
	// side effects on the grants table.
	Grants *MockGrantRepository

	CreateErr error // forced failure for CreateLinkWithAlias / AddAlias
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:       make(map[int64]*models.Link),
		aliases:     make(map[int64]*models.Alias),
		nextLinkID:  1,
		nextAliasID: 1,
	}
}

func (m *MockLinkRepository) CreateLinkWithAlias(ctx context.Context, link *models.Link, alias *models.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	if alias != nil && m.aliasNameTaken(alias.Name) {
		return repository.ErrAliasExists
	}

	link.ID = m.nextLinkID
	m.nextLinkID++
	link.CreatedAt = time.Now()
	stored := *link
	m.links[link.ID] = &stored

	if alias != nil {
		alias.LinkID = link.ID
		m.insertAlias(alias)
	}
	return nil
}

func (m *MockLinkRepository) AddAlias(ctx context.Context, alias *models.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.aliasNameTaken(alias.Name) {
		return repository.ErrAliasExists
	}
	m.insertAlias(alias)
	return nil
}

// insertAlias assumes the lock is held
func (m *MockLinkRepository) insertAlias(alias *models.Alias) {
	alias.ID = m.nextAliasID
	m.nextAliasID++
	alias.CreatedAt = time.Now()
	stored := *alias
	m.aliases[alias.ID] = &stored
}

// aliasNameTaken assumes the lock is held
func (m *MockLinkRepository) aliasNameTaken(name string) bool {
	for _, a := range m.aliases {
		if a.Name == name && !a.Deleted {
			return true
		}
	}
	return false
}

func (m *MockLinkRepository) GetLinkByID(ctx context.Context, id int64) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[id]
	if !exists || link.Deleted {
		return nil, repository.ErrLinkNotFound
	}
	out := *link
	return &out, nil
}

func (m *MockLinkRepository) GetByAliasName(ctx context.Context, name string) (*models.Resolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.aliases {
		if a.Name != name || a.Deleted {
			continue
		}
		link, exists := m.links[a.LinkID]
		if !exists || link.Deleted {
			continue
		}
		return &models.Resolution{Link: *link, AliasID: a.ID, Alias: a.Name}, nil
	}
	return nil, repository.ErrAliasNotFound
}

// GetAlias, like the real repository, returns soft-deleted aliases too:
// alias-scoped analytics must survive deletion.
func (m *MockLinkRepository) GetAlias(ctx context.Context, aliasID int64) (*models.Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alias, exists := m.aliases[aliasID]
	if !exists {
		return nil, repository.ErrAliasNotFound
	}
	out := *alias
	return &out, nil
}

func (m *MockLinkRepository) ListAliases(ctx context.Context, linkID int64) ([]models.Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Alias
	for _, a := range m.aliases {
		if a.LinkID == linkID && !a.Deleted {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MockLinkRepository) UpdateLink(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.links[link.ID]
	if !exists || stored.Deleted {
		return repository.ErrLinkNotFound
	}
	stored.Title = link.Title
	stored.OriginalURL = link.OriginalURL
	stored.ExpiresAt = link.ExpiresAt
	return nil
}

func (m *MockLinkRepository) SoftDeleteLink(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists || link.Deleted {
		return repository.ErrLinkNotFound
	}
	link.Deleted = true
	return nil
}

func (m *MockLinkRepository) SoftDeleteAlias(ctx context.Context, aliasID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alias, exists := m.aliases[aliasID]
	if !exists || alias.Deleted {
		return repository.ErrAliasNotFound
	}
	alias.Deleted = true
	return nil
}

// ListAccessible only resolves ownership; tests exercising shared access
// go through ACLService, not this listing.
func (m *MockLinkRepository) ListAccessible(ctx context.Context, netid string) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Link
	for _, l := range m.links {
		if l.Owner == netid && !l.Deleted {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *MockLinkRepository) IncrementCounters(ctx context.Context, linkID int64, firstTime bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[linkID]
	if !exists {
		return repository.ErrLinkNotFound
	}
	link.Visits++
	if firstTime {
		link.UniqueVisits++
	}
	return nil
}

func (m *MockLinkRepository) TransferOwner(ctx context.Context, linkID int64, oldOwner, newOwner string) error {
	m.mu.Lock()
	link, exists := m.links[linkID]
	if !exists || link.Deleted || link.Owner != oldOwner {
		m.mu.Unlock()
		return repository.ErrLinkNotFound
	}
	link.Owner = newOwner
	m.mu.Unlock()

	if m.Grants != nil {
		_ = m.Grants.Upsert(ctx, &models.Grant{
			LinkID:      linkID,
			SubjectType: models.SubjectUser,
			Subject:     oldOwner,
			Permission:  models.PermissionEditor,
		})
		_ = m.Grants.Revoke(ctx, linkID, models.SubjectUser, newOwner)
	}
	return nil
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[int64]*models.Link)
	m.aliases = make(map[int64]*models.Alias)
	m.nextLinkID = 1
	m.nextAliasID = 1
	m.CreateErr = nil
}

// MockGrantRepository implements repository.GrantRepository for testing
type MockGrantRepository struct {
	mu     sync.RWMutex
	grants map[string]*models.Grant

	// DirectErr, when set, makes GetDirect fail to simulate a storage
	// outage.
	DirectErr error
}

func NewMockGrantRepository() *MockGrantRepository {
	return &MockGrantRepository{grants: make(map[string]*models.Grant)}
}

func grantKey(linkID int64, subjectType, subject string) string {
	return fmt.Sprintf("%d|%s|%s", linkID, subjectType, subject)
}

func (m *MockGrantRepository) Upsert(ctx context.Context, grant *models.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *grant
	stored.CreatedAt = time.Now()
	m.grants[grantKey(grant.LinkID, grant.SubjectType, grant.Subject)] = &stored
	return nil
}

func (m *MockGrantRepository) Revoke(ctx context.Context, linkID int64, subjectType, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, grantKey(linkID, subjectType, subject))
	return nil
}

func (m *MockGrantRepository) GetDirect(ctx context.Context, linkID int64, netid string) (models.Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.DirectErr != nil {
		return models.PermissionNone, m.DirectErr
	}
	grant, exists := m.grants[grantKey(linkID, models.SubjectUser, netid)]
	if !exists {
		return models.PermissionNone, nil
	}
	return grant.Permission, nil
}

func (m *MockGrantRepository) ListOrgGrants(ctx context.Context, linkID int64) ([]models.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Grant
	for _, g := range m.grants {
		if g.LinkID == linkID && g.SubjectType == models.SubjectOrg {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *MockGrantRepository) ListForLink(ctx context.Context, linkID int64) ([]models.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Grant
	for _, g := range m.grants {
		if g.LinkID == linkID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *MockGrantRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = make(map[string]*models.Grant)
	m.DirectErr = nil
}

// MockOrgRepository implements repository.OrgRepository for testing
type MockOrgRepository struct {
	mu      sync.RWMutex
	orgs    map[int64]*models.Organization
	members map[int64]map[string]*models.OrganizationMember
	nextID  int64
}

func NewMockOrgRepository() *MockOrgRepository {
	return &MockOrgRepository{
		orgs:    make(map[int64]*models.Organization),
		members: make(map[int64]map[string]*models.OrganizationMember),
		nextID:  1,
	}
}

func (m *MockOrgRepository) Create(ctx context.Context, org *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.orgs {
		if existing.Name == org.Name {
			return repository.ErrOrgExists
		}
	}
	org.ID = m.nextID
	m.nextID++
	org.CreatedAt = time.Now()
	stored := *org
	m.orgs[org.ID] = &stored
	m.members[org.ID] = make(map[string]*models.OrganizationMember)
	return nil
}

func (m *MockOrgRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orgs[id]; !exists {
		return repository.ErrOrgNotFound
	}
	delete(m.orgs, id)
	delete(m.members, id)
	return nil
}

func (m *MockOrgRepository) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	org, exists := m.orgs[id]
	if !exists {
		return nil, repository.ErrOrgNotFound
	}
	out := *org
	return &out, nil
}

func (m *MockOrgRepository) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, org := range m.orgs {
		if org.Name == name {
			out := *org
			return &out, nil
		}
	}
	return nil, repository.ErrOrgNotFound
}

func (m *MockOrgRepository) AddMember(ctx context.Context, orgID int64, netid string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, exists := m.members[orgID]
	if !exists {
		return repository.ErrOrgNotFound
	}
	if _, already := members[netid]; already {
		return nil
	}
	members[netid] = &models.OrganizationMember{
		OrgID:   orgID,
		NetID:   netid,
		IsAdmin: isAdmin,
		AddedAt: time.Now(),
	}
	return nil
}

func (m *MockOrgRepository) RemoveMember(ctx context.Context, orgID int64, netid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if members, exists := m.members[orgID]; exists {
		delete(members, netid)
	}
	return nil
}

func (m *MockOrgRepository) SetAdmin(ctx context.Context, orgID int64, netid string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, exists := m.members[orgID]
	if !exists {
		return repository.ErrOrgNotFound
	}
	member, ok := members[netid]
	if !ok {
		return repository.ErrOrgNotFound
	}
	member.IsAdmin = isAdmin
	return nil
}

func (m *MockOrgRepository) IsMember(ctx context.Context, orgID int64, netid string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, exists := m.members[orgID]
	if !exists {
		return false, nil
	}
	_, ok := members[netid]
	return ok, nil
}

func (m *MockOrgRepository) IsAdmin(ctx context.Context, orgID int64, netid string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, exists := m.members[orgID]
	if !exists {
		return false, nil
	}
	member, ok := members[netid]
	return ok && member.IsAdmin, nil
}

func (m *MockOrgRepository) ListMembers(ctx context.Context, orgID int64) ([]models.OrganizationMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.OrganizationMember
	for _, member := range m.members[orgID] {
		out = append(out, *member)
	}
	return out, nil
}

func (m *MockOrgRepository) ListForMember(ctx context.Context, netid string) ([]models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Organization
	for orgID, members := range m.members {
		if _, ok := members[netid]; ok {
			out = append(out, *m.orgs[orgID])
		}
	}
	return out, nil
}

func (m *MockOrgRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs = make(map[int64]*models.Organization)
	m.members = make(map[int64]map[string]*models.OrganizationMember)
	m.nextID = 1
}
