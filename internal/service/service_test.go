package service

// service_test.go — in-memory фейки шлюза платформы и репозиториев.
// Сервисы тестируются против них без сети и базы данных.

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bigkaa/search-bridge/internal/domain/model"
	"github.com/bigkaa/search-bridge/internal/repository"
	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// testLogger возвращает логгер, пишущий в никуда.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Фейковый шлюз платформы ---

// fakeGateway — in-memory состояние поисковой платформы.
// Записывает количества вызовов для проверки идемпотентности.
type fakeGateway struct {
	mu sync.Mutex

	connection *searchplatform.Connection
	schema     *searchplatform.Schema
	groups     map[string]searchplatform.ExternalGroup
	members    map[string]map[string]searchplatform.GroupMember
	items      map[string]*searchplatform.ExternalItem

	itemUpserts   map[string]int
	itemDeletes   []string
	groupCreates  int
	schemaUpdates int

	// errGetItem подменяет результат GetItem для инъекции сбоев
	errGetItem error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		groups:      make(map[string]searchplatform.ExternalGroup),
		members:     make(map[string]map[string]searchplatform.GroupMember),
		items:       make(map[string]*searchplatform.ExternalItem),
		itemUpserts: make(map[string]int),
	}
}

func (g *fakeGateway) GetConnection(_ context.Context) (*searchplatform.Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connection == nil {
		return nil, searchplatform.ErrNotFound
	}
	return g.connection, nil
}

func (g *fakeGateway) CreateConnection(_ context.Context, name, description string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connection != nil {
		return searchplatform.ErrConflict
	}
	g.connection = &searchplatform.Connection{ID: "test-conn", Name: name, Description: description}
	return nil
}

func (g *fakeGateway) GetSchema(_ context.Context) (*searchplatform.Schema, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.schema == nil {
		return nil, searchplatform.ErrNotFound
	}
	return g.schema, nil
}

func (g *fakeGateway) UpdateSchema(_ context.Context, schema *searchplatform.Schema) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.schema = schema
	g.schemaUpdates++
	return nil
}

func (g *fakeGateway) GetGroup(_ context.Context, groupID string) (*searchplatform.ExternalGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return nil, searchplatform.ErrNotFound
	}
	return &grp, nil
}

func (g *fakeGateway) CreateGroup(_ context.Context, group searchplatform.ExternalGroup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groupCreates++
	if _, ok := g.groups[group.ID]; ok {
		return searchplatform.ErrConflict
	}
	g.groups[group.ID] = group
	return nil
}

func (g *fakeGateway) DeleteGroup(_ context.Context, groupID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[groupID]; !ok {
		return searchplatform.ErrNotFound
	}
	delete(g.groups, groupID)
	delete(g.members, groupID)
	return nil
}

func (g *fakeGateway) AddGroupMember(_ context.Context, groupID string, member searchplatform.GroupMember) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[groupID]; !ok {
		return searchplatform.ErrNotFound
	}
	if g.members[groupID] == nil {
		g.members[groupID] = make(map[string]searchplatform.GroupMember)
	}
	if _, ok := g.members[groupID][member.ID]; ok {
		return searchplatform.ErrConflict
	}
	g.members[groupID][member.ID] = member
	return nil
}

func (g *fakeGateway) RemoveGroupMember(_ context.Context, groupID, memberID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[groupID][memberID]; !ok {
		return searchplatform.ErrNotFound
	}
	delete(g.members[groupID], memberID)
	return nil
}

func (g *fakeGateway) GetItem(_ context.Context, itemID string) (*searchplatform.ExternalItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errGetItem != nil {
		return nil, g.errGetItem
	}
	item, ok := g.items[itemID]
	if !ok {
		return nil, searchplatform.ErrNotFound
	}
	return copyItem(item), nil
}

// UpsertItem повторяет частичную семантику платформы: незаполненные части
// входящего элемента не трогают сохранённое состояние.
func (g *fakeGateway) UpsertItem(_ context.Context, item *searchplatform.ExternalItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.itemUpserts[item.ID]++

	existing, ok := g.items[item.ID]
	if !ok {
		g.items[item.ID] = copyItem(item)
		return nil
	}
	if item.Content != nil {
		c := *item.Content
		existing.Content = &c
	}
	if item.Properties != nil {
		if existing.Properties == nil {
			existing.Properties = &searchplatform.ItemProperties{}
		}
		mergeProperties(existing.Properties, item.Properties)
	}
	if item.ACL != nil {
		existing.ACL = append([]searchplatform.ACLEntry(nil), item.ACL...)
	}
	return nil
}

func (g *fakeGateway) DeleteItem(_ context.Context, itemID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.itemDeletes = append(g.itemDeletes, itemID)
	if _, ok := g.items[itemID]; !ok {
		return searchplatform.ErrNotFound
	}
	delete(g.items, itemID)
	return nil
}

func copyItem(item *searchplatform.ExternalItem) *searchplatform.ExternalItem {
	out := &searchplatform.ExternalItem{ID: item.ID}
	if item.Content != nil {
		c := *item.Content
		out.Content = &c
	}
	if item.Properties != nil {
		p := *item.Properties
		out.Properties = &p
	}
	if item.ACL != nil {
		out.ACL = append([]searchplatform.ACLEntry(nil), item.ACL...)
	}
	return out
}

// mergeProperties повторяет omit-empty семантику провода: пустые поля
// входящих свойств не затирают сохранённые.
func mergeProperties(dst, src *searchplatform.ItemProperties) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.RoxFileID != "" {
		dst.RoxFileID = src.RoxFileID
	}
	if src.IconURL != "" {
		dst.IconURL = src.IconURL
	}
	if src.KnowledgePoolIDs != "" {
		dst.KnowledgePoolIDs = src.KnowledgePoolIDs
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
}

// --- Фейковое локальное хранилище ---

// fakeStore — in-memory реализация всех репозиториев и AttachmentWriter.
type fakeStore struct {
	mu          sync.Mutex
	groupByPool map[string]*model.GroupMapping
	itemByFile  map[string]*model.ItemMapping
	memberships []model.Membership
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groupByPool: make(map[string]*model.GroupMapping),
		itemByFile:  make(map[string]*model.ItemMapping),
	}
}

// GroupMappingRepository

func (s *fakeStore) Create(_ context.Context, m *model.GroupMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groupByPool[m.PoolID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range s.groupByPool {
		if existing.GroupID == m.GroupID {
			return repository.ErrConflict
		}
	}
	cp := *m
	s.groupByPool[m.PoolID] = &cp
	return nil
}

func (s *fakeStore) GetByPoolID(_ context.Context, poolID string) (*model.GroupMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.groupByPool[poolID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) Delete(_ context.Context, poolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groupByPool[poolID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.groupByPool, poolID)
	return nil
}

func (s *fakeStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groupByPool), nil
}

// groupRepo возвращает фейк как GroupMappingRepository.
func (s *fakeStore) groupRepo() repository.GroupMappingRepository { return s }

// fakeItemRepo — обёртка над fakeStore под интерфейс ItemMappingRepository.
// Отдельный тип: методы Create/Delete/Count конфликтуют с групповыми.
type fakeItemRepo struct{ s *fakeStore }

func (r *fakeItemRepo) Create(_ context.Context, m *model.ItemMapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.itemByFile[m.FileID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.s.itemByFile {
		if existing.ItemID == m.ItemID {
			return repository.ErrConflict
		}
	}
	cp := *m
	r.s.itemByFile[m.FileID] = &cp
	return nil
}

func (r *fakeItemRepo) GetByFileID(_ context.Context, fileID string) (*model.ItemMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.itemByFile[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeItemRepo) Delete(_ context.Context, fileID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.itemByFile[fileID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.itemByFile, fileID)
	return nil
}

func (r *fakeItemRepo) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.itemByFile), nil
}

// fakeMembershipRepo — обёртка под интерфейс MembershipRepository.
// Порядок членств сохраняется как порядок добавления.
type fakeMembershipRepo struct{ s *fakeStore }

func (r *fakeMembershipRepo) Create(_ context.Context, fileID, poolID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.memberships {
		if m.FileID == fileID && m.PoolID == poolID {
			return repository.ErrConflict
		}
	}
	r.s.memberships = append(r.s.memberships, model.Membership{FileID: fileID, PoolID: poolID})
	return nil
}

func (r *fakeMembershipRepo) Delete(_ context.Context, fileID, poolID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, m := range r.s.memberships {
		if m.FileID == fileID && m.PoolID == poolID {
			r.s.memberships = append(r.s.memberships[:i], r.s.memberships[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeMembershipRepo) DeleteByPool(_ context.Context, poolID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.memberships[:0]
	removed := 0
	for _, m := range r.s.memberships {
		if m.PoolID == poolID {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	r.s.memberships = kept
	return removed, nil
}

func (r *fakeMembershipRepo) ListPoolsByFile(_ context.Context, fileID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pools []string
	for _, m := range r.s.memberships {
		if m.FileID == fileID {
			pools = append(pools, m.PoolID)
		}
	}
	return pools, nil
}

func (r *fakeMembershipRepo) ListFilesByPool(_ context.Context, poolID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var files []string
	for _, m := range r.s.memberships {
		if m.PoolID == poolID {
			files = append(files, m.FileID)
		}
	}
	return files, nil
}

func (r *fakeMembershipRepo) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.memberships), nil
}

// fakeAttachmentWriter — идемпотентная запись привязки поверх фейков.
type fakeAttachmentWriter struct {
	items       *fakeItemRepo
	memberships *fakeMembershipRepo
}

func (w *fakeAttachmentWriter) SaveAttachment(ctx context.Context, m *model.ItemMapping, poolID string) error {
	if err := w.items.Create(ctx, m); err != nil && err != repository.ErrConflict {
		return err
	}
	if err := w.memberships.Create(ctx, m.FileID, poolID); err != nil && err != repository.ErrConflict {
		return err
	}
	return nil
}

// --- Сборка сервисов под тест ---

// testEnv — собранный набор сервисов поверх фейков.
type testEnv struct {
	gateway   *fakeGateway
	store     *fakeStore
	itemRepo  *fakeItemRepo
	mbrRepo   *fakeMembershipRepo
	bootstrap *BootstrapService
	groups    *GroupService
	items     *ItemService
	members   *MemberService
}

// newTestEnv собирает сервисы с заданным флагом обхода membership API.
func newTestEnv(t *testing.T, aclWorkaround bool) *testEnv {
	t.Helper()

	gateway := newFakeGateway()
	store := newFakeStore()
	itemRepo := &fakeItemRepo{s: store}
	mbrRepo := &fakeMembershipRepo{s: store}
	logger := testLogger()

	bootstrap := NewBootstrapService(gateway, "test-conn", logger)
	groups := NewGroupService(gateway, store.groupRepo(), mbrRepo, logger)
	items := NewItemService(gateway, bootstrap, groups, itemRepo, mbrRepo,
		&fakeAttachmentWriter{items: itemRepo, memberships: mbrRepo},
		"https://rox.example.com", aclWorkaround, logger)
	groups.SetDetacher(items)
	members := NewMemberService(gateway, groups, aclWorkaround, logger)

	return &testEnv{
		gateway:   gateway,
		store:     store,
		itemRepo:  itemRepo,
		mbrRepo:   mbrRepo,
		bootstrap: bootstrap,
		groups:    groups,
		items:     items,
		members:   members,
	}
}
