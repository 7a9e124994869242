package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coursegpt/coursegpt/internal/model"
)

// MemoryStore はプロセス内メモリに保持するストア実装。
// ローカル開発（STORE_DRIVER=memory）とテストで使用する。
// 各メソッドは1つのミューテックスで直列化され、返す値は内部状態のコピーである。
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	emails  map[string]string // email → user id
	modules map[string]*model.Module
	lessons map[string]*model.Lesson
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*model.User),
		emails:  make(map[string]string),
		modules: make(map[string]*model.Module),
		lessons: make(map[string]*model.Lesson),
	}
}

// Store はMemoryStoreを各リポジトリとして公開するStoreを返す。
func (s *MemoryStore) Store() *Store {
	return &Store{
		Users:   memoryUsers{s},
		Modules: memoryModules{s},
		Lessons: memoryLessons{s},
	}
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.Modules = append([]string{}, u.Modules...)
	return &c
}

func copyModule(m *model.Module) *model.Module {
	c := *m
	c.Lessons = append([]string{}, m.Lessons...)
	return &c
}

func copyLesson(l *model.Lesson) *model.Lesson {
	c := *l
	c.LearningOutcomes = append([]string{}, l.LearningOutcomes...)
	c.KeyTerms = append([]model.KeyTerm{}, l.KeyTerms...)
	c.Examples = append([]string{}, l.Examples...)
	c.Content = append([]model.ContentSection{}, l.Content...)
	return &c
}

func removeID(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}

// --- users ---

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r memoryUsers) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.s.emails[user.Email]; ok {
		return ErrDuplicate
	}
	r.s.users[user.ID] = copyUser(user)
	r.s.emails[user.Email] = user.ID
	return nil
}

func (r memoryUsers) AddModule(_ context.Context, userID, moduleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if !u.HasModule(moduleID) {
		u.Modules = append(u.Modules, moduleID)
	}
	return nil
}

func (r memoryUsers) RemoveModule(_ context.Context, userID, moduleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[userID]; ok {
		u.Modules, _ = removeID(u.Modules, moduleID)
	}
	return nil
}

func (r memoryUsers) RemoveModuleFromAll(_ context.Context, moduleID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, u := range r.s.users {
		var removed bool
		if u.Modules, removed = removeID(u.Modules, moduleID); removed {
			n++
		}
	}
	return n, nil
}

func (r memoryUsers) ListAll(_ context.Context) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	users := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// --- modules ---

type memoryModules struct{ s *MemoryStore }

func (r memoryModules) FindByID(_ context.Context, id string) (*model.Module, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.modules[id]
	if !ok {
		return nil, nil
	}
	return copyModule(m), nil
}

func (r memoryModules) FindByIDs(_ context.Context, ids []string) ([]*model.Module, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	modules := []*model.Module{}
	for _, id := range ids {
		if m, ok := r.s.modules[id]; ok {
			modules = append(modules, copyModule(m))
		}
	}
	return modules, nil
}

func (r memoryModules) Create(_ context.Context, m *model.Module) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.modules[m.ID] = copyModule(m)
	return nil
}

func (r memoryModules) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.modules[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.modules, id)
	return nil
}

func (r memoryModules) AppendLesson(_ context.Context, moduleID, lessonID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.modules[moduleID]
	if !ok {
		return ErrNotFound
	}
	m.Lessons = append(m.Lessons, lessonID)
	return nil
}

func (r memoryModules) RemoveLesson(_ context.Context, moduleID, lessonID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.modules[moduleID]; ok {
		m.Lessons, _ = removeID(m.Lessons, lessonID)
	}
	return nil
}

func (r memoryModules) RemoveLessonFromAll(_ context.Context, lessonID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.modules {
		var removed bool
		if m.Lessons, removed = removeID(m.Lessons, lessonID); removed {
			n++
		}
	}
	return n, nil
}

func (r memoryModules) ListAll(_ context.Context) ([]*model.Module, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	modules := make([]*model.Module, 0, len(r.s.modules))
	for _, m := range r.s.modules {
		modules = append(modules, copyModule(m))
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })
	return modules, nil
}

// --- lessons ---

type memoryLessons struct{ s *MemoryStore }

func (r memoryLessons) FindByID(_ context.Context, id string) (*model.Lesson, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.lessons[id]
	if !ok {
		return nil, nil
	}
	return copyLesson(l), nil
}

func (r memoryLessons) FindByIDs(_ context.Context, ids []string) ([]*model.Lesson, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	lessons := []*model.Lesson{}
	for _, id := range ids {
		if l, ok := r.s.lessons[id]; ok {
			lessons = append(lessons, copyLesson(l))
		}
	}
	return lessons, nil
}

func (r memoryLessons) Create(_ context.Context, l *model.Lesson) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fillEmptyLessonFields(l)
	r.s.lessons[l.ID] = copyLesson(l)
	return nil
}

func (r memoryLessons) Update(_ context.Context, id string, patch model.LessonPatch, updatedAt time.Time) (*model.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lessons[id]
	if !ok {
		return nil, nil
	}
	patch.Apply(l)
	fillEmptyLessonFields(l)
	l.UpdatedAt = updatedAt
	r.s.lessons[id] = copyLesson(l)
	return copyLesson(l), nil
}

func (r memoryLessons) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lessons[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.lessons, id)
	return nil
}

func (r memoryLessons) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.s.lessons[id]; ok {
			delete(r.s.lessons, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var (
	_ UserRepository   = memoryUsers{}
	_ ModuleRepository = memoryModules{}
	_ LessonRepository = memoryLessons{}
)
