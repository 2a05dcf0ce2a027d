package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

type adminRepo struct{ db *DB }

func (r *adminRepo) Create(_ context.Context, a *model.Admin) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cur := range r.db.admins {
		if strings.EqualFold(cur.Email, a.Email) {
			return repository.ErrDuplicate
		}
	}
	r.db.nextAdminID++
	now := time.Now()
	a.ID, a.CreatedAt, a.UpdatedAt = r.db.nextAdminID, now, now
	cp := *a
	r.db.admins[a.ID] = &cp
	return nil
}

func (r *adminRepo) GetByID(_ context.Context, id int) (*model.Admin, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	a, ok := r.db.admins[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *adminRepo) GetByEmail(_ context.Context, email string) (*model.Admin, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, a := range r.db.admins {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *adminRepo) List(_ context.Context, role model.AdminRole) ([]model.Admin, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.Admin, 0)
	for _, a := range r.db.admins {
		if role == "" || a.Role == role {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *adminRepo) update(id int, fn func(a *model.Admin)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.admins[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func (r *adminRepo) SetActive(_ context.Context, id int, active bool) error {
	return r.update(id, func(a *model.Admin) { a.IsActive = active })
}

func (r *adminRepo) UpdatePassword(_ context.Context, id int, hash string) error {
	return r.update(id, func(a *model.Admin) { a.PasswordHash = hash })
}

func (r *adminRepo) Delete(_ context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.admins[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.admins, id)
	return nil
}

func (r *adminRepo) Stats(_ context.Context) ([]model.AdminStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.AdminStats, 0)
	for _, a := range r.db.admins {
		if a.Role != model.AdminRoleAdmin {
			continue
		}
		s := model.AdminStats{AdminID: a.ID, Name: a.Name, Email: a.Email}
		for _, t := range r.db.tests {
			if t.CreatedBy == a.ID {
				s.TotalTests++
			}
		}
		for _, k := range r.db.keys {
			if k.CreatedBy == a.ID {
				s.TotalKeys++
			}
		}
		for _, at := range r.db.attempts {
			if k, ok := r.db.keys[at.TestKey]; ok && k.CreatedBy == a.ID {
				s.TotalAttempts++
				if at.IsSubmitted {
					s.SubmittedCount++
				}
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type studentRepo struct{ db *DB }

func (r *studentRepo) Create(_ context.Context, s *model.Student) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cur := range r.db.students {
		if strings.EqualFold(cur.Email, s.Email) {
			return repository.ErrDuplicate
		}
	}
	r.db.nextStudentID++
	now := time.Now()
	s.ID, s.CreatedAt, s.UpdatedAt = r.db.nextStudentID, now, now
	cp := *s
	r.db.students[s.ID] = &cp
	return nil
}

func (r *studentRepo) GetByID(_ context.Context, id int) (*model.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	s, ok := r.db.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *studentRepo) GetByEmail(_ context.Context, email string) (*model.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, s := range r.db.students {
		if strings.EqualFold(s.Email, email) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *studentRepo) FindByFullName(_ context.Context, name string) (*model.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var found *model.Student
	for _, s := range r.db.students {
		if s.FullName == name && (found == nil || s.ID < found.ID) {
			found = s
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *studentRepo) UpdateFullName(_ context.Context, id int, name string) (*model.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.FullName = name
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

type violationRepo struct{ db *DB }

func (r *violationRepo) InsertBatch(_ context.Context, batch []model.Violation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, v := range batch {
		r.db.nextViolationID++
		v.ID = r.db.nextViolationID
		r.db.violations = append(r.db.violations, v)
	}
	return nil
}

func (r *violationRepo) Insert(_ context.Context, v *model.Violation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.nextViolationID++
	v.ID = r.db.nextViolationID
	r.db.violations = append(r.db.violations, *v)
	return nil
}

func (r *violationRepo) CountByTest(_ context.Context, testID uuid.UUID) (map[uuid.UUID]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	counts := make(map[uuid.UUID]int)
	for _, v := range r.db.violations {
		if v.TestID == testID {
			counts[v.AttemptID]++
		}
	}
	return counts, nil
}
