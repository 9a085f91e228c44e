package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	subs map[string]*admindomain.Submission
	now  func() time.Time

	// beforeSave はテストから version 競合を差し込むためのフック。
	beforeSave func(sub *admindomain.Submission)
	// failFinalize の回数だけ Finalize が一時的なエラーを返す。
	failFinalize int
}

func newFakeSubmissionRepo(subs ...admindomain.Submission) *fakeSubmissionRepo {
	repo := &fakeSubmissionRepo{subs: map[string]*admindomain.Submission{}, now: time.Now}
	for _, sub := range subs {
		copied := sub
		repo.subs[sub.ID] = &copied
	}
	return repo
}

func (r *fakeSubmissionRepo) get(id string) admindomain.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.subs[id]
}

func (r *fakeSubmissionRepo) Find(_ context.Context, filter SubmissionFilter) ([]admindomain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []admindomain.Submission{}
	for _, sub := range r.subs {
		if sub.Status == filter.Status {
			result = append(result, *sub)
		}
	}
	return result, nil
}

func (r *fakeSubmissionRepo) FindByID(_ context.Context, id string) (*admindomain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubmissionRepo) Claim(_ context.Context, id string, claim admindomain.ReviewClaim) (*admindomain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.Status != admindomain.SubmissionPending {
		return nil, apperror.ErrPreconditionFailed
	}
	if c := sub.ReviewClaim; c != nil && c.ExpiresAt.After(r.now()) {
		return nil, apperror.ErrPreconditionFailed
	}
	sub.ReviewClaim = &claim
	copied := *sub
	return &copied, nil
}

func (r *fakeSubmissionRepo) Renew(_ context.Context, id, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.Status != admindomain.SubmissionPending || !sub.ReviewClaim.HeldBy(token, r.now()) {
		return apperror.ErrPreconditionFailed
	}
	claim := *sub.ReviewClaim
	claim.ExpiresAt = expiresAt
	sub.ReviewClaim = &claim
	return nil
}

func (r *fakeSubmissionRepo) Release(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[id]; ok && sub.ReviewClaim != nil && sub.ReviewClaim.Token == token {
		sub.ReviewClaim = nil
	}
	return nil
}

func (r *fakeSubmissionRepo) Finalize(_ context.Context, sub *admindomain.Submission, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFinalize > 0 {
		r.failFinalize--
		return errors.New("write concern timeout")
	}
	current, ok := r.subs[sub.ID]
	if !ok || current.Status != admindomain.SubmissionPending || current.ReviewClaim == nil || current.ReviewClaim.Token != token {
		return apperror.ErrPreconditionFailed
	}
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeSubmissionRepo) UpdatePending(_ context.Context, sub *admindomain.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.subs[sub.ID]
	if !ok || current.Status != admindomain.SubmissionPending || current.Version != sub.Version {
		return apperror.ErrPreconditionFailed
	}
	if c := current.ReviewClaim; c != nil && c.ExpiresAt.After(r.now()) {
		return apperror.ErrPreconditionFailed
	}
	copied := *sub
	copied.Version++
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeSubmissionRepo) SaveAnalysis(_ context.Context, sub *admindomain.Submission) error {
	if r.beforeSave != nil {
		r.beforeSave(sub)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.subs[sub.ID]
	if !ok || current.Version != sub.Version || current.Status != admindomain.SubmissionPending {
		return apperror.ErrPreconditionFailed
	}
	copied := *sub
	copied.Version++
	r.subs[sub.ID] = &copied
	return nil
}

type fakeLocationRepo struct {
	mu        sync.Mutex
	locations map[string]*admindomain.Location
	inserts   int
	// failInserts / failBackfills の回数だけ一時的なエラーを返す。
	failInserts   int
	failBackfills int
}

func newFakeLocationRepo(locs ...admindomain.Location) *fakeLocationRepo {
	repo := &fakeLocationRepo{locations: map[string]*admindomain.Location{}}
	for _, loc := range locs {
		copied := loc
		repo.locations[loc.ID] = &copied
	}
	return repo
}

func (r *fakeLocationRepo) get(id string) (admindomain.Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.locations[id]
	if !ok {
		return admindomain.Location{}, false
	}
	return *loc, true
}

func (r *fakeLocationRepo) Find(_ context.Context, filter LocationFilter) ([]admindomain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []admindomain.Location{}
	for _, loc := range r.locations {
		if filter.Status == "" || loc.Status == filter.Status {
			result = append(result, *loc)
		}
	}
	return result, nil
}

func (r *fakeLocationRepo) FindByID(_ context.Context, id string) (*admindomain.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.locations[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	copied := *loc
	return &copied, nil
}

func (r *fakeLocationRepo) Insert(_ context.Context, loc *admindomain.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInserts > 0 {
		r.failInserts--
		return errors.New("connection reset by peer")
	}
	if _, ok := r.locations[loc.ID]; ok {
		return apperror.ErrAlreadyExists
	}
	copied := *loc
	r.locations[loc.ID] = &copied
	r.inserts++
	return nil
}

func (r *fakeLocationRepo) ApplyPhotoBackfill(_ context.Context, id string, fill admindomain.PhotoBackfill, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBackfills > 0 {
		r.failBackfills--
		return errors.New("connection reset by peer")
	}
	loc, ok := r.locations[id]
	if !ok || len(loc.Photos) > 0 {
		return apperror.ErrPreconditionFailed
	}
	loc.Photos = fill.Photos
	loc.Decorations = fill.Decorations
	loc.AIDescription = fill.AIDescription
	loc.DisplayQuality = fill.DisplayQuality
	loc.PhotoSubmissionID = fill.SubmissionID
	loc.UpdatedAt = now
	return nil
}

func (r *fakeLocationRepo) Update(_ context.Context, loc *admindomain.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locations[loc.ID]; !ok {
		return apperror.ErrNotFound
	}
	copied := *loc
	r.locations[loc.ID] = &copied
	return nil
}

func (r *fakeLocationRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locations[id]; !ok {
		return apperror.ErrNotFound
	}
	delete(r.locations, id)
	return nil
}

type fakePhotoStore struct {
	mu      sync.Mutex
	objects map[string]string
	copies  int
	// failCopy に含まれるキーは Copy が失敗する。
	failCopy map[string]bool
	// onCopy はロックの外で Copy の先頭に呼ばれる。
	onCopy func(src string)
}

func newFakePhotoStore(keys ...string) *fakePhotoStore {
	store := &fakePhotoStore{objects: map[string]string{}, failCopy: map[string]bool{}}
	for _, key := range keys {
		store.objects[key] = "data:" + key
	}
	return store
}

func (s *fakePhotoStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakePhotoStore) countPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

func (s *fakePhotoStore) Copy(_ context.Context, src, dst string) error {
	if s.onCopy != nil {
		s.onCopy(src)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCopy[src] {
		return errors.New("copy failed")
	}
	data, ok := s.objects[src]
	if !ok {
		return apperror.ErrNotFound
	}
	s.objects[dst] = data
	s.copies++
	return nil
}

func (s *fakePhotoStore) Exists(_ context.Context, key string) (bool, error) {
	return s.has(key), nil
}

func (s *fakePhotoStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakePhotoStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
			n++
		}
	}
	return n, nil
}

type fakeEngagementCleaner struct {
	deleted []string
}

func (c *fakeEngagementCleaner) DeleteByTarget(_ context.Context, targetID string) (int64, error) {
	c.deleted = append(c.deleted, targetID)
	return 1, nil
}
