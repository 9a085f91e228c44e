package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// memStore はストアの条件付き書き込みをミューテックスで再現するインメモリ実装。
type memStore struct {
	mu          sync.Mutex
	locations   map[string]*domain.Location
	routes      map[string]*domain.Route
	engagements map[string]domain.EngagementRecord
	submissions map[string]*domain.Submission
	blobs       map[string][]byte

	incrementErr error
	increments   int
}

func newMemStore() *memStore {
	return &memStore{
		locations:   map[string]*domain.Location{},
		routes:      map[string]*domain.Route{},
		engagements: map[string]domain.EngagementRecord{},
		submissions: map[string]*domain.Submission{},
		blobs:       map[string][]byte{},
	}
}

func (m *memStore) addLocation(loc domain.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := loc
	m.locations[loc.ID] = &copied
}

func (m *memStore) location(id string) domain.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.locations[id]
}

type fakeLocations struct{ *memStore }

func (f fakeLocations) Find(_ context.Context, filter LocationFilter) ([]domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []domain.Location{}
	for _, loc := range f.locations {
		if loc.Status == filter.Status {
			result = append(result, *loc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (f fakeLocations) FindByID(_ context.Context, id string) (*domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, ok := f.locations[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	copied := *loc
	return &copied, nil
}

func (f fakeLocations) FindByIDs(_ context.Context, ids []string) ([]domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []domain.Location{}
	for _, id := range ids {
		if loc, ok := f.locations[id]; ok {
			result = append(result, *loc)
		}
	}
	return result, nil
}

func (f fakeLocations) FindDuplicate(_ context.Context, geo domain.GeoKey, addressKey string) (*domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, loc := range f.locations {
		if loc.Status != domain.LocationActive {
			continue
		}
		candidate := domain.DuplicateCandidate{
			ID:         loc.ID,
			GeoKey:     domain.NewGeoKey(loc.Coordinates),
			AddressKey: domain.NormalizeAddress(loc.Address),
		}
		if candidate.Matches(geo, addressKey) {
			copied := *loc
			return &copied, nil
		}
	}
	return nil, nil
}

func (f fakeLocations) FlagIfReported(_ context.Context, id string, threshold int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, ok := f.locations[id]
	if !ok || loc.Status != domain.LocationActive || loc.ReportCount < threshold {
		return false, nil
	}
	loc.Status = domain.LocationFlagged
	return true, nil
}

type fakeCounters struct{ *memStore }

func (f fakeCounters) counter(target domain.Target, field domain.CounterField) *int {
	switch target.Kind {
	case domain.TargetLocation:
		loc, ok := f.locations[target.ID]
		if !ok {
			return nil
		}
		switch field {
		case domain.CounterLike:
			return &loc.LikeCount
		case domain.CounterReport:
			return &loc.ReportCount
		case domain.CounterFeedback:
			return &loc.FeedbackCount
		case domain.CounterView:
			return &loc.ViewCount
		case domain.CounterSave:
			return &loc.SaveCount
		}
	case domain.TargetRoute:
		route, ok := f.routes[target.ID]
		if !ok {
			return nil
		}
		switch field {
		case domain.CounterLike:
			return &route.LikeCount
		case domain.CounterSave:
			return &route.SaveCount
		}
	}
	return nil
}

func (f fakeCounters) Increment(_ context.Context, target domain.Target, field domain.CounterField) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.increments++
	if c := f.counter(target, field); c != nil {
		*c++
	}
	return nil
}

func (f fakeCounters) Decrement(_ context.Context, target domain.Target, field domain.CounterField) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.counter(target, field); c != nil && *c > 0 {
		*c--
	}
	return nil
}

type fakeEngagements struct{ *memStore }

func (f fakeEngagements) Create(_ context.Context, record domain.EngagementRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.engagements[record.ID]; ok {
		return apperror.ErrAlreadyExists
	}
	f.engagements[record.ID] = record
	return nil
}

func (f fakeEngagements) FindByID(_ context.Context, id string) (*domain.EngagementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.engagements[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return &record, nil
}

func (f fakeEngagements) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.engagements[id]; !ok {
		return false, nil
	}
	delete(f.engagements, id)
	return true, nil
}

func (f fakeEngagements) ExistingIDs(_ context.Context, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := map[string]bool{}
	for _, id := range ids {
		if _, ok := f.engagements[id]; ok {
			result[id] = true
		}
	}
	return result, nil
}

func (f fakeEngagements) ListByUser(_ context.Context, userID string, t domain.EngagementType, limit int) ([]domain.EngagementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []domain.EngagementRecord{}
	for _, r := range f.engagements {
		if r.UserID == userID && r.Type == t {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f fakeEngagements) DeleteByTarget(_ context.Context, targetID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.engagements {
		if r.Target.ID == targetID {
			delete(f.engagements, id)
			n++
		}
	}
	return n, nil
}

func (f fakeEngagements) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engagements)
}

type fakeSubmissions struct{ *memStore }

func (f fakeSubmissions) Create(_ context.Context, sub *domain.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.submissions {
		if existing.Status != domain.SubmissionPending || existing.Type != sub.Type {
			continue
		}
		if sub.Type == domain.SubmissionNewLocation && (existing.GeoKey == sub.GeoKey || existing.AddressKey == sub.AddressKey) {
			return apperror.ErrAlreadyExists
		}
		if sub.Type == domain.SubmissionPhotoUpdate && existing.TargetLocationID == sub.TargetLocationID && existing.SubmittedBy == sub.SubmittedBy {
			return apperror.ErrAlreadyExists
		}
	}
	copied := *sub
	f.submissions[sub.ID] = &copied
	return nil
}

func (f fakeSubmissions) FindPendingDuplicate(_ context.Context, geo domain.GeoKey, addressKey string) (*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.submissions {
		if sub.Status != domain.SubmissionPending || sub.Type != domain.SubmissionNewLocation {
			continue
		}
		candidate := domain.DuplicateCandidate{ID: sub.ID, GeoKey: sub.GeoKey, AddressKey: sub.AddressKey}
		if candidate.Matches(geo, addressKey) {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, nil
}

func (f fakeSubmissions) HasPendingPhotoUpdate(_ context.Context, locationID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.submissions {
		if sub.Status == domain.SubmissionPending && sub.Type == domain.SubmissionPhotoUpdate &&
			sub.TargetLocationID == locationID && sub.SubmittedBy == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeSubmissions) ListByUser(_ context.Context, userID string, limit int) ([]domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []domain.Submission{}
	for _, sub := range f.submissions {
		if sub.SubmittedBy == userID {
			result = append(result, *sub)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f fakeSubmissions) CountByStatus(_ context.Context, userID string) (map[domain.SubmissionStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[domain.SubmissionStatus]int{}
	for _, sub := range f.submissions {
		if sub.SubmittedBy == userID {
			counts[sub.Status]++
		}
	}
	return counts, nil
}

func (f fakeSubmissions) TopContributors(_ context.Context, limit int) ([]domain.ContributorCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byUser := map[string]*domain.ContributorCount{}
	for _, sub := range f.submissions {
		if sub.Status != domain.SubmissionApproved {
			continue
		}
		c, ok := byUser[sub.SubmittedBy]
		if !ok {
			c = &domain.ContributorCount{UserID: sub.SubmittedBy, UserName: sub.SubmittedByName}
			byUser[sub.SubmittedBy] = c
		}
		c.Approved++
	}
	result := make([]domain.ContributorCount, 0, len(byUser))
	for _, c := range byUser {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Approved > result[j].Approved })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type fakeRoutes struct{ *memStore }

func (f fakeRoutes) Create(_ context.Context, route *domain.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *route
	f.routes[route.ID] = &copied
	return nil
}

func (f fakeRoutes) FindByID(_ context.Context, id string) (*domain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	route, ok := f.routes[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	copied := *route
	return &copied, nil
}

func (f fakeRoutes) Find(_ context.Context, filter RouteFilter) ([]domain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []domain.Route{}
	for _, route := range f.routes {
		if filter.PublicOnly && (!route.IsPublic || route.Status != domain.RouteActive) {
			continue
		}
		if filter.CreatedBy != "" && route.CreatedBy != filter.CreatedBy {
			continue
		}
		result = append(result, *route)
	}
	return result, nil
}

func (f fakeRoutes) FindByIDs(_ context.Context, ids []string) ([]domain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []domain.Route{}
	for _, id := range ids {
		if route, ok := f.routes[id]; ok {
			result = append(result, *route)
		}
	}
	return result, nil
}

func (f fakeRoutes) Update(_ context.Context, route *domain.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.routes[route.ID]
	if !ok || current.CreatedBy != route.CreatedBy {
		return apperror.ErrNotFound
	}
	copied := *route
	copied.LikeCount = current.LikeCount
	copied.SaveCount = current.SaveCount
	f.routes[route.ID] = &copied
	return nil
}

func (f fakeRoutes) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.routes[id]; !ok {
		return apperror.ErrNotFound
	}
	delete(f.routes, id)
	return nil
}

type fakeBlobs struct {
	*memStore
	err error
}

func (f fakeBlobs) Put(_ context.Context, key string, r io.Reader) error {
	if f.err != nil {
		return f.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = buf.Bytes()
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	subs []domain.Submission
}

func (n *recordingNotifier) NotifySubmission(_ context.Context, sub domain.Submission) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, sub)
}

type recordingQueue struct {
	jobs []AnalysisJob
	full bool
}

func (q *recordingQueue) Enqueue(job AnalysisJob) bool {
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

var errStoreDown = errors.New("store unavailable")
