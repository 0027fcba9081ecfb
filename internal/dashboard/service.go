package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"attenddash/internal/attendance"
	"attenddash/internal/session"
	"attenddash/internal/store"
)

// upstreamAPI is the slice of the upstream client this service needs.
type upstreamAPI interface {
	DashboardStats(ctx context.Context, token string) ([]byte, error)
	AttendanceStats(ctx context.Context, token, sectionView string) ([]byte, error)
	Records(ctx context.Context, token string, page, limit int) ([]byte, error)
}

// CourseView pairs a course's aggregate with its 75% projection.
type CourseView struct {
	attendance.CourseStat
	Projection attendance.Projection `json:"projection"`
}

// View is the fully loaded dashboard payload: the normalized snapshot plus
// the record-driven rollups the charts and calendar consume. It is built
// once per load and never mutated afterwards.
type View struct {
	Snapshot   attendance.Snapshot   `json:"snapshot"`
	Projection attendance.Projection `json:"projection"`
	Courses    []CourseView          `json:"courses"`

	Records   []attendance.Record         `json:"records"`
	ByCourse  map[string]attendance.Tally `json:"byCourse"`
	Daily     map[string]attendance.Tally `json:"daily"`
	Weekly    map[string]attendance.Tally `json:"weekly"`
	Monthly   map[string]attendance.Tally `json:"monthly"`
	DayOfWeek [7]attendance.Tally         `json:"dayOfWeek"`

	LoadedAt time.Time `json:"loadedAt"`
}

// Options tunes the dashboard loads.
type Options struct {
	PageLimit int
	MaxPages  int
}

// Service builds dashboard views from the upstream and mirrors the last good
// one per student in the snapshot cache.
type Service struct {
	upstream upstreamAPI
	cache    *store.SnapshotCache
	logger   *zap.Logger
	opts     Options
}

// NewService creates a dashboard service.
func NewService(upstream upstreamAPI, cache *store.SnapshotCache, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{upstream: upstream, cache: cache, logger: logger, opts: opts}
}

// Load fetches statistics and the full record history concurrently, joins,
// and derives the view. The cache is updated only after a fully successful
// load; a failed load leaves the previous snapshot in place.
func (s *Service) Load(ctx context.Context, sess session.Session) (*View, error) {
	var (
		wg        sync.WaitGroup
		snap      attendance.Snapshot
		statsErr  error
		records   []attendance.Record
		recordErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		snap, statsErr = s.loadSnapshot(ctx, sess)
	}()
	go func() {
		defer wg.Done()
		records, recordErr = s.AllRecords(ctx, sess)
	}()
	wg.Wait()

	if statsErr != nil {
		return nil, statsErr
	}
	if recordErr != nil {
		// FailFast or a cancelled context; the lenient default keeps partials.
		return nil, recordErr
	}
	if err := ctx.Err(); err != nil {
		// Torn down mid-fetch: do not apply results.
		return nil, err
	}

	attendance.SortRecords(records)
	view := buildView(snap, records)

	if err := s.cache.Set(ctx, sess.Subject, view); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.Error(err))
	}
	return view, nil
}

// Cached returns the last good view for the session, if any.
func (s *Service) Cached(ctx context.Context, sess session.Session) (*View, bool) {
	var view View
	hit, err := s.cache.Get(ctx, sess.Subject, &view)
	if err != nil {
		s.logger.Warn("snapshot cache read failed", zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &view, true
}

// Invalidate drops the cached view on explicit logout.
func (s *Service) Invalidate(ctx context.Context, sess session.Session) {
	if err := s.cache.Invalidate(ctx, sess.Subject); err != nil {
		s.logger.Warn("snapshot cache invalidate failed", zap.Error(err))
	}
}

// AllRecords runs the bounded pagination loop and returns the canonical
// records in page order.
func (s *Service) AllRecords(ctx context.Context, sess session.Session) ([]attendance.Record, error) {
	fetch := func(ctx context.Context, page, limit int) (attendance.PageResult, error) {
		body, err := s.upstream.Records(ctx, sess.Token, page, limit)
		if err != nil {
			return attendance.PageResult{}, err
		}
		return attendance.DecodePage(body)
	}
	return attendance.FetchAllRecords(ctx, fetch, attendance.FetchOptions{
		PageLimit: s.opts.PageLimit,
		MaxPages:  s.opts.MaxPages,
		Logger:    s.logger,
	})
}

// loadSnapshot merges the two upstream statistics calls and normalizes the
// result. Shape problems degrade to a zeroed snapshot, logged as a warning.
func (s *Service) loadSnapshot(ctx context.Context, sess session.Session) (attendance.Snapshot, error) {
	var (
		wg          sync.WaitGroup
		headline    []byte
		headlineErr error
		byCourse    []byte
		byCourseErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		headline, headlineErr = s.upstream.DashboardStats(ctx, sess.Token)
	}()
	go func() {
		defer wg.Done()
		byCourse, byCourseErr = s.upstream.AttendanceStats(ctx, sess.Token, "all-active")
	}()
	wg.Wait()

	if headlineErr != nil {
		return attendance.Snapshot{}, headlineErr
	}
	if byCourseErr != nil {
		return attendance.Snapshot{}, byCourseErr
	}

	snap, err := attendance.NormalizeStats(attendance.MergeStats(headline, byCourse))
	if err != nil {
		s.logger.Warn("unexpected stats payload shape, using zeroed snapshot", zap.Error(err))
	}
	return snap, nil
}

func buildView(snap attendance.Snapshot, records []attendance.Record) *View {
	courses := make([]CourseView, 0, len(snap.ByCourse))
	for _, course := range snap.ByCourse {
		courses = append(courses, CourseView{
			CourseStat: course,
			Projection: attendance.ProjectTo75(course.AttendedClasses, course.TotalClasses),
		})
	}

	return &View{
		Snapshot:   snap,
		Projection: attendance.ProjectTo75(snap.Overall.AttendedClasses, snap.Overall.TotalClasses),
		Courses:    courses,
		Records:    records,
		ByCourse:   attendance.GroupByCourse(records),
		Daily:      attendance.GroupByPeriod(records, attendance.ByDay),
		Weekly:     attendance.GroupByPeriod(records, attendance.ByWeek),
		Monthly:    attendance.GroupByPeriod(records, attendance.ByMonth),
		DayOfWeek:  attendance.DayOfWeekDistribution(records),
		LoadedAt:   time.Now().UTC(),
	}
}
