package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/scheduler"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/jobs"
)

// DriverConfig holds the Driver's tick behaviour (spec §4.6).
type DriverConfig struct {
	LookAheadPeriod int  // default 14
	Iterations      int  // default 10, GA searches per eligible day
	FeederEnabled   bool // preserve the source's placeholder-lesson synthesis

	Population scheduler.PopulationConfig
	Seed       scheduler.SeedParams
	TimeModel  scheduler.TimeModel

	LockKey     string
	LockTTL     time.Duration
	LockWorkers int
}

// DefaultDriverConfig matches spec §4.6's stated defaults.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		LookAheadPeriod: 14,
		Iterations:      10,
		FeederEnabled:   true,
		Population:      scheduler.DefaultPopulationConfig(),
		Seed:            scheduler.SeedParams{RandomLessonSkipProbability: 0.2, FailureThreshold: 10},
		TimeModel:       scheduler.DefaultTimeModel(),
		LockKey:         "scheduler:driver:lock",
		LockTTL:         10 * time.Minute,
		LockWorkers:     4,
	}
}

// dayJob is one look-ahead day's dispatch: the day offset from today and a
// seed for that day's private *rand.Rand, drawn from the tick's master rng
// before dispatch so concurrent workers never touch a shared RNG.
type dayJob struct {
	day  int
	seed int64
}

// runLock serializes driver runs across processes (spec §5). It prefers a
// Redis SetNX lock and falls back to an in-process mutex if Redis is
// unreachable, so a single-process deployment still gets correctness.
type runLock struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
	local sync.Mutex
}

func newRunLock(client *redis.Client, key string, ttl time.Duration) *runLock {
	return &runLock{redis: client, key: key, ttl: ttl}
}

func (l *runLock) acquire(ctx context.Context) (func(), error) {
	if l.redis == nil {
		l.local.Lock()
		return func() { l.local.Unlock() }, nil
	}

	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("acquire driver lock: %v", err))
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrStore, "another driver run already holds the lock")
	}
	return func() {
		_, _ = l.redis.Del(context.Background(), l.key).Result()
	}, nil
}

// DriverService is the GA Driver (spec §4.6): it resolves eligible weekdays
// in a look-ahead window, takes the distributed run lock, dispatches one GA
// search per eligible day, and persists each day's lowest-cost Timetable.
type DriverService struct {
	cfg     DriverConfig
	gateway *GatewayService
	lessons *repository.LessonRepository
	metrics *MetricsService
	logger  *zap.Logger
	lock    *runLock

	statusMu   sync.Mutex
	lastTickAt time.Time
	lastErr    error
}

// DriverStatus is the ops-only snapshot exposed over HTTP.
type DriverStatus struct {
	LastTickAt time.Time `json:"last_tick_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// NewDriverService wires the Driver to the Data Gateway and run lock.
func NewDriverService(cfg DriverConfig, gateway *GatewayService, lessons *repository.LessonRepository, metrics *MetricsService, logger *zap.Logger, redisClient *redis.Client) *DriverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriverService{
		cfg:     cfg,
		gateway: gateway,
		lessons: lessons,
		metrics: metrics,
		logger:  logger,
		lock:    newRunLock(redisClient, cfg.LockKey, cfg.LockTTL),
	}
}

// Status reports the outcome of the most recent tick for the ops-only
// status endpoint.
func (d *DriverService) Status() DriverStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	status := DriverStatus{LastTickAt: d.lastTickAt}
	if d.lastErr != nil {
		status.LastError = d.lastErr.Error()
	}
	return status
}

// Tick runs once per scheduled invocation: for each day in the look-ahead
// window, skip weekends and already-scheduled days, otherwise run the GA
// Iterations times and persist the lowest-cost result (spec §4.6).
func (d *DriverService) Tick(ctx context.Context, rng *rand.Rand, today time.Time) (err error) {
	defer func() {
		d.statusMu.Lock()
		d.lastTickAt = today
		d.lastErr = err
		d.statusMu.Unlock()
	}()

	release, err := d.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	runID := uuid.NewString()
	todayMidnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	// dispatched tracks in-flight jobs so Tick waits for every day to finish
	// before queue.Stop() cancels the workers' context — enqueuing is
	// asynchronous, and cancelling right behind it would race a still-running
	// job against the worker's ctx.Done() case.
	var dispatched sync.WaitGroup
	jobHandler := func(ctx context.Context, job jobs.Job) error {
		defer dispatched.Done()
		dj := job.Payload.(dayJob)
		// Each day's GA search gets its own *rand.Rand, seeded deterministically
		// off the tick's master rng, since up to LockWorkers of these run
		// concurrently and math/rand.Rand is not safe for concurrent use.
		localRng := rand.New(rand.NewSource(dj.seed))
		return d.runDay(ctx, localRng, runID, todayMidnight, dj.day)
	}

	queue := jobs.NewQueue("driver-tick", jobHandler, jobs.QueueConfig{
		Workers: d.cfg.LockWorkers,
		Logger:  d.logger,
	})
	queue.Start(ctx)
	defer queue.Stop()

	for x := 0; x <= d.cfg.LookAheadPeriod; x++ {
		day := todayMidnight.AddDate(0, 0, x)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		exists, err := d.lessons.ExistsOnDay(ctx, day)
		if err != nil {
			return appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("check existing lessons for day %v: %v", day, err))
		}
		if exists {
			d.logger.Sugar().Infow("day already scheduled, skipping", "day", day, "run_id", runID)
			continue
		}
		dispatched.Add(1)
		seed := rng.Int63()
		if err := queue.Enqueue(jobs.Job{ID: fmt.Sprintf("%s-%d", runID, x), Type: "schedule-day", Payload: dayJob{day: x, seed: seed}}); err != nil {
			dispatched.Done()
			return appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("enqueue day %d: %v", x, err))
		}
	}
	dispatched.Wait()
	return nil
}

func (d *DriverService) runDay(ctx context.Context, rng *rand.Rand, runID string, todayMidnight time.Time, x int) error {
	firstDay := todayMidnight.AddDate(0, 0, x)
	start := time.Now()

	runCtx, err := d.gateway.PrepareRun(ctx, firstDay, d.cfg.LookAheadPeriod)
	if err != nil {
		return err
	}
	if len(runCtx.Candidates) == 0 {
		d.logger.Sugar().Infow("no unscheduled lessons for day, nothing to do", "day", firstDay, "run_id", runID)
		return nil
	}

	var best *scheduler.Timetable
	var bestCost float64

	costFn := func(ctx context.Context, tt *scheduler.Timetable) (float64, error) {
		return tt.Cost(ctx, runCtx.CostInputs, false)
	}

	for i := 0; i < d.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			break
		}

		individuals := make([]*scheduler.Timetable, d.cfg.Population.PopSize)
		for j := range individuals {
			tt := scheduler.NewTimetable(d.cfg.Population.Days, d.cfg.Population.TimePerDay, runCtx.Candidates)
			if err := tt.SeedRandom(ctx, rng, d.cfg.Seed); err != nil {
				return err
			}
			individuals[j] = tt
		}

		pop, err := scheduler.NewPopulation(d.cfg.Population, individuals)
		if err != nil {
			return err
		}

		result, cost, err := pop.Run(ctx, rng, costFn, scheduler.DefaultStoppingCondition(), 500)
		if err != nil && err != appErrors.ErrCancelled {
			return err
		}

		if d.metrics != nil {
			if err == appErrors.ErrCancelled {
				d.metrics.ObserveGeneration("cancelled")
			} else {
				d.metrics.ObserveGeneration("completed")
			}
		}

		if best == nil || cost < bestCost {
			best, bestCost = result, cost
		}
		if err == appErrors.ErrCancelled {
			break
		}
	}

	if best == nil {
		return nil
	}

	if err := d.gateway.Persist(ctx, firstDay, best); err != nil {
		return err
	}

	d.logger.Sugar().Infow("persisted timetable for day",
		"day", firstDay, "run_id", runID, "cost", bestCost, "duration", time.Since(start))
	if d.metrics != nil {
		d.metrics.ObserveDriverRun(bestCost, time.Since(start))
	}

	if d.cfg.FeederEnabled {
		groupIDs := make(map[string]bool)
		for _, c := range runCtx.Candidates {
			groupIDs[c.GroupID] = true
		}
		ids := make([]string, 0, len(groupIDs))
		for id := range groupIDs {
			ids = append(ids, id)
		}
		created, err := d.gateway.SynthesizeFeederLessons(ctx, rng, ids)
		if err != nil {
			d.logger.Sugar().Errorw("failed to synthesize feeder lessons", "error", err, "run_id", runID)
		} else if d.metrics != nil {
			d.metrics.ObserveFeederLessons(created)
		}
	}

	return nil
}
