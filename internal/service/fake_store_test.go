package service

import (
	"sync"
	"time"

	"github.com/Pavel2201/habit-stake/internal/models"
)

// fakeStore is an in-memory Store with the same conditional-update
// semantics as the Postgres repository: transition methods apply only when
// the entity is still in the expected state and report applied = false
// otherwise.
type fakeStore struct {
	mu          sync.Mutex
	users       map[int64]*models.User
	habits      map[int64]*models.Habit
	stakes      map[int64]*models.Stake
	checkins    []models.CheckIn
	records     map[int64]*models.MissedPeriodRecord
	obligations map[int64]*models.PaymentObligation
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[int64]*models.User),
		habits:      make(map[int64]*models.Habit),
		stakes:      make(map[int64]*models.Stake),
		records:     make(map[int64]*models.MissedPeriodRecord),
		obligations: make(map[int64]*models.PaymentObligation),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateUser(u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.id()
	u.CreatedAt = time.Now().UTC()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) FindUserByEmail(email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeStore) GetUser(id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) CreateHabit(h *models.Habit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h.ID = f.id()
	cp := *h
	f.habits[h.ID] = &cp
	return nil
}

func (f *fakeStore) GetHabit(id int64) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (f *fakeStore) ListActiveHabits() ([]models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var habits []models.Habit
	for _, h := range f.habits {
		if h.Status == models.HabitActive {
			habits = append(habits, *h)
		}
	}
	return habits, nil
}

func (f *fakeStore) CreateStake(s *models.Stake) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = f.id()
	cp := *s
	f.stakes[s.ID] = &cp
	return nil
}

func (f *fakeStore) GetStakeByHabit(habitID int64) (*models.Stake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stakeByHabitLocked(habitID)
}

func (f *fakeStore) stakeByHabitLocked(habitID int64) (*models.Stake, error) {
	for _, s := range f.stakes {
		if s.HabitID == habitID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeStore) CreateCheckIn(c *models.CheckIn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.id()
	f.checkins = append(f.checkins, *c)
	return nil
}

func (f *fakeStore) ListCheckIns(habitID int64, from, to time.Time) ([]models.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CheckIn
	for _, c := range f.checkins {
		if c.HabitID == habitID && !c.CompletedAt.Before(from) && c.CompletedAt.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) MissedPeriodExists(habitID int64, start, end time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordByKeyLocked(habitID, start, end) != nil, nil
}

func (f *fakeStore) recordByKeyLocked(habitID int64, start, end time.Time) *models.MissedPeriodRecord {
	for _, r := range f.records {
		if r.HabitID == habitID && r.PeriodStart.Equal(start) && r.PeriodEnd.Equal(end) {
			return r
		}
	}
	return nil
}

func (f *fakeStore) CreateMissedPeriod(rec *models.MissedPeriodRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordByKeyLocked(rec.HabitID, rec.PeriodStart, rec.PeriodEnd) != nil {
		return false, nil
	}
	rec.ID = f.id()
	cp := *rec
	f.records[rec.ID] = &cp
	return true, nil
}

func (f *fakeStore) GetMissedPeriod(id int64) (*models.MissedPeriodRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListMissedPeriodsByHabit(habitID int64) ([]models.MissedPeriodRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MissedPeriodRecord
	for _, r := range f.records {
		if r.HabitID == habitID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListExpiredPending(now time.Time) ([]models.MissedPeriodRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MissedPeriodRecord
	for _, r := range f.records {
		if r.Status == models.RecordPending && r.GraceDeadline.Before(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveRecordComplete(rec *models.MissedPeriodRecord, backfill []time.Time, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[rec.ID]
	if !ok || r.Status != models.RecordPending {
		return false, nil
	}
	resolvedAt := now
	r.Status = models.RecordResolvedComplete
	r.ResolvedAt = &resolvedAt
	for _, at := range backfill {
		f.checkins = append(f.checkins, models.CheckIn{
			ID:          f.id(),
			HabitID:     r.HabitID,
			CompletedAt: at,
			Success:     true,
			Backfilled:  true,
		})
	}
	return true, nil
}

func (f *fakeStore) FailRecordAndCascade(recordID, habitID int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[recordID]
	if !ok || r.Status != models.RecordPending {
		return false, nil
	}
	r.Status = models.RecordFailed
	resolvedAt := now
	r.ResolvedAt = &resolvedAt

	if h, ok := f.habits[habitID]; ok && h.Status.CanTransitionTo(models.HabitFailed) {
		h.Status = models.HabitFailed
	}

	var stake *models.Stake
	for _, s := range f.stakes {
		if s.HabitID == habitID {
			stake = s
			break
		}
	}
	if stake == nil {
		return true, nil
	}
	forfeited := false
	if stake.Status.CanTransitionTo(models.StakeForfeited) {
		stake.Status = models.StakeForfeited
		stake.PaymentStatus = models.PaymentPending
		txn := now
		stake.TransactionDate = &txn
		forfeited = true
	}
	if !forfeited && stake.Status != models.StakeForfeited {
		// Cancelled or completed: the stake is no longer at risk.
		return true, nil
	}

	for _, ob := range f.obligations {
		if ob.StakeID == stake.ID && ob.HabitID == habitID {
			if ob.PaymentStatus == models.PaymentPending {
				ob.Amount = stake.Amount
			}
			return true, nil
		}
	}
	f.obligations[f.id()] = &models.PaymentObligation{
		ID:            f.nextID,
		StakeID:       stake.ID,
		HabitID:       habitID,
		Amount:        stake.Amount,
		PaymentStatus: models.PaymentPending,
	}
	return true, nil
}

func (f *fakeStore) GetObligation(id int64) (*models.PaymentObligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ob, ok := f.obligations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *ob
	return &cp, nil
}

func (f *fakeStore) AdvanceObligationPayment(id int64, from, to models.PaymentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ob, ok := f.obligations[id]
	if !ok || ob.PaymentStatus != from {
		return false, nil
	}
	ob.PaymentStatus = to
	if s, ok := f.stakes[ob.StakeID]; ok && s.PaymentStatus == from {
		s.PaymentStatus = to
	}
	return true, nil
}

// obligationsFor returns the obligations recorded for a habit.
func (f *fakeStore) obligationsFor(habitID int64) []models.PaymentObligation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PaymentObligation
	for _, ob := range f.obligations {
		if ob.HabitID == habitID {
			out = append(out, *ob)
		}
	}
	return out
}

// checkinsFor returns all check-ins recorded for a habit.
func (f *fakeStore) checkinsFor(habitID int64) []models.CheckIn {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CheckIn
	for _, c := range f.checkins {
		if c.HabitID == habitID {
			out = append(out, c)
		}
	}
	return out
}

// fakeNotifier records forfeiture notices.
type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) SendForfeitureNotice(to, username, habitTitle string, amount float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, to)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}
