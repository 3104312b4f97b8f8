package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"gigflow/apperr"
	"gigflow/chat"
	"gigflow/ledger"
	"gigflow/models"
	"gigflow/rating"
	"gigflow/retry"
	"gigflow/store"
	"gigflow/store/memstore"
)

type fixture struct {
	ms    *memstore.Store
	led   *ledger.Memory
	chats *chat.Memory
	svc   *Service
}

func newFixture(t *testing.T, jobs store.JobStore, led ledger.Ledger) fixture {
	t.Helper()
	f := fixture{ms: memstore.New(), led: ledger.NewMemory(), chats: chat.NewMemory()}
	if jobs == nil {
		jobs = f.ms.Jobs()
	}
	if led == nil {
		led = f.led
	}
	pol := retry.Policy{Attempts: 1}
	f.svc = New(jobs, led, f.chats, rating.New(f.ms.Ratings(), pol), pol)
	return f
}

func openJob(roster ...string) models.Job {
	return models.Job{JobID: "J", OwnerID: "owner", Name: "logo", Salary: 100, Slots: 3, Status: models.JobOpen, Accepted: roster}
}

func (f fixture) job(t *testing.T) models.Job {
	t.Helper()
	j, err := f.ms.Jobs().Get(context.Background(), "J")
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestCreateJobValidates(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	for _, d := range []models.JobDraft{
		{Name: " ", Salary: 10, Slots: 1},
		{Name: "x", Salary: 0, Slots: 1},
		{Name: "x", Salary: 10, Slots: 0},
	} {
		if _, err := f.svc.CreateJob(ctx, "owner", d); !apperr.Is(err, apperr.CodeInvalid) {
			t.Errorf("%+v: expected invalid, got %v", d, err)
		}
	}
	job, err := f.svc.CreateJob(ctx, "owner", models.JobDraft{Name: "Site", Salary: 50, Slots: 2, Tags: []string{" Go", "go", "API"}})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobOpen || len(job.Tags) != 2 || job.JobID == "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestAppendFreelancerIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob())
	ctx := context.Background()

	added, err := f.svc.AppendFreelancer(ctx, "J", "f1")
	if err != nil || !added {
		t.Fatalf("first append: %v %v", added, err)
	}
	added, err = f.svc.AppendFreelancer(ctx, "J", "f1")
	if err != nil || added {
		t.Fatalf("second append should be a no-op, got %v %v", added, err)
	}
	if n := len(f.job(t).Accepted); n != 1 {
		t.Fatalf("roster size %d, want 1", n)
	}
}

func TestConcurrentAppendsNeverExceedSlots(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob())

	var wg sync.WaitGroup
	var mu sync.Mutex
	added, full := 0, 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := f.svc.AppendFreelancer(context.Background(), "J", fmt.Sprintf("f%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ok:
				added++
			case apperr.Is(err, apperr.CodeConflict):
				full++
			default:
				t.Errorf("unexpected result %v %v", ok, err)
			}
		}(i)
	}
	wg.Wait()

	if added != 3 || full != 22 {
		t.Fatalf("added=%d full=%d", added, full)
	}
	if n := len(f.job(t).Accepted); n != 3 {
		t.Fatalf("roster size %d exceeds slots", n)
	}
}

func TestAppendToStartedJob(t *testing.T) {
	f := newFixture(t, nil, nil)
	j := openJob("f1")
	j.Status = models.JobOngoing
	f.ms.Put(j)
	if _, err := f.svc.AppendFreelancer(context.Background(), "J", "f2"); !errors.Is(err, apperr.ErrJobNotOpen) {
		t.Fatalf("expected job not open, got %v", err)
	}
}

func TestStartJobInsufficientFundsLeavesJobOpen(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob("F1", "F2"))
	ctx := context.Background()
	f.led.TopUp(ctx, "owner", 150, "")

	_, err := f.svc.StartJob(ctx, "owner", "J")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if st := f.job(t).Status; st != models.JobOpen {
		t.Fatalf("status %s, want open", st)
	}
	if f.chats.Count() != 0 {
		t.Fatalf("no chats should be provisioned, got %d", f.chats.Count())
	}
	if bal, _ := f.led.Balance(ctx, "owner"); bal != 150 {
		t.Fatalf("balance %v, want 150", bal)
	}
}

func TestStartJobCommitsFundsAndProvisionsChats(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob("F1", "F2"))
	ctx := context.Background()
	f.led.TopUp(ctx, "owner", 500, "")

	rep, err := f.svc.StartJob(ctx, "owner", "J")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Charged != 200 || len(rep.Chats) != 2 || len(rep.ChatFailures) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	job := f.job(t)
	if job.Status != models.JobOngoing || job.EscrowTxn != rep.EscrowTxn || job.StartedAt == nil {
		t.Fatalf("unexpected job %+v", job)
	}
	if bal, _ := f.led.Balance(ctx, ledger.EscrowAccount("J")); bal != 200 {
		t.Fatalf("escrow %v, want 200", bal)
	}
}

func TestStartJobPreconditions(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob())
	ctx := context.Background()

	if _, err := f.svc.StartJob(ctx, "owner", "J"); !errors.Is(err, ErrEmptyRoster) {
		t.Fatalf("empty roster: %v", err)
	}
	if _, err := f.svc.StartJob(ctx, "someone", "J"); !errors.Is(err, apperr.ErrNotOwner) {
		t.Fatalf("not owner: %v", err)
	}
	j := openJob("F1")
	j.Status = models.JobFinished
	f.ms.Put(j)
	if _, err := f.svc.StartJob(ctx, "owner", "J"); !errors.Is(err, apperr.ErrJobNotOpen) {
		t.Fatalf("finished job: %v", err)
	}
}

func TestStartJobChatFailuresAreReported(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.chats.Fail = func(_ string, users []string) error {
		for _, u := range users {
			if u == "F2" {
				return errors.New("chat service down")
			}
		}
		return nil
	}
	f.ms.Put(openJob("F1", "F2"))
	f.led.TopUp(context.Background(), "owner", 500, "")

	rep, err := f.svc.StartJob(context.Background(), "owner", "J")
	if err != nil {
		t.Fatalf("start should succeed despite chat failure: %v", err)
	}
	if len(rep.ChatFailures) != 1 || len(rep.Chats) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if f.job(t).Status != models.JobOngoing {
		t.Fatal("job should be ongoing")
	}
}

// racingJobs adds a member just before the start write, so the charged
// roster size no longer matches.
type racingJobs struct {
	store.JobStore
	once sync.Once
}

func (r *racingJobs) Start(ctx context.Context, jobID string, size int, txn string) error {
	r.once.Do(func() { r.JobStore.AppendAccepted(ctx, jobID, "late") })
	return r.JobStore.Start(ctx, jobID, size, txn)
}

func TestStartJobRefundsWhenRosterChanges(t *testing.T) {
	ms := memstore.New()
	f := newFixture(t, &racingJobs{JobStore: ms.Jobs()}, nil)
	f.ms = ms
	f.svc.ratings = rating.New(ms.Ratings(), retry.Policy{Attempts: 1})
	ms.Put(openJob("F1"))
	ctx := context.Background()
	f.led.TopUp(ctx, "owner", 500, "")

	_, err := f.svc.StartJob(ctx, "owner", "J")
	if !errors.Is(err, ErrRosterChanged) {
		t.Fatalf("expected roster changed, got %v", err)
	}
	if bal, _ := f.led.Balance(ctx, "owner"); bal != 500 {
		t.Fatalf("owner should be refunded, balance %v", bal)
	}

	rep, err := f.svc.StartJob(ctx, "owner", "J")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if rep.Charged != 200 {
		t.Fatalf("charged %v, want 200", rep.Charged)
	}
	if bal, _ := f.led.Balance(ctx, "owner"); bal != 300 {
		t.Fatalf("owner balance %v, want 300", bal)
	}
}

type failingStart struct {
	store.JobStore
	failures int
}

func (f *failingStart) Start(ctx context.Context, jobID string, size int, txn string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("socket closed")
	}
	return f.JobStore.Start(ctx, jobID, size, txn)
}

func TestStartJobRetryAfterRollbackUsesFreshReference(t *testing.T) {
	ms := memstore.New()
	f := newFixture(t, &failingStart{JobStore: ms.Jobs(), failures: 1}, nil)
	f.ms = ms
	ms.Put(openJob("F1"))
	ctx := context.Background()
	f.led.TopUp(ctx, "owner", 100, "")

	if _, err := f.svc.StartJob(ctx, "owner", "J"); !apperr.Is(err, apperr.CodeTransient) {
		t.Fatalf("expected transient failure, got %v", err)
	}
	if bal, _ := f.led.Balance(ctx, "owner"); bal != 100 {
		t.Fatalf("refund missing, balance %v", bal)
	}
	if _, err := f.svc.StartJob(ctx, "owner", "J"); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	if bal, _ := f.led.Balance(ctx, "owner"); bal != 0 {
		t.Fatalf("owner balance %v, want 0", bal)
	}
	if bal, _ := f.led.Balance(ctx, ledger.EscrowAccount("J")); bal != 100 {
		t.Fatalf("escrow %v, want 100", bal)
	}
}

type noRefund struct{ *ledger.Memory }

func (noRefund) Refund(context.Context, string, string) (models.Transaction, error) {
	return models.Transaction{}, errors.New("ledger unreachable")
}

func TestStartJobFailedRefundIsPartial(t *testing.T) {
	ms := memstore.New()
	led := ledger.NewMemory()
	f := newFixture(t, &failingStart{JobStore: ms.Jobs(), failures: 1}, noRefund{led})
	ms.Put(openJob("F1"))
	led.TopUp(context.Background(), "owner", 100, "")

	_, err := f.svc.StartJob(context.Background(), "owner", "J")
	if !apperr.Is(err, apperr.CodePartial) {
		t.Fatalf("expected partial, got %v", err)
	}
	j, _ := ms.Jobs().Get(context.Background(), "J")
	if j.Status != models.JobOpen {
		t.Fatalf("status %s, want open", j.Status)
	}
}

func TestFinishJobAgainSettlesNothingTwice(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob("F1", "F2"))
	ctx := context.Background()
	f.led.TopUp(ctx, "owner", 200, "")
	if _, err := f.svc.StartJob(ctx, "owner", "J"); err != nil {
		t.Fatal(err)
	}

	rep, err := f.svc.FinishJob(ctx, "owner", "J", map[string]rating.Score{"F1": {Value: 5}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Ratings.Created) != 2 || len(rep.Paid) != 2 || len(rep.Warnings) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	again, err := f.svc.FinishJob(ctx, "owner", "J", nil)
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if len(again.Ratings.Created) != 0 || len(again.Ratings.AlreadyRated) != 2 || len(again.Warnings) != 0 {
		t.Fatalf("second finish should only confirm, got %+v", again)
	}

	rs, _ := f.ms.Ratings().ListByJob(ctx, "J")
	if len(rs) != 2 {
		t.Fatalf("expected one rating per member, got %d", len(rs))
	}
	for _, u := range []string{"F1", "F2"} {
		if bal, _ := f.led.Balance(ctx, u); bal != 100 {
			t.Fatalf("%s balance %v, want 100", u, bal)
		}
	}
	if bal, _ := f.led.Balance(ctx, ledger.EscrowAccount("J")); bal != 0 {
		t.Fatalf("escrow should be empty, has %v", bal)
	}
}

func TestFinishJobRatingRetryDoesNotDuplicate(t *testing.T) {
	f := newFixture(t, nil, nil)
	j := openJob("F1")
	j.Status = models.JobOngoing
	f.ms.Put(j)
	ctx := context.Background()
	// a previous run rated F1 before its reply was lost
	f.ms.Ratings().CreateOnce(ctx, models.Rating{JobID: "J", UserID: "F1", Score: 4})

	rep, err := f.svc.FinishJob(ctx, "owner", "J", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Ratings.AlreadyRated) != 1 || len(rep.Ratings.Created) != 0 {
		t.Fatalf("unexpected ratings %+v", rep.Ratings)
	}
	if len(rep.Warnings) != 1 {
		t.Fatalf("expected missing-escrow warning, got %v", rep.Warnings)
	}
}

// lostFinish commits the transition and then loses the reply.
type lostFinish struct {
	store.JobStore
}

func (l *lostFinish) Transition(ctx context.Context, jobID string, from, to models.JobStatus) error {
	if err := l.JobStore.Transition(ctx, jobID, from, to); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func TestFinishJobSettlesWhenTransitionReplyIsLost(t *testing.T) {
	ms := memstore.New()
	f := newFixture(t, &lostFinish{JobStore: ms.Jobs()}, nil)
	f.ms = ms
	ms.Put(openJob("F1", "F2"))
	ctx := context.Background()
	f.led.TopUp(ctx, "owner", 200, "")
	if _, err := f.svc.StartJob(ctx, "owner", "J"); err != nil {
		t.Fatal(err)
	}

	rep, err := f.svc.FinishJob(ctx, "owner", "J", nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if f.job(t).Status != models.JobFinished {
		t.Fatalf("status %s, want finished", f.job(t).Status)
	}
	if len(rep.Ratings.Created) != 2 || len(rep.Paid) != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if bal, _ := f.led.Balance(ctx, "F1"); bal != 100 {
		t.Fatalf("F1 balance %v, want 100", bal)
	}
	if bal, _ := f.led.Balance(ctx, ledger.EscrowAccount("J")); bal != 0 {
		t.Fatalf("escrow %v, want 0", bal)
	}
}

// payoutOutage refuses transfers out of escrow while down is set.
type payoutOutage struct {
	*ledger.Memory
	down bool
}

func (p *payoutOutage) Transfer(ctx context.Context, from, to string, amount float64, ref string) (models.Transaction, error) {
	if p.down && from == ledger.EscrowAccount("J") {
		return models.Transaction{}, apperr.New(apperr.CodeTransient, "ledger unavailable")
	}
	return p.Memory.Transfer(ctx, from, to, amount, ref)
}

func TestFinishJobAgainPaysWhatFailed(t *testing.T) {
	led := &payoutOutage{Memory: ledger.NewMemory()}
	f := newFixture(t, nil, led)
	f.led = led.Memory
	f.ms.Put(openJob("F1"))
	ctx := context.Background()
	f.led.TopUp(ctx, "owner", 100, "")
	if _, err := f.svc.StartJob(ctx, "owner", "J"); err != nil {
		t.Fatal(err)
	}

	led.down = true
	rep, err := f.svc.FinishJob(ctx, "owner", "J", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.PayoutFailures) != 1 || len(rep.Paid) != 0 {
		t.Fatalf("expected a failed payout, got %+v", rep)
	}

	led.down = false
	rep, err = f.svc.FinishJob(ctx, "owner", "J", nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(rep.Paid) != 1 || len(rep.PayoutFailures) != 0 {
		t.Fatalf("expected payout on resume, got %+v", rep)
	}
	if bal, _ := f.led.Balance(ctx, "F1"); bal != 100 {
		t.Fatalf("F1 balance %v, want 100", bal)
	}
}

func TestFinishJobRequiresOngoing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob("F1"))
	if _, err := f.svc.FinishJob(context.Background(), "owner", "J", nil); !errors.Is(err, apperr.ErrJobNotOngoing) {
		t.Fatalf("expected job not ongoing, got %v", err)
	}
}

func TestFinishJobRejectsBadScores(t *testing.T) {
	f := newFixture(t, nil, nil)
	j := openJob("F1")
	j.Status = models.JobOngoing
	f.ms.Put(j)
	_, err := f.svc.FinishJob(context.Background(), "owner", "J", map[string]rating.Score{"F1": {Value: 0}})
	if !apperr.Is(err, apperr.CodeInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if f.job(t).Status != models.JobOngoing {
		t.Fatal("invalid scores must not finish the job")
	}
}

func TestCancelJob(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ms.Put(openJob("F1"))
	ctx := context.Background()
	if err := f.svc.CancelJob(ctx, "owner", "J"); !errors.Is(err, ErrRosterNotEmpty) {
		t.Fatalf("expected roster not empty, got %v", err)
	}
	f.ms.Put(openJob())
	if err := f.svc.CancelJob(ctx, "owner", "J"); err != nil {
		t.Fatal(err)
	}
	if f.job(t).Status != models.JobCancelled {
		t.Fatal("job should be cancelled")
	}
}

func TestMembershipQueries(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.ms.Put(models.Job{JobID: "a", OwnerID: "o", Slots: 1, Status: models.JobOngoing, Accepted: []string{"f1"}})
	f.ms.Put(models.Job{JobID: "b", OwnerID: "o", Slots: 1, Status: models.JobFinished, Accepted: []string{"f1"}})
	f.ms.Put(models.Job{JobID: "c", OwnerID: "o", Slots: 1, Status: models.JobOpen, Accepted: []string{"f2"}})

	active, _ := f.svc.GetActiveJobsByFreelancer(ctx, "f1")
	if len(active) != 1 || active[0].JobID != "a" {
		t.Fatalf("active = %+v", active)
	}
	hist, _ := f.svc.GetFreelancerHistory(ctx, "f1")
	if len(hist) != 1 || hist[0].JobID != "b" {
		t.Fatalf("history = %+v", hist)
	}
	roster, _ := f.svc.GetAcceptedFreelancers(ctx, "c")
	if len(roster) != 1 || roster[0] != "f2" {
		t.Fatalf("roster = %v", roster)
	}
}
