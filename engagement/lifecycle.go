package engagement

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/ledger"
	"gigflow/metrics"
	"gigflow/models"
	"gigflow/rating"
	"gigflow/store"
)

// maxStartRefs bounds how many rolled-back start attempts a roster can have.
const maxStartRefs = 5

type StartReport struct {
	Members      []string          `json:"members"`
	Charged      float64           `json:"charged"`
	EscrowTxn    string            `json:"escrowTxn"`
	Chats        map[string]string `json:"chats"`
	ChatFailures []string          `json:"chatFailures"`
}

type FinishReport struct {
	Members        []string      `json:"members"`
	Ratings        rating.Report `json:"ratings"`
	Paid           []string      `json:"paid"`
	PayoutFailures []string      `json:"payoutFailures"`
	Warnings       []string      `json:"warnings"`
	// Resumed is set when the job was already finished before this call.
	Resumed bool `json:"resumed,omitempty"`
}

// StartJob commits salary × roster size from the owner into the job's escrow
// and then moves the job to ongoing. The debit comes first: if the status
// write fails afterwards the debit is refunded, and a failed refund is
// reported as a partial outcome. Chat rooms are provisioned only after the
// job is ongoing and never fail the start.
func (s *Service) StartJob(ctx context.Context, ownerID, jobID string) (StartReport, error) {
	rep := StartReport{Chats: map[string]string{}, ChatFailures: []string{}}
	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return rep, err
	}
	if job.Status != models.JobOpen {
		return rep, apperr.ErrJobNotOpen
	}
	size := len(job.Accepted)
	if size == 0 {
		return rep, ErrEmptyRoster
	}
	rep.Members = job.Accepted

	amount := job.Salary * float64(size)
	txn, err := s.debit(ctx, job, amount)
	if err != nil {
		return rep, err
	}

	startErr := s.retry.Once(ctx, func(ctx context.Context) error {
		return s.jobs.Start(ctx, jobID, size, txn.ID)
	})
	if startErr != nil && !s.startedWith(ctx, jobID, txn.ID) {
		return rep, s.rollbackStart(ctx, job, txn, startErr)
	}

	rep.Charged = amount
	rep.EscrowTxn = txn.ID
	for _, member := range job.Accepted {
		id, err := s.provisionChat(ctx, jobID, ownerID, member)
		if err != nil {
			rep.ChatFailures = append(rep.ChatFailures, sideEffectFailed("chat", jobID, member, err))
			continue
		}
		rep.Chats[member] = id
	}
	log.Info().Str("job", jobID).Float64("charged", amount).Int("roster", size).Msg("job started")
	return rep, nil
}

// debit charges the owner under the roster's start reference. A reference
// whose transfer was already refunded is spent; the next suffix is tried.
func (s *Service) debit(ctx context.Context, job models.Job, amount float64) (models.Transaction, error) {
	base := ledger.StartRef(job.JobID, len(job.Accepted))
	for i := 0; i < maxStartRefs; i++ {
		ref := base
		if i > 0 {
			ref = fmt.Sprintf("%s:retry-%d", base, i)
		}
		var txn models.Transaction
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			txn, err = s.ledger.Transfer(ctx, job.OwnerID, ledger.EscrowAccount(job.JobID), amount, ref)
			return err
		})
		if err != nil {
			return txn, err
		}
		if txn.Status != models.TxnReversed {
			return txn, nil
		}
	}
	return models.Transaction{}, apperr.New(apperr.CodeConflict, "too many rolled back start attempts")
}

// startedWith reports whether the job is already ongoing on escrowTxn, which
// is the case when a start write succeeded but its reply was lost.
func (s *Service) startedWith(ctx context.Context, jobID, escrowTxn string) bool {
	job, err := s.GetJob(ctx, jobID)
	return err == nil && job.Status == models.JobOngoing && job.EscrowTxn == escrowTxn
}

func (s *Service) rollbackStart(ctx context.Context, job models.Job, txn models.Transaction, cause error) error {
	log.Warn().Err(cause).Str("job", job.JobID).Str("txn", txn.ID).Msg("start failed after debit, refunding")
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		_, err := s.ledger.Refund(ctx, txn.ID, ledger.RefundRef(txn.IdempotencyKey))
		return err
	})
	if err != nil {
		metrics.SideEffectFailed("refund")
		log.Error().Err(err).Str("job", job.JobID).Str("txn", txn.ID).Msg("refund after failed start did not complete")
		return apperr.Wrap(apperr.CodePartial,
			fmt.Sprintf("job not started and refund of transaction %s failed; it needs reconciliation", txn.ID), err)
	}
	if errors.Is(cause, store.ErrStatus) {
		current, gerr := s.GetJob(ctx, job.JobID)
		if gerr == nil && current.Status == models.JobOpen {
			return ErrRosterChanged
		}
		return apperr.ErrJobNotOpen
	}
	return store.Outcome(cause, "job")
}

func (s *Service) provisionChat(ctx context.Context, jobID, ownerID, member string) (string, error) {
	var id string
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.chats.Provision(ctx, jobID, ownerID, member)
		return err
	})
	return id, err
}

// FinishJob closes an ongoing job, rates every roster member once and pays
// each of them their salary out of escrow. Missing ratings and failed payouts
// are warnings; the status change is the primary effect. Calling it again on
// a finished job completes whatever ratings and payouts are still missing.
func (s *Service) FinishJob(ctx context.Context, ownerID, jobID string, scores map[string]rating.Score) (FinishReport, error) {
	rep := FinishReport{Paid: []string{}, PayoutFailures: []string{}, Warnings: []string{}}
	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return rep, err
	}
	if job.Status != models.JobOngoing && job.Status != models.JobFinished {
		return rep, apperr.ErrJobNotOngoing
	}
	if err := rating.Validate(job.Accepted, scores); err != nil {
		return rep, err
	}
	rep.Members = job.Accepted

	if job.Status == models.JobFinished {
		log.Info().Str("job", jobID).Msg("job already finished, settling what is left")
		rep.Resumed = true
		return s.settle(ctx, ownerID, job, scores, rep), nil
	}

	// Not retried: a repeated transition cannot tell our success from a
	// concurrent finish.
	err = s.retry.Once(ctx, func(ctx context.Context) error {
		return s.jobs.Transition(ctx, jobID, models.JobOngoing, models.JobFinished)
	})
	if err != nil && !s.finished(ctx, jobID) {
		if errors.Is(err, store.ErrStatus) {
			return rep, apperr.ErrJobNotOngoing
		}
		return rep, store.Outcome(err, "job")
	}
	if err != nil {
		log.Warn().Err(err).Str("job", jobID).Msg("finish write reported an error but landed")
	}
	return s.settle(ctx, ownerID, job, scores, rep), nil
}

// finished reports whether the job is already finished, which is the case
// when a finish write succeeded but its reply was lost.
func (s *Service) finished(ctx context.Context, jobID string) bool {
	job, err := s.GetJob(ctx, jobID)
	return err == nil && job.Status == models.JobFinished
}

// settle creates the ratings and payouts of a finished job. Both are keyed
// per (job, user), so running it again only fills in what is missing.
func (s *Service) settle(ctx context.Context, ownerID string, job models.Job, scores map[string]rating.Score, rep FinishReport) FinishReport {
	jobID := job.JobID
	rep.Ratings = s.ratings.Finalize(ctx, ownerID, jobID, job.Accepted, scores)
	for _, user := range rep.Ratings.Failed {
		metrics.SideEffectFailed("rating")
		rep.Warnings = append(rep.Warnings, "no rating created for "+user)
	}

	if job.EscrowTxn == "" {
		rep.Warnings = append(rep.Warnings, "no escrow recorded for this job; payouts skipped")
		return rep
	}
	for _, user := range job.Accepted {
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			_, err := s.ledger.Transfer(ctx, ledger.EscrowAccount(jobID), user, job.Salary, ledger.PayoutRef(jobID, user))
			return err
		})
		if err != nil {
			rep.PayoutFailures = append(rep.PayoutFailures, sideEffectFailed("payout", jobID, user, err))
			continue
		}
		rep.Paid = append(rep.Paid, user)
	}
	rep.Warnings = append(rep.Warnings, rep.PayoutFailures...)
	log.Info().Str("job", jobID).Int("paid", len(rep.Paid)).Int("warnings", len(rep.Warnings)).Msg("job finished")
	return rep
}
