package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
)

func targetSQL(kind model.TargetKind) (table, column string) {
	if kind == model.TargetQuestion {
		return "questions", "question_id"
	}
	return "answers", "answer_id"
}

// CastVote locks the target row first; every cast on that target waits for
// the lock, so the read of the voter's current vote and the counter update
// see a consistent ledger.
//
// ROW LOCKING (SELECT ... FOR UPDATE):
// Under READ COMMITTED, two transactions can both read "no vote yet" for the
// same voter and both insert, or both read votes=3 and both write 4. FOR
// UPDATE takes a row lock on the question or answer being voted on. A second
// cast on the same target blocks at that SELECT until the first commits or
// rolls back, then reads the committed ledger. Casts on different targets
// lock different rows and run in parallel.
//
// The lock also answers "does the target exist?": no row means NotFound,
// and a concurrent delete cannot slip in between the check and the insert.
//
// The counter is written as votes = votes + delta rather than a value
// computed in Go, so it stays correct relative to whatever is committed.
func (db *DB) CastVote(ctx context.Context, voterID string, target model.VoteTarget, dir model.Direction) (model.VoteOutcome, error) {
	if err := target.Validate(); err != nil {
		return model.VoteOutcome{}, apperror.ValidationFailed("target", err.Error())
	}
	table, column := targetSQL(target.Kind())
	targetID := target.ID()

	var outcome model.VoteOutcome
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM `+table+` WHERE id = $1 FOR UPDATE`, targetID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound(string(target.Kind()), targetID)
		}
		if err != nil {
			return fmt.Errorf("postgres: locking %s %s: %w", target.Kind(), targetID, err)
		}

		var (
			voteID   string
			current  int16
			existing *model.Direction
		)
		err = tx.QueryRow(ctx,
			`SELECT id, direction FROM votes WHERE user_id = $1 AND `+column+` = $2`,
			voterID, targetID).Scan(&voteID, &current)
		switch {
		case err == nil:
			d := model.Direction(current)
			existing = &d
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("postgres: reading vote: %w", err)
		}

		outcome = model.ResolveVote(existing, dir)

		switch outcome.Action {
		case model.VoteCreated:
			_, err = tx.Exec(ctx,
				`INSERT INTO votes (id, user_id, `+column+`, direction, created_at) VALUES ($1, $2, $3, $4, $5)`,
				xid.New().String(), voterID, targetID, int16(dir), now())
		case model.VoteRemoved:
			_, err = tx.Exec(ctx, `DELETE FROM votes WHERE id = $1`, voteID)
		case model.VoteFlipped:
			_, err = tx.Exec(ctx, `UPDATE votes SET direction = $1 WHERE id = $2`, int16(dir), voteID)
		}
		if err != nil {
			return fmt.Errorf("postgres: writing vote (%s): %w", outcome.Action, err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE `+table+` SET votes = votes + $1 WHERE id = $2`, outcome.Delta, targetID); err != nil {
			return fmt.Errorf("postgres: adjusting vote total of %s: %w", targetID, err)
		}
		return nil
	})
	if err != nil {
		return model.VoteOutcome{}, err
	}
	return outcome, nil
}

func (db *DB) GetVote(ctx context.Context, voterID string, target model.VoteTarget) (*model.Vote, error) {
	_, column := targetSQL(target.Kind())

	v := model.Vote{UserID: voterID, Target: target}
	var d int16
	err := db.pool.QueryRow(ctx,
		`SELECT id, direction, created_at FROM votes WHERE user_id = $1 AND `+column+` = $2`,
		voterID, target.ID()).Scan(&v.ID, &d, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("vote", target.ID())
		}
		return nil, fmt.Errorf("postgres: getting vote: %w", err)
	}
	v.Direction = model.Direction(d)
	return &v, nil
}

func (db *DB) SumVotes(ctx context.Context, target model.VoteTarget) (int, error) {
	_, column := targetSQL(target.Kind())

	var sum int
	if err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(direction), 0)::int FROM votes WHERE `+column+` = $1`,
		target.ID()).Scan(&sum); err != nil {
		return 0, fmt.Errorf("postgres: summing votes of %s: %w", target.ID(), err)
	}
	return sum, nil
}
