package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

var _ repository.VoteRepository = (*DB)(nil)

// targetSQL returns the content table and the votes column for a target kind.
func targetSQL(kind model.TargetKind) (table, column string) {
	if kind == model.TargetQuestion {
		return "questions", "question_id"
	}
	return "answers", "answer_id"
}

// CastVote records dir for voterID on target and keeps the target's stored
// total equal to the ledger sum. Everything happens in one transaction; with
// a single connection no other cast can interleave.
func (db *DB) CastVote(ctx context.Context, voterID string, target model.VoteTarget, dir model.Direction) (model.VoteOutcome, error) {
	if err := target.Validate(); err != nil {
		return model.VoteOutcome{}, apperror.ValidationFailed("target", err.Error())
	}
	table, column := targetSQL(target.Kind())
	targetID := target.ID()

	var outcome model.VoteOutcome
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if err := rowExists(ctx, tx, table, targetID); err != nil {
			return err
		}

		var (
			voteID   string
			existing *model.Direction
		)
		var current int
		err := tx.QueryRowContext(ctx,
			`SELECT id, direction FROM votes WHERE user_id = ? AND `+column+` = ?`,
			voterID, targetID,
		).Scan(&voteID, &current)
		switch {
		case err == nil:
			d := model.Direction(current)
			existing = &d
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("sqlite: reading vote: %w", err)
		}

		outcome = model.ResolveVote(existing, dir)

		switch outcome.Action {
		case model.VoteCreated:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO votes (id, user_id, `+column+`, direction, created_at) VALUES (?, ?, ?, ?, ?)`,
				xid.New().String(), voterID, targetID, int(dir), now())
		case model.VoteRemoved:
			_, err = tx.ExecContext(ctx, `DELETE FROM votes WHERE id = ?`, voteID)
		case model.VoteFlipped:
			_, err = tx.ExecContext(ctx, `UPDATE votes SET direction = ? WHERE id = ?`, int(dir), voteID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: writing vote (%s): %w", outcome.Action, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET votes = votes + ? WHERE id = ?`,
			outcome.Delta, targetID,
		); err != nil {
			return fmt.Errorf("sqlite: adjusting vote total of %s: %w", targetID, err)
		}
		return nil
	})
	if err != nil {
		return model.VoteOutcome{}, err
	}
	return outcome, nil
}

// GetVote returns voterID's current vote on target.
func (db *DB) GetVote(ctx context.Context, voterID string, target model.VoteTarget) (*model.Vote, error) {
	_, column := targetSQL(target.Kind())

	v := model.Vote{UserID: voterID, Target: target}
	var d int
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, direction, created_at FROM votes WHERE user_id = ? AND `+column+` = ?`,
		voterID, target.ID(),
	).Scan(&v.ID, &d, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("vote", target.ID())
		}
		return nil, fmt.Errorf("sqlite: getting vote: %w", err)
	}
	v.Direction = model.Direction(d)
	return &v, nil
}

// SumVotes adds up the ledger for target. It should always equal the
// target's stored votes column.
func (db *DB) SumVotes(ctx context.Context, target model.VoteTarget) (int, error) {
	_, column := targetSQL(target.Kind())

	var sum int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(direction), 0) FROM votes WHERE `+column+` = ?`,
		target.ID(),
	).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sqlite: summing votes of %s: %w", target.ID(), err)
	}
	return sum, nil
}
