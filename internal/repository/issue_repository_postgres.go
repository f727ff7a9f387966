package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

var issueTables = map[Collection]string{
	CollectionPending:  "pending_issues",
	CollectionApproved: "approved_issues",
}

// lookupOrder is the order collections are searched in; approved first
// because a record briefly present in both counts as approved.
var lookupOrder = []Collection{CollectionApproved, CollectionPending}

const issueColumns = `id, description, location, category, reporter_id, image_ref, status,
               upvotes, downvotes, voted_by, created_at, updated_at, moderated_at`

// getIssueQuery reads both collections in one statement, so a move committing
// concurrently is seen either before or after, never as absent.
var getIssueQuery = fmt.Sprintf(`
        SELECT %[1]s FROM (
            SELECT %[1]s, 0 AS rank FROM approved_issues WHERE id=$1
            UNION ALL
            SELECT %[1]s, 1 AS rank FROM pending_issues WHERE id=$1
        ) AS found
        ORDER BY rank
        LIMIT 1`, issueColumns)

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository returns a Postgres-backed implementation. Each mutating
// call runs in one transaction holding a row lock on the issue.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

func tableFor(c Collection) (string, error) {
	table, ok := issueTables[c]
	if !ok {
		return "", fmt.Errorf("unknown collection %q", c)
	}
	return table, nil
}

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	name, ok := CollectionFor(issue.Status)
	if !ok {
		return fmt.Errorf("cannot store issue with status %q", issue.Status)
	}
	table, err := tableFor(name)
	if err != nil {
		return err
	}
	if issue.ID == "" {
		issue.ID = newIssueID()
	}
	if issue.VotedBy == nil {
		issue.VotedBy = []string{}
	}
	return withRetry(ctx, func() error {
		return insertIssue(ctx, r.pool, table, issue)
	})
}

func (r *issueRepository) Get(ctx context.Context, id string) (*domain.Issue, error) {
	var found *domain.Issue
	err := withRetry(ctx, func() error {
		issue, err := scanIssue(r.pool.QueryRow(ctx, getIssueQuery, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		found = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *issueRepository) ListByStatus(ctx context.Context, status domain.IssueStatus) ([]domain.Issue, error) {
	name, ok := CollectionFor(status)
	if !ok {
		return []domain.Issue{}, nil
	}
	table, err := tableFor(name)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY position`, issueColumns, table)

	var result []domain.Issue
	err = withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		result, err = scanIssues(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *issueRepository) Update(ctx context.Context, id string, mutate MutateFunc) (*domain.Issue, error) {
	var updated *domain.Issue
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		c, issue, err := lockIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		status := issue.Status
		if err := mutate(issue); err != nil {
			return abortError{err}
		}
		if issue.ID != id || issue.Status != status {
			return abortError{errors.New("update may not change issue id or status")}
		}
		table, _ := tableFor(c)
		query := fmt.Sprintf(`
        UPDATE %s SET description=$1, location=$2, category=$3, reporter_id=$4, image_ref=$5,
            upvotes=$6, downvotes=$7, voted_by=$8, updated_at=$9, moderated_at=$10
        WHERE id=$11`, table)
		if _, err := tx.Exec(ctx, query,
			issue.Description,
			issue.Location,
			issue.Category,
			issue.ReporterID,
			issue.ImageRef,
			issue.Upvotes,
			issue.Downvotes,
			issue.VotedBy,
			issue.UpdatedAt,
			issue.ModeratedAt,
			issue.ID,
		); err != nil {
			return err
		}
		updated = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *issueRepository) Move(ctx context.Context, id string, from, to Collection, mutate MutateFunc) (*domain.Issue, error) {
	source, err := tableFor(from)
	if err != nil {
		return nil, err
	}
	target, err := tableFor(to)
	if err != nil {
		return nil, err
	}

	var moved *domain.Issue
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		c, issue, err := lockIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(issue); err != nil {
			return abortError{err}
		}
		if c != from {
			return ErrNotFound
		}
		if err := insertIssue(ctx, tx, target, issue); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, source), id); err != nil {
			return err
		}
		moved = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (r *issueRepository) Delete(ctx context.Context, id string, from Collection, check MutateFunc) (*domain.Issue, error) {
	source, err := tableFor(from)
	if err != nil {
		return nil, err
	}

	var deleted *domain.Issue
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		c, issue, err := lockIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(issue); err != nil {
				return abortError{err}
			}
		}
		if c != from {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, source), id); err != nil {
			return err
		}
		deleted = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *issueRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return withRetry(ctx, func() error {
		return pgx.BeginFunc(ctx, r.pool, fn)
	})
}

// lockIssue selects the issue FOR UPDATE from whichever collection holds it.
// A pending row can vanish while we wait on its lock because the holder moved
// it; the second pass then finds it in approved, since each statement sees
// rows committed before it started.
func lockIssue(ctx context.Context, tx pgx.Tx, id string) (Collection, *domain.Issue, error) {
	for pass := 0; pass < 2; pass++ {
		for _, c := range lookupOrder {
			table, _ := tableFor(c)
			query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1 FOR UPDATE`, issueColumns, table)
			issue, err := scanIssue(tx.QueryRow(ctx, query, id))
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return "", nil, err
			}
			return c, issue, nil
		}
	}
	return "", nil, ErrNotFound
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertIssue(ctx context.Context, db execer, table string, issue *domain.Issue) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (id, description, location, category, reporter_id, image_ref, status,
            upvotes, downvotes, voted_by, created_at, updated_at, moderated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, table)
	_, err := db.Exec(ctx, query,
		issue.ID,
		issue.Description,
		issue.Location,
		issue.Category,
		issue.ReporterID,
		issue.ImageRef,
		issue.Status,
		issue.Upvotes,
		issue.Downvotes,
		issue.VotedBy,
		issue.CreatedAt,
		issue.UpdatedAt,
		issue.ModeratedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return err
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var issue domain.Issue
	if err := row.Scan(
		&issue.ID,
		&issue.Description,
		&issue.Location,
		&issue.Category,
		&issue.ReporterID,
		&issue.ImageRef,
		&issue.Status,
		&issue.Upvotes,
		&issue.Downvotes,
		&issue.VotedBy,
		&issue.CreatedAt,
		&issue.UpdatedAt,
		&issue.ModeratedAt,
	); err != nil {
		return nil, err
	}
	return &issue, nil
}

func scanIssues(rows pgx.Rows) ([]domain.Issue, error) {
	result := []domain.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *issue)
	}
	return result, rows.Err()
}
