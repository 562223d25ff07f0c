package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/marketplace_api/internal/models"
)

// CommentRepository provides append-only access to request comments.
type CommentRepository struct {
	db sqlx.ExtContext
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db sqlx.ExtContext) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create appends a comment.
func (r *CommentRepository) Create(ctx context.Context, c *models.RequestComment) error {
	const q = `INSERT INTO request_comments (request_id, author_id, kind, body, file_url, credits_charged, free_used_after)
              VALUES ($1, $2, $3, $4, $5, $6, $7)
              RETURNING id, created_at`
	return r.db.QueryRowxContext(ctx, q,
		c.RequestID, c.AuthorID, c.Kind, c.Body, c.FileURL, c.CreditsCharged, c.FreeUsedAfter,
	).Scan(&c.ID, &c.CreatedAt)
}

// ListByRequest returns a request's comments oldest first.
func (r *CommentRepository) ListByRequest(ctx context.Context, requestID int64) ([]*models.RequestComment, error) {
	var out []*models.RequestComment
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT id, request_id, author_id, kind, body, file_url, credits_charged, free_used_after, created_at
         FROM request_comments WHERE request_id = $1 ORDER BY id`, requestID)
	return out, err
}

// ListByRequestAndKind returns a request's comments of one kind, oldest first.
func (r *CommentRepository) ListByRequestAndKind(ctx context.Context, requestID int64, kind models.CommentKind) ([]*models.RequestComment, error) {
	var out []*models.RequestComment
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT id, request_id, author_id, kind, body, file_url, credits_charged, free_used_after, created_at
         FROM request_comments WHERE request_id = $1 AND kind = $2 ORDER BY id`, requestID, kind)
	return out, err
}
