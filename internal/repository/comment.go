package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"schoolportal/internal/model"
)

const commentColumns = `id, post_id, author_id, parent_comment_id, contents, created_at, updated_at`

type commentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) CommentStore {
	return &commentRepository{db: db}
}

// Create inserts a new comment. The ID is assigned here when empty.
func (r *commentRepository) Create(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO comments (id, post_id, author_id, parent_comment_id, contents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, c.ID, c.PostID, c.AuthorID, c.ParentCommentID, c.Contents).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetByID retrieves a single comment.
func (r *commentRepository) GetByID(ctx context.Context, commentID string) (*model.Comment, error) {
	var comment model.Comment
	err := r.db.GetContext(ctx, &comment, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &comment, nil
}

// GetOwned retrieves a comment only if authorID wrote it.
func (r *commentRepository) GetOwned(ctx context.Context, commentID, authorID string) (*model.Comment, error) {
	var comment model.Comment
	err := r.db.GetContext(ctx, &comment,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1 AND author_id = $2`, commentID, authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get owned comment: %w", err)
	}
	return &comment, nil
}

// UpdateContents replaces the contents. A non-owner gets ErrCommentNotFound.
func (r *commentRepository) UpdateContents(ctx context.Context, commentID, authorID, contents string) (*model.Comment, error) {
	query := `
		UPDATE comments
		SET contents = $1, updated_at = NOW()
		WHERE id = $2 AND author_id = $3
		RETURNING ` + commentColumns
	var comment model.Comment
	err := r.db.GetContext(ctx, &comment, query, contents, commentID, authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return &comment, nil
}

// ListTopLevel returns one page of top-level comments, newest first.
func (r *commentRepository) ListTopLevel(ctx context.Context, postID string, offset, limit int) ([]model.Comment, error) {
	query := `
		SELECT ` + commentColumns + `
		FROM comments
		WHERE post_id = $1 AND parent_comment_id IS NULL
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`
	comments := []model.Comment{}
	if err := r.db.SelectContext(ctx, &comments, query, postID, offset, limit); err != nil {
		return nil, fmt.Errorf("list top-level comments: %w", err)
	}
	return comments, nil
}

// CountTopLevel counts the top-level comments of a post.
func (r *commentRepository) CountTopLevel(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM comments WHERE post_id = $1 AND parent_comment_id IS NULL`, postID)
	if err != nil {
		return 0, fmt.Errorf("count top-level comments: %w", err)
	}
	return count, nil
}

// ListReplies returns direct replies of parentID, oldest first.
func (r *commentRepository) ListReplies(ctx context.Context, parentID string, limit int) ([]model.Comment, error) {
	query := `
		SELECT ` + commentColumns + `
		FROM comments
		WHERE parent_comment_id = $1
		ORDER BY created_at ASC, id ASC
	`
	args := []interface{}{parentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	comments := []model.Comment{}
	if err := r.db.SelectContext(ctx, &comments, query, args...); err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return comments, nil
}

// ListChildIDs returns the IDs of all direct replies of any of parentIDs.
func (r *commentRepository) ListChildIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM comments WHERE parent_comment_id = ANY($1)`, pq.Array(parentIDs))
	if err != nil {
		return nil, fmt.Errorf("list child ids: %w", err)
	}
	return ids, nil
}

// DeleteByIDs removes the given comments and reports how many rows went away.
func (r *commentRepository) DeleteByIDs(ctx context.Context, commentIDs []string) (int64, error) {
	if len(commentIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ANY($1)`, pq.Array(commentIDs))
	if err != nil {
		return 0, fmt.Errorf("delete comments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteByParent removes the direct replies of parentID.
func (r *commentRepository) DeleteByParent(ctx context.Context, parentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE parent_comment_id = $1`, parentID)
	if err != nil {
		return 0, fmt.Errorf("delete replies: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Delete removes one comment.
func (r *commentRepository) Delete(ctx context.Context, commentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrCommentNotFound
	}
	return nil
}
