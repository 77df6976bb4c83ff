package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schoolportal/internal/cache"
	"schoolportal/internal/config"
	"schoolportal/internal/logger"
	"schoolportal/internal/model"
	"schoolportal/internal/queue"
	"schoolportal/internal/repository"
	"schoolportal/internal/thread"
)

// CommentOptions selects the configurable behaviour of CommentService.
type CommentOptions struct {
	// Cascade is config.CascadeSubtree (default) or config.CascadeDirect.
	Cascade string
	// Policies picks the thread depth policy by viewer role.
	Policies *thread.RolePolicies
}

type CommentService struct {
	commentRepo repository.CommentStore
	postRepo    repository.PostRepository
	userRepo    repository.UserRepository
	assembler   *thread.Assembler
	threadCache cache.ThreadCache // Can be nil when Redis is not configured
	publisher   queue.Publisher   // Can be nil when Redis is not configured
	cascade     string
	policies    *thread.RolePolicies
	log         *zap.Logger
}

func NewCommentService(
	commentRepo repository.CommentStore,
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	threadCache cache.ThreadCache,
	publisher queue.Publisher,
	opts CommentOptions,
	log *zap.Logger,
) *CommentService {
	if opts.Cascade == "" {
		opts.Cascade = config.CascadeSubtree
	}
	if opts.Policies == nil {
		opts.Policies = &thread.RolePolicies{Default: thread.Unbounded()}
	}
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		userRepo:    userRepo,
		assembler:   thread.NewAssembler(commentRepo, userRepo, log),
		threadCache: threadCache,
		publisher:   publisher,
		cascade:     opts.Cascade,
		policies:    opts.Policies,
		log:         logger.Component(log, "CommentService"),
	}
}

// Create adds a comment to a post, optionally as a reply to another comment
// on the same post.
func (s *CommentService) Create(ctx context.Context, postID, authorID string, req model.CreateCommentRequest) (*model.Comment, error) {
	contents, err := validateContents(req.Contents)
	if err != nil {
		return nil, err
	}
	if !isUUID(postID) {
		return nil, model.ErrInvalidPostID
	}
	if req.ParentCommentID != nil && !isUUID(*req.ParentCommentID) {
		return nil, model.ErrInvalidCommentID
	}

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err // ErrPostNotFound or wrapped error
	}

	var parent *model.Comment
	if req.ParentCommentID != nil {
		parent, err = s.commentRepo.GetByID(ctx, *req.ParentCommentID)
		if errors.Is(err, model.ErrCommentNotFound) {
			return nil, model.ErrParentCommentNotFound
		}
		if err != nil {
			return nil, err
		}
		// A parent on another post is treated as missing.
		if parent.PostID != postID {
			return nil, model.ErrParentCommentNotFound
		}
	}

	comment := &model.Comment{
		PostID:          postID,
		AuthorID:        authorID,
		ParentCommentID: req.ParentCommentID,
		Contents:        contents,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}

	s.attachAuthor(ctx, comment)
	s.log.Info("comment created",
		zap.String("comment_id", comment.ID),
		zap.String("post_id", postID),
		zap.String("author_id", authorID),
		zap.Bool("reply", parent != nil))

	s.invalidate(ctx, postID)
	var parentID, parentAuthorID string
	if parent != nil {
		parentID, parentAuthorID = parent.ID, parent.AuthorID
	}
	s.publish(ctx, queue.NewCommentCreatedEvent(comment.ID, postID, authorID, post.AuthorID, parentID, parentAuthorID))

	return comment, nil
}

// Update replaces the contents of a comment owned by requesterID. Comments
// owned by someone else are reported as not found.
func (s *CommentService) Update(ctx context.Context, commentID, requesterID string, req model.UpdateCommentRequest) (*model.Comment, error) {
	contents, err := validateContents(req.Contents)
	if err != nil {
		return nil, err
	}
	if !isUUID(commentID) {
		return nil, model.ErrCommentNotFound
	}

	comment, err := s.commentRepo.UpdateContents(ctx, commentID, requesterID, contents)
	if err != nil {
		return nil, err
	}

	s.attachAuthor(ctx, comment)
	s.log.Info("comment updated", zap.String("comment_id", commentID), zap.String("author_id", requesterID))

	s.invalidate(ctx, comment.PostID)
	s.publish(ctx, queue.NewCommentUpdatedEvent(commentID, comment.PostID, requesterID))

	return comment, nil
}

// Delete removes a comment owned by requesterID together with its replies.
// In subtree mode every transitive reply goes; in direct mode only the
// immediate replies do. Descendants are deleted before the comment itself,
// without a transaction.
func (s *CommentService) Delete(ctx context.Context, commentID, requesterID string) error {
	if !isUUID(commentID) {
		return model.ErrCommentNotFound
	}

	comment, err := s.commentRepo.GetOwned(ctx, commentID, requesterID)
	if err != nil {
		return err
	}

	var removed int64
	switch s.cascade {
	case config.CascadeDirect:
		removed, err = s.commentRepo.DeleteByParent(ctx, commentID)
		if err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
	default:
		descendants, err := s.collectDescendants(ctx, commentID)
		if err != nil {
			return err
		}
		removed, err = s.commentRepo.DeleteByIDs(ctx, descendants)
		if err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
	}

	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return err
	}
	removed++

	s.log.Info("comment deleted",
		zap.String("comment_id", commentID),
		zap.String("post_id", comment.PostID),
		zap.String("cascade", s.cascade),
		zap.Int64("removed", removed))

	s.invalidate(ctx, comment.PostID)
	s.publish(ctx, queue.NewCommentDeletedEvent(commentID, comment.PostID, requesterID, removed))

	return nil
}

// collectDescendants walks the reply tree below rootID level by level,
// one query per level.
func (s *CommentService) collectDescendants(ctx context.Context, rootID string) ([]string, error) {
	seen := map[string]bool{rootID: true}
	var descendants []string

	frontier := []string{rootID}
	for len(frontier) > 0 {
		children, err := s.commentRepo.ListChildIDs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("collect replies: %w", err)
		}
		next := make([]string, 0, len(children))
		for _, id := range children {
			if seen[id] {
				continue
			}
			seen[id] = true
			next = append(next, id)
		}
		descendants = append(descendants, next...)
		frontier = next
	}
	return descendants, nil
}

// GetThread returns one page of a post's comment thread, with the reply depth
// chosen by viewerRole. Pages are served from the thread cache when possible.
func (s *CommentService) GetThread(ctx context.Context, postID string, page, limit int, viewerRole string) (*model.ThreadPage, error) {
	if !isUUID(postID) {
		return nil, model.ErrInvalidPostID
	}

	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}

	policy := s.policies.For(viewerRole)
	page, limit = thread.Normalize(page, limit)

	if s.threadCache != nil {
		cached, found, err := s.threadCache.Get(ctx, postID, policy.Name, page, limit)
		if err != nil {
			s.log.Warn("thread cache read failed", zap.String("post_id", postID), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	result, err := s.assembler.Thread(ctx, postID, page, limit, policy)
	if err != nil {
		return nil, err
	}

	if s.threadCache != nil {
		if err := s.threadCache.Set(ctx, postID, policy.Name, page, limit, result); err != nil {
			s.log.Warn("thread cache write failed", zap.String("post_id", postID), zap.Error(err))
		}
	}

	return result, nil
}

// attachAuthor resolves the author's display fields. A lookup failure leaves
// Author nil; the comment itself is already stored.
func (s *CommentService) attachAuthor(ctx context.Context, comment *model.Comment) {
	summaries, err := s.userRepo.GetSummaries(ctx, []string{comment.AuthorID})
	if err != nil {
		s.log.Warn("author lookup failed", zap.String("author_id", comment.AuthorID), zap.Error(err))
		return
	}
	if summary, ok := summaries[comment.AuthorID]; ok {
		comment.Author = &summary
	}
}

func (s *CommentService) invalidate(ctx context.Context, postID string) {
	if s.threadCache == nil {
		return
	}
	if err := s.threadCache.InvalidatePost(ctx, postID); err != nil {
		s.log.Warn("thread cache invalidation failed", zap.String("post_id", postID), zap.Error(err))
	}
}

// publish is best effort: the write has already happened.
func (s *CommentService) publish(ctx context.Context, event queue.CommentEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, queue.StreamComments, event); err != nil {
		s.log.Warn("failed to publish comment event", zap.String("type", event.Type), zap.Error(err))
	}
}

func validateContents(raw string) (string, error) {
	contents := strings.TrimSpace(raw)
	if contents == "" {
		return "", model.ErrContentRequired
	}
	if utf8.RuneCountInString(contents) > model.MaxCommentLength {
		return "", model.ErrContentTooLong
	}
	return contents, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
