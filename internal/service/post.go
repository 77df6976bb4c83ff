package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schoolportal/internal/logger"
	"schoolportal/internal/model"
	"schoolportal/internal/repository"
)

// PostService manages the posts comments attach to.
type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	log      *zap.Logger
}

func NewPostService(postRepo repository.PostRepository, userRepo repository.UserRepository, log *zap.Logger) *PostService {
	return &PostService{postRepo: postRepo, userRepo: userRepo, log: logger.Component(log, "PostService")}
}

// Create publishes a new post by authorID.
func (s *PostService) Create(ctx context.Context, authorID string, req model.CreatePostRequest) (*model.Post, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, model.ErrTitleRequired
	}

	post := &model.Post{
		AuthorID: authorID,
		Title:    title,
		Body:     req.Body,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	s.attachAuthor(ctx, post)
	s.log.Info("post created", zap.String("post_id", post.ID), zap.String("author_id", authorID))
	return post, nil
}

// GetByID returns a post with its author resolved.
func (s *PostService) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	if _, err := uuid.Parse(postID); err != nil {
		return nil, model.ErrInvalidPostID
	}
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.attachAuthor(ctx, post)
	return post, nil
}

func (s *PostService) attachAuthor(ctx context.Context, post *model.Post) {
	summaries, err := s.userRepo.GetSummaries(ctx, []string{post.AuthorID})
	if err != nil {
		s.log.Warn("author lookup failed", zap.String("author_id", post.AuthorID), zap.Error(err))
		return
	}
	if summary, ok := summaries[post.AuthorID]; ok {
		post.Author = &summary
	}
}
