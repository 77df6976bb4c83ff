package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolportal/internal/model"
)

// The in-memory stores back STORAGE_DRIVER=memory and the service/handler tests.
// Timestamps handed out by one store are strictly increasing, so insertion order
// and createdAt order agree.

type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// MemoryCommentStore is a CommentStore kept in a map.
type MemoryCommentStore struct {
	mu       sync.RWMutex
	clock    monotonicClock
	comments map[string]model.Comment
}

func NewMemoryCommentStore() *MemoryCommentStore {
	return &MemoryCommentStore{comments: make(map[string]model.Comment)}
}

func (s *MemoryCommentStore) Create(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.clock.now()
	c.UpdatedAt = c.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	stored.Author = nil
	s.comments[c.ID] = stored
	return nil
}

func (s *MemoryCommentStore) GetByID(ctx context.Context, commentID string) (*model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[commentID]
	if !ok {
		return nil, model.ErrCommentNotFound
	}
	return &c, nil
}

func (s *MemoryCommentStore) GetOwned(ctx context.Context, commentID, authorID string) (*model.Comment, error) {
	c, err := s.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.AuthorID != authorID {
		return nil, model.ErrCommentNotFound
	}
	return c, nil
}

func (s *MemoryCommentStore) UpdateContents(ctx context.Context, commentID, authorID, contents string) (*model.Comment, error) {
	updatedAt := s.clock.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok || c.AuthorID != authorID {
		return nil, model.ErrCommentNotFound
	}
	c.Contents = contents
	c.UpdatedAt = updatedAt
	s.comments[commentID] = c
	return &c, nil
}

func (s *MemoryCommentStore) filter(match func(c model.Comment) bool) []model.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Comment{}
	for _, c := range s.comments {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *MemoryCommentStore) ListTopLevel(ctx context.Context, postID string, offset, limit int) ([]model.Comment, error) {
	list := s.filter(func(c model.Comment) bool { return c.PostID == postID && c.IsTopLevel() })
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return window(list, offset, limit), nil
}

func (s *MemoryCommentStore) CountTopLevel(ctx context.Context, postID string) (int64, error) {
	list := s.filter(func(c model.Comment) bool { return c.PostID == postID && c.IsTopLevel() })
	return int64(len(list)), nil
}

func (s *MemoryCommentStore) ListReplies(ctx context.Context, parentID string, limit int) ([]model.Comment, error) {
	list := s.filter(func(c model.Comment) bool { return c.ParentCommentID != nil && *c.ParentCommentID == parentID })
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryCommentStore) ListChildIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	parents := make(map[string]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}
	children := s.filter(func(c model.Comment) bool {
		if c.ParentCommentID == nil {
			return false
		}
		_, ok := parents[*c.ParentCommentID]
		return ok
	})
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids, nil
}

func (s *MemoryCommentStore) DeleteByIDs(ctx context.Context, commentIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range commentIDs {
		if _, ok := s.comments[id]; ok {
			delete(s.comments, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryCommentStore) DeleteByParent(ctx context.Context, parentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.comments {
		if c.ParentCommentID != nil && *c.ParentCommentID == parentID {
			delete(s.comments, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryCommentStore) Delete(ctx context.Context, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[commentID]; !ok {
		return model.ErrCommentNotFound
	}
	delete(s.comments, commentID)
	return nil
}

// Len reports the number of stored comments.
func (s *MemoryCommentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.comments)
}

func window(list []model.Comment, offset, limit int) []model.Comment {
	if offset < 0 || offset >= len(list) {
		return []model.Comment{}
	}
	end := len(list)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return list[offset:end]
}

// MemoryPostRepository is a PostRepository kept in a map.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	clock monotonicClock
	posts map[string]model.Post
}

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{posts: make(map[string]model.Post)}
}

func (r *MemoryPostRepository) Create(ctx context.Context, p *model.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = r.clock.now()
	p.UpdatedAt = p.CreatedAt

	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[p.ID] = *p
	return nil
}

func (r *MemoryPostRepository) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[postID]
	if !ok {
		return nil, model.ErrPostNotFound
	}
	return &p, nil
}

func (r *MemoryPostRepository) Exists(ctx context.Context, postID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.posts[postID]
	return ok, nil
}

// MemoryUserRepository is a UserRepository kept in a map.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	clock monotonicClock
	users map[string]model.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]model.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return model.ErrUsernameExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.clock.now()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (r *MemoryUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	return err == nil, nil
}

func (r *MemoryUserRepository) GetSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

// MemoryNotificationRepository is a NotificationRepository kept in a slice.
type MemoryNotificationRepository struct {
	mu            sync.RWMutex
	clock         monotonicClock
	notifications []model.Notification
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{}
}

func (r *MemoryNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = r.clock.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, *n)
	return nil
}

func (r *MemoryNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.Notification{}
	for i := len(r.notifications) - 1; i >= 0; i-- {
		if r.notifications[i].UserID != userID {
			continue
		}
		out = append(out, r.notifications[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryNotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) MarkAllAsRead(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].UserID == userID {
			r.notifications[i].IsRead = true
		}
	}
	return nil
}
