package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoolportal/internal/config"
	"schoolportal/internal/model"
	"schoolportal/internal/queue"
	"schoolportal/internal/repository"
	"schoolportal/internal/thread"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, stream string, event queue.CommentEvent) (string, error) {
	args := m.Called(ctx, stream, event)
	return args.String(0), args.Error(1)
}

type mockThreadCache struct {
	mock.Mock
}

func (m *mockThreadCache) Get(ctx context.Context, postID, policy string, page, limit int) (*model.ThreadPage, bool, error) {
	args := m.Called(ctx, postID, policy, page, limit)
	p, _ := args.Get(0).(*model.ThreadPage)
	return p, args.Bool(1), args.Error(2)
}

func (m *mockThreadCache) Set(ctx context.Context, postID, policy string, page, limit int, value *model.ThreadPage) error {
	args := m.Called(ctx, postID, policy, page, limit, value)
	return args.Error(0)
}

func (m *mockThreadCache) InvalidatePost(ctx context.Context, postID string) error {
	args := m.Called(ctx, postID)
	return args.Error(0)
}

type commentFixture struct {
	svc      *CommentService
	comments *repository.MemoryCommentStore
	post     *model.Post
	teacher  *model.User
	parent   *model.User
	ctx      context.Context
}

func newCommentFixture(t *testing.T, opts CommentOptions) *commentFixture {
	t.Helper()
	ctx := context.Background()

	users := repository.NewMemoryUserRepository()
	posts := repository.NewMemoryPostRepository()
	comments := repository.NewMemoryCommentStore()

	teacher := &model.User{Username: "mr.le", Role: model.RoleTeacher}
	require.NoError(t, users.Create(ctx, teacher))
	parent := &model.User{Username: "mai.pham", Role: model.RoleParent}
	require.NoError(t, users.Create(ctx, parent))

	post := &model.Post{AuthorID: teacher.ID, Title: "Field trip on Friday"}
	require.NoError(t, posts.Create(ctx, post))

	return &commentFixture{
		svc:      NewCommentService(comments, posts, users, nil, nil, opts, zap.NewNop()),
		comments: comments,
		post:     post,
		teacher:  teacher,
		parent:   parent,
		ctx:      ctx,
	}
}

func (f *commentFixture) create(t *testing.T, author *model.User, parent *model.Comment, contents string) *model.Comment {
	t.Helper()
	req := model.CreateCommentRequest{Contents: contents}
	if parent != nil {
		req.ParentCommentID = &parent.ID
	}
	c, err := f.svc.Create(f.ctx, f.post.ID, author.ID, req)
	require.NoError(t, err)
	return c
}

func collectIDs(nodes []*model.CommentNode, into map[string]bool) {
	for _, n := range nodes {
		into[n.ID] = true
		collectIDs(n.Replies, into)
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCommentService_Create(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})

	c, err := f.svc.Create(f.ctx, f.post.ID, f.parent.ID, model.CreateCommentRequest{Contents: "  What should we pack?  "})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "What should we pack?", c.Contents)
	assert.Equal(t, f.post.ID, c.PostID)
	assert.Equal(t, f.parent.ID, c.AuthorID)
	assert.Nil(t, c.ParentCommentID)
	require.NotNil(t, c.Author)
	assert.Equal(t, "mai.pham", c.Author.Username)
	assert.Equal(t, model.RoleParent, c.Author.Role)

	reply := f.create(t, f.teacher, c, "Water and a hat.")
	require.NotNil(t, reply.ParentCommentID)
	assert.Equal(t, c.ID, *reply.ParentCommentID)
}

func TestCommentService_Create_Validation(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	badID := "not-a-uuid"

	tests := []struct {
		name    string
		postID  string
		req     model.CreateCommentRequest
		wantErr error
	}{
		{"empty contents", f.post.ID, model.CreateCommentRequest{Contents: ""}, model.ErrContentRequired},
		{"whitespace contents", f.post.ID, model.CreateCommentRequest{Contents: " \n\t "}, model.ErrContentRequired},
		{"too long", f.post.ID, model.CreateCommentRequest{Contents: strings.Repeat("a", model.MaxCommentLength+1)}, model.ErrContentTooLong},
		{"malformed parent id", f.post.ID, model.CreateCommentRequest{Contents: "hi", ParentCommentID: &badID}, model.ErrInvalidCommentID},
		{"malformed post id", "42", model.CreateCommentRequest{Contents: "hi"}, model.ErrInvalidPostID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx, tt.postID, f.parent.ID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
		})
	}
	assert.Zero(t, f.comments.Len())
}

func TestCommentService_Create_MaxLengthCountsCharacters(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	_, err := f.svc.Create(f.ctx, f.post.ID, f.parent.ID,
		model.CreateCommentRequest{Contents: strings.Repeat("ư", model.MaxCommentLength)})
	assert.NoError(t, err)
}

func TestCommentService_Create_UnknownPostPersistsNothing(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})

	_, err := f.svc.Create(f.ctx, "1f0e2d3c-4b5a-4968-8776-655443322110", f.parent.ID, model.CreateCommentRequest{Contents: "hello"})
	assert.ErrorIs(t, err, model.ErrPostNotFound)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	assert.Zero(t, f.comments.Len())
}

func TestCommentService_Create_UnknownParent(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	missing := "2a3b4c5d-6e7f-4a8b-9c0d-1e2f3a4b5c6d"

	_, err := f.svc.Create(f.ctx, f.post.ID, f.parent.ID, model.CreateCommentRequest{Contents: "hello", ParentCommentID: &missing})
	assert.ErrorIs(t, err, model.ErrParentCommentNotFound)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	assert.Zero(t, f.comments.Len())
}

func TestCommentService_Create_ParentOnAnotherPostIsRejected(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	other := &model.Comment{PostID: "9e8d7c6b-5a49-4382-9170-6f5e4d3c2b1a", AuthorID: f.teacher.ID, Contents: "elsewhere"}
	require.NoError(t, f.comments.Create(f.ctx, other))

	_, err := f.svc.Create(f.ctx, f.post.ID, f.parent.ID, model.CreateCommentRequest{Contents: "hello", ParentCommentID: &other.ID})
	assert.ErrorIs(t, err, model.ErrParentCommentNotFound)
	assert.Equal(t, 1, f.comments.Len())
}

// =============================================================================
// UPDATE
// =============================================================================

func TestCommentService_Update(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	c := f.create(t, f.parent, nil, "original")

	updated, err := f.svc.Update(f.ctx, c.ID, f.parent.ID, model.UpdateCommentRequest{Contents: "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Contents)
	assert.Equal(t, c.PostID, updated.PostID)
	assert.Equal(t, c.AuthorID, updated.AuthorID)
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)
	require.NotNil(t, updated.Author)
	assert.Equal(t, "mai.pham", updated.Author.Username)
}

func TestCommentService_Update_NonOwnerGetsNotFound(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	c := f.create(t, f.parent, nil, "original")

	_, err := f.svc.Update(f.ctx, c.ID, f.teacher.ID, model.UpdateCommentRequest{Contents: "hijacked"})
	assert.ErrorIs(t, err, model.ErrCommentNotFound)

	stored, err := f.comments.GetByID(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Contents)
}

func TestCommentService_Update_Errors(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	c := f.create(t, f.parent, nil, "original")

	_, err := f.svc.Update(f.ctx, c.ID, f.parent.ID, model.UpdateCommentRequest{Contents: "   "})
	assert.ErrorIs(t, err, model.ErrContentRequired)

	_, err = f.svc.Update(f.ctx, "garbage", f.parent.ID, model.UpdateCommentRequest{Contents: "x"})
	assert.ErrorIs(t, err, model.ErrCommentNotFound)

	_, err = f.svc.Update(f.ctx, "3c4d5e6f-7a8b-4c9d-8e0f-1a2b3c4d5e6f", f.parent.ID, model.UpdateCommentRequest{Contents: "x"})
	assert.ErrorIs(t, err, model.ErrCommentNotFound)
}

// =============================================================================
// DELETE
// =============================================================================

func TestCommentService_Delete_NonOwnerGetsNotFound(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	c := f.create(t, f.parent, nil, "mine")
	f.create(t, f.teacher, c, "reply")

	err := f.svc.Delete(f.ctx, c.ID, f.teacher.ID)
	assert.ErrorIs(t, err, model.ErrCommentNotFound)
	assert.Equal(t, 2, f.comments.Len())
}

func TestCommentService_Delete_SubtreeRemovesEveryDescendant(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{Cascade: config.CascadeSubtree})

	root := f.create(t, f.parent, nil, "root")
	var deleted []string
	deleted = append(deleted, root.ID)
	for i := 0; i < 3; i++ {
		child := f.create(t, f.teacher, root, "child")
		grandchild := f.create(t, f.parent, child, "grandchild")
		great := f.create(t, f.teacher, grandchild, "great-grandchild")
		deleted = append(deleted, child.ID, grandchild.ID, great.ID)
	}
	survivor := f.create(t, f.teacher, nil, "unrelated")
	survivorReply := f.create(t, f.parent, survivor, "unrelated reply")

	require.NoError(t, f.svc.Delete(f.ctx, root.ID, f.parent.ID))
	assert.Equal(t, 2, f.comments.Len())

	page, err := f.svc.GetThread(f.ctx, f.post.ID, 1, 10, "")
	require.NoError(t, err)
	ids := map[string]bool{}
	collectIDs(page.Comments, ids)
	for _, id := range deleted {
		assert.False(t, ids[id], "deleted comment %s still in thread", id)
	}
	assert.True(t, ids[survivor.ID])
	assert.True(t, ids[survivorReply.ID])

	// No comment references a deleted parent.
	orphans, err := f.comments.ListChildIDs(f.ctx, deleted)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestCommentService_Delete_DirectLeavesGrandchildren(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{Cascade: config.CascadeDirect})

	root := f.create(t, f.parent, nil, "root")
	child := f.create(t, f.teacher, root, "child")
	other := f.create(t, f.teacher, root, "other child")
	grandchild := f.create(t, f.parent, child, "grandchild")

	require.NoError(t, f.svc.Delete(f.ctx, root.ID, f.parent.ID))

	for _, id := range []string{root.ID, child.ID, other.ID} {
		_, err := f.comments.GetByID(f.ctx, id)
		assert.ErrorIs(t, err, model.ErrCommentNotFound)
	}
	_, err := f.comments.GetByID(f.ctx, grandchild.ID)
	assert.NoError(t, err, "legacy cascade removes one level only")
}

func TestCommentService_Delete_Leaf(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	root := f.create(t, f.parent, nil, "root")
	leaf := f.create(t, f.teacher, root, "leaf")

	require.NoError(t, f.svc.Delete(f.ctx, leaf.ID, f.teacher.ID))
	assert.Equal(t, 1, f.comments.Len())

	err := f.svc.Delete(f.ctx, leaf.ID, f.teacher.ID)
	assert.ErrorIs(t, err, model.ErrCommentNotFound)
}

// =============================================================================
// THREAD
// =============================================================================

func TestCommentService_GetThread_PolicyByRole(t *testing.T) {
	policies, err := thread.NewRolePolicies("unbounded", map[string]string{model.RoleParent: "bounded"})
	require.NoError(t, err)
	f := newCommentFixture(t, CommentOptions{Policies: policies})

	c := f.create(t, f.parent, nil, "depth 0")
	for i := 0; i < 3; i++ {
		c = f.create(t, f.teacher, c, "deeper")
	}

	depthOf := func(nodes []*model.CommentNode) int {
		depth := 0
		for len(nodes) > 0 && len(nodes[0].Replies) > 0 {
			nodes = nodes[0].Replies
			depth++
		}
		return depth
	}

	asParent, err := f.svc.GetThread(f.ctx, f.post.ID, 1, 10, model.RoleParent)
	require.NoError(t, err)
	assert.Equal(t, thread.PolicyBounded, asParent.Policy)
	assert.Equal(t, 2, depthOf(asParent.Comments))

	asAdmin, err := f.svc.GetThread(f.ctx, f.post.ID, 1, 10, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, thread.PolicyUnbounded, asAdmin.Policy)
	assert.Equal(t, 3, depthOf(asAdmin.Comments))
}

func TestCommentService_GetThread_UnknownPost(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})

	_, err := f.svc.GetThread(f.ctx, "1f0e2d3c-4b5a-4968-8776-655443322110", 1, 10, "")
	assert.ErrorIs(t, err, model.ErrPostNotFound)

	_, err = f.svc.GetThread(f.ctx, "nope", 1, 10, "")
	assert.ErrorIs(t, err, model.ErrInvalidPostID)
}

func TestCommentService_GetThread_RepeatedReadsAreIdentical(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	root := f.create(t, f.parent, nil, "root")
	f.create(t, f.teacher, root, "reply")
	f.create(t, f.teacher, nil, "second")

	first, err := f.svc.GetThread(f.ctx, f.post.ID, 1, 10, "")
	require.NoError(t, err)
	second, err := f.svc.GetThread(f.ctx, f.post.ID, 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// =============================================================================
// CACHE AND EVENTS
// =============================================================================

func TestCommentService_CacheAndEvents(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryUserRepository()
	posts := repository.NewMemoryPostRepository()
	comments := repository.NewMemoryCommentStore()

	teacher := &model.User{Username: "mr.le", Role: model.RoleTeacher}
	require.NoError(t, users.Create(ctx, teacher))
	student := &model.User{Username: "mai.pham", Role: model.RoleParent}
	require.NoError(t, users.Create(ctx, student))
	post := &model.Post{AuthorID: teacher.ID, Title: "Menu"}
	require.NoError(t, posts.Create(ctx, post))

	cache := new(mockThreadCache)
	pub := new(mockPublisher)
	svc := NewCommentService(comments, posts, users, cache, pub, CommentOptions{}, zap.NewNop())

	cache.On("InvalidatePost", mock.Anything, post.ID).Return(nil)
	pub.On("Publish", mock.Anything, queue.StreamComments, mock.MatchedBy(func(e queue.CommentEvent) bool {
		return e.Type == queue.EventCommentCreated && e.PostAuthorID == teacher.ID && e.ActorID == student.ID
	})).Return("1-0", nil).Once()

	c, err := svc.Create(ctx, post.ID, student.ID, model.CreateCommentRequest{Contents: "Is lunch vegetarian?"})
	require.NoError(t, err)

	// Miss, assemble, store.
	cache.On("Get", mock.Anything, post.ID, thread.PolicyUnbounded, 1, 10).Return(nil, false, nil).Once()
	cache.On("Set", mock.Anything, post.ID, thread.PolicyUnbounded, 1, 10, mock.Anything).Return(nil).Once()
	page, err := svc.GetThread(ctx, post.ID, 0, 0, "")
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)

	// Hit.
	cached := &model.ThreadPage{Policy: "from-cache"}
	cache.On("Get", mock.Anything, post.ID, thread.PolicyUnbounded, 1, 10).Return(cached, true, nil).Once()
	page, err = svc.GetThread(ctx, post.ID, 1, 10, "")
	require.NoError(t, err)
	assert.Same(t, cached, page)

	// Reply event names the parent's author.
	pub.On("Publish", mock.Anything, queue.StreamComments, mock.MatchedBy(func(e queue.CommentEvent) bool {
		return e.Type == queue.EventCommentCreated && e.ParentCommentID == c.ID && e.ParentAuthorID == student.ID
	})).Return("2-0", nil).Once()
	_, err = svc.Create(ctx, post.ID, teacher.ID, model.CreateCommentRequest{Contents: "Yes", ParentCommentID: &c.ID})
	require.NoError(t, err)

	pub.On("Publish", mock.Anything, queue.StreamComments, mock.MatchedBy(func(e queue.CommentEvent) bool {
		return e.Type == queue.EventCommentDeleted && e.Removed == 2
	})).Return("3-0", nil).Once()
	require.NoError(t, svc.Delete(ctx, c.ID, student.ID))

	cache.AssertNumberOfCalls(t, "InvalidatePost", 3)
	pub.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestCommentService_CacheFailuresAreNotFatal(t *testing.T) {
	f := newCommentFixture(t, CommentOptions{})
	cache := new(mockThreadCache)
	pub := new(mockPublisher)
	f.svc.threadCache = cache
	f.svc.publisher = pub

	cache.On("InvalidatePost", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	cache.On("Get", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down"))
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("redis down"))

	f.create(t, f.parent, nil, "still works")
	page, err := f.svc.GetThread(f.ctx, f.post.ID, 1, 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Comments, 1)
}
