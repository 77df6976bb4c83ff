package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoolportal/internal/config"
	"schoolportal/internal/handler"
	"schoolportal/internal/httputil"
	"schoolportal/internal/model"
	"schoolportal/internal/repository"
	"schoolportal/internal/service"
	"schoolportal/internal/thread"
)

const testSecret = "router-test-secret"

type testServer struct {
	t        *testing.T
	router   http.Handler
	comments *repository.MemoryCommentStore
}

// newTestServer wires the real router over in-memory storage. Teachers see
// the bounded thread, everyone else the unbounded one.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	cfg := &config.Config{JWTSecret: testSecret, AccessTokenMaxAge: 900}

	comments := repository.NewMemoryCommentStore()
	posts := repository.NewMemoryPostRepository()
	users := repository.NewMemoryUserRepository()
	notifications := repository.NewMemoryNotificationRepository()

	policies, err := thread.NewRolePolicies(thread.PolicyUnbounded, map[string]string{
		model.RoleTeacher: thread.PolicyBounded,
	})
	require.NoError(t, err)

	commentService := service.NewCommentService(comments, posts, users, nil, nil,
		service.CommentOptions{Cascade: config.CascadeSubtree, Policies: policies}, log)

	router := NewRouter(RouterConfig{
		AuthHandler:         handler.NewAuthHandler(service.NewUserService(users), service.NewAuthService(cfg), log),
		PostHandler:         handler.NewPostHandler(service.NewPostService(posts, users, log), log),
		CommentHandler:      handler.NewCommentHandler(commentService, log),
		NotificationHandler: handler.NewNotificationHandler(service.NewNotificationService(notifications, log), log),
		JWTSecret:           testSecret,
		Logger:              log,
	})
	return &testServer{t: t, router: router, comments: comments}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in a user, returning the access token.
func (s *testServer) signup(username, role string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": username, "password": "password123", "role": role,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{
		"username": username, "password": "password123",
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var login model.LoginResponse
	decode(s.t, rec, &login)
	return login.AccessToken
}

func (s *testServer) createPost(token string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/posts", token, map[string]string{"title": "Field trip", "body": "Friday"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var post model.Post
	decode(s.t, rec, &post)
	return post.ID
}

func (s *testServer) comment(token, postID string, parentID *string, contents string) *model.Comment {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/posts/"+postID+"/comments", token, model.CreateCommentRequest{
		Contents: contents, ParentCommentID: parentID,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp model.CommentResponse
	decode(s.t, rec, &resp)
	return resp.Comment
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	decode(t, rec, &body)
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCommentLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", model.RoleParent)
	bob := s.signup("bob", model.RoleParent)
	postID := s.createPost(alice)

	top := s.comment(alice, postID, nil, "  See you there  ")
	assert.Equal(t, "See you there", top.Contents)
	assert.Nil(t, top.ParentCommentID)
	require.NotNil(t, top.Author)
	assert.Equal(t, "alice", top.Author.Username)

	reply := s.comment(bob, postID, &top.ID, "Me too")
	require.NotNil(t, reply.ParentCommentID)
	assert.Equal(t, top.ID, *reply.ParentCommentID)

	// Anonymous read
	rec := s.do(http.MethodGet, "/posts/"+postID+"/comments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page model.ThreadPage
	decode(t, rec, &page)
	require.Len(t, page.Comments, 1)
	require.Len(t, page.Comments[0].Replies, 1)
	assert.Equal(t, reply.ID, page.Comments[0].Replies[0].ID)
	assert.Equal(t, model.Pagination{Page: 1, Limit: 10, TotalTopLevel: 1, TotalPages: 1}, page.Pagination)
	assert.Equal(t, thread.PolicyUnbounded, page.Policy)

	// Bob cannot edit or delete Alice's comment, and is told it does not exist.
	rec = s.do(http.MethodPut, "/comments/"+top.ID, bob, map[string]string{"contents": "hijacked"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodDelete, "/comments/"+top.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPut, "/comments/"+top.ID, alice, map[string]string{"contents": "See you at nine"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.CommentResponse
	decode(t, rec, &updated)
	assert.Equal(t, "See you at nine", updated.Comment.Contents)
	assert.Equal(t, top.ID, updated.Comment.ID)

	rec = s.do(http.MethodDelete, "/comments/"+top.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Equal(t, 0, s.comments.Len(), "reply removed with its parent")

	rec = s.do(http.MethodDelete, "/comments/"+top.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/posts/7d1f0c55-3a8e-4c57-9d5c-8d1b2b0a9e11/comments"},
		{http.MethodPut, "/comments/7d1f0c55-3a8e-4c57-9d5c-8d1b2b0a9e11"},
		{http.MethodDelete, "/comments/7d1f0c55-3a8e-4c57-9d5c-8d1b2b0a9e11"},
	}
	for _, tt := range tests {
		rec := s.do(tt.method, tt.path, "", map[string]string{"contents": "hi"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.method+" "+tt.path)
	}
}

func TestCreateCommentErrors(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", model.RoleParent)
	postID := s.createPost(alice)
	otherPost := s.createPost(alice)
	foreign := s.comment(alice, otherPost, nil, "elsewhere")
	missing := "7d1f0c55-3a8e-4c57-9d5c-8d1b2b0a9e11"
	malformed := "not-a-uuid"

	tests := []struct {
		name       string
		postID     string
		body       interface{}
		wantStatus int
	}{
		{"empty contents", postID, map[string]string{"contents": ""}, http.StatusBadRequest},
		{"whitespace contents", postID, map[string]string{"contents": "   "}, http.StatusBadRequest},
		{"too long", postID, map[string]string{"contents": string(bytes.Repeat([]byte("a"), model.MaxCommentLength+1))}, http.StatusBadRequest},
		{"malformed post id", malformed, map[string]string{"contents": "hi"}, http.StatusBadRequest},
		{"unknown post", missing, map[string]string{"contents": "hi"}, http.StatusNotFound},
		{"malformed parent", postID, model.CreateCommentRequest{Contents: "hi", ParentCommentID: &malformed}, http.StatusBadRequest},
		{"unknown parent", postID, model.CreateCommentRequest{Contents: "hi", ParentCommentID: &missing}, http.StatusNotFound},
		{"parent on another post", postID, model.CreateCommentRequest{Contents: "hi", ParentCommentID: &foreign.ID}, http.StatusNotFound},
		{"invalid json", postID, "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.comments.Len()
			rec := s.do(http.MethodPost, "/posts/"+tt.postID+"/comments", alice, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, before, s.comments.Len())
		})
	}
}

func TestListComments_QueryValidation(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", model.RoleParent)
	postID := s.createPost(alice)

	for _, query := range []string{"?page=0", "?page=-1", "?page=abc", "?limit=0", "?limit=x"} {
		rec := s.do(http.MethodGet, "/posts/"+postID+"/comments"+query, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, httputil.ErrCodeBadRequest, errorCode(t, rec))
	}

	rec := s.do(http.MethodGet, "/posts/not-a-uuid/comments", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/posts/7d1f0c55-3a8e-4c57-9d5c-8d1b2b0a9e11/comments", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httputil.ErrCodeNotFound, errorCode(t, rec))
}

func TestListComments_Pagination(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", model.RoleParent)
	postID := s.createPost(alice)
	for i := 0; i < 25; i++ {
		s.comment(alice, postID, nil, "comment")
	}

	rec := s.do(http.MethodGet, "/posts/"+postID+"/comments?page=3&limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page model.ThreadPage
	decode(t, rec, &page)
	assert.Len(t, page.Comments, 5)
	assert.Equal(t, 3, page.Pagination.Page)
	assert.Equal(t, int64(25), page.Pagination.TotalTopLevel)
	assert.Equal(t, 3, page.Pagination.TotalPages)

	rec = s.do(http.MethodGet, "/posts/"+postID+"/comments?page=4&limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Empty(t, page.Comments)
}

func TestListComments_HugeLimit(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", model.RoleParent)
	postID := s.createPost(alice)
	only := s.comment(alice, postID, nil, "only one")

	rec := s.do(http.MethodGet, "/posts/"+postID+"/comments?limit=9223372036854775807", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page model.ThreadPage
	decode(t, rec, &page)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, only.ID, page.Comments[0].ID)
	assert.Equal(t, 1, page.Pagination.TotalPages)

	// (page-1)*limit overflows an int: still an empty page with real totals.
	rec = s.do(http.MethodGet, "/posts/"+postID+"/comments?page=3&limit=4611686018427387905", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page = model.ThreadPage{}
	decode(t, rec, &page)
	assert.Empty(t, page.Comments)
	assert.Equal(t, 3, page.Pagination.Page)
	assert.Equal(t, 4611686018427387905, page.Pagination.Limit)
	assert.Equal(t, int64(1), page.Pagination.TotalTopLevel)
	assert.Equal(t, 1, page.Pagination.TotalPages)

	// Not representable as an integer at all.
	rec = s.do(http.MethodGet, "/posts/"+postID+"/comments?limit=99999999999999999999", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateComment_PaddedContentsAtMaxLength(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice", model.RoleParent)
	postID := s.createPost(alice)

	body := strings.Repeat("é", model.MaxCommentLength)
	c := s.comment(alice, postID, nil, "  \n"+body+"\t ")
	assert.Equal(t, body, c.Contents)

	rec := s.do(http.MethodPost, "/posts/"+postID+"/comments", alice, map[string]string{"contents": " " + body + "é "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListComments_PolicyFollowsViewerRole(t *testing.T) {
	s := newTestServer(t)
	parent := s.signup("parent", model.RoleParent)
	teacher := s.signup("teacher", model.RoleTeacher)
	postID := s.createPost(teacher)

	// top -> r1 -> r2 -> r3 -> r4
	prev := s.comment(parent, postID, nil, "top")
	for i := 0; i < 4; i++ {
		prev = s.comment(parent, postID, &prev.ID, "deeper")
	}

	depth := func(token string) (int, string) {
		rec := s.do(http.MethodGet, "/posts/"+postID+"/comments", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page model.ThreadPage
		decode(t, rec, &page)
		require.Len(t, page.Comments, 1)
		d := 0
		for node := page.Comments[0]; len(node.Replies) > 0; node = node.Replies[0] {
			d++
		}
		return d, page.Policy
	}

	d, policy := depth(teacher)
	assert.Equal(t, 2, d)
	assert.Equal(t, thread.PolicyBounded, policy)

	d, policy = depth(parent)
	assert.Equal(t, 4, d)
	assert.Equal(t, thread.PolicyUnbounded, policy)
}

func TestAuthAndPostEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("carol", model.RoleAdmin)

	rec := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "carol", "password": "password123", "role": model.RoleAdmin,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "dave", "password": "password123", "role": "janitor",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "carol", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me model.User
	decode(t, rec, &me)
	assert.Equal(t, "carol", me.Username)
	assert.Equal(t, model.RoleAdmin, me.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	postID := s.createPost(token)
	rec = s.do(http.MethodGet, "/posts/"+postID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/posts", token, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifications model.NotificationListResponse
	decode(t, rec, &notifications)
	assert.Empty(t, notifications.Notifications)

	rec = s.do(http.MethodPost, "/notifications/read-all", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
