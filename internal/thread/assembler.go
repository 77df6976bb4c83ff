package thread

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"schoolportal/internal/logger"
	"schoolportal/internal/model"
)

// Source is the read side of the comment store the assembler needs.
type Source interface {
	ListTopLevel(ctx context.Context, postID string, offset, limit int) ([]model.Comment, error)
	CountTopLevel(ctx context.Context, postID string) (int64, error)
	ListReplies(ctx context.Context, parentID string, limit int) ([]model.Comment, error)
}

// AuthorResolver looks up author display fields for a batch of user IDs.
type AuthorResolver interface {
	GetSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error)
}

// Assembler builds paginated comment threads for a post.
type Assembler struct {
	source  Source
	authors AuthorResolver
	log     *zap.Logger
}

func NewAssembler(source Source, authors AuthorResolver, log *zap.Logger) *Assembler {
	return &Assembler{source: source, authors: authors, log: logger.Component(log, "ThreadAssembler")}
}

// pending is a node whose replies are still to be fetched.
type pending struct {
	id    string
	depth int
}

// Thread returns one page of top-level comments for postID, newest first,
// each carrying its reply tree as far as policy allows. Replies at every
// level are oldest first. An unknown post yields an empty page.
//
// The tree is fetched breadth-first from a worklist, so thread depth never
// grows the call stack.
func (a *Assembler) Thread(ctx context.Context, postID string, page, limit int, policy Policy) (*model.ThreadPage, error) {
	page, limit = Normalize(page, limit)

	total, err := a.source.CountTopLevel(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("count top-level comments: %w", err)
	}

	// Pages past the end are empty. Skipping the query also keeps an
	// overflowing offset away from the store.
	top := []model.Comment{}
	if offset, ok := pageOffset(page, limit); ok && int64(offset) < total {
		top, err = a.source.ListTopLevel(ctx, postID, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("list top-level comments: %w", err)
		}
	}

	nodes := make(map[string]*model.CommentNode, len(top))
	roots := make([]*model.CommentNode, 0, len(top))
	queue := make([]pending, 0, len(top))
	authorIDs := make(map[string]struct{})

	for _, c := range top {
		node := newNode(c)
		nodes[c.ID] = node
		roots = append(roots, node)
		queue = append(queue, pending{id: c.ID})
		authorIDs[c.AuthorID] = struct{}{}
	}

	fetches := 0
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		replyCap, ok := policy.capAt(item.depth)
		if !ok {
			continue
		}
		replies, err := a.source.ListReplies(ctx, item.id, replyCap)
		if err != nil {
			return nil, fmt.Errorf("list replies of %s: %w", item.id, err)
		}
		fetches++

		for _, r := range replies {
			if _, seen := nodes[r.ID]; seen || r.ParentCommentID == nil {
				continue
			}
			parent, ok := nodes[*r.ParentCommentID]
			if !ok {
				continue
			}
			child := newNode(r)
			nodes[r.ID] = child
			parent.Replies = append(parent.Replies, child)
			queue = append(queue, pending{id: r.ID, depth: item.depth + 1})
			authorIDs[r.AuthorID] = struct{}{}
		}
	}

	if err := a.resolveAuthors(ctx, nodes, authorIDs); err != nil {
		return nil, err
	}

	a.log.Debug("thread assembled",
		zap.String("post_id", postID),
		zap.String("policy", policy.Name),
		zap.Int("page", page),
		zap.Int("top_level", len(roots)),
		zap.Int("nodes", len(nodes)),
		zap.Int("reply_queries", fetches))

	return &model.ThreadPage{
		Comments: roots,
		Pagination: model.Pagination{
			Page:          page,
			Limit:         limit,
			TotalTopLevel: total,
			TotalPages:    TotalPages(total, limit),
		},
		Policy: policy.Name,
	}, nil
}

func (a *Assembler) resolveAuthors(ctx context.Context, nodes map[string]*model.CommentNode, ids map[string]struct{}) error {
	if a.authors == nil || len(ids) == 0 {
		return nil
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	summaries, err := a.authors.GetSummaries(ctx, list)
	if err != nil {
		return fmt.Errorf("resolve comment authors: %w", err)
	}
	for _, node := range nodes {
		if s, ok := summaries[node.AuthorID]; ok {
			summary := s
			node.Author = &summary
		}
	}
	return nil
}

func newNode(c model.Comment) *model.CommentNode {
	return &model.CommentNode{Comment: c, Replies: []*model.CommentNode{}}
}

// Normalize applies the listing defaults to non-positive page and limit values.
func Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = model.DefaultThreadPage
	}
	if limit < 1 {
		limit = model.DefaultThreadLimit
	}
	return page, limit
}

// pageOffset returns (page-1)*limit, or false when it does not fit in an int.
func pageOffset(page, limit int) (int, bool) {
	if page < 1 || limit < 1 {
		return 0, false
	}
	if page-1 > math.MaxInt/limit {
		return 0, false
	}
	return (page - 1) * limit, true
}

// TotalPages is ceil(total / limit).
func TotalPages(total int64, limit int) int {
	if limit < 1 || total <= 0 {
		return 0
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return int(pages)
}
