package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"
)

const maxReplyRunes = 5000

type ReplyService struct {
	replies *store.ReplyRepository
	threads *store.ThreadRepository
	users   *store.UserRepository
}

type ReplyView struct {
	model.Reply
	Author string `json:"author"`
	// ReplyTo 被回复的那条回复的作者，直接回复帖子时为空
	ReplyTo string `json:"reply_to,omitempty"`
}

// ReplyGroup 一条顶层回复及其下全部后代（按时间平铺）
type ReplyGroup struct {
	ReplyView
	Children []ReplyView `json:"children"`
}

func NewReplyService(replies *store.ReplyRepository, threads *store.ThreadRepository, users *store.UserRepository) *ReplyService {
	return &ReplyService{replies: replies, threads: threads, users: users}
}

func (s *ReplyService) Create(ctx context.Context, userID, threadID uint64, content string, parentID *uint64) (*model.Reply, error) {
	content, err := validateReply(content)
	if err != nil {
		return nil, err
	}
	if _, err = s.threads.FindByID(ctx, threadID); err != nil {
		return nil, notFound(err, "帖子不存在")
	}
	if parentID != nil && *parentID == 0 {
		parentID = nil
	}
	if parentID != nil {
		parent, err := s.replies.FindByID(ctx, *parentID)
		if err != nil {
			return nil, notFound(err, "被回复的内容不存在")
		}
		if parent.ThreadID != threadID {
			return nil, pkg.InvalidInput("被回复的内容不属于该帖子")
		}
	}
	reply := &model.Reply{ThreadID: threadID, UserID: userID, ParentReplyID: parentID, Content: content}
	if err = s.replies.Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	return reply, nil
}

// List 每条回复沿 parent_reply_id 找到最顶层祖先，挂在该顶层回复下
func (s *ReplyService) List(ctx context.Context, threadID uint64) ([]ReplyGroup, error) {
	if _, err := s.threads.FindByID(ctx, threadID); err != nil {
		return nil, notFound(err, "帖子不存在")
	}
	list, err := s.replies.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]uint64, 0, len(list))
	for _, r := range list {
		userIDs = append(userIDs, r.UserID)
	}
	authors, err := lookupUsernames(ctx, s.users, userIDs)
	if err != nil {
		return nil, err
	}
	return groupReplies(list, authors), nil
}

func (s *ReplyService) Update(ctx context.Context, userID, threadID, replyID uint64, content string) (*model.Reply, error) {
	content, err := validateReply(content)
	if err != nil {
		return nil, err
	}
	if _, err = s.ownReply(ctx, userID, threadID, replyID); err != nil {
		return nil, err
	}
	if err = s.replies.UpdateContent(ctx, replyID, content); err != nil {
		return nil, err
	}
	return s.replies.FindByID(ctx, replyID)
}

// Delete 连同所有后代回复一起删除，返回删除条数
func (s *ReplyService) Delete(ctx context.Context, userID, threadID, replyID uint64) (int, error) {
	if _, err := s.ownReply(ctx, userID, threadID, replyID); err != nil {
		return 0, err
	}
	list, err := s.replies.ListByThread(ctx, threadID)
	if err != nil {
		return 0, err
	}
	ids := descendants(list, replyID)
	if err = s.replies.DeleteByIDs(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *ReplyService) ownReply(ctx context.Context, userID, threadID, replyID uint64) (*model.Reply, error) {
	reply, err := s.replies.FindByID(ctx, replyID)
	if err != nil {
		return nil, notFound(err, "回复不存在")
	}
	if reply.ThreadID != threadID {
		return nil, pkg.NotFound("回复不存在")
	}
	if reply.UserID != userID {
		return nil, pkg.Forbidden("只能修改自己的回复")
	}
	return reply, nil
}

func groupReplies(list []model.Reply, authors map[uint64]string) []ReplyGroup {
	byID := make(map[uint64]model.Reply, len(list))
	for _, r := range list {
		byID[r.ID] = r
	}
	groups := make([]ReplyGroup, 0)
	index := make(map[uint64]int)
	// list 按时间升序，祖先一定先于后代出现
	for _, r := range list {
		view := ReplyView{Reply: r, Author: authors[r.UserID]}
		if r.ParentReplyID != nil {
			if p, ok := byID[*r.ParentReplyID]; ok {
				view.ReplyTo = authors[p.UserID]
			}
		}
		root := topmost(byID, r)
		if root == r.ID {
			if i, ok := index[r.ID]; ok {
				groups[i].ReplyView = view
				continue
			}
			index[r.ID] = len(groups)
			groups = append(groups, ReplyGroup{ReplyView: view, Children: []ReplyView{}})
			continue
		}
		i, ok := index[root]
		if !ok {
			// 祖先排在后面（时间相同）时补一个组
			index[root] = len(groups)
			rv := byID[root]
			groups = append(groups, ReplyGroup{
				ReplyView: ReplyView{Reply: rv, Author: authors[rv.UserID]},
				Children:  []ReplyView{},
			})
			i = index[root]
		}
		groups[i].Children = append(groups[i].Children, view)
	}
	return groups
}

// topmost 父回复缺失或出现环时停在当前节点
func topmost(byID map[uint64]model.Reply, r model.Reply) uint64 {
	cur := r
	seen := map[uint64]bool{cur.ID: true}
	for cur.ParentReplyID != nil {
		p, ok := byID[*cur.ParentReplyID]
		if !ok || seen[p.ID] {
			break
		}
		seen[p.ID] = true
		cur = p
	}
	return cur.ID
}

// descendants 包含 rootID 本身
func descendants(list []model.Reply, rootID uint64) []uint64 {
	children := make(map[uint64][]uint64)
	for _, r := range list {
		if r.ParentReplyID != nil {
			children[*r.ParentReplyID] = append(children[*r.ParentReplyID], r.ID)
		}
	}
	out := []uint64{rootID}
	seen := map[uint64]bool{rootID: true}
	for i := 0; i < len(out); i++ {
		for _, c := range children[out[i]] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func validateReply(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxReplyRunes {
		return "", pkg.InvalidInput(fmt.Sprintf("回复长度需在 1-%d 之间", maxReplyRunes))
	}
	return content, nil
}
