package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"

	"go.uber.org/zap"
)

const (
	maxTitleRunes   = 200
	maxContentRunes = 20000
	maxThreadLinks  = 10
)

type ThreadService struct {
	threads     *store.ThreadRepository
	replies     *store.ReplyRepository
	communities *store.CommunityRepository
	users       *store.UserRepository
	log         *zap.Logger
}

// ThreadLink 帖子关联的社区或子社区
type ThreadLink struct {
	CommunityID   uint64 `json:"community_id"`
	CommunityName string `json:"community_name,omitempty"`
	Stage         string `json:"stage"`
	Type          string `json:"type"`
}

type ThreadView struct {
	model.Thread
	Author      string       `json:"author"`
	Communities []ThreadLink `json:"communities"`
	ReplyCount  int64        `json:"reply_count"`
}

type ThreadPage struct {
	Items []ThreadView `json:"items"`
	Total int64        `json:"total"`
}

type ThreadListQuery struct {
	CommunityID uint64
	Stage       string
	Type        string
	UserID      uint64
	Page        int
	Size        int
}

func NewThreadService(threads *store.ThreadRepository, replies *store.ReplyRepository,
	communities *store.CommunityRepository, users *store.UserRepository, log *zap.Logger) *ThreadService {
	return &ThreadService{threads: threads, replies: replies, communities: communities, users: users, log: log}
}

func (s *ThreadService) Create(ctx context.Context, userID uint64, title, content string, links []ThreadLink) (*ThreadView, error) {
	title, content, err := validateThreadText(title, content)
	if err != nil {
		return nil, err
	}
	rows, err := s.linkRows(ctx, links)
	if err != nil {
		return nil, err
	}
	t := &model.Thread{UserID: userID, Title: title, Content: content}
	if err = s.threads.Create(ctx, t, rows); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return s.Get(ctx, t.ID)
}

func (s *ThreadService) Get(ctx context.Context, id uint64) (*ThreadView, error) {
	t, err := s.threads.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "帖子不存在")
	}
	views, err := s.views(ctx, []model.Thread{*t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ThreadService) List(ctx context.Context, q ThreadListQuery) (*ThreadPage, error) {
	limit, offset := PageToOffset(q.Page, q.Size)
	stage, typ := normalizeKey(q.Stage, q.Type)
	list, total, err := s.threads.List(ctx, store.ThreadQuery{
		CommunityID: q.CommunityID,
		Stage:       stage,
		Type:        typ,
		UserID:      q.UserID,
		Offset:      offset,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, list)
	if err != nil {
		return nil, err
	}
	return &ThreadPage{Items: views, Total: total}, nil
}

// Update links 为 nil 时保留原有关联
func (s *ThreadService) Update(ctx context.Context, userID, id uint64, title, content string, links []ThreadLink) (*ThreadView, error) {
	if err := s.checkOwner(ctx, userID, id); err != nil {
		return nil, err
	}
	title, content, err := validateThreadText(title, content)
	if err != nil {
		return nil, err
	}
	var rows []model.ThreadCommunity
	if links != nil {
		if rows, err = s.linkRows(ctx, links); err != nil {
			return nil, err
		}
	}
	if err = s.threads.Update(ctx, id, title, content, rows); err != nil {
		return nil, fmt.Errorf("update thread: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete 帖子与回复在不同库，先删帖子再删回复
func (s *ThreadService) Delete(ctx context.Context, userID, id uint64) error {
	if err := s.checkOwner(ctx, userID, id); err != nil {
		return err
	}
	if err := s.threads.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if err := s.replies.DeleteByThread(ctx, id); err != nil {
		s.log.Error("delete thread replies failed", zap.Uint64("thread_id", id), zap.Error(err))
		return fmt.Errorf("delete thread replies: %w", err)
	}
	return nil
}

func (s *ThreadService) checkOwner(ctx context.Context, userID, id uint64) error {
	t, err := s.threads.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "帖子不存在")
	}
	if t.UserID != userID {
		return pkg.Forbidden("只能修改自己的帖子")
	}
	return nil
}

// linkRows 去重并校验社区及分期分型
func (s *ThreadService) linkRows(ctx context.Context, links []ThreadLink) ([]model.ThreadCommunity, error) {
	if len(links) > maxThreadLinks {
		return nil, pkg.InvalidInput(fmt.Sprintf("最多关联 %d 个社区", maxThreadLinks))
	}
	rows := make([]model.ThreadCommunity, 0, len(links))
	seen := make(map[ThreadLink]struct{}, len(links))
	for _, l := range links {
		stage, typ := normalizeKey(l.Stage, l.Type)
		key := ThreadLink{CommunityID: l.CommunityID, Stage: stage, Type: typ}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		c, err := s.communities.FindByID(ctx, l.CommunityID)
		if err != nil {
			return nil, notFound(err, "关联的社区不存在")
		}
		if err = validateKey(c.Dims(), stage, typ); err != nil {
			return nil, err
		}
		rows = append(rows, model.ThreadCommunity{CommunityID: c.ID, Stage: stage, Type: typ})
	}
	return rows, nil
}

// views 批量补充作者、关联社区和回复数
func (s *ThreadService) views(ctx context.Context, list []model.Thread) ([]ThreadView, error) {
	views := make([]ThreadView, len(list))
	if len(list) == 0 {
		return views, nil
	}
	ids := make([]uint64, len(list))
	userIDs := make([]uint64, 0, len(list))
	index := make(map[uint64]int, len(list))
	for i, t := range list {
		views[i] = ThreadView{Thread: t, Communities: []ThreadLink{}}
		ids[i] = t.ID
		index[t.ID] = i
		userIDs = append(userIDs, t.UserID)
	}

	authors, err := s.usernames(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	links, err := s.threads.LinksByThreads(ctx, ids)
	if err != nil {
		return nil, err
	}
	communityIDs := make([]uint64, 0, len(links))
	for _, l := range links {
		communityIDs = append(communityIDs, l.CommunityID)
	}
	communities, err := s.communities.FindByIDs(ctx, communityIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[uint64]string, len(communities))
	for _, c := range communities {
		names[c.ID] = c.Name
	}
	counts, err := s.replies.CountByThreads(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, l := range links {
		i := index[l.ThreadID]
		views[i].Communities = append(views[i].Communities, ThreadLink{
			CommunityID:   l.CommunityID,
			CommunityName: names[l.CommunityID],
			Stage:         l.Stage,
			Type:          l.Type,
		})
	}
	for i := range views {
		views[i].Author = authors[views[i].UserID]
		views[i].ReplyCount = counts[views[i].ID]
	}
	return views, nil
}

func (s *ThreadService) usernames(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	return lookupUsernames(ctx, s.users, ids)
}

func lookupUsernames(ctx context.Context, users *store.UserRepository, ids []uint64) (map[uint64]string, error) {
	list, err := users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]string, len(list))
	for _, u := range list {
		out[u.ID] = u.Username
	}
	return out, nil
}

func validateThreadText(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || utf8.RuneCountInString(title) > maxTitleRunes {
		return "", "", pkg.InvalidInput(fmt.Sprintf("标题长度需在 1-%d 之间", maxTitleRunes))
	}
	if content == "" || utf8.RuneCountInString(content) > maxContentRunes {
		return "", "", pkg.InvalidInput(fmt.Sprintf("内容长度需在 1-%d 之间", maxContentRunes))
	}
	return title, content, nil
}
