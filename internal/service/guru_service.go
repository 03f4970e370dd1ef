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

// Notifier 新提问通知达人
type Notifier interface {
	NotifyQuestion(ctx context.Context, guru, asker *model.User, q *model.GuruQuestion) error
}

// EmailNotifier 达人填写了邮箱且配置了 SMTP 时发送邮件，发送在后台进行
type EmailNotifier struct {
	cfg pkg.SMTPConfig
	log *zap.Logger
}

func NewEmailNotifier(cfg pkg.SMTPConfig, log *zap.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, log: log}
}

func (n *EmailNotifier) NotifyQuestion(_ context.Context, guru, asker *model.User, q *model.GuruQuestion) error {
	if !n.cfg.Enabled() || guru.Email == "" {
		return nil
	}
	body := pkg.GuruQuestionHTML(displayName(guru), displayName(asker), q.Title)
	go func() {
		if err := pkg.SendEmail(n.cfg, guru.Email, "您收到了一个新提问", body); err != nil {
			n.log.Warn("send guru question email failed",
				zap.Uint64("question_id", q.ID),
				zap.Uint64("guru_id", guru.ID),
				zap.Error(err))
		}
	}()
	return nil
}

type GuruService struct {
	gurus    *store.GuruRepository
	users    *store.UserRepository
	notifier Notifier
	log      *zap.Logger
}

type GuruPage struct {
	Items []model.User `json:"items"`
	Total int64        `json:"total"`
}

type QuestionView struct {
	model.GuruQuestion
	Asker string `json:"asker"`
	Guru  string `json:"guru"`
}

type QuestionPage struct {
	Items []QuestionView `json:"items"`
	Total int64          `json:"total"`
}

type QuestionReplyView struct {
	model.GuruQuestionReply
	Author string `json:"author"`
}

type QuestionDetail struct {
	QuestionView
	Replies []QuestionReplyView `json:"replies"`
}

func NewGuruService(gurus *store.GuruRepository, users *store.UserRepository, notifier Notifier, log *zap.Logger) *GuruService {
	return &GuruService{gurus: gurus, users: users, notifier: notifier, log: log}
}

func (s *GuruService) ListGurus(ctx context.Context, page, size int) (*GuruPage, error) {
	limit, offset := PageToOffset(page, size)
	list, total, err := s.users.ListGurus(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Email = ""
	}
	return &GuruPage{Items: list, Total: total}, nil
}

func (s *GuruService) GetGuru(ctx context.Context, id uint64) (*model.User, error) {
	guru, err := s.findGuru(ctx, id)
	if err != nil {
		return nil, err
	}
	guru.Email = ""
	return guru, nil
}

func (s *GuruService) Ask(ctx context.Context, askerID, guruID uint64, title, content string) (*model.GuruQuestion, error) {
	if askerID == guruID {
		return nil, pkg.InvalidInput("不能向自己提问")
	}
	title, content, err := validateThreadText(title, content)
	if err != nil {
		return nil, err
	}
	guru, err := s.findGuru(ctx, guruID)
	if err != nil {
		return nil, err
	}
	asker, err := s.users.FindByID(ctx, askerID)
	if err != nil {
		return nil, notFound(err, "用户不存在")
	}
	q := &model.GuruQuestion{AskerID: askerID, GuruID: guruID, Title: title, Content: content}
	if err = s.gurus.CreateQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	if s.notifier != nil {
		if err = s.notifier.NotifyQuestion(ctx, guru, asker, q); err != nil {
			s.log.Warn("notify guru failed", zap.Uint64("question_id", q.ID), zap.Error(err))
		}
	}
	return q, nil
}

func (s *GuruService) ListQuestions(ctx context.Context, guruID uint64, page, size int) (*QuestionPage, error) {
	if _, err := s.findGuru(ctx, guruID); err != nil {
		return nil, err
	}
	limit, offset := PageToOffset(page, size)
	list, total, err := s.gurus.ListQuestionsByGuru(ctx, guruID, offset, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(list)+1)
	ids = append(ids, guruID)
	for _, q := range list {
		ids = append(ids, q.AskerID)
	}
	names, err := lookupUsernames(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	items := make([]QuestionView, 0, len(list))
	for _, q := range list {
		items = append(items, QuestionView{GuruQuestion: q, Asker: names[q.AskerID], Guru: names[q.GuruID]})
	}
	return &QuestionPage{Items: items, Total: total}, nil
}

func (s *GuruService) GetQuestion(ctx context.Context, id uint64) (*QuestionDetail, error) {
	q, err := s.gurus.FindQuestion(ctx, id)
	if err != nil {
		return nil, notFound(err, "问题不存在")
	}
	replies, err := s.gurus.ListReplies(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := []uint64{q.AskerID, q.GuruID}
	for _, r := range replies {
		ids = append(ids, r.UserID)
	}
	names, err := lookupUsernames(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	detail := &QuestionDetail{
		QuestionView: QuestionView{GuruQuestion: *q, Asker: names[q.AskerID], Guru: names[q.GuruID]},
		Replies:      make([]QuestionReplyView, 0, len(replies)),
	}
	for _, r := range replies {
		detail.Replies = append(detail.Replies, QuestionReplyView{GuruQuestionReply: r, Author: names[r.UserID]})
	}
	return detail, nil
}

// Reply 只有提问者和被提问的达人可以回复
func (s *GuruService) Reply(ctx context.Context, userID, questionID uint64, content string) (*model.GuruQuestionReply, error) {
	content, err := validateReply(content)
	if err != nil {
		return nil, err
	}
	q, err := s.gurus.FindQuestion(ctx, questionID)
	if err != nil {
		return nil, notFound(err, "问题不存在")
	}
	if userID != q.AskerID && userID != q.GuruID {
		return nil, pkg.Forbidden("只有提问者和达人可以回复")
	}
	reply := &model.GuruQuestionReply{QuestionID: questionID, UserID: userID, Content: content}
	if err = s.gurus.AddReply(ctx, reply); err != nil {
		return nil, fmt.Errorf("add question reply: %w", err)
	}
	return reply, nil
}

func (s *GuruService) DeleteQuestion(ctx context.Context, userID, questionID uint64) error {
	q, err := s.gurus.FindQuestion(ctx, questionID)
	if err != nil {
		return notFound(err, "问题不存在")
	}
	if q.AskerID != userID {
		return pkg.Forbidden("只能删除自己的提问")
	}
	return s.gurus.DeleteQuestion(ctx, questionID)
}

func (s *GuruService) findGuru(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "达人不存在")
	}
	if !u.IsGuru {
		return nil, pkg.NotFound("达人不存在")
	}
	return u, nil
}

func displayName(u *model.User) string {
	if n := strings.TrimSpace(u.Nickname); n != "" && utf8.ValidString(n) {
		return n
	}
	return u.Username
}
