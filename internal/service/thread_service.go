package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemberInfo 会话成员及其资料
type MemberInfo struct {
	MemberID    string     `json:"member_id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   *string    `json:"avatar_url"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
}

// MessagePreview 会话列表中的最近消息
type MessagePreview struct {
	MessageID     string    `json:"message_id"`
	Content       string    `json:"content"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	HasAttachment bool      `json:"has_attachment"`
	CreatedAt     time.Time `json:"created_at"`
}

// ThreadSummary 会话列表项
type ThreadSummary struct {
	ID          string           `json:"id"`
	Kind        model.ThreadKind `json:"kind"`
	Title       string           `json:"title"`
	LastMessage *MessagePreview  `json:"last_message"`
	Members     []MemberInfo     `json:"members"`
	CreatedAt   time.Time        `json:"created_at"`
}

// LastActivity 最近一条消息的时间，没有消息时为会话创建时间
func (t *ThreadSummary) LastActivity() time.Time {
	if t.LastMessage != nil {
		return t.LastMessage.CreatedAt
	}
	return t.CreatedAt
}

// ThreadService 会话目录
type ThreadService struct {
	repos      *repository.Repositories
	views      ViewCache
	groupTitle string
	cacheTTL   time.Duration
	now        func() time.Time
}

// NewThreadService 创建ThreadService实例，views 可以为 nil（不缓存）
func NewThreadService(repos *repository.Repositories, views ViewCache, groupTitle string, cacheTTL time.Duration) *ThreadService {
	return &ThreadService{
		repos:      repos,
		views:      views,
		groupTitle: groupTitle,
		cacheTTL:   cacheTTL,
		now:        utcNow,
	}
}

// SetClock 替换时钟
func (s *ThreadService) SetClock(now func() time.Time) { s.now = now }

// GroupTitle 家庭群聊的保留标题
func (s *ThreadService) GroupTitle() string { return s.groupTitle }

// ListThreads 列出成员的全部会话：群聊在前，其余按最近活动时间倒序
func (s *ThreadService) ListThreads(ctx context.Context, memberID string) ([]ThreadSummary, error) {
	// 版本号必须在读库之前取得
	cached, version, ok := s.cachedThreads(ctx, memberID)
	if ok {
		return cached, nil
	}

	memberships, err := s.repos.Members.ListByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("查询成员会话失败: %w", err)
	}
	if len(memberships) == 0 {
		return []ThreadSummary{}, nil
	}

	threadIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		threadIDs = append(threadIDs, m.ThreadID)
	}

	threads, err := s.repos.Threads.ListByIDs(ctx, threadIDs)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	rosters, err := s.repos.Members.ListByThreads(ctx, threadIDs)
	if err != nil {
		return nil, fmt.Errorf("查询会话成员失败: %w", err)
	}
	latest, err := s.repos.Messages.LatestVisibleByThreads(ctx, threadIDs)
	if err != nil {
		return nil, fmt.Errorf("查询最近消息失败: %w", err)
	}

	// 一次批量查询所有相关成员资料
	profileIDs := make([]string, 0)
	for _, roster := range rosters {
		for _, m := range roster {
			profileIDs = append(profileIDs, m.MemberID)
		}
	}
	for _, msg := range latest {
		profileIDs = append(profileIDs, msg.SenderID)
	}
	profiles, err := s.repos.Profiles.GetByIDs(ctx, profileIDs)
	if err != nil {
		return nil, fmt.Errorf("查询成员资料失败: %w", err)
	}

	summaries := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		summaries = append(summaries, buildSummary(t, memberID, rosters[t.ID], latest[t.ID], profiles))
	}
	sortSummaries(summaries)

	s.cacheThreads(ctx, memberID, version, summaries)
	return summaries, nil
}

func buildSummary(t *model.Thread, viewerID string, roster []*model.ThreadMember, last *model.Message, profiles map[string]*model.Profile) ThreadSummary {
	summary := ThreadSummary{
		ID:        t.ID,
		Kind:      t.Kind,
		CreatedAt: t.CreatedAt,
		Members:   make([]MemberInfo, 0, len(roster)),
	}

	for _, m := range roster {
		summary.Members = append(summary.Members, memberInfo(m.MemberID, profiles[m.MemberID]))
	}

	switch t.Kind {
	case model.ThreadKindDirect:
		// 单聊标题取对方的显示名
		summary.Title = model.UnknownDisplayName
		for _, m := range roster {
			if m.MemberID != viewerID {
				summary.Title = profiles[m.MemberID].Name()
				break
			}
		}
	default:
		if t.Title != nil {
			summary.Title = *t.Title
		}
	}

	if last != nil {
		summary.LastMessage = &MessagePreview{
			MessageID:     last.ID,
			Content:       last.Content,
			SenderID:      last.SenderID,
			SenderName:    profiles[last.SenderID].Name(),
			HasAttachment: last.HasAttachment(),
			CreatedAt:     last.CreatedAt,
		}
	}
	return summary
}

func memberInfo(memberID string, p *model.Profile) MemberInfo {
	info := MemberInfo{
		MemberID:    memberID,
		DisplayName: p.Name(),
		AvatarURL:   p.Avatar(),
	}
	if p != nil {
		info.LastSeenAt = p.LastSeenAt
	}
	return info
}

func sortSummaries(summaries []ThreadSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := &summaries[i], &summaries[j]
		ag, bg := a.Kind == model.ThreadKindGroup, b.Kind == model.ThreadKindGroup
		if ag != bg {
			return ag
		}
		at, bt := a.LastActivity(), b.LastActivity()
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ID < b.ID
	})
}

func (s *ThreadService) cachedThreads(ctx context.Context, memberID string) ([]ThreadSummary, int64, bool) {
	if s.views == nil {
		return nil, -1, false
	}
	data, version, ok, err := s.views.Get(ctx, threadsKey(memberID))
	if err != nil {
		logger.Warn("读取会话列表缓存失败", zap.Error(err), zap.String("member_id", memberID))
		return nil, -1, false
	}
	if !ok {
		return nil, version, false
	}
	var summaries []ThreadSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, version, false
	}
	return summaries, version, true
}

func (s *ThreadService) cacheThreads(ctx context.Context, memberID string, version int64, summaries []ThreadSummary) {
	if s.views == nil || version < 0 {
		return
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		return
	}
	if err := s.views.Set(ctx, threadsKey(memberID), version, data, s.cacheTTL); err != nil {
		logger.Warn("写入会话列表缓存失败", zap.Error(err), zap.String("member_id", memberID))
	}
}

// FindOrCreateDirect 返回两名成员之间唯一的单聊，不存在时创建
// 唯一键保证 A->B 与 B->A（包括并发调用）得到同一个会话
func (s *ThreadService) FindOrCreateDirect(ctx context.Context, memberID, otherID string) (*model.Thread, error) {
	if memberID == otherID {
		return nil, ErrSelfDirectThread
	}

	profiles, err := s.repos.Profiles.GetByIDs(ctx, []string{memberID, otherID})
	if err != nil {
		return nil, fmt.Errorf("查询成员资料失败: %w", err)
	}
	if profiles[memberID] == nil || profiles[otherID] == nil {
		return nil, ErrProfileNotFound
	}

	key := model.DirectKeyFor(memberID, otherID)
	existing, err := s.repos.Threads.FindByDirectKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("查询单聊失败: %w", err)
	}

	now := s.now()
	thread := &model.Thread{
		ID:        uuid.NewString(),
		Kind:      model.ThreadKindDirect,
		DirectKey: &key,
		CreatedBy: memberID,
		CreatedAt: now,
	}
	members := []*model.ThreadMember{
		{ThreadID: thread.ID, MemberID: memberID, JoinedAt: now},
		{ThreadID: thread.ID, MemberID: otherID, JoinedAt: now},
	}

	created, err := s.repos.Threads.CreateDirectIfAbsent(ctx, thread, members)
	if err != nil {
		return nil, fmt.Errorf("创建单聊失败: %w", err)
	}
	if created.ID == thread.ID {
		logger.Info("创建单聊",
			zap.String("thread_id", created.ID),
			zap.String("member_id", memberID),
			zap.String("other_id", otherID),
		)
	}

	invalidateViews(ctx, s.views, threadsKey(memberID), threadsKey(otherID))
	return created, nil
}

// EnsureGroupThread 返回最早创建的家庭群聊（不存在时创建）并把成员加入其中
// 不会删除任何会话，重复的群聊由 ReconcileGroupThreads 清理
func (s *ThreadService) EnsureGroupThread(ctx context.Context, memberID string) (*model.Thread, error) {
	groups, err := s.repos.Threads.ListGroupsByTitle(ctx, s.groupTitle)
	if err != nil {
		return nil, fmt.Errorf("查询群聊失败: %w", err)
	}

	var thread *model.Thread
	if len(groups) > 0 {
		thread = groups[0]
	} else {
		now := s.now()
		title := s.groupTitle
		thread = &model.Thread{
			ID:        uuid.NewString(),
			Kind:      model.ThreadKindGroup,
			Title:     &title,
			CreatedBy: memberID,
			CreatedAt: now,
		}
		members := []*model.ThreadMember{{ThreadID: thread.ID, MemberID: memberID, JoinedAt: now}}
		if err := s.repos.Threads.CreateWithMembers(ctx, thread, members); err != nil {
			return nil, fmt.Errorf("创建群聊失败: %w", err)
		}
		logger.Info("创建家庭群聊", zap.String("thread_id", thread.ID), zap.String("member_id", memberID))
	}

	if err := s.AddMember(ctx, thread.ID, memberID); err != nil {
		return nil, err
	}
	return thread, nil
}

// AddMember 把成员加入群聊，已是成员时不做修改；单聊返回 ErrDirectThreadMembers
func (s *ThreadService) AddMember(ctx context.Context, threadID, memberID string) error {
	thread, err := s.repos.Threads.GetByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrThreadNotFound
		}
		return fmt.Errorf("查询会话失败: %w", err)
	}
	if thread.Kind != model.ThreadKindGroup {
		return ErrDirectThreadMembers
	}
	if _, err := s.repos.Profiles.GetByID(ctx, memberID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("查询成员资料失败: %w", err)
	}

	if err := s.repos.Members.Add(ctx, &model.ThreadMember{
		ThreadID: threadID,
		MemberID: memberID,
		JoinedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("添加会话成员失败: %w", err)
	}

	// 成员名单变化，所有成员的会话列表都要刷新
	roster, err := s.repos.Members.ListByThread(ctx, threadID)
	if err != nil {
		invalidateViews(ctx, s.views, threadsKey(memberID))
		return nil
	}
	invalidateViews(ctx, s.views, rosterThreadKeys(roster)...)
	return nil
}

// ReconcileGroupThreads 保留最早的家庭群聊，删除其余同名群聊及其成员与消息
// 被删除群聊的成员会先并入保留的群聊，返回删除的会话数
func (s *ThreadService) ReconcileGroupThreads(ctx context.Context) (int, error) {
	groups, err := s.repos.Threads.ListGroupsByTitle(ctx, s.groupTitle)
	if err != nil {
		return 0, fmt.Errorf("查询群聊失败: %w", err)
	}
	if len(groups) <= 1 {
		return 0, nil
	}

	keep := groups[0]
	removeIDs := make([]string, 0, len(groups)-1)
	for _, g := range groups[1:] {
		removeIDs = append(removeIDs, g.ID)
	}

	rosters, err := s.repos.Members.ListByThreads(ctx, removeIDs)
	if err != nil {
		return 0, fmt.Errorf("查询重复群聊成员失败: %w", err)
	}
	affected := make([]string, 0)
	for _, roster := range rosters {
		for _, m := range roster {
			if err := s.repos.Members.Add(ctx, &model.ThreadMember{
				ThreadID: keep.ID,
				MemberID: m.MemberID,
				JoinedAt: s.now(),
			}); err != nil {
				return 0, fmt.Errorf("迁移群聊成员失败: %w", err)
			}
			affected = append(affected, threadsKey(m.MemberID))
		}
	}

	if err := s.repos.Threads.DeleteCascade(ctx, removeIDs); err != nil {
		return 0, fmt.Errorf("删除重复群聊失败: %w", err)
	}

	keepRoster, err := s.repos.Members.ListByThread(ctx, keep.ID)
	if err == nil {
		affected = append(affected, rosterThreadKeys(keepRoster)...)
	}
	for _, id := range removeIDs {
		affected = append(affected, messagesKey(id))
	}
	invalidateViews(ctx, s.views, affected...)

	logger.Info("已清理重复的家庭群聊",
		zap.String("kept_thread_id", keep.ID),
		zap.Strings("removed_thread_ids", removeIDs),
	)
	return len(removeIDs), nil
}

func rosterThreadKeys(roster []*model.ThreadMember) []string {
	keys := make([]string, 0, len(roster))
	for _, m := range roster {
		keys = append(keys, threadsKey(m.MemberID))
	}
	return keys
}

func rosterIDs(roster []*model.ThreadMember) []string {
	ids := make([]string, 0, len(roster))
	for _, m := range roster {
		ids = append(ids, m.MemberID)
	}
	return ids
}
