package advisory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultDailyLimit   = 2
	DefaultActiveWindow = 30 * 24 * time.Hour
	DefaultFollowPoints = 10
	defaultCacheSize    = 256
	DefaultCacheTTL     = 5 * time.Minute
)

// Interaction is one mentor message delivered to a player.
type Interaction struct {
	ID                uuid.UUID  `json:"id"`
	PlayerID          uuid.UUID  `json:"player_id"`
	MentorID          uuid.UUID  `json:"mentor_id"`
	MessageID         *uuid.UUID `json:"message_id,omitempty"`
	Content           string     `json:"message_content"`
	TriggerType       string     `json:"trigger_type"`
	Snapshot          *Metrics   `json:"player_data_snapshot,omitempty"`
	SentAt            time.Time  `json:"sent_at"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
	ActionTaken       bool       `json:"action_taken"`
	ActionTakenAt     *time.Time `json:"action_taken_at,omitempty"`
	PointsEarned      int        `json:"points_earned"`
	RelationshipScore int        `json:"relationship_score"`
}

type Store interface {
	Profile(ctx context.Context, playerID uuid.UUID) (Profile, error)
	LoadFinancials(ctx context.Context, playerID uuid.UUID, now time.Time) (Financials, error)
	// ActiveConstraints returns nil when the player has no mission in progress.
	ActiveConstraints(ctx context.Context, playerID uuid.UUID) (*Constraints, error)
	MentorByPersona(ctx context.Context, p Persona) (Mentor, error)
	Template(ctx context.Context, mentorID uuid.UUID, triggerType string) (Template, error)
	ActivePlayers(ctx context.Context, since time.Time) ([]Profile, error)

	RecordInteraction(ctx context.Context, in Interaction) (Interaction, error)
	RecordSnapshot(ctx context.Context, s Snapshot) error
	// MarkFollowed awards the points_reward of the interaction's template, or
	// fallbackPoints when it has none. Points are awarded once; a repeat call
	// returns the interaction unchanged.
	MarkFollowed(ctx context.Context, playerID, interactionID uuid.UUID, fallbackPoints int, at time.Time) (Interaction, error)
	MarkRead(ctx context.Context, playerID, interactionID uuid.UUID, at time.Time) (Interaction, error)
	Interactions(ctx context.Context, playerID uuid.UUID) ([]Interaction, error)
}

type Notifier interface {
	Notify(ctx context.Context, playerID uuid.UUID, kind, title, body string) error
}

type Config struct {
	DailyLimit   int
	ActiveWindow time.Duration
	CacheSize    int
	// CacheTTL bounds how long an edited or deactivated template keeps being served.
	CacheTTL time.Duration
}

type cacheEntry struct {
	value   any
	expires time.Time
}

type Engine struct {
	store    Store
	notifier Notifier
	cfg      Config
	cache    *lru.Cache
	log      *slog.Logger
	now      func() time.Time
}

func NewEngine(store Store, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = DefaultActiveWindow
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	cache, _ := lru.New(cfg.CacheSize)
	return &Engine{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		cache:    cache,
		log:      logger.With("component", "advisory"),
		now:      time.Now,
	}
}

// AnalyzePlayer loads the player's finances and derives their metrics.
func (e *Engine) AnalyzePlayer(ctx context.Context, playerID uuid.UUID) (Metrics, error) {
	f, err := e.store.LoadFinancials(ctx, playerID, e.now().UTC())
	if err != nil {
		return Metrics{}, err
	}
	return Analyze(f, e.now().UTC()), nil
}

func (e *Engine) cached(key string) (any, bool) {
	v, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if !e.now().Before(entry.expires) {
		e.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (e *Engine) remember(key string, v any) {
	e.cache.Add(key, cacheEntry{value: v, expires: e.now().Add(e.cfg.CacheTTL)})
}

func (e *Engine) mentor(ctx context.Context, p Persona) (Mentor, error) {
	key := "mentor:" + string(p)
	if v, ok := e.cached(key); ok {
		return v.(Mentor), nil
	}
	m, err := e.store.MentorByPersona(ctx, p)
	if err != nil {
		return Mentor{}, err
	}
	e.remember(key, m)
	return m, nil
}

func (e *Engine) template(ctx context.Context, mentorID uuid.UUID, triggerType string) (Template, error) {
	key := "template:" + mentorID.String() + ":" + triggerType
	if v, ok := e.cached(key); ok {
		return v.(Template), nil
	}
	t, err := e.store.Template(ctx, mentorID, triggerType)
	if err != nil {
		return Template{}, err
	}
	e.remember(key, t)
	return t, nil
}

// GenerateMessage renders the persona's template for t. It returns nil when
// the mentor or template is missing or the template cannot be filled.
func (e *Engine) GenerateMessage(ctx context.Context, t Trigger, username string) *Message {
	mentor, err := e.mentor(ctx, t.Persona)
	if err != nil {
		e.log.Debug("no mentor for trigger", "persona", t.Persona, "trigger", t.Type, "err", err)
		return nil
	}
	tmpl, err := e.template(ctx, mentor.ID, t.Type)
	if err != nil {
		e.log.Debug("no template for trigger", "mentor_id", mentor.ID, "trigger", t.Type, "err", err)
		return nil
	}
	body, err := Render(tmpl.Body, username, t.Data)
	if err != nil {
		e.log.Warn("render template failed", "template_id", tmpl.ID, "trigger", t.Type, "err", err)
		return nil
	}
	priority := tmpl.Priority
	if priority == 0 {
		priority = t.Priority
	}
	return &Message{
		Mentor:       mentor,
		TemplateID:   tmpl.ID,
		TriggerType:  t.Type,
		Priority:     priority,
		Body:         body,
		CTAText:      tmpl.CTAText,
		CTAAction:    tmpl.CTAAction,
		PointsReward: tmpl.PointsReward,
		Data:         t.Data,
	}
}

// SafeMessages returns every message the player's current finances call for,
// minus those the active mission blocks.
func (e *Engine) SafeMessages(ctx context.Context, playerID uuid.UUID) ([]Message, error) {
	now := e.now().UTC()
	f, err := e.store.LoadFinancials(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	msgs := e.generateAll(ctx, Check(Analyze(f, now)), f.Profile.Username)
	constraints, err := e.store.ActiveConstraints(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("load mission constraints: %w", err)
	}
	return FilterByConstraints(msgs, constraints), nil
}

func (e *Engine) generateAll(ctx context.Context, triggers []Trigger, username string) []Message {
	out := make([]Message, 0, len(triggers))
	for _, t := range triggers {
		if m := e.GenerateMessage(ctx, t, username); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

type DailyResult struct {
	MessagesSent   int             `json:"messages_sent"`
	Errors         int             `json:"errors"`
	UsersProcessed int             `json:"users_processed"`
	ByPersona      map[Persona]int `json:"by_persona"`
}

// RunDaily analyzes every player who logged in within the active window and
// delivers up to DailyLimit messages each. A failing player is logged and
// counted without stopping the run.
func (e *Engine) RunDaily(ctx context.Context) (DailyResult, error) {
	now := e.now().UTC()
	players, err := e.store.ActivePlayers(ctx, now.Add(-e.cfg.ActiveWindow))
	if err != nil {
		return DailyResult{}, fmt.Errorf("load active players: %w", err)
	}
	e.log.Info("daily advisory started", "players", len(players))

	out := DailyResult{UsersProcessed: len(players), ByPersona: map[Persona]int{}}
	for _, p := range players {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sent, err := e.advisePlayer(ctx, p, now)
		for _, m := range sent {
			out.MessagesSent++
			out.ByPersona[m.Mentor.Persona]++
		}
		if errors.Is(err, ErrNotFound) {
			e.log.Debug("player has no profile, skipped", "player_id", p.PlayerID)
			continue
		}
		if err != nil {
			out.Errors++
			e.log.Error("daily advisory failed for player", "player_id", p.PlayerID, "err", err)
		}
	}
	e.log.Info("daily advisory complete",
		"messages_sent", out.MessagesSent,
		"errors", out.Errors,
		"users_processed", out.UsersProcessed,
	)
	return out, nil
}

func (e *Engine) advisePlayer(ctx context.Context, p Profile, now time.Time) ([]Message, error) {
	f, err := e.store.LoadFinancials(ctx, p.PlayerID, now)
	if err != nil {
		return nil, fmt.Errorf("load financials: %w", err)
	}
	metrics := Analyze(f, now)
	constraints, err := e.store.ActiveConstraints(ctx, p.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("load mission constraints: %w", err)
	}

	top := Top(Check(metrics), e.cfg.DailyLimit)
	msgs := FilterByConstraints(e.generateAll(ctx, top, f.Profile.Username), constraints)

	var sent []Message
	for _, m := range msgs {
		in := Interaction{
			PlayerID:    p.PlayerID,
			MentorID:    m.Mentor.ID,
			Content:     m.Body,
			TriggerType: m.TriggerType,
			Snapshot:    &metrics,
			SentAt:      now,
		}
		if m.TemplateID != uuid.Nil {
			id := m.TemplateID
			in.MessageID = &id
		}
		if _, err := e.store.RecordInteraction(ctx, in); err != nil {
			return sent, fmt.Errorf("record interaction: %w", err)
		}
		sent = append(sent, m)
		e.log.Info("mentor message sent", "player_id", p.PlayerID, "trigger", m.TriggerType, "mentor", m.Mentor.Name)
		e.notify(ctx, p.PlayerID, m.Mentor.Name, m.Body)
	}

	if err := e.store.RecordSnapshot(ctx, SnapshotOf(f, now)); err != nil {
		return sent, fmt.Errorf("record snapshot: %w", err)
	}
	return sent, nil
}

// MarkAdviceFollowed records that the player acted on a message. The reward
// comes from the message template, DefaultFollowPoints otherwise.
func (e *Engine) MarkAdviceFollowed(ctx context.Context, playerID, interactionID uuid.UUID) (Interaction, error) {
	return e.store.MarkFollowed(ctx, playerID, interactionID, DefaultFollowPoints, e.now().UTC())
}

func (e *Engine) MarkRead(ctx context.Context, playerID, interactionID uuid.UUID) (Interaction, error) {
	return e.store.MarkRead(ctx, playerID, interactionID, e.now().UTC())
}

type Stats struct {
	TotalMessages  int            `json:"total_messages"`
	MessagesRead   int            `json:"messages_read"`
	AdviceFollowed int            `json:"advice_followed"`
	TotalPoints    int            `json:"total_points"`
	MentorScores   map[string]int `json:"mentor_scores"`
	EngagementRate float64        `json:"engagement_rate"`
	ActionRate     float64        `json:"action_rate"`
}

func (e *Engine) Stats(ctx context.Context, playerID uuid.UUID) (Stats, error) {
	list, err := e.store.Interactions(ctx, playerID)
	if err != nil {
		return Stats{}, err
	}
	return StatsOf(list), nil
}

// StatsOf summarizes a player's interactions. Rates are 0 with no messages.
func StatsOf(list []Interaction) Stats {
	s := Stats{TotalMessages: len(list), MentorScores: map[string]int{}}
	for _, in := range list {
		if in.ReadAt != nil {
			s.MessagesRead++
		}
		if in.ActionTaken {
			s.AdviceFollowed++
		}
		s.TotalPoints += in.PointsEarned
		s.MentorScores[in.MentorID.String()] += in.RelationshipScore
	}
	if s.TotalMessages > 0 {
		s.EngagementRate = float64(s.MessagesRead) / float64(s.TotalMessages)
		s.ActionRate = float64(s.AdviceFollowed) / float64(s.TotalMessages)
	}
	return s
}

// CheckRealTime returns the mentor's immediate reaction to a player action,
// or nil. Lookup failures are logged and yield nil; they never fail the action.
func (e *Engine) CheckRealTime(ctx context.Context, playerID uuid.UUID, action string, data ActionData) *Message {
	t, ok := CheckRealTime(action, data)
	if !ok {
		return nil
	}
	username := "Player"
	if p, err := e.store.Profile(ctx, playerID); err == nil && p.Username != "" {
		username = p.Username
	}
	mentor, err := e.mentor(ctx, t.Persona)
	if err != nil {
		e.log.Debug("no mentor for real-time trigger", "persona", t.Persona, "trigger", t.Type, "err", err)
		return nil
	}
	body, err := Render(realTimeBodies[t.Type], username, t.Data)
	if err != nil {
		e.log.Warn("render real-time message failed", "trigger", t.Type, "err", err)
		return nil
	}
	msg := Message{
		Mentor:      mentor,
		TriggerType: t.Type,
		Priority:    t.Priority,
		Body:        body,
		Data:        t.Data,
		Immediate:   true,
	}

	constraints, err := e.store.ActiveConstraints(ctx, playerID)
	if err != nil {
		e.log.Warn("load mission constraints failed", "player_id", playerID, "err", err)
		return nil
	}
	kept := FilterByConstraints([]Message{msg}, constraints)
	if len(kept) == 0 {
		return nil
	}
	return &kept[0]
}

func (e *Engine) notify(ctx context.Context, playerID uuid.UUID, title, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, playerID, "mentor_message", title, body); err != nil {
		e.log.Warn("mentor notification failed", "player_id", playerID, "err", err)
	}
}
