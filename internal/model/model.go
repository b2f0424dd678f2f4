// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is a global account role.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ProjectRole is a per-project membership role.
type ProjectRole string

const (
	ProjectOwner  ProjectRole = "OWNER"
	ProjectMember ProjectRole = "MEMBER"
	ProjectViewer ProjectRole = "VIEWER"
)

// AtLeast reports whether r grants at least the capabilities of min.
func (r ProjectRole) AtLeast(min ProjectRole) bool {
	rank := map[ProjectRole]int{ProjectViewer: 0, ProjectMember: 1, ProjectOwner: 2}
	return rank[r] >= rank[min]
}

// Level is a log severity with a total order DEBUG < INFO < WARN < ERROR < CRITICAL.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarn     Level = "WARN"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

var levelPriority = map[Level]int{
	LevelDebug:    0,
	LevelInfo:     1,
	LevelWarn:     2,
	LevelError:    3,
	LevelCritical: 4,
}

// Levels lists all severities in priority order.
func Levels() []Level {
	return []Level{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical}
}

// Priority returns the numeric rank of the level (DEBUG=0 .. CRITICAL=4).
func (l Level) Priority() int { return levelPriority[l] }

// Valid reports whether l is a known severity.
func (l Level) Valid() bool {
	_, ok := levelPriority[l]
	return ok
}

// ParseLevel normalizes a producer-supplied level string.
// Unknown or empty input maps to INFO; WARNING is an alias of WARN.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelInfo:
		return LevelInfo
	case LevelWarn, Level("WARNING"):
		return LevelWarn
	case LevelError:
		return LevelError
	case LevelCritical:
		return LevelCritical
	default:
		return LevelInfo
	}
}

// User is an operator account. The password verifier is a one-way encoded
// hash; TOTPSecret with TOTPEnabled=false is a pending 2FA setup.
type User struct {
	ID           uuid.UUID
	Username     string // unique, immutable after create
	Name         string
	Role         Role
	PasswordHash string
	TOTPSecret   string
	TOTPEnabled  bool
	BackupCodes  []string // SHA-256 hex of unused single-use codes
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IconKind selects the project icon variant.
type IconKind string

const (
	IconInitials IconKind = "initials"
	IconNamed    IconKind = "icon"
	IconImage    IconKind = "image"
)

// Icon is a project icon descriptor. Value holds initials text, an icon
// name, or a data-URI image payload depending on Kind.
type Icon struct {
	Kind  IconKind `json:"type"`
	Value string   `json:"value"`
}

// MaxIconImageBytes bounds inlined image payloads.
const MaxIconImageBytes = 500 * 1024

// RetentionRule caps event age and/or count for one scope.
type RetentionRule struct {
	MaxAgeDays *int `json:"max_age_days,omitempty"`
	MaxCount   *int `json:"max_count,omitempty"`
}

// RetentionPolicy is a project retention configuration. Per-level rules
// override the project-wide rule for their level; the project-wide rule
// applies only to levels without an entry.
type RetentionPolicy struct {
	RetentionRule
	Levels map[Level]RetentionRule `json:"levels,omitempty"`
}

// RuleFor resolves the effective rule for a level, or nil if uncapped.
func (p *RetentionPolicy) RuleFor(l Level) *RetentionRule {
	if p == nil {
		return nil
	}
	if r, ok := p.Levels[l]; ok {
		return &r
	}
	if p.MaxAgeDays != nil || p.MaxCount != nil {
		r := p.RetentionRule
		return &r
	}
	return nil
}

// Project is a logical namespace for events. The API credential is stored
// only as a fingerprint plus a short non-secret display prefix.
type Project struct {
	ID           uuid.UUID
	Name         string
	Description  string
	Icon         Icon
	APIKeyHash   string // SHA-256 hex fingerprint of the full key
	APIKeyPrefix string // first chars of the key for display, never secret
	Active       bool
	Retention    *RetentionPolicy
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Membership grants a user a role in a project.
type Membership struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
	Role      ProjectRole
	CreatedAt time.Time
}

// ChannelType selects the notification transport.
type ChannelType string

const (
	ChannelWebPush  ChannelType = "WEB_PUSH"
	ChannelTelegram ChannelType = "TELEGRAM"
	ChannelDiscord  ChannelType = "DISCORD"
)

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelWebPush, ChannelTelegram, ChannelDiscord:
		return true
	}
	return false
}

// TelegramConfig is the config payload for TELEGRAM channels.
// An empty BotToken falls back to the server default.
type TelegramConfig struct {
	ChatID   string `json:"chat_id"`
	BotToken string `json:"bot_token,omitempty"`
}

// DiscordConfig is the config payload for DISCORD channels.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Channel is a notification destination owned by a project. It fires for an
// event only when active and the event level priority >= MinLevel priority.
type Channel struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Type      ChannelType
	Name      string
	Config    json.RawMessage // shape dictated by Type
	MinLevel  Level
	Active    bool
	CreatedAt time.Time
}

// Matches reports whether the channel should fire for an event level.
func (c *Channel) Matches(l Level) bool {
	return c.Active && l.Priority() >= c.MinLevel.Priority()
}

// LogEvent is an accepted log record. Immutable after create. CreatedAt is
// the server accept-time, used for all ordering and retention decisions;
// Timestamp is the producer-provided time (defaults to accept-time).
type LogEvent struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Level     Level
	Message   string
	Metadata  json.RawMessage // opaque, never inspected by the core
	Source    string
	Timestamp time.Time
	CreatedAt time.Time
}

// Envelope is the fan-out payload published to live subscribers and to the
// cross-process pub/sub channel.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	ProjectName string          `json:"project_name"`
	Level       Level           `json:"level"`
	Message     string          `json:"message"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Source      string          `json:"source,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PushSubscription is a browser web-push registration. Endpoint is the
// natural key.
type PushSubscription struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProjectID *uuid.UUID // optional scope
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
	CreatedAt time.Time
}

// TokenGrant describes which projects a programmatic token may read:
// either every project (wildcard) or an explicit list.
type TokenGrant struct {
	All      bool
	Projects []uuid.UUID
}

// Allows reports whether the grant covers a project.
func (g TokenGrant) Allows(projectID uuid.UUID) bool {
	if g.All {
		return true
	}
	for _, p := range g.Projects {
		if p == projectID {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the wildcard grant as "*" and an explicit grant as a
// list of project IDs.
func (g TokenGrant) MarshalJSON() ([]byte, error) {
	if g.All {
		return json.Marshal("*")
	}
	ids := g.Projects
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return json.Marshal(ids)
}

// UnmarshalJSON accepts "*" or a list of project IDs.
func (g *TokenGrant) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "*" {
			*g = TokenGrant{All: true}
			return nil
		}
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*g = TokenGrant{Projects: ids}
	return nil
}

// ToolToken is a capability credential for the read-only tool surface.
type ToolToken struct {
	ID          uuid.UUID
	Name        string
	TokenHash   string // SHA-256 hex fingerprint
	TokenPrefix string
	Grant       TokenGrant
	ExpiresAt   *time.Time
	Active      bool
	CreatedBy   uuid.UUID
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// ValidAt reports whether the token may authenticate at the given instant.
func (t *ToolToken) ValidAt(now time.Time) bool {
	if !t.Active {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}

// ToolActivity is one audited tool invocation. Append-only.
type ToolActivity struct {
	ID         int64
	TokenID    uuid.UUID
	Tool       string
	ProjectIDs []uuid.UUID
	Args       json.RawMessage // sanitized: secret-bearing keys elided
	Success    bool
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}

// NotificationStatus is the recorded outcome of one delivery attempt chain.
type NotificationStatus string

const (
	NotifyPending     NotificationStatus = "PENDING"
	NotifySent        NotificationStatus = "SENT"
	NotifyFailed      NotificationStatus = "FAILED"
	NotifyRateLimited NotificationStatus = "RATE_LIMITED"
)

// NotificationJob is one unit of work on the durable delivery queue.
type NotificationJob struct {
	EventID   uuid.UUID `json:"event_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationRecord is an append-only delivery history row.
type NotificationRecord struct {
	ID        int64
	EventID   uuid.UUID
	ChannelID uuid.UUID
	Status    NotificationStatus
	Error     string
	SentAt    *time.Time
	CreatedAt time.Time
}

// EventFilter selects events for listing.
type EventFilter struct {
	ProjectIDs []uuid.UUID
	Levels     []Level
	Source     string
	Search     string // case-insensitive substring on message
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// ProjectCount pairs a project with its event count.
type ProjectCount struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Count       int64     `json:"count"`
}

// StatsOverview aggregates counts over the caller's visible projects.
type StatsOverview struct {
	Total     int64           `json:"total"`
	ByLevel   map[Level]int64 `json:"by_level"`
	Today     int64           `json:"today"`
	Recent    []LogEvent      `json:"-"`
	ByProject []ProjectCount  `json:"by_project"`
}
