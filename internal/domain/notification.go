package domain

import (
	"strings"
	"time"
)

// Category classifies a notification for display and stats.
type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryWarning Category = "warning"
	CategoryError   Category = "error"
)

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

const (
	MaxTitleLength   = 100
	MaxMessageLength = 500
	MaxBulkSize      = 100
)

// Notification is owned by the notification store. RecipientID never changes
// after creation and ReadAt is set exactly when IsRead is true.
type Notification struct {
	NotificationID string                 `json:"id" dynamodbav:"notification_id" bson:"_id"`
	Title          string                 `json:"title" dynamodbav:"title" bson:"title"`
	Message        string                 `json:"message" dynamodbav:"message" bson:"message"`
	Category       Category               `json:"type" dynamodbav:"category" bson:"type"`
	Priority       Priority               `json:"priority" dynamodbav:"priority" bson:"priority"`
	RecipientID    string                 `json:"recipient" dynamodbav:"recipient_id" bson:"recipient"`
	SenderID       *string                `json:"sender,omitempty" dynamodbav:"sender_id,omitempty" bson:"sender,omitempty"`
	IsRead         bool                   `json:"isRead" dynamodbav:"is_read" bson:"isRead"`
	IsDeleted      bool                   `json:"isDeleted" dynamodbav:"is_deleted" bson:"isDeleted"`
	ReadAt         *time.Time             `json:"readAt,omitempty" dynamodbav:"read_at,omitempty" bson:"readAt,omitempty"`
	ExpiresAt      *time.Time             `json:"expiresAt,omitempty" dynamodbav:"expires_at,omitempty" bson:"expiresAt,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" dynamodbav:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"createdAt" dynamodbav:"created_at" bson:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt" dynamodbav:"updated_at" bson:"updatedAt"`
}

// Expired reports whether the notification has an expiry in the past.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// MarkRead applies the unread -> read transition. It is a no-op on a
// notification that is already read so ReadAt is only ever set once.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	n.ReadAt = &at
	n.UpdatedAt = at
	return true
}

// CreateNotificationRequest is the payload accepted from any origin.
// Category and Priority default to info and medium.
type CreateNotificationRequest struct {
	Title       string                 `json:"title" validate:"required,max=100"`
	Message     string                 `json:"message" validate:"required,max=500"`
	Category    Category               `json:"type" validate:"omitempty,oneof=info success warning error"`
	Priority    Priority               `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	RecipientID string                 `json:"recipient" validate:"required"`
	SenderID    *string                `json:"sender"`
	ExpiresAt   *time.Time             `json:"expiresAt"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// BulkNotificationRequest fans one notification body out to many recipients.
// RecipientID on the embedded body is ignored.
type BulkNotificationRequest struct {
	Recipients []string             `json:"recipients" validate:"required,min=1,max=100,dive,required"`
	Data       BulkNotificationBody `json:"notificationData"`
}

type BulkNotificationBody struct {
	Title     string                 `json:"title" validate:"required,max=100"`
	Message   string                 `json:"message" validate:"required,max=500"`
	Category  Category               `json:"type" validate:"omitempty,oneof=info success warning error"`
	Priority  Priority               `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	SenderID  *string                `json:"sender"`
	ExpiresAt *time.Time             `json:"expiresAt"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// ForRecipient expands the bulk body into a single-recipient request.
func (b BulkNotificationBody) ForRecipient(recipientID string) CreateNotificationRequest {
	return CreateNotificationRequest{
		Title:       b.Title,
		Message:     b.Message,
		Category:    b.Category,
		Priority:    b.Priority,
		RecipientID: recipientID,
		SenderID:    b.SenderID,
		ExpiresAt:   b.ExpiresAt,
		Metadata:    b.Metadata,
	}
}

// ListOptions drives paginated listing. Nil filters are not applied.
type ListOptions struct {
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	IsRead   *bool     `json:"isRead"`
	Category *Category `json:"type"`
	Priority *Priority `json:"priority"`
}

const (
	DefaultPage      = 1
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	DefaultReadLimit = 50
)

// Normalize clamps page and limit to their defaults and bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	if o.Limit < 1 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	return o
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Pagination    Pagination     `json:"pagination"`
}

// SearchCriteria filters a user's active notifications. Query is matched
// case-insensitively against title and message.
type SearchCriteria struct {
	Query     string     `json:"query"`
	Category  *Category  `json:"type"`
	Priority  *Priority  `json:"priority"`
	IsRead    *bool      `json:"isRead"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

// Matches applies the criteria to a single notification in memory. Stores
// that cannot push every predicate down to the database use it as a filter.
func (c SearchCriteria) Matches(n *Notification) bool {
	if n.IsDeleted {
		return false
	}
	if c.Category != nil && n.Category != *c.Category {
		return false
	}
	if c.Priority != nil && n.Priority != *c.Priority {
		return false
	}
	if c.IsRead != nil && n.IsRead != *c.IsRead {
		return false
	}
	if c.StartDate != nil && n.CreatedAt.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && n.CreatedAt.After(*c.EndDate) {
		return false
	}
	if c.Query != "" && !containsFold(n.Title, c.Query) && !containsFold(n.Message, c.Query) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
