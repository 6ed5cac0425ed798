package db

import (
	"time"

	"gorm.io/datatypes"

	"pulsemetrics/internal/schema"
)

// TokenUsage is the token accounting of an AI request. Total is always
// Input+Output and is recomputed on every write.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Timing records when an AI request started and, once it reaches a terminal
// state, when it ended. Duration is EndTime-StartTime in milliseconds.
type Timing struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
}

// AIRequest is one AI model invocation.
type AIRequest struct {
	ID uint `gorm:"primaryKey" json:"-"`

	RequestID string `gorm:"size:128;uniqueIndex;not null" json:"requestId"`
	UserID    string `gorm:"size:128;not null;index:idx_ai_user_ts,priority:1" json:"userId"`

	Model       string          `gorm:"size:64;not null;index:idx_ai_model_ts,priority:1" json:"model"`
	PromptRef   string          `gorm:"size:2048" json:"promptRef,omitempty"`
	ResponseRef string          `gorm:"size:2048" json:"responseRef,omitempty"`
	Tokens      TokenUsage      `gorm:"embedded;embeddedPrefix:tokens_" json:"tokens"`
	Cost        float64         `gorm:"not null;default:0" json:"cost"`
	Status      schema.AIStatus `gorm:"size:16;not null;index:idx_ai_status_ts,priority:1" json:"status"`

	Feature    string `gorm:"size:64;index:idx_ai_feature_ts,priority:1" json:"feature,omitempty"`
	Complexity string `gorm:"size:16" json:"complexity,omitempty"`
	Language   string `gorm:"size:32" json:"language,omitempty"`
	UserPlan   string `gorm:"size:32;index:idx_ai_plan_ts,priority:1" json:"userPlan,omitempty"`

	Performance Timing `gorm:"embedded;embeddedPrefix:perf_" json:"performance"`

	ErrorCode    string `gorm:"size:64" json:"errorCode,omitempty"`
	ErrorMessage string `gorm:"size:2048" json:"errorMessage,omitempty"`

	Timestamp time.Time `gorm:"not null;index:idx_ai_user_ts,priority:2;index:idx_ai_model_ts,priority:2;index:idx_ai_status_ts,priority:2;index:idx_ai_feature_ts,priority:2;index:idx_ai_plan_ts,priority:2" json:"timestamp"`
	UpdatedAt time.Time `json:"updatedAt"`

	// ExpiresAt is Timestamp plus the domain's retention horizon; the
	// housekeeping sweep removes rows once it has passed.
	ExpiresAt time.Time `gorm:"not null;index" json:"-"`
}

// EngagementEvent is an immutable user action.
type EngagementEvent struct {
	ID uint `gorm:"primaryKey" json:"-"`

	EventID   string `gorm:"size:64;uniqueIndex;not null" json:"eventId"`
	UserID    string `gorm:"size:128;not null;index:idx_eng_user_ts,priority:1" json:"userId"`
	SessionID string `gorm:"size:128;not null;index:idx_eng_session_ts,priority:1" json:"sessionId"`

	Event      string            `gorm:"size:64;not null;index:idx_eng_event_ts,priority:1" json:"event"`
	Feature    string            `gorm:"size:64;index:idx_eng_feature_ts,priority:1" json:"feature,omitempty"`
	Page       string            `gorm:"size:512" json:"page,omitempty"`
	Value      float64           `gorm:"not null;default:0" json:"value"`
	Properties datatypes.JSONMap `gorm:"type:json" json:"properties,omitempty"`

	DeviceType string `gorm:"size:16;index:idx_eng_device_ts,priority:1" json:"deviceType"`
	Browser    string `gorm:"size:32" json:"browser"`
	OS         string `gorm:"size:32" json:"os"`
	UserPlan   string `gorm:"size:32;index:idx_eng_plan_ts,priority:1" json:"userPlan,omitempty"`

	Timestamp time.Time `gorm:"not null;index:idx_eng_user_ts,priority:2;index:idx_eng_session_ts,priority:2;index:idx_eng_event_ts,priority:2;index:idx_eng_feature_ts,priority:2;index:idx_eng_device_ts,priority:2;index:idx_eng_plan_ts,priority:2" json:"timestamp"`
	ExpiresAt time.Time `gorm:"not null;index" json:"-"`
}

// SubscriptionTerms mirrors schema.Subscription as nullable columns.
type SubscriptionTerms struct {
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Interval  string     `gorm:"size:16" json:"interval,omitempty"`
	AutoRenew bool       `json:"autoRenew"`
	TrialEnd  *time.Time `json:"trialEnd,omitempty"`
}

// RefundInfo mirrors schema.Refund as nullable columns.
type RefundInfo struct {
	Amount      *float64   `json:"amount,omitempty"`
	Reason      string     `gorm:"size:512" json:"reason,omitempty"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// SalesTransaction is one monetary movement. Amount is signed.
type SalesTransaction struct {
	ID uint `gorm:"primaryKey" json:"-"`

	TransactionID string `gorm:"size:128;uniqueIndex;not null" json:"transactionId"`
	UserID        string `gorm:"size:128;not null;index:idx_sales_user_ts,priority:1" json:"userId"`

	Type          string            `gorm:"size:16;not null;index:idx_sales_type_ts,priority:1" json:"type"`
	Amount        float64           `gorm:"not null" json:"amount"`
	Currency      string            `gorm:"size:3;not null" json:"currency"`
	Status        schema.SaleStatus `gorm:"size:16;not null;index:idx_sales_status_ts,priority:1" json:"status"`
	PaymentMethod string            `gorm:"size:32" json:"paymentMethod,omitempty"`
	Plan          string            `gorm:"size:32;index:idx_sales_plan_ts,priority:1" json:"plan,omitempty"`

	Subscription SubscriptionTerms `gorm:"embedded;embeddedPrefix:subscription_" json:"subscription"`
	Refund       RefundInfo        `gorm:"embedded;embeddedPrefix:refund_" json:"refund"`

	Timestamp time.Time `gorm:"not null;index:idx_sales_user_ts,priority:2;index:idx_sales_type_ts,priority:2;index:idx_sales_status_ts,priority:2;index:idx_sales_plan_ts,priority:2" json:"timestamp"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `gorm:"not null;index" json:"-"`
}

// SystemReading is the optional host resource block of a sample.
type SystemReading struct {
	CPU    *float64 `json:"cpu,omitempty"`
	Memory *float64 `json:"memory,omitempty"`
	Disk   *float64 `json:"disk,omitempty"`
}

// DatabaseReading is the optional storage block of a sample.
type DatabaseReading struct {
	QueryTime      *float64 `json:"queryTime,omitempty"`
	ConnectionPool *int     `json:"connectionPool,omitempty"`
}

// CacheReading is the optional cache block of a sample.
type CacheReading struct {
	Hits    *int64   `json:"hits,omitempty"`
	Misses  *int64   `json:"misses,omitempty"`
	HitRate *float64 `json:"hitRate,omitempty"`
}

// PerformanceSample is one write-once HTTP timing measurement. UserID is
// empty when the sample has no owning actor.
type PerformanceSample struct {
	ID uint `gorm:"primaryKey" json:"-"`

	RequestID string `gorm:"size:128;uniqueIndex;not null" json:"requestId"`
	UserID    string `gorm:"size:128;index:idx_perf_user_ts,priority:1" json:"userId,omitempty"`

	Service      string  `gorm:"size:32;not null;index:idx_perf_route_ts,priority:1" json:"service"`
	Endpoint     string  `gorm:"size:512;not null;index:idx_perf_route_ts,priority:2" json:"endpoint"`
	Method       string  `gorm:"size:8;not null;index:idx_perf_route_ts,priority:3" json:"method"`
	StatusCode   int     `gorm:"not null;index:idx_perf_status_ts,priority:1" json:"statusCode"`
	ResponseTime float64 `gorm:"not null" json:"responseTime"`
	RequestSize  *int64  `json:"requestSize,omitempty"`
	ResponseSize *int64  `json:"responseSize,omitempty"`

	System   SystemReading   `gorm:"embedded;embeddedPrefix:system_" json:"system"`
	Database DatabaseReading `gorm:"embedded;embeddedPrefix:db_" json:"database"`
	Cache    CacheReading    `gorm:"embedded;embeddedPrefix:cache_" json:"cache"`

	Timestamp time.Time `gorm:"not null;index:idx_perf_user_ts,priority:2;index:idx_perf_route_ts,priority:4;index:idx_perf_status_ts,priority:2" json:"timestamp"`
	ExpiresAt time.Time `gorm:"not null;index" json:"-"`
}
