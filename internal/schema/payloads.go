package schema

import (
	"time"

	"pulsemetrics/internal/apperr"
)

// Tokens is the token usage reported for an AI request.
type Tokens struct {
	Input  int64 `json:"input" validate:"gte=0"`
	Output int64 `json:"output" validate:"gte=0"`
}

// AIRequestInput is the create payload for an AI request.
type AIRequestInput struct {
	RequestID   string  `json:"requestId" validate:"required,max=128"`
	UserID      string  `json:"userId,omitempty" validate:"omitempty,max=128"`
	Model       string  `json:"model" validate:"required,ai_model"`
	PromptRef   string  `json:"promptRef,omitempty" validate:"omitempty,max=2048"`
	ResponseRef string  `json:"responseRef,omitempty" validate:"omitempty,max=2048"`
	Tokens      *Tokens `json:"tokens,omitempty"`
	Cost        float64 `json:"cost" validate:"gte=0"`
	Feature     string  `json:"feature,omitempty" validate:"omitempty,ai_feature"`
	Complexity  string  `json:"complexity,omitempty" validate:"omitempty,complexity"`
	Language    string  `json:"language,omitempty" validate:"omitempty,max=32"`
	UserPlan    string  `json:"userPlan,omitempty" validate:"omitempty,user_plan"`
}

func (in *AIRequestInput) Validate() error { return check(in) }

// AIError describes why an AI request failed.
type AIError struct {
	Code    string `json:"code,omitempty" validate:"omitempty,max=64"`
	Message string `json:"message" validate:"required,max=2048"`
}

// AIRequestUpdate carries the mutable fields of an AI request. Nil fields
// are left untouched.
type AIRequestUpdate struct {
	Status      *string  `json:"status,omitempty" validate:"omitempty,ai_status"`
	ResponseRef *string  `json:"responseRef,omitempty" validate:"omitempty,max=2048"`
	Tokens      *Tokens  `json:"tokens,omitempty"`
	Cost        *float64 `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Error       *AIError `json:"error,omitempty"`
}

func (u *AIRequestUpdate) Validate() error { return check(u) }

// EngagementInput is the create payload for an engagement event.
type EngagementInput struct {
	UserID     string         `json:"userId,omitempty" validate:"omitempty,max=128"`
	SessionID  string         `json:"sessionId" validate:"required,max=128"`
	Event      string         `json:"event" validate:"required,engagement"`
	Feature    string         `json:"feature,omitempty" validate:"omitempty,max=64"`
	Page       string         `json:"page,omitempty" validate:"omitempty,max=512"`
	Value      float64        `json:"value"`
	Properties map[string]any `json:"properties,omitempty"`
	UserPlan   string         `json:"userPlan,omitempty" validate:"omitempty,user_plan"`
	UserAgent  string         `json:"userAgent,omitempty" validate:"omitempty,max=1024"`
}

func (in *EngagementInput) Validate() error {
	return check(in, PropertiesViolations("properties", in.Properties)...)
}

// Subscription describes the billing period of a subscription transaction.
type Subscription struct {
	StartDate time.Time  `json:"startDate" validate:"required"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Interval  string     `json:"interval,omitempty" validate:"omitempty,interval"`
	AutoRenew bool       `json:"autoRenew"`
	TrialEnd  *time.Time `json:"trialEnd,omitempty"`
}

// Refund describes money returned against a transaction.
type Refund struct {
	Amount      float64    `json:"amount" validate:"gte=0"`
	Reason      string     `json:"reason,omitempty" validate:"omitempty,max=512"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// SalesInput is the create payload for a sales transaction.
type SalesInput struct {
	TransactionID string        `json:"transactionId" validate:"required,max=128"`
	UserID        string        `json:"userId,omitempty" validate:"omitempty,max=128"`
	Type          string        `json:"type" validate:"required,tx_type"`
	Amount        *float64      `json:"amount" validate:"required"`
	Currency      string        `json:"currency,omitempty" validate:"omitempty,len=3"`
	Status        string        `json:"status,omitempty" validate:"omitempty,tx_status"`
	PaymentMethod string        `json:"paymentMethod,omitempty" validate:"omitempty,payment_method"`
	Plan          string        `json:"plan,omitempty" validate:"omitempty,user_plan"`
	Subscription  *Subscription `json:"subscription,omitempty"`
	Refund        *Refund       `json:"refund,omitempty"`
}

func (in *SalesInput) Validate() error {
	var extra []apperr.FieldError
	if s := in.Subscription; s != nil && s.EndDate != nil && !s.StartDate.IsZero() && s.EndDate.Before(s.StartDate) {
		extra = append(extra, apperr.FieldError{Field: "subscription.endDate", Rule: "after", Message: "must not be before startDate"})
	}
	return check(in, extra...)
}

// SalesUpdate carries the mutable fields of a sales transaction.
type SalesUpdate struct {
	Status *string `json:"status,omitempty" validate:"omitempty,tx_status"`
	Refund *Refund `json:"refund,omitempty"`
}

func (u *SalesUpdate) Validate() error {
	if u.Status == nil && u.Refund == nil {
		return apperr.Invalid("status", "required", "status or refund is required")
	}
	return check(u)
}

// SystemUsage is a host resource reading attached to a performance sample.
type SystemUsage struct {
	CPU    float64 `json:"cpu" validate:"gte=0,lte=100"`
	Memory float64 `json:"memory" validate:"gte=0,lte=100"`
	Disk   float64 `json:"disk" validate:"gte=0,lte=100"`
}

// DatabaseUsage is the storage cost of the sampled request.
type DatabaseUsage struct {
	QueryTime      float64 `json:"queryTime" validate:"gte=0"`
	ConnectionPool int     `json:"connectionPool" validate:"gte=0"`
}

// CacheUsage is the cache behaviour of the sampled request.
type CacheUsage struct {
	Hits    int64    `json:"hits" validate:"gte=0"`
	Misses  int64    `json:"misses" validate:"gte=0"`
	HitRate *float64 `json:"hitRate,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Rate returns the supplied hit rate, or derives it from hits and misses.
func (c CacheUsage) Rate() float64 {
	if c.HitRate != nil {
		return *c.HitRate
	}
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total) * 100
}

// PerformanceInput is the create payload for an HTTP performance sample.
type PerformanceInput struct {
	RequestID    string         `json:"requestId,omitempty" validate:"omitempty,max=128"`
	UserID       string         `json:"userId,omitempty" validate:"omitempty,max=128"`
	Service      string         `json:"service" validate:"required,service"`
	Endpoint     string         `json:"endpoint" validate:"required,max=512"`
	Method       string         `json:"method" validate:"required,http_method"`
	StatusCode   int            `json:"statusCode" validate:"required,gte=100,lte=599"`
	ResponseTime *float64       `json:"responseTime" validate:"required,gte=0"`
	RequestSize  *int64         `json:"requestSize,omitempty" validate:"omitempty,gte=0"`
	ResponseSize *int64         `json:"responseSize,omitempty" validate:"omitempty,gte=0"`
	System       *SystemUsage   `json:"system,omitempty"`
	Database     *DatabaseUsage `json:"database,omitempty"`
	Cache        *CacheUsage    `json:"cache,omitempty"`
}

func (in *PerformanceInput) Validate() error { return check(in) }
