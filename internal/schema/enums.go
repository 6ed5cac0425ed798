// Package schema is the event schema registry: the closed value sets, the
// ingestion payloads for each domain, and the rules that validate them.
package schema

import "sort"

// Domain names one of the four event collections.
type Domain string

const (
	DomainAI          Domain = "ai"
	DomainEngagement  Domain = "engagement"
	DomainSales       Domain = "sales"
	DomainPerformance Domain = "performance"
)

// Domains lists every domain in a fixed order.
var Domains = []Domain{DomainAI, DomainEngagement, DomainSales, DomainPerformance}

// ParseDomain accepts the domain name or the metric alias used by the
// comparison endpoint.
func ParseDomain(s string) (Domain, bool) {
	switch s {
	case "ai", "ai-requests", "ai_requests":
		return DomainAI, true
	case "engagement":
		return DomainEngagement, true
	case "sales", "revenue":
		return DomainSales, true
	case "performance":
		return DomainPerformance, true
	}
	return "", false
}

type set map[string]struct{}

func newSet(values ...string) set {
	s := make(set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

var (
	AIModels = newSet(
		"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-3.5-turbo",
		"claude-3-opus", "claude-3-sonnet", "claude-3-haiku",
		"gemini-pro", "llama-2", "mistral", "other",
	)
	AIFeatures = newSet(
		"chat", "completion", "code_generation", "code_review", "summarization",
		"translation", "image_analysis", "embedding", "other",
	)
	Complexities = newSet("low", "medium", "high")
	UserPlans    = newSet("free", "basic", "pro", "enterprise")

	EngagementEvents = newSet(
		"page_view", "click", "signup", "login", "logout",
		"session_start", "session_end", "feature_used", "ai_request",
		"search", "share", "download", "upload", "form_submit",
		"subscription_started", "subscription_cancelled", "upgrade", "downgrade",
		"purchase", "onboarding_step", "error",
	)

	TransactionTypes = newSet("subscription", "one_time", "refund", "credit", "debit")
	PaymentMethods   = newSet("card", "paypal", "bank_transfer", "apple_pay", "google_pay", "crypto", "credit", "other")
	BillingIntervals = newSet("weekly", "monthly", "quarterly", "yearly")

	Services = newSet(
		"auth", "user", "ai", "analytics", "payment", "notification",
		"gateway", "metrics", "frontend", "other",
	)
	HTTPMethods = newSet("GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS")
)

// enumTags binds validator tag names to the value set they check.
var enumTags = map[string]set{
	"ai_model":       AIModels,
	"ai_feature":     AIFeatures,
	"complexity":     Complexities,
	"user_plan":      UserPlans,
	"ai_status":      newSet(aiStatusNames()...),
	"engagement":     EngagementEvents,
	"tx_type":        TransactionTypes,
	"tx_status":      newSet(saleStatusNames()...),
	"payment_method": PaymentMethods,
	"interval":       BillingIntervals,
	"service":        Services,
	"http_method":    HTTPMethods,
}

// Allowed returns the sorted members of the value set behind a validator tag.
func Allowed(tag string) []string {
	if s, ok := enumTags[tag]; ok {
		return s.sorted()
	}
	return nil
}
