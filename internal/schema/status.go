package schema

// AIStatus is the lifecycle state of an AI request.
type AIStatus string

const (
	AIPending    AIStatus = "pending"
	AIProcessing AIStatus = "processing"
	AICompleted  AIStatus = "completed"
	AIFailed     AIStatus = "failed"
	AICancelled  AIStatus = "cancelled"
)

var aiTransitions = map[AIStatus][]AIStatus{
	AIPending:    {AIProcessing, AICompleted, AIFailed, AICancelled},
	AIProcessing: {AICompleted, AIFailed, AICancelled},
}

func aiStatusNames() []string {
	return []string{string(AIPending), string(AIProcessing), string(AICompleted), string(AIFailed), string(AICancelled)}
}

// Terminal reports whether no further transitions are accepted.
func (s AIStatus) Terminal() bool {
	return s == AICompleted || s == AIFailed || s == AICancelled
}

// CanTransition reports whether s may move to next. A non-terminal state
// may be re-asserted; a terminal state accepts nothing.
func (s AIStatus) CanTransition(next AIStatus) bool {
	if s == next {
		return !s.Terminal()
	}
	for _, to := range aiTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// SaleStatus is the lifecycle state of a sales transaction.
type SaleStatus string

const (
	SalePending   SaleStatus = "pending"
	SaleCompleted SaleStatus = "completed"
	SaleFailed    SaleStatus = "failed"
	SaleCancelled SaleStatus = "cancelled"
	SaleRefunded  SaleStatus = "refunded"
)

var saleTransitions = map[SaleStatus][]SaleStatus{
	SalePending:   {SaleCompleted, SaleFailed, SaleCancelled},
	SaleCompleted: {SaleRefunded},
}

func saleStatusNames() []string {
	return []string{string(SalePending), string(SaleCompleted), string(SaleFailed), string(SaleCancelled), string(SaleRefunded)}
}

func (s SaleStatus) Terminal() bool {
	_, open := saleTransitions[s]
	return !open
}

func (s SaleStatus) CanTransition(next SaleStatus) bool {
	if s == next {
		return !s.Terminal()
	}
	for _, to := range saleTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}
