package ledger

import (
	"sync"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// Calculator converts token usage into dollars using per-1K prices from
// the model profiles. Unknown models price at zero rather than failing:
// accounting must never break a request.
type Calculator struct {
	mu      sync.RWMutex
	pricing map[string]domain.ModelProfile
}

func NewCalculator(profiles []domain.ModelProfile) *Calculator {
	pricing := make(map[string]domain.ModelProfile, len(profiles))
	for _, p := range profiles {
		pricing[p.ID] = p
	}
	return &Calculator{pricing: pricing}
}

func (c *Calculator) Cost(model string, usage ModelUsage) float64 {
	c.mu.RLock()
	p, ok := c.pricing[model]
	c.mu.RUnlock()
	if !ok {
		return 0
	}

	inputCost := float64(usage.TokensIn) / 1000 * p.InputPer1K
	outputCost := float64(usage.TokensOut) / 1000 * p.OutputPer1K
	return inputCost + outputCost
}

// CostOf prices a single generation's usage.
func (c *Calculator) CostOf(model string, usage domain.Usage) float64 {
	return c.Cost(model, ModelUsage{
		TokensIn:  int64(usage.InputTokens),
		TokensOut: int64(usage.OutputTokens),
	})
}

func (c *Calculator) SetPricing(profile domain.ModelProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[profile.ID] = profile
}
