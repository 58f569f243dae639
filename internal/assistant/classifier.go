package assistant

import "strings"

// Classifier maps user text to a bank category by ordered keyword containment.
type Classifier struct {
	bank *Bank
}

// NewClassifier creates a classifier over bank, or the default bank when nil.
func NewClassifier(bank *Bank) *Classifier {
	if bank == nil {
		bank = DefaultBank()
	}
	return &Classifier{bank: bank}
}

// Classify returns the first category in priority order with a keyword
// contained in the lowercased text, or CategoryFallback.
func (c *Classifier) Classify(text string) Category {
	normalized := strings.ToLower(text)
	if strings.TrimSpace(normalized) == "" {
		return CategoryFallback
	}
	for _, e := range c.bank.entries {
		for _, kw := range e.MatchKeywords {
			if strings.Contains(normalized, kw) {
				return e.Category
			}
		}
	}
	return CategoryFallback
}
