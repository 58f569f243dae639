package assistant

import "context"

// ReplyRequest is what a provider sees for one turn.
type ReplyRequest struct {
	Text           string
	AttachmentRef  string
	UserID         string
	ConversationID string
}

// ReplyProvider produces the agent's reply for a user message.
type ReplyProvider interface {
	Name() string
	Reply(ctx context.Context, req ReplyRequest) (Reply, error)
}

// RuleProvider answers from the response bank without any I/O.
type RuleProvider struct {
	classifier *Classifier
	selector   *Selector
}

// NewRuleProvider wires a classifier and selector over the same bank.
func NewRuleProvider(bank *Bank, src RandSource) *RuleProvider {
	if bank == nil {
		bank = DefaultBank()
	}
	return &RuleProvider{
		classifier: NewClassifier(bank),
		selector:   NewSelector(bank, src),
	}
}

func (p *RuleProvider) Name() string { return "rules" }

// Reply classifies the text and selects a template. It never fails.
func (p *RuleProvider) Reply(_ context.Context, req ReplyRequest) (Reply, error) {
	return p.selector.Select(p.classifier.Classify(req.Text)), nil
}
