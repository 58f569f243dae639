package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorUsesOwnTemplates(t *testing.T) {
	bank := DefaultBank()
	s := NewSelector(bank, NewSeededRand(42))
	for _, c := range bank.Priority() {
		entry := bank.Entry(c)
		for range 25 {
			reply := s.Select(c)
			assert.Equal(t, c, reply.Category)
			assert.Contains(t, entry.Templates, reply.Text)
		}
	}
}

func TestSelectorFixedRand(t *testing.T) {
	bank := DefaultBank()
	entry := bank.Entry(CategoryFreelancing)

	reply := NewSelector(bank, FixedRand(1)).Select(CategoryFreelancing)
	assert.Equal(t, entry.Templates[1], reply.Text)

	// out-of-range indexes are clamped into the template list
	reply = NewSelector(bank, FixedRand(99)).Select(CategoryFreelancing)
	assert.Contains(t, entry.Templates, reply.Text)
}

func TestSelectorCoversAllTemplates(t *testing.T) {
	bank := DefaultBank()
	s := NewSelector(bank, NewSeededRand(7))
	seen := map[string]bool{}
	for range 200 {
		seen[s.Select(CategoryFreelancing).Text] = true
	}
	assert.Len(t, seen, len(bank.Entry(CategoryFreelancing).Templates))
}

func TestSelectorFollowUpsAreCopies(t *testing.T) {
	bank := DefaultBank()
	reply := NewSelector(bank, FixedRand(0)).Select(CategoryFreelancing)
	require.NotEmpty(t, reply.FollowUps)
	reply.FollowUps[0] = "mutated"
	assert.NotEqual(t, "mutated", bank.Entry(CategoryFreelancing).FollowUps[0])

	assert.Nil(t, NewSelector(bank, FixedRand(0)).Select(CategoryOrders).FollowUps)
}

func TestRuleProviderReply(t *testing.T) {
	p := NewRuleProvider(nil, FixedRand(0))
	assert.Equal(t, "rules", p.Name())

	reply, err := p.Reply(context.Background(), ReplyRequest{Text: "How do I start freelancing?"})
	require.NoError(t, err)
	assert.Equal(t, CategoryFreelancing, reply.Category)
	assert.NotEmpty(t, reply.FollowUps)

	reply, err = p.Reply(context.Background(), ReplyRequest{AttachmentRef: "upload-1"})
	require.NoError(t, err)
	assert.Equal(t, CategoryFallback, reply.Category)
}
