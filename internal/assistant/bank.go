package assistant

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Category is a topic key in the response bank.
type Category string

const (
	CategoryFreelancing   Category = "freelancing"
	CategoryCareers       Category = "careers"
	CategoryPricing       Category = "pricing"
	CategoryMarketplace   Category = "marketplace"
	CategoryOrders        Category = "orders"
	CategoryEvents        Category = "events"
	CategoryMembership    Category = "membership"
	CategoryCommunity     Category = "community"
	CategoryWellness      Category = "wellness"
	CategoryAccount       Category = "account"
	CategoryNotifications Category = "notifications"
	CategorySupport       Category = "support"
	CategoryThanks        Category = "thanks"
	CategoryGoodbye       Category = "goodbye"
	CategoryGreeting      Category = "greeting"
	CategoryFallback      Category = "fallback"
)

// Entry is one row of the response bank.
type Entry struct {
	Category      Category
	MatchKeywords []string
	Templates     []string
	FollowUps     []string
}

// Bank is an ordered response table. Order is match priority; the fallback
// entry is held separately so it can only ever be evaluated last.
type Bank struct {
	entries  []Entry
	index    map[Category]int
	fallback Entry
}

// NewBank validates entries and builds a bank. Entries are matched in the
// given order. Exactly one entry must be the keyword-less fallback.
func NewBank(entries []Entry) (*Bank, error) {
	b := &Bank{index: make(map[Category]int, len(entries))}
	haveFallback := false
	for _, e := range entries {
		if e.Category == "" {
			return nil, errors.New("assistant: bank entry without category")
		}
		if len(e.Templates) == 0 {
			return nil, fmt.Errorf("assistant: category %q has no templates", e.Category)
		}
		for _, tmpl := range e.Templates {
			if strings.TrimSpace(tmpl) == "" {
				return nil, fmt.Errorf("assistant: category %q has an empty template", e.Category)
			}
		}
		e = Entry{
			Category:      e.Category,
			MatchKeywords: normalizeKeywords(e.MatchKeywords),
			Templates:     slices.Clone(e.Templates),
			FollowUps:     slices.Clone(e.FollowUps),
		}
		if e.Category == CategoryFallback {
			if haveFallback {
				return nil, errors.New("assistant: duplicate fallback category")
			}
			if len(e.MatchKeywords) > 0 {
				return nil, errors.New("assistant: fallback category must not have keywords")
			}
			b.fallback = e
			haveFallback = true
			continue
		}
		if _, dup := b.index[e.Category]; dup {
			return nil, fmt.Errorf("assistant: duplicate category %q", e.Category)
		}
		if len(e.MatchKeywords) == 0 {
			return nil, fmt.Errorf("assistant: category %q has no keywords", e.Category)
		}
		b.index[e.Category] = len(b.entries)
		b.entries = append(b.entries, e)
	}
	if !haveFallback {
		return nil, errors.New("assistant: bank requires a fallback category")
	}
	return b, nil
}

// MustNewBank is NewBank that panics on invalid input.
func MustNewBank(entries []Entry) *Bank {
	b, err := NewBank(entries)
	if err != nil {
		panic(err)
	}
	return b
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && !slices.Contains(out, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// Priority returns the category match order, fallback last.
func (b *Bank) Priority() []Category {
	out := make([]Category, 0, len(b.entries)+1)
	for _, e := range b.entries {
		out = append(out, e.Category)
	}
	return append(out, CategoryFallback)
}

// Entry looks up a category. Unknown categories resolve to the fallback.
func (b *Bank) Entry(c Category) Entry {
	if i, ok := b.index[c]; ok {
		return b.entries[i]
	}
	return b.fallback
}

// Has reports whether c is defined in the bank.
func (b *Bank) Has(c Category) bool {
	_, ok := b.index[c]
	return ok || c == CategoryFallback
}

var defaultBank = MustNewBank(defaultEntries)

// DefaultBank returns the built-in response table for the club portal.
func DefaultBank() *Bank {
	return defaultBank
}

// WelcomeText greets a fresh session.
const WelcomeText = "Hi there! I'm the club assistant. Ask me about freelancing, careers, the marketplace, events or membership and I'll point you in the right direction."

// WelcomeSuggestions are the quick replies shown under the welcome message.
var WelcomeSuggestions = []string{
	"How do I start freelancing?",
	"How do I join the club?",
	"What events are coming up?",
	"How does the marketplace work?",
}

// ConnectionTroubleText replaces a reply when the remote chat endpoint fails.
const ConnectionTroubleText = "Sorry, I'm having trouble connecting right now. Please try again in a moment, or reach the team through the Contact page."

// defaultEntries is listed in match priority. Topic categories come before
// small talk so "thanks, how much is membership?" resolves to pricing.
// Keywords are plain substrings, so none may occur inside common unrelated
// words ("fee" in "feel", "shop" in "workshop").
var defaultEntries = []Entry{
	{
		Category:      CategoryFreelancing,
		MatchKeywords: []string{"freelanc", "gig", "upwork", "fiverr", "side hustle", "client work", "portfolio", "my services", "my rates"},
		Templates: []string{
			"Freelancing is a great way to build experience! Start by picking one skill you can deliver well, put together two or three portfolio pieces, and list your services on the club marketplace so members can find you.",
			"A good first step is a small portfolio: two or three projects that show what you can do. From there, post a service listing on the marketplace and check the Freelance Friday posts on the community board for client leads.",
			"Most of our members land their first freelance gig through the club network. Set up your profile, add a portfolio link, and join the next freelancing workshop to learn pricing and client communication.",
		},
		FollowUps: []string{
			"How should I price my services?",
			"How do I list a service on the marketplace?",
			"Are there freelancing workshops?",
		},
	},
	{
		Category:      CategoryCareers,
		MatchKeywords: []string{"job", "career", "internship", "resume", "interview", "hiring", "recruit"},
		Templates: []string{
			"Our careers corner posts internships and entry-level roles from partner companies every week. You can also book a resume review with a senior member from the Events page.",
			"For job hunting, start with the careers board on the community page. We run mock interviews every month, and partner recruiters often join our networking nights.",
		},
		FollowUps: []string{
			"When is the next mock interview?",
			"Can someone review my resume?",
		},
	},
	{
		Category:      CategoryPricing,
		MatchKeywords: []string{"price", "pricing", "cost", "fees", "fee?", "membership fee", "how much", "discount", "cheap", "expensive"},
		Templates: []string{
			"Basic membership is free for enrolled students. The Pro plan adds marketplace promotion and workshop recordings; current prices are listed on the Membership page.",
			"Most club activities are free. Paid workshops are discounted for members, and marketplace sellers only pay a small fee when an order completes.",
		},
		FollowUps: []string{
			"How much is the Pro plan?",
			"How do marketplace fees work?",
		},
	},
	{
		Category:      CategoryMarketplace,
		MatchKeywords: []string{"marketplace", "sell", "buy", "listing", "products", "shopping", "online shop", "storefront"},
		Templates: []string{
			"The marketplace lets members buy and sell services and student-made products. Open the Marketplace tab, choose \"New listing\", add photos and a price, and your listing goes live after a quick review.",
			"To buy on the marketplace, open any listing and press \"Order\". The seller gets notified right away and you can follow progress from your Orders page.",
		},
		FollowUps: []string{
			"How do I create a listing?",
			"How do I track my order?",
		},
	},
	{
		Category:      CategoryOrders,
		MatchKeywords: []string{"my order", "an order", "orders page", "order status", "i ordered", "delivery", "refund", "shipping", "tracking", "cancel"},
		Templates: []string{
			"You can see every order and its status on the Orders page. If something went wrong, open the order and choose \"Report a problem\" so the seller and the club team are both notified.",
			"Refunds and cancellations are handled from the order details page. Sellers have two days to respond before the club team steps in.",
		},
	},
	{
		Category:      CategoryEvents,
		MatchKeywords: []string{"events", "an event", "the event", "this event", "workshop", "meetup", "hackathon", "webinar", "seminar", "info session", "study session"},
		Templates: []string{
			"Upcoming events are listed on the Events page. Members get early registration, and most workshops are recorded for anyone who can't make it live.",
			"We host workshops every week and a hackathon every semester. Check the Events page and hit \"Register\" to save your spot.",
		},
		FollowUps: []string{
			"How do I register for an event?",
			"Are workshops recorded?",
		},
	},
	{
		Category:      CategoryMembership,
		MatchKeywords: []string{"join", "membership", "members", "a member", "sign up", "signup", "register", "enroll"},
		Templates: []string{
			"Joining takes a minute: create an account with your student email, complete your profile, and you're in. Members get access to workshops, the marketplace and the community board.",
			"Anyone enrolled at the university can join. Sign up with your student email and pick the interests you want to hear about.",
		},
		FollowUps: []string{
			"What do members get?",
			"Is membership free?",
		},
	},
	{
		Category:      CategoryCommunity,
		MatchKeywords: []string{"blog", "posts", "a post", "my post", "community", "forum", "article", "discussion", "write for"},
		Templates: []string{
			"The community board is where members share articles, project showcases and questions. Anyone can comment, and members can publish their own posts from the Blog tab.",
			"Want to write for the blog? Draft your post from the Blog tab and an editor will review it within a few days.",
		},
	},
	{
		Category:      CategoryWellness,
		MatchKeywords: []string{"health", "stress", "burnout", "wellness", "anxious", "overwhelm", "so tired", "exhausted"},
		Templates: []string{
			"Taking care of yourself matters. The university counselling service is free for students, and our wellness circle meets every Wednesday evening. If you're in crisis, please contact local emergency services right away.",
			"Balancing classes and side projects can be a lot. Check out the wellness resources on the community page, and remember the counselling service is free and confidential.",
		},
	},
	{
		Category:      CategoryAccount,
		MatchKeywords: []string{"password", "login", "log in", "sign in", "account", "profile", "username"},
		Templates: []string{
			"For account issues, use \"Forgot password\" on the login page to get a reset link. You can update your name, photo and interests from your Profile page.",
			"If you can't sign in, try resetting your password first. Still stuck? Contact the team from the Contact page and include the email you registered with.",
		},
	},
	{
		Category:      CategoryNotifications,
		MatchKeywords: []string{"notification", "alert", "reminder", "unsubscribe", "email updates"},
		Templates: []string{
			"You can choose which notifications you receive under Profile -> Notifications. Order updates are always sent so you never miss a purchase or sale.",
		},
	},
	{
		Category:      CategorySupport,
		MatchKeywords: []string{"contact", "support", "human", "someone", "email", "phone", "complain", "feedback", "report a bug"},
		Templates: []string{
			"You can reach the club team through the Contact page or at the front desk during office hours. We usually reply within one working day.",
			"Happy to help you reach a person! Use the Contact page and the team will get back to you, usually within a day.",
		},
	},
	{
		Category:      CategoryThanks,
		MatchKeywords: []string{"thank", "thx", "appreciate", "cheers"},
		Templates: []string{
			"You're welcome! Anything else I can help with?",
			"Happy to help! Let me know if you have more questions.",
		},
	},
	{
		Category:      CategoryGoodbye,
		MatchKeywords: []string{"bye", "see you", "talk later", "catch you later", "good night"},
		Templates: []string{
			"Goodbye! Come back any time you have questions.",
			"See you soon! Good luck with your projects.",
		},
	},
	{
		Category:      CategoryGreeting,
		MatchKeywords: []string{"hello", "hey!", "hey,", "hey there", "hi there", "good morning", "good afternoon", "good evening", "howdy", "greetings"},
		Templates: []string{
			"Hello! How can I help you today?",
			"Hey! What would you like to know about the club?",
		},
		FollowUps: []string{
			"How do I start freelancing?",
			"What events are coming up?",
		},
	},
	{
		Category: CategoryFallback,
		Templates: []string{
			"I'm not sure I understood that. I can help with freelancing, careers, the marketplace, events, membership and your account. You can also reach the team through the Contact page.",
			"Sorry, I don't have an answer for that yet. Try asking about events, the marketplace or membership, or contact the club team directly from the Contact page.",
		},
		FollowUps: []string{
			"How do I join the club?",
			"How does the marketplace work?",
			"How do I contact the team?",
		},
	},
}
