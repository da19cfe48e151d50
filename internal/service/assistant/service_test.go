package assistant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memodraft/internal/contextguide"
	"memodraft/internal/conversation"
	"memodraft/internal/documents"
	"memodraft/internal/models"
	"memodraft/internal/service/ai"
	"memodraft/internal/worker"
)

type fakeGateway struct {
	calls   atomic.Int32
	section func(ctx context.Context, title string, docs []models.UploadedDocument, guide string) (string, error)
	chat    func(ctx context.Context, message string, docs []models.UploadedDocument) (string, error)
}

func (f *fakeGateway) GenerateSection(ctx context.Context, title string, docs []models.UploadedDocument, guide string) (string, error) {
	f.calls.Add(1)
	if f.section != nil {
		return f.section(ctx, title, docs, guide)
	}
	return "## " + title + "\nbody", nil
}

func (f *fakeGateway) GenerateChatReply(ctx context.Context, message string, docs []models.UploadedDocument) (string, error) {
	f.calls.Add(1)
	if f.chat != nil {
		return f.chat(ctx, message, docs)
	}
	return "reply to " + message, nil
}

type fakeTokens struct {
	mu      sync.Mutex
	tokens  map[string]string
	revoked []string
	purges  atomic.Int32
}

func newFakeTokens() *fakeTokens { return &fakeTokens{tokens: make(map[string]string)} }

func (f *fakeTokens) IssueToken(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok-" + sessionID
	f.tokens[token] = sessionID
	return token, nil
}

func (f *fakeTokens) RevokeSessionTokens(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, id := range f.tokens {
		if id == sessionID {
			delete(f.tokens, tok)
		}
	}
	f.revoked = append(f.revoked, sessionID)
	return nil
}

func (f *fakeTokens) PurgeExpired(context.Context) (int64, error) {
	f.purges.Add(1)
	return 0, nil
}

func (f *fakeTokens) revokedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.revoked)
}

type fixture struct {
	svc    *Service
	gw     *fakeGateway
	tokens *fakeTokens
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	d := worker.NewDispatcher(1, 4, 16, time.Minute, nil)
	t.Cleanup(d.Stop)
	f := &fixture{gw: &fakeGateway{}, tokens: newFakeTokens()}
	opts := Options{
		Gateway:    f.gw,
		Dispatcher: d,
		Tokens:     f.tokens,
		Guide:      contextguide.Static("shared guide"),
	}
	if mutate != nil {
		mutate(&opts)
	}
	svc, err := NewService(opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) login(t *testing.T) *Session {
	t.Helper()
	sess, token, err := f.svc.Login(context.Background(), "google", "")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	return sess
}

func upload(t *testing.T, sess *Session, names ...string) {
	t.Helper()
	var sources []documents.Source
	for _, n := range names {
		sources = append(sources, documents.FromBytes(n, "text/plain", []byte("content of "+n)))
	}
	_, err := sess.Upload(context.Background(), sources)
	require.NoError(t, err)
}

func withUsage(used int, tier models.Tier) func(*Options) {
	return func(o *Options) {
		o.Accounts = func(name string) *models.Account {
			return &models.Account{DisplayName: name, Tier: tier, GenerationsUsed: used}
		}
	}
}

func TestLoginSeedsSession(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)

	acct := sess.Account()
	require.NotNil(t, acct)
	assert.Equal(t, DefaultDisplayName, acct.DisplayName)
	assert.Equal(t, models.TierFree, acct.Tier)
	assert.Zero(t, acct.GenerationsUsed)

	turns := sess.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, models.ModelReply{Content: conversation.WelcomeText}, turns[0])
	assert.Equal(t, PhaseIdle, sess.Phase())

	got, err := f.svc.Lookup(sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, f.svc.Count())
}

func TestGenerateSectionSuccess(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "q3.txt")

	var gotTitle, gotGuide string
	f.gw.section = func(_ context.Context, title string, docs []models.UploadedDocument, guide string) (string, error) {
		gotTitle, gotGuide = title, guide
		assert.Len(t, docs, 1)
		return "## 4. Financial Analysis\nstrong", nil
	}

	out, err := sess.GenerateSection(context.Background(), "financial")
	require.NoError(t, err)
	assert.Equal(t, "## 4. Financial Analysis\nstrong", out)
	assert.Equal(t, "4. Financial Analysis", gotTitle)
	assert.Equal(t, "shared guide", gotGuide)

	turns := sess.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, models.ModelSuggestion{Content: out}, turns[1])
	assert.True(t, turns[1].Insertable())
	assert.Equal(t, 1, sess.Account().GenerationsUsed)
	assert.Empty(t, sess.Snapshot().Error)
}

func TestFreeTierExhaustion(t *testing.T) {
	f := newFixture(t, withUsage(9, models.TierFree))
	sess := f.login(t)
	upload(t, sess, "a.txt")

	_, err := sess.GenerateSection(context.Background(), "summary")
	require.NoError(t, err)
	assert.Equal(t, 10, sess.Account().GenerationsUsed)

	_, err = sess.SendMessage(context.Background(), "one more?")
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 10, quotaErr.Decision.Limit)
	assert.EqualValues(t, 1, f.gw.calls.Load(), "gateway must not be called when denied")

	snap := sess.Snapshot()
	assert.True(t, snap.UpgradePrompt)
	assert.True(t, snap.Usage.LimitReached)
	assert.True(t, snap.GenerationDisabled)
	assert.Equal(t, "You've reached your monthly limit of 10 generations. Please upgrade your plan.", snap.Error)
	assert.Len(t, snap.Turns, 2)
	assert.Equal(t, 10, sess.Account().GenerationsUsed)
}

func TestValidationOrder(t *testing.T) {
	f := newFixture(t, withUsage(10, models.TierFree))
	sess := f.login(t)

	// quota is checked before documents
	_, err := sess.GenerateSection(context.Background(), "summary")
	var quotaErr *QuotaExceededError
	assert.ErrorAs(t, err, &quotaErr)

	sess.close()
	_, err = sess.GenerateSection(context.Background(), "summary")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, "You must be logged in to generate content.", sess.Snapshot().Error)
	_, err = sess.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, "You must be logged in to chat.", sess.Snapshot().Error)
	assert.Zero(t, f.gw.calls.Load())
}

func TestNoDocuments(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)

	_, err := sess.GenerateSection(context.Background(), "summary")
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Equal(t, "Please upload at least one financial document to generate a section.", sess.Snapshot().Error)

	_, err = sess.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Equal(t, "Please upload documents to chat about them.", sess.Snapshot().Error)
	assert.Zero(t, f.gw.calls.Load())
	assert.Len(t, sess.Turns(), 1)
}

func TestGatewayFailureChargesNothing(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "a.txt")
	f.gw.section = func(context.Context, string, []models.UploadedDocument, string) (string, error) {
		return "", &ai.GatewayError{Op: ai.OpGenerateSection, Err: errors.New("quota on provider")}
	}
	f.gw.chat = func(context.Context, string, []models.UploadedDocument) (string, error) {
		return "", errors.New("connection reset")
	}

	_, err := sess.GenerateSection(context.Background(), "summary")
	var gwErr *ai.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "Failed to generate suggestion: quota on provider", sess.Snapshot().Error)

	_, err = sess.SendMessage(context.Background(), "what is EBITDA?")
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, ai.OpChatReply, gwErr.Op)
	assert.Equal(t, "Failed to generate chat response: connection reset", sess.Snapshot().Error)

	assert.Len(t, sess.Turns(), 1, "a failed chat must not leave the user turn behind")
	assert.Zero(t, sess.Account().GenerationsUsed)
	assert.Equal(t, PhaseIdle, sess.Phase())

	// a later success clears the error slot
	f.gw.chat = nil
	_, err = sess.SendMessage(context.Background(), "again")
	require.NoError(t, err)
	assert.Empty(t, sess.Snapshot().Error)
}

func TestChatAppendsUserTurnThenReply(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "a.txt")

	out, err := sess.SendMessage(context.Background(), "net income?")
	require.NoError(t, err)
	assert.Equal(t, "reply to net income?", out)

	turns := sess.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, models.UserTurn{Content: "net income?"}, turns[1])
	assert.Equal(t, models.ModelReply{Content: out}, turns[2])
	assert.False(t, turns[2].Insertable())

	_, err = sess.SendMessage(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestGatewayPanicReturnsToIdle(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "a.txt")
	f.gw.section = func(context.Context, string, []models.UploadedDocument, string) (string, error) {
		panic("provider SDK bug")
	}

	_, err := sess.GenerateSection(context.Background(), "summary")
	require.Error(t, err)
	assert.Equal(t, PhaseIdle, sess.Phase())
	assert.Zero(t, sess.Account().GenerationsUsed)

	f.gw.section = nil
	_, err = sess.GenerateSection(context.Background(), "summary")
	assert.NoError(t, err)
}

func TestSecondRequestWhileLoading(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "a.txt")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.gw.section = func(context.Context, string, []models.UploadedDocument, string) (string, error) {
		close(entered)
		<-release
		return "## 1. Executive Summary\nok", nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := sess.GenerateSection(context.Background(), "summary")
		done <- err
	}()
	<-entered
	assert.Equal(t, PhaseDispatching, sess.Phase())
	snap := sess.Snapshot()
	assert.True(t, snap.Loading)
	assert.True(t, snap.GenerationDisabled)

	_, err := sess.SendMessage(context.Background(), "meanwhile")
	assert.ErrorIs(t, err, ErrRequestInFlight)

	// memo edits are not blocked by an in-flight request
	sess.EditMemo("draft")
	assert.Equal(t, "draft", sess.Memo())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseIdle, sess.Phase())
	assert.Equal(t, 1, sess.Account().GenerationsUsed)
	assert.EqualValues(t, 1, f.gw.calls.Load())
}

func TestInsertSuggestion(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "a.txt")

	_, err := sess.InsertSuggestion(0)
	assert.ErrorIs(t, err, ErrNotInsertable)
	_, err = sess.InsertSuggestion(42)
	assert.ErrorIs(t, err, ErrNotInsertable)

	f.gw.section = func(_ context.Context, title string, _ []models.UploadedDocument, _ string) (string, error) {
		return "## " + title + "\nfirst draft", nil
	}
	_, err = sess.GenerateSection(context.Background(), "summary")
	require.NoError(t, err)
	memoText, err := sess.InsertSuggestion(1)
	require.NoError(t, err)
	assert.Equal(t, "## 1. Executive Summary\nfirst draft", memoText)

	sess.InsertText("## 2. Borrower Information\nAcme")
	f.gw.section = func(_ context.Context, title string, _ []models.UploadedDocument, _ string) (string, error) {
		return "## " + title + "\nsecond draft", nil
	}
	_, err = sess.GenerateSection(context.Background(), "summary")
	require.NoError(t, err)
	memoText, err = sess.InsertSuggestion(2)
	require.NoError(t, err)
	assert.Equal(t, "## 1. Executive Summary\nsecond draft\n## 2. Borrower Information\nAcme", memoText)

	assert.Equal(t, memoText, sess.InsertText(""))
}

func TestContextGuideOverride(t *testing.T) {
	f := newFixture(t, nil)
	a := f.login(t)
	b := f.login(t)

	assert.Equal(t, "shared guide", a.ContextGuide())
	a.SetContextGuide("my guide")
	assert.Equal(t, "my guide", a.ContextGuide())
	assert.Equal(t, "shared guide", b.ContextGuide())

	a.SetContextGuide("")
	assert.Equal(t, "", a.ContextGuide(), "an emptied guide stays empty")
}

func TestUpgrade(t *testing.T) {
	f := newFixture(t, withUsage(10, models.TierFree))
	sess := f.login(t)
	upload(t, sess, "a.txt")

	_, err := sess.GenerateSection(context.Background(), "summary")
	require.Error(t, err)
	require.True(t, sess.Snapshot().UpgradePrompt)

	require.NoError(t, sess.Upgrade())
	snap := sess.Snapshot()
	assert.False(t, snap.UpgradePrompt)
	assert.Equal(t, models.TierPro, snap.Account.Tier)
	assert.Equal(t, 10, snap.Usage.Used)
	assert.Equal(t, 100, snap.Usage.Limit)
	assert.Equal(t, 10, snap.Usage.Percent)

	_, err = sess.GenerateSection(context.Background(), "summary")
	assert.NoError(t, err)

	sess.OpenUpgradePrompt()
	sess.DismissUpgradePrompt()
	assert.False(t, sess.Snapshot().UpgradePrompt)
	assert.Equal(t, models.TierPro, sess.Account().Tier)
}

func TestEnterpriseIsUnlimited(t *testing.T) {
	f := newFixture(t, withUsage(5000, models.TierEnterprise))
	sess := f.login(t)
	upload(t, sess, "a.txt")

	_, err := sess.GenerateSection(context.Background(), "swot")
	require.NoError(t, err)
	require.NoError(t, sess.Upgrade())
	assert.Equal(t, models.TierEnterprise, sess.Account().Tier)
	assert.Equal(t, -1, sess.Snapshot().Usage.Remaining)
}

func TestUploadIsAllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "keep.txt")

	_, err := sess.Upload(context.Background(), []documents.Source{
		documents.FromBytes("ok.txt", "text/plain", []byte("fine")),
		documents.FromBytes("empty.txt", "text/plain", nil),
	})
	var ingestErr *documents.IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, "empty.txt", ingestErr.File)

	docs := sess.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.txt", docs[0].Name)
	assert.Contains(t, sess.Snapshot().Error, "empty.txt")

	// duplicate names are kept
	upload(t, sess, "keep.txt")
	assert.Len(t, sess.Snapshot().Documents, 2)
}

func TestLogoutRevokesAndInvalidates(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t)
	upload(t, sess, "a.txt")

	require.NoError(t, f.svc.Logout(context.Background(), sess.ID()))
	assert.Equal(t, 1, f.tokens.revokedCount())
	_, err := f.svc.Lookup(sess.ID())
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.ErrorIs(t, f.svc.Logout(context.Background(), sess.ID()), ErrAuthRequired)

	_, err = sess.GenerateSection(context.Background(), "summary")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.ErrorIs(t, sess.Upgrade(), ErrAuthRequired)
	_, err = sess.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestIdleSessionsExpire(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.IdleTTL = 30 * time.Millisecond
		o.CleanupInterval = 10 * time.Millisecond
	})
	sess := f.login(t)

	assert.Eventually(t, func() bool { return f.tokens.revokedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, err := f.svc.Lookup(sess.ID())
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Nil(t, sess.Account())
}

func TestTokenCleaner(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartTokenCleaner(ctx, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.tokens.purges.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
}

func TestSections(t *testing.T) {
	all := Sections()
	require.Len(t, all, 7)
	assert.Equal(t, "1. Executive Summary", all[0].Title)
	assert.Equal(t, "7. Recommendation", ResolveSection("recommendation"))
	assert.Equal(t, "6. SWOT Analysis", ResolveSection("SWOT"))
	assert.Equal(t, "Industry Outlook", ResolveSection(" Industry Outlook "))

	all[0].Title = "mutated"
	assert.Equal(t, "1. Executive Summary", Sections()[0].Title)
}
