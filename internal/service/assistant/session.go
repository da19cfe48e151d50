package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memodraft/internal/conversation"
	"memodraft/internal/documents"
	"memodraft/internal/memo"
	"memodraft/internal/models"
	"memodraft/internal/quota"
	"memodraft/internal/service/ai"
	"memodraft/internal/worker"
)

// Phase is the request lifecycle state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseDispatching
	PhaseSettling
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhaseDispatching:
		return "dispatching"
	case PhaseSettling:
		return "settling"
	default:
		return "idle"
	}
}

// Session is the state of one login. At most one generation request runs at a
// time; memo edits and uploads are allowed while it does.
type Session struct {
	id        string
	createdAt time.Time
	svc       *Service

	docs       *documents.Store
	transcript *conversation.Log
	memo       *memo.Document

	mu            sync.Mutex
	account       *models.Account
	closed        bool
	phase         Phase
	lastErr       string
	upgradePrompt bool
	guide         *string // nil until the user edits the guide
}

func newSession(id string, account *models.Account, svc *Service) *Session {
	return &Session{
		id:         id,
		createdAt:  time.Now(),
		svc:        svc,
		docs:       documents.NewStore(),
		transcript: conversation.NewLog(),
		memo:       memo.NewDocument(),
		account:    account,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Account returns a copy of the session's account, or nil after logout.
func (s *Session) Account() *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return nil
	}
	a := *s.account
	return &a
}

// close detaches the account. It reports whether this call closed the session.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.account = nil
	return true
}

// GenerateSection drafts one memo section. ref is a catalog id or a free title.
// On success a ModelSuggestion is appended and one generation is charged.
func (s *Session) GenerateSection(ctx context.Context, ref string) (string, error) {
	title := ResolveSection(ref)
	if title == "" {
		return "", ErrEmptyInput
	}
	guide := s.ContextGuide()
	return s.run(ctx, requestSection,
		func(ctx context.Context) (string, error) {
			return s.svc.gateway.GenerateSection(ctx, title, s.docs.List(), guide)
		},
		func(text string) []models.Turn {
			return []models.Turn{models.ModelSuggestion{Content: text}}
		})
}

// SendMessage asks a question about the uploaded documents. The user turn is
// recorded together with the reply, and only when the reply arrives.
func (s *Session) SendMessage(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyInput
	}
	return s.run(ctx, requestChat,
		func(ctx context.Context) (string, error) {
			return s.svc.gateway.GenerateChatReply(ctx, message, s.docs.List())
		},
		func(text string) []models.Turn {
			return []models.Turn{models.UserTurn{Content: message}, models.ModelReply{Content: text}}
		})
}

// run drives Idle -> Validating -> Dispatching -> Settling -> Idle.
func (s *Session) run(ctx context.Context, kind requestKind, call func(context.Context) (string, error), turns func(string) []models.Turn) (string, error) {
	if err := s.begin(); err != nil {
		s.fail(kind, err)
		return "", err
	}
	defer s.end()

	if err := s.validate(kind); err != nil {
		s.fail(kind, err)
		return "", err
	}

	op := ai.OpGenerateSection
	if kind == requestChat {
		op = ai.OpChatReply
	}
	start := time.Now()
	text, err := worker.Do(ai.WithToolSession(ctx, s.id), s.svc.dispatcher, s.id, call)
	if err != nil {
		err = ai.WrapError(op, err)
	}
	if err := s.settle(kind, text, err, turns); err != nil {
		s.svc.log.Warn("generation failed",
			zap.String("session", s.id),
			zap.String("op", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}
	s.svc.log.Info("generation succeeded",
		zap.String("session", s.id),
		zap.String("op", op),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseIdle {
		return ErrRequestInFlight
	}
	s.phase = PhaseValidating
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.phase = PhaseIdle
	s.mu.Unlock()
}

// validate applies the checks in order; the first failure wins.
func (s *Session) validate(kind requestKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return ErrAuthRequired
	}
	if d := quota.Authorize(s.account); !d.Allowed {
		s.upgradePrompt = true
		return &QuotaExceededError{Decision: d}
	}
	if s.docs.Len() == 0 {
		return ErrNoDocuments
	}
	s.lastErr = ""
	s.phase = PhaseDispatching
	return nil
}

func (s *Session) settle(kind requestKind, text string, callErr error, turns func(string) []models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseSettling
	if callErr != nil {
		s.lastErr = userMessage(kind, callErr)
		return callErr
	}
	if s.account == nil {
		// logged out while the call was running
		return ErrAuthRequired
	}
	s.transcript.Append(turns(text)...)
	s.account.GenerationsUsed++
	s.lastErr = ""
	return nil
}

func (s *Session) fail(kind requestKind, err error) {
	s.mu.Lock()
	s.lastErr = userMessage(kind, err)
	s.mu.Unlock()
}

// Upload ingests a batch of files. Either the whole batch is appended or, on
// the first unreadable file, nothing is.
func (s *Session) Upload(ctx context.Context, sources []documents.Source) ([]models.UploadedDocument, error) {
	if s.Account() == nil {
		return nil, ErrAuthRequired
	}
	docs, err := documents.Ingest(ctx, sources)
	if err != nil {
		s.mu.Lock()
		s.lastErr = "Failed to process files: " + err.Error()
		s.mu.Unlock()
		return nil, err
	}
	s.docs.Append(docs...)
	s.svc.log.Info("documents uploaded", zap.String("session", s.id), zap.Int("count", len(docs)))
	return docs, nil
}

// InsertSuggestion merges the suggestion at turnIndex into the memo.
func (s *Session) InsertSuggestion(turnIndex int) (string, error) {
	turn, ok := s.transcript.At(turnIndex)
	if !ok || !turn.Insertable() {
		return s.memo.Text(), ErrNotInsertable
	}
	return s.InsertText(turn.Text()), nil
}

// InsertText merges arbitrary suggestion text. Empty text is a no-op.
func (s *Session) InsertText(suggestion string) string {
	if suggestion == "" {
		return s.memo.Text()
	}
	return s.memo.Insert(suggestion)
}

// EditMemo replaces the memo with a manual edit.
func (s *Session) EditMemo(text string) {
	s.memo.Replace(text)
}

func (s *Session) Memo() string { return s.memo.Text() }

// ContextGuide returns the session's edited guide, or the shared one.
func (s *Session) ContextGuide() string {
	s.mu.Lock()
	override := s.guide
	s.mu.Unlock()
	if override != nil {
		return *override
	}
	return s.svc.guide.Text()
}

// SetContextGuide replaces the guide for this session only.
func (s *Session) SetContextGuide(text string) {
	s.mu.Lock()
	s.guide = &text
	s.mu.Unlock()
}

// Upgrade moves a Free account to Pro and closes the upgrade prompt. Usage is kept.
func (s *Session) Upgrade() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return ErrAuthRequired
	}
	if s.account.Tier == models.TierFree {
		s.account.Tier = models.TierPro
	}
	s.upgradePrompt = false
	return nil
}

func (s *Session) DismissUpgradePrompt() {
	s.mu.Lock()
	s.upgradePrompt = false
	s.mu.Unlock()
}

// OpenUpgradePrompt shows the upgrade prompt on request.
func (s *Session) OpenUpgradePrompt() {
	s.mu.Lock()
	s.upgradePrompt = true
	s.mu.Unlock()
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []models.Turn { return s.transcript.Turns() }

func (s *Session) Documents() []models.UploadedDocument { return s.docs.List() }
