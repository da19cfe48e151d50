package assistant

import (
	"memodraft/internal/models"
	"memodraft/internal/quota"
)

// DocumentInfo describes an uploaded document without its payload.
type DocumentInfo struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Snapshot is everything a client needs to render a session.
type Snapshot struct {
	SessionID          string          `json:"session_id"`
	Account            *models.Account `json:"account"`
	Usage              quota.Usage     `json:"usage"`
	Documents          []DocumentInfo  `json:"documents"`
	Turns              []models.Turn   `json:"turns"`
	Memo               string          `json:"memo"`
	ContextGuide       string          `json:"context_guide"`
	Error              string          `json:"error,omitempty"`
	UpgradePrompt      bool            `json:"upgrade_prompt"`
	Loading            bool            `json:"loading"`
	Phase              string          `json:"phase"`
	GenerationDisabled bool            `json:"generation_disabled"`
}

func (s *Session) Snapshot() Snapshot {
	docs := s.docs.List()
	infos := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		infos[i] = DocumentInfo{Name: d.Name, MimeType: d.MimeType, Size: d.Size}
	}
	guide := s.ContextGuide()

	s.mu.Lock()
	var account *models.Account
	if s.account != nil {
		a := *s.account
		account = &a
	}
	usage := quota.UsageOf(account)
	loading := s.phase != PhaseIdle
	snap := Snapshot{
		SessionID:          s.id,
		Account:            account,
		Usage:              usage,
		Documents:          infos,
		Turns:              s.transcript.Turns(),
		Memo:               s.memo.Text(),
		ContextGuide:       guide,
		Error:              s.lastErr,
		UpgradePrompt:      s.upgradePrompt,
		Loading:            loading,
		Phase:              s.phase.String(),
		GenerationDisabled: usage.LimitReached || loading,
	}
	s.mu.Unlock()
	return snap
}
