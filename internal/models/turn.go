package models

import "encoding/json"

type TurnKind string

const (
	TurnUser       TurnKind = "user"
	TurnSuggestion TurnKind = "suggestion"
	TurnReply      TurnKind = "reply"
)

// Turn is one entry of the conversation transcript. The set of implementations is closed:
// UserTurn, ModelSuggestion and ModelReply.
type Turn interface {
	Kind() TurnKind
	Text() string
	// Insertable reports whether the turn can be merged into the memo.
	Insertable() bool
	isTurn()
}

// UserTurn is a message typed by the user.
type UserTurn struct {
	Content string
}

// ModelSuggestion is a drafted memo section produced by the model.
type ModelSuggestion struct {
	Content string
}

// ModelReply is a free-form model answer.
type ModelReply struct {
	Content string
}

func (UserTurn) Kind() TurnKind   { return TurnUser }
func (t UserTurn) Text() string   { return t.Content }
func (UserTurn) Insertable() bool { return false }
func (UserTurn) isTurn()          {}

func (ModelSuggestion) Kind() TurnKind   { return TurnSuggestion }
func (t ModelSuggestion) Text() string   { return t.Content }
func (ModelSuggestion) Insertable() bool { return true }
func (ModelSuggestion) isTurn()          {}

func (ModelReply) Kind() TurnKind   { return TurnReply }
func (t ModelReply) Text() string   { return t.Content }
func (ModelReply) Insertable() bool { return false }
func (ModelReply) isTurn()          {}

// Speaker maps the turn kind to the transcript role.
func Speaker(t Turn) string {
	if t.Kind() == TurnUser {
		return "user"
	}
	return "model"
}

type turnJSON struct {
	Kind       TurnKind `json:"kind"`
	Speaker    string   `json:"speaker"`
	Text       string   `json:"text"`
	Insertable bool     `json:"insertable"`
}

// MarshalTurn renders a turn in its wire form.
func MarshalTurn(t Turn) ([]byte, error) {
	return json.Marshal(turnJSON{
		Kind:       t.Kind(),
		Speaker:    Speaker(t),
		Text:       t.Text(),
		Insertable: t.Insertable(),
	})
}

func (t UserTurn) MarshalJSON() ([]byte, error)        { return MarshalTurn(t) }
func (t ModelSuggestion) MarshalJSON() ([]byte, error) { return MarshalTurn(t) }
func (t ModelReply) MarshalJSON() ([]byte, error)      { return MarshalTurn(t) }
