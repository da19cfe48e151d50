package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memodraft/internal/models"
)

type fakeChatModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChatModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func TestEinoGenerateSectionFlattensDocuments(t *testing.T) {
	fake := &fakeChatModel{reply: "## 2. Borrower Information\nAcme Corp.\n"}
	g, err := NewEinoGateway(context.Background(), fake, EinoOptions{}, nil)
	require.NoError(t, err)

	docs := []models.UploadedDocument{
		testDoc("notes.txt", "text/plain", "Borrower: Acme Corp"),
		testDoc("chart.png", "image/png", "\x89PNG"),
	}
	out, err := g.GenerateSection(context.Background(), "2. Borrower Information", docs, "")
	require.NoError(t, err)
	assert.Equal(t, "## 2. Borrower Information\nAcme Corp.", out)

	require.Len(t, fake.got, 2)
	assert.Equal(t, schema.System, fake.got[0].Role)
	user := fake.got[1]
	require.Len(t, user.MultiContent, 2)
	assert.Contains(t, user.MultiContent[0].Text, "Borrower: Acme Corp")
	assert.Contains(t, user.MultiContent[0].Text, `"## 2. Borrower Information"`)
	require.NotNil(t, user.MultiContent[1].ImageURL)
	assert.True(t, strings.HasPrefix(user.MultiContent[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestEinoChatReplyWithoutImagesUsesPlainContent(t *testing.T) {
	fake := &fakeChatModel{reply: "Yes."}
	g, err := NewEinoGateway(context.Background(), fake, EinoOptions{}, nil)
	require.NoError(t, err)

	out, err := g.GenerateChatReply(context.Background(), "Is it profitable?", []models.UploadedDocument{testDoc("pl.csv", "text/csv", "revenue,100")})
	require.NoError(t, err)
	assert.Equal(t, "Yes.", out)
	assert.Empty(t, fake.got[1].MultiContent)
	assert.Contains(t, fake.got[1].Content, "revenue,100")
	assert.Contains(t, fake.got[1].Content, "Is it profitable?")
}

func TestEinoErrorsAreGatewayErrors(t *testing.T) {
	g, err := NewEinoGateway(context.Background(), &fakeChatModel{err: errors.New("rate limited")}, EinoOptions{}, nil)
	require.NoError(t, err)

	_, err = g.GenerateChatReply(context.Background(), "hi", nil)
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "rate limited", err.Error())

	g, err = NewEinoGateway(context.Background(), &fakeChatModel{reply: "   "}, EinoOptions{}, nil)
	require.NoError(t, err)
	_, err = g.GenerateSection(context.Background(), "x", nil, "")
	assert.ErrorIs(t, err, errEmptyResponse)
}

func TestIsPlainText(t *testing.T) {
	assert.True(t, isPlainText("text/markdown; charset=utf-8"))
	assert.True(t, isPlainText("application/json"))
	assert.False(t, isPlainText("application/pdf"))
	assert.False(t, isPlainText(""))
}
