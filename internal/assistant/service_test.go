package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"example.com/dompy/backend/internal/assistant/llm"
	"example.com/dompy/backend/internal/assistant/tools"
	"example.com/dompy/backend/internal/ledger"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

// fakeChatClient replays scripted responses. Once the script runs out the
// last response repeats, which is how the loop-cap tests model a stuck model.
type fakeChatClient struct {
	responses []llm.Response
	err       error
	calls     [][]llm.Message
}

func (c *fakeChatClient) Chat(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	c.calls = append(c.calls, append([]llm.Message(nil), messages...))
	if c.err != nil {
		return llm.Response{}, c.err
	}

	idx := len(c.calls) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

type stubReader struct {
	accounts   []models.Account
	categories []models.Category
}

func (r *stubReader) ListAccounts(_ context.Context, _ uuid.UUID) ([]models.Account, error) {
	return r.accounts, nil
}

func (r *stubReader) ListCategories(_ context.Context, _ uuid.UUID, categoryType *models.CategoryType) ([]models.Category, error) {
	if categoryType == nil {
		return r.categories, nil
	}

	filtered := make([]models.Category, 0, len(r.categories))
	for _, c := range r.categories {
		if c.Type == *categoryType {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (r *stubReader) ListTransactions(_ context.Context, _ uuid.UUID, _ repository.TransactionFilter) ([]repository.TransactionWithNames, error) {
	return nil, nil
}

func (r *stubReader) BudgetOverview(_ context.Context, _ uuid.UUID, month time.Time) (ledger.BudgetOverview, error) {
	return ledger.BudgetOverview{Month: month}, nil
}

func (r *stubReader) CashflowSummary(_ context.Context, _ uuid.UUID, dateFrom, dateTo time.Time) (ledger.CashflowSummary, error) {
	return ledger.CashflowSummary{DateFrom: dateFrom, DateTo: dateTo}, nil
}

// stubWriter counts ledger writes and can be told to fail a specific call.
type stubWriter struct {
	calls        int
	failOn       int // 1-based call number to fail, 0 disables
	transactions []ledger.NewTransaction
}

func (w *stubWriter) fail() error {
	w.calls++
	if w.failOn > 0 && w.calls == w.failOn {
		return errors.New("ledger write failed")
	}
	return nil
}

func (w *stubWriter) CreateTransaction(_ context.Context, _ uuid.UUID, in ledger.NewTransaction) (models.Transaction, error) {
	if err := w.fail(); err != nil {
		return models.Transaction{}, err
	}
	w.transactions = append(w.transactions, in)
	return models.Transaction{ID: uuid.New(), Type: in.Type, Amount: in.Amount}, nil
}

func (w *stubWriter) CreateTransfer(_ context.Context, _ uuid.UUID, _ ledger.Transfer) (ledger.TransferResult, error) {
	if err := w.fail(); err != nil {
		return ledger.TransferResult{}, err
	}
	return ledger.TransferResult{Group: uuid.New()}, nil
}

func (w *stubWriter) ApplyBudgetAllocations(_ context.Context, _ uuid.UUID, month time.Time, allocations []ledger.BudgetAllocation) ([]models.Budget, error) {
	if err := w.fail(); err != nil {
		return nil, err
	}

	budgets := make([]models.Budget, 0, len(allocations))
	for _, a := range allocations {
		budgets = append(budgets, models.Budget{ID: uuid.New(), CategoryID: a.CategoryID, Month: month, LimitAmount: a.LimitAmount})
	}
	return budgets, nil
}

func (w *stubWriter) ApplyCategoryChange(_ context.Context, _ uuid.UUID, change ledger.CategoryChange) (uuid.UUID, error) {
	if err := w.fail(); err != nil {
		return uuid.Nil, err
	}
	if change.CategoryID != nil {
		return *change.CategoryID, nil
	}
	return uuid.New(), nil
}

type memConversations struct {
	conversations map[uuid.UUID]models.Conversation
	messages      map[uuid.UUID][]models.ConversationMessage
}

func newMemConversations() *memConversations {
	return &memConversations{
		conversations: make(map[uuid.UUID]models.Conversation),
		messages:      make(map[uuid.UUID][]models.ConversationMessage),
	}
}

func (m *memConversations) Create(_ context.Context, userID uuid.UUID, title *string) (models.Conversation, error) {
	conversation := models.Conversation{ID: uuid.New(), UserID: userID, Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.conversations[conversation.ID] = conversation
	return conversation, nil
}

func (m *memConversations) Get(_ context.Context, userID, conversationID uuid.UUID) (models.Conversation, error) {
	conversation, ok := m.conversations[conversationID]
	if !ok || conversation.UserID != userID {
		return models.Conversation{}, repository.ErrNotFound
	}
	return conversation, nil
}

func (m *memConversations) List(_ context.Context, userID uuid.UUID, _, _ int) ([]repository.ConversationSummary, int, error) {
	var summaries []repository.ConversationSummary
	for _, c := range m.conversations {
		if c.UserID == userID {
			summaries = append(summaries, repository.ConversationSummary{Conversation: c, MessageCount: len(m.messages[c.ID])})
		}
	}
	return summaries, len(summaries), nil
}

func (m *memConversations) Touch(_ context.Context, conversationID uuid.UUID, title *string) error {
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return repository.ErrNotFound
	}
	if conversation.Title == nil {
		conversation.Title = title
	}
	conversation.UpdatedAt = time.Now()
	m.conversations[conversationID] = conversation
	return nil
}

func (m *memConversations) Delete(_ context.Context, userID, conversationID uuid.UUID) error {
	conversation, ok := m.conversations[conversationID]
	if !ok || conversation.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.conversations, conversationID)
	delete(m.messages, conversationID)
	return nil
}

func (m *memConversations) AppendMessage(_ context.Context, msg models.ConversationMessage) (models.ConversationMessage, error) {
	msg.ID = uuid.New()
	msg.Position = len(m.messages[msg.ConversationID]) + 1
	msg.CreatedAt = time.Now()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return msg, nil
}

func (m *memConversations) ListMessages(_ context.Context, conversationID uuid.UUID) ([]models.ConversationMessage, error) {
	return append([]models.ConversationMessage(nil), m.messages[conversationID]...), nil
}

type memProposals struct {
	proposals map[uuid.UUID]models.Proposal
	claimErr  error
}

func newMemProposals() *memProposals {
	return &memProposals{proposals: make(map[uuid.UUID]models.Proposal)}
}

func (m *memProposals) Create(_ context.Context, conversationID, messageID uuid.UUID, kind models.ProposalKind, payload json.RawMessage) (models.Proposal, error) {
	proposal := models.Proposal{
		ID:              uuid.New(),
		ConversationID:  conversationID,
		MessageID:       messageID,
		Kind:            kind,
		Status:          models.ProposalStatusPending,
		OriginalPayload: payload,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	m.proposals[proposal.ID] = proposal
	return proposal, nil
}

func (m *memProposals) Get(_ context.Context, _, proposalID uuid.UUID) (models.Proposal, error) {
	proposal, ok := m.proposals[proposalID]
	if !ok {
		return models.Proposal{}, repository.ErrNotFound
	}
	return proposal, nil
}

func (m *memProposals) ListByConversation(_ context.Context, _, conversationID uuid.UUID) ([]models.Proposal, error) {
	var proposals []models.Proposal
	for _, p := range m.proposals {
		if p.ConversationID == conversationID {
			proposals = append(proposals, p)
		}
	}
	return proposals, nil
}

func (m *memProposals) ListByMessage(_ context.Context, messageID uuid.UUID) ([]models.Proposal, error) {
	var proposals []models.Proposal
	for _, p := range m.proposals {
		if p.MessageID == messageID {
			proposals = append(proposals, p)
		}
	}
	return proposals, nil
}

func (m *memProposals) Revise(_ context.Context, _, proposalID uuid.UUID, payload json.RawMessage) (models.Proposal, error) {
	proposal, ok := m.proposals[proposalID]
	if !ok {
		return models.Proposal{}, repository.ErrNotFound
	}
	if proposal.Resolved() {
		return models.Proposal{}, repository.ErrInvalidState
	}
	proposal.Status = models.ProposalStatusRevised
	proposal.RevisedPayload = payload
	m.proposals[proposalID] = proposal
	return proposal, nil
}

func (m *memProposals) Discard(_ context.Context, _, proposalID uuid.UUID) (models.Proposal, error) {
	proposal, ok := m.proposals[proposalID]
	if !ok {
		return models.Proposal{}, repository.ErrNotFound
	}
	if proposal.Resolved() {
		return models.Proposal{}, repository.ErrInvalidState
	}
	proposal.Status = models.ProposalStatusDiscarded
	m.proposals[proposalID] = proposal
	return proposal, nil
}

func (m *memProposals) Claim(_ context.Context, _, proposalID uuid.UUID, revision json.RawMessage) (models.Proposal, error) {
	if m.claimErr != nil {
		return models.Proposal{}, m.claimErr
	}

	proposal, ok := m.proposals[proposalID]
	if !ok {
		return models.Proposal{}, repository.ErrNotFound
	}
	if proposal.Resolved() {
		return models.Proposal{}, repository.ErrInvalidState
	}

	if len(revision) > 0 {
		proposal.RevisedPayload = revision
	}
	proposal.Status = models.ProposalStatusConfirmed
	m.proposals[proposalID] = proposal
	return proposal, nil
}

func (m *memProposals) Finalize(_ context.Context, _, proposalID uuid.UUID, resultID string) (models.Proposal, error) {
	proposal, ok := m.proposals[proposalID]
	if !ok {
		return models.Proposal{}, repository.ErrNotFound
	}
	if proposal.Status != models.ProposalStatusConfirmed || proposal.ResultID != nil {
		return models.Proposal{}, repository.ErrInvalidState
	}

	now := time.Now()
	proposal.AppliedAt = &now
	proposal.ResultID = &resultID
	m.proposals[proposalID] = proposal
	return proposal, nil
}

func (m *memProposals) Release(_ context.Context, _, proposalID uuid.UUID) error {
	proposal, ok := m.proposals[proposalID]
	if !ok {
		return repository.ErrNotFound
	}
	if proposal.Status != models.ProposalStatusConfirmed || proposal.ResultID != nil {
		return repository.ErrInvalidState
	}

	proposal.Status = models.ProposalStatusPending
	if len(proposal.RevisedPayload) > 0 {
		proposal.Status = models.ProposalStatusRevised
	}
	m.proposals[proposalID] = proposal
	return nil
}

type testEnv struct {
	service       *Service
	client        *fakeChatClient
	reader        *stubReader
	writer        *stubWriter
	registry      *tools.Registry
	conversations *memConversations
	proposals     *memProposals
	userID        uuid.UUID
}

func newTestEnv(client *fakeChatClient, maxToolRounds int) *testEnv {
	reader := &stubReader{
		accounts: []models.Account{
			{ID: uuid.New(), Name: "BCA Tabungan", Type: models.AccountTypeChecking, Balance: 5_000_000, Currency: "IDR"},
			{ID: uuid.New(), Name: "GoPay", Type: models.AccountTypeEWallet, Balance: 150_000, Currency: "IDR"},
		},
		categories: []models.Category{
			{ID: uuid.New(), Name: "Food", Type: models.CategoryTypeExpense},
			{ID: uuid.New(), Name: "Salary", Type: models.CategoryTypeIncome},
		},
	}
	writer := &stubWriter{}
	conversations := newMemConversations()
	proposals := newMemProposals()
	registry := tools.NewRegistry(reader, writer, validator.New())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := NewService(client, registry, reader, conversations, proposals, maxToolRounds, 0, logger)

	return &testEnv{
		service:       service,
		client:        client,
		reader:        reader,
		writer:        writer,
		registry:      registry,
		conversations: conversations,
		proposals:     proposals,
		userID:        uuid.New(),
	}
}

func toolCall(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call_" + name, Name: name, Arguments: json.RawMessage(args)}
}

// TestProcessMessageReadOnly runs a turn where the model reads accounts and
// answers: no proposals, the full transcript persisted in order.
func TestProcessMessageReadOnly(t *testing.T) {
	client := &fakeChatClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("get_accounts", `{}`)}},
		{Content: "You have two accounts."},
	}}
	env := newTestEnv(client, 0)

	result, err := env.service.ProcessMessage(context.Background(), env.userID, nil, "berapa saldo saya?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Content != "You have two accounts." {
		t.Fatalf("unexpected content %q", result.Content)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "get_accounts" {
		t.Fatalf("unexpected tool calls %v", result.ToolCalls)
	}
	if len(result.Proposals) != 0 {
		t.Fatalf("expected no proposals, got %d", len(result.Proposals))
	}
	if result.Proposals == nil || result.ToolCalls == nil {
		t.Fatal("result slices must not be nil")
	}

	messages := env.conversations.messages[result.ConversationID]
	roles := make([]models.MessageRole, 0, len(messages))
	for _, msg := range messages {
		roles = append(roles, msg.Role)
	}
	want := []models.MessageRole{models.MessageRoleUser, models.MessageRoleAssistant, models.MessageRoleTool, models.MessageRoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("expected %d stored messages, got %d", len(want), len(roles))
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("message %d: expected role %s, got %s", i, want[i], roles[i])
		}
	}

	// The second model call must see the system prompt, history and the tool
	// result, in that order.
	second := env.client.calls[1]
	if second[0].Role != llm.RoleSystem {
		t.Fatalf("expected system message first, got %s", second[0].Role)
	}
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "call_get_accounts" {
		t.Fatalf("expected trailing tool message for call_get_accounts, got %+v", last)
	}
}

// TestProcessMessageCreatesProposal checks that a propose tool call persists a
// pending proposal attached to the round's assistant message.
func TestProcessMessageCreatesProposal(t *testing.T) {
	client := &fakeChatClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("propose_transaction", `{"source_text":"makan siang 35k","category_hint":"Food"}`)}},
		{Content: "I drafted the expense, please confirm."},
	}}
	env := newTestEnv(client, 0)

	result, err := env.service.ProcessMessage(context.Background(), env.userID, nil, "catat makan siang 35k", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(result.Proposals))
	}
	proposal := result.Proposals[0]
	if proposal.Kind != models.ProposalKindTransaction {
		t.Fatalf("expected transaction proposal, got %s", proposal.Kind)
	}
	if proposal.Status != models.ProposalStatusPending {
		t.Fatalf("expected pending status, got %s", proposal.Status)
	}

	var payload tools.TransactionPayload
	if err := json.Unmarshal(proposal.OriginalPayload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Amount != 35_000 {
		t.Fatalf("expected amount 35000, got %d", payload.Amount)
	}

	if env.writer.calls != 0 {
		t.Fatalf("proposing must not write the ledger, saw %d writes", env.writer.calls)
	}

	stored := env.conversations.messages[result.ConversationID]
	if proposal.MessageID != stored[1].ID {
		t.Fatal("proposal not attached to the round's assistant message")
	}
}

// TestProcessMessageToolLoopExceeded checks the round cap: the turn fails but
// proposals from completed rounds survive.
func TestProcessMessageToolLoopExceeded(t *testing.T) {
	client := &fakeChatClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("propose_transaction", `{"source_text":"jajan 10k"}`)}},
	}}
	env := newTestEnv(client, 3)

	_, err := env.service.ProcessMessage(context.Background(), env.userID, nil, "jajan 10k", nil)
	if !errors.Is(err, ErrToolLoopExceeded) {
		t.Fatalf("expected ErrToolLoopExceeded, got %v", err)
	}

	if len(env.client.calls) != 3 {
		t.Fatalf("expected exactly 3 model rounds, got %d", len(env.client.calls))
	}
	if len(env.proposals.proposals) != 3 {
		t.Fatalf("expected proposals from every round to survive, got %d", len(env.proposals.proposals))
	}
}

// TestProcessMessageRejectsInternalTools checks that a model call to an apply
// tool or an unknown name is answered with an error payload, not executed.
func TestProcessMessageRejectsInternalTools(t *testing.T) {
	client := &fakeChatClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{
			toolCall("apply_transaction", `{}`),
			toolCall("get_stonks", `{}`),
		}},
		{Content: "Sorry, something went wrong."},
	}}
	env := newTestEnv(client, 0)

	result, err := env.service.ProcessMessage(context.Background(), env.userID, nil, "apply it now", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.writer.calls != 0 {
		t.Fatalf("internal tool must not run, saw %d writes", env.writer.calls)
	}

	messages := env.conversations.messages[result.ConversationID]
	var toolMessages []models.ConversationMessage
	for _, msg := range messages {
		if msg.Role == models.MessageRoleTool {
			toolMessages = append(toolMessages, msg)
		}
	}
	if len(toolMessages) != 2 {
		t.Fatalf("expected 2 tool messages, got %d", len(toolMessages))
	}
	for _, msg := range toolMessages {
		if !strings.Contains(msg.Content, "unknown tool") {
			t.Fatalf("expected unknown tool error, got %q", msg.Content)
		}
	}
}

// TestProcessMessageModelFailure checks that a transport failure aborts the
// turn but keeps the persisted user message.
func TestProcessMessageModelFailure(t *testing.T) {
	client := &fakeChatClient{err: errors.New("upstream timeout")}
	env := newTestEnv(client, 0)

	_, err := env.service.ProcessMessage(context.Background(), env.userID, nil, "halo", nil)
	if err == nil || !strings.Contains(err.Error(), "model call failed") {
		t.Fatalf("expected model call failure, got %v", err)
	}

	for _, msgs := range env.conversations.messages {
		if len(msgs) != 1 || msgs[0].Role != models.MessageRoleUser {
			t.Fatalf("expected only the user message persisted, got %v", msgs)
		}
	}
}

// TestProcessMessageSetsTitle checks that a finished turn titles a fresh
// conversation from the user message, truncated.
func TestProcessMessageSetsTitle(t *testing.T) {
	client := &fakeChatClient{responses: []llm.Response{{Content: "Siap!"}}}
	env := newTestEnv(client, 0)

	long := strings.Repeat("a", 60)
	result, err := env.service.ProcessMessage(context.Background(), env.userID, nil, long, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conversation := env.conversations.conversations[result.ConversationID]
	if conversation.Title == nil {
		t.Fatal("expected a title")
	}
	want := strings.Repeat("a", 50) + "..."
	if *conversation.Title != want {
		t.Fatalf("expected title %q, got %q", want, *conversation.Title)
	}
}

// TestProcessMessageContinuesConversation checks that an existing conversation
// id is reused and an unknown one starts a new conversation.
func TestProcessMessageContinuesConversation(t *testing.T) {
	client := &fakeChatClient{responses: []llm.Response{{Content: "Halo!"}}}
	env := newTestEnv(client, 0)

	first, err := env.service.ProcessMessage(context.Background(), env.userID, nil, "halo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := env.service.ProcessMessage(context.Background(), env.userID, &first.ConversationID, "lanjut", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatal("expected the same conversation to continue")
	}

	missing := uuid.New()
	third, err := env.service.ProcessMessage(context.Background(), env.userID, &missing, "baru", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.ConversationID == missing {
		t.Fatal("expected a fresh conversation for an unknown id")
	}
}

// TestBuildChatTrimsHistory checks that only the trailing historyLimit
// messages reach the model, after the system prompt.
func TestBuildChatTrimsHistory(t *testing.T) {
	env := newTestEnv(&fakeChatClient{}, 0)
	env.service.historyLimit = 2

	history := make([]models.ConversationMessage, 0, 5)
	for i := 0; i < 5; i++ {
		history = append(history, models.ConversationMessage{
			Role:    models.MessageRoleUser,
			Content: fmt.Sprintf("message %d", i),
		})
	}

	chat, err := env.service.buildChat(context.Background(), env.userID, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chat) != 3 {
		t.Fatalf("expected system plus 2 messages, got %d", len(chat))
	}
	if chat[0].Role != llm.RoleSystem {
		t.Fatalf("expected system message first, got %s", chat[0].Role)
	}
	if chat[1].Content != "message 3" || chat[2].Content != "message 4" {
		t.Fatalf("expected the trailing messages, got %q and %q", chat[1].Content, chat[2].Content)
	}
}

// TestGenerateTitle checks short messages pass through and long ones truncate.
func TestGenerateTitle(t *testing.T) {
	if got := generateTitle("  beli kopi  "); got != "beli kopi" {
		t.Fatalf("expected trimmed title, got %q", got)
	}

	long := strings.Repeat("x", 80)
	got := generateTitle(long)
	if got != strings.Repeat("x", 50)+"..." {
		t.Fatalf("unexpected truncated title %q", got)
	}

	wide := strings.Repeat("é", 60)
	got = generateTitle(wide)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated title is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("é", 50)+"..." {
		t.Fatalf("unexpected multibyte title %q", got)
	}
}
