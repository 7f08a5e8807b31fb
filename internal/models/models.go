package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AccountType string

type CategoryType string

type TransactionType string

type MessageRole string

type ProposalKind string

type ProposalStatus string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
	AccountTypeEWallet  AccountType = "e-wallet"
	AccountTypeCash     AccountType = "cash"
	AccountTypeOther    AccountType = "other"

	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"

	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"

	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"

	ProposalKindTransaction    ProposalKind = "transaction"
	ProposalKindBudgetPlan     ProposalKind = "budget-plan"
	ProposalKindCategoryChange ProposalKind = "category-change"
	ProposalKindTransfer       ProposalKind = "transfer"

	ProposalStatusPending   ProposalStatus = "pending"
	ProposalStatusRevised   ProposalStatus = "revised"
	ProposalStatusConfirmed ProposalStatus = "confirmed"
	ProposalStatusDiscarded ProposalStatus = "discarded"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         *string   `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Account struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Balance   int64       `json:"balance"`
	Currency  string      `json:"currency"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Category struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	Name      string       `json:"name"`
	Type      CategoryType `json:"type"`
	Color     string       `json:"color"`
	Icon      string       `json:"icon"`
	IsSystem  bool         `json:"is_system"`
	CreatedAt time.Time    `json:"created_at"`
}

type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Date          time.Time       `json:"date"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	CategoryID    uuid.UUID       `json:"category_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Description   string          `json:"description"`
	Tags          []string        `json:"tags,omitempty"`
	TransferGroup *uuid.UUID      `json:"transfer_group,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Budget struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	CategoryID  uuid.UUID `json:"category_id"`
	Month       time.Time `json:"month"`
	LimitAmount int64     `json:"limit_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationMessage is immutable once created. Messages within a
// conversation are totally ordered by position and replayed to the model in
// exactly that order.
type ConversationMessage struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Role           MessageRole     `json:"role"`
	Content        string          `json:"content"`
	ImageURL       *string         `json:"image_url,omitempty"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID     *string         `json:"tool_call_id,omitempty"`
	ToolName       *string         `json:"tool_name,omitempty"`
	Position       int             `json:"position"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Proposal is a stored, user-reviewable draft of a ledger mutation.
// RevisedPayload may be set only while the status is pending or revised; once
// confirmed the payload, AppliedAt and ResultID are frozen.
type Proposal struct {
	ID              uuid.UUID       `json:"id"`
	ConversationID  uuid.UUID       `json:"conversation_id"`
	MessageID       uuid.UUID       `json:"message_id"`
	Kind            ProposalKind    `json:"kind"`
	Status          ProposalStatus  `json:"status"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	RevisedPayload  json.RawMessage `json:"revised_payload,omitempty"`
	AppliedAt       *time.Time      `json:"applied_at,omitempty"`
	ResultID        *string         `json:"result_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EffectivePayload returns the revised payload when present, otherwise the
// original one.
func (p Proposal) EffectivePayload() json.RawMessage {
	if len(p.RevisedPayload) > 0 {
		return p.RevisedPayload
	}
	return p.OriginalPayload
}

// Resolved reports whether the proposal reached a terminal status.
func (p Proposal) Resolved() bool {
	return p.Status == ProposalStatusConfirmed || p.Status == ProposalStatusDiscarded
}

type RefreshToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *uuid.UUID `json:"replaced_by,omitempty"`
}
