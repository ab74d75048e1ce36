package gateway

// Transaction types accepted by the backend.
const (
	TxDeposit  = "DEPOSIT"
	TxWithdraw = "WITHDRAW"
)

// Transaction statuses as the backend reports them.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// AdminStatuses lists statuses an admin may set directly.
var AdminStatuses = []string{StatusPending, StatusInProgress, StatusSuccess, StatusFailed, StatusCancelled}

// AgentStatuses lists statuses an agent may set through the process endpoint.
var AgentStatuses = []string{StatusInProgress, StatusSuccess, StatusFailed}

// Language is a selectable interface language.
type Language struct {
	Code   string
	Name   string
	Active bool
}

// Welcome is the localized greeting returned by the backend.
type Welcome struct {
	Message      string
	LanguageCode string
}

// DepositBank is a bank account players transfer deposits to.
type DepositBank struct {
	ID            int64
	Name          string
	AccountNumber string
	AccountName   string
	Notes         string
	Active        bool
}

// RequiredField describes one destination detail a withdrawal method needs.
type RequiredField struct {
	Name     string
	Label    string
	Type     string
	Required bool
}

// WithdrawalBank is a payout method. RequiredFields drives the runtime-sized
// collection loop in the withdraw flow.
type WithdrawalBank struct {
	ID             int64
	Name           string
	RequiredFields []RequiredField
	Notes          string
	Active         bool
}

// BettingSite is a site players hold accounts on.
type BettingSite struct {
	ID          int64
	Name        string
	Description string
	Website     string
	Active      bool
}

// Player is the backend's view of a chat user.
type Player struct {
	ID               int64
	UUID             string
	TelegramID       string
	TelegramUsername string
	LanguageCode     string
	Temporary        bool
}

// LoginResult carries the authenticated identity. Role is empty for plain
// players; agents and admins additionally receive an access token.
type LoginResult struct {
	AccessToken string
	Role        string
	PlayerUUID  string
	Message     string
}

// Transaction is the canonical transaction view used across the bot.
type Transaction struct {
	ID                int64
	UUID              string
	Type              string
	Amount            float64
	Currency          string
	Status            string
	DepositBank       *DepositBank
	WithdrawalBank    *WithdrawalBank
	WithdrawalAddress string
	ScreenshotURL     string
	BettingSiteID     int64
	PlayerSiteID      string
	AgentID           int64
	RequestedAt       string
	CreatedAt         string
	UpdatedAt         string
}

// Page describes list pagination as reported by the backend.
type Page struct {
	Page  int
	Limit int
	Total int
}

// Agent is an operator transactions can be assigned to.
type Agent struct {
	ID       int64
	Username string
	Assigned int
}

// AgentStats summarizes an agent's workload.
type AgentStats struct {
	Assigned   int
	InProgress int
	Completed  int
	Failed     int
}

// UploadConfig bounds receipt uploads as configured server-side.
type UploadConfig struct {
	MaxFileSize      int64
	AllowedMimeTypes []string
}

// CreatePlayerRequest creates a minimal (temporary) player record.
type CreatePlayerRequest struct {
	TelegramID       string
	TelegramUsername string
	LanguageCode     string
}

// RegisterPlayerRequest creates a full player account.
type RegisterPlayerRequest struct {
	CreatePlayerRequest
	Username    string
	Email       string
	Password    string
	DisplayName string
	Phone       string
}

// CreateTransactionRequest starts a deposit or withdrawal.
type CreateTransactionRequest struct {
	PlayerUUID        string
	Type              string
	Amount            float64
	Currency          string
	DepositBankID     int64
	WithdrawalBankID  int64
	WithdrawalAddress string
	BettingSiteID     int64
	PlayerSiteID      string
	// ScreenshotPath is a local file uploaded as multipart evidence.
	ScreenshotPath string
}

// ListFilter narrows admin and agent transaction lists.
type ListFilter struct {
	Page      int
	Limit     int
	Status    string
	Type      string
	AgentID   int64
	DateRange string
}
