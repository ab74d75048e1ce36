package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	coreconfig "github.com/m3rciful/betbot/core/config"
	"github.com/m3rciful/betbot/core/logger"
	"log/slog"
)

const maxErrorBody = 512

// Client talks to the betting-payments backend. All business truth lives
// there; the client only normalizes the wire format into canonical models.
type Client struct {
	base     string
	secret   string
	currency string
	http     *http.Client
}

// New builds a backend client from configuration.
func New(cfg coreconfig.BackendConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		secret:   cfg.Secret,
		currency: cfg.Currency,
		http:     &http.Client{Timeout: timeout},
	}
}

// Currency returns the configured transaction currency.
func (c *Client) Currency() string {
	return c.currency
}

type callOpts struct {
	query url.Values
	body  any
	token string
	write bool
}

func (c *Client) do(ctx context.Context, op, method, path string, opts callOpts) ([]byte, error) {
	endpoint := c.base + "/" + strings.TrimLeft(path, "/")
	if len(opts.query) > 0 {
		endpoint += "?" + opts.query.Encode()
	}

	var body io.Reader
	if opts.body != nil {
		payload, err := json.Marshal(opts.body)
		if err != nil {
			return nil, &Error{Op: op, Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("X-BACKEND-SECRET", c.secret)
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.write {
		// Lets an honoring backend dedup a double-submitted create.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	took := logger.Took(start)
	if err != nil {
		logger.GW.LogAttrs(ctx, slog.LevelError, "backend.call",
			slog.String("op", op),
			slog.String("status", "fail"),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.GW.LogAttrs(ctx, slog.LevelWarn, "backend.call",
			slog.String("op", op),
			slog.String("status", "fail"),
			slog.Int("http_code", resp.StatusCode),
			slog.Duration("duration", took),
		)
		return nil, &Error{Op: op, Status: resp.StatusCode, Body: logger.SanitizeLimit(string(data), maxErrorBody)}
	}

	logger.GW.LogAttrs(ctx, slog.LevelDebug, "backend.call",
		slog.String("op", op),
		slog.String("status", "ok"),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", took),
	)
	return data, nil
}

// Languages returns the selectable interface languages.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	data, err := c.do(ctx, "languages", http.MethodGet, "config/languages", callOpts{})
	if err != nil {
		return nil, err
	}
	return decodeLanguages(data), nil
}

// Welcome returns the localized greeting.
func (c *Client) Welcome(ctx context.Context, lang string) (Welcome, error) {
	q := url.Values{"lang": {lang}}
	data, err := c.do(ctx, "welcome", http.MethodGet, "config/welcome", callOpts{query: q})
	if err != nil {
		return Welcome{}, err
	}
	var raw struct {
		Message      string `json:"message"`
		LanguageCode string `json:"languageCode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Welcome{}, &Error{Op: "welcome", Err: err}
	}
	return Welcome{Message: raw.Message, LanguageCode: raw.LanguageCode}, nil
}

// Template fetches a localized message template by key.
func (c *Client) Template(ctx context.Context, key, lang string) (string, error) {
	q := url.Values{"key": {key}, "lang": {lang}}
	data, err := c.do(ctx, "template", http.MethodGet, "config/template", callOpts{query: q})
	if err != nil {
		return "", err
	}
	var raw struct {
		Message string `json:"message"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", &Error{Op: "template", Err: err}
	}
	if raw.Message != "" {
		return raw.Message, nil
	}
	return raw.Text, nil
}

// DepositBanks lists banks accepting deposits.
func (c *Client) DepositBanks(ctx context.Context) ([]DepositBank, error) {
	data, err := c.do(ctx, "deposit_banks", http.MethodGet, "config/deposit-banks", callOpts{})
	if err != nil {
		return nil, err
	}
	return decodeDepositBanks(data), nil
}

// WithdrawalBanks lists payout methods with their required fields.
func (c *Client) WithdrawalBanks(ctx context.Context) ([]WithdrawalBank, error) {
	data, err := c.do(ctx, "withdrawal_banks", http.MethodGet, "config/withdrawal-banks", callOpts{})
	if err != nil {
		return nil, err
	}
	return decodeWithdrawalBanks(data), nil
}

// BettingSites lists active betting sites.
func (c *Client) BettingSites(ctx context.Context) ([]BettingSite, error) {
	q := url.Values{"isActive": {"true"}}
	data, err := c.do(ctx, "betting_sites", http.MethodGet, "config/betting-sites", callOpts{query: q})
	if err != nil {
		return nil, err
	}
	return decodeBettingSites(data, true), nil
}

// Login authenticates by username and password.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	payload := map[string]string{"username": username, "password": password}
	data, err := c.do(ctx, "login", http.MethodPost, "auth/login", callOpts{body: payload, write: true})
	if err != nil {
		return LoginResult{}, err
	}
	var raw struct {
		AccessToken string `json:"accessToken"`
		Role        string `json:"role"`
		PlayerUUID  string `json:"playerUuid"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LoginResult{}, &Error{Op: "login", Err: err}
	}
	return LoginResult{
		AccessToken: raw.AccessToken,
		Role:        strings.ToLower(raw.Role),
		PlayerUUID:  raw.PlayerUUID,
		Message:     raw.Message,
	}, nil
}

// Logout invalidates the backend session behind the token. Best-effort for
// callers: an error here must not block clearing the local session, so the
// adapter only reports it.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, "logout", http.MethodPost, "auth/logout", callOpts{body: map[string]string{}, token: token})
	return err
}

// PlayerByTelegramUser resolves the player linked to a Telegram user id.
func (c *Client) PlayerByTelegramUser(ctx context.Context, userID int64) (Player, error) {
	path := fmt.Sprintf("players/user/%d", userID)
	data, err := c.do(ctx, "player_by_user", http.MethodGet, path, callOpts{})
	if err != nil {
		return Player{}, err
	}
	return decodePlayerResponse("player_by_user", data)
}

func decodePlayerResponse(op string, data []byte) (Player, error) {
	var raw struct {
		Player rawPlayer `json:"player"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Player{}, &Error{Op: op, Err: err}
	}
	return raw.Player.toPlayer(), nil
}

// CreatePlayer creates a temporary player bound to the chat.
func (c *Client) CreatePlayer(ctx context.Context, req CreatePlayerRequest) (Player, error) {
	payload := map[string]any{
		"telegramId":   req.TelegramID,
		"languageCode": req.LanguageCode,
	}
	if req.TelegramUsername != "" {
		payload["telegramUsername"] = req.TelegramUsername
	}
	data, err := c.do(ctx, "create_player", http.MethodPost, "players", callOpts{body: payload, write: true})
	if err != nil {
		return Player{}, err
	}
	return decodePlayerResponse("create_player", data)
}

// RegisterPlayer creates a full player account.
func (c *Client) RegisterPlayer(ctx context.Context, req RegisterPlayerRequest) (Player, error) {
	payload := map[string]any{
		"telegramId":   req.TelegramID,
		"languageCode": req.LanguageCode,
		"username":     req.Username,
		"email":        req.Email,
		"password":     req.Password,
		"displayName":  req.DisplayName,
	}
	if req.TelegramUsername != "" {
		payload["telegramUsername"] = req.TelegramUsername
	}
	if req.Phone != "" {
		payload["phone"] = req.Phone
	}
	data, err := c.do(ctx, "register_player", http.MethodPost, "players/register", callOpts{body: payload, write: true})
	if err != nil {
		return Player{}, err
	}
	return decodePlayerResponse("register_player", data)
}

// CreateTransaction starts a deposit or withdrawal. A set ScreenshotPath is
// uploaded as multipart evidence alongside the fields.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (Transaction, error) {
	if req.Currency == "" {
		req.Currency = c.currency
	}
	if req.ScreenshotPath != "" {
		return c.createTransactionMultipart(ctx, req)
	}

	payload := map[string]any{
		"playerUuid":    req.PlayerUUID,
		"type":          req.Type,
		"amount":        req.Amount,
		"currency":      req.Currency,
		"bettingSiteId": req.BettingSiteID,
		"playerSiteId":  req.PlayerSiteID,
	}
	if req.DepositBankID != 0 {
		payload["depositBankId"] = req.DepositBankID
	}
	if req.WithdrawalBankID != 0 {
		payload["withdrawalBankId"] = req.WithdrawalBankID
	}
	if req.WithdrawalAddress != "" {
		payload["withdrawalAddress"] = req.WithdrawalAddress
	}
	data, err := c.do(ctx, "create_transaction", http.MethodPost, "transactions", callOpts{body: payload, write: true})
	if err != nil {
		return Transaction{}, err
	}
	return decodeTransactionResponse("create_transaction", data)
}

func (c *Client) createTransactionMultipart(ctx context.Context, req CreateTransactionRequest) (Transaction, error) {
	const op = "create_transaction"

	file, err := os.Open(req.ScreenshotPath)
	if err != nil {
		return Transaction{}, &Error{Op: op, Err: err}
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := map[string]string{
		"playerUuid":    req.PlayerUUID,
		"type":          req.Type,
		"amount":        strconv.FormatFloat(req.Amount, 'f', -1, 64),
		"currency":      req.Currency,
		"bettingSiteId": strconv.FormatInt(req.BettingSiteID, 10),
		"playerSiteId":  req.PlayerSiteID,
	}
	if req.DepositBankID != 0 {
		fields["depositBankId"] = strconv.FormatInt(req.DepositBankID, 10)
	}
	if req.WithdrawalBankID != 0 {
		fields["withdrawalBankId"] = strconv.FormatInt(req.WithdrawalBankID, 10)
	}
	if req.WithdrawalAddress != "" {
		fields["withdrawalAddress"] = req.WithdrawalAddress
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return Transaction{}, &Error{Op: op, Err: err}
		}
	}
	part, err := form.CreateFormFile("screenshot", filepath.Base(req.ScreenshotPath))
	if err != nil {
		return Transaction{}, &Error{Op: op, Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return Transaction{}, &Error{Op: op, Err: err}
	}
	if err := form.Close(); err != nil {
		return Transaction{}, &Error{Op: op, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transactions", &buf)
	if err != nil {
		return Transaction{}, &Error{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Idempotency-Key", uuid.NewString())
	if c.secret != "" {
		httpReq.Header.Set("X-BACKEND-SECRET", c.secret)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	took := time.Since(start)
	if err != nil {
		logger.GW.LogAttrs(ctx, slog.LevelError, "backend.call",
			slog.String("op", op),
			slog.String("status", "fail"),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return Transaction{}, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transaction{}, &Error{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Transaction{}, &Error{Op: op, Status: resp.StatusCode, Body: logger.SanitizeLimit(string(data), maxErrorBody)}
	}
	logger.GW.LogAttrs(ctx, slog.LevelDebug, "backend.call",
		slog.String("op", op),
		slog.String("status", "ok"),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return decodeTransactionResponse(op, data)
}

func decodeTransactionResponse(op string, data []byte) (Transaction, error) {
	var raw struct {
		Transaction rawTransaction `json:"transaction"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Transaction{}, &Error{Op: op, Err: err}
	}
	return raw.Transaction.toTransaction(), nil
}

// Transactions lists a player's own transactions.
func (c *Client) Transactions(ctx context.Context, playerUUID string, page, limit int) ([]Transaction, Page, error) {
	q := url.Values{
		"playerUuid": {playerUUID},
		"page":       {strconv.Itoa(page)},
		"limit":      {strconv.Itoa(limit)},
	}
	data, err := c.do(ctx, "transactions", http.MethodGet, "transactions", callOpts{query: q})
	if err != nil {
		return nil, Page{}, err
	}
	txs, pg := decodeTransactions(data)
	return txs, pg, nil
}

func listQuery(f ListFilter) url.Values {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	q := url.Values{
		"page":  {strconv.Itoa(f.Page)},
		"limit": {strconv.Itoa(f.Limit)},
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.AgentID != 0 {
		q.Set("agent", strconv.FormatInt(f.AgentID, 10))
	}
	if f.DateRange != "" {
		q.Set("dateRange", f.DateRange)
	}
	return q
}

// AdminTransactions lists transactions across all players (admin only).
func (c *Client) AdminTransactions(ctx context.Context, token string, f ListFilter) ([]Transaction, Page, error) {
	data, err := c.do(ctx, "admin_transactions", http.MethodGet, "admin/transactions", callOpts{query: listQuery(f), token: token})
	if err != nil {
		return nil, Page{}, err
	}
	txs, pg := decodeTransactions(data)
	return txs, pg, nil
}

// AssignAgent assigns a transaction to an agent (admin only).
func (c *Client) AssignAgent(ctx context.Context, token string, txID, agentID int64) (Transaction, error) {
	path := fmt.Sprintf("admin/transactions/%d/assign", txID)
	payload := map[string]int64{"agentId": agentID}
	data, err := c.do(ctx, "assign_agent", http.MethodPut, path, callOpts{body: payload, token: token, write: true})
	if err != nil {
		return Transaction{}, err
	}
	return decodeTransactionResponse("assign_agent", data)
}

// SetStatus updates a transaction status directly (admin only).
func (c *Client) SetStatus(ctx context.Context, token string, txID int64, status, notes string) (Transaction, error) {
	path := fmt.Sprintf("admin/transactions/%d/status", txID)
	payload := map[string]string{"status": status}
	if notes != "" {
		payload["adminNotes"] = notes
	}
	data, err := c.do(ctx, "set_status", http.MethodPut, path, callOpts{body: payload, token: token, write: true})
	if err != nil {
		return Transaction{}, err
	}
	return decodeTransactionResponse("set_status", data)
}

// Agents lists agents with workload counters (admin only).
func (c *Client) Agents(ctx context.Context, token string) ([]Agent, error) {
	data, err := c.do(ctx, "agents", http.MethodGet, "admin/agents", callOpts{token: token})
	if err != nil {
		return nil, err
	}
	items, err := decodeList(data, "agents", "data")
	if err != nil {
		return nil, &Error{Op: "agents", Err: err}
	}
	agents := make([]Agent, 0, len(items))
	for _, item := range items {
		var raw struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			Assigned int    `json:"assigned"`
		}
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		if raw.ID == 0 {
			continue
		}
		agents = append(agents, Agent{ID: raw.ID, Username: raw.Username, Assigned: raw.Assigned})
	}
	return agents, nil
}

// AgentTasks lists transactions assigned to the calling agent.
func (c *Client) AgentTasks(ctx context.Context, token string, f ListFilter) ([]Transaction, Page, error) {
	data, err := c.do(ctx, "agent_tasks", http.MethodGet, "agent/tasks", callOpts{query: listQuery(f), token: token})
	if err != nil {
		return nil, Page{}, err
	}
	txs, pg := decodeTransactions(data)
	return txs, pg, nil
}

// ProcessTransaction moves an assigned transaction through the agent statuses.
func (c *Client) ProcessTransaction(ctx context.Context, token string, txID int64, status, notes string) (Transaction, error) {
	path := fmt.Sprintf("agent/transactions/%d/process", txID)
	payload := map[string]string{"status": status}
	if notes != "" {
		payload["agentNotes"] = notes
	}
	data, err := c.do(ctx, "process_transaction", http.MethodPut, path, callOpts{body: payload, token: token, write: true})
	if err != nil {
		return Transaction{}, err
	}
	return decodeTransactionResponse("process_transaction", data)
}

// AgentStats returns the calling agent's workload summary.
func (c *Client) AgentStats(ctx context.Context, token string) (AgentStats, error) {
	data, err := c.do(ctx, "agent_stats", http.MethodGet, "agent/stats", callOpts{token: token})
	if err != nil {
		return AgentStats{}, err
	}
	var raw struct {
		Assigned   int `json:"assigned"`
		InProgress int `json:"inProgress"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return AgentStats{}, &Error{Op: "agent_stats", Err: err}
	}
	return AgentStats{
		Assigned:   raw.Assigned,
		InProgress: raw.InProgress,
		Completed:  raw.Completed,
		Failed:     raw.Failed,
	}, nil
}

// UploadConfig fetches server-side upload limits.
func (c *Client) UploadConfig(ctx context.Context) (UploadConfig, error) {
	data, err := c.do(ctx, "upload_config", http.MethodGet, "uploads/config", callOpts{})
	if err != nil {
		return UploadConfig{}, err
	}
	var raw struct {
		MaxFileSize      int64    `json:"maxFileSize"`
		AllowedMimeTypes []string `json:"allowedMimeTypes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return UploadConfig{}, &Error{Op: "upload_config", Err: err}
	}
	return UploadConfig{MaxFileSize: raw.MaxFileSize, AllowedMimeTypes: raw.AllowedMimeTypes}, nil
}
