package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The backend is not consistent about field naming or value types. Every
// quirk is normalized here so the rest of the bot only ever sees the
// canonical models:
//
//   - bank name arrives as "bankName" or, from older rows, "bankNamee"
//   - requiredFields arrives as a JSON array or as a JSON-encoded string
//   - amount arrives as a number or a string
//   - list endpoints answer with a bare array or an envelope object

// flexAmount accepts a JSON number or a numeric string.
type flexAmount float64

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || string(data) == "null" {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*a = flexAmount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = flexAmount(v)
	return nil
}

// flexFields accepts a JSON array of required fields or the same array
// encoded as a string. Anything unparsable degrades to an empty list.
type flexFields []RequiredField

type rawRequiredField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

func (f *flexFields) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || string(data) == "null" {
		*f = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = nil
			return nil
		}
		data = []byte(s)
	}
	var raw []rawRequiredField
	if err := json.Unmarshal(data, &raw); err != nil {
		*f = nil
		return nil
	}
	out := make(flexFields, 0, len(raw))
	for _, r := range raw {
		out = append(out, RequiredField{
			Name:     r.Name,
			Label:    r.Label,
			Type:     r.Type,
			Required: r.Required,
		})
	}
	*f = out
	return nil
}

// optBool defaults to true when the backend omits the flag.
type optBool struct {
	set   bool
	value bool
}

func (b *optBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	b.set = true
	b.value = v
	return nil
}

func (b optBool) orTrue() bool {
	if !b.set {
		return true
	}
	return b.value
}

type rawBank struct {
	ID            int64      `json:"id"`
	BankName      string     `json:"bankName"`
	BankNamee     string     `json:"bankNamee"`
	AccountNumber string     `json:"accountNumber"`
	AccountName   string     `json:"accountName"`
	Notes         string     `json:"notes"`
	IsActive      optBool    `json:"isActive"`
	Required      flexFields `json:"requiredFields"`
}

func (r rawBank) name() string {
	if r.BankName != "" {
		return r.BankName
	}
	return r.BankNamee
}

func (r rawBank) toDeposit() (DepositBank, bool) {
	name := r.name()
	if r.ID == 0 || name == "" {
		return DepositBank{}, false
	}
	return DepositBank{
		ID:            r.ID,
		Name:          name,
		AccountNumber: r.AccountNumber,
		AccountName:   r.AccountName,
		Notes:         r.Notes,
		Active:        r.IsActive.orTrue(),
	}, true
}

func (r rawBank) toWithdrawal() (WithdrawalBank, bool) {
	name := r.name()
	if r.ID == 0 || name == "" {
		return WithdrawalBank{}, false
	}
	return WithdrawalBank{
		ID:             r.ID,
		Name:           name,
		RequiredFields: []RequiredField(r.Required),
		Notes:          r.Notes,
		Active:         r.IsActive.orTrue(),
	}, true
}

type rawSite struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Website     string  `json:"website"`
	IsActive    optBool `json:"isActive"`
}

type rawLanguage struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	IsActive optBool `json:"isActive"`
}

type rawPlayer struct {
	ID               int64  `json:"id"`
	PlayerUUID       string `json:"playerUuid"`
	TelegramID       string `json:"telegramId"`
	TelegramUsername string `json:"telegramUsername"`
	LanguageCode     string `json:"languageCode"`
	IsTemporary      bool   `json:"isTemporary"`
}

func (r rawPlayer) toPlayer() Player {
	return Player{
		ID:               r.ID,
		UUID:             r.PlayerUUID,
		TelegramID:       r.TelegramID,
		TelegramUsername: r.TelegramUsername,
		LanguageCode:     r.LanguageCode,
		Temporary:        r.IsTemporary,
	}
}

type rawTransaction struct {
	ID                int64      `json:"id"`
	TransactionUUID   string     `json:"transactionUuid"`
	Type              string     `json:"type"`
	Amount            flexAmount `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	DepositBank       *rawBank   `json:"depositBank"`
	WithdrawalBank    *rawBank   `json:"withdrawalBank"`
	WithdrawalAddress string     `json:"withdrawalAddress"`
	ScreenshotURL     string     `json:"screenshotUrl"`
	BettingSiteID     int64      `json:"bettingSiteId"`
	PlayerSiteID      string     `json:"playerSiteId"`
	AgentID           int64      `json:"agentId"`
	RequestedAt       string     `json:"requestedAt"`
	CreatedAt         string     `json:"createdAt"`
	UpdatedAt         string     `json:"updatedAt"`
}

func (r rawTransaction) toTransaction() Transaction {
	tx := Transaction{
		ID:                r.ID,
		UUID:              r.TransactionUUID,
		Type:              r.Type,
		Amount:            float64(r.Amount),
		Currency:          r.Currency,
		Status:            r.Status,
		WithdrawalAddress: r.WithdrawalAddress,
		ScreenshotURL:     r.ScreenshotURL,
		BettingSiteID:     r.BettingSiteID,
		PlayerSiteID:      r.PlayerSiteID,
		AgentID:           r.AgentID,
		RequestedAt:       r.RequestedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.DepositBank != nil {
		if bank, ok := r.DepositBank.toDeposit(); ok {
			tx.DepositBank = &bank
		}
	}
	if r.WithdrawalBank != nil {
		if bank, ok := r.WithdrawalBank.toWithdrawal(); ok {
			tx.WithdrawalBank = &bank
		}
	}
	return tx
}

type rawPage struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func (r rawPage) toPage() Page {
	return Page{Page: r.Page, Limit: r.Limit, Total: r.Total}
}

// decodeList unwraps a bare JSON array or an envelope object, trying the
// given keys in order.
func decodeList(data []byte, keys ...string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	for _, key := range keys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

func decodeDepositBanks(data []byte) []DepositBank {
	items, err := decodeList(data, "depositBanks", "banks", "data")
	if err != nil {
		return nil
	}
	banks := make([]DepositBank, 0, len(items))
	for _, item := range items {
		var raw rawBank
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		if bank, ok := raw.toDeposit(); ok {
			banks = append(banks, bank)
		}
	}
	return banks
}

func decodeWithdrawalBanks(data []byte) []WithdrawalBank {
	items, err := decodeList(data, "withdrawalBanks", "banks", "data")
	if err != nil {
		return nil
	}
	banks := make([]WithdrawalBank, 0, len(items))
	for _, item := range items {
		var raw rawBank
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		if bank, ok := raw.toWithdrawal(); ok {
			banks = append(banks, bank)
		}
	}
	return banks
}

func decodeBettingSites(data []byte, activeOnly bool) []BettingSite {
	items, err := decodeList(data, "bettingSites", "sites", "data")
	if err != nil {
		return nil
	}
	sites := make([]BettingSite, 0, len(items))
	for _, item := range items {
		var raw rawSite
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		if raw.ID == 0 || raw.Name == "" {
			continue
		}
		site := BettingSite{
			ID:          raw.ID,
			Name:        raw.Name,
			Description: raw.Description,
			Website:     raw.Website,
			Active:      raw.IsActive.orTrue(),
		}
		if activeOnly && !site.Active {
			continue
		}
		sites = append(sites, site)
	}
	return sites
}

func decodeLanguages(data []byte) []Language {
	items, err := decodeList(data, "languages", "data")
	if err != nil {
		return nil
	}
	langs := make([]Language, 0, len(items))
	for _, item := range items {
		var raw rawLanguage
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		if raw.Code == "" {
			continue
		}
		langs = append(langs, Language{Code: raw.Code, Name: raw.Name, Active: raw.IsActive.orTrue()})
	}
	return langs
}

func decodeTransactions(data []byte) ([]Transaction, Page) {
	var envelope struct {
		Transactions []rawTransaction `json:"transactions"`
		Pagination   rawPage          `json:"pagination"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, Page{}
	}
	txs := make([]Transaction, 0, len(envelope.Transactions))
	for _, raw := range envelope.Transactions {
		txs = append(txs, raw.toTransaction())
	}
	return txs, envelope.Pagination.toPage()
}
