package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDepositBanksEnvelopeVariants(t *testing.T) {
	bare := `[{"id":1,"bankName":"CBE","accountNumber":"1000","accountName":"Ops"}]`
	keyed := `{"depositBanks":[{"id":1,"bankName":"CBE","accountNumber":"1000","accountName":"Ops"}]}`
	fallback := `{"data":[{"id":1,"bankName":"CBE","accountNumber":"1000","accountName":"Ops"}]}`

	for _, payload := range []string{bare, keyed, fallback} {
		banks := decodeDepositBanks([]byte(payload))
		require.Len(t, banks, 1, "payload: %s", payload)
		assert.Equal(t, int64(1), banks[0].ID)
		assert.Equal(t, "CBE", banks[0].Name)
		assert.True(t, banks[0].Active)
	}
}

func TestDecodeDepositBanksNameTypo(t *testing.T) {
	payload := `[{"id":2,"bankNamee":"Awash","accountNumber":"2000","accountName":"Ops"}]`
	banks := decodeDepositBanks([]byte(payload))
	require.Len(t, banks, 1)
	assert.Equal(t, "Awash", banks[0].Name)
}

func TestDecodeDepositBanksSkipsInvalid(t *testing.T) {
	payload := `[{"accountNumber":"3000"},{"id":3,"bankName":"Dashen","isActive":false}]`
	banks := decodeDepositBanks([]byte(payload))
	require.Len(t, banks, 1)
	assert.Equal(t, "Dashen", banks[0].Name)
	assert.False(t, banks[0].Active)
}

func TestDecodeWithdrawalBanksRequiredFieldsString(t *testing.T) {
	payload := `[{"id":4,"bankName":"Telebirr","requiredFields":"[{\"name\":\"phone\",\"label\":\"Phone number\",\"type\":\"text\",\"required\":true}]"}]`
	banks := decodeWithdrawalBanks([]byte(payload))
	require.Len(t, banks, 1)
	require.Len(t, banks[0].RequiredFields, 1)
	assert.Equal(t, "phone", banks[0].RequiredFields[0].Name)
	assert.Equal(t, "Phone number", banks[0].RequiredFields[0].Label)
	assert.True(t, banks[0].RequiredFields[0].Required)
}

func TestDecodeWithdrawalBanksRequiredFieldsVariants(t *testing.T) {
	asArray := `[{"id":5,"bankName":"CBE","requiredFields":[{"name":"account","label":"Account","type":"text","required":true}]}]`
	banks := decodeWithdrawalBanks([]byte(asArray))
	require.Len(t, banks, 1)
	require.Len(t, banks[0].RequiredFields, 1)

	garbage := `[{"id":6,"bankName":"CBE","requiredFields":"not json"}]`
	banks = decodeWithdrawalBanks([]byte(garbage))
	require.Len(t, banks, 1)
	assert.Empty(t, banks[0].RequiredFields)

	missing := `[{"id":7,"bankName":"CBE"}]`
	banks = decodeWithdrawalBanks([]byte(missing))
	require.Len(t, banks, 1)
	assert.Empty(t, banks[0].RequiredFields)
}

func TestFlexAmountVariants(t *testing.T) {
	cases := []struct {
		payload string
		want    float64
	}{
		{`{"id":1,"transactionUuid":"u","type":"DEPOSIT","amount":250,"currency":"ETB","status":"PENDING"}`, 250},
		{`{"id":1,"transactionUuid":"u","type":"DEPOSIT","amount":250.5,"currency":"ETB","status":"PENDING"}`, 250.5},
		{`{"id":1,"transactionUuid":"u","type":"DEPOSIT","amount":"250","currency":"ETB","status":"PENDING"}`, 250},
		{`{"id":1,"transactionUuid":"u","type":"DEPOSIT","amount":null,"currency":"ETB","status":"PENDING"}`, 0},
	}
	for _, tc := range cases {
		txs, _ := decodeTransactions([]byte(`{"transactions":[` + tc.payload + `],"pagination":{"page":1,"limit":10,"total":1}}`))
		require.Len(t, txs, 1, "payload: %s", tc.payload)
		assert.Equal(t, tc.want, txs[0].Amount, "payload: %s", tc.payload)
	}
}

func TestDecodeTransactionsPagination(t *testing.T) {
	payload := `{"transactions":[],"pagination":{"page":2,"limit":20,"total":57}}`
	txs, page := decodeTransactions([]byte(payload))
	assert.Empty(t, txs)
	assert.Equal(t, Page{Page: 2, Limit: 20, Total: 57}, page)
}

func TestDecodeBettingSitesFiltersInactive(t *testing.T) {
	payload := `{"bettingSites":[{"id":1,"name":"hulusport","isActive":true},{"id":2,"name":"closed","isActive":false}]}`
	sites := decodeBettingSites([]byte(payload), true)
	require.Len(t, sites, 1)
	assert.Equal(t, "hulusport", sites[0].Name)
}
