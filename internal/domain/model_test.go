package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayment_CantidadIsANumber(t *testing.T) {
	raw, err := json.Marshal(Payment{Pagado: true, Cantidad: decimal.RequireFromString("3.50")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pagado":true,"cantidad":3.5,"fechaPago":null}`, string(raw))

	// records written before still decode
	var p Payment
	require.NoError(t, json.Unmarshal([]byte(`{"pagado":false,"cantidad":"2"}`), &p))
	assert.True(t, p.Cantidad.Equal(decimal.NewFromInt(2)))
}

func TestTrade_Players(t *testing.T) {
	tr := Trade{ProposerPlayers: []string{"p1", "p2"}, ReceiverPlayers: []string{"p3"}}
	assert.Equal(t, []string{"p1", "p2", "p3"}, tr.Players())
	assert.Empty(t, Trade{}.Players())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "dubai-city-fc", Slug("Dubai cITY FC"))
	assert.Equal(t, "alcatamy-esports-by-rolex", Slug("Alcatamy  eSports by Rolex"))
}
