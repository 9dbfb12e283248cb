package chain

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakingctl/internal/config"
)

func TestCreatorTransactionsFollowsNextToken(t *testing.T) {
	const creator = "SU67XB2WWUHVKWQKNXNGF7MF2YEYPIRDSXHEPEONO3HGBTBIU7TOR2XQWM"
	prefix := []byte("ALGOKIT_DEPLOYER:")

	pages := map[string]models.TransactionsResponse{
		"": {
			CurrentRound: 10,
			NextToken:    "page-2",
			Transactions: []models.Transaction{{Id: "tx-1", Sender: creator, CreatedApplicationIndex: 101}},
		},
		"page-2": {
			CurrentRound: 10,
			NextToken:    "page-3",
			Transactions: []models.Transaction{
				{Id: "tx-2", Sender: creator, CreatedApplicationIndex: 102},
				{Id: "tx-3", Sender: creator, CreatedApplicationIndex: 103},
			},
		},
		"page-3": {CurrentRound: 10},
	}

	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/transactions" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		assert.Equal(t, creator, q.Get("address"))
		assert.Equal(t, "sender", q.Get("address-role"))
		assert.Equal(t, "appl", q.Get("tx-type"))
		assert.Equal(t, base64.StdEncoding.EncodeToString(prefix), q.Get("note-prefix"))

		next := q.Get("next")
		mu.Lock()
		seen = append(seen, next)
		mu.Unlock()

		page, ok := pages[next]
		if !ok {
			http.Error(w, "unknown token", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(json.Encode(page))
	}))
	defer srv.Close()

	clients, err := NewClients(config.Endpoint{Server: srv.URL}, config.Endpoint{Server: srv.URL})
	require.NoError(t, err)

	txns, err := clients.Indexer.CreatorTransactions(context.Background(), creator, prefix)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, []string{txns[0].Id, txns[1].Id, txns[2].Id})
	assert.Equal(t, uint64(103), txns[2].CreatedApplicationIndex)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "page-2", "page-3"}, seen)
}

func TestCreatorTransactionsStopsWithoutToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write(json.Encode(models.TransactionsResponse{
			Transactions: []models.Transaction{{Id: "only"}},
		}))
	}))
	defer srv.Close()

	clients, err := NewClients(config.Endpoint{Server: srv.URL}, config.Endpoint{Server: srv.URL})
	require.NoError(t, err)

	txns, err := clients.Indexer.CreatorTransactions(context.Background(), "creator", nil)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 1, calls)
}
