package editor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"portfolioalerts/internal/client"
	"portfolioalerts/internal/models"
)

// alertServer records every set_alert body and fails the request whose
// 1-based position equals failAt.
type alertServer struct {
	mu      sync.Mutex
	coins   []models.OwnedCoin
	posted  []models.AlertDraft
	failAt  int
	coinErr bool
}

func (s *alertServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/get-owned-coins":
		if s.coinErr {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(s.coins)
	case r.Method == http.MethodPost && r.URL.Path == "/api/set_alert":
		var d models.AlertDraft
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.posted = append(s.posted, d)
		if len(s.posted) == s.failAt {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"An active alert already exists"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Alert set successfully!", "alert_id": len(s.posted)})
	default:
		http.NotFound(w, r)
	}
}

func (s *alertServer) postedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posted)
}

func newEditor(t *testing.T, srv *alertServer) *Editor {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c, err := client.New(ts.URL, client.WithUserID("user-1"))
	require.NoError(t, err)
	return New(c, zaptest.NewLogger(t))
}

func threeCoins() []models.OwnedCoin {
	return []models.OwnedCoin{
		{Name: "Bitcoin", Abbreviation: "BTC"},
		{Name: "Ether", Abbreviation: "ETH"},
		{Name: "Solana", Abbreviation: "SOL"},
	}
}

func TestOpenRendersOneFormPerCoin(t *testing.T) {
	e := newEditor(t, &alertServer{coins: threeCoins()})

	forms, err := e.Open(context.Background())
	require.NoError(t, err)
	require.Len(t, forms, 3)

	assert.Equal(t, "alert-BTC", forms[0].GroupName)
	assert.Equal(t, "alert-BTC-more", forms[0].MoreID)
	assert.Equal(t, "alert-BTC-less", forms[0].LessID)
	assert.Equal(t, "alert-value-BTC", forms[0].ValueID)
}

func TestOpenSkipsMissingAndDuplicateAbbreviations(t *testing.T) {
	coins := []models.OwnedCoin{
		{Name: "Bitcoin", Abbreviation: "BTC"},
		{Name: "Nameless", Abbreviation: ""},
		{Name: "Bitcoin again", Abbreviation: "btc"},
		{Name: "Ether", Abbreviation: "ETH"},
	}
	e := newEditor(t, &alertServer{coins: coins})

	forms, err := e.Open(context.Background())
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "Bitcoin", forms[0].Coin.Name)
	assert.Equal(t, "Ether", forms[1].Coin.Name)
}

func TestOpenFailureLeavesListEmpty(t *testing.T) {
	e := newEditor(t, &alertServer{coinErr: true})

	forms, err := e.Open(context.Background())
	require.Error(t, err)
	assert.Empty(t, forms)
	assert.Empty(t, e.Forms())
	assert.Equal(t, http.StatusInternalServerError, client.StatusCode(err))
}

func TestSearchKeepsInputsAcrossRenders(t *testing.T) {
	e := newEditor(t, &alertServer{coins: threeCoins()})
	_, err := e.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Select("ETH", models.AlertLess))
	require.NoError(t, e.SetValue("ETH", "1500"))

	forms := e.Search("et")
	require.Len(t, forms, 1)
	assert.Equal(t, "Ether", forms[0].Coin.Name)

	forms = e.Search("")
	require.Len(t, forms, 3)
	assert.Equal(t, models.AlertLess, forms[1].Direction)
	assert.Equal(t, "1500", forms[1].Value)
}

func TestSelectIsExclusivePerCoin(t *testing.T) {
	e := newEditor(t, &alertServer{coins: threeCoins()})
	_, err := e.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Select("BTC", models.AlertMore))
	require.NoError(t, e.Select("BTC", models.AlertLess))
	assert.Equal(t, models.AlertLess, e.Forms()[0].Direction)

	assert.Error(t, e.Select("BTC", "sideways"))
	assert.Error(t, e.Select("DOGE", models.AlertMore))
}

func TestDraftsOnlyForCompleteRows(t *testing.T) {
	e := newEditor(t, &alertServer{coins: threeCoins()})
	_, err := e.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Select("BTC", models.AlertMore))
	require.NoError(t, e.SetValue("BTC", "70000.5"))
	require.NoError(t, e.Select("ETH", models.AlertLess)) // no value
	require.NoError(t, e.SetValue("SOL", "150"))          // no direction

	drafts, err := e.Drafts()
	require.NoError(t, err)
	assert.Equal(t, []models.AlertDraft{{
		Name:           "Bitcoin",
		Cryptocurrency: "BTC",
		AlertType:      models.AlertMore,
		Threshold:      70000.5,
	}}, drafts)
}

func TestInvalidThresholdsAreNeverSent(t *testing.T) {
	for _, raw := range []string{"0", "-5", "abc", "1e", "0.000", "1e-400", "1e400"} {
		t.Run(raw, func(t *testing.T) {
			srv := &alertServer{coins: threeCoins()}
			e := newEditor(t, srv)
			_, err := e.Open(context.Background())
			require.NoError(t, err)

			require.NoError(t, e.Select("BTC", models.AlertMore))
			require.NoError(t, e.SetValue("BTC", "100"))
			require.NoError(t, e.Select("ETH", models.AlertMore))
			require.NoError(t, e.SetValue("ETH", raw))

			res, err := e.Save(context.Background())
			require.Error(t, err)

			var vErr *client.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "alert-value-ETH", vErr.Field)
			assert.Contains(t, res.Message, "Ether")
			assert.Zero(t, srv.postedCount())
		})
	}
}

func TestSaveSendsSequentially(t *testing.T) {
	srv := &alertServer{coins: threeCoins()}
	e := newEditor(t, srv)
	_, err := e.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Select("BTC", models.AlertMore))
	require.NoError(t, e.SetValue("BTC", "100000"))
	require.NoError(t, e.Select("SOL", models.AlertLess))
	require.NoError(t, e.SetValue("SOL", "90"))

	res, err := e.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveSuccessMessage, res.Message)
	assert.Equal(t, []int64{1, 2}, res.Submitted)

	require.Len(t, srv.posted, 2)
	assert.Equal(t, "BTC", srv.posted[0].Cryptocurrency)
	assert.Equal(t, "SOL", srv.posted[1].Cryptocurrency)
	assert.Equal(t, "Solana", srv.posted[1].Name)
}

func TestSaveAbortsOnFirstFailure(t *testing.T) {
	srv := &alertServer{coins: threeCoins(), failAt: 2}
	e := newEditor(t, srv)
	_, err := e.Open(context.Background())
	require.NoError(t, err)

	for _, abbr := range []string{"BTC", "ETH", "SOL"} {
		require.NoError(t, e.Select(abbr, models.AlertMore))
		require.NoError(t, e.SetValue(abbr, "10"))
	}

	res, err := e.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, SaveFailureMessage, res.Message)
	assert.Equal(t, []int64{1}, res.Submitted)
	require.NotNil(t, res.Failed)
	assert.Equal(t, "ETH", res.Failed.Cryptocurrency)
	assert.Equal(t, 2, srv.postedCount())
	assert.Equal(t, http.StatusConflict, client.StatusCode(err))
}

func TestSaveWithNothingSelected(t *testing.T) {
	srv := &alertServer{coins: threeCoins()}
	e := newEditor(t, srv)
	_, err := e.Open(context.Background())
	require.NoError(t, err)

	res, err := e.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NothingToSave, res.Message)
	assert.Zero(t, srv.postedCount())
}

func TestCloseClearsSession(t *testing.T) {
	e := newEditor(t, &alertServer{coins: threeCoins()})
	_, err := e.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, e.SetValue("BTC", "5"))

	e.Close()

	assert.False(t, e.IsOpen())
	assert.Nil(t, e.Forms())
	assert.ErrorIs(t, e.SetValue("BTC", "5"), ErrClosed)

	_, err = e.Open(context.Background())
	require.NoError(t, err)
	assert.Empty(t, e.Forms()[0].Value)
}

// blockingCoins holds the owned coins response until released.
type blockingCoins struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingCoins) OwnedCoins(context.Context) ([]models.OwnedCoin, error) {
	close(b.started)
	<-b.release
	return threeCoins(), nil
}

func (b *blockingCoins) SetAlert(context.Context, models.AlertDraft) (int64, error) {
	return 0, errors.New("unexpected set_alert")
}

func TestCloseWhileOpeningDiscardsCoins(t *testing.T) {
	api := &blockingCoins{started: make(chan struct{}), release: make(chan struct{})}
	e := New(api, zaptest.NewLogger(t))

	type openResult struct {
		forms []CoinForm
		err   error
	}
	done := make(chan openResult, 1)
	go func() {
		forms, err := e.Open(context.Background())
		done <- openResult{forms, err}
	}()

	<-api.started
	e.Close()
	close(api.release)

	res := <-done
	assert.ErrorIs(t, res.err, ErrClosed)
	assert.Empty(t, res.forms)
	assert.False(t, e.IsOpen())
	assert.Nil(t, e.Forms())
}
