package gpd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpay/unifee/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testRow() domain.RetryableRow {
	return domain.RetryableRow{
		ID:               "1",
		DebtorName:       "Rossi Impianti Srl",
		DebtorFiscalCode: "01234567890",
		Amount:           15000,
		Iuv:              "347000000000000012",
		Iupd:             "UNIFEE-347000000000000012",
		OrgFiscalCode:    "80014930329",
		CompanyName:      "Comune di Trieste",
		Iban:             "IT60X0542811101000000123456",
	}
}

func TestPositionPayload(t *testing.T) {
	pos := PositionPayload(testRow())

	assert.Equal(t, "UNIFEE-347000000000000012", pos.Iupd)
	assert.Equal(t, "F", pos.Type)
	assert.Equal(t, "01234567890", pos.FiscalCode)
	require.Len(t, pos.PaymentOption, 1)

	opt := pos.PaymentOption[0]
	assert.Equal(t, "347000000000000012", opt.Iuv)
	assert.Equal(t, int64(15000), opt.Amount)
	require.Len(t, opt.Transfer, 1)
	assert.Equal(t, int64(15000), opt.Transfer[0].Amount)
	assert.Equal(t, "IT60X0542811101000000123456", opt.Transfer[0].Iban)
	assert.Equal(t, "Canone unico 347000000000000012", opt.Transfer[0].RemittanceInformation)
}

func TestPositionPayloadKeepsExplicitNote(t *testing.T) {
	row := testRow()
	row.Note = "Canone occupazione suolo 2026"
	pos := PositionPayload(row)
	assert.Equal(t, "Canone occupazione suolo 2026", pos.PaymentOption[0].Transfer[0].RemittanceInformation)
}

func TestCreatePosition(t *testing.T) {
	var gotPath string
	var gotBody PaymentPosition
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	code, err := c.CreatePosition(context.Background(), "80014930329", PositionPayload(testRow()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "/organizations/80014930329/debtpositions", gotPath)
	assert.Equal(t, "UNIFEE-347000000000000012", gotBody.Iupd)
}

func TestPublishPosition(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	code, err := c.PublishPosition(context.Background(), "80014930329", "UNIFEE-347000000000000012")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "/organizations/80014930329/debtpositions/UNIFEE-347000000000000012/publish", gotPath)
}

func TestClientReturnsRawStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	code, err := c.CreatePosition(context.Background(), "80014930329", PaymentPosition{})
	require.NoError(t, err, "non-2xx is not a transport error")
	assert.Equal(t, http.StatusConflict, code)
}

func TestClientTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, testLogger())
	_, err := c.CreatePosition(context.Background(), "80014930329", PaymentPosition{})
	assert.Error(t, err)
}
