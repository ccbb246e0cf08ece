package gpd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/domain"
)

// PaymentPosition is the create-phase payload of the payment platform.
type PaymentPosition struct {
	Iupd            string          `json:"iupd"`
	Type            string          `json:"type"`
	FiscalCode      string          `json:"fiscalCode"`
	FullName        string          `json:"fullName"`
	Email           string          `json:"email,omitempty"`
	CompanyName     string          `json:"companyName"`
	SwitchToExpired bool            `json:"switchToExpired"`
	PaymentOption   []PaymentOption `json:"paymentOption"`
}

type PaymentOption struct {
	Iuv              string     `json:"iuv"`
	Amount           int64      `json:"amount"`
	Description      string     `json:"description"`
	IsPartialPayment bool       `json:"isPartialPayment"`
	DueDate          string     `json:"dueDate"`
	Transfer         []Transfer `json:"transfer"`
}

type Transfer struct {
	IDTransfer            string `json:"idTransfer"`
	Amount                int64  `json:"amount"`
	RemittanceInformation string `json:"remittanceInformation"`
	Category              string `json:"category"`
	Iban                  string `json:"iban"`
}

// PositionPayload maps a queued row to the remote position payload.
func PositionPayload(row domain.RetryableRow) PaymentPosition {
	dueDate := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02T15:04:05")
	remittance := row.Note
	if remittance == "" {
		remittance = "Canone unico " + row.Iuv
	}
	return PaymentPosition{
		Iupd:        row.Iupd,
		Type:        "F",
		FiscalCode:  row.DebtorFiscalCode,
		FullName:    row.DebtorName,
		Email:       row.DebtorEmail,
		CompanyName: row.CompanyName,
		PaymentOption: []PaymentOption{{
			Iuv:         row.Iuv,
			Amount:      row.Amount,
			Description: "Canone unico patrimoniale",
			DueDate:     dueDate,
			Transfer: []Transfer{{
				IDTransfer:            "1",
				Amount:                row.Amount,
				RemittanceInformation: remittance,
				Category:              "0201102IM",
				Iban:                  row.Iban,
			}},
		}},
	}
}

// Client calls the payment platform's debt-position API. It is constructed
// explicitly and injected where needed; both operations return the raw
// HTTP status code so callers can classify the outcome, and an error only
// for transport-level failures.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.WithField("component", "gpd"),
	}
}

// CreatePosition registers a new debt position for the organization.
// A successful create answers 201.
func (c *Client) CreatePosition(ctx context.Context, orgFiscalCode string, pos PaymentPosition) (int, error) {
	body, err := json.Marshal(pos)
	if err != nil {
		return 0, fmt.Errorf("marshal position: %w", err)
	}

	endpoint := fmt.Sprintf("%s/organizations/%s/debtpositions", c.baseURL, url.PathEscape(orgFiscalCode))
	code, err := c.post(ctx, endpoint, body)
	if err != nil {
		return 0, err
	}
	c.log.Infof("create position %s for %s: HTTP %d", pos.Iupd, orgFiscalCode, code)
	return code, nil
}

// PublishPosition makes a created position payable. A successful publish
// answers 200.
func (c *Client) PublishPosition(ctx context.Context, orgFiscalCode, iupd string) (int, error) {
	endpoint := fmt.Sprintf("%s/organizations/%s/debtpositions/%s/publish",
		c.baseURL, url.PathEscape(orgFiscalCode), url.PathEscape(iupd))
	code, err := c.post(ctx, endpoint, nil)
	if err != nil {
		return 0, err
	}
	c.log.Infof("publish position %s for %s: HTTP %d", iupd, orgFiscalCode, code)
	return code, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
