package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"educommerce/internal/domain/ports/adapter"
	"educommerce/internal/infra/httpx"
)

// Ensure PayPlusGateway implements adapter.PaymentGateway
var _ adapter.PaymentGateway = (*PayPlusGateway)(nil)

// PayPlusGateway implements PaymentGateway against the PayPlus hosted-page
// API using direct HTTP calls.
type PayPlusGateway struct {
	apiKey       string
	secretKey    string
	pageUID      string
	recurringUID string
	baseURL      string
	client       *http.Client
	log          zerolog.Logger
}

func NewPayPlusGateway(apiKey, secretKey, pageUID, recurringUID string, sandbox bool, log zerolog.Logger) *PayPlusGateway {
	baseURL := "https://restapi.payplus.co.il/api/v1.0"
	if sandbox {
		baseURL = "https://restapidev.payplus.co.il/api/v1.0"
	}
	return &PayPlusGateway{
		apiKey:       apiKey,
		secretKey:    secretKey,
		pageUID:      pageUID,
		recurringUID: recurringUID,
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 15 * time.Second},
		log:          log.With().Str("gateway", "payplus").Logger(),
	}
}

func (g *PayPlusGateway) Name() string { return "payplus" }

// payPlusPageResponse represents the response from the generateLink API.
type payPlusPageResponse struct {
	Results struct {
		Status      string `json:"status"`
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"results"`
	Data struct {
		PageRequestUID  string `json:"page_request_uid"`
		PaymentPageLink string `json:"payment_page_link"`
		RecurringUID    string `json:"recurring_uid"`
	} `json:"data"`
}

// payPlusStatusResponse represents the response from the page-status API.
type payPlusStatusResponse struct {
	Results struct {
		Status string `json:"status"`
		Code   int    `json:"code"`
	} `json:"results"`
	Data struct {
		StatusCode     string `json:"status_code"`
		TransactionUID string `json:"transaction_uid"`
		Amount         string `json:"amount"`
	} `json:"data"`
}

// CreatePage requests a hosted checkout page. Recurring requests go through
// the recurring page template so PayPlus issues a billing-agreement UID.
func (g *PayPlusGateway) CreatePage(ctx context.Context, req adapter.PageRequest) (*adapter.PageResult, error) {
	pageUID := g.pageUID
	if req.Recurring {
		pageUID = g.recurringUID
	}

	requestData := map[string]any{
		"payment_page_uid": pageUID,
		// PayPlus amounts are decimal shekels, ours are agorot.
		"amount":        float64(req.Amount) / 100,
		"currency_code": "ILS",
		"more_info":     req.Reference,
		"more_info_2":   req.Environment,
		"refURL_success": fmt.Sprintf("%s/payment/success", req.FrontendOrigin),
		"refURL_failure": fmt.Sprintf("%s/payment/failure", req.FrontendOrigin),
		"sendEmailApproval": false,
		"create_token":      req.Recurring,
	}
	if req.Description != "" {
		requestData["charge_description"] = req.Description
	}
	if req.Meta != nil {
		requestData["metadata"] = req.Meta
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	var response payPlusPageResponse
	if _, err := g.doPost(ctx, g.baseURL+"/PaymentPages/generateLink", jsonData, &response); err != nil {
		return nil, err
	}
	if response.Results.Status != "success" {
		return nil, fmt.Errorf("payplus error: code %d, description: %s", response.Results.Code, response.Results.Description)
	}
	if response.Data.PaymentPageLink == "" {
		return nil, fmt.Errorf("payplus returned no payment page link for reference %s", req.Reference)
	}

	return &adapter.PageResult{
		PaymentURL:      response.Data.PaymentPageLink,
		PageRequestUID:  response.Data.PageRequestUID,
		SubscriptionUID: response.Data.RecurringUID,
	}, nil
}

// VerifyTransaction asks PayPlus for the authoritative status of a page
// request. This is a read path, so transient failures are retried.
func (g *PayPlusGateway) VerifyTransaction(ctx context.Context, pageRequestUID string) (bool, error) {
	jsonData, err := json.Marshal(map[string]any{
		"payment_request_uid": pageRequestUID,
		"related_transaction": true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal request data: %w", err)
	}

	var response payPlusStatusResponse
	err = httpx.Do(ctx, httpx.Policy{MaxAttempts: 3, BaseDelay: 300 * time.Millisecond}, func(ctx context.Context) (int, error) {
		return g.doPost(ctx, g.baseURL+"/PaymentPages/ipn", jsonData, &response)
	})
	if err != nil {
		return false, err
	}
	if response.Results.Status != "success" {
		return false, fmt.Errorf("payplus error: code %d", response.Results.Code)
	}

	// "000" is the only approval code; anything else is declined or still open.
	approved := response.Data.StatusCode == "000"
	g.log.Debug().
		Str("page_request_uid", pageRequestUID).
		Str("status_code", response.Data.StatusCode).
		Bool("approved", approved).
		Msg("verified transaction")
	return approved, nil
}

func (g *PayPlusGateway) doPost(ctx context.Context, url string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	auth, _ := json.Marshal(map[string]string{"api_key": g.apiKey, "secret_key": g.secretKey})
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// PayPlus wants the credential pair as a JSON object in Authorization.
	req.Header.Set("Authorization", string(auth))
	req.Header.Set("X-Request-ID", ulid.Make().String())

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("payplus http %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
	}
	return resp.StatusCode, nil
}
