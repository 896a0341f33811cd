package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// CompletionMessage is the payload the hosted page posts back when a
// checkout finishes. Pages embed arbitrary origins, so anything that does
// not parse as one of ours is simply not ours.
type CompletionMessage struct {
	Type           string `json:"type"`
	Status         string `json:"status"`
	PurchaseID     string `json:"purchaseId"`
	OrderNumber    string `json:"orderNumber"`
	SubscriptionID string `json:"subscriptionId"`
	PageRequestUID string `json:"page_request_uid"`
}

const completionMessageType = "payplus_payment_complete"

// ParseCompletionMessage parses a raw window message defensively: malformed
// JSON, a foreign type tag, or a message carrying no reference at all yields
// ok=false and must be ignored, never treated as an error.
func ParseCompletionMessage(raw []byte) (CompletionMessage, bool) {
	var msg CompletionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return CompletionMessage{}, false
	}
	if msg.Type != completionMessageType {
		return CompletionMessage{}, false
	}
	if msg.PurchaseID == "" && msg.OrderNumber == "" && msg.SubscriptionID == "" {
		return CompletionMessage{}, false
	}
	return msg, true
}

// Succeeded reports whether the page claims approval. The claim is a hint
// only; the authoritative answer comes from VerifyTransaction.
func (m CompletionMessage) Succeeded() bool {
	return strings.EqualFold(m.Status, "success")
}

// VerifyCallbackSignature checks the hash header PayPlus sends with server
// callbacks: base64(HMAC-SHA256(body, secret_key)).
func VerifyCallbackSignature(secretKey string, body []byte, signature string) bool {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(body)
	expected := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
