package model

type PaypalLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type PaypalAmount struct {
	Currency string `json:"currency_code"`
	Value    string `json:"value"`
}

type PaypalPurchaseUnit struct {
	ReferenceID string        `json:"reference_id"`
	CustomID    string        `json:"custom_id,omitempty"`
	Description string        `json:"description,omitempty"`
	Amount      *PaypalAmount `json:"amount,omitempty"`
}

type PaypalApplicationContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type PaypalCreateOrderRequest struct {
	Intent             string                    `json:"intent"`
	PurchaseUnits      []PaypalPurchaseUnit      `json:"purchase_units"`
	ApplicationContext *PaypalApplicationContext `json:"application_context,omitempty"`
}

type PaypalOrderResult struct {
	ID     string       `json:"id"`
	Links  []PaypalLink `json:"links"`
	Status string       `json:"status"`
}

type PaypalResource struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	CustomID      string               `json:"custom_id"`
	Amount        *PaypalAmount        `json:"amount"`
	PurchaseUnits []PaypalPurchaseUnit `json:"purchase_units"`
}

type PaypalWebhookEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	CreateTime string         `json:"create_time"`
	Resource   PaypalResource `json:"resource"`
}

type PaypalVerifySignatureRequest struct {
	AuthAlgo         string `json:"auth_algo"`
	CertURL          string `json:"cert_url"`
	TransmissionID   string `json:"transmission_id"`
	TransmissionSig  string `json:"transmission_sig"`
	TransmissionTime string `json:"transmission_time"`
	WebhookID        string `json:"webhook_id"`
	// raw event body, forwarded byte for byte
	WebhookEvent []byte `json:"-"`
}
