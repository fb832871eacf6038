// Package xero implements the remote ledger boundary: wire types, the OAuth
// token manager, and the authenticated API gateway.
package xero

// InvoiceStatus is the remote invoice status enumeration.
type InvoiceStatus string

const (
	InvoiceDraft      InvoiceStatus = "DRAFT"
	InvoiceSubmitted  InvoiceStatus = "SUBMITTED"
	InvoiceAuthorised InvoiceStatus = "AUTHORISED"
	InvoicePaid       InvoiceStatus = "PAID"
	InvoiceVoided     InvoiceStatus = "VOIDED"
	InvoiceDeleted    InvoiceStatus = "DELETED"
)

// Settled reports whether the status is terminal on the remote side.
func (s InvoiceStatus) Settled() bool {
	return s == InvoicePaid || s == InvoiceVoided
}

// Invoice is the remote invoice representation (subset of fields the sync
// needs).
type Invoice struct {
	InvoiceID       string        `json:"InvoiceID,omitempty"`
	InvoiceNumber   string        `json:"InvoiceNumber,omitempty"`
	Type            string        `json:"Type,omitempty"`
	Contact         *ContactRef   `json:"Contact,omitempty"`
	Status          InvoiceStatus `json:"Status,omitempty"`
	LineAmountTypes string        `json:"LineAmountTypes,omitempty"`
	LineItems       []LineItem    `json:"LineItems,omitempty"`
	DateString      string        `json:"DateString,omitempty"`
	DueDateString   string        `json:"DueDateString,omitempty"`
	CurrencyCode    string        `json:"CurrencyCode,omitempty"`
	Reference       string        `json:"Reference,omitempty"`
	AmountPaid      float64       `json:"AmountPaid,omitempty"`
	AmountDue       float64       `json:"AmountDue,omitempty"`
	Payments        []Payment     `json:"Payments,omitempty"`
	UpdatedDateUTC  string        `json:"UpdatedDateUTC,omitempty"`
}

// LineItem is one remote invoice line. Quantity and UnitAmount are strings on
// the wire.
type LineItem struct {
	Description  string `json:"Description"`
	Quantity     string `json:"Quantity"`
	UnitAmount   string `json:"UnitAmount"`
	AccountCode  string `json:"AccountCode,omitempty"`
	DiscountRate string `json:"DiscountRate,omitempty"`
}

// ContactRef references a remote contact by id.
type ContactRef struct {
	ContactID string `json:"ContactID"`
}

// Contact is the remote contact representation.
type Contact struct {
	ContactID     string    `json:"ContactID,omitempty"`
	Name          string    `json:"Name"`
	FirstName     string    `json:"FirstName,omitempty"`
	LastName      string    `json:"LastName,omitempty"`
	EmailAddress  string    `json:"EmailAddress,omitempty"`
	AccountNumber string    `json:"AccountNumber,omitempty"`
	IsCustomer    bool      `json:"IsCustomer"`
	IsSupplier    bool      `json:"IsSupplier"`
	Addresses     []Address `json:"Addresses,omitempty"`
	Phones        []Phone   `json:"Phones,omitempty"`
}

// Address is a remote contact address block.
type Address struct {
	AddressType  string `json:"AddressType"`
	AddressLine1 string `json:"AddressLine1,omitempty"`
}

// Phone is a remote contact phone block.
type Phone struct {
	PhoneType   string `json:"PhoneType"`
	PhoneNumber string `json:"PhoneNumber,omitempty"`
}

// InvoiceRef references a remote invoice by id.
type InvoiceRef struct {
	InvoiceID string `json:"InvoiceID"`
}

// AccountRef references a remote account by code.
type AccountRef struct {
	Code string `json:"Code"`
}

// Payment is the remote payment representation.
type Payment struct {
	PaymentID      string      `json:"PaymentID,omitempty"`
	Invoice        *InvoiceRef `json:"Invoice,omitempty"`
	Account        *AccountRef `json:"Account,omitempty"`
	Date           string      `json:"Date,omitempty"`
	Amount         float64     `json:"Amount,omitempty"`
	Reference      string      `json:"Reference,omitempty"`
	UpdatedDateUTC string      `json:"UpdatedDateUTC,omitempty"`
}

// Organisation is the remote organisation record returned by the connection
// test.
type Organisation struct {
	Name         string `json:"Name"`
	CountryCode  string `json:"CountryCode"`
	BaseCurrency string `json:"BaseCurrency"`
}

// Connection is one tenant connection from the OAuth connections endpoint.
type Connection struct {
	TenantID   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
}

// WebhookEvent is one event from the webhook payload. The payload is treated
// as a pointer only; authoritative state is always re-fetched by resource id.
type WebhookEvent struct {
	EventCategory string `json:"eventCategory"`
	EventType     string `json:"eventType"`
	ResourceID    string `json:"resourceId"`
	TenantID      string `json:"tenantId"`
}

// Webhook event categories and types handled by the engine.
const (
	EventCategoryInvoice = "INVOICE"
	EventTypeUpdate      = "UPDATE"
)

// Response envelopes.

type invoicesEnvelope struct {
	Invoices []Invoice `json:"Invoices"`
}

type contactsEnvelope struct {
	Contacts []Contact `json:"Contacts"`
}

type paymentsEnvelope struct {
	Payments []Payment `json:"Payments"`
}

type organisationsEnvelope struct {
	Organisations []Organisation `json:"Organisations"`
}
