// Package store provides the local record store: models, errors, and the
// driver abstraction over concrete persistence backends.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// InvoiceStatus is the local invoice lifecycle status.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "Draft"
	InvoiceSubmitted InvoiceStatus = "Submitted"
	InvoiceCancelled InvoiceStatus = "Cancelled"
)

// PaymentReceive is the payment direction pushed to the remote ledger.
const PaymentReceive = "Receive"

// Account types used by the payment account resolution policy.
const (
	AccountCash       = "Cash"
	AccountBank       = "Bank"
	AccountReceivable = "Receivable"
)

// SalesInvoice is a local sales invoice record.
type SalesInvoice struct {
	ID          string        `json:"id" gorm:"primaryKey"`
	Customer    string        `json:"customer" gorm:"index"`
	Company     string        `json:"company"`
	Currency    string        `json:"currency"`
	PostingDate time.Time     `json:"posting_date"`
	DueDate     time.Time     `json:"due_date"`
	GrandTotal  float64       `json:"grand_total"`
	Outstanding float64       `json:"outstanding"`
	Status      InvoiceStatus `json:"status" gorm:"index"`
	Items       []InvoiceItem `json:"items" gorm:"serializer:json"`

	// XeroInvoiceID links this invoice to its remote counterpart.
	// Set exactly once on first successful push; immutable afterwards.
	XeroInvoiceID string `json:"xero_invoice_id" gorm:"index"`

	// XeroStatus mirrors the last observed remote status (informational).
	XeroStatus string `json:"xero_status"`

	// SyncDisabled excludes this invoice from outbound sync.
	SyncDisabled bool `json:"sync_disabled"`

	CreatedAt int64 `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt int64 `json:"updated_at" gorm:"autoUpdateTime"`
}

// InvoiceItem is one invoice line.
type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	AccountCode string  `json:"account_code,omitempty"`
	DiscountPct float64 `json:"discount_pct,omitempty"`
}

// Unsettled reports whether the invoice still awaits settlement.
func (i *SalesInvoice) Unsettled() bool {
	return i.Status == InvoiceSubmitted && i.Outstanding > 0
}

// PaymentEntry is a local payment record against a sales invoice.
type PaymentEntry struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	PaymentType string    `json:"payment_type"`
	Party       string    `json:"party"`
	InvoiceID   string    `json:"invoice_id" gorm:"index"`
	Amount      float64   `json:"amount"`
	PostingDate time.Time `json:"posting_date"`
	Reference   string    `json:"reference"`
	Remarks     string    `json:"remarks"`
	PaidFrom    string    `json:"paid_from"`
	PaidTo      string    `json:"paid_to"`

	// Submitted payments count toward the recorded amount for an invoice.
	Submitted bool `json:"submitted"`

	// XeroPaymentID links this payment to its remote counterpart, when pushed.
	XeroPaymentID string `json:"xero_payment_id"`

	CreatedAt int64 `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt int64 `json:"updated_at" gorm:"autoUpdateTime"`
}

// Contact is a local contact record, optionally linked to customers and
// suppliers.
type Contact struct {
	ID            string `json:"id" gorm:"primaryKey"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	AccountNumber string `json:"account_number"`

	// LinkedCustomers / LinkedSuppliers are the party links that drive the
	// IsCustomer / IsSupplier flags on the remote side.
	LinkedCustomers []string `json:"linked_customers" gorm:"serializer:json"`
	LinkedSuppliers []string `json:"linked_suppliers" gorm:"serializer:json"`

	// XeroContactID links this contact to its remote counterpart.
	XeroContactID string `json:"xero_contact_id" gorm:"index"`

	CreatedAt int64 `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt int64 `json:"updated_at" gorm:"autoUpdateTime"`
}

// Account is a ledger account used for payment routing.
type Account struct {
	Name    string `json:"name" gorm:"primaryKey"`
	Company string `json:"company"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Credential holds the OAuth credential for the single active tenant.
// Exactly one row exists, keyed by CredentialID.
type Credential struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TenantID     string    `json:"tenant_id"`
	TenantName   string    `json:"tenant_name"`
	Scope        string    `json:"scope"`
	UpdatedAt    int64     `json:"updated_at" gorm:"autoUpdateTime"`
}

// CredentialID is the fixed key of the single credential row.
const CredentialID = "default"

// APILog is one audit record of an outbound remote ledger call.
type APILog struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Method    string `json:"method"`
	URL       string `json:"url"`
	Status    int    `json:"status"`
	Headers   string `json:"headers"`
	Payload   string `json:"payload"`
	Response  string `json:"response"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime"`
}

// InvoiceComment is an audit comment attached to a local invoice.
type InvoiceComment struct {
	ID        string `json:"id" gorm:"primaryKey"`
	InvoiceID string `json:"invoice_id" gorm:"index"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime"`
}

// InvoiceStore defines operations on sales invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *SalesInvoice) error
	GetInvoice(ctx context.Context, id string) (*SalesInvoice, error)
	GetInvoiceByXeroID(ctx context.Context, xeroID string) (*SalesInvoice, error)
	UpdateInvoice(ctx context.Context, inv *SalesInvoice) error

	// ListUnsettledSynced returns submitted invoices with a remote id and a
	// positive outstanding amount, for the inbound payment poll.
	ListUnsettledSynced(ctx context.Context) ([]*SalesInvoice, error)

	AddInvoiceComment(ctx context.Context, c *InvoiceComment) error
	ListInvoiceComments(ctx context.Context, invoiceID string) ([]*InvoiceComment, error)
}

// PaymentStore defines operations on payment entries.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *PaymentEntry) error
	GetPayment(ctx context.Context, id string) (*PaymentEntry, error)
	UpdatePayment(ctx context.Context, p *PaymentEntry) error
	ListPaymentsForInvoice(ctx context.Context, invoiceID string) ([]*PaymentEntry, error)
}

// ContactStore defines operations on contacts.
type ContactStore interface {
	CreateContact(ctx context.Context, c *Contact) error
	GetContact(ctx context.Context, id string) (*Contact, error)
	UpdateContact(ctx context.Context, c *Contact) error

	// GetContactForCustomer returns a contact linked to the given customer,
	// or ErrNotFound when no such link exists.
	GetContactForCustomer(ctx context.Context, customer string) (*Contact, error)
}

// AccountStore defines operations on ledger accounts.
type AccountStore interface {
	GetAccount(ctx context.Context, name string) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
}

// CredentialStore persists the OAuth credential.
type CredentialStore interface {
	GetCredential(ctx context.Context) (*Credential, error)
	SaveCredential(ctx context.Context, c *Credential) error
}

// APILogStore appends outbound call audit records.
type APILogStore interface {
	AppendAPILog(ctx context.Context, l *APILog) error
}

// Driver is a complete persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (sqlite, memory).
	Name() string

	InvoiceStore
	PaymentStore
	ContactStore
	AccountStore
	CredentialStore
	APILogStore
}
