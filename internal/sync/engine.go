// Package sync implements the reconciliation engine between the local record
// store and the remote ledger: outbound push of invoices, contacts, and
// payments, and inbound convergence from remote payment and void state.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nasirucode/xerosync/internal/logutil"
	"github.com/nasirucode/xerosync/internal/mapper"
	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/xero"
)

var (
	// ErrUnresolvedContact indicates the invoice customer has no linked
	// local contact to push.
	ErrUnresolvedContact = errors.New("no contact linked to customer")

	// ErrUnresolvedReference indicates a record references an invoice that
	// does not exist locally.
	ErrUnresolvedReference = errors.New("referenced invoice not found")

	// ErrAlreadySettled indicates the invoice is already in a terminal
	// state and the operation does not apply.
	ErrAlreadySettled = errors.New("invoice already settled")
)

// LedgerGateway is the remote ledger surface the engine depends on.
// *xero.Gateway satisfies it; tests substitute fakes.
type LedgerGateway interface {
	CreateInvoice(ctx context.Context, inv xero.Invoice) (*xero.Invoice, error)
	UpdateInvoice(ctx context.Context, invoiceID string, inv xero.Invoice) (*xero.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*xero.Invoice, error)
	ListInvoicesByIDs(ctx context.Context, ids []string) ([]xero.Invoice, error)
	ListInvoicesWhere(ctx context.Context, where string) ([]xero.Invoice, error)
	CreateContact(ctx context.Context, c xero.Contact) (*xero.Contact, error)
	CreatePayment(ctx context.Context, p xero.Payment) (*xero.Payment, error)
}

// BatchResult summarizes one batch sync run. Units fail independently; one
// bad record never aborts the batch.
type BatchResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Config wires an Engine.
type Config struct {
	Invoices     store.InvoiceStore
	Payments     store.PaymentStore
	Contacts     store.ContactStore
	Gateway      LedgerGateway
	Policy       *mapper.AccountPolicy
	BaseCurrency string
	Logger       *slog.Logger
}

// Engine reconciles local records with the remote ledger.
type Engine struct {
	invoices     store.InvoiceStore
	payments     store.PaymentStore
	contacts     store.ContactStore
	gw           LedgerGateway
	policy       *mapper.AccountPolicy
	baseCurrency string
	logger       *slog.Logger
	now          func() time.Time
}

// New builds a reconciliation engine.
func New(c Config) *Engine {
	return &Engine{
		invoices:     c.Invoices,
		payments:     c.Payments,
		contacts:     c.Contacts,
		gw:           c.Gateway,
		policy:       c.Policy,
		baseCurrency: c.BaseCurrency,
		logger:       logutil.NoopIfNil(c.Logger),
		now:          time.Now,
	}
}

// PushInvoice pushes a local invoice to the remote ledger. The first
// successful push records the remote id; subsequent calls route to the
// remote update endpoint. Idempotent: re-pushing an already linked invoice
// never creates a duplicate.
func (e *Engine) PushInvoice(ctx context.Context, invoiceID string) error {
	inv, err := e.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to load invoice %s: %w", invoiceID, err)
	}
	if inv.SyncDisabled {
		e.logger.Info("invoice excluded from sync", "invoice", inv.ID)
		return nil
	}
	if inv.Status == store.InvoiceCancelled {
		return fmt.Errorf("invoice %s: %w", inv.ID, ErrAlreadySettled)
	}

	contactID, err := e.resolveContactID(ctx, inv.Customer)
	if err != nil {
		return err
	}

	payload, err := mapper.InvoiceToXero(inv, contactID, e.policy, e.baseCurrency)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.ID, err)
	}

	var remote *xero.Invoice
	if inv.XeroInvoiceID == "" {
		remote, err = e.gw.CreateInvoice(ctx, payload)
	} else {
		remote, err = e.gw.UpdateInvoice(ctx, inv.XeroInvoiceID, payload)
	}
	if err != nil {
		return fmt.Errorf("failed to push invoice %s: %w", inv.ID, err)
	}

	// Remote id is set exactly once; later pushes only refresh the mirror.
	if inv.XeroInvoiceID == "" {
		inv.XeroInvoiceID = remote.InvoiceID
	}
	inv.XeroStatus = string(remote.Status)
	if err := e.invoices.UpdateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("failed to record remote link for invoice %s: %w", inv.ID, err)
	}

	e.logger.Info("pushed invoice", "invoice", inv.ID, "remote_id", inv.XeroInvoiceID)
	return nil
}

// CancelInvoice cancels a local invoice and voids its remote counterpart.
// The local cancellation is authoritative and never blocked by the remote
// side: a remote invoice already paid or voided is an informational no-op,
// and a remote failure is logged as a warning.
func (e *Engine) CancelInvoice(ctx context.Context, invoiceID string) error {
	inv, err := e.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to load invoice %s: %w", invoiceID, err)
	}
	if inv.Status == store.InvoiceCancelled {
		return nil
	}

	if inv.XeroInvoiceID != "" && !inv.SyncDisabled {
		e.voidRemote(ctx, inv)
	}

	inv.Status = store.InvoiceCancelled
	if err := e.invoices.UpdateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("failed to cancel invoice %s: %w", inv.ID, err)
	}
	e.logger.Info("cancelled invoice", "invoice", inv.ID)
	return nil
}

// voidRemote attempts to void the remote counterpart. Failures downgrade to
// warnings; terminal remote states are informational.
func (e *Engine) voidRemote(ctx context.Context, inv *store.SalesInvoice) {
	remote, err := e.gw.GetInvoice(ctx, inv.XeroInvoiceID)
	if err != nil {
		e.logger.Warn("failed to read remote invoice before void",
			"invoice", inv.ID, "remote_id", inv.XeroInvoiceID, "error", err)
		return
	}
	if remote.Status.Settled() {
		inv.XeroStatus = string(remote.Status)
		e.logger.Info("remote invoice already settled, skipping void",
			"invoice", inv.ID, "remote_status", remote.Status)
		return
	}

	updated, err := e.gw.UpdateInvoice(ctx, inv.XeroInvoiceID,
		xero.Invoice{Status: xero.InvoiceVoided})
	if err != nil {
		e.logger.Warn("failed to void remote invoice",
			"invoice", inv.ID, "remote_id", inv.XeroInvoiceID, "error", err)
		return
	}
	inv.XeroStatus = string(updated.Status)
}

// PushContact pushes a local contact to the remote ledger and returns the
// remote contact id. An already linked contact is a no-op.
func (e *Engine) PushContact(ctx context.Context, contactID string) (string, error) {
	c, err := e.contacts.GetContact(ctx, contactID)
	if err != nil {
		return "", fmt.Errorf("failed to load contact %s: %w", contactID, err)
	}
	if c.XeroContactID != "" {
		return c.XeroContactID, nil
	}

	payload, err := mapper.ContactToXero(c)
	if err != nil {
		return "", fmt.Errorf("contact %s: %w", c.ID, err)
	}
	remote, err := e.gw.CreateContact(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("failed to push contact %s: %w", c.ID, err)
	}

	c.XeroContactID = remote.ContactID
	if err := e.contacts.UpdateContact(ctx, c); err != nil {
		return "", fmt.Errorf("failed to record remote link for contact %s: %w", c.ID, err)
	}
	e.logger.Info("pushed contact", "contact", c.ID, "remote_id", c.XeroContactID)
	return c.XeroContactID, nil
}

// resolveContactID returns the remote contact id for a customer. A contact
// that exists locally but was never pushed is unresolved; invoice push never
// creates contacts, the caller runs PushContact first.
func (e *Engine) resolveContactID(ctx context.Context, customer string) (string, error) {
	c, err := e.contacts.GetContactForCustomer(ctx, customer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("customer %s: %w", customer, ErrUnresolvedContact)
		}
		return "", fmt.Errorf("failed to resolve contact for customer %s: %w", customer, err)
	}
	if c.XeroContactID == "" {
		return "", fmt.Errorf("contact %s for customer %s has no remote id: %w", c.ID, customer, ErrUnresolvedContact)
	}
	return c.XeroContactID, nil
}

// PushPayment pushes a local payment entry against an already pushed
// invoice. Idempotent: an entry with a remote id is a no-op.
func (e *Engine) PushPayment(ctx context.Context, paymentID string) error {
	p, err := e.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	if p.XeroPaymentID != "" {
		return nil
	}
	if p.PaymentType != store.PaymentReceive {
		e.logger.Info("payment type not synced", "payment", p.ID, "type", p.PaymentType)
		return nil
	}

	inv, err := e.invoices.GetInvoice(ctx, p.InvoiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("payment %s: %w", p.ID, ErrUnresolvedReference)
		}
		return fmt.Errorf("failed to load invoice for payment %s: %w", p.ID, err)
	}

	bankCode := e.policy.ResolveBankCode(ctx, p)
	payload, err := mapper.PaymentToXero(p, inv.XeroInvoiceID, bankCode)
	if err != nil {
		return fmt.Errorf("payment %s: %w", p.ID, err)
	}

	remote, err := e.gw.CreatePayment(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to push payment %s: %w", p.ID, err)
	}

	p.XeroPaymentID = remote.PaymentID
	if err := e.payments.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to record remote link for payment %s: %w", p.ID, err)
	}
	e.logger.Info("pushed payment", "payment", p.ID, "remote_id", p.XeroPaymentID)
	return nil
}

// SyncInvoicePayments polls remote payment state for every unsettled synced
// invoice and records at most one corrective local payment per invoice for
// the amount the remote side has received beyond local records.
func (e *Engine) SyncInvoicePayments(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	invoices, err := e.invoices.ListUnsettledSynced(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list unsettled invoices: %w", err)
	}
	if len(invoices) == 0 {
		return res, nil
	}

	byRemoteID := make(map[string]*store.SalesInvoice, len(invoices))
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		byRemoteID[inv.XeroInvoiceID] = inv
		ids = append(ids, inv.XeroInvoiceID)
	}

	snapshots, err := e.gw.ListInvoicesByIDs(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("failed to fetch remote invoices: %w", err)
	}

	for _, snap := range snapshots {
		inv, ok := byRemoteID[snap.InvoiceID]
		if !ok {
			res.Skipped++
			continue
		}
		applied, err := e.applyPaymentSnapshot(ctx, inv, snap)
		switch {
		case err != nil:
			res.Failed++
			e.logger.Error("failed to sync payments for invoice",
				"invoice", inv.ID, "error", err)
		case applied:
			res.Processed++
		default:
			res.Skipped++
		}
	}

	e.logger.Info("payment sync finished",
		"processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// applyPaymentSnapshot records the corrective payment for one remote invoice
// snapshot. Returns false when the snapshot carries nothing new.
func (e *Engine) applyPaymentSnapshot(ctx context.Context, inv *store.SalesInvoice, snap xero.Invoice) (bool, error) {
	if snap.Status != xero.InvoicePaid && snap.Status != xero.InvoiceAuthorised {
		return false, nil
	}
	if snap.AmountPaid <= 0 {
		return false, nil
	}

	recorded, err := e.recordedAmount(ctx, inv.ID)
	if err != nil {
		return false, err
	}

	entry := mapper.PaymentFromSnapshot(inv, snap, recorded, e.paymentDate(snap))
	if entry == nil {
		return false, nil
	}
	entry.ID = uuid.NewString()
	entry.Submitted = true

	if err := e.payments.CreatePayment(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to record payment: %w", err)
	}

	inv.Outstanding -= entry.Amount
	if inv.Outstanding < 0 {
		inv.Outstanding = 0
	}
	inv.XeroStatus = string(snap.Status)
	if err := e.invoices.UpdateInvoice(ctx, inv); err != nil {
		return false, fmt.Errorf("failed to update invoice: %w", err)
	}

	e.logger.Info("recorded remote payment",
		"invoice", inv.ID, "amount", entry.Amount, "remote_status", snap.Status)
	return true, nil
}

// recordedAmount sums the submitted local payments against an invoice.
func (e *Engine) recordedAmount(ctx context.Context, invoiceID string) (float64, error) {
	entries, err := e.payments.ListPaymentsForInvoice(ctx, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("failed to list payments: %w", err)
	}
	var total float64
	for _, p := range entries {
		if p.Submitted {
			total += p.Amount
		}
	}
	return total, nil
}

// paymentDate returns the date of the latest payment embedded in the remote
// snapshot, falling back to today when none parses.
func (e *Engine) paymentDate(snap xero.Invoice) time.Time {
	latest := time.Time{}
	for _, p := range snap.Payments {
		if t, ok := xero.ParseMSDate(p.Date); ok && t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return e.now()
	}
	return latest
}

// SyncVoidedInvoices sweeps remote invoices voided with an invoice date on
// or after the start of the current day and cancels their local
// counterparts. Matching prefers the remote id and falls back to the
// invoice number. Already cancelled or never-submitted invoices are skipped.
func (e *Engine) SyncVoidedInvoices(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	day := e.now().UTC()
	voided, err := e.gw.ListInvoicesWhere(ctx, xero.WhereVoidedSince(day))
	if err != nil {
		return res, fmt.Errorf("failed to list voided remote invoices: %w", err)
	}

	for _, snap := range voided {
		inv, err := e.matchLocalInvoice(ctx, snap)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				res.Skipped++
				continue
			}
			res.Failed++
			e.logger.Error("failed to match voided remote invoice",
				"remote_id", snap.InvoiceID, "error", err)
			continue
		}
		if inv.Status != store.InvoiceSubmitted {
			res.Skipped++
			continue
		}
		if err := e.applyVoid(ctx, inv); err != nil {
			res.Failed++
			e.logger.Error("failed to cancel voided invoice",
				"invoice", inv.ID, "error", err)
			continue
		}
		res.Processed++
	}

	e.logger.Info("voided sync finished",
		"processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// matchLocalInvoice resolves the local invoice for a remote snapshot, by
// remote id first and invoice number second.
func (e *Engine) matchLocalInvoice(ctx context.Context, snap xero.Invoice) (*store.SalesInvoice, error) {
	if snap.InvoiceID != "" {
		inv, err := e.invoices.GetInvoiceByXeroID(ctx, snap.InvoiceID)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if snap.InvoiceNumber == "" {
		return nil, store.ErrNotFound
	}
	return e.invoices.GetInvoice(ctx, snap.InvoiceNumber)
}

// applyVoid cancels a local invoice in response to a remote void and leaves
// an audit comment.
func (e *Engine) applyVoid(ctx context.Context, inv *store.SalesInvoice) error {
	inv.Status = store.InvoiceCancelled
	inv.XeroStatus = string(xero.InvoiceVoided)
	if err := e.invoices.UpdateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	comment := &store.InvoiceComment{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		Text:      "Cancelled automatically: invoice was voided in the remote ledger",
	}
	if err := e.invoices.AddInvoiceComment(ctx, comment); err != nil {
		e.logger.Warn("failed to record cancellation comment",
			"invoice", inv.ID, "error", err)
	}
	e.logger.Info("cancelled invoice voided remotely", "invoice", inv.ID)
	return nil
}

// HandleEvent processes one webhook event. The event is a pointer only:
// authoritative state is re-fetched by resource id, then the matching local
// invoice converges on the observed remote state. Unknown categories and
// types are ignored.
func (e *Engine) HandleEvent(ctx context.Context, ev xero.WebhookEvent) error {
	if ev.EventCategory != xero.EventCategoryInvoice || ev.EventType != xero.EventTypeUpdate {
		return nil
	}

	snap, err := e.gw.GetInvoice(ctx, ev.ResourceID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote invoice %s: %w", ev.ResourceID, err)
	}

	inv, err := e.matchLocalInvoice(ctx, *snap)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Debug("webhook event for unknown invoice", "remote_id", ev.ResourceID)
			return nil
		}
		return fmt.Errorf("failed to match remote invoice %s: %w", ev.ResourceID, err)
	}

	if snap.Status == xero.InvoiceVoided {
		if inv.Status != store.InvoiceSubmitted {
			return nil
		}
		return e.applyVoid(ctx, inv)
	}

	if inv.Unsettled() {
		if _, err := e.applyPaymentSnapshot(ctx, inv, *snap); err != nil {
			return err
		}
		return nil
	}

	if inv.XeroStatus != string(snap.Status) {
		inv.XeroStatus = string(snap.Status)
		if err := e.invoices.UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("failed to mirror remote status for %s: %w", inv.ID, err)
		}
	}
	return nil
}
