// Package memory implements an in-memory record store, used in dev mode and
// by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nasirucode/xerosync/internal/store"
)

func init() {
	store.Register("memory", func(cfg *store.DriverConfig) (store.Driver, error) {
		return New(), nil
	})
}

// Driver implements store.Driver with in-process maps.
type Driver struct {
	mu         sync.RWMutex
	invoices   map[string]store.SalesInvoice
	payments   map[string]store.PaymentEntry
	contacts   map[string]store.Contact
	accounts   map[string]store.Account
	credential *store.Credential
	apiLogs    []store.APILog
	comments   []store.InvoiceComment
	closed     bool
}

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{
		invoices: make(map[string]store.SalesInvoice),
		payments: make(map[string]store.PaymentEntry),
		contacts: make(map[string]store.Contact),
		accounts: make(map[string]store.Account),
	}
}

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Init(ctx context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) checkOpen() error {
	if d.closed {
		return store.ErrClosed
	}
	return nil
}

// InvoiceStore

func (d *Driver) CreateInvoice(ctx context.Context, inv *store.SalesInvoice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.invoices[inv.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.invoices[inv.ID] = *inv
	return nil
}

func (d *Driver) GetInvoice(ctx context.Context, id string) (*store.SalesInvoice, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	inv, ok := d.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (d *Driver) GetInvoiceByXeroID(ctx context.Context, xeroID string) (*store.SalesInvoice, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if xeroID == "" {
		return nil, store.ErrNotFound
	}
	for _, inv := range d.invoices {
		if inv.XeroInvoiceID == xeroID {
			out := inv
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *Driver) UpdateInvoice(ctx context.Context, inv *store.SalesInvoice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.invoices[inv.ID]; !ok {
		return store.ErrNotFound
	}
	d.invoices[inv.ID] = *inv
	return nil
}

func (d *Driver) ListUnsettledSynced(ctx context.Context) ([]*store.SalesInvoice, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var out []*store.SalesInvoice
	for _, inv := range d.invoices {
		if inv.Unsettled() && inv.XeroInvoiceID != "" {
			cp := inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Driver) AddInvoiceComment(ctx context.Context, c *store.InvoiceComment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.comments = append(d.comments, *c)
	return nil
}

func (d *Driver) ListInvoiceComments(ctx context.Context, invoiceID string) ([]*store.InvoiceComment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var out []*store.InvoiceComment
	for i := range d.comments {
		if d.comments[i].InvoiceID == invoiceID {
			cp := d.comments[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// PaymentStore

func (d *Driver) CreatePayment(ctx context.Context, p *store.PaymentEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.payments[p.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.payments[p.ID] = *p
	return nil
}

func (d *Driver) GetPayment(ctx context.Context, id string) (*store.PaymentEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	p, ok := d.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (d *Driver) UpdatePayment(ctx context.Context, p *store.PaymentEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.payments[p.ID]; !ok {
		return store.ErrNotFound
	}
	d.payments[p.ID] = *p
	return nil
}

func (d *Driver) ListPaymentsForInvoice(ctx context.Context, invoiceID string) ([]*store.PaymentEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var out []*store.PaymentEntry
	for _, p := range d.payments {
		if p.InvoiceID == invoiceID {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ContactStore

func (d *Driver) CreateContact(ctx context.Context, c *store.Contact) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.contacts[c.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.contacts[c.ID] = *c
	return nil
}

func (d *Driver) GetContact(ctx context.Context, id string) (*store.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	c, ok := d.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (d *Driver) UpdateContact(ctx context.Context, c *store.Contact) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.contacts[c.ID]; !ok {
		return store.ErrNotFound
	}
	d.contacts[c.ID] = *c
	return nil
}

func (d *Driver) GetContactForCustomer(ctx context.Context, customer string) (*store.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(d.contacts))
	for id := range d.contacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := d.contacts[id]
		for _, linked := range c.LinkedCustomers {
			if linked == customer {
				cp := c
				return &cp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

// AccountStore

func (d *Driver) GetAccount(ctx context.Context, name string) (*store.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	a, ok := d.accounts[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (d *Driver) SaveAccount(ctx context.Context, a *store.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.accounts[a.Name] = *a
	return nil
}

// CredentialStore

func (d *Driver) GetCredential(ctx context.Context) (*store.Credential, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if d.credential == nil {
		return nil, store.ErrNotFound
	}
	cp := *d.credential
	return &cp, nil
}

func (d *Driver) SaveCredential(ctx context.Context, c *store.Credential) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	cp := *c
	cp.ID = store.CredentialID
	d.credential = &cp
	return nil
}

// APILogStore

func (d *Driver) AppendAPILog(ctx context.Context, l *store.APILog) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.apiLogs = append(d.apiLogs, *l)
	return nil
}

// APILogs returns a copy of the appended audit records (test helper).
func (d *Driver) APILogs() []store.APILog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]store.APILog, len(d.apiLogs))
	copy(out, d.apiLogs)
	return out
}
