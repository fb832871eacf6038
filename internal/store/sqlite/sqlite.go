// Package sqlite implements the record store on SQLite via GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nasirucode/xerosync/internal/config"
	"github.com/nasirucode/xerosync/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Options are the sqlite-specific driver options under [store.drivers.sqlite].
type Options struct {
	// Filename is the database file name inside DataDir.
	Filename string `mapstructure:"filename"`

	// LogSQL enables GORM query logging (dev only).
	LogSQL bool `mapstructure:"log_sql"`
}

// ApplyDefaults fills zero option values.
func (o *Options) ApplyDefaults() {
	if o.Filename == "" {
		o.Filename = "xerosync.db"
	}
}

// Driver implements store.Driver using SQLite via GORM.
type Driver struct {
	dataDir string
	opts    Options
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	var opts Options
	if err := config.Decode(cfg.Options, &opts); err != nil {
		return nil, fmt.Errorf("invalid sqlite driver options: %w", err)
	}

	return &Driver{dataDir: cfg.DataDir, opts: opts}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return "sqlite" }

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, d.opts.Filename)

	logMode := logger.Silent
	if d.opts.LogSQL {
		logMode = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.db = db

	if err := db.AutoMigrate(
		&store.SalesInvoice{},
		&store.PaymentEntry{},
		&store.Contact{},
		&store.Account{},
		&store.Credential{},
		&store.APILog{},
		&store.InvoiceComment{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrAlreadyExists
	}
	return err
}

// InvoiceStore

func (d *Driver) CreateInvoice(ctx context.Context, inv *store.SalesInvoice) error {
	return translate(d.db.WithContext(ctx).Create(inv).Error)
}

func (d *Driver) GetInvoice(ctx context.Context, id string) (*store.SalesInvoice, error) {
	var inv store.SalesInvoice
	if err := d.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

func (d *Driver) GetInvoiceByXeroID(ctx context.Context, xeroID string) (*store.SalesInvoice, error) {
	var inv store.SalesInvoice
	if err := d.db.WithContext(ctx).First(&inv, "xero_invoice_id = ?", xeroID).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

func (d *Driver) UpdateInvoice(ctx context.Context, inv *store.SalesInvoice) error {
	return d.db.WithContext(ctx).Save(inv).Error
}

func (d *Driver) ListUnsettledSynced(ctx context.Context) ([]*store.SalesInvoice, error) {
	var invoices []*store.SalesInvoice
	err := d.db.WithContext(ctx).
		Where("status = ? AND xero_invoice_id <> '' AND outstanding > 0", store.InvoiceSubmitted).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (d *Driver) AddInvoiceComment(ctx context.Context, c *store.InvoiceComment) error {
	return d.db.WithContext(ctx).Create(c).Error
}

func (d *Driver) ListInvoiceComments(ctx context.Context, invoiceID string) ([]*store.InvoiceComment, error) {
	var comments []*store.InvoiceComment
	err := d.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// PaymentStore

func (d *Driver) CreatePayment(ctx context.Context, p *store.PaymentEntry) error {
	return translate(d.db.WithContext(ctx).Create(p).Error)
}

func (d *Driver) GetPayment(ctx context.Context, id string) (*store.PaymentEntry, error) {
	var p store.PaymentEntry
	if err := d.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (d *Driver) UpdatePayment(ctx context.Context, p *store.PaymentEntry) error {
	return d.db.WithContext(ctx).Save(p).Error
}

func (d *Driver) ListPaymentsForInvoice(ctx context.Context, invoiceID string) ([]*store.PaymentEntry, error) {
	var payments []*store.PaymentEntry
	err := d.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ContactStore

func (d *Driver) CreateContact(ctx context.Context, c *store.Contact) error {
	return translate(d.db.WithContext(ctx).Create(c).Error)
}

func (d *Driver) GetContact(ctx context.Context, id string) (*store.Contact, error) {
	var c store.Contact
	if err := d.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (d *Driver) UpdateContact(ctx context.Context, c *store.Contact) error {
	return d.db.WithContext(ctx).Save(c).Error
}

func (d *Driver) GetContactForCustomer(ctx context.Context, customer string) (*store.Contact, error) {
	// Customer links are stored as a JSON array; LIKE on the quoted value is
	// sufficient for opaque customer identifiers.
	var contacts []*store.Contact
	err := d.db.WithContext(ctx).
		Where("linked_customers LIKE ?", "%\""+customer+"\"%").
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		for _, linked := range c.LinkedCustomers {
			if linked == customer {
				return c, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

// AccountStore

func (d *Driver) GetAccount(ctx context.Context, name string) (*store.Account, error) {
	var a store.Account
	if err := d.db.WithContext(ctx).First(&a, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (d *Driver) SaveAccount(ctx context.Context, a *store.Account) error {
	return d.db.WithContext(ctx).Save(a).Error
}

// CredentialStore

func (d *Driver) GetCredential(ctx context.Context) (*store.Credential, error) {
	var c store.Credential
	if err := d.db.WithContext(ctx).First(&c, "id = ?", store.CredentialID).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (d *Driver) SaveCredential(ctx context.Context, c *store.Credential) error {
	c.ID = store.CredentialID
	return d.db.WithContext(ctx).Save(c).Error
}

// APILogStore

func (d *Driver) AppendAPILog(ctx context.Context, l *store.APILog) error {
	return d.db.WithContext(ctx).Create(l).Error
}
