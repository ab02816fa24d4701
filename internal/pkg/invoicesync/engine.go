package invoicesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/connect"
)

// ErrNotConnected is returned when a sync is requested for a provider the
// user has no stored connection for.
var ErrNotConnected = errors.New("provider is not connected")

// ErrNoInvoiceSource is returned when the provider does not expose an
// invoice list.
var ErrNoInvoiceSource = errors.New("provider has no invoice source")

// Result summarizes one sync run. Per-invoice failures land in Errors while
// the run keeps going; Debug carries a per-record trace for operators
// diagnosing partial syncs.
type Result struct {
	SyncedCount  int      `json:"synced_count"`
	UpdatedCount int      `json:"updated_count"`
	Errors       []string `json:"errors,omitempty"`
	Debug        []string `json:"debug,omitempty"`
}

// Engine reconciles externally fetched invoices against the local invoice
// table: insert new, update mutable fields on known, reassign ownership on
// rows synced earlier under a different user.
type Engine struct {
	service  *connect.Service
	invoices repository.InvoiceRepository
	conns    repository.ConnectionRepository
}

// NewEngine creates a sync engine over the given connection service and
// repositories.
func NewEngine(service *connect.Service, invoices repository.InvoiceRepository, conns repository.ConnectionRepository) *Engine {
	return &Engine{
		service:  service,
		invoices: invoices,
		conns:    conns,
	}
}

// Sync fetches the provider's full invoice list and reconciles it.
// Invoices are processed sequentially in API order; one bad record is
// reported and skipped rather than aborting the batch. The connection's
// last-synced timestamp is touched whenever the fetch itself succeeded,
// regardless of per-invoice outcomes.
func (e *Engine) Sync(ctx context.Context, userID uint, provider string) (*Result, error) {
	conn, err := e.service.Status(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if conn == nil || !conn.IsConnected {
		return nil, ErrNotConnected
	}

	p, err := e.service.Provider(provider)
	if err != nil {
		return nil, err
	}
	source, ok := p.(connect.InvoiceSource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoInvoiceSource, provider)
	}

	var fetched []connect.ExternalInvoice
	err = e.service.WithAccessToken(ctx, conn, func(accessToken string) error {
		var ferr error
		fetched, ferr = source.FetchInvoices(ctx, accessToken)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Debug: []string{fmt.Sprintf("fetched %d invoices from %s", len(fetched), provider)},
	}
	for _, ext := range fetched {
		if perr := e.reconcile(userID, provider, ext, result); perr != nil {
			fiberlog.Errorf("sync: invoice %s failed: %v", ext.ExternalID, perr)
			result.Errors = append(result.Errors, fmt.Sprintf("invoice %s: %v", ext.ExternalID, perr))
			result.Debug = append(result.Debug, fmt.Sprintf("skipped %s: %v", ext.ExternalID, perr))
		}
	}

	if terr := e.conns.TouchLastSynced(conn.ID, time.Now()); terr != nil {
		fiberlog.Errorf("sync: touching last_synced_at for connection %d failed: %v", conn.ID, terr)
	}
	return result, nil
}

// reconcile applies one fetched invoice. The lookup deliberately ignores
// user_id; a row found under another user is reassigned, never duplicated.
func (e *Engine) reconcile(userID uint, provider string, ext connect.ExternalInvoice, result *Result) error {
	if ext.ExternalID == "" {
		return errors.New("missing external id")
	}
	status := mapStatus(ext.Status)
	dueDate, err := parseDueDate(ext.DueDate)
	if err != nil {
		return err
	}

	existing, err := e.invoices.GetByExternalID(ext.ExternalID, provider)
	switch {
	case err == nil && existing.UserID != userID:
		if err := e.invoices.ReassignOwner(existing.ID, userID); err != nil {
			return err
		}
		if err := e.invoices.UpdateMutable(existing.ID, status, ext.Amount); err != nil {
			return err
		}
		result.UpdatedCount++
		result.Debug = append(result.Debug, fmt.Sprintf("adopted %s from user %d", ext.ExternalID, existing.UserID))

	case err == nil:
		if existing.Status == status && existing.Amount == ext.Amount {
			result.Debug = append(result.Debug, fmt.Sprintf("unchanged %s", ext.ExternalID))
			return nil
		}
		if err := e.invoices.UpdateMutable(existing.ID, status, ext.Amount); err != nil {
			return err
		}
		result.UpdatedCount++
		result.Debug = append(result.Debug, fmt.Sprintf("updated %s", ext.ExternalID))

	case errors.Is(err, gorm.ErrRecordNotFound):
		invoice := &models.Invoice{
			UserID:            userID,
			ExternalID:        ext.ExternalID,
			IntegrationSource: provider,
			InvoiceNumber:     ext.InvoiceNumber,
			ClientName:        ext.ClientName,
			ClientEmail:       ext.ClientEmail,
			Amount:            ext.Amount,
			DueDate:           dueDate,
			Status:            status,
		}
		if err := e.invoices.Create(invoice); err != nil {
			return err
		}
		result.SyncedCount++
		result.Debug = append(result.Debug, fmt.Sprintf("created %s", ext.ExternalID))

	default:
		return err
	}
	return nil
}

// mapStatus collapses provider statuses onto the local two-state model.
func mapStatus(external string) string {
	switch strings.ToUpper(external) {
	case "PAID", "MARKED_AS_PAID":
		return models.InvoiceStatusPaid
	default:
		return models.InvoiceStatusPending
	}
}

func parseDueDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing due date")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable due date %q", raw)
	}
	return t, nil
}
