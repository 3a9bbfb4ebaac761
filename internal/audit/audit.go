package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeline/storeplane/pkg/tenant"
)

// Entry represents a single append-only audit log entry.
type Entry struct {
	TenantID     string
	Action       string
	ResourceType string
	ResourceID   string
	Status       string
	Detail       json.RawMessage
	IPAddress    *netip.Addr
}

// Writer is an async, buffered audit log writer. Writes must never block or
// fail the request they describe: entries are enqueued on a channel and
// flushed by a background goroutine on a timer or batch-size threshold.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the
// database and returns immediately. The goroutine exits when the context is
// cancelled, after draining and flushing any pending entries.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource_type", entry.ResourceType)
	}
}

// LogFromRequest extracts tenant and client IP from the request context and
// enqueues an audit entry describing the outcome of a handled request.
func (w *Writer) LogFromRequest(r *http.Request, action, resourceType, resourceID, status string, detail json.RawMessage) {
	entry := Entry{
		TenantID:     tenant.FromContext(r.Context()),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       status,
		Detail:       detail,
	}

	if ip := clientIP(r); ip.IsValid() {
		entry.IPAddress = &ip
	}

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to audit_logs. Failures are logged only —
// audit writes never affect the user-visible outcome of the request they
// describe (AuditError, per the error handling design).
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		w.logger.Error("acquiring connection for audit flush", "error", err, "count", len(entries))
		return
	}
	defer conn.Release()

	const query = `INSERT INTO audit_logs (tenant_id, action, resource_type, resource_id, status, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`

	for _, e := range entries {
		var ip *string
		if e.IPAddress != nil {
			s := e.IPAddress.String()
			ip = &s
		}
		if _, err := conn.Exec(ctx, query,
			e.TenantID, e.Action, e.ResourceType, e.ResourceID, e.Status, e.Detail, ip,
		); err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "resource_type", e.ResourceType)
		}
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
