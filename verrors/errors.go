// Package verrors defines the unified error envelope validators raise into,
// and the per-record handler that catches, tags and accumulates them.
package verrors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Hochfrequenz/bo4e-migration-framework/bind"
	"github.com/Hochfrequenz/bo4e-migration-framework/errid"
	"github.com/Hochfrequenz/bo4e-migration-framework/internal/logx"
)

// ValidationError is the unified schema every error surfaced during
// validation is wrapped into, regardless of which validator function or
// parameter provider raised it.
type ValidationError struct {
	ErrorID        int
	Detail         string
	Cause          error
	RecordID       string
	ValidatorName  string
	ProvidedParams *bind.Parameters
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s\n", e.ErrorID, e.Detail)
	fmt.Fprintf(&b, "\tRecord: id=%s\n", e.RecordID)
	fmt.Fprintf(&b, "\tError ID: %d\n", e.ErrorID)
	fmt.Fprintf(&b, "\tValidator function: %s", e.ValidatorName)
	if e.ProvidedParams != nil {
		b.WriteString("\n\tParameter information:\n")
		b.WriteString(formatParams(e.ProvidedParams, "\t\t"))
	}
	return b.String()
}

// Unwrap exposes the original error for errors.Is/errors.As.
func (e *ValidationError) Unwrap() error { return e.Cause }

func formatParams(params *bind.Parameters, indent string) string {
	names := make([]string, 0, len(params.All()))
	for name := range params.All() {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(indent + "{")
	for _, name := range names {
		p, _ := params.Param(name)
		state := "unprovided"
		if p.Provided {
			state = "provided"
		}
		fmt.Fprintf(&b, "\n%s\t%s: value='%v', id='%s', %s", indent, name, p.Value, p.ParamID, state)
	}
	b.WriteString("\n" + indent + "}")
	return b.String()
}

// Handler accumulates ValidationErrors for a single record, keyed by the
// ParameterProvider whose validator produced them. It is safe for
// concurrent use by the goroutines a Manager schedules for one record.
type Handler struct {
	mu       sync.Mutex
	recordID string
	logger   *logx.Logger
	excs     map[bind.ParameterProvider][]*ValidationError
}

// NewHandler creates a Handler for one record's run, logging every catch
// through logger.
func NewHandler(recordID string, logger *logx.Logger) *Handler {
	if logger == nil {
		logger = logx.Default()
	}
	return &Handler{recordID: recordID, logger: logger, excs: make(map[bind.ParameterProvider][]*ValidationError)}
}

// Catch records a new ValidationError. A non-zero customErrorID is used as
// is; otherwise a cause implementing errid.Tagged gets the id of its tag,
// and any other cause gets an id derived from the call site two frames
// above Catch (for errors routed through Guard: Guard's caller) combined
// with validatorName.
func (h *Handler) Catch(detail string, cause error, mv bind.ParameterProvider, validatorName string, params *bind.Parameters, customErrorID int) {
	id := customErrorID
	if id == 0 {
		var tagged errid.Tagged
		if errors.As(cause, &tagged) {
			id = errid.Default().IDForTag(tagged.ErrorTag())
		} else {
			ident := errid.IdentifierForError(2)
			ident.Function += "#" + validatorName
			id = errid.Default().IDFor(ident)
		}
	}
	ve := &ValidationError{
		ErrorID:        id,
		Detail:         detail,
		Cause:          cause,
		RecordID:       h.recordID,
		ValidatorName:  validatorName,
		ProvidedParams: params,
	}

	h.mu.Lock()
	h.excs[mv] = append(h.excs[mv], ve)
	h.mu.Unlock()

	h.logger.Warn("record %s: validator %s caught error %d: %s", h.recordID, validatorName, id, detail)
}

// Guard runs body and, if it returns a non-nil error, catches it under the
// correct id: context.DeadlineExceeded becomes the reserved timeout id,
// anything else is tagged by raise site.
func (h *Handler) Guard(mv bind.ParameterProvider, validatorName string, params *bind.Parameters, timeoutSeconds float64, body func() error) {
	err := body()
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		h.Catch(fmt.Sprintf("Timeout (%gs) during execution", timeoutSeconds), err, mv, validatorName, params, errid.IDTimeout)
		return
	}
	h.Catch(err.Error(), err, mv, validatorName, params, 0)
}

// All returns every ValidationError caught so far, across all validators.
func (h *Handler) All() []*ValidationError {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*ValidationError
	for _, errs := range h.excs {
		out = append(out, errs...)
	}
	return out
}

// For returns the ValidationErrors caught for one specific provider.
func (h *Handler) For(mv bind.ParameterProvider) []*ValidationError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*ValidationError(nil), h.excs[mv]...)
}
