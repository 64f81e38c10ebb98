package webapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"graphql-admin/internal/filter"
	"graphql-admin/internal/labels"
	"graphql-admin/internal/listquery"
	"graphql-admin/internal/listview"
	"graphql-admin/internal/logging"
	"graphql-admin/internal/xlsxexport"
)

// List field names end up verbatim in the query text, so only GraphQL names pass.
var graphQLName = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

const maxBodyBytes = 1 << 20

// EntityLink is one navigation entry.
type EntityLink struct {
	Field       string `json:"field"`
	Label       string `json:"label"`
	ElementType string `json:"elementType"`
}

// EntityMetadata is the column description of one list field.
type EntityMetadata struct {
	ListField   string              `json:"listField"`
	ElementType string              `json:"elementType"`
	Title       string              `json:"title"`
	Locale      string              `json:"locale"`
	Columns     []listview.Column   `json:"columns"`
	Selection   string              `json:"selection"`
	Operators   map[string][]string `json:"operators"`
	Degraded    bool                `json:"degraded"`
}

type createViewRequest struct {
	ListField string `json:"listField"`
	Locale    string `json:"locale"`
	PageSize  int    `json:"pageSize"`
}

type viewResponse struct {
	ID       string            `json:"id"`
	Snapshot listview.Snapshot `json:"snapshot"`
}

// Action is one UI interaction applied to a view.
type Action struct {
	Type     string               `json:"type"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
	Sort     []listquery.SortTerm `json:"sort"`
	Column   string               `json:"column"`
	Entries  []filter.Entry       `json:"entries"`
	Locale   string               `json:"locale"`
}

// LocaleList feeds the shell's language selector.
type LocaleList struct {
	Default string   `json:"default"`
	Locales []string `json:"locales"`
}

func (a *API) handleLocales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LocaleList{
		Default: a.cfg.DefaultLocale,
		Locales: labels.AvailableLocales(r.Context(), a.cfg.LabelStore, a.cfg.LabelRegistry, a.cfg.DefaultLocale, a.logger),
	})
}

func (a *API) handleEntities(w http.ResponseWriter, r *http.Request) {
	snap := a.cfg.Schema.Current()
	res := a.resolver(r.Context(), r.URL.Query().Get("locale"))

	links := []EntityLink{}
	for _, field := range snap.Model.ListFieldNames() {
		meta := a.metadataFor(snap, field)
		links = append(links, EntityLink{
			Field:       field,
			Label:       listview.ResolveTitle(res, a.cfg.Namer, field, meta, a.cfg.HumanizeLabels),
			ElementType: meta.ElementType,
		})
	}
	writeJSON(w, http.StatusOK, links)
}

func (a *API) handleMetadata(w http.ResponseWriter, r *http.Request) {
	listField := r.PathValue("listField")
	if !graphQLName.MatchString(listField) {
		writeError(w, http.StatusBadRequest, "invalid list field name")
		return
	}
	meta := a.metadataFor(a.cfg.Schema.Current(), listField)
	res := a.resolver(r.Context(), r.URL.Query().Get("locale"))

	operators := make(map[string][]string, len(meta.Columns))
	for _, column := range meta.Columns {
		ops := filter.Operators(filter.Classify(meta.FieldType(column)))
		names := make([]string, 0, len(ops))
		for _, op := range ops {
			names = append(names, string(op))
		}
		operators[column] = names
	}

	writeJSON(w, http.StatusOK, EntityMetadata{
		ListField:   listField,
		ElementType: meta.ElementType,
		Title:       listview.ResolveTitle(res, a.cfg.Namer, listField, meta, a.cfg.HumanizeLabels),
		Locale:      res.Locale(),
		Columns:     listview.ResolveColumns(res, a.cfg.Namer, meta, a.cfg.HumanizeLabels),
		Selection:   meta.Selection,
		Operators:   operators,
		Degraded:    meta.Degraded,
	})
}

func (a *API) handleCreateView(w http.ResponseWriter, r *http.Request) {
	var req createViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !graphQLName.MatchString(req.ListField) {
		writeError(w, http.StatusBadRequest, "invalid list field name")
		return
	}

	ctrl, err := a.newView(r.Context(), req.ListField, req.Locale, req.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := a.views.Add(ctrl)
	if err := ctrl.Refresh(); err != nil {
		a.writeViewError(w, r, err)
		return
	}
	a.settle(r.Context(), ctrl)

	logging.FromContext(r.Context()).Info("list view opened",
		slog.String("view_id", id),
		slog.String("list_field", req.ListField),
	)
	writeJSON(w, http.StatusCreated, viewResponse{ID: id, Snapshot: ctrl.Snapshot()})
}

func (a *API) handleGetView(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctrl, err := a.views.Get(id)
	if err != nil {
		a.writeViewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{ID: id, Snapshot: ctrl.Snapshot()})
}

func (a *API) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	if err := a.views.Remove(r.PathValue("id")); err != nil {
		a.writeViewError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctrl, err := a.views.Get(id)
	if err != nil {
		a.writeViewError(w, r, err)
		return
	}

	var action Action
	if err := decodeJSON(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.apply(r, ctrl, action); err != nil {
		a.writeViewError(w, r, err)
		return
	}
	a.settle(r.Context(), ctrl)
	writeJSON(w, http.StatusOK, viewResponse{ID: id, Snapshot: ctrl.Snapshot()})
}

// badRequest marks errors caused by the action payload itself.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

// invalidUnlessClosed treats a rejected page, page size or filter column as a client error.
func invalidUnlessClosed(err error) error {
	if err == nil || errors.Is(err, listview.ErrClosed) {
		return err
	}
	return badRequest{err}
}

func (a *API) apply(r *http.Request, ctrl *listview.Controller, action Action) error {
	switch action.Type {
	case "page":
		return invalidUnlessClosed(ctrl.SetPage(action.Page))
	case "page_size":
		return invalidUnlessClosed(ctrl.SetPageSize(action.PageSize))
	case "sort":
		terms := make([]listquery.SortTerm, 0, len(action.Sort))
		for _, term := range action.Sort {
			terms = append(terms, listquery.SortTerm{
				Column:    term.Column,
				Direction: listquery.ParseDirection(string(term.Direction)),
			})
		}
		return ctrl.SetSort(terms)
	case "stage_filter":
		if strings.TrimSpace(action.Column) == "" {
			return badRequest{fmt.Errorf("stage_filter requires a column")}
		}
		return invalidUnlessClosed(ctrl.StageFilter(action.Column, action.Entries))
	case "apply_filters":
		return ctrl.ApplyFilters()
	case "clear_filters":
		return ctrl.ClearFilters()
	case "refresh":
		return ctrl.Refresh()
	case "locale":
		ctrl.SetLocale(r.Context(), action.Locale)
		return nil
	default:
		return badRequest{fmt.Errorf("unknown action type %q", action.Type)}
	}
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	ctrl, err := a.views.Get(r.PathValue("id"))
	if err != nil {
		a.writeViewError(w, r, err)
		return
	}
	snap := ctrl.Snapshot()

	var buf bytes.Buffer
	if err := xlsxexport.Write(&buf, snap); err != nil {
		logging.FromContext(r.Context()).Error("failed to export view",
			slog.String("list_field", snap.ListField),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxexport.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", xlsxexport.FileName(snap.ListField)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) writeViewError(w http.ResponseWriter, r *http.Request, err error) {
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.Error())
	case errors.Is(err, ErrViewNotFound), errors.Is(err, listview.ErrClosed):
		writeError(w, http.StatusNotFound, "view not found")
	default:
		logging.FromContext(r.Context()).Error("view action failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a bounded body. Numbers stay json.Number so filter values keep
// their exact text.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
