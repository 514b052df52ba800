// Package console serves the administrator console: resource panels and the
// subscription key form.
package console

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tragel/adminconsole/internal/directory"
	"github.com/tragel/adminconsole/internal/inflight"
	"github.com/tragel/adminconsole/internal/panel"
	"github.com/tragel/adminconsole/internal/platform/httpx"
	"github.com/tragel/adminconsole/internal/shared"
	"github.com/tragel/adminconsole/internal/subscription"
	"github.com/tragel/adminconsole/internal/upstream"
	"github.com/tragel/adminconsole/internal/view"
)

// FragmentHeader marks requests issued by the console script; they receive
// HTML fragments instead of a full page.
const FragmentHeader = "X-Console-Fragment"

const (
	keyRateLimit  = 10
	keyRateWindow = time.Minute
)

// Links describes how resource listing URLs are built for a company.
type Links struct {
	ProductsURL   string
	ProductsParam string
	StaffURL      string
	StaffParam    string
}

// Handler wires the console endpoints.
type Handler struct {
	logger     *slog.Logger
	templates  *view.Engine
	sessions   *shared.SessionManager
	csrf       *shared.CSRFManager
	workspaces *Workspaces
	directory  *directory.Directory
	links      Links
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, workspaces *Workspaces, dir *directory.Directory, links Links) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		templates:  templates,
		sessions:   sessions,
		csrf:       csrf,
		workspaces: workspaces,
		directory:  dir,
		links:      links,
	}
}

// MountRoutes registers the console routes.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(keyRateLimit, keyRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Get("/", h.showConsole)
	r.Get("/state.json", h.showState)
	r.Get("/panels/{kind}", h.refreshPanel)
	r.Get("/panels/{kind}/export.csv", h.exportPanel)
	r.Post("/subscription/company", h.changeCompany)
	r.With(limiter).Post("/subscription/key", h.createKey)
	r.Post("/companies/reload", h.reloadCompanies)
	r.Post("/session/end", h.endSession)
}

func rateLimitKey(r *http.Request) (string, error) {
	if id := shared.SessionIDFromContext(r.Context()); id != "" {
		return "session:" + id, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type selectorOption struct {
	Label string
	URL   string
}

type consolePage struct {
	Companies     []directory.Company
	ProductLinks  []selectorOption
	StaffLinks    []selectorOption
	Panels        panelsFragment
	Subscription  subscriptionFragment
	DirectoryNote string
}

type panelsFragment struct {
	View  panel.View
	Error string
}

type subscriptionFragment struct {
	State     subscription.State
	Alert     string
	CSRFToken string
}

func (h *Handler) showConsole(w http.ResponseWriter, r *http.Request) {
	ws, sess, ok := h.workspace(w, r)
	if !ok {
		return
	}
	h.renderPage(w, r, ws, sess, http.StatusOK, panelsFragment{View: ws.Board.View()})
}

type panelState struct {
	Kind    panel.Kind `json:"kind"`
	PanelID string     `json:"panel_id"`
	Visible bool       `json:"visible"`
	TableID string     `json:"table_id"`
	Header  []string   `json:"header"`
	Rows    [][]string `json:"rows"`
}

type workspaceState struct {
	Panels       []panelState       `json:"panels"`
	Subscription subscription.State `json:"subscription"`
}

// showState reports the workspace render state as JSON.
func (h *Handler) showState(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, fmt.Errorf("console: %w", httpx.ErrForbidden))
		return
	}
	ws := h.workspaces.For(sess.ID)
	snapshot := ws.Board.View()
	out := workspaceState{Subscription: ws.Subscription.State()}
	for _, p := range snapshot.Panels {
		rows := make([][]string, 0, len(p.Table.Rows))
		for _, row := range p.Table.Rows {
			rows = append(rows, row.Cells)
		}
		out.Panels = append(out.Panels, panelState{
			Kind:    p.Kind,
			PanelID: p.PanelID,
			Visible: p.Visible,
			TableID: p.Table.ID,
			Header:  p.Table.Header,
			Rows:    rows,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) refreshPanel(w http.ResponseWriter, r *http.Request) {
	ws, sess, ok := h.workspace(w, r)
	if !ok {
		return
	}
	kind, err := panel.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	viewState, err := ws.Board.Refresh(r.Context(), kind, r.URL.Query().Get("url"))
	status := http.StatusOK
	fragment := panelsFragment{View: viewState}
	switch {
	case errors.Is(err, inflight.ErrSuperseded):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		status = upstreamStatus(err)
		fragment.Error = fmt.Sprintf("Unable to load %s.", kind)
	}

	if !isFragment(r) {
		if fragment.Error != "" {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: fragment.Error})
		}
		h.renderPage(w, r, ws, sess, status, fragment)
		return
	}
	if err := h.templates.RenderPartial(w, status, "partials/panels.html", fragment); err != nil {
		h.logger.Error("render panels", slog.Any("error", err))
	}
}

func (h *Handler) exportPanel(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := h.workspace(w, r)
	if !ok {
		return
	}
	kind, err := panel.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var table panel.Table
	if rawURL := r.URL.Query().Get("url"); rawURL != "" {
		table, err = ws.Board.Fetch(r.Context(), kind, rawURL)
	} else {
		table, err = ws.Board.Table(kind)
	}
	if err != nil {
		status := upstreamStatus(err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, kind))
	if err := panel.WriteCSV(w, table); err != nil {
		h.logger.Error("export panel", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}

func (h *Handler) changeCompany(w http.ResponseWriter, r *http.Request) {
	ws, sess, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	out, err := ws.Subscription.CompanyChanged(r.Context(), r.PostFormValue("company_id"))
	h.respondSubscription(w, r, sess, out, err)
}

func (h *Handler) createKey(w http.ResponseWriter, r *http.Request) {
	ws, sess, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	out, err := ws.Subscription.CreateKey(r.Context(), subscription.KeyRequest{
		CompanyID: r.PostFormValue("company_id"),
		Start:     r.PostFormValue("start"),
		End:       r.PostFormValue("end"),
	})
	h.respondSubscription(w, r, sess, out, err)
}

func (h *Handler) respondSubscription(w http.ResponseWriter, r *http.Request, sess *shared.Session, out subscription.Outcome, err error) {
	if errors.Is(err, inflight.ErrSuperseded) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !isFragment(r) {
		if out.Alert != "" {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: out.Alert})
		}
		http.Redirect(w, r, "/console", http.StatusSeeOther)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = upstreamStatus(err)
	}
	token, _ := h.csrf.EnsureToken(r.Context(), sess)
	fragment := subscriptionFragment{State: out.State, Alert: out.Alert, CSRFToken: token}
	if err := h.templates.RenderPartial(w, status, "partials/subscription.html", fragment); err != nil {
		h.logger.Error("render subscription", slog.Any("error", err))
	}
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, ws *Workspace, sess *shared.Session, status int, panels panelsFragment) {
	csrfToken, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("csrf token", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	page := consolePage{
		Panels:       panels,
		Subscription: subscriptionFragment{State: ws.Subscription.State(), CSRFToken: csrfToken},
	}
	companies, err := h.directory.Companies(r.Context())
	if err != nil {
		h.logger.Warn("load company directory", slog.Any("error", err))
		page.DirectoryNote = "Companies are unavailable right now."
	}
	page.Companies = companies
	page.ProductLinks = h.links.options(companies, h.links.ProductsURL, h.links.ProductsParam)
	page.StaffLinks = h.links.options(companies, h.links.StaffURL, h.links.StaffParam)

	data := view.TemplateData{
		Title:       "Admin console",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        page,
	}
	if err := h.templates.RenderStatus(w, status, "pages/console.html", data); err != nil {
		h.logger.Error("render console", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// reloadCompanies drops the cached company list so the next page load fetches it.
func (h *Handler) reloadCompanies(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.directory.Invalidate(r.Context()); err != nil {
		h.logger.Warn("invalidate company directory", slog.Any("error", err))
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Companies could not be reloaded."})
		}
	}
	http.Redirect(w, r, "/console", http.StatusSeeOther)
}

// endSession forgets the browser session and its workspace.
func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.workspaces.Drop(sess.ID)
		if h.sessions != nil {
			h.sessions.Destroy(sess)
		}
	}
	http.Redirect(w, r, "/console", http.StatusSeeOther)
}

func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) (*Workspace, *shared.Session, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("console request without session", slog.String("path", r.URL.Path))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, nil, false
	}
	return h.workspaces.For(sess.ID), sess, true
}

// options builds one selector entry per company. The first entry selects nothing.
func (l Links) options(companies []directory.Company, base, param string) []selectorOption {
	opts := []selectorOption{{Label: "None", URL: ""}}
	if strings.TrimSpace(base) == "" {
		return opts
	}
	if param == "" {
		param = "company_id"
	}
	for _, c := range companies {
		u, err := url.Parse(base)
		if err != nil {
			return opts
		}
		q := u.Query()
		q.Set(param, strconv.FormatInt(c.ID, 10))
		u.RawQuery = q.Encode()
		opts = append(opts, selectorOption{Label: c.Name, URL: u.String()})
	}
	return opts
}

func isFragment(r *http.Request) bool {
	return r.Header.Get(FragmentHeader) != ""
}

func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, inflight.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, panel.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, upstream.ErrForeignHost), errors.Is(err, upstream.ErrEmptyURL):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
