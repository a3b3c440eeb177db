package server

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/explorer"
	"github.com/brojonat/roxscan/service/solana"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render executes the named template and writes it with the given status.
// Nothing is written if execution fails.
func (tr *TemplateRenderer) Render(w http.ResponseWriter, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := tr.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func (tr *TemplateRenderer) page(w http.ResponseWriter, status int, name string, data pageData) {
	if err := tr.Render(w, status, name, data); err != nil {
		tr.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// clusterOption is one entry of the cluster picker.
type clusterOption struct {
	Slug     string
	Name     string
	Selected bool
	Link     string
}

// pageData is what every page template receives.
type pageData struct {
	Title      string
	Path       string
	Selection  cluster.Selection
	Clusters   []clusterOption
	ClusterURL string
	Page       any
}

// pageSelection reads the cluster selection of a page request. A bad
// selection falls back to the default cluster.
func pageSelection(r *http.Request, logger *slog.Logger) cluster.Selection {
	sel, err := cluster.SelectionFromQuery(r.URL.Query())
	if err != nil {
		logger.Debug("invalid cluster selection, using default", "error", err)
	}
	return sel
}

func newPageData(r *http.Request, resolver *cluster.Resolver, sel cluster.Selection, title string, page any) pageData {
	options := make([]clusterOption, 0, len(cluster.All))
	for _, c := range cluster.All {
		opt := cluster.Selection{Cluster: c}
		if c == cluster.Custom {
			opt.CustomURL = cluster.DefaultCustomURL
			if sel.Cluster == cluster.Custom {
				opt.CustomURL = sel.CustomURL
			}
		}
		options = append(options, clusterOption{
			Slug:     c.Slug(),
			Name:     c.Name(),
			Selected: c == sel.Cluster,
			Link:     opt.Link(r.URL.Path),
		})
	}

	return pageData{
		Title:      title,
		Path:       r.URL.Path,
		Selection:  sel,
		Clusters:   options,
		ClusterURL: resolver.ClientURL(sel.Cluster, sel.CustomURL, requestHostname(r)),
		Page:       page,
	}
}

// homePage is the model behind the landing page.
type homePage struct {
	Cluster explorer.ClusterInfo
}

// handleHomePage renders the landing page with the cluster's health.
func handleHomePage(renderer *TemplateRenderer, explorerFor explorerFactory, resolver *cluster.Resolver, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel := pageSelection(r, renderer.logger)

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		info := explorerFor(sel).ClusterInfo(ctx)

		renderer.page(w, http.StatusOK, "home.html", newPageData(r, resolver, sel, "Explorer", homePage{Cluster: info}))
	}
}

// handleSearch sends the query to the transaction or address page it names.
func handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))

		query := r.URL.Query()
		query.Del("q")
		suffix := ""
		if len(query) > 0 {
			suffix = "?" + query.Encode()
		}

		switch {
		case q == "":
			http.Redirect(w, r, "/"+suffix, http.StatusSeeOther)
		case isSignature(q):
			http.Redirect(w, r, "/tx/"+url.PathEscape(q)+suffix, http.StatusSeeOther)
		default:
			// invalid input lands on the address page, which says so
			http.Redirect(w, r, "/address/"+url.PathEscape(q)+suffix, http.StatusSeeOther)
		}
	}
}

func isSignature(s string) bool {
	_, err := solana.ParseSignature(s)
	return err == nil
}

// handleTransactionPage renders the transaction view. When the page says to
// poll, the browser opens the status stream for live updates.
func handleTransactionPage(renderer *TemplateRenderer, explorerFor explorerFactory, resolver *cluster.Resolver, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel := pageSelection(r, renderer.logger)

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		page := explorerFor(sel).TransactionPage(ctx, r.PathValue("signature"))

		status := http.StatusOK
		if page.Signature == "" {
			status = http.StatusBadRequest
		}
		renderer.page(w, status, "tx.html", newPageData(r, resolver, sel, "Transaction", page))
	}
}

// addressView adds the QR code to the address model.
type addressView struct {
	*explorer.AddressPage
	QRCode string
}

// handleAddressPage renders the account view.
func handleAddressPage(renderer *TemplateRenderer, explorerFor explorerFactory, resolver *cluster.Resolver, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel := pageSelection(r, renderer.logger)
		address := r.PathValue("address")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		page := explorerFor(sel).AddressPage(ctx, address)

		view := addressView{AddressPage: page}
		status := http.StatusOK
		if _, err := solana.ParseAddress(address); err != nil {
			status = http.StatusBadRequest
		} else if qr, err := addressQRCode(address); err != nil {
			renderer.logger.Warn("failed to generate QR code", "address", address, "error", err)
		} else {
			view.QRCode = qr
		}
		renderer.page(w, status, "address.html", newPageData(r, resolver, sel, "Address", view))
	}
}

// handleSupplyPage renders the supply overview.
func handleSupplyPage(renderer *TemplateRenderer, explorerFor explorerFactory, resolver *cluster.Resolver, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel := pageSelection(r, renderer.logger)

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		page := explorerFor(sel).SupplyPage(ctx)

		renderer.page(w, http.StatusOK, "supply.html", newPageData(r, resolver, sel, "Supply", page))
	}
}

// handleBlockhashesPage renders the latest blockhash.
func handleBlockhashesPage(renderer *TemplateRenderer, explorerFor explorerFactory, resolver *cluster.Resolver, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel := pageSelection(r, renderer.logger)

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		page := explorerFor(sel).RecentBlockhashes(ctx)

		renderer.page(w, http.StatusOK, "blockhashes.html", newPageData(r, resolver, sel, "Recent Blockhashes", page))
	}
}

// handleNotFoundPage renders the fallback for unknown paths.
func handleNotFoundPage(renderer *TemplateRenderer, resolver *cluster.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel := pageSelection(r, renderer.logger)
		renderer.page(w, http.StatusNotFound, "notfound.html", newPageData(r, resolver, sel, "Not Found", nil))
	}
}
