package http

import (
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"finboard/internal/views"
)

type overviewView struct {
	State views.OverviewState
	query url.Values
}

// PageURL links the table partial at zero-based page index with the current filter.
func (v overviewView) PageURL(index int) string {
	q := url.Values{}
	for k, vs := range v.query {
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(index))
	return "/transactions-overview/table?" + q.Encode()
}

func (v overviewView) PrevURL() string { return v.PageURL(v.State.PageIndex - 1) }
func (v overviewView) NextURL() string { return v.PageURL(v.State.PageIndex + 1) }

// IsIncome is the filter's tri-state value as the select expects it.
func (v overviewView) IsIncome() string {
	if v.State.Filter.IsIncome == nil {
		return ""
	}
	return strconv.FormatBool(*v.State.Filter.IsIncome)
}

func newOverviewView(st views.OverviewState) overviewView {
	return overviewView{State: st, query: filterQuery(st.Filter)}
}

// handleTransactionsOverview renders the page around the transactions table.
// The category filter choices and the first page load concurrently.
func (s *Server) handleTransactionsOverview(w http.ResponseWriter, r *http.Request, sess *BrowserSession) {
	query := r.URL.Query()
	filter := ParseTransactionFilter(query)
	index := ParsePageIndex(query)

	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return sess.Overview.LoadCategories(gctx) })
	g.Go(func() error { return sess.Overview.Show(gctx, filter, index) })
	if err := g.Wait(); err != nil {
		s.fail(w, r, err, "Failed to load transactions")
		return
	}

	page := newPage(sess, "Transactions Overview", "/transactions-overview")
	page.Content = newOverviewView(sess.Overview.Snapshot())
	s.render(w, r, http.StatusOK, "transactions_overview.html", page)
}

// handleTransactionsTable re-renders the table for a new filter or page.
func (s *Server) handleTransactionsTable(w http.ResponseWriter, r *http.Request, sess *BrowserSession) {
	query := r.URL.Query()
	if err := sess.Overview.Show(r.Context(), ParseTransactionFilter(query), ParsePageIndex(query)); err != nil {
		s.fail(w, r, err, "Failed to load transactions")
		return
	}
	s.render(w, r, http.StatusOK, "transactions_table", newOverviewView(sess.Overview.Snapshot()))
}
