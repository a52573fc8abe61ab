package http

import (
	"net/http"

	"golang.org/x/sync/errgroup"
)

type panelHandler func(w http.ResponseWriter, r *http.Request, sess *BrowserSession, p panel)

func (s *Server) withPanel(name string, h panelHandler) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *BrowserSession) {
		p, ok := sess.Panel(name)
		if !ok {
			NotFoundError("Unknown resource").Write(w)
			return
		}
		h(w, r, sess, p)
	}
}

// handleTransactionManagement renders the four CRUD panels. Their lists load
// concurrently; a failed list only shows inside its panel.
func (s *Server) handleTransactionManagement(w http.ResponseWriter, r *http.Request, sess *BrowserSession) {
	g, gctx := errgroup.WithContext(r.Context())
	for _, name := range panelOrder {
		p := sess.panels[name]
		p.Close()
		g.Go(func() error {
			if err := p.Refresh(gctx); sessionGone(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.redirect(w, r, loginPath)
		return
	}
	s.renderManagement(w, r, sess, http.StatusOK)
}

func (s *Server) renderManagement(w http.ResponseWriter, r *http.Request, sess *BrowserSession, status int) {
	panels := make([]PanelView, 0, len(panelOrder))
	for _, name := range panelOrder {
		v, err := sess.panels[name].View(r.Context())
		if err != nil {
			s.fail(w, r, err, "Failed to load categories")
			return
		}
		panels = append(panels, v)
	}
	page := newPage(sess, "Transaction Management", managementPath)
	page.Content = panels
	s.render(w, r, status, "transaction_management.html", page)
}

// handlePanel reloads one panel's list.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request, sess *BrowserSession) {
	p, ok := sess.Panel(r.PathValue("resource"))
	if !ok {
		NotFoundError("Unknown resource").Write(w)
		return
	}
	if err := p.Refresh(r.Context()); sessionGone(err) {
		s.redirect(w, r, loginPath)
		return
	}
	s.renderPanel(w, r, sess, p, NewHTMXResponse())
}

func (s *Server) handlePanelNew(w http.ResponseWriter, r *http.Request, sess *BrowserSession, p panel) {
	p.OpenNew()
	s.renderPanel(w, r, sess, p, NewHTMXResponse())
}

// handlePanelEdit opens the dialog on a listed record. A record missing from
// the cached list triggers one reload before giving up.
func (s *Server) handlePanelEdit(w http.ResponseWriter, r *http.Request, sess *BrowserSession, p panel) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Record not found").Write(w)
		return
	}
	if !p.OpenEdit(id) {
		if err := p.Refresh(r.Context()); sessionGone(err) {
			s.redirect(w, r, loginPath)
			return
		}
		if !p.OpenEdit(id) {
			NotFoundError("Record not found").Write(w)
			return
		}
	}
	s.renderPanel(w, r, sess, p, NewHTMXResponse())
}

func (s *Server) handlePanelClose(w http.ResponseWriter, r *http.Request, sess *BrowserSession, p panel) {
	p.Close()
	s.renderPanel(w, r, sess, p, NewHTMXResponse())
}

// handlePanelSubmit creates (POST /{resource}) or updates (POST
// /{resource}/{id}) a record. The URL decides which; validation and backend
// rejections come back inside the re-rendered dialog.
func (s *Server) handlePanelSubmit(w http.ResponseWriter, r *http.Request, sess *BrowserSession, p panel) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if r.PathValue("id") == "" {
		p.OpenNew()
	} else {
		id, ok := pathID(r)
		if !ok || !p.OpenEdit(id) {
			NotFoundError("Record not found").Write(w)
			return
		}
	}

	saved, err := p.Submit(r.Context(), r.PostForm)
	if err != nil {
		s.fail(w, r, err, "Failed to save")
		return
	}

	b := NewHTMXResponse()
	if saved {
		b.TriggerRecordSaved(p.Path()).TriggerSuccessNotification("Saved")
	}
	if !isHTMX(r) {
		if saved {
			s.redirect(w, r, managementPath)
			return
		}
		s.renderManagement(w, r, sess, http.StatusUnprocessableEntity)
		return
	}
	s.renderPanel(w, r, sess, p, b)
}

func (s *Server) handlePanelDelete(w http.ResponseWriter, r *http.Request, sess *BrowserSession, p panel) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Record not found").Write(w)
		return
	}
	b := NewHTMXResponse()
	if err := p.Delete(r.Context(), id); err != nil {
		if sessionGone(err) {
			s.redirect(w, r, loginPath)
			return
		}
		s.logFailure(r, err)
		b.TriggerErrorNotification(errorText(err, "Failed to delete"))
	} else {
		b.TriggerRecordDeleted(p.Path(), id).TriggerSuccessNotification("Deleted")
	}
	s.renderPanel(w, r, sess, p, b)
}

// renderPanel writes one panel partial through b.
func (s *Server) renderPanel(w http.ResponseWriter, r *http.Request, sess *BrowserSession, p panel, b *HTMXResponseBuilder) {
	v, err := p.View(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to load categories")
		return
	}
	if err := b.Render(s.templates, v.Template(), v); err != nil {
		s.logFailure(r, err)
	}
	b.Write(w)
}
