// Package views holds the per-session state behind the management pages: the
// record lists, the create/edit dialog and its form, and the transactions table.
// Handlers render snapshots of this state; nothing here writes HTML.
package views

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"finboard/internal/apiclient"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/services"
)

// RootField is the key under which form-wide errors are reported.
const RootField = "root"

// Service is the slice of a resource service a controller drives.
type Service[T, In any] interface {
	List(ctx context.Context, query url.Values) ([]T, error)
	Create(ctx context.Context, in In) (T, error)
	Update(ctx context.Context, id int64, in In) (T, error)
	Delete(ctx context.Context, id int64) error
}

// Binding describes how one resource's records and forms relate.
type Binding[T, F, In any] struct {
	Resource string
	Query    url.Values
	ID       func(T) int64
	ToForm   func(T) F
	Defaults func() F
	ToInput  func(F) (In, error)
	// ErrorField receives backend rejections; empty means RootField.
	ErrorField string
	// SaveFallback is shown when a rejection carries no usable message.
	SaveFallback string
	// ListFallback is shown when a list fetch fails without a usable message.
	ListFallback string
}

// Deps are the collaborators shared by every controller of a session.
type Deps struct {
	SessionID string
	User      func() string
	Publisher core.ActivityPublisher
	Logger    *log.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = core.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = log.Discard()
	}
	if d.User == nil {
		d.User = func() string { return "" }
	}
	return d
}

// State is a rendering snapshot of a controller.
type State[T, F any] struct {
	Items     []T
	Loading   bool
	ListError string
	Open      bool
	Editing   *T
	Form      F
	Errors    core.FieldErrors
}

// RootError is the form-wide error, if any.
func (s State[T, F]) RootError() string { return s.Errors[RootField] }

// Controller runs the list/dialog/form cycle for one resource. It is safe for
// concurrent use; each browser session owns its own controllers.
type Controller[T, F, In any] struct {
	svc     Service[T, In]
	binding Binding[T, F, In]
	deps    Deps
	logger  *log.Logger

	mu    sync.Mutex
	state State[T, F]
}

func NewController[T, F, In any](svc Service[T, In], binding Binding[T, F, In], deps Deps) *Controller[T, F, In] {
	deps = deps.withDefaults()
	c := &Controller[T, F, In]{
		svc:     svc,
		binding: binding,
		deps:    deps,
		logger:  deps.Logger.WithComponent(log.ComponentViews).With(log.FieldResource, binding.Resource),
	}
	c.state.Items = []T{}
	c.state.Form = binding.Defaults()
	return c
}

func (c *Controller[T, F, In]) Resource() string { return c.binding.Resource }

// Snapshot copies the current state for rendering.
func (c *Controller[T, F, In]) Snapshot() State[T, F] {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Items = append([]T(nil), c.state.Items...)
	if c.state.Errors != nil {
		s.Errors = make(core.FieldErrors, len(c.state.Errors))
		for k, v := range c.state.Errors {
			s.Errors[k] = v
		}
	}
	return s
}

// Refresh reloads the list. On failure the previous items are kept.
func (c *Controller[T, F, In]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.state.Loading = true
	c.mu.Unlock()

	items, err := c.svc.List(ctx, c.binding.Query)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loading = false
	if err != nil {
		c.state.ListError = c.listErrorText(err)
		c.logger.Error("Failed to load records", log.FieldOperation, log.OpList, log.FieldError, err)
		return err
	}
	c.state.Items = items
	c.state.ListError = ""
	return nil
}

func (c *Controller[T, F, In]) listErrorText(err error) string {
	var failure *services.Failure
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	if c.binding.ListFallback != "" {
		return c.binding.ListFallback
	}
	return "Failed to fetch records"
}

// OpenNew opens the dialog with a blank form.
func (c *Controller[T, F, In]) OpenNew() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Open = true
	c.state.Editing = nil
	c.state.Form = c.binding.Defaults()
	c.state.Errors = nil
}

// OpenEdit opens the dialog on the listed record with id. It reports false when
// the record is not in the current list.
func (c *Controller[T, F, In]) OpenEdit(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.state.Items {
		if c.binding.ID(c.state.Items[i]) == id {
			item := c.state.Items[i]
			c.state.Open = true
			c.state.Editing = &item
			c.state.Form = c.binding.ToForm(item)
			c.state.Errors = nil
			return true
		}
	}
	return false
}

// Close dismisses the dialog and resets the form.
func (c *Controller[T, F, In]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Controller[T, F, In]) reset() {
	c.state.Open = false
	c.state.Editing = nil
	c.state.Form = c.binding.Defaults()
	c.state.Errors = nil
}

// Submit validates form and creates or updates the record being edited.
// Validation and backend rejections are recorded in the state and reported as
// (false, nil); only session expiry and lifecycle errors are returned.
func (c *Controller[T, F, In]) Submit(ctx context.Context, form F) (bool, error) {
	c.mu.Lock()
	c.state.Form = form
	var editing *T
	if c.state.Editing != nil {
		item := *c.state.Editing
		editing = &item
	}
	c.mu.Unlock()

	if errs := core.ValidateForm(&form); errs != nil {
		c.setErrors(errs)
		return false, nil
	}
	in, err := c.binding.ToInput(form)
	if err != nil {
		var fe core.FieldErrors
		if errors.As(err, &fe) {
			c.setErrors(fe)
			return false, nil
		}
		c.setErrors(core.FieldErrors{RootField: err.Error()})
		return false, nil
	}

	var (
		saved  T
		action string
	)
	if editing != nil {
		action = core.ActionUpdated
		saved, err = c.svc.Update(ctx, c.binding.ID(*editing), in)
	} else {
		action = core.ActionCreated
		saved, err = c.svc.Create(ctx, in)
	}
	if err != nil {
		if apiclient.IsSessionExpired(err) || errors.Is(err, apiclient.ErrClientClosed) {
			return false, err
		}
		c.setErrors(core.FieldErrors{c.errorField(): c.saveMessage(err)})
		c.logger.Warn("Save rejected", log.FieldOperation, action, log.FieldError, err)
		return false, nil
	}

	id := c.binding.ID(saved)
	if editing != nil && id == 0 {
		id = c.binding.ID(*editing)
	}
	c.publish(ctx, action, id)

	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	if err := c.Refresh(ctx); err != nil && apiclient.IsSessionExpired(err) {
		return true, err
	}
	return true, nil
}

// Delete removes the record and reloads the list.
func (c *Controller[T, F, In]) Delete(ctx context.Context, id int64) error {
	if err := c.svc.Delete(ctx, id); err != nil {
		c.logger.Error("Failed to delete record",
			log.FieldOperation, log.OpDelete,
			log.FieldResourceID, id,
			log.FieldError, err)
		return fmt.Errorf("delete %s: %w", c.binding.Resource, err)
	}
	c.publish(ctx, core.ActionDeleted, id)
	return c.Refresh(ctx)
}

func (c *Controller[T, F, In]) setErrors(errs core.FieldErrors) {
	c.mu.Lock()
	c.state.Errors = errs
	c.mu.Unlock()
}

func (c *Controller[T, F, In]) errorField() string {
	if c.binding.ErrorField != "" {
		return c.binding.ErrorField
	}
	return RootField
}

func (c *Controller[T, F, In]) saveMessage(err error) string {
	var failure *services.Failure
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	return c.binding.SaveFallback
}

func (c *Controller[T, F, In]) publish(ctx context.Context, action string, id int64) {
	ev := core.NewActivityEvent(core.ResourceActivity(c.binding.Resource, action), c.deps.SessionID, c.deps.User()).
		WithResource(c.binding.Resource, id)
	if err := c.deps.Publisher.PublishActivity(ctx, ev); err != nil {
		c.logger.Warn("Failed to publish activity event", log.FieldEventType, string(ev.Type), log.FieldError, err)
	}
}
