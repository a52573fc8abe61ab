package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"finboard/internal/apiclient"
	"finboard/internal/log"
)

// Names labels a resource in paths, messages and logs.
type Names struct {
	Path     string // "/categories"
	Singular string // "category"
	Plural   string // "categories"
	// KeyField is the form field whose backend error explains a rejected mutation.
	KeyField string
}

// Resource is the CRUD mapping shared by categories, incomes, expenses and budgets.
type Resource[T, In any] struct {
	client Doer
	names  Names
	logger *log.Logger
}

func NewResource[T, In any](client Doer, names Names, logger *log.Logger) *Resource[T, In] {
	if logger == nil {
		logger = log.Discard()
	}
	return &Resource[T, In]{
		client: client,
		names:  names,
		logger: logger.WithComponent(log.ComponentServices).With(log.FieldResource, names.Singular),
	}
}

func (r *Resource[T, In]) Names() Names { return r.names }

// List fetches every record, with optional query filters.
func (r *Resource[T, In]) List(ctx context.Context, query url.Values) ([]T, error) {
	resp, err := r.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: r.names.Path, Query: query})
	if err != nil {
		r.logger.Error("Failed to list", log.FieldOperation, log.OpList, log.FieldError, err)
		return nil, readFailure(err, apiclient.Envelope{}, "Failed to fetch "+r.names.Plural)
	}
	if !resp.Envelope.Success {
		return nil, readFailure(nil, resp.Envelope, "Failed to fetch "+r.names.Plural)
	}
	items, err := decodeList[T](resp.Envelope)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.names.Plural, err)
	}
	return items, nil
}

func (r *Resource[T, In]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	resp, err := r.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: r.itemPath(id)})
	if err != nil {
		return zero, readFailure(err, apiclient.Envelope{}, "Failed to fetch "+r.names.Singular)
	}
	var item T
	if !resp.Envelope.Success || resp.Envelope.DecodeData(&item) != nil {
		return zero, readFailure(nil, resp.Envelope, "Failed to fetch "+r.names.Singular)
	}
	return item, nil
}

func (r *Resource[T, In]) Create(ctx context.Context, in In) (T, error) {
	return r.mutate(ctx, http.MethodPost, r.names.Path, in, log.OpCreate, "Failed to create "+r.names.Singular)
}

func (r *Resource[T, In]) Update(ctx context.Context, id int64, in In) (T, error) {
	return r.mutate(ctx, http.MethodPut, r.itemPath(id), in, log.OpUpdate, "Failed to update "+r.names.Singular)
}

func (r *Resource[T, In]) Delete(ctx context.Context, id int64) error {
	if _, err := r.client.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: r.itemPath(id)}); err != nil {
		if apiclient.IsSessionExpired(err) {
			return err
		}
		return fmt.Errorf("delete %s %d: %w", r.names.Singular, id, err)
	}
	r.logger.Info("Deleted", log.FieldOperation, log.OpDelete, log.FieldResourceID, id)
	return nil
}

func (r *Resource[T, In]) mutate(ctx context.Context, method, path string, in In, op, fallback string) (T, error) {
	var zero T
	resp, err := r.client.Do(ctx, apiclient.Request{Method: method, Path: path, Body: in})
	if err != nil {
		r.logger.Warn("Mutation rejected", log.FieldOperation, op, log.FieldError, err)
		return zero, mutationFailure(err, apiclient.Envelope{}, r.names.KeyField, fallback)
	}
	var item T
	if !resp.Envelope.Success || resp.Envelope.DecodeData(&item) != nil {
		return zero, mutationFailure(nil, resp.Envelope, r.names.KeyField, fallback)
	}
	return item, nil
}

func (r *Resource[T, In]) itemPath(id int64) string {
	return r.names.Path + "/" + strconv.FormatInt(id, 10)
}

// decodeList accepts a bare array or a paginated {results, count} object.
func decodeList[T any](env apiclient.Envelope) ([]T, error) {
	if !env.HasData() {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(env.Data, &items); err == nil {
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
		Count   int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, err
	}
	if page.Results == nil {
		return []T{}, nil
	}
	return page.Results, nil
}
