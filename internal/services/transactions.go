package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"finboard/internal/apiclient"
	"finboard/internal/core"
	"finboard/internal/log"
)

const TransactionsPath = "/transactions"

// TransactionQuery filters the combined income/expense listing. Zero values are
// left out of the query string. Page is 1-based.
type TransactionQuery struct {
	Page      int
	PageSize  int
	DateFrom  string
	DateTo    string
	Category  string
	AmountMin string
	AmountMax string
	IsIncome  *bool
}

// Values encodes the query using the backend's parameter names.
func (q TransactionQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("date_from", q.DateFrom)
	set("date_to", q.DateTo)
	set("category", q.Category)
	set("amount_min", q.AmountMin)
	set("amount_max", q.AmountMax)
	if q.IsIncome != nil {
		v.Set("is_income", strconv.FormatBool(*q.IsIncome))
	}
	return v
}

type TransactionService struct {
	client Doer
	logger *log.Logger
}

func NewTransactionService(client Doer, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &TransactionService{
		client: client,
		logger: logger.WithComponent(log.ComponentServices).With(log.FieldResource, "transaction"),
	}
}

func (s *TransactionService) List(ctx context.Context, q TransactionQuery) (core.TransactionPage, error) {
	resp, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: TransactionsPath, Query: q.Values()})
	if err != nil {
		s.logger.Error("Failed to list transactions", log.FieldOperation, log.OpList, log.FieldError, err)
		return core.TransactionPage{}, readFailure(err, apiclient.Envelope{}, "Failed to fetch transactions")
	}
	if !resp.Envelope.Success {
		return core.TransactionPage{}, readFailure(nil, resp.Envelope, "Failed to fetch transactions")
	}

	// Unpaginated responses carry the bare list.
	if bytes.HasPrefix(bytes.TrimSpace(resp.Envelope.Data), []byte("[")) {
		items, err := decodeList[core.Transaction](resp.Envelope)
		if err != nil {
			return core.TransactionPage{}, fmt.Errorf("decode transactions: %w", err)
		}
		return core.TransactionPage{Count: len(items), Data: items}, nil
	}
	var page core.TransactionPage
	if err := resp.Envelope.DecodeData(&page); err != nil {
		return core.TransactionPage{}, readFailure(nil, resp.Envelope, "Failed to fetch transactions")
	}
	if page.Data == nil {
		page.Data = []core.Transaction{}
	}
	return page, nil
}
