package adapters

import (
	"context"
	"errors"
	"time"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/linear"
	"alphamachine/gateway/internal/notion"
	"alphamachine/gateway/internal/store"
)

type TicketReader struct {
	Client               *linear.Client
	WorkspaceContextFunc func(ctx context.Context) (domain.WorkspaceContext, error)
}

func (r TicketReader) WorkspaceContext(ctx context.Context) (domain.WorkspaceContext, error) {
	if r.WorkspaceContextFunc != nil {
		return r.WorkspaceContextFunc(ctx)
	}
	if r.Client == nil {
		return domain.WorkspaceContext{}, errors.New("ticket reader is unavailable")
	}
	return r.Client.WorkspaceContext(ctx)
}

type DocumentReader struct {
	Store                 *store.Store
	RecentTranscriptsFunc func(ctx context.Context, since time.Time, limit int) ([]domain.TranscriptRecord, error)
}

func (r DocumentReader) RecentTranscripts(ctx context.Context, since time.Time, limit int) ([]domain.TranscriptRecord, error) {
	if r.RecentTranscriptsFunc != nil {
		return r.RecentTranscriptsFunc(ctx, since, limit)
	}
	if r.Store == nil {
		return nil, errors.New("document reader is unavailable")
	}
	return r.Store.RecentTranscripts(ctx, since, limit)
}

type PageReader struct {
	Client          *notion.Client
	SearchPagesFunc func(ctx context.Context, query string) ([]domain.Page, error)
}

func (r PageReader) SearchPages(ctx context.Context, query string) ([]domain.Page, error) {
	if r.SearchPagesFunc != nil {
		return r.SearchPagesFunc(ctx, query)
	}
	if r.Client == nil {
		return nil, errors.New("page reader is unavailable")
	}
	return r.Client.SearchPages(ctx, query)
}

type ClientStatusReader struct {
	Store               *store.Store
	GetClientStatusFunc func(ctx context.Context, clientName string) (*domain.ClientStatus, error)
}

func (r ClientStatusReader) GetClientStatus(ctx context.Context, clientName string) (*domain.ClientStatus, error) {
	if r.GetClientStatusFunc != nil {
		return r.GetClientStatusFunc(ctx, clientName)
	}
	if r.Store == nil {
		return nil, errors.New("client status reader is unavailable")
	}
	return r.Store.GetClientStatus(ctx, clientName)
}
