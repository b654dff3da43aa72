package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/service"
	"notebook-rag/internal/service/mocks"
	"notebook-rag/internal/storage"
	storagemocks "notebook-rag/internal/storage/mocks"
)

type notebookMocks struct {
	notebooks   *storagemocks.MockNotebookStore
	attachments *mocks.MockAttachmentService
	ledger      *storagemocks.MockAttachmentStore
	chats       *storagemocks.MockChatStore
}

func newNotebookService(t *testing.T) (service.NotebookService, notebookMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := notebookMocks{
		notebooks:   storagemocks.NewMockNotebookStore(ctrl),
		attachments: mocks.NewMockAttachmentService(ctrl),
		ledger:      storagemocks.NewMockAttachmentStore(ctrl),
		chats:       storagemocks.NewMockChatStore(ctrl),
	}
	return service.NewNotebookService(m.notebooks, m.attachments, m.ledger, m.chats), m
}

func TestNotebookService_Create(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		wantTitle string
		wantErr   error
	}{
		{name: "trimmed title", title: "  Biology  ", wantTitle: "Biology"},
		{name: "unicode title", title: "Zellbiologie für Anfänger", wantTitle: "Zellbiologie für Anfänger"},
		{name: "empty title", title: "", wantErr: service.ErrInvalidInput},
		{name: "blank title", title: " \t ", wantErr: service.ErrInvalidInput},
		{name: "too long", title: strings.Repeat("ä", service.MaxTitleLength+1), wantErr: service.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newNotebookService(t)
			if tt.wantErr == nil {
				m.notebooks.EXPECT().Create(gomock.Any(), tt.wantTitle).
					Return(&storage.Notebook{ID: "nb-1", Title: tt.wantTitle}, nil)
			}

			nb, err := svc.Create(context.Background(), tt.title)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, nb.Title)
		})
	}
}

func TestNotebookService_List(t *testing.T) {
	svc, m := newNotebookService(t)
	m.notebooks.EXPECT().List(gomock.Any()).Return(nil, errors.New("disk I/O error"))

	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrLedger)
}

func TestNotebookService_DeleteCascades(t *testing.T) {
	svc, m := newNotebookService(t)
	atts := []storage.Attachment{{ID: "att-1"}, {ID: "att-2"}, {ID: "att-3"}}

	gomock.InOrder(
		m.notebooks.EXPECT().GetByID(gomock.Any(), "nb-1").Return(&storage.Notebook{ID: "nb-1"}, nil),
		m.ledger.EXPECT().ListByNotebook(gomock.Any(), "nb-1").Return(atts, nil),
		m.attachments.EXPECT().Delete(gomock.Any(), "att-1").Return(nil),
		// Removed concurrently by another request.
		m.attachments.EXPECT().Delete(gomock.Any(), "att-2").Return(apperrors.NotFound("attachment att-2 not found")),
		m.attachments.EXPECT().Delete(gomock.Any(), "att-3").Return(nil),
		m.chats.EXPECT().DeleteByNotebook(gomock.Any(), "nb-1").Return(nil),
		m.notebooks.EXPECT().Delete(gomock.Any(), "nb-1").Return(nil),
	)

	require.NoError(t, svc.Delete(context.Background(), "nb-1"))
}

func TestNotebookService_DeleteStopsOnIndexFailure(t *testing.T) {
	svc, m := newNotebookService(t)

	m.notebooks.EXPECT().GetByID(gomock.Any(), "nb-1").Return(&storage.Notebook{ID: "nb-1"}, nil)
	m.ledger.EXPECT().ListByNotebook(gomock.Any(), "nb-1").Return([]storage.Attachment{{ID: "att-1"}, {ID: "att-2"}}, nil)
	m.attachments.EXPECT().Delete(gomock.Any(), "att-1").
		Return(apperrors.IndexWriteFailure("failed to delete vectors", errors.New("connection refused")))

	err := svc.Delete(context.Background(), "nb-1")
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)
}

func TestNotebookService_DeleteUnknown(t *testing.T) {
	svc, m := newNotebookService(t)
	m.notebooks.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, storage.ErrNotFound)

	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}
