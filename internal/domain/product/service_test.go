package product

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

// callLog records the order of calls across both mocks.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

type mockRepo struct {
	log       *callLog
	rows      []Product
	insertErr error
	listErr   error
	getErr    error
}

func (m *mockRepo) Insert(_ context.Context, name, description string, price decimal.Decimal, imageKey *string) (int64, error) {
	m.log.add("insert")
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	id := int64(len(m.rows) + 1)
	m.rows = append(m.rows, Product{
		ID:          id,
		Name:        name,
		Description: description,
		Price:       price,
		ImageKey:    imageKey,
	})
	return id, nil
}

func (m *mockRepo) List(_ context.Context) ([]Product, error) {
	return m.rows, m.listErr
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.rows {
		if m.rows[i].ID == id {
			p := m.rows[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

type mockBlobs struct {
	log      *callLog
	storeErr error
	// signErr fails signing for the listed keys only.
	signErr map[string]error

	mu     sync.Mutex
	stored map[string]string // key -> content type
}

func (m *mockBlobs) Store(_ context.Context, _ []byte, originalName, contentType string) (string, error) {
	m.log.add("store")
	if m.storeErr != nil {
		return "", m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = map[string]string{}
	}
	key := fmt.Sprintf("products/%d-%s", len(m.stored)+1, originalName)
	m.stored[key] = contentType
	return key, nil
}

func (m *mockBlobs) SignedReadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := m.signErr[key]; err != nil {
		return "", err
	}
	return fmt.Sprintf("https://bucket.example.com/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

// --- Helpers ---

var pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestService(t *testing.T, repo *mockRepo, blobs *mockBlobs) *Service {
	t.Helper()
	svc, err := NewService(repo, blobs, Config{})
	require.NoError(t, err)
	return svc
}

func newMocks() (*mockRepo, *mockBlobs, *callLog) {
	log := &callLog{}
	return &mockRepo{log: log}, &mockBlobs{log: log}, log
}

func strPtr(s string) *string { return &s }

// --- Tests ---

func TestCreate_WithoutImage(t *testing.T) {
	repo, blobs, log := newMocks()
	svc := newTestService(t, repo, blobs)

	v, err := svc.Create(context.Background(), CreateRequest{
		Name:        "Widget",
		Description: "A widget",
		Price:       "19.99",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), v.ID)
	assert.Equal(t, "Widget", v.Name)
	assert.True(t, decimal.RequireFromString("19.99").Equal(v.Price))
	assert.Nil(t, v.ImageKey)
	assert.Nil(t, v.ImageURL)
	assert.Equal(t, []string{"insert"}, log.calls)
}

func TestCreate_StoresImageBeforeInsert(t *testing.T) {
	repo, blobs, log := newMocks()
	svc := newTestService(t, repo, blobs)

	v, err := svc.Create(context.Background(), CreateRequest{
		Name:  "Gadget",
		Price: "5.00",
		Image: &Image{Filename: "gadget.png", Data: pngHeader},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"store", "insert"}, log.calls)
	require.NotNil(t, v.ImageKey)
	assert.Equal(t, "products/1-gadget.png", *v.ImageKey)
	require.NotNil(t, v.ImageURL)
	assert.Contains(t, *v.ImageURL, *v.ImageKey)
	assert.Contains(t, *v.ImageURL, "ttl=3600")

	// Content type is sniffed when the client did not declare one.
	assert.Equal(t, "image/png", blobs.stored[*v.ImageKey])

	require.Len(t, repo.rows, 1)
	assert.Equal(t, v.ImageKey, repo.rows[0].ImageKey)
}

func TestCreate_UploadFailureWritesNoRow(t *testing.T) {
	repo, blobs, log := newMocks()
	blobs.storeErr = fmt.Errorf("%w: bucket gone", ErrStoreUnavailable)
	svc := newTestService(t, repo, blobs)

	v, err := svc.Create(context.Background(), CreateRequest{
		Name:  "Gadget",
		Price: "5.00",
		Image: &Image{Filename: "gadget.png", ContentType: "image/png", Data: pngHeader},
	})
	require.Error(t, err)
	assert.Nil(t, v)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, []string{"store"}, log.calls)
	assert.Empty(t, repo.rows)
}

func TestCreate_InsertFailure(t *testing.T) {
	repo, blobs, _ := newMocks()
	repo.insertErr = fmt.Errorf("%w: connection reset", ErrStoreUnavailable)
	svc := newTestService(t, repo, blobs)

	_, err := svc.Create(context.Background(), CreateRequest{
		Name:  "Gadget",
		Price: "5.00",
		Image: &Image{Filename: "gadget.png", ContentType: "image/png", Data: pngHeader},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "insert product")
	// The uploaded blob stays behind as an accepted orphan.
	assert.Len(t, blobs.stored, 1)
}

func TestCreate_SignFailureStillSucceeds(t *testing.T) {
	repo, blobs, _ := newMocks()
	blobs.signErr = map[string]error{"products/1-a.png": errors.New("no credentials")}
	svc := newTestService(t, repo, blobs)

	v, err := svc.Create(context.Background(), CreateRequest{
		Name:  "A",
		Price: "1.00",
		Image: &Image{Filename: "a.png", ContentType: "image/png", Data: pngHeader},
	})
	require.NoError(t, err)
	require.NotNil(t, v.ImageKey)
	assert.Nil(t, v.ImageURL)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		req       CreateRequest
		wantField string
	}{
		{
			name:      "missing name",
			req:       CreateRequest{Price: "1.00"},
			wantField: "name",
		},
		{
			name:      "blank name",
			req:       CreateRequest{Name: "   ", Price: "1.00"},
			wantField: "name",
		},
		{
			name:      "missing price",
			req:       CreateRequest{Name: "Widget"},
			wantField: "price",
		},
		{
			name:      "malformed price",
			req:       CreateRequest{Name: "Widget", Price: "12,50"},
			wantField: "price",
		},
		{
			name:      "exponent notation",
			req:       CreateRequest{Name: "Widget", Price: "1e2"},
			wantField: "price",
		},
		{
			name:      "huge negative exponent",
			req:       CreateRequest{Name: "Widget", Price: "1e-20000000"},
			wantField: "price",
		},
		{
			name:      "huge positive exponent",
			req:       CreateRequest{Name: "Widget", Price: "1e9"},
			wantField: "price",
		},
		{
			name:      "overlong price",
			req:       CreateRequest{Name: "Widget", Price: "0." + strings.Repeat("0", 40)},
			wantField: "price",
		},
		{
			name:      "too many decimal places",
			req:       CreateRequest{Name: "Widget", Price: "1.005"},
			wantField: "price",
		},
		{
			name:      "price out of range",
			req:       CreateRequest{Name: "Widget", Price: "100000000"},
			wantField: "price",
		},
		{
			name: "empty image",
			req: CreateRequest{
				Name:  "Widget",
				Price: "1.00",
				Image: &Image{Filename: "a.png"},
			},
			wantField: "image",
		},
		{
			name: "not an image",
			req: CreateRequest{
				Name:  "Widget",
				Price: "1.00",
				Image: &Image{Filename: "notes.txt", Data: []byte("plain text notes")},
			},
			wantField: "image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, blobs, log := newMocks()
			svc := newTestService(t, repo, blobs)

			_, err := svc.Create(context.Background(), tt.req)
			require.Error(t, err)

			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantField, invalid.Field)
			assert.Empty(t, log.calls, "no downstream call expected")
		})
	}
}

func TestCreate_ExponentPriceRejectedQuickly(t *testing.T) {
	repo, blobs, _ := newMocks()
	svc := newTestService(t, repo, blobs)

	start := time.Now()
	_, err := svc.Create(context.Background(), CreateRequest{Name: "Widget", Price: "1e-2000000000"})
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "must be a decimal number", invalid.Reason)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestCreate_TrailingZeroPriceAccepted(t *testing.T) {
	repo, blobs, _ := newMocks()
	svc := newTestService(t, repo, blobs)

	v, err := svc.Create(context.Background(), CreateRequest{Name: "Widget", Price: "19.990"})
	require.NoError(t, err)
	assert.Equal(t, "19.99", v.Price.StringFixed(2))
}

func TestGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, blobs, _ := newMocks()
		repo.rows = []Product{
			{ID: 7, Name: "Widget", Price: decimal.RequireFromString("19.99"), ImageKey: strPtr("products/x-w.png")},
		}
		svc := newTestService(t, repo, blobs)

		v, err := svc.Get(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "Widget", v.Name)
		require.NotNil(t, v.ImageURL)
		assert.Contains(t, *v.ImageURL, "products/x-w.png")
	})

	t.Run("not found", func(t *testing.T) {
		repo, blobs, _ := newMocks()
		svc := newTestService(t, repo, blobs)

		v, err := svc.Get(context.Background(), 999)
		require.Error(t, err)
		assert.Nil(t, v)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("store unavailable", func(t *testing.T) {
		repo, blobs, _ := newMocks()
		repo.getErr = fmt.Errorf("%w: dial tcp", ErrStoreUnavailable)
		svc := newTestService(t, repo, blobs)

		_, err := svc.Get(context.Background(), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestList_SignFailureIsolated(t *testing.T) {
	repo, blobs, _ := newMocks()
	for i := 1; i <= 20; i++ {
		repo.rows = append(repo.rows, Product{
			ID:       int64(i),
			Name:     fmt.Sprintf("p%d", i),
			Price:    decimal.NewFromInt(int64(i)),
			ImageKey: strPtr(fmt.Sprintf("products/k%d.png", i)),
		})
	}
	repo.rows = append(repo.rows, Product{ID: 21, Name: "no image", Price: decimal.Zero})
	blobs.signErr = map[string]error{"products/k3.png": errors.New("signer broken")}
	svc := newTestService(t, repo, blobs)

	views, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 21)

	for i, v := range views {
		assert.Equal(t, int64(i+1), v.ID, "order must mirror repository")
		switch v.ID {
		case 3:
			assert.Nil(t, v.ImageURL)
			require.NotNil(t, v.ImageKey)
			assert.Equal(t, "products/k3.png", *v.ImageKey)
		case 21:
			assert.Nil(t, v.ImageURL)
			assert.Nil(t, v.ImageKey)
		default:
			require.NotNil(t, v.ImageURL, "product %d", v.ID)
			assert.Contains(t, *v.ImageURL, *v.ImageKey)
		}
	}
}

func TestList_Error(t *testing.T) {
	repo, blobs, _ := newMocks()
	repo.listErr = fmt.Errorf("%w: db down", ErrStoreUnavailable)
	svc := newTestService(t, repo, blobs)

	views, err := svc.List(context.Background())
	require.Error(t, err)
	assert.Nil(t, views)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestInvalidInputError(t *testing.T) {
	assert.Equal(t, "price is required", (&InvalidInputError{Field: "price", Reason: "is required"}).Error())
	assert.Equal(t, "bad body", (&InvalidInputError{Reason: "bad body"}).Error())
}
