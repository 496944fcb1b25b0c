package training

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"instaflow/internal/store"
)

type recordingStore struct {
	items []store.TrainingItem
}

func (r *recordingStore) AddTrainingItem(_ context.Context, item store.TrainingItem) (*store.TrainingItem, error) {
	r.items = append(r.items, item)
	return &item, nil
}

func newTestService(t *testing.T) (*Service, *recordingStore) {
	t.Helper()
	rec := &recordingStore{}
	return NewService(rec, zaptest.NewLogger(t)), rec
}

func TestAddText(t *testing.T) {
	svc, rec := newTestService(t)

	item, err := svc.AddText(context.Background(), "u1", "alice_main", "  I post about trail running.  ")
	require.NoError(t, err)

	assert.Equal(t, "text", item.DataType)
	assert.Equal(t, "manual", item.Source)
	assert.Equal(t, "I post about trail running.", item.Content)
	require.Len(t, rec.items, 1)
}

func TestAddTextRejectsEmpty(t *testing.T) {
	svc, rec := newTestService(t)

	_, err := svc.AddText(context.Background(), "u1", "alice_main", "   \n\t ")
	require.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, rec.items)
}

func TestAddTextClampsOversizedContent(t *testing.T) {
	svc, rec := newTestService(t)

	item, err := svc.AddText(context.Background(), "u1", "alice_main", strings.Repeat("x", maxContentChars+500))
	require.NoError(t, err)

	assert.Len(t, item.Content, maxContentChars)
	require.Len(t, rec.items, 1)
}

func TestAddTextClampsOnRuneBoundary(t *testing.T) {
	svc, _ := newTestService(t)

	// A multi-byte rune straddles the byte cap; the clamp must not
	// store a split rune.
	content := strings.Repeat("x", maxContentChars-1) + "日本語"
	item, err := svc.AddText(context.Background(), "u1", "alice_main", content)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(item.Content))
	assert.LessOrEqual(t, len(item.Content), maxContentChars)
}

func TestAddWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><head><title>ignored</title><style>p{color:red}</style></head>
			<body><script>var x = 1;</script>
			<h1>Trail Notes</h1><p>Weekly   long runs in the  hills.</p></body></html>`))
	}))
	defer srv.Close()

	svc, rec := newTestService(t)

	item, err := svc.AddWebsite(context.Background(), "u1", "alice_main", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "website", item.DataType)
	assert.Equal(t, srv.URL, item.Source)
	assert.Equal(t, "Trail Notes Weekly long runs in the hills.", item.Content)
	require.Len(t, rec.items, 1)
}

func TestAddWebsiteRejectsBadURL(t *testing.T) {
	svc, rec := newTestService(t)

	for _, raw := range []string{"", "ftp://example.com/x", "not a url", "file:///etc/passwd"} {
		_, err := svc.AddWebsite(context.Background(), "u1", "alice_main", raw)
		require.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
	assert.Empty(t, rec.items)
}

func TestAddWebsiteNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	svc, rec := newTestService(t)

	_, err := svc.AddWebsite(context.Background(), "u1", "alice_main", srv.URL)
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "status 410")
	assert.Empty(t, rec.items)
}

func TestAddWebsiteEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><head><script>void 0;</script></head><body></body></html>`))
	}))
	defer srv.Close()

	svc, _ := newTestService(t)

	_, err := svc.AddWebsite(context.Background(), "u1", "alice_main", srv.URL)
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestExtractTextSkipsNonContent(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<html><body><noscript>enable js</noscript><div>kept <b>bold</b></div><svg><text>chart</text></svg></body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "kept bold", ExtractText(doc))
}
