package crawler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEngine struct {
	page  Page
	err   error
	calls []string
}

func (s *stubEngine) Fetch(_ context.Context, url string) (Page, error) {
	s.calls = append(s.calls, url)
	return s.page, s.err
}

func TestIsHTMLContentType(t *testing.T) {
	t.Parallel()

	assert.True(t, IsHTMLContentType("text/html; charset=utf-8"))
	assert.True(t, IsHTMLContentType("application/xhtml+xml"))
	assert.True(t, IsHTMLContentType("TEXT/HTML"))
	assert.False(t, IsHTMLContentType("application/json"))
	assert.False(t, IsHTMLContentType(""))
}

func TestStrategyFetcherReturnsHTMLWhateverTheStatus(t *testing.T) {
	t.Parallel()

	static := &stubEngine{page: Page{
		FinalURL:    "https://shop.example.com/gone",
		StatusCode:  http.StatusNotFound,
		ContentType: "text/html",
		Body:        []byte("<html><body>add to cart</body></html>"),
		Duration:    20 * time.Millisecond,
	}}
	f := NewStrategyFetcher(static, nil, zap.NewNop())

	res := f.Fetch(context.Background(), "https://shop.example.com/gone", false)
	require.True(t, res.Available())
	assert.Contains(t, res.HTML, "add to cart")
}

func TestStrategyFetcherEmptyBodyIsUnavailable(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "  \n\t "} {
		static := &stubEngine{page: Page{StatusCode: http.StatusOK, ContentType: "text/html", Body: []byte(body)}}
		res := NewStrategyFetcher(static, nil, zap.NewNop()).Fetch(context.Background(), "https://shop.example.com/", false)
		assert.False(t, res.Available(), "body %q", body)
	}
}

func TestStrategyFetcherCollapsesErrors(t *testing.T) {
	t.Parallel()

	static := &stubEngine{err: errors.New("connection refused")}
	res := NewStrategyFetcher(static, nil, zap.NewNop()).Fetch(context.Background(), "https://shop.example.com/", false)
	assert.False(t, res.Available())
	assert.Equal(t, FetchResult{}, res)
}

func TestStrategyFetcherRoutesByStrategy(t *testing.T) {
	t.Parallel()

	static := &stubEngine{page: Page{StatusCode: http.StatusOK, Body: []byte("<p>static</p>")}}
	rendered := &stubEngine{page: Page{StatusCode: http.StatusOK, Body: []byte("<p>rendered</p>")}}
	f := NewStrategyFetcher(static, rendered, nil)

	assert.Equal(t, "<p>rendered</p>", f.Fetch(context.Background(), "https://a.example/", true).HTML)
	assert.Equal(t, "<p>static</p>", f.Fetch(context.Background(), "https://a.example/", false).HTML)
	assert.Equal(t, []string{"https://a.example/"}, rendered.calls)
	assert.Equal(t, []string{"https://a.example/"}, static.calls)
}

func TestStrategyFetcherWithoutRenderedEngineUsesStatic(t *testing.T) {
	t.Parallel()

	static := &stubEngine{page: Page{StatusCode: http.StatusOK, Body: []byte("<p>static</p>")}}
	res := NewStrategyFetcher(static, nil, nil).Fetch(context.Background(), "https://a.example/", true)
	assert.Equal(t, "<p>static</p>", res.HTML)
}
