package bookfile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookgate/config"
	"bookgate/middleware"
	"bookgate/pkg/archive"
	"bookgate/pkg/auth"
	"bookgate/pkg/cache"
	"bookgate/pkg/crypto"
	"bookgate/pkg/epub"
	"bookgate/pkg/epub/epubtest"
	"bookgate/pkg/models"
	"bookgate/pkg/repository/memory"
	"bookgate/pkg/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	purchaser = "reader-1"
	browser   = "reader-2"
)

type fixture struct {
	t      *testing.T
	store  *memory.Store
	root   string
	server *Server

	trialBook  *models.Book
	shortBook  *models.Book
	brokenBook *models.Book
	audiobook  *models.Book
	deleted    *models.Book
	missing    *models.Book
	pending    *models.Book
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{t: t, store: memory.NewStore(), root: t.TempDir()}

	f.trialBook = f.addBook("long.epub", epubtest.Build(5), models.BookTypeEbook, models.BookStatusActive)
	f.shortBook = f.addBook("short.epub", epubtest.Build(2), models.BookTypeEbook, models.BookStatusActive)
	f.brokenBook = f.addBook("broken.epub", []byte(strings.Repeat("not an archive ", 10)), models.BookTypeEbook, models.BookStatusActive)
	f.audiobook = f.addBook("audio.mp3", []byte("ID3"), models.BookTypeAudiobook, models.BookStatusActive)
	f.deleted = f.addBook("gone.epub", epubtest.Build(4), models.BookTypeEbook, models.BookStatusDeleted)
	f.missing = f.addBook("", nil, models.BookTypeEbook, models.BookStatusActive)
	f.pending = f.addBook("pending.epub", epubtest.Build(4), models.BookTypeEbook, models.BookStatusActive)

	f.store.AddPurchase(&models.Purchase{ID: uuid.New(), UserID: purchaser, BookID: f.trialBook.ID, PaymentStatus: models.PaymentStatusCompleted})
	f.store.AddPurchase(&models.Purchase{ID: uuid.New(), UserID: purchaser, BookID: f.pending.ID, PaymentStatus: models.PaymentStatusPending})
	f.store.AddPurchase(&models.Purchase{ID: uuid.New(), UserID: purchaser, BookID: f.audiobook.ID, PaymentStatus: models.PaymentStatusCompleted})

	loader, err := storage.NewLocalLoader(f.root)
	require.NoError(t, err)

	o := Options{
		Repo:     memory.NewRepository(f.store),
		Loader:   loader,
		Verifier: auth.InsecureVerifier{},
		Trial:    config.TrialConfig{MaxSections: 3, FallbackBytes: 16},
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&o)
	}

	f.server, err = NewServer(o)
	require.NoError(t, err)
	return f
}

// addBook stores data under name; an empty name leaves the file absent
func (f *fixture) addBook(name string, data []byte, typ models.BookType, status models.BookStatus) *models.Book {
	f.t.Helper()
	path := name
	if name == "" {
		path = "missing/" + uuid.NewString() + ".epub"
	} else {
		require.NoError(f.t, os.WriteFile(filepath.Join(f.root, name), data, 0o644))
	}
	book := &models.Book{
		ID:       uuid.New(),
		Title:    name,
		Type:     typ,
		FilePath: path,
		FileSize: int64(len(data)),
		Status:   status,
	}
	f.store.PutBook(book)
	return book
}

func (f *fixture) get(path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func fileURL(book *models.Book, mode string) string {
	u := "/books/" + book.ID.String() + "/file"
	if mode != "" {
		u += "?mode=" + mode
	}
	return u
}

func decrypt(t *testing.T, w *httptest.ResponseRecorder) []byte {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plaintext, err := crypto.Open(w.Body.Bytes(), w.Header().Get(crypto.TokenHeader))
	require.NoError(t, err)
	return plaintext
}

func spineLen(t *testing.T, data []byte) int {
	t.Helper()
	arc, err := archive.Open(data)
	require.NoError(t, err)
	pkg, err := epub.Parse(arc)
	require.NoError(t, err)
	return len(pkg.Spine)
}

func rawFile(t *testing.T, f *fixture, book *models.Book) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, book.FilePath))
	require.NoError(t, err)
	return data
}

func TestGetBookFile_ResponseHeaders(t *testing.T) {
	f := newFixture(t)
	w := f.get(fileURL(f.trialBook, "trial"), "")

	require.Equal(t, http.StatusOK, w.Code)
	h := w.Header()
	assert.Equal(t, "application/octet-stream", h.Get("Content-Type"))
	assert.Equal(t, "true", h.Get("X-Content-Encrypted"))
	assert.Len(t, h.Get("X-Encryption-Token"), 60)
	assert.Equal(t, "true", h.Get("X-Trial-Mode"))
	assert.Equal(t, "no-store, no-cache, must-revalidate, private", h.Get("Cache-Control"))
	assert.Equal(t, "no-cache", h.Get("Pragma"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'", h.Get("Content-Security-Policy"))
}

func TestGetBookFile_Trial(t *testing.T) {
	f := newFixture(t)

	for _, mode := range []string{"trial", ""} {
		t.Run("mode="+mode, func(t *testing.T) {
			for _, user := range []string{"", purchaser, browser} {
				w := f.get(fileURL(f.trialBook, mode), user)
				assert.Equal(t, "true", w.Header().Get(crypto.TrialHeader))
				assert.Equal(t, 3, spineLen(t, decrypt(t, w)))
			}
		})
	}
}

func TestGetBookFile_TrialOfShortBookIsWhole(t *testing.T) {
	f := newFixture(t)
	w := f.get(fileURL(f.shortBook, "trial"), "")

	assert.Equal(t, rawFile(t, f, f.shortBook), decrypt(t, w))
	assert.Equal(t, "true", w.Header().Get(crypto.TrialHeader))
}

func TestGetBookFile_FullWithPurchase(t *testing.T) {
	f := newFixture(t)
	w := f.get(fileURL(f.trialBook, "full"), purchaser)

	assert.Equal(t, rawFile(t, f, f.trialBook), decrypt(t, w))
	assert.Equal(t, "false", w.Header().Get(crypto.TrialHeader))
}

func TestGetBookFile_FullRequiresPurchase(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		book *models.Book
		user string
	}{
		{"anonymous", f.trialBook, ""},
		{"no purchase", f.trialBook, browser},
		{"pending purchase", f.pending, purchaser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(fileURL(tt.book, "full"), tt.user)
			require.Equal(t, http.StatusForbidden, w.Code)
			assert.Empty(t, w.Header().Get(crypto.TokenHeader))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, true, body["requirePurchase"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetBookFile_Fallback(t *testing.T) {
	f := newFixture(t)
	w := f.get(fileURL(f.brokenBook, "trial"), "")

	plaintext := decrypt(t, w)
	assert.Equal(t, rawFile(t, f, f.brokenBook)[:16], plaintext)
	assert.Equal(t, "true", w.Header().Get(crypto.TrialHeader))
}

func TestGetBookFile_Failures(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		user   string
		header string
		status int
	}{
		{"invalid id", "/books/not-a-uuid/file", "", "", http.StatusBadRequest},
		{"invalid mode", fileURL(f.trialBook, "preview"), "", "", http.StatusBadRequest},
		{"unknown book", "/books/" + uuid.NewString() + "/file", "", "", http.StatusNotFound},
		{"deleted book", fileURL(f.deleted, ""), "", "", http.StatusNotFound},
		{"audiobook trial", fileURL(f.audiobook, "trial"), "", "", http.StatusBadRequest},
		{"audiobook full", fileURL(f.audiobook, "full"), purchaser, "", http.StatusBadRequest},
		{"missing file", fileURL(f.missing, "trial"), "", "", http.StatusInternalServerError},
		{"malformed authorization", fileURL(f.trialBook, ""), "", "Basic abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			switch {
			case tt.header != "":
				req.Header.Set("Authorization", tt.header)
			case tt.user != "":
				req.Header.Set("Authorization", "Bearer "+tt.user)
			}
			w := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Empty(t, w.Header().Get(crypto.TokenHeader))
			assert.Empty(t, w.Header().Get(crypto.EncryptedHeader))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			msg, _ := body["error"].(string)
			assert.NotEmpty(t, msg)
			assert.NotContains(t, msg, f.root)
			assert.NotContains(t, msg, "missing/")
		})
	}
}

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(context.Context, string) (*auth.Identity, error) {
	return nil, models.ErrUnauthorized
}

func (rejectingVerifier) Mode() string { return "reject" }

func TestGetBookFile_InvalidToken(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Verifier = rejectingVerifier{} })

	w := f.get(fileURL(f.trialBook, "trial"), "expired-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// anonymous requests never reach the verifier
	w = f.get(fileURL(f.trialBook, "trial"), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetBookFile_SealFailure(t *testing.T) {
	f := newFixture(t)
	f.server.seal = func([]byte) (*crypto.Sealed, error) {
		return nil, &models.Error{Code: models.ErrCodeEncryptionFailed, Message: "no entropy", Err: models.ErrEncryptionFailed}
	}

	w := f.get(fileURL(f.trialBook, "trial"), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get(crypto.TokenHeader))
	assert.NotContains(t, w.Body.String(), "entropy")
}

func TestGetBookFile_FreshKeyPerResponse(t *testing.T) {
	f := newFixture(t)

	first := f.get(fileURL(f.trialBook, "full"), purchaser)
	second := f.get(fileURL(f.trialBook, "full"), purchaser)

	assert.NotEqual(t, first.Header().Get(crypto.TokenHeader), second.Header().Get(crypto.TokenHeader))
	assert.NotEqual(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, decrypt(t, first), decrypt(t, second))

	_, err := crypto.Open(first.Body.Bytes(), second.Header().Get(crypto.TokenHeader))
	assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
}

func TestGetBookFile_TrialCache(t *testing.T) {
	mr := miniredis.RunT(t)
	sliceCache, err := cache.NewRedisSliceCache(cache.RedisCacheConfig{Addr: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sliceCache.Close() })

	f := newFixture(t, func(o *Options) { o.Cache = sliceCache })
	ctx := context.Background()

	first := decrypt(t, f.get(fileURL(f.trialBook, "trial"), ""))
	cached, hit, err := sliceCache.Get(ctx, f.trialBook.ID, 3)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, first, cached)

	// served from the cache once the source disappears
	require.NoError(t, os.Remove(filepath.Join(f.root, f.trialBook.FilePath)))
	assert.Equal(t, first, decrypt(t, f.get(fileURL(f.trialBook, "trial"), "")))

	// full requests always read storage
	w := f.get(fileURL(f.trialBook, "full"), purchaser)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	_ = decrypt(t, f.get(fileURL(f.brokenBook, "trial"), ""))
	_, hit, err = sliceCache.Get(ctx, f.brokenBook.ID, 3)
	require.NoError(t, err)
	assert.False(t, hit, "fallback prefixes are not cached")
}

type brokenCache struct{ *cache.NoOpSliceCache }

func (brokenCache) Get(context.Context, uuid.UUID, int) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}

func (brokenCache) Set(context.Context, uuid.UUID, int, []byte) error {
	return errors.New("redis down")
}

func TestGetBookFile_CacheErrorsAreNotFatal(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Cache = brokenCache{cache.NewNoOpSliceCache()} })
	assert.Equal(t, 3, spineLen(t, decrypt(t, f.get(fileURL(f.trialBook, "trial"), ""))))
}

func TestGetBookAccess(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		user      string
		purchased bool
	}{
		{"anonymous", "", false},
		{"browser", browser, false},
		{"purchaser", purchaser, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get("/books/"+f.trialBook.ID.String()+"/access", tt.user)
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Success bool                 `json:"success"`
				Data    models.AccessSummary `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.True(t, body.Success)
			assert.Equal(t, f.trialBook.ID, body.Data.BookID)
			assert.Equal(t, tt.purchased, body.Data.HasPurchased)
			assert.Equal(t, tt.user != "", body.Data.IsLoggedIn)
			assert.Equal(t, 3, body.Data.TrialSections)
		})
	}

	assert.Equal(t, http.StatusBadRequest, f.get("/books/nope/access", "").Code)
	assert.Equal(t, http.StatusNotFound, f.get("/books/"+uuid.NewString()+"/access", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/books/"+f.audiobook.ID.String()+"/access", "").Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	w := f.get("/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serviceName, body["service"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "local", body["storage"])
}

func TestCORSExposesEncryptionHeaders(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.CORS = config.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"https://reader.example.com"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Authorization"},
		}
	})

	req := httptest.NewRequest(http.MethodGet, fileURL(f.trialBook, "trial"), nil)
	req.Header.Set("Origin", "https://reader.example.com")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://reader.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	exposed := w.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{crypto.EncryptedHeader, crypto.TokenHeader, crypto.TrialHeader} {
		assert.Contains(t, strings.ToLower(exposed), strings.ToLower(h))
	}
}

func TestCORSConfig(t *testing.T) {
	cc := corsConfig(config.CORSConfig{AllowedOrigins: []string{"*"}, ExposeHeaders: []string{crypto.TokenHeader}})
	assert.True(t, cc.AllowAllOrigins)
	assert.Empty(t, cc.AllowOrigins)
	assert.Equal(t, 12*time.Hour, cc.MaxAge)
	assert.Len(t, cc.ExposeHeaders, 5)
}

func TestRateLimiting(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.RateLimiting = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, Burst: 1}

	f := newFixture(t, func(o *Options) { o.RateLimiter = middleware.NewRateLimiter(cfg) })

	assert.Equal(t, http.StatusOK, f.get(fileURL(f.trialBook, ""), "").Code)
	w := f.get(fileURL(f.trialBook, ""), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// health is outside the limited group
	assert.Equal(t, http.StatusOK, f.get("/health", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("bookgate_trial_fallback_total 0\n"))
		})
		o.MetricsPath = "/internal/metrics"
	})

	w := f.get("/internal/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bookgate_trial_fallback_total")
	assert.Equal(t, http.StatusNotFound, f.get("/metrics", "").Code)
}

func TestNewServer_Validation(t *testing.T) {
	repo := memory.NewRepository(memory.NewStore())
	loader, err := storage.NewLocalLoader(t.TempDir())
	require.NoError(t, err)

	_, err = NewServer(Options{Loader: loader, Verifier: auth.InsecureVerifier{}})
	assert.Error(t, err)
	_, err = NewServer(Options{Repo: repo, Verifier: auth.InsecureVerifier{}})
	assert.Error(t, err)
	_, err = NewServer(Options{Repo: repo, Loader: loader})
	assert.Error(t, err)

	s, err := NewServer(Options{Repo: repo, Loader: loader, Verifier: auth.InsecureVerifier{}})
	require.NoError(t, err)
	assert.Equal(t, 3, s.extractor.MaxSections)
	assert.Equal(t, "dev", s.version)
}

func TestParseBookID(t *testing.T) {
	id := uuid.New()
	got, err := parseBookID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, raw := range []string{"", "not-a-uuid", "1234"} {
		_, err := parseBookID(raw)
		assert.ErrorIs(t, err, models.ErrInvalidBookID, raw)
	}
}
