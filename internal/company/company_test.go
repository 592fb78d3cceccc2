package company

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nao1215/yjdh/migrations"
	"github.com/nao1215/yjdh/pkg/apierror"
	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/httpclient"
	"github.com/nao1215/yjdh/pkg/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// serviceBusResponseJSON はGetCompanyの正常応答。
const serviceBusResponseJSON = `{
	"GetCompanyResult": {
		"Company": {
			"BusinessId": "0877830-0",
			"TradeName": {"Name": "Oy Testi Ab"},
			"BusinessLine": {"Type": "62010", "Name": "Ohjelmistojen suunnittelu ja valmistus"},
			"PostalAddress": {"DomesticAddress": {"StreetAddress": "Mannerheimintie 1", "PostalCode": "00100", "City": "Helsinki"}}
		}
	}
}`

// yrttiResponseJSON はBasicInfoの正常応答。
const yrttiResponseJSON = `{
	"BasicInfoResponse": {
		"BusinessId": "1234567-8",
		"AssociationNameInfo": [{"AssociationName": "Testiyhdistys ry"}],
		"Address": [{"StreetAddress": "Hämeentie 2", "PostalCode": "00530", "City": "Helsinki"}],
		"Purpose": "Nuorisotyö"
	}
}`

// newUpstream はpathへのPOSTにstatusとbodyを返すテストサーバーを起動する。
func newUpstream(t *testing.T, path string, status int, body string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != path {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newServiceBus(t *testing.T, status int, body string) *ServiceBusClient {
	t.Helper()

	ts := newUpstream(t, "/GetCompany", status, body)
	c, err := NewServiceBusClient(config.UpstreamConfig{BaseURL: ts.URL, Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func newYRTTI(t *testing.T, status int, body string) *YRTTIClient {
	t.Helper()

	ts := newUpstream(t, "/BasicInfo", status, body)
	c, err := NewYRTTIClient(config.UpstreamConfig{BaseURL: ts.URL, Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	return c
}

// newTestStore はマイグレーション済みのインメモリDBを使うStoreを返す。
func newTestStore(t *testing.T) (*Store, *sqlx.DB) {
	t.Helper()

	db, err := migration.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migration.Run(context.Background(), db, migrations.FS, migrations.Dir, zap.NewNop()))
	return NewStore(db), db
}

func TestServiceBusClient_GetCompany(t *testing.T) {
	t.Parallel()

	t.Run("企業情報が変換されること", func(t *testing.T) {
		t.Parallel()

		got, err := newServiceBus(t, http.StatusOK, serviceBusResponseJSON).GetCompany(context.Background(), "0877830-0")
		require.NoError(t, err)
		assert.Equal(t, "Oy Testi Ab", got.Name)
		assert.Equal(t, CompanyFormCodeDefault, got.CompanyFormCode)
		assert.Equal(t, "Osakeyhtiö", got.CompanyForm)
		assert.Equal(t, "Ohjelmistojen suunnittelu ja valmistus", got.Industry)
		assert.Equal(t, "00100", got.Postcode)
		assert.Equal(t, SourceServiceBus, got.Source)
	})

	t.Run("業種がnullでも取得できること", func(t *testing.T) {
		t.Parallel()

		var body map[string]any
		require.NoError(t, json.Unmarshal([]byte(serviceBusResponseJSON), &body))
		body["GetCompanyResult"].(map[string]any)["Company"].(map[string]any)["BusinessLine"] = nil
		b, err := json.Marshal(body)
		require.NoError(t, err)

		got, err := newServiceBus(t, http.StatusOK, string(b)).GetCompany(context.Background(), "0877830-0")
		require.NoError(t, err)
		assert.Empty(t, got.Industry)
		assert.Equal(t, "Osakeyhtiö", got.CompanyForm)
	})

	t.Run("企業情報が空の場合はErrInvalidPayloadになること", func(t *testing.T) {
		t.Parallel()

		_, err := newServiceBus(t, http.StatusOK, `{"GetCompanyResult": {"Company": {}}}`).GetCompany(context.Background(), "0877830-0")
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestYRTTIClient_GetBasicInfo(t *testing.T) {
	t.Parallel()

	got, err := newYRTTI(t, http.StatusOK, yrttiResponseJSON).GetBasicInfo(context.Background(), "1234567-8")
	require.NoError(t, err)
	assert.Equal(t, "Testiyhdistys ry", got.Name)
	assert.Equal(t, AssociationFormCodeDefault, got.CompanyFormCode)
	assert.Equal(t, "Yhdistys", got.CompanyForm)
	assert.Equal(t, "Hämeentie 2", got.StreetAddress)
	assert.Equal(t, SourceYRTTI, got.Source)
}

// fetcherFunc は関数をFetcherとして使うためのアダプタ。
type fetcherFunc func(ctx context.Context, businessID string) (Company, error)

// FetchCompany はfを呼び出す。
func (f fetcherFunc) FetchCompany(ctx context.Context, businessID string) (Company, error) {
	return f(ctx, businessID)
}

// failing は常にerrを返すFetcher。
func failing(err error) Fetcher {
	return fetcherFunc(func(context.Context, string) (Company, error) { return Company{}, err })
}

// mustNotCall は呼び出されるとテストを失敗させるFetcher。
func mustNotCall(t *testing.T) Fetcher {
	return fetcherFunc(func(context.Context, string) (Company, error) {
		t.Error("呼び出されるべきではない")
		return Company{}, errors.New("unexpected call")
	})
}

func TestLookup_Get(t *testing.T) {
	t.Parallel()

	unavailable := &httpclient.UpstreamError{Kind: httpclient.KindUnavailable, Code: 503, Detail: "Timeout exceeded when connecting to Palveluväylä."}
	rejected := &httpclient.UpstreamError{Kind: httpclient.KindRejected, Code: 404, Detail: "Request rejected by YRTTI."}

	t.Run("primaryが成功した場合はsecondaryを呼ばずに保存すること", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		lookup := NewLookup(newServiceBus(t, http.StatusOK, serviceBusResponseJSON), mustNotCall(t), store, zap.NewNop())

		got, source, err := lookup.Get(context.Background(), "0877830-0")
		require.NoError(t, err)
		assert.Equal(t, SourceServiceBus, source)
		assert.Equal(t, "Oy Testi Ab", got.Name)

		saved, err := store.Get(context.Background(), "0877830-0")
		require.NoError(t, err)
		assert.Equal(t, got.Name, saved.Name)
		assert.Equal(t, SourceServiceBus, saved.Source)
	})

	t.Run("primaryが失敗しsecondaryが成功した場合はsecondaryの内容がそのまま返ること", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		secondary := newYRTTI(t, http.StatusOK, yrttiResponseJSON)
		want, err := secondary.GetBasicInfo(context.Background(), "1234567-8")
		require.NoError(t, err)

		lookup := NewLookup(newServiceBus(t, http.StatusNotFound, "Error"), secondary, store, zap.NewNop())
		got, source, err := lookup.Get(context.Background(), "1234567-8")
		require.NoError(t, err)
		assert.Equal(t, SourceYRTTI, source)
		got.UpdatedAt = time.Time{}
		assert.Equal(t, want, got)
	})

	t.Run("primaryの応答が不正な場合もsecondaryに問い合わせること", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		lookup := NewLookup(
			newServiceBus(t, http.StatusOK, `{"GetCompanyResult": {"Company": {}}}`),
			newYRTTI(t, http.StatusOK, yrttiResponseJSON),
			store, zap.NewNop(),
		)
		_, source, err := lookup.Get(context.Background(), "1234567-8")
		require.NoError(t, err)
		assert.Equal(t, SourceYRTTI, source)
	})

	t.Run("両方が失敗し保存済みのレコードがある場合はそれを返すこと", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		ctx := context.Background()
		_, _, err := NewLookup(newServiceBus(t, http.StatusOK, serviceBusResponseJSON), mustNotCall(t), store, zap.NewNop()).Get(ctx, "0877830-0")
		require.NoError(t, err)

		core, logs := observer.New(zap.WarnLevel)
		lookup := NewLookup(failing(unavailable), failing(rejected), store, zap.New(core))
		got, source, err := lookup.Get(ctx, "0877830-0")
		require.NoError(t, err)
		assert.Equal(t, SourceStale, source)
		assert.Equal(t, "0877830-0", got.BusinessID)
		assert.Equal(t, CompanyFormCodeDefault, got.CompanyFormCode)
		assert.Equal(t, "Osakeyhtiö", got.CompanyForm)

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Contains(t, entry.ContextMap(), "service_bus_error")
		assert.Contains(t, entry.ContextMap(), "yrtti_error")
	})

	t.Run("両方が失敗し保存済みのレコードも無い場合はErrLookupFailedになること", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		lookup := NewLookup(failing(unavailable), failing(rejected), store, zap.NewNop())

		_, _, err := lookup.Get(context.Background(), "0000000-0")
		require.ErrorIs(t, err, ErrLookupFailed)
		assert.ErrorIs(t, err, httpclient.ErrUnavailable)
		assert.ErrorIs(t, err, httpclient.ErrRejected)

		api := apierror.From(err)
		assert.Equal(t, http.StatusInternalServerError, api.Code)
		assert.Equal(t, "Could not handle the response from Palveluväylä and YRTTI API", api.Detail)
	})

	t.Run("キャンセルされた場合は保存済みのレコードを返さないこと", func(t *testing.T) {
		t.Parallel()

		store, _ := newTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		lookup := NewLookup(failing(context.Canceled), mustNotCall(t), store, zap.NewNop())

		_, _, err := lookup.Get(ctx, "0877830-0")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStore_Upsert(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "0877830-0")
	require.ErrorIs(t, err, ErrNotFound)

	c := Company{BusinessID: "0877830-0", Name: "Vanha Oy", Source: SourceServiceBus, UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.Upsert(ctx, c))
	c.Name = "Uusi Oy"
	require.NoError(t, store.Upsert(ctx, c))

	got, err := store.Get(ctx, "0877830-0")
	require.NoError(t, err)
	assert.Equal(t, "Uusi Oy", got.Name)
}
