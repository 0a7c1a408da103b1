package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func event(eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, object))
}

func setup(t *testing.T) (*storage.MemoryBackend, *models.Company, *models.Plan, *Webhook) {
	t.Helper()
	store := storage.NewMemoryBackend()
	plan := &models.Plan{Name: "Business", PriceIDStripe: "price_biz"}
	store.PutPlan(plan)
	company := &models.Company{Name: "Acme"}
	store.PutCompany(company)
	return store, company, plan, NewWebhook(store, testSecret)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	_, _, _, wh := setup(t)
	payload := event(EventCheckoutCompleted, `{"id":"cs_1"}`)

	_, err := wh.Handle(context.Background(), payload, sign(payload, "whsec_other"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = wh.Handle(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	store, company, plan, wh := setup(t)
	ctx := context.Background()

	checkout := event(EventCheckoutCompleted, fmt.Sprintf(
		`{"id":"cs_1","object":"checkout.session","client_reference_id":%q,"customer":"cus_1","subscription":"sub_1"}`, company.ID))
	typ, err := wh.Handle(ctx, checkout, sign(checkout, testSecret))
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, typ)

	got, err := store.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)

	updated := event(EventSubscriptionUpdated,
		`{"id":"sub_1","object":"subscription","items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_biz"}}]}}`)
	_, err = wh.Handle(ctx, updated, sign(updated, testSecret))
	require.NoError(t, err)

	current, err := store.GetCompanyPlan(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, current.ID)

	deleted := event(EventSubscriptionDeleted, `{"id":"sub_1","object":"subscription"}`)
	_, err = wh.Handle(ctx, deleted, sign(deleted, testSecret))
	require.NoError(t, err)

	_, err = store.GetCompanyPlan(ctx, company.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWebhookIgnoresUnknownPriceAndEvents(t *testing.T) {
	_, _, _, wh := setup(t)
	ctx := context.Background()

	updated := event(EventSubscriptionUpdated,
		`{"id":"sub_9","object":"subscription","items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_unknown"}}]}}`)
	_, err := wh.Handle(ctx, updated, sign(updated, testSecret))
	assert.NoError(t, err)

	other := event("invoice.paid", `{"id":"in_1","object":"invoice"}`)
	typ, err := wh.Handle(ctx, other, sign(other, testSecret))
	assert.NoError(t, err)
	assert.Equal(t, "invoice.paid", typ)
}

func TestCatalogActivePrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prices", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","has_more":false,"url":"/v1/prices","data":[
			{"id":"price_biz","object":"price","active":true,"nickname":"Business","currency":"brl",
			 "unit_amount":19900,"product":"prod_1","recurring":{"interval":"month"}}]}`)
	}))
	defer srv.Close()

	backends := &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:           stripe.String(srv.URL),
			LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelNull},
		}),
	}
	catalog, err := NewCatalog("sk_test_123", backends)
	require.NoError(t, err)

	prices, err := catalog.ActivePrices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, Price{
		ID:         "price_biz",
		Nickname:   "Business",
		ProductID:  "prod_1",
		UnitAmount: 19900,
		Currency:   "brl",
		Interval:   "month",
	}, prices[0])
}

func TestNewCatalogRequiresKey(t *testing.T) {
	_, err := NewCatalog("", nil)
	assert.Error(t, err)
}
