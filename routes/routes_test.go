package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"matrix/catalog"
	"matrix/config"
	"matrix/database/dbtest"
	"matrix/ledger"
	"matrix/levels"
	"matrix/middlewares"
	"matrix/models"
	"matrix/placement"
	"matrix/rewards"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	adminCode   = "ops"
	adminSecret = "s3cret"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	t   *testing.T
	app *fiber.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.New(t)
	log := zaptest.NewLogger(t)

	seed, err := catalog.Default()
	require.NoError(t, err)
	reg := catalog.NewRegistry(db, log, seed)
	require.NoError(t, reg.Sync(context.Background()))

	l := ledger.New(db, log)
	rw := rewards.NewEngine(db, log, reg, l)
	lv := levels.NewEngine(db, log, rw)
	pm := placement.NewManager(db, log, lv, 72*time.Hour)

	cfg := config.Config{
		Admin:    config.AdminConfig{Code: adminCode, Secret: adminSecret},
		Withdraw: config.WithdrawConfig{RatePerMinute: 60, Burst: 5},
	}
	app := fiber.New()
	Setup(app, cfg, Services{Placement: pm, Levels: lv, Rewards: rw, Ledger: l, Catalog: reg})
	return &harness{t: t, app: app}
}

func (h *harness) do(method, path string, body any, headers map[string]string) (int, envelope) {
	h.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(h.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	var env envelope
	_ = json.Unmarshal(data, &env)
	return resp.StatusCode, env
}

func (h *harness) admin(method, path string, body any) (int, envelope) {
	h.t.Helper()
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	ts := time.Now().Unix()
	sig := middlewares.SignAdminRequest(adminCode, adminSecret, ts, method, path, raw)
	return h.do(method, path, body, map[string]string{
		middlewares.HeaderAdminCode:      adminCode,
		middlewares.HeaderAdminTimestamp: strconv.FormatInt(ts, 10),
		middlewares.HeaderAdminSignature: sig,
	})
}

func (h *harness) member(who memberView, method, path string, body any) (int, envelope) {
	h.t.Helper()
	return h.do(method, path, body, map[string]string{
		middlewares.HeaderReferralCode: who.ReferralCode,
		middlewares.HeaderMemberSecret: who.Secret,
	})
}

type memberView struct {
	ID           uint   `json:"id"`
	ReferralCode string `json:"referral_code"`
	Secret       string `json:"secret"`
	Status       string `json:"status"`
	Level        int    `json:"level"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestAdminRoutesRequireSignature(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(http.MethodGet, "/admin/members/pending", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "ADMIN_CREDENTIALS_REQUIRED", env.Message)

	status, env = h.do(http.MethodGet, "/admin/members/pending", nil, map[string]string{
		middlewares.HeaderAdminCode:      adminCode,
		middlewares.HeaderAdminTimestamp: strconv.FormatInt(time.Now().Unix(), 10),
		middlewares.HeaderAdminSignature: "deadbeef",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_SIGNATURE", env.Message)

	status, _ = h.admin(http.MethodGet, "/admin/members/pending", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestMemberRoutesRequireCredentials(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(http.MethodGet, "/member/me", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "MEMBER_CREDENTIALS_REQUIRED", env.Message)

	status, env = h.member(memberView{ReferralCode: "UNKNOWN", Secret: "x"}, http.MethodGet, "/member/me", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_MEMBER_CREDENTIALS", env.Message)
}

// createPaidRoot opens a root member and pays it the level-one cash bonus.
func createPaidRoot(t *testing.T, h *harness) memberView {
	t.Helper()
	status, env := h.admin(http.MethodPost, "/admin/members/root", map[string]string{"full_name": "Head Office"})
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	root := decode[memberView](t, env.Data)
	require.NotEmpty(t, root.Secret)

	for _, slot := range models.Slots {
		status, env = h.do(http.MethodPost, "/member/register", map[string]string{
			"sponsor_code": root.ReferralCode,
			"slot":         string(slot),
			"full_name":    "Recruit " + string(slot),
		}, nil)
		require.Equal(t, fiber.StatusCreated, status, env.Message)
		child := decode[memberView](t, env.Data)
		status, env = h.admin(http.MethodPost, fmt.Sprintf("/admin/members/%d/approve", child.ID), nil)
		require.Equal(t, fiber.StatusOK, status, env.Message)
	}

	status, env = h.member(root, http.MethodGet, "/member/rewards", nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	bonuses := decode[struct {
		Items []struct {
			ID uint `json:"ID"`
		} `json:"items"`
	}](t, env.Data)
	require.Len(t, bonuses.Items, 1)
	id := bonuses.Items[0].ID
	status, _ = h.admin(http.MethodPost, fmt.Sprintf("/admin/bonuses/%d/approve", id), nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = h.admin(http.MethodPost, fmt.Sprintf("/admin/bonuses/%d/mark-paid", id), nil)
	require.Equal(t, fiber.StatusOK, status)
	return root
}

func TestReferralCodeAloneCannotWithdraw(t *testing.T) {
	h := newHarness(t)
	root := createPaidRoot(t, h)

	status, env := h.do(http.MethodPost, "/member/withdrawals", map[string]any{
		"amount":         "100",
		"method":         "bkash",
		"account_number": "01999999999",
	}, map[string]string{middlewares.HeaderReferralCode: root.ReferralCode})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "MEMBER_CREDENTIALS_REQUIRED", env.Message)

	status, env = h.member(memberView{ReferralCode: root.ReferralCode, Secret: "guessed"}, http.MethodPost, "/member/withdrawals", map[string]any{
		"amount":         "100",
		"method":         "bkash",
		"account_number": "01999999999",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_MEMBER_CREDENTIALS", env.Message)

	status, env = h.admin(http.MethodGet, "/admin/withdrawals", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, decode[struct {
		Total int64 `json:"total"`
	}](t, env.Data).Total)
}

func TestTreeHidesReferralCodes(t *testing.T) {
	h := newHarness(t)
	root := createPaidRoot(t, h)

	status, env := h.member(root, http.MethodGet, "/member/tree", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, string(env.Data), "referral_code")
	assert.NotContains(t, string(env.Data), root.ReferralCode)
}

func TestResetSecretRevokesOldSecret(t *testing.T) {
	h := newHarness(t)
	root := createPaidRoot(t, h)

	status, env := h.admin(http.MethodPost, fmt.Sprintf("/admin/members/%d/secret", root.ID), nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	fresh := decode[memberView](t, env.Data)
	require.NotEmpty(t, fresh.Secret)
	assert.NotEqual(t, root.Secret, fresh.Secret)

	status, _ = h.member(root, http.MethodGet, "/member/me", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = h.member(fresh, http.MethodGet, "/member/me", nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRegistrationToPayoutFlow(t *testing.T) {
	h := newHarness(t)

	status, env := h.admin(http.MethodPost, "/admin/members/root", map[string]string{"full_name": "Head Office"})
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	root := decode[memberView](t, env.Data)
	assert.Equal(t, "approved", root.Status)

	for _, slot := range []string{"line one", "line_two", "Line-Three"} {
		status, env = h.do(http.MethodPost, "/member/register", map[string]string{
			"sponsor_code": root.ReferralCode,
			"slot":         slot,
			"full_name":    "Applicant " + slot,
		}, nil)
		require.Equal(t, fiber.StatusCreated, status, env.Message)
		child := decode[memberView](t, env.Data)

		status, env = h.admin(http.MethodPost, fmt.Sprintf("/admin/members/%d/approve", child.ID), nil)
		require.Equal(t, fiber.StatusOK, status, env.Message)
	}

	status, env = h.do(http.MethodPost, "/member/register", map[string]string{
		"sponsor_code": root.ReferralCode,
		"slot":         "line_one",
		"full_name":    "Too Late",
	}, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "SPONSOR_FULL", env.Message)

	status, env = h.member(root, http.MethodGet, "/member/me", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, decode[memberView](t, env.Data).Level)

	status, env = h.member(root, http.MethodGet, "/member/rewards", nil)
	require.Equal(t, fiber.StatusOK, status)
	page := decode[struct {
		Items []struct {
			ID     uint   `json:"ID"`
			Level  int    `json:"level"`
			Status string `json:"status"`
		} `json:"items"`
		Total int64 `json:"total"`
	}](t, env.Data)
	require.EqualValues(t, 1, page.Total)
	bonusID := page.Items[0].ID

	status, _ = h.admin(http.MethodPost, fmt.Sprintf("/admin/bonuses/%d/approve", bonusID), nil)
	require.Equal(t, fiber.StatusOK, status)
	status, env = h.admin(http.MethodPost, fmt.Sprintf("/admin/bonuses/%d/approve", bonusID), nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ALREADY_PROCESSED", env.Message)

	status, _ = h.admin(http.MethodPost, fmt.Sprintf("/admin/bonuses/%d/mark-paid", bonusID), nil)
	require.Equal(t, fiber.StatusOK, status)

	status, env = h.member(root, http.MethodGet, "/member/wallet", nil)
	require.Equal(t, fiber.StatusOK, status)
	wallet := decode[struct {
		CashBalance decimal.Decimal `json:"cash_balance"`
	}](t, env.Data)
	assert.True(t, wallet.CashBalance.Equal(decimal.NewFromInt(100)))

	status, env = h.member(root, http.MethodPost, "/member/withdrawals", map[string]any{
		"amount":         "500",
		"method":         "bkash",
		"account_number": "01700000000",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", env.Message)

	status, env = h.member(root, http.MethodPost, "/member/withdrawals", map[string]any{
		"amount":         "60",
		"method":         "bkash",
		"account_number": "01700000000",
	})
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	withdrawal := decode[struct {
		ID uint `json:"ID"`
	}](t, env.Data)

	status, _ = h.admin(http.MethodPost, fmt.Sprintf("/admin/withdrawals/%d/approve", withdrawal.ID), nil)
	require.Equal(t, fiber.StatusOK, status)

	status, env = h.member(root, http.MethodGet, "/member/transactions", nil)
	require.Equal(t, fiber.StatusOK, status)
	txns := decode[struct {
		Items []struct {
			Direction      string          `json:"direction"`
			RunningBalance decimal.Decimal `json:"running_balance"`
		} `json:"items"`
	}](t, env.Data)
	require.Len(t, txns.Items, 2)
	assert.Equal(t, "debit", txns.Items[0].Direction)
	assert.True(t, txns.Items[0].RunningBalance.Equal(decimal.NewFromInt(40)))

	status, env = h.admin(http.MethodGet, fmt.Sprintf("/admin/wallets/%d/reconcile", root.ID), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, decode[struct {
		Balanced bool `json:"balanced"`
	}](t, env.Data).Balanced)
}

func TestCatalogUpsertRoute(t *testing.T) {
	h := newHarness(t)

	status, env := h.admin(http.MethodPut, "/admin/catalog/5", map[string]any{
		"kind": "product",
		"item": "Smart TV",
	})
	require.Equal(t, fiber.StatusOK, status, env.Message)
	assert.Equal(t, 2, decode[struct {
		Version int `json:"version"`
	}](t, env.Data).Version)

	status, env = h.admin(http.MethodPut, "/admin/catalog/5", map[string]any{"kind": "cash", "amount": "0"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", env.Message)

	status, env = h.admin(http.MethodPut, "/admin/catalog/30", map[string]any{"kind": "cash", "amount": "10"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", env.Message)
}
