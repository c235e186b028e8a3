package routes

import (
	"matrix/catalog"
	"matrix/config"
	"matrix/controllers/admin"
	"matrix/controllers/member"
	"matrix/ledger"
	"matrix/levels"
	"matrix/middlewares"
	"matrix/placement"
	"matrix/rewards"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the engines the HTTP layer exposes.
type Services struct {
	Placement *placement.Manager
	Levels    *levels.Engine
	Rewards   *rewards.Engine
	Ledger    *ledger.Ledger
	Catalog   *catalog.Registry
}

func Setup(app *fiber.App, cfg config.Config, svc Services) {
	app.Use(middlewares.Metrics())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	mh := &member.Handler{Placement: svc.Placement, Rewards: svc.Rewards, Ledger: svc.Ledger}
	ah := &admin.Handler{
		Placement: svc.Placement,
		Levels:    svc.Levels,
		Rewards:   svc.Rewards,
		Ledger:    svc.Ledger,
		Catalog:   svc.Catalog,
	}

	app.Post("/member/register", mh.Register)

	memberroutes := app.Group("/member", middlewares.MemberAuth(svc.Placement))
	memberroutes.Get("/me", mh.Me)
	memberroutes.Get("/tree", mh.Tree)
	memberroutes.Get("/rewards", mh.MyRewards)
	memberroutes.Get("/claims", mh.Claims)
	memberroutes.Post("/claims", mh.SubmitClaim)
	memberroutes.Post("/claims/:id/cancel", mh.CancelClaim)
	memberroutes.Get("/wallet", mh.Wallet)
	memberroutes.Get("/transactions", mh.Transactions)
	memberroutes.Get("/withdrawals", mh.Withdrawals)
	memberroutes.Post("/withdrawals",
		middlewares.WithdrawThrottle(cfg.Withdraw.RatePerMinute, cfg.Withdraw.Burst),
		mh.RequestWithdrawal)

	adminroutes := app.Group("/admin", middlewares.AdminAuth(cfg.Admin.Code, cfg.Admin.Secret))
	adminroutes.Post("/members/root", ah.CreateRoot)
	adminroutes.Get("/members/pending", ah.PendingMembers)
	adminroutes.Post("/members/:id/approve", ah.ApproveMember)
	adminroutes.Post("/members/:id/reject", ah.RejectMember)
	adminroutes.Post("/members/:id/recompute", ah.RecomputeLevel)
	adminroutes.Post("/members/:id/secret", ah.ResetSecret)
	adminroutes.Get("/members/:id/tree", ah.MemberTree)

	adminroutes.Get("/bonuses", ah.Bonuses)
	adminroutes.Post("/bonuses/:id/approve", ah.ApproveBonus)
	adminroutes.Post("/bonuses/:id/reject", ah.RejectBonus)
	adminroutes.Post("/bonuses/:id/mark-paid", ah.MarkBonusPaid)
	adminroutes.Post("/bonuses/:id/confirm-recharge", ah.ConfirmRecharge)

	adminroutes.Get("/claims", ah.Claims)
	adminroutes.Get("/claims/:id", ah.Claim)
	adminroutes.Post("/claims/:id/transition", ah.TransitionClaim)

	adminroutes.Get("/withdrawals", ah.Withdrawals)
	adminroutes.Post("/withdrawals/:id/approve", ah.ApproveWithdrawal)
	adminroutes.Post("/withdrawals/:id/reject", ah.RejectWithdrawal)
	adminroutes.Get("/wallets/:memberId/reconcile", ah.Reconcile)

	adminroutes.Get("/catalog", ah.ListCatalog)
	adminroutes.Put("/catalog/:level", ah.UpsertCatalog)
}
