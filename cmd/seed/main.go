package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"educommerce/internal/config"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
	pg "educommerce/internal/infra/db/postgres"
	"educommerce/internal/infra/logging"
	"educommerce/internal/usecase"
)

func intPtr(n int) *int { return &n }

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	planRepo := pg.NewPlanRepo(pool)
	couponRepo := pg.NewCouponRepo(pool)
	planUC := usecase.NewPlanUseCase(planRepo, logger)

	// If plans already exist, do nothing
	plans, err := planUC.List(ctx)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(plans) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(plans))
		for _, p := range plans {
			fmt.Printf("  - %s (price=%d agorot, period=%s)\n", p.Name, p.Price, p.BillingPeriod)
		}
		return
	}

	seed := []struct {
		Name     string
		Price    int64
		Period   model.BillingPeriod
		Benefits model.PlanBenefits
	}{
		{"Free", 0, model.BillingPeriodNone, model.PlanBenefits{GamesLimit: intPtr(3), ClassroomsLimit: intPtr(1)}},
		{"Basic", 2_900, model.BillingPeriodMonthly, model.PlanBenefits{GamesLimit: intPtr(20), ClassroomsLimit: intPtr(3)}},
		{"Pro", 5_900, model.BillingPeriodMonthly, model.PlanBenefits{ReportsAccess: true}},
		{"Pro Yearly", 59_000, model.BillingPeriodYearly, model.PlanBenefits{ReportsAccess: true}},
	}
	for _, s := range seed {
		p, err := planUC.Create(ctx, s.Name, s.Price, s.Period, s.Benefits)
		if err != nil {
			log.Fatalf("create plan %q: %v", s.Name, err)
		}
		fmt.Printf("seeded plan: %s (id=%s, price=%d agorot)\n", p.Name, p.ID, p.Price)
	}

	year := time.Now().AddDate(1, 0, 0)
	coupons := []*model.Coupon{
		{Code: "SAVE20", DiscountType: model.DiscountPercentage, DiscountValue: 20, ExpiresAt: &year},
		{Code: "WORKSHOP10", DiscountType: model.DiscountFixed, DiscountValue: 1_000,
			ProductTypes: []model.PurchasableType{model.PurchasableWorkshop}, ExpiresAt: &year},
	}
	for _, c := range coupons {
		if err := couponRepo.Save(ctx, repository.NoTX, c); err != nil {
			log.Fatalf("create coupon %q: %v", c.Code, err)
		}
		fmt.Printf("seeded coupon: %s\n", c.Code)
	}

	fmt.Println("Seeding complete.")
}
