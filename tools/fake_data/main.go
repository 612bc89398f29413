package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
)

var (
	providerCount = flag.Int("providers", 6, "number of providers")
	plansPerScope = flag.Int("plans", 4, "plans per provider and territory")
	regions       = flag.Int("regions", 2, "regional plans per provider")
	out           = flag.String("out", "", "write the catalog as JSON to this file instead of Postgres")
	deactivate    = flag.String("deactivate", "", "plan ID to hide from future loads, then exit")
	seed          = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipReload    = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
)

var territories = []string{"fr", "de", "it", "es", "pt", "nl", "jp", "th", "vn", "us", "mx", "br"}

var dataSizes = []float64{500, 1024, 3072, 5120, 10240, 20480}

var validities = []float64{3, 7, 15, 30}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	ctx := context.Background()
	r := rand.New(rand.NewSource(*seed))

	plans, promos := fakeCatalog(r, *providerCount, *plansPerScope, *regions)

	if *out != "" {
		if err := writeCatalog(*out, plans); err != nil {
			logger.Fatal("write catalog", zap.Error(err))
		}
		logger.Info("catalog written", zap.String("file", *out), zap.Int("plans", len(plans)))
		return
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if *deactivate != "" {
		if err := pg.DeactivatePlan(ctx, *deactivate); err != nil {
			logger.Fatal("deactivate plan", zap.String("plan_id", *deactivate), zap.Error(err))
		}
		logger.Info("plan deactivated", zap.String("plan_id", *deactivate))
	} else {
		if err := pg.UpsertPlans(ctx, plans); err != nil {
			logger.Fatal("upsert plans", zap.Error(err))
		}
		for id, pp := range promos {
			if err := pg.UpsertPromoClassification(ctx, id, pp); err != nil {
				logger.Fatal("upsert promo classification", zap.String("provider_id", id), zap.Error(err))
			}
		}
		logger.Info("fake catalog inserted", zap.Int("plans", len(plans)), zap.Int("providers", len(promos)))
	}

	if !*skipReload {
		if err := callReloadEndpoint(cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server data: %v\n", err)
		} else {
			fmt.Println("server data reloaded")
		}
	}
}

// fakeCatalog builds local plans for every territory and a few regional
// bundles per provider, plus a promo classification for each provider.
func fakeCatalog(r *rand.Rand, providers, perScope, regional int) ([]models.Plan, map[string]catalog.ProviderPromo) {
	var plans []models.Plan
	promos := make(map[string]catalog.ProviderPromo, providers)

	for p := 0; p < providers; p++ {
		providerID := fmt.Sprintf("provider-%d", p+1)
		name := fmt.Sprintf("Provider %d", p+1)
		promoType := models.PromoUnlimited
		if r.Intn(2) == 0 {
			promoType = models.PromoOneTime
		}
		promos[providerID] = catalog.ProviderPromo{PromoType: promoType, Name: name}
		newUserOnly := r.Intn(4) == 0
		canTopUp := r.Intn(3) != 0

		for _, t := range territories {
			for i := 0; i < perScope; i++ {
				plan := randomPlan(r, providerID, name, fmt.Sprintf("%s-%s-%d", providerID, t, i), []string{t})
				plan.NewUserOnly = newUserOnly
				plan.CanTopUp = canTopUp
				plans = append(plans, plan)
			}
		}
		for i := 0; i < regional; i++ {
			coverage := pickTerritories(r, 3+r.Intn(4))
			plan := randomPlan(r, providerID, name, fmt.Sprintf("%s-region-%d", providerID, i), coverage)
			plan.Scope = models.ScopeRegional
			plan.RegularPrice = math.Round(plan.RegularPrice*1.4*100) / 100
			plan.CanTopUp = canTopUp
			plans = append(plans, plan)
		}
	}
	return plans, promos
}

func randomPlan(r *rand.Rand, providerID, providerName, id string, coverage []string) models.Plan {
	data := dataSizes[r.Intn(len(dataSizes))]
	validity := validities[r.Intn(len(validities))]
	capMode := models.CapModeTotal
	if r.Intn(8) == 0 {
		// daily allowance plans sell small buckets
		capMode = models.CapModePerDay
		data = 500
	}
	// roughly $1.50 per GB with a validity surcharge and noise
	price := data/1024*1.5 + validity*0.05 + r.Float64()*2
	if r.Intn(20) == 0 {
		data = models.Unlimited
		price = validity * 1.2
	}
	plan := models.Plan{
		ProviderID:   providerID,
		ProviderName: providerName,
		PlanID:       id,
		Title:        fmt.Sprintf("%s %s %.0fd", providerName, sizeLabel(data), validity),
		Scope:        models.ScopeLocal,
		Coverage:     coverage,
		DataMB:       data,
		CapMode:      capMode,
		ValidityDays: validity,
		RegularPrice: math.Round(price*100) / 100,
	}
	if r.Intn(4) == 0 {
		promo := math.Round(plan.RegularPrice*0.6*100) / 100
		plan.PromoPrice = &promo
	}
	if r.Intn(6) == 0 {
		plan.SpeedLimitKbps = 512
	}
	if r.Intn(10) == 0 {
		noTethering := false
		plan.Tethering = &noTethering
	}
	return plan
}

func sizeLabel(mb float64) string {
	if mb == models.Unlimited {
		return "Unlimited"
	}
	if mb < 1024 {
		return fmt.Sprintf("%.0fMB", mb)
	}
	return fmt.Sprintf("%.0fGB", mb/1024)
}

func pickTerritories(r *rand.Rand, n int) []string {
	idx := r.Perm(len(territories))
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, territories[i])
	}
	return out
}

func writeCatalog(path string, plans []models.Plan) error {
	data, err := json.MarshalIndent(plans, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plans: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func callReloadEndpoint(cfg config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
