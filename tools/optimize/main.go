package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/patrickwarner/esimplanner/internal/catalog"
	"github.com/patrickwarner/esimplanner/internal/config"
	"github.com/patrickwarner/esimplanner/internal/db"
	"github.com/patrickwarner/esimplanner/internal/models"
	"github.com/patrickwarner/esimplanner/internal/observability"
	"github.com/patrickwarner/esimplanner/internal/planner"

	"go.uber.org/zap"
)

// legList collects repeated -leg territory:days:mb flags into consecutive legs.
type legList []models.Leg

func (l *legList) String() string {
	parts := make([]string, 0, len(*l))
	for _, leg := range *l {
		parts = append(parts, fmt.Sprintf("%s:%d:%g", leg.Territory, leg.Days(), leg.DataRequiredMB))
	}
	return strings.Join(parts, ",")
}

func (l *legList) Set(v string) error {
	leg, err := parseLeg(v)
	if err != nil {
		return err
	}
	*l = append(*l, leg)
	return nil
}

// parseLeg parses territory:days:mb. The leg starts at day 0; Sequential
// places it after the previous legs.
func parseLeg(v string) (models.Leg, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return models.Leg{}, fmt.Errorf("leg %q: want territory:days:mb", v)
	}
	days, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.Leg{}, fmt.Errorf("leg %q: days: %w", v, err)
	}
	mb, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return models.Leg{}, fmt.Errorf("leg %q: data: %w", v, err)
	}
	return models.Leg{Territory: strings.TrimSpace(parts[0]), StartDay: 0, EndDay: days, DataRequiredMB: mb}, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	var legs legList
	var plansFile, overridesFile, promoFile, excludeProviders, excludeKeywords string
	var top int
	var asJSON bool
	flag.Var(&legs, "leg", "trip leg as territory:days:mb (repeat for each stop, in order)")
	flag.StringVar(&plansFile, "plans", cfg.PlansFile, "JSON plans catalog")
	flag.StringVar(&overridesFile, "overrides", cfg.OverridesFile, "plan overrides file (YAML or JSON)")
	flag.StringVar(&promoFile, "promo-cache", cfg.PromoCacheFile, "scraped promo classification cache")
	flag.StringVar(&excludeProviders, "exclude-providers", "", "comma-separated provider IDs to leave out")
	flag.StringVar(&excludeKeywords, "exclude-keywords", "", "comma-separated title keywords to leave out")
	flag.IntVar(&top, "top", 0, "number of solutions to print (0 uses TOP_N_SOLUTIONS)")
	flag.BoolVar(&asJSON, "json", false, "print the full response as JSON")
	flag.Parse()

	if plansFile == "" || len(legs) == 0 {
		fmt.Fprintln(os.Stderr, "-plans and at least one -leg are required")
		flag.Usage()
		os.Exit(2)
	}

	overrides, err := catalog.LoadOverrides(overridesFile)
	if err != nil {
		logger.Fatal("load overrides", zap.Error(err))
	}

	ctx := context.Background()
	svc := planner.NewService(models.NewInMemoryCatalogStore(), planner.OptionsFromConfig(cfg, overrides), observability.NewNoOpRegistry())
	svc.SetLogger(logger)
	report, err := svc.ReloadCatalog(ctx, &db.FileSource{PlansFile: plansFile, PromoCacheFile: promoFile}, overrides)
	if err != nil {
		logger.Fatal("load catalog", zap.Error(err))
	}
	if report.RejectedTotal() > 0 {
		logger.Info("plans rejected at ingestion", zap.Any("reasons", report.Rejected))
	}

	req := planner.Request{
		Legs:                 models.Sequential(legs...),
		ExcludeProviders:     splitList(excludeProviders),
		ExcludeTitleKeywords: splitList(excludeKeywords),
	}
	if top > 0 {
		req.Limits = &planner.LimitOverrides{TopN: &top}
	}

	resp, err := svc.Optimize(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "optimize: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "encode response: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printSolutions(os.Stdout, resp)
}

// printSolutions writes a ranked, human-readable summary of resp.
func printSolutions(w io.Writer, resp *planner.Response) {
	if resp.Status != planner.StatusOK {
		fmt.Fprintf(w, "%s (searched %d plans, %d combinations)\n",
			resp.Status, resp.Stats.SearchSpace, resp.Stats.Enumerated)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tCOST (%s)\tACCOUNTS\tACTIVATIONS\tDATA MB\tPLANS\n", resp.Currency)
	for i, sol := range resp.Solutions {
		plans := make([]string, 0, len(sol.Purchases))
		for _, p := range sol.Purchases {
			plans = append(plans, fmt.Sprintf("%dx %s (%s)", p.Quantity, p.Plan.Title, p.Plan.ProviderName))
		}
		fmt.Fprintf(tw, "%d\t%.2f\t%d\t%d\t%.0f\t%s\n",
			i+1, sol.DisplayCost, sol.TotalAccounts, sol.TotalActivations, sol.PurchasedDataMB, strings.Join(plans, " + "))
	}
	_ = tw.Flush()

	best := resp.Solutions[0]
	for _, p := range best.Purchases {
		for _, warn := range p.Warnings {
			fmt.Fprintf(w, "  ! %s: %s\n", p.Plan.Title, warn)
		}
	}
}
