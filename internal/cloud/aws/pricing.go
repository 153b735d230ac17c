package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"

	"github.com/rightsizer/rightsizer/internal/metrics"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

// componentRates maps instance family prefixes to per-vCPU and per-GiB-RAM
// hourly rates. Based on published us-east-1 on-demand pricing (as of
// 2024-Q4). Used as FALLBACK when the AWS Pricing API is unavailable; these
// rates may become stale.
var componentRates = map[string]struct{ cpuRate, memRate float64 }{
	"m5":  {0.048, 0.00643},
	"m5a": {0.0432, 0.00579},
	"m6i": {0.048, 0.00643},
	"m6a": {0.0432, 0.00579},
	"m6g": {0.0385, 0.00514},
	"m7i": {0.0504, 0.00675},
	"m7g": {0.0408, 0.00547},
	"c5":  {0.0425, 0.00569},
	"c5a": {0.0383, 0.00513},
	"c6i": {0.0425, 0.00569},
	"c6g": {0.034, 0.00456},
	"c7i": {0.04462, 0.00598},
	"c7g": {0.0361, 0.00484},
	"r5":  {0.063, 0.00844},
	"r5a": {0.0567, 0.0076},
	"r6i": {0.063, 0.00844},
	"r6g": {0.0504, 0.00675},
	"r7i": {0.06615, 0.00886},
	"r7g": {0.0535, 0.00717},
	"t3":  {0.0416, 0.00557},
	"t3a": {0.0374, 0.00502},
	"t4g": {0.0336, 0.0045},
	"i3":  {0.156, 0.0209},
}

type priceTable struct {
	prices    map[string]float64
	updatedAt time.Time
}

// PricingService resolves hourly on-demand prices, preferring the AWS
// Pricing API and falling back to component-based estimates. Satisfies
// engine.Pricer.
type PricingService struct {
	client *pricing.Client

	mu    sync.RWMutex
	cache map[string]priceTable // region/os -> prices
}

// NewPricingService builds the service. The Pricing API only exists in
// us-east-1; if credentials for it cannot be loaded, the service runs on
// fallback rates only.
func NewPricingService(ctx context.Context, _ awscfg.Config) *PricingService {
	var client *pricing.Client
	pricingCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion("us-east-1"))
	if err == nil {
		client = pricing.NewFromConfig(pricingCfg)
	} else {
		slog.Warn("aws: pricing API unavailable, using fallback rates", "error", err)
	}
	return &PricingService{client: client, cache: map[string]priceTable{}}
}

// AddPrice attaches hourly prices to candidates in place. A candidate whose
// price cannot be resolved is left unpriced, never an error.
func (s *PricingService) AddPrice(ctx context.Context, candidates []shapes.Candidate, region, os string) error {
	prices, err := s.regionPrices(ctx, region, os)
	if err != nil {
		slog.Warn("aws: live pricing unavailable, estimating", "region", region, "error", err)
		metrics.PricingFallbackTotal.WithLabelValues("aws", region).Inc()
	}
	for i := range candidates {
		if p, ok := prices[candidates[i].Name]; ok {
			candidates[i].PriceUSD = p
			continue
		}
		if p := estimatePrice(candidates[i].Shape); p > 0 {
			candidates[i].PriceUSD = p
		}
	}
	return nil
}

func (s *PricingService) regionPrices(ctx context.Context, region, os string) (map[string]float64, error) {
	if os == "" {
		os = "Linux"
	}
	key := region + "/" + os

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Since(cached.updatedAt) < time.Hour {
		return cached.prices, nil
	}

	if s.client == nil {
		return nil, fmt.Errorf("pricing client not configured")
	}
	fetched, err := s.fetchPrices(ctx, region, os)
	if err != nil {
		if ok {
			// Stale beats empty.
			return cached.prices, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = priceTable{prices: fetched, updatedAt: time.Now()}
	s.mu.Unlock()
	return fetched, nil
}

// fetchPrices calls GetProducts for per-instance-type hourly on-demand
// prices in the region.
func (s *PricingService) fetchPrices(ctx context.Context, region, os string) (map[string]float64, error) {
	prices := make(map[string]float64)

	filters := []pricingtypes.Filter{
		{Type: pricingtypes.FilterTypeTermMatch, Field: awscfg.String("ServiceCode"), Value: awscfg.String("AmazonEC2")},
		{Type: pricingtypes.FilterTypeTermMatch, Field: awscfg.String("regionCode"), Value: awscfg.String(region)},
		{Type: pricingtypes.FilterTypeTermMatch, Field: awscfg.String("operatingSystem"), Value: awscfg.String(os)},
		{Type: pricingtypes.FilterTypeTermMatch, Field: awscfg.String("tenancy"), Value: awscfg.String("Shared")},
		{Type: pricingtypes.FilterTypeTermMatch, Field: awscfg.String("preInstalledSw"), Value: awscfg.String("NA")},
		{Type: pricingtypes.FilterTypeTermMatch, Field: awscfg.String("capacitystatus"), Value: awscfg.String("Used")},
	}

	input := &pricing.GetProductsInput{
		ServiceCode: awscfg.String("AmazonEC2"),
		Filters:     filters,
		MaxResults:  awscfg.Int32(100),
	}

	const maxPages = 200 // safety limit to prevent unbounded pagination
	paginator := pricing.NewGetProductsPaginator(s.client, input)
	for page := 0; paginator.HasMorePages() && page < maxPages; page++ {
		result, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting pricing products: %w", err)
		}
		for _, item := range result.PriceList {
			name, hourly, ok := parsePriceListItem(item)
			if !ok {
				continue
			}
			if existing, found := prices[name]; !found || hourly < existing {
				prices[name] = hourly
			}
		}
	}
	return prices, nil
}

// parsePriceListItem extracts the instance type and hourly USD price from one
// PriceList JSON document.
func parsePriceListItem(priceJSON string) (instanceType string, price float64, ok bool) {
	var item struct {
		Product struct {
			Attributes struct {
				InstanceType string `json:"instanceType"`
			} `json:"attributes"`
		} `json:"product"`
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					Unit         string            `json:"unit"`
					PricePerUnit map[string]string `json:"pricePerUnit"`
				} `json:"priceDimensions"`
			} `json:"OnDemand"`
		} `json:"terms"`
	}

	if err := json.Unmarshal([]byte(priceJSON), &item); err != nil {
		return "", 0, false
	}
	instanceType = item.Product.Attributes.InstanceType
	if instanceType == "" {
		return "", 0, false
	}

	for _, offer := range item.Terms.OnDemand {
		for _, dim := range offer.PriceDimensions {
			if dim.Unit != "Hrs" {
				continue
			}
			usd, exists := dim.PricePerUnit["USD"]
			if !exists {
				continue
			}
			p, err := strconv.ParseFloat(usd, 64)
			if err != nil || p <= 0 {
				continue
			}
			return instanceType, p, true
		}
	}
	return "", 0, false
}

// estimatePrice builds a component-based price from the fallback rate table.
func estimatePrice(s shapes.Shape) float64 {
	series, err := shapes.SeriesPrefix(s.Name)
	if err != nil {
		return 0
	}
	rates, ok := componentRates[series]
	if !ok {
		rates = componentRates["m5"]
	}
	price := s.CPU*rates.cpuRate + s.MemoryGB*rates.memRate
	return math.Round(price*10000) / 10000
}
