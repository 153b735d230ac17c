package aws

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/rightsizer/rightsizer/internal/metrics"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

const catalogMaxPages = 50

// FetchShapes lists every current-generation EC2 instance type as a catalog
// shape.
func (p *Provider) FetchShapes(ctx context.Context) ([]shapes.Shape, error) {
	var out []shapes.Shape
	paginator := ec2.NewDescribeInstanceTypesPaginator(p.ec2Client, &ec2.DescribeInstanceTypesInput{})

	for page := 0; paginator.HasMorePages() && page < catalogMaxPages; page++ {
		result, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing instance types: %w", err)
		}
		for _, it := range result.InstanceTypes {
			s := shapes.Shape{
				Name:  string(it.InstanceType),
				Cloud: "aws",
			}
			if it.VCpuInfo != nil && it.VCpuInfo.DefaultVCpus != nil {
				s.CPU = float64(*it.VCpuInfo.DefaultVCpus)
			}
			if it.MemoryInfo != nil && it.MemoryInfo.SizeInMiB != nil {
				s.MemoryGB = float64(*it.MemoryInfo.SizeInMiB) / 1024
			}
			if it.NetworkInfo != nil && it.NetworkInfo.NetworkPerformance != nil {
				s.NetworkGbps = parseNetworkGbps(*it.NetworkInfo.NetworkPerformance)
			}
			if it.EbsInfo != nil && it.EbsInfo.EbsOptimizedInfo != nil &&
				it.EbsInfo.EbsOptimizedInfo.BaselineIops != nil {
				s.IOPS = float64(*it.EbsInfo.EbsOptimizedInfo.BaselineIops)
			}
			s.FamilyType = shapes.FamilyType(s)
			if series, err := shapes.SeriesPrefix(s.Name); err == nil {
				s.Series = series
			}
			if s.CPU == 0 || s.MemoryGB == 0 {
				continue
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// RefreshCatalog replaces the static catalog contents with the live EC2
// inventory. Intended to be called periodically; a failure keeps the previous
// contents.
func (p *Provider) RefreshCatalog(ctx context.Context, catalog *shapes.StaticCatalog) error {
	fetched, err := p.FetchShapes(ctx)
	if err != nil {
		metrics.CatalogRefreshTotal.WithLabelValues("error").Inc()
		return err
	}
	if len(fetched) == 0 {
		metrics.CatalogRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("instance type listing came back empty")
	}
	catalog.Replace(fetched)
	metrics.CatalogRefreshTotal.WithLabelValues("ok").Inc()
	slog.Info("aws: shape catalog refreshed", "shapes", len(fetched))
	return nil
}

// RunCatalogRefresh refreshes the catalog on a fixed interval until ctx is
// cancelled.
func (p *Provider) RunCatalogRefresh(ctx context.Context, catalog *shapes.StaticCatalog, every time.Duration) {
	if every <= 0 {
		every = 24 * time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.RefreshCatalog(ctx, catalog); err != nil {
				slog.Warn("aws: catalog refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// parseNetworkGbps extracts a bandwidth figure from strings like
// "Up to 10 Gigabit" or "25 Gigabit". Unparseable descriptions yield 0.
func parseNetworkGbps(performance string) float64 {
	for _, field := range strings.Fields(performance) {
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			return v
		}
	}
	return 0
}
