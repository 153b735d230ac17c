// Package aws integrates the engine with EC2: the live shape catalog, the
// Pricing API with static fallback rates, and autoscaling-group membership
// for resource metadata.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// Provider bundles the AWS service clients used by the engine.
type Provider struct {
	region    string
	ec2Client *ec2.Client
	asgClient *autoscaling.Client
	pricing   *PricingService
}

// NewProvider loads the default AWS credential chain for the region.
func NewProvider(ctx context.Context, region string) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Provider{
		region:    region,
		ec2Client: ec2.NewFromConfig(cfg),
		asgClient: autoscaling.NewFromConfig(cfg),
		pricing:   NewPricingService(ctx, cfg),
	}, nil
}

func (p *Provider) Name() string { return "aws" }

// Pricing returns the pricing service, which satisfies engine.Pricer.
func (p *Provider) Pricing() *PricingService { return p.pricing }
