package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
)

const inventoryTTL = 15 * time.Minute

// Inventory maps instance ids to autoscaling-group membership. Satisfies
// scanner.Inventory.
type Inventory struct {
	client *autoscaling.Client

	mu        sync.Mutex
	byID      map[string]string // instance id -> ASG name
	refreshed time.Time
}

// NewInventory creates an inventory backed by the provider's autoscaling
// client.
func (p *Provider) NewInventory() *Inventory {
	return &Inventory{client: p.asgClient, byID: map[string]string{}}
}

// ResourceMeta returns metadata for one instance: currently the "asg" tag
// when the instance belongs to an autoscaling group.
func (inv *Inventory) ResourceMeta(ctx context.Context, resourceID string) (map[string]string, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if time.Since(inv.refreshed) > inventoryTTL {
		if err := inv.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	meta := map[string]string{}
	if group, ok := inv.byID[resourceID]; ok {
		meta["asg"] = group
	}
	return meta, nil
}

func (inv *Inventory) refreshLocked(ctx context.Context) error {
	byID := map[string]string{}
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(inv.client,
		&autoscaling.DescribeAutoScalingGroupsInput{})

	const maxPages = 50
	for page := 0; paginator.HasMorePages() && page < maxPages; page++ {
		result, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("describing autoscaling groups: %w", err)
		}
		for _, group := range result.AutoScalingGroups {
			if group.AutoScalingGroupName == nil {
				continue
			}
			for _, inst := range group.Instances {
				if inst.InstanceId != nil {
					byID[*inst.InstanceId] = *group.AutoScalingGroupName
				}
			}
		}
	}

	inv.byID = byID
	inv.refreshed = time.Now()
	return nil
}
