package automation

import (
	"context"
	"time"

	"coachkit/internal/features/client"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ContextGatherer builds the per-client evaluation contexts for an org.
//
// Each enrichment (risk, subscription, activity) is looked up per client,
// one round trip per table. Fine at current tenant sizes; batching is the
// known fix if org rosters grow past a few hundred clients.
type ContextGatherer interface {
	GatherContexts(ctx context.Context, orgID primitive.ObjectID, now time.Time) ([]client.ClientContext, error)
}

type ContextGathererImpl struct {
	clientRepo client.ClientRepository
	logger     *zap.Logger
}

func NewContextGatherer(clientRepo client.ClientRepository, logger *zap.Logger) ContextGatherer {
	return &ContextGathererImpl{
		clientRepo: clientRepo,
		logger:     logger,
	}
}

func (g *ContextGathererImpl) GatherContexts(ctx context.Context, orgID primitive.ObjectID, now time.Time) ([]client.ClientContext, error) {
	clients, err := g.clientRepo.ListActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	today := now.Format("2006-01-02")
	contexts := make([]client.ClientContext, 0, len(clients))

	for _, c := range clients {
		cc, err := g.gatherOne(ctx, c, today, now)
		if err != nil {
			// Transient read failure for one client must not sink the batch;
			// the client is skipped this cycle.
			g.logger.Warn("Skipping client: context gathering failed",
				zap.String("org_id", orgID.Hex()),
				zap.String("client_id", c.ID.Hex()),
				zap.Error(err))
			continue
		}
		contexts = append(contexts, cc)
	}

	return contexts, nil
}

func (g *ContextGathererImpl) gatherOne(ctx context.Context, c client.Client, today string, now time.Time) (client.ClientContext, error) {
	cc := client.ClientContext{
		ID:       c.ID,
		OrgID:    c.OrgID,
		FullName: c.FullName,
		Email:    c.Email,
		Status:   c.Status,
	}

	risk, err := g.clientRepo.RiskForDay(ctx, c.ID, today)
	if err != nil {
		return cc, err
	}
	if risk != nil {
		cc.RiskTier = &risk.Tier
		cc.RiskScore = &risk.Score
	}

	sub, err := g.clientRepo.SubscriptionFor(ctx, c.ID)
	if err != nil {
		return cc, err
	}
	if sub != nil {
		cc.SubscriptionStatus = &sub.Status
	}

	activity, err := g.clientRepo.LastActivity(ctx, c.ID)
	if err != nil {
		return cc, err
	}
	if activity != nil {
		cc.LastActivityAt = &activity.CreatedAt
		days := int(now.Sub(activity.CreatedAt).Hours() / 24)
		cc.DaysSinceActivity = &days
	}

	return cc, nil
}
