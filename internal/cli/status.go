package cli

import (
	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/feed"
	"indexfeed-trader/internal/hub"
	"indexfeed-trader/internal/store"
	"indexfeed-trader/internal/strategy"
)

// status implements hub.StatusProvider over the wired composition root's
// components, so the hub itself never holds a reference to the feed,
// aggregator, strategy engine or executor (the one-way topology the event
// bus exists to enforce).
type status struct {
	dataStore  *store.SQLiteStore
	feed       *feed.Client
	cfg        *config.Config
	strategies []strategy.Strategy
}

func newStatus(dataStore *store.SQLiteStore, feedClient *feed.Client, cfg *config.Config, strategies []strategy.Strategy) *status {
	return &status{dataStore: dataStore, feed: feedClient, cfg: cfg, strategies: strategies}
}

func (s *status) Status() hub.Status {
	strategyStatuses := make(map[string]string, len(s.strategies))
	for _, st := range s.strategies {
		strategyStatuses[st.Name()] = "active"
	}

	instrumentIDs := make([]string, 0, len(s.cfg.Feed.SubscriptionSet))
	for _, e := range s.cfg.Feed.SubscriptionSet {
		instrumentIDs = append(instrumentIDs, e.SecurityID)
	}

	portfolio, _ := s.dataStore.GetPortfolio(portfolioUserID)
	openPositions, _ := s.dataStore.AllOpenPositions()

	return hub.Status{
		FeedConnected:         s.feed.Connected(),
		SubscribedInstruments: instrumentIDs,
		CandleState:           map[string]string{},
		StrategyStatuses:      strategyStatuses,
		ExecutorState:         "running",
		Portfolio:             portfolio,
		OpenPositions:         openPositions,
	}
}
