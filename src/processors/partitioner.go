package processors

import (
	"sort"

	"github.com/google/btree"

	"github.com/username/taxfolio/sharesreport/src/models"
)

const bucketTreeDegree = 8

type dayBucket struct {
	date   models.TradeDate
	trades []models.TradeAction
}

func dayBucketLess(a, b *dayBucket) bool { return a.date.Before(b.date) }

type dailyPartitioner struct{}

func NewPartitioner() Partitioner {
	return &dailyPartitioner{}
}

// Partition groups trades by (symbol, currency) and then by day. Buckets are
// in ascending date order and keep the input order of same-day trades.
// Cycles are returned sorted by key.
func (p *dailyPartitioner) Partition(trades []models.TradeAction) []models.TradeCycle {
	trees := make(map[models.CycleKey]*btree.BTreeG[*dayBucket])
	var keys []models.CycleKey

	for _, t := range trades {
		key := t.Key()
		tree, ok := trees[key]
		if !ok {
			tree = btree.NewG(bucketTreeDegree, dayBucketLess)
			trees[key] = tree
			keys = append(keys, key)
		}
		probe := &dayBucket{date: t.Date}
		if bucket, found := tree.Get(probe); found {
			bucket.trades = append(bucket.trades, t)
			continue
		}
		probe.trades = []models.TradeAction{t}
		tree.ReplaceOrInsert(probe)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	cycles := make([]models.TradeCycle, 0, len(keys))
	for _, key := range keys {
		cycle := models.TradeCycle{Key: key}
		trees[key].Ascend(func(b *dayBucket) bool {
			cycle.Buckets = append(cycle.Buckets, models.DailyBucket{Date: b.date, Trades: b.trades})
			return true
		})
		cycles = append(cycles, cycle)
	}
	return cycles
}
