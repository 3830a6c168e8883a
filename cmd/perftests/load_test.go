package perftests

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bidding "auction-settlement/internal/biddingService"
	"auction-settlement/internal/biddingerrors"
	model "auction-settlement/internal/models"
	repository "auction-settlement/internal/repository"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name            string
	NumUsers        int
	NumAuctions     int
	ReadRatio       int // out of 10
	MaxBidIncrement int
	Burst           bool // if true, no delay between ops
}

// OperationMetrics collects latencies safely
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (minLat, maxLat, avg, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.latencies...)
	om.mu.Unlock()
	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	minLat = latencies[0]
	maxLat = latencies[len(latencies)-1]

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	avg = total / time.Duration(len(latencies))
	p95 = latencies[int(0.95*float64(len(latencies)-1))]
	p99 = latencies[int(0.99*float64(len(latencies)-1))]
	return
}

// setupRepo creates a repository seeded with eligible bidders and open auctions
func setupRepo(numUsers, numAuctions int) (*repository.MemoryRepo, *bidding.BiddingService) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	for i := 0; i < numUsers; i++ {
		repo.AddUser(benchUser(fmt.Sprintf("user_%d", i)))
	}
	for i := 0; i < numAuctions; i++ {
		repo.AddAuction(benchAuction(fmt.Sprintf("A%06d", i)))
	}
	return repo, svc
}

// Benchmark_Load_BiddingSystem runs multiple scenarios
func Benchmark_Load_BiddingSystem(b *testing.B) {
	scenarios := []LoadScenario{
		{"Low-Contention-WriteHeavy", 2000, 200, 0, 50, false},
		{"High-Contention-WriteHeavy", 5000, 10, 0, 20, false},
		{"Mixed-Workload", 3000, 50, 7, 30, false},
		{"ReadHeavy", 2000, 50, 9, 20, false},
		{"Edge-Case-SingleAuction", 1000, 1, 5, 10, false},
		{"Peak-Burst", 5000, 50, 0, 20, true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()

	_, svc := setupRepo(s.NumUsers, s.NumAuctions)
	ctx := context.Background()

	var totalOps, successfulBids, rejectedBids, conflicts, totalReads int64
	auctionSuccess := make([]int64, s.NumAuctions)
	metrics := &OperationMetrics{}

	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			auctionIndex := rnd.Intn(s.NumAuctions)
			auctionID := fmt.Sprintf("A%06d", auctionIndex)
			opType := rnd.Intn(10)

			opStart := time.Now()
			if opType < s.ReadRatio {
				if _, err := svc.GetWinningBid(ctx, auctionID); err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
					b.Logf("read error: %v", err)
				}
				atomic.AddInt64(&totalReads, 1)
			} else {
				amount := benchAuction(auctionID).StartingAmount + randomCents(rnd, s.MaxBidIncrement)
				userID := fmt.Sprintf("user_%d", rnd.Intn(s.NumUsers))
				_, err := svc.PlaceBid(ctx, auctionID, userID, amount)
				switch {
				case err == nil:
					atomic.AddInt64(&successfulBids, 1)
					atomic.AddInt64(&auctionSuccess[auctionIndex], 1)
				case errors.Is(err, biddingerrors.ErrConflict):
					atomic.AddInt64(&conflicts, 1)
				default:
					atomic.AddInt64(&rejectedBids, 1)
				}
			}

			metrics.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	minLat, maxLat, avg, p95, p99 := metrics.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"Scenario: %s | Auctions: %d | Total Ops: %d | Accepted Bids: %d | Rejected Bids: %d | Repeat Bidders: %d | Reads: %d | Elapsed: %s | Throughput: %.2f ops/sec | Latency(us) min: %.2f avg: %.2f max: %.2f p95: %.2f p99: %.2f | Memory Alloc: %.2f MB",
		s.Name, s.NumAuctions, totalOps, successfulBids, rejectedBids, conflicts, totalReads, elapsed,
		throughput,
		float64(minLat.Microseconds()), float64(avg.Microseconds()), float64(maxLat.Microseconds()),
		float64(p95.Microseconds()), float64(p99.Microseconds()),
		float64(mem.Alloc)/1024/1024,
	)

	for i, v := range auctionSuccess {
		if v > 0 {
			b.Logf("Auction %d accepted bids: %d", i, v)
		}
	}
}

// randomCents returns up to maxUnits whole units plus random cents
func randomCents(rnd *rand.Rand, maxUnits int) model.Amount {
	return model.Amount(rnd.Int63n(int64(maxUnits) * 100))
}
