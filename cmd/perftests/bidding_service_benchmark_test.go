package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	bidding "auction-settlement/internal/biddingService"
	model "auction-settlement/internal/models"
	repository "auction-settlement/internal/repository"
)

const benchFloor = 1000

func benchAuction(id string) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		ID:              id,
		BidDescription:  "Benchmark auction " + id,
		ItemDescription: "Independent benchmark item",
		StartingAmount:  model.NewAmount(benchFloor),
		Categories:      []string{"bench"},
		OpensAt:         now.Add(-time.Minute),
		ClosesAt:        now.Add(time.Hour),
	}
}

func benchUser(id string) model.User {
	return model.User{ID: id, Email: id + "@bench.local", Active: true, Verified: true}
}

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	repo.AddUser(benchUser("bench_user"))

	for i := 0; i < b.N; i++ {
		repo.AddAuction(benchAuction(fmt.Sprintf("A%06d", i)))
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		auctionID := fmt.Sprintf("A%06d", i)
		amount := model.NewAmount(int64(benchFloor + rand.Intn(100)))
		if _, err := svc.PlaceBid(ctx, auctionID, "bench_user", amount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	repo.AddAuction(benchAuction("SHARED1"))

	const pool = 4096
	for i := 0; i < pool; i++ {
		repo.AddUser(benchUser(fmt.Sprintf("user_%d", i)))
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = benchFloor * 100
	var nextUser int64

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_%d", atomic.AddInt64(&nextUser, 1)%pool)
			next := atomic.AddInt64(&lastBid, int64(rnd.Intn(500)+1))
			_, _ = svc.PlaceBid(ctx, "SHARED1", userID, model.Amount(next))
		}
	})
}

// Benchmark 3: GetWinningBid - Single-Threaded (Low Contention)
func Benchmark_GetWinningBid_SingleThreaded(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()

	const auctions, bidders = 100, 10
	for j := 0; j < bidders; j++ {
		repo.AddUser(benchUser(fmt.Sprintf("user_%d", j)))
	}
	for i := 0; i < auctions; i++ {
		auctionID := fmt.Sprintf("A%06d", i)
		repo.AddAuction(benchAuction(auctionID))
		for j := 0; j < bidders; j++ {
			amount := model.NewAmount(int64(benchFloor + j*10))
			if _, err := svc.PlaceBid(ctx, auctionID, fmt.Sprintf("user_%d", j), amount); err != nil {
				b.Fatalf("failed to seed bid: %v", err)
			}
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := svc.GetWinningBid(ctx, fmt.Sprintf("A%06d", i%auctions)); err != nil {
			b.Fatalf("failed to get winning bid: %v", err)
		}
	}
}

// Benchmark 4: GetWinningBid while bids keep arriving on the same auction
func Benchmark_GetWinningBid_ConcurrentWithWrites(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	repo.AddAuction(benchAuction("HOT0001"))
	repo.AddUser(benchUser("seed"))
	ctx := context.Background()

	if _, err := svc.PlaceBid(ctx, "HOT0001", "seed", model.NewAmount(benchFloor)); err != nil {
		b.Fatalf("failed to seed bid: %v", err)
	}

	const pool = 1024
	for i := 0; i < pool; i++ {
		repo.AddUser(benchUser(fmt.Sprintf("writer_%d", i)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = benchFloor * 100
	var ops int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			n := atomic.AddInt64(&ops, 1)
			if n%10 == 0 {
				next := atomic.AddInt64(&lastBid, 1)
				_, _ = svc.PlaceBid(ctx, "HOT0001", fmt.Sprintf("writer_%d", n%pool), model.Amount(next))
				continue
			}
			if _, err := svc.GetWinningBid(ctx, "HOT0001"); err != nil {
				b.Errorf("failed to get winning bid: %v", err)
			}
		}
	})
}
