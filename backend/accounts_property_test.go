package backend

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type openReq struct {
	ClientID    string
	AccountType string
}

func genOpenReq() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("c1", "c2", "c3", "c4"),
		gen.OneConstOf("roth_ira", "traditional_ira", "brokerage"),
	).Map(func(vals []any) openReq {
		return openReq{ClientID: vals[0].(string), AccountType: vals[1].(string)}
	})
}

func genOpenReqs() gopter.Gen {
	return gen.SliceOf(genOpenReq())
}

func TestAccountOpenProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent opens admit exactly one winner per client and type", prop.ForAll(
		func(racers int) bool {
			accounts := NewAccountSystem(testClock())
			opened := make([]Account, racers)
			errs := make([]error, racers)
			start := make(chan struct{})
			var wg sync.WaitGroup
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					opened[i], errs[i] = accounts.Open("c1", "roth_ira")
				}(i)
			}
			close(start)
			wg.Wait()

			wins := 0
			var winner string
			for i := range errs {
				if errs[i] == nil {
					wins++
					winner = opened[i].Number
				}
			}
			if wins != 1 {
				return false
			}
			for i := range errs {
				if errs[i] == nil {
					continue
				}
				conflict, ok := errs[i].(*ConflictError)
				if !ok || conflict.Existing != winner {
					return false
				}
			}
			return len(accounts.List()) == 1
		},
		gen.IntRange(2, 12),
	))

	properties.Property("account numbers stay unique under concurrent mixed opens", prop.ForAll(
		func(reqs []openReq) bool {
			accounts := NewAccountSystem(testClock())
			opened := make([]Account, len(reqs))
			errs := make([]error, len(reqs))
			start := make(chan struct{})
			var wg sync.WaitGroup
			for i, r := range reqs {
				wg.Add(1)
				go func(i int, r openReq) {
					defer wg.Done()
					<-start
					opened[i], errs[i] = accounts.Open(r.ClientID, r.AccountType)
				}(i, r)
			}
			close(start)
			wg.Wait()

			numbers := make(map[string]bool)
			winsByPair := make(map[openReq]int)
			for i := range reqs {
				if errs[i] != nil {
					continue
				}
				if numbers[opened[i].Number] {
					return false
				}
				numbers[opened[i].Number] = true
				winsByPair[reqs[i]]++
			}
			for _, wins := range winsByPair {
				if wins != 1 {
					return false
				}
			}
			distinct := make(map[openReq]bool)
			for _, r := range reqs {
				distinct[r] = true
			}
			return len(winsByPair) == len(distinct)
		},
		genOpenReqs(),
	))

	properties.TestingRun(t)
}
