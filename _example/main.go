// callrec-demo is a small program to trace with callrec. It needs no source
// changes: from the repo root,
//
//	go run ./cmd/callrec run -C _example --tracer .
//	go run ./cmd/callrec report
//
// The report shows the call tree, per-worker goroutines, argument and return
// values, and the recovered panic inside parseAmount.
package main

import (
	"log"
	"sync"
)

func main() {
	log.SetFlags(0)

	orders := loadOrders()

	var (
		wg     sync.WaitGroup
		totals = make(chan float64, len(orders))
	)
	for _, order := range orders {
		wg.Add(1)
		go func(o Order) {
			defer wg.Done()
			totals <- price(o)
		}(order)
	}
	wg.Wait()
	close(totals)

	var total float64
	for t := range totals {
		total += t
	}
	log.Printf("priced %d orders, total %.2f", len(orders), total)

	for _, raw := range []string{"12.50", "banana"} {
		amount, err := parseAmount(raw)
		if err != nil {
			log.Printf("parse %q: %v", raw, err)
			continue
		}
		log.Printf("parse %q: %.2f", raw, amount)
	}
}
