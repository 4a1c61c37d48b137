package xpool_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/omeyang/xguard/pkg/util/xpool"
)

func ExamplePool_Shutdown() {
	var sent atomic.Int32
	pool, err := xpool.New(2, 10, func(string) {
		sent.Add(1)
	})
	if err != nil {
		panic(err)
	}

	for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if err := pool.Submit(to); err != nil {
			fmt.Println("submit:", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		fmt.Println("shutdown:", err)
	}
	fmt.Println("sent", sent.Load())
	// Output:
	// sent 3
}
