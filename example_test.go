//go:build unit

package txevents_test

import (
	"context"
	"fmt"

	txevents "github.com/littlemiaor/lib-txevents"
	"github.com/littlemiaor/lib-txevents/log"
)

func ExampleDispatcher() {
	ctx := context.Background()

	forwarder := txevents.ForwarderFunc(func(_ context.Context, event txevents.Event) ([]any, error) {
		fmt.Println("forwarded:", event.Name)

		return nil, nil
	})

	dispatcher, err := txevents.NewDispatcher(forwarder, log.NewNop(), nil,
		txevents.WithIncludedPatterns("orders.*"),
	)
	if err != nil {
		fmt.Println(err)

		return
	}

	event, _ := txevents.NewEvent("orders.created", map[string]string{"id": "42"})

	dispatcher.NotifyBegin(ctx)

	outcome, _ := dispatcher.Dispatch(ctx, event)
	fmt.Println("deferred:", outcome.Deferred)

	result, _ := dispatcher.NotifyCommit(ctx)
	fmt.Println("flushed:", result.Forwarded)

	// Output:
	// deferred: true
	// forwarded: orders.created
	// flushed: 1
}

func ExampleDispatcher_rollback() {
	ctx := context.Background()

	forwarder := txevents.ForwarderFunc(func(_ context.Context, event txevents.Event) ([]any, error) {
		fmt.Println("forwarded:", event.Name)

		return nil, nil
	})

	dispatcher, err := txevents.NewDispatcher(forwarder, log.NewNop(), nil,
		txevents.WithIncludedPatterns("orders.*"),
	)
	if err != nil {
		fmt.Println(err)

		return
	}

	event, _ := txevents.NewEvent("orders.created", nil)

	dispatcher.NotifyBegin(ctx)
	_, _ = dispatcher.Dispatch(ctx, event)

	discarded := dispatcher.NotifyRollback(ctx)
	fmt.Println("discarded:", discarded)

	// Output:
	// discarded: 1
}
