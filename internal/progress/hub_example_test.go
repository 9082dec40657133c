package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExampleHub_Emit shows a worker reporting a finished unit.
func ExampleHub_Emit() {
	var officers int
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageUnitDone {
				officers += evt.Officers
			}
		}
		return nil
	}))

	hub.Emit(Event{
		RunID:    UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		TS:       time.Unix(0, 0),
		Stage:    StageUnitDone,
		Unit:     "Mehmet",
		Officers: 12,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("officers reported: %d\n", officers)
	// Output:
	// officers reported: 12
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
