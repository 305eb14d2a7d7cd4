package fiber_test

import (
	"context"
	"fmt"

	fiber "github.com/Swind/go-fiber-runtime"
)

// ExampleSpawn demonstrates that fibers spawned onto a scheduler run in
// FIFO order within a single Schedule round.
func ExampleSpawn() {
	scheduler := fiber.NewScheduler(&fiber.TaskSchedulerConfig{Name: "example"})

	done := make(chan struct{})

	fiber.Spawn(scheduler, func(ctx context.Context) {
		fmt.Println("Task 1")
	})
	fiber.Spawn(scheduler, func(ctx context.Context) {
		fmt.Println("Task 2")
	})
	fiber.Spawn(scheduler, func(ctx context.Context) {
		fmt.Println("Task 3")
		close(done)
	})

	scheduler.Schedule()
	<-done

	// Output:
	// Task 1
	// Task 2
	// Task 3
}

// ExampleTaskScheduler_SwitchTo demonstrates that SwitchTo resumes its
// target immediately, ahead of whatever is already waiting in the ready
// queue.
func ExampleTaskScheduler_SwitchTo() {
	scheduler := fiber.NewScheduler(&fiber.TaskSchedulerConfig{Name: "example-switch"})

	fiber.Spawn(scheduler, func(ctx context.Context) {
		fmt.Println("background")
	})
	urgent, _ := fiber.Spawn(scheduler, func(ctx context.Context) {
		fmt.Println("urgent")
	})

	scheduler.SwitchTo(urgent)
	scheduler.Schedule()

	// Output:
	// urgent
	// background
}
