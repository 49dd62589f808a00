package scheduler

import (
	"sync"
	"testing"
)

func TestInlineRunsImmediately(t *testing.T) {
	var ran bool
	var sched Inline
	sched.PostMain(func() { ran = true })
	if !ran {
		t.Fatal("PostMain did not run synchronously")
	}

	var worked, completed bool
	sched.SpawnWorker(func() { worked = true }, func() { completed = true })
	if !worked || !completed {
		t.Fatal("SpawnWorker did not run fn and done synchronously")
	}
	if !sched.OnMain() {
		t.Fatal("Inline.OnMain should always report true")
	}
}

func TestLoopSpawnWorkerCompletesOnMain(t *testing.T) {
	l := NewLoop(4)
	go l.Run()
	defer l.Close()

	var wg sync.WaitGroup
	wg.Add(1)

	var onMainDuringDone bool
	l.SpawnWorker(func() {
		// runs on a worker goroutine
	}, func() {
		onMainDuringDone = l.OnMain()
		wg.Done()
	})

	wg.Wait()
	if !onMainDuringDone {
		t.Fatal("done callback did not observe OnMain() == true")
	}
}
