package main

import (
	"log/slog"
	"os"

	"github.com/BTreeMap/PulsePoll/internal/api"
	"github.com/BTreeMap/PulsePoll/internal/catalog"
	"github.com/BTreeMap/PulsePoll/internal/delivery"
	"github.com/BTreeMap/PulsePoll/internal/notify"
	"github.com/BTreeMap/PulsePoll/internal/prompter"
	"github.com/BTreeMap/PulsePoll/internal/response"
	"github.com/BTreeMap/PulsePoll/internal/scheduler"
	"github.com/BTreeMap/PulsePoll/internal/settings"
	"github.com/BTreeMap/PulsePoll/internal/store"
	"github.com/BTreeMap/PulsePoll/internal/trigger"
)

// Minimal in-memory bring-up: embedded catalog, log notifier, log sink. The
// configurable entrypoint lives in cmd/PulsePoll.
func main() {
	st := store.NewInMemoryStore()
	cat := catalog.New()
	notifier := notify.NewLogNotifier()
	sink := delivery.NewLogSink()

	pr := prompter.New(st, notifier, nil)
	reg := trigger.NewTimerRegistry(pr.HandleFire)
	defer reg.Stop()

	sched := scheduler.New(cat, st, reg)
	dispatcher := settings.NewDispatcher(cat, st, sched)
	if err := dispatcher.EnsureInitialized(); err != nil {
		slog.Error("Initialization failed", "error", err)
		os.Exit(1)
	}

	respHandler := response.NewHandler(notifier, sink, nil)
	server := api.NewServer(cat, st, sched, dispatcher, pr, respHandler)
	if err := server.Run(); err != nil {
		slog.Error("PulsePoll failed to run", "error", err)
		os.Exit(1)
	}
}
