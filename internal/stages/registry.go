package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"relay/internal/config"
	"relay/internal/ledger"
	"relay/internal/queueproc"
)

// Deps carries the shared resources behaviours may need.
type Deps struct {
	Ledger *ledger.Store
	Logger *slog.Logger
}

// Factory builds the stage implementation for one configured stage.
type Factory func(stage config.Stage, deps Deps) (queueproc.Stage, error)

var registry = map[string]Factory{
	"passthrough": func(config.Stage, Deps) (queueproc.Stage, error) { return Passthrough{}, nil },
	"exec": func(stage config.Stage, _ Deps) (queueproc.Stage, error) {
		if stage.Command == "" {
			return nil, fmt.Errorf("stage %s: exec behavior needs a command", stage.Name)
		}
		return &Exec{Command: stage.Command}, nil
	},
	"ledger": func(stage config.Stage, deps Deps) (queueproc.Stage, error) {
		if deps.Ledger == nil {
			return nil, fmt.Errorf("stage %s: ledger behavior needs the database", stage.Name)
		}
		return Ledger{}, nil
	},
}

// Behaviors lists the registered behaviour names in sorted order.
func Behaviors() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New resolves the configured behaviour of stage.
func New(stage config.Stage, deps Deps) (queueproc.Stage, error) {
	factory, ok := registry[stage.Behavior]
	if !ok {
		return nil, fmt.Errorf("stage %s: unknown behavior %q", stage.Name, stage.Behavior)
	}
	return factory(stage, deps)
}

// LedgerTransactor opens one ledger transaction per queue item.
func LedgerTransactor(store *ledger.Store) queueproc.Transactor {
	return queueproc.TransactorFunc(func(ctx context.Context) (queueproc.Tx, error) {
		if store == nil {
			return nil, errors.New("ledger store is not open")
		}
		tx, err := store.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return tx, nil
	})
}
