package orchestrator

import "go.uber.org/fx"

var Module = fx.Module("orchestrator",
	fx.Provide(NewOrchestrator),
	fx.Provide(NewRecoveryWorker),
	fx.Invoke(func(*RecoveryWorker) {}),
)
