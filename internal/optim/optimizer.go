// Package optim implements optimization algorithms for training the tiny model.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - Adam: Adaptive Moment Estimation with optional decoupled weight decay (AdamW)
//   - LinearSchedule: linear learning-rate decay with optional warmup
//
// Parameters are autodiff scalars: an optimizer reads Value.Grad after
// autodiff.Backward and updates Value.Data in place.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 5e-5})
//	schedule := optim.LinearSchedule{Base: 5e-5, TotalSteps: steps}
//
//	for step := range steps {
//	    loss := model.Loss(batch)
//	    autodiff.Backward(loss)
//	    optimizer.SetLR(schedule.At(step))
//	    optimizer.Step()
//	    optimizer.ZeroGrad()
//	}
package optim

import "github.com/born-ml/tinychat/internal/autodiff"

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies the accumulated gradients to all parameters.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float64

	// SetLR changes the learning rate used by the next Step.
	SetLR(lr float64)
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float64 // Learning rate
}

func zeroGrad(params []*autodiff.Value) {
	for _, p := range params {
		p.Grad = 0
	}
}
