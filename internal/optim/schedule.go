package optim

// LinearSchedule ramps the learning rate from 0 to Base over WarmupSteps and
// then decays it linearly to 0 at TotalSteps.
type LinearSchedule struct {
	Base        float64
	WarmupSteps int
	TotalSteps  int
}

// At returns the learning rate to use for the given 0-based step.
func (s LinearSchedule) At(step int) float64 {
	if step < s.WarmupSteps {
		return s.Base * float64(step) / float64(max(1, s.WarmupSteps))
	}
	if s.TotalSteps <= s.WarmupSteps {
		return s.Base
	}
	remaining := float64(s.TotalSteps-step) / float64(s.TotalSteps-s.WarmupSteps)
	return s.Base * max(0, remaining)
}
