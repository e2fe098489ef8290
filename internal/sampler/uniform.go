package sampler

// Uniform samples distinct indices in [0, count) without replacement.
// Used by the network fabric to choose the currently-faulty node set each
// round (spec §4.2 "Fault selection"); the commander is drawn separately
// with Source.Intn.
type Uniform interface {
	Initialize(count int) error
	Sample(size int) ([]int, bool)
}

type uniform struct {
	count int
	src   Source
}

// NewUniform creates a Uniform sampler drawing from src.
func NewUniform(src Source) Uniform {
	return &uniform{src: src}
}

func (u *uniform) Initialize(count int) error {
	u.count = count
	return nil
}

// Sample returns size distinct indices in [0, count), or false if
// size > count.
func (u *uniform) Sample(size int) ([]int, bool) {
	if size > u.count || size < 0 {
		return nil, false
	}
	indices := make([]int, 0, size)
	selected := make(map[int]bool, size)
	for len(indices) < size {
		idx := u.src.Intn(u.count)
		if selected[idx] {
			continue
		}
		selected[idx] = true
		indices = append(indices, idx)
	}
	return indices, true
}
