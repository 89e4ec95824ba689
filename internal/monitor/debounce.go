package monitor

type debounceState int

const (
	stateStable debounceState = iota
	statePending
)

// debounce confirms an online to offline transition. It starts pending and
// settles on the first successful probe or after maxRetries failures.
type debounce struct {
	state      debounceState
	retries    int
	maxRetries int
	online     bool
}

func newDebounce(maxRetries int) *debounce {
	d := &debounce{state: statePending, maxRetries: maxRetries}
	if maxRetries <= 0 {
		d.state = stateStable
	}
	return d
}

func (d *debounce) pending() bool {
	return d.state == statePending
}

// observe records one confirmation probe.
func (d *debounce) observe(online bool) {
	if d.state != statePending {
		return
	}
	d.retries++
	switch {
	case online:
		d.online = true
		d.state = stateStable
	case d.retries >= d.maxRetries:
		d.state = stateStable
	}
}
