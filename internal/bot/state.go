package bot

// state tracks where a pipeline run is. Both paths are linear: ingestion
// walks Receiving through Persisting, querying is a single hop; every
// failure jumps straight back to Idle with one typed error, there is no
// partial retry across states.
type state int

const (
	stateIdle state = iota
	stateReceiving
	stateExtracting
	stateTransforming
	stateValidating
	statePersisting
	stateQuerying
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateReceiving:
		return "receiving"
	case stateExtracting:
		return "extracting"
	case stateTransforming:
		return "transforming"
	case stateValidating:
		return "validating"
	case statePersisting:
		return "persisting"
	case stateQuerying:
		return "querying"
	default:
		return "unknown"
	}
}
