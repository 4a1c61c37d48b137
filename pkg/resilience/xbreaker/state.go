package xbreaker

import "strconv"

// State 断路器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText 快照 JSON 输出使用状态名
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
