package resolution

import "fmt"

// ResolutionType records which side produced a result feature.
type ResolutionType int

const (
	Unresolved ResolutionType = iota
	Local
	Remote
	// Custom is a user acknowledged mix of both sides.
	Custom
)

func (t ResolutionType) String() string {
	switch t {
	case Unresolved:
		return "unresolved"
	case Local:
		return "local"
	case Remote:
		return "remote"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("ResolutionType(%d)", int(t))
	}
}

// ParseResolutionType is the inverse of String for the resolved kinds.
func ParseResolutionType(s string) (ResolutionType, error) {
	switch s {
	case "local":
		return Local, nil
	case "remote":
		return Remote, nil
	case "custom":
		return Custom, nil
	}
	return Unresolved, fmt.Errorf("unknown resolution %q, expected local, remote or custom", s)
}
