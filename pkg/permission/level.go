package permission

// Level is the strength of a permission link. Each level implies all
// lower ones.
type Level int // A

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelManage
)

var levelNames = map[string]Level{
	"can_read":   LevelRead,
	"can_write":  LevelWrite,
	"can_manage": LevelManage,
}

// ParseLevel maps a permission link name such as "can_write" to its
// Level. Unknown names yield LevelNone and false.
func ParseLevel(name string) (Level, bool) { // A
	l, ok := levelNames[name]
	return l, ok
}

// String returns the link name of the level.
func (l Level) String() string { // A
	switch l {
	case LevelRead:
		return "can_read"
	case LevelWrite:
		return "can_write"
	case LevelManage:
		return "can_manage"
	default:
		return "none"
	}
}

func minLevel(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}
