package expr

// FuncKind is the closed set of formula functions.
type FuncKind int

const (
	FuncAvg FuncKind = iota + 1
	FuncTTM
	FuncYoY
	FuncQoQ
	FuncCAGR
	FuncPerShare
)

// LookupFunc maps a function name to its kind.
func LookupFunc(name string) (FuncKind, bool) {
	switch name {
	case "avg":
		return FuncAvg, true
	case "ttm":
		return FuncTTM, true
	case "yoy":
		return FuncYoY, true
	case "qoq":
		return FuncQoQ, true
	case "cagr":
		return FuncCAGR, true
	case "per_share":
		return FuncPerShare, true
	}
	return 0, false
}

func (k FuncKind) String() string {
	switch k {
	case FuncAvg:
		return "avg"
	case FuncTTM:
		return "ttm"
	case FuncYoY:
		return "yoy"
	case FuncQoQ:
		return "qoq"
	case FuncCAGR:
		return "cagr"
	case FuncPerShare:
		return "per_share"
	}
	return "unknown"
}

// Call is one function call found in a formula.
type Call struct {
	Kind FuncKind
	// Arg is the identifier the function applies to.
	Arg string
	// N is the optional numeric argument, e.g. the 2 in avg(equity, 2).
	N    float64
	HasN bool
}
