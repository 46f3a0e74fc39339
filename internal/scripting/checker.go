package scripting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// CheckFunc is the global every checker script must define:
//
//	function check(answer) return answer == "42" end
const CheckFunc = "check"

// ErrNoCheckFunc is returned when a script does not define CheckFunc.
var ErrNoCheckFunc = errors.New("scripting: script does not define a check function")

// Checker evaluates answer-checking scripts. Each call runs in a fresh VM, so
// a Checker is safe for concurrent use.
type Checker struct {
	limit  int
	logger *zap.Logger
}

// NewChecker creates a Checker.
//
// Precondition: logger must be non-nil; limit <= 0 uses DefaultInstructionLimit.
func NewChecker(limit int, logger *zap.Logger) *Checker {
	return &Checker{limit: limit, logger: logger}
}

// Compile loads source in a throwaway VM and verifies it defines CheckFunc.
//
// Postcondition: Returns nil iff the script parses, runs within budget, and
// defines a check function.
func (c *Checker) Compile(ctx context.Context, source string) error {
	L, cancel := NewSandboxedState(ctx, c.limit)
	defer cancel()
	defer L.Close()
	return load(L, source)
}

// Check runs source's check function against answer.
//
// Precondition: source defines CheckFunc.
// Postcondition: Returns the truthiness of the first return value. Lua runtime
// errors and budget exhaustion are returned as errors, never as a verdict.
func (c *Checker) Check(ctx context.Context, source, answer string) (bool, error) {
	L, cancel := NewSandboxedState(ctx, c.limit)
	defer cancel()
	defer L.Close()

	if err := load(L, source); err != nil {
		return false, err
	}
	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(CheckFunc),
		NRet:    1,
		Protect: true,
	}, lua.LString(answer)); err != nil {
		c.logger.Warn("scripting: checker runtime error", zap.Error(err))
		return false, fmt.Errorf("scripting: running check: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}

func load(L *lua.LState, source string) error {
	registerHelpers(L)
	if err := L.DoString(source); err != nil {
		return fmt.Errorf("scripting: loading checker: %w", err)
	}
	if L.GetGlobal(CheckFunc).Type() != lua.LTFunction {
		return ErrNoCheckFunc
	}
	return nil
}

// registerHelpers installs the quiz table:
//
//	quiz.normalize(s)      lower-cased, trimmed, inner whitespace collapsed
//	quiz.number(s)         s parsed as a number, or nil
//	quiz.approx(a, b, eps) |a-b| <= eps
func registerHelpers(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "normalize", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(Normalize(L.CheckString(1))))
		return 1
	}))
	L.SetField(mod, "number", L.NewFunction(func(L *lua.LState) int {
		s := strings.ReplaceAll(strings.TrimSpace(L.CheckString(1)), ",", ".")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(n))
		return 1
	}))
	L.SetField(mod, "approx", L.NewFunction(func(L *lua.LState) int {
		a, b := float64(L.CheckNumber(1)), float64(L.CheckNumber(2))
		eps := float64(L.OptNumber(3, 1e-9))
		L.Push(lua.LBool(math.Abs(a-b) <= eps))
		return 1
	}))
	L.SetGlobal("quiz", mod)
}

// Normalize lower-cases s, trims it, and collapses inner whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
