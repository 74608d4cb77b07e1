package bot

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// LuaScorer scores moves with a script that defines a global
//
//	function score(m) ... end
//
// where m has the fields slot, row, col, shape, size, lines and filled.
// Only the base, table, string and math libraries are opened.
type LuaScorer struct {
	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

func NewLuaScorer(src string) (*LuaScorer, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("lua: open %s: %w", lib.name, err)
		}
	}
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("lua: %w", err)
	}
	fn, ok := L.GetGlobal("score").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("lua: script does not define function score")
	}
	return &LuaScorer{L: L, fn: fn}, nil
}

// LoadLuaScorer reads a scorer script from path.
func LoadLuaScorer(path string) (*LuaScorer, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := NewLuaScorer(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func (s *LuaScorer) Score(m Move) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.L.NewTable()
	t.RawSetString("slot", lua.LNumber(m.Slot))
	t.RawSetString("row", lua.LNumber(m.Row))
	t.RawSetString("col", lua.LNumber(m.Col))
	t.RawSetString("shape", lua.LString(m.Shape))
	t.RawSetString("size", lua.LNumber(m.Size))
	t.RawSetString("lines", lua.LNumber(m.Lines))
	t.RawSetString("filled", lua.LNumber(m.Filled))

	if err := s.L.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true}, t); err != nil {
		return 0, fmt.Errorf("lua score: %w", err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("lua score: returned %s, want number", ret.Type())
	}
	return float64(n), nil
}

func (s *LuaScorer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
