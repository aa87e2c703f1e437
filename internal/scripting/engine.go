package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM running interaction hooks.
// Calls are serialised; the VM is not safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts under scriptsDir/interact.
// A missing directory yields an engine that always returns the default action.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(filepath.Join(scriptsDir, "interact")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load interact scripts: %w", err)
	}
	return e, nil
}

// NewEngineFromSource builds an engine from inline Lua source.
func NewEngineFromSource(src string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	if err := vm.DoString(src); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	return &Engine{vm: vm, log: log}, nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// InteractContext is the data handed to on_interact.
type InteractContext struct {
	ObjectID   string
	Type       string
	Name       string
	X, Y       int // agent tile position
	Properties map[string]any
}

// Action is what the client should do in response to a trigger.
type Action struct {
	Kind    string // "open", "message", "none", ...
	Target  string
	Message string
}

// DefaultAction opens the panel named after the object type.
func DefaultAction(objType string) Action {
	return Action{Kind: "open", Target: objType}
}

// OnInteract calls the Lua on_interact function.
func (e *Engine) OnInteract(ctx InteractContext) Action {
	def := DefaultAction(ctx.Type)

	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("on_interact")
	if fn == lua.LNil {
		e.log.Error("lua function on_interact not found")
		return def
	}

	t := e.vm.NewTable()
	t.RawSetString("id", lua.LString(ctx.ObjectID))
	t.RawSetString("type", lua.LString(ctx.Type))
	t.RawSetString("name", lua.LString(ctx.Name))
	t.RawSetString("x", lua.LNumber(ctx.X))
	t.RawSetString("y", lua.LNumber(ctx.Y))
	props := e.vm.NewTable()
	for k, v := range ctx.Properties {
		props.RawSetString(k, toLua(v))
	}
	t.RawSetString("properties", props)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua on_interact error", zap.String("object", ctx.ObjectID), zap.Error(err))
		return def
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua on_interact returned non-table", zap.String("object", ctx.ObjectID))
		return def
	}

	act := Action{
		Kind:    lStr(rt, "kind"),
		Target:  lStr(rt, "target"),
		Message: lStr(rt, "message"),
	}
	if act.Kind == "" {
		act.Kind = def.Kind
	}
	if act.Target == "" && act.Kind == def.Kind {
		act.Target = def.Target
	}
	return act
}

func toLua(v any) lua.LValue {
	switch x := v.(type) {
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case nil:
		return lua.LNil
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// lStr reads a string field from a Lua table; nil reads as empty.
func lStr(t *lua.LTable, key string) string {
	v := t.RawGetString(key)
	if v == lua.LNil {
		return ""
	}
	return lua.LVAsString(v)
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
