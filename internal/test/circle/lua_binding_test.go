//go:build scenario

package circle

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
)

const scenarioTypeName = "scenario"

// Scenario is a scripted circle lifecycle parsed from a Lua file.
type Scenario struct {
	Name  string
	Steps []Step
}

// Step is one scripted operation with its arguments.
type Step struct {
	Kind string
	Args map[string]any
}

func loadScenarioFromFile(path string) (*Scenario, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	registerLuaTypes(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("scenario script must return Scenario")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	scenario, ok := ud.(*Scenario)
	if !ok || scenario == nil {
		return nil, fmt.Errorf("scenario script returned invalid Scenario")
	}
	if strings.TrimSpace(scenario.Name) == "" {
		scenario.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return scenario, nil
}

func registerLuaTypes(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, scenarioConstructor, 0)
	state.SetGlobal("Scenario")
}

var scenarioConstructor = []lua.RegistryFunction{
	{Name: "new", Function: scenarioNew},
}

func scenarioNew(state *lua.State) int {
	name := lua.OptString(state, 1, "")
	scenario := &Scenario{Name: name}
	state.PushUserData(scenario)
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "circle", Function: scenarioCircle},
	{Name: "join", Function: scenarioJoin},
	{Name: "deposit", Function: scenarioDeposit},
	{Name: "finalize", Function: scenarioFinalize},
	{Name: "payout", Function: scenarioPayout},
	{Name: "propose", Function: scenarioPropose},
	{Name: "vote", Function: scenarioVote},
	{Name: "withdraw", Function: scenarioWithdraw},
	{Name: "expect", Function: scenarioExpect},
}

func scenarioCircle(state *lua.State) int {
	scenario := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	appendStep(scenario, "circle", tableToMap(state, 2))
	return 0
}

func scenarioJoin(state *lua.State) int {
	scenario := checkScenario(state)
	member := lua.CheckString(state, 2)
	appendStep(scenario, "join", map[string]any{"member": member})
	return 0
}

func scenarioDeposit(state *lua.State) int {
	scenario := checkScenario(state)
	member := lua.CheckString(state, 2)
	amount := lua.CheckInteger(state, 3)
	appendStep(scenario, "deposit", map[string]any{"member": member, "amount": amount})
	return 0
}

func scenarioFinalize(state *lua.State) int {
	scenario := checkScenario(state)
	caller := lua.OptString(state, 2, "")
	appendStep(scenario, "finalize", map[string]any{"caller": caller})
	return 0
}

func scenarioPayout(state *lua.State) int {
	scenario := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	appendStep(scenario, "payout", tableToMap(state, 2))
	return 0
}

func scenarioPropose(state *lua.State) int {
	scenario := checkScenario(state)
	member := lua.CheckString(state, 2)
	appendStep(scenario, "propose", map[string]any{"member": member})
	return 0
}

func scenarioVote(state *lua.State) int {
	scenario := checkScenario(state)
	member := lua.CheckString(state, 2)
	appendStep(scenario, "vote", map[string]any{"member": member})
	return 0
}

func scenarioWithdraw(state *lua.State) int {
	scenario := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	appendStep(scenario, "withdraw", tableToMap(state, 2))
	return 0
}

func scenarioExpect(state *lua.State) int {
	scenario := checkScenario(state)
	lua.CheckType(state, 2, lua.TypeTable)
	appendStep(scenario, "expect", tableToMap(state, 2))
	return 0
}

func checkScenario(state *lua.State) *Scenario {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if scenario, ok := ud.(*Scenario); ok && scenario != nil {
		return scenario
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

func appendStep(scenario *Scenario, kind string, data map[string]any) {
	if scenario == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	scenario.Steps = append(scenario.Steps, Step{Kind: kind, Args: data})
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

func tableToGo(state *lua.State, index int) any {
	if state.TypeOf(index) != lua.TypeTable {
		return nil
	}

	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}

	return tableToMap(state, index)
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
