// Package tools provides the built-in example tools: arithmetic, the current time, dice, and
// a simulated weather report.
//
//	registry := toolchain.NewRegistry()
//	if err := tools.New().Register(registry); err != nil {
//	    return err
//	}
//
// Time and randomness are injectable so runs can be reproduced in tests:
//
//	box := tools.New().
//	    WithClock(tools.NewFixedClock(fixed)).
//	    WithRand(rand.NewPCG(1, 2))
package tools

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/rickchristie/toolloop"
	"github.com/rickchristie/toolloop/schema"
	"github.com/rickchristie/toolloop/toolchain"
)

// Tool names.
const (
	NameCalculate      = "calculate"
	NameGetCurrentTime = "get_current_time"
	NameRollDice       = "roll_dice"
	NameGetWeather     = "get_weather"
)

// ErrDivisionByZero is returned by calculate when dividing by zero.
var ErrDivisionByZero = errors.New("division by zero")

var weatherConditions = []string{"sunny", "cloudy", "rain", "snow", "fog"}

// Toolbox builds the built-in tools around a shared clock and random source.
type Toolbox struct {
	clock Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Toolbox using the system clock and a randomly seeded source.
func New() *Toolbox {
	return &Toolbox{
		clock: SystemClock{},
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithClock sets the clock used by get_current_time.
func (b *Toolbox) WithClock(c Clock) *Toolbox {
	b.clock = c
	return b
}

// WithRand sets the random source used by roll_dice and get_weather.
func (b *Toolbox) WithRand(src rand.Source) *Toolbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng = rand.New(src)
	return b
}

// intBetween returns a uniform int in [lo, hi]. Tools of one round run concurrently, so access
// to the source is serialized.
func (b *Toolbox) intBetween(lo, hi int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo + b.rng.IntN(hi-lo+1)
}

// All returns every built-in tool in a fixed order.
func (b *Toolbox) All() []toolloop.ToolSpec {
	return []toolloop.ToolSpec{
		b.Calculate(),
		b.CurrentTime(),
		b.RollDice(),
		b.Weather(),
	}
}

// Register adds every built-in tool to registry.
func (b *Toolbox) Register(registry *toolchain.Registry) error {
	for _, spec := range b.All() {
		if err := registry.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// calculate
// -----------------------------------------------------------------------------

// CalculateInput is the argument set of calculate.
type CalculateInput struct {
	Operation string  `json:"operation"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

// Calculate returns the calculate tool: add, subtract, multiply, or divide two numbers.
func (b *Toolbox) Calculate() toolloop.ToolSpec {
	return toolloop.NewTool(
		NameCalculate,
		"Perform a basic arithmetic operation on two numbers.",
		schema.Object(map[string]*schema.Property{
			"operation": schema.String("The operation to perform").
				Enum("add", "subtract", "multiply", "divide"),
			"a": schema.Number("The first operand"),
			"b": schema.Number("The second operand"),
		}, "operation", "a", "b"),
		func(_ context.Context, in CalculateInput) (float64, error) {
			switch in.Operation {
			case "add":
				return in.A + in.B, nil
			case "subtract":
				return in.A - in.B, nil
			case "multiply":
				return in.A * in.B, nil
			case "divide":
				if in.B == 0 {
					return 0, ErrDivisionByZero
				}
				return in.A / in.B, nil
			default:
				return 0, fmt.Errorf("unknown operation %q", in.Operation)
			}
		},
	)
}

// -----------------------------------------------------------------------------
// get_current_time
// -----------------------------------------------------------------------------

// CurrentTimeInput is the argument set of get_current_time.
type CurrentTimeInput struct {
	Timezone string `json:"timezone"`
}

// CurrentTime returns the get_current_time tool. The timezone defaults to UTC and must be an
// IANA name such as "Europe/Bratislava".
func (b *Toolbox) CurrentTime() toolloop.ToolSpec {
	return toolloop.NewTool(
		NameGetCurrentTime,
		"Return the current date and time.",
		schema.Object(map[string]*schema.Property{
			"timezone": schema.String("IANA timezone name").Default("UTC"),
		}),
		func(_ context.Context, in CurrentTimeInput) (string, error) {
			tz := in.Timezone
			if tz == "" {
				tz = "UTC"
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return "", fmt.Errorf("unknown timezone %q", tz)
			}
			return fmt.Sprintf("%s (%s)", b.clock.Now().In(loc).Format(time.DateTime), tz), nil
		},
	)
}

// -----------------------------------------------------------------------------
// roll_dice
// -----------------------------------------------------------------------------

// RollDiceInput is the argument set of roll_dice. Zero values mean "use the default".
type RollDiceInput struct {
	NumDice  int `json:"num_dice"`
	NumSides int `json:"num_sides"`
}

// DiceRoll is the result of roll_dice.
type DiceRoll struct {
	Rolls []int `json:"rolls"`
	Total int   `json:"total"`
}

// RollDice returns the roll_dice tool. Defaults: one six-sided die.
func (b *Toolbox) RollDice() toolloop.ToolSpec {
	return toolloop.NewTool(
		NameRollDice,
		"Roll dice and return each roll and the total.",
		schema.Object(map[string]*schema.Property{
			"num_dice":  schema.Integer("Number of dice").Min(1).Max(100).Default(1),
			"num_sides": schema.Integer("Number of sides per die").Min(2).Max(1000).Default(6),
		}),
		func(_ context.Context, in RollDiceInput) (DiceRoll, error) {
			n, sides := in.NumDice, in.NumSides
			if n == 0 {
				n = 1
			}
			if sides == 0 {
				sides = 6
			}

			out := DiceRoll{Rolls: make([]int, n)}
			for i := range out.Rolls {
				out.Rolls[i] = b.intBetween(1, sides)
				out.Total += out.Rolls[i]
			}
			return out, nil
		},
	)
}

// -----------------------------------------------------------------------------
// get_weather
// -----------------------------------------------------------------------------

// WeatherInput is the argument set of get_weather.
type WeatherInput struct {
	City string `json:"city"`
}

// WeatherReport is the simulated result of get_weather.
type WeatherReport struct {
	City        string `json:"city"`
	Temperature int    `json:"temperature"`
	Condition   string `json:"condition"`
	Humidity    int    `json:"humidity"`
}

// Weather returns the get_weather tool. Reports are simulated from the random source.
func (b *Toolbox) Weather() toolloop.ToolSpec {
	return toolloop.NewTool(
		NameGetWeather,
		"Get the current weather for a city (simulated).",
		schema.Object(map[string]*schema.Property{
			"city": schema.String("City name"),
		}, "city"),
		func(_ context.Context, in WeatherInput) (WeatherReport, error) {
			if in.City == "" {
				return WeatherReport{}, errors.New("city must not be empty")
			}
			return WeatherReport{
				City:        in.City,
				Temperature: b.intBetween(-5, 30),
				Condition:   weatherConditions[b.intBetween(0, len(weatherConditions)-1)],
				Humidity:    b.intBetween(30, 90),
			}, nil
		},
	)
}
